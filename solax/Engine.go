package solax

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"solax-modbus/solax/utils"
)

// stepTolerance is the allowed distance, in steps, from an exact step multiple.
const stepTolerance = 1e-6

// Engine translates between raw register words and entity values for one
// catalog. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	catalog *Catalog
}

func NewEngine(catalog *Catalog) *Engine {
	return &Engine{catalog: catalog}
}

func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Decode はカタログ内の全エンティティについて値を求めます。
// レジスタが欠けているキーは Unavailable になり、他のキーには影響しません。
func (e *Engine) Decode(regs Registers) map[string]Value {
	result := make(map[string]Value, e.catalog.Len())
	var derived []EntityDesc
	for _, key := range e.catalog.keys {
		desc := e.catalog.entities[key]
		if desc.Register == nil {
			derived = append(derived, desc)
			continue
		}
		result[key] = decodeEntity(desc, regs)
	}
	for _, desc := range derived {
		result[desc.Key] = decodeDerived(desc, result)
	}
	return result
}

// DecodeKey decodes a single key; unknown keys are Unavailable.
func (e *Engine) DecodeKey(key string, regs Registers) Value {
	desc, ok := e.catalog.Lookup(key)
	if !ok {
		return Unavailable
	}
	if desc.Register == nil {
		return e.Decode(regs)[key]
	}
	return decodeEntity(desc, regs)
}

func decodeEntity(desc EntityDesc, regs Registers) Value {
	words, ok := regs.Words(*desc.Register)
	if !ok {
		return Unavailable
	}
	reg := *desc.Register

	switch s := desc.Spec.(type) {
	case SensorDesc:
		switch s.Encoding {
		case EncodingASCII:
			return Value{Text: utils.WordsToASCII(words)}
		case EncodingClock:
			return Value{Text: fmt.Sprintf("%02d:%02d", words[0]>>8, words[0]&0xFF), Number: float64(words[0]), Integer: true}
		}
		raw := rawValue(reg, words)
		if s.Options != nil {
			return lookupOption(s.Options, raw)
		}
		if s.Encoding == EncodingScaled {
			return Value{Number: applyScale(raw, s.Scale), Unit: desc.Meta.Unit}
		}
		return Value{Number: float64(raw), Unit: desc.Meta.Unit, Integer: true}

	case NumberDesc:
		raw := rawValue(reg, words)
		if s.Encoding == EncodingScaled {
			return Value{Number: applyScale(raw, s.Scale), Unit: desc.Meta.Unit}
		}
		return Value{Number: float64(raw), Unit: desc.Meta.Unit, Integer: true}

	case SelectDesc:
		return lookupOption(s.Options, rawValue(reg, words))
	}
	return Unavailable
}

func decodeDerived(desc EntityDesc, decoded map[string]Value) Value {
	s := desc.Spec.(SensorDesc)
	in := make([]float64, len(s.Derive.Inputs))
	integer := true
	for i, key := range s.Derive.Inputs {
		v, ok := decoded[key]
		if !ok || !v.Numeric() {
			return Unavailable
		}
		in[i] = v.Number
		integer = integer && v.Integer
	}
	return Value{Number: s.Derive.apply(in), Unit: desc.Meta.Unit, Integer: integer}
}

func lookupOption(options map[int]string, raw int64) Value {
	if label, ok := options[int(raw)]; ok {
		return Value{Number: float64(raw), Label: label, Integer: true}
	}
	return Value{Status: StatusUnknownCode, Number: float64(raw), Integer: true}
}

// rawValue combines the words and interprets them per the register layout.
func rawValue(reg Register, words []uint16) int64 {
	n := utils.JoinWords(words, !reg.LowFirst)
	if reg.Signed {
		return utils.SignExtend(n, reg.Bits())
	}
	return int64(n)
}

// applyScale multiplies and rounds to the decimals the scale can express,
// so 3 * 0.1 reads as 0.3.
func applyScale(raw int64, scale float64) float64 {
	v := float64(raw) * scale
	p := math.Pow(10, float64(scaleDecimals(scale)))
	return math.Round(v*p) / p
}

func scaleDecimals(scale float64) int {
	d := 0
	for d < 9 && math.Abs(scale*math.Pow(10, float64(d))-math.Round(scale*math.Pow(10, float64(d)))) > 1e-9 {
		d++
	}
	return d
}

// Encode は書き込み要求を検証し、書き込むべきレジスタ値を返します。
// 検証に失敗した場合は *ValidationError を返し、何も書き込んではいけません。
func (e *Engine) Encode(key string, value float64) (RegisterWrite, error) {
	desc, err := e.writable(key)
	if err != nil {
		return RegisterWrite{}, err
	}
	valueStr := strconv.FormatFloat(value, 'f', -1, 64)
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return RegisterWrite{}, validationErrorf(key, valueStr, "not a finite number")
	}

	reg := *desc.Register
	var raw int64
	switch s := desc.Spec.(type) {
	case NumberDesc:
		if value < s.Min {
			return RegisterWrite{}, validationErrorf(key, valueStr, "below minimum %v", s.Min)
		}
		if value > s.Max {
			return RegisterWrite{}, validationErrorf(key, valueStr, "above maximum %v", s.Max)
		}
		steps := (value - s.Min) / s.Step
		if math.Abs(steps-math.Round(steps)) > stepTolerance {
			return RegisterWrite{}, validationErrorf(key, valueStr, "not a multiple of step %v from %v", s.Step, s.Min)
		}
		if s.Encoding == EncodingInteger {
			if value != math.Trunc(value) {
				return RegisterWrite{}, validationErrorf(key, valueStr, "integer entity needs a whole number")
			}
			raw = int64(value)
		} else {
			raw = int64(math.Round(value / s.scale()))
		}

	case SelectDesc:
		if value != math.Trunc(value) {
			return RegisterWrite{}, validationErrorf(key, valueStr, "select code must be a whole number")
		}
		if _, ok := s.Options[int(value)]; !ok {
			return RegisterWrite{}, validationErrorf(key, valueStr, "code is not one of the options")
		}
		raw = int64(value)

	default:
		return RegisterWrite{}, validationErrorf(key, valueStr, "%s is read-only", desc.Kind())
	}

	if !utils.FitsWidth(raw, reg.Bits(), reg.Signed) {
		return RegisterWrite{}, validationErrorf(key, valueStr, "raw value %d does not fit a %d-bit register", raw, reg.Bits())
	}
	words := utils.SplitWords(uint32(raw), reg.WordCount(), !reg.LowFirst)
	return RegisterWrite{Address: reg.Address, Words: words}, nil
}

// EncodeString accepts a select label, a select code, or a number with an
// optional trailing unit (e.g. "25.5A").
func (e *Engine) EncodeString(key string, s string) (RegisterWrite, error) {
	desc, err := e.writable(key)
	if err != nil {
		return RegisterWrite{}, err
	}
	s = strings.TrimSpace(s)
	if sel, ok := desc.Spec.(SelectDesc); ok {
		if code, ok := sel.CodeForLabel(s); ok {
			return e.Encode(key, float64(code))
		}
	}
	v := strings.TrimSpace(strings.TrimSuffix(s, desc.Meta.Unit))
	num, perr := strconv.ParseFloat(v, 64)
	if perr != nil {
		return RegisterWrite{}, validationErrorf(key, s, "not a number or option label")
	}
	return e.Encode(key, num)
}

func (e *Engine) writable(key string) (EntityDesc, error) {
	desc, ok := e.catalog.Lookup(key)
	if !ok {
		return EntityDesc{}, validationErrorf(key, "", "no such entity")
	}
	if k := desc.Kind(); k != KindNumber && k != KindSelect {
		return EntityDesc{}, validationErrorf(key, "", "%s is read-only", k)
	}
	if desc.Register == nil {
		return EntityDesc{}, validationErrorf(key, "", "entity has no register address")
	}
	return desc, nil
}
