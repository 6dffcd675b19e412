package solax

import (
	"fmt"
	"math"
	"strings"
)

// RegisterTable は Modbus のレジスタ種別です。
type RegisterTable int

const (
	HoldingTable RegisterTable = iota // 読み書き (0x03 / 0x06, 0x10)
	InputTable                        // 読み出し専用 (0x04)
)

func (t RegisterTable) String() string {
	switch t {
	case HoldingTable:
		return "holding"
	case InputTable:
		return "input"
	}
	return fmt.Sprintf("table(%d)", int(t))
}

// Address identifies one 16-bit register.
type Address struct {
	Table  RegisterTable
	Offset uint16
}

// Holding returns the holding register address at offset.
func Holding(offset uint16) Address { return Address{Table: HoldingTable, Offset: offset} }

// Input returns the input register address at offset.
func Input(offset uint16) Address { return Address{Table: InputTable, Offset: offset} }

func (a Address) String() string {
	return fmt.Sprintf("%s:0x%04X", a.Table, a.Offset)
}

// Register はエンティティが占めるレジスタ範囲とワード構成です。
type Register struct {
	Address
	Words    int  // 0 のときは 1 扱い
	Signed   bool // 2の補数として解釈する
	LowFirst bool // 2ワード値で下位ワードが先
}

func (r Register) WordCount() int {
	if r.Words == 0 {
		return 1
	}
	return r.Words
}

// Addresses lists every register the span covers.
func (r Register) Addresses() []Address {
	n := r.WordCount()
	result := make([]Address, n)
	for i := range n {
		result[i] = Address{Table: r.Table, Offset: r.Offset + uint16(i)}
	}
	return result
}

// Bits is the numeric width of the span.
func (r Register) Bits() int {
	return 16 * r.WordCount()
}

// Encoding はレジスタ値からアプリケーション値への変換方法です。
type Encoding int

const (
	EncodingInteger Encoding = iota
	EncodingScaled           // raw × Scale
	EncodingASCII            // 1ワード2文字
	EncodingClock            // 上位バイト=時, 下位バイト=分
)

func (e Encoding) String() string {
	switch e {
	case EncodingInteger:
		return "integer"
	case EncodingScaled:
		return "scaled-float"
	case EncodingASCII:
		return "ascii"
	case EncodingClock:
		return "clock"
	}
	return fmt.Sprintf("encoding(%d)", int(e))
}

// Kind is the entity variant.
type Kind int

const (
	KindSensor Kind = iota
	KindNumber
	KindSelect
)

func (k Kind) String() string {
	switch k {
	case KindSensor:
		return "sensor"
	case KindNumber:
		return "number"
	case KindSelect:
		return "select"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Metadata is passed through to the host platform without interpretation.
type Metadata struct {
	Unit            string
	DeviceClass     string
	StateClass      string
	Icon            string
	DisabledDefault bool // entity_registry_enabled_default = false
}

// EntityDesc はカタログ上の1エンティティの定義です。
// Register が nil のものは派生センサーで、Sensor.Derive を持ちます。
type EntityDesc struct {
	Key      string
	Name     string
	Register *Register
	Meta     Metadata
	Spec     KindSpec
}

// KindSpec is implemented by SensorDesc, NumberDesc and SelectDesc only.
type KindSpec interface {
	Kind() Kind
	validate(e EntityDesc) error
}

func (e EntityDesc) Kind() Kind {
	return e.Spec.Kind()
}

// Options returns the enumeration of a select or enum sensor.
func (e EntityDesc) Options() map[int]string {
	switch s := e.Spec.(type) {
	case SelectDesc:
		return s.Options
	case SensorDesc:
		return s.Options
	}
	return nil
}

// Writable reports whether Encode can target this entity.
func (e EntityDesc) Writable() bool {
	k := e.Kind()
	return (k == KindNumber || k == KindSelect) && e.Register != nil
}

// SensorDesc は読み出し専用の値です。
type SensorDesc struct {
	Encoding Encoding
	Scale    float64        // EncodingScaled のときのみ
	Options  map[int]string // 状態を表すセンサー (run mode 等)
	Derive   *Derivation    // レジスタを持たない計算値
}

func (SensorDesc) Kind() Kind { return KindSensor }

func (s SensorDesc) validate(e EntityDesc) error {
	if e.Register == nil {
		if s.Derive == nil {
			return fmt.Errorf("sensor has neither register nor derivation")
		}
		return s.Derive.validate()
	}
	if s.Derive != nil {
		return fmt.Errorf("sensor has both register and derivation")
	}
	if s.Encoding == EncodingScaled && !(s.Scale > 0) {
		return fmt.Errorf("scale must be positive, got %v", s.Scale)
	}
	if s.Encoding == EncodingClock && e.Register.WordCount() != 1 {
		return fmt.Errorf("clock encoding needs exactly one word")
	}
	if s.Options != nil && s.Encoding != EncodingInteger {
		return fmt.Errorf("options need integer encoding, got %s", s.Encoding)
	}
	return nil
}

// measurable reports whether the entity decodes to a plain number that a
// derivation can consume.
func (e EntityDesc) measurable() bool {
	if e.Register == nil {
		return false
	}
	switch s := e.Spec.(type) {
	case NumberDesc:
		return true
	case SensorDesc:
		return s.Options == nil && (s.Encoding == EncodingInteger || s.Encoding == EncodingScaled)
	}
	return false
}

// NumberDesc は範囲とステップを持つ書き込み可能な数値です。
type NumberDesc struct {
	Encoding Encoding // EncodingInteger か EncodingScaled
	Scale    float64
	Min      float64
	Max      float64
	Step     float64
}

func (NumberDesc) Kind() Kind { return KindNumber }

func (n NumberDesc) validate(e EntityDesc) error {
	if n.Encoding != EncodingInteger && n.Encoding != EncodingScaled {
		return fmt.Errorf("number encoding must be integer or scaled-float, got %s", n.Encoding)
	}
	if n.Encoding == EncodingScaled && !(n.Scale > 0) {
		return fmt.Errorf("scale must be positive, got %v", n.Scale)
	}
	if n.Min > n.Max {
		return fmt.Errorf("min %v is greater than max %v", n.Min, n.Max)
	}
	if !(n.Step > 0) {
		return fmt.Errorf("step must be positive, got %v", n.Step)
	}
	return nil
}

// scale returns the multiplier between raw and application values.
func (n NumberDesc) scale() float64 {
	if n.Encoding == EncodingScaled {
		return n.Scale
	}
	return 1
}

// SelectDesc maps register codes to labels.
type SelectDesc struct {
	Options map[int]string
}

func (SelectDesc) Kind() Kind { return KindSelect }

func (s SelectDesc) validate(e EntityDesc) error {
	if len(s.Options) == 0 {
		return fmt.Errorf("select has no options")
	}
	return nil
}

// CodeForLabel looks a label up case-insensitively.
func (s SelectDesc) CodeForLabel(label string) (int, bool) {
	for code, l := range s.Options {
		if strings.EqualFold(l, label) {
			return code, true
		}
	}
	return 0, false
}

// DerivationOp は派生センサーの計算方法です。
type DerivationOp int

const (
	DeriveSum        DerivationOp = iota // inputs の合計
	DeriveDifference                     // inputs[0] - inputs[1]
	DerivePositive                       // max(x, 0)
	DeriveNegative                       // max(-x, 0)
)

var derivationOpNames = map[DerivationOp]string{
	DeriveSum:        "sum",
	DeriveDifference: "difference",
	DerivePositive:   "positive",
	DeriveNegative:   "negative",
}

func (op DerivationOp) String() string {
	if s, ok := derivationOpNames[op]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// Derivation computes a sensor from other decoded values.
type Derivation struct {
	Op     DerivationOp
	Inputs []string
}

func (d Derivation) validate() error {
	switch d.Op {
	case DeriveSum:
		if len(d.Inputs) == 0 {
			return fmt.Errorf("sum needs at least one input")
		}
	case DeriveDifference:
		if len(d.Inputs) != 2 {
			return fmt.Errorf("difference needs two inputs, got %d", len(d.Inputs))
		}
	case DerivePositive, DeriveNegative:
		if len(d.Inputs) != 1 {
			return fmt.Errorf("%s needs one input, got %d", d.Op, len(d.Inputs))
		}
	default:
		return fmt.Errorf("unknown derivation %s", d.Op)
	}
	return nil
}

func (d Derivation) apply(in []float64) float64 {
	switch d.Op {
	case DeriveSum:
		var sum float64
		for _, v := range in {
			sum += v
		}
		return sum
	case DeriveDifference:
		return in[0] - in[1]
	case DerivePositive:
		return math.Max(in[0], 0)
	case DeriveNegative:
		return math.Max(-in[0], 0)
	}
	return math.NaN()
}

// validate checks the shape of a single definition.
func (e EntityDesc) validate() error {
	if e.Key == "" {
		return fmt.Errorf("entity %q has an empty key", e.Name)
	}
	if e.Spec == nil {
		return fmt.Errorf("entity %s has no kind", e.Key)
	}
	if e.Register != nil {
		n := e.Register.WordCount()
		if n < 1 || (n > 2 && !isText(e)) {
			return fmt.Errorf("entity %s: unsupported word count %d", e.Key, n)
		}
		if int(e.Register.Offset)+n-1 > 0xFFFF {
			return fmt.Errorf("entity %s: register span %s+%d exceeds address space", e.Key, e.Register.Address, n)
		}
	}
	switch e.Kind() {
	case KindNumber, KindSelect:
		if e.Register == nil {
			return fmt.Errorf("entity %s: %s needs a register", e.Key, e.Kind())
		}
		if e.Register.Table != HoldingTable {
			return fmt.Errorf("entity %s: %s must live in the holding table", e.Key, e.Kind())
		}
	}
	if err := e.Spec.validate(e); err != nil {
		return fmt.Errorf("entity %s: %w", e.Key, err)
	}
	return nil
}

func isText(e EntityDesc) bool {
	s, ok := e.Spec.(SensorDesc)
	return ok && s.Encoding == EncodingASCII
}
