package solax

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// カタログファイル (YAML) の表現。組み込みカタログと同じ部分集合構造を持ちます。
type catalogFile struct {
	Subsets []subsetFile `yaml:"subsets"`
}

type subsetFile struct {
	Name     string       `yaml:"name"`
	Requires []string     `yaml:"requires,omitempty,flow"`
	Entities []entityFile `yaml:"entities"`
}

type entityFile struct {
	Key         string         `yaml:"key"`
	Name        string         `yaml:"name"`
	Kind        string         `yaml:"kind"`
	Register    *registerFile  `yaml:"register,omitempty"`
	Encoding    string         `yaml:"encoding,omitempty"`
	Scale       float64        `yaml:"scale,omitempty"`
	Min         *float64       `yaml:"min,omitempty"`
	Max         *float64       `yaml:"max,omitempty"`
	Step        *float64       `yaml:"step,omitempty"`
	Options     map[int]string `yaml:"options,omitempty"`
	Derive      *deriveFile    `yaml:"derive,omitempty"`
	Unit        string         `yaml:"unit,omitempty"`
	DeviceClass string         `yaml:"device_class,omitempty"`
	StateClass  string         `yaml:"state_class,omitempty"`
	Icon        string         `yaml:"icon,omitempty"`
	Disabled    bool           `yaml:"disabled_by_default,omitempty"`
}

type registerFile struct {
	Table     string `yaml:"table"`
	Address   uint16 `yaml:"address"`
	Words     int    `yaml:"words,omitempty"`
	Signed    bool   `yaml:"signed,omitempty"`
	WordOrder string `yaml:"word_order,omitempty"`
}

type deriveFile struct {
	Op     string   `yaml:"op"`
	Inputs []string `yaml:"inputs,flow"`
}

const (
	wordOrderHighFirst = "high-first"
	wordOrderLowFirst  = "low-first"
)

// LoadCatalogFile reads a YAML catalog from path.
func LoadCatalogFile(path string) ([]Subset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("カタログファイルを開けませんでした: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return LoadCatalog(f)
}

// LoadCatalog parses a YAML catalog. Unknown fields and malformed values are
// ConfigurationErrors; key collisions are only detected when the subsets are
// merged by NewCatalog.
func LoadCatalog(r io.Reader) ([]Subset, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigurationError{Err: fmt.Errorf("parse catalog: %w", err)}
	}

	subsets := make([]Subset, 0, len(file.Subsets))
	for _, sf := range file.Subsets {
		if sf.Name == "" {
			return nil, &ConfigurationError{Err: fmt.Errorf("subset without a name")}
		}
		subset := Subset{Name: sf.Name}
		for _, name := range sf.Requires {
			flag, ok := ParseCapability(name)
			if !ok {
				return nil, &ConfigurationError{Subset: sf.Name, Err: fmt.Errorf("unknown capability %q", name)}
			}
			subset.Requires |= flag
		}
		for _, ef := range sf.Entities {
			e, err := ef.toEntity()
			if err != nil {
				return nil, &ConfigurationError{Subset: sf.Name, Key: ef.Key, Err: err}
			}
			subset.Entities = append(subset.Entities, e)
		}
		subsets = append(subsets, subset)
	}
	return subsets, nil
}

// WriteCatalog dumps subsets as YAML in the format LoadCatalog accepts.
func WriteCatalog(w io.Writer, subsets []Subset) error {
	file := catalogFile{}
	for _, s := range subsets {
		sf := subsetFile{Name: s.Name, Requires: s.Requires.Names()}
		entities := slices.Clone(s.Entities)
		slices.SortStableFunc(entities, func(a, b EntityDesc) int { return strings.Compare(a.Key, b.Key) })
		for _, e := range entities {
			sf.Entities = append(sf.Entities, entityToFile(e))
		}
		file.Subsets = append(file.Subsets, sf)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(file); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	return enc.Close()
}

func parseEncoding(s string) (Encoding, error) {
	for _, e := range []Encoding{EncodingInteger, EncodingScaled, EncodingASCII, EncodingClock} {
		if s == e.String() {
			return e, nil
		}
	}
	if s == "" {
		return EncodingInteger, nil
	}
	return 0, fmt.Errorf("unknown encoding %q", s)
}

func parseDerivationOp(s string) (DerivationOp, error) {
	for op, name := range derivationOpNames {
		if s == name {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown derivation %q", s)
}

func (ef entityFile) toEntity() (EntityDesc, error) {
	e := EntityDesc{
		Key:  ef.Key,
		Name: ef.Name,
		Meta: Metadata{
			Unit:            ef.Unit,
			DeviceClass:     ef.DeviceClass,
			StateClass:      ef.StateClass,
			Icon:            ef.Icon,
			DisabledDefault: ef.Disabled,
		},
	}
	if rf := ef.Register; rf != nil {
		reg := &Register{Words: rf.Words, Signed: rf.Signed}
		switch rf.Table {
		case "holding":
			reg.Table = HoldingTable
		case "input":
			reg.Table = InputTable
		default:
			return e, fmt.Errorf("unknown register table %q", rf.Table)
		}
		reg.Offset = rf.Address
		switch rf.WordOrder {
		case "", wordOrderHighFirst:
		case wordOrderLowFirst:
			reg.LowFirst = true
		default:
			return e, fmt.Errorf("unknown word order %q", rf.WordOrder)
		}
		e.Register = reg
	}

	encoding, err := parseEncoding(ef.Encoding)
	if err != nil {
		return e, err
	}
	switch ef.Kind {
	case "sensor":
		s := SensorDesc{Encoding: encoding, Scale: ef.Scale, Options: ef.Options}
		if ef.Derive != nil {
			op, err := parseDerivationOp(ef.Derive.Op)
			if err != nil {
				return e, err
			}
			s.Derive = &Derivation{Op: op, Inputs: ef.Derive.Inputs}
		}
		e.Spec = s
	case "number":
		if ef.Min == nil || ef.Max == nil || ef.Step == nil {
			return e, fmt.Errorf("number needs min, max and step")
		}
		e.Spec = NumberDesc{Encoding: encoding, Scale: ef.Scale, Min: *ef.Min, Max: *ef.Max, Step: *ef.Step}
	case "select":
		e.Spec = SelectDesc{Options: ef.Options}
	default:
		return e, fmt.Errorf("unknown kind %q", ef.Kind)
	}
	return e, nil
}

func entityToFile(e EntityDesc) entityFile {
	ef := entityFile{
		Key:         e.Key,
		Name:        e.Name,
		Kind:        e.Kind().String(),
		Unit:        e.Meta.Unit,
		DeviceClass: e.Meta.DeviceClass,
		StateClass:  e.Meta.StateClass,
		Icon:        e.Meta.Icon,
		Disabled:    e.Meta.DisabledDefault,
	}
	if r := e.Register; r != nil {
		rf := &registerFile{Table: r.Table.String(), Address: r.Offset, Words: r.Words, Signed: r.Signed}
		if r.WordCount() > 1 {
			rf.WordOrder = wordOrderHighFirst
			if r.LowFirst {
				rf.WordOrder = wordOrderLowFirst
			}
		}
		ef.Register = rf
	}
	switch s := e.Spec.(type) {
	case SensorDesc:
		if s.Derive == nil {
			ef.Encoding = s.Encoding.String()
		} else {
			ef.Derive = &deriveFile{Op: s.Derive.Op.String(), Inputs: s.Derive.Inputs}
		}
		ef.Scale = s.Scale
		ef.Options = s.Options
	case NumberDesc:
		ef.Encoding = s.Encoding.String()
		ef.Scale = s.Scale
		ef.Min, ef.Max, ef.Step = &s.Min, &s.Max, &s.Step
	case SelectDesc:
		ef.Options = s.Options
	}
	return ef
}
