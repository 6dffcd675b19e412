package solax

import (
	"fmt"
	"maps"
	"slices"
)

// Subset はケイパビリティで有効化されるカタログの部分集合です。
type Subset struct {
	Name string
	// Requires は「いずれかのフラグ」が立っているとき有効。0 のときは常に有効。
	Requires CapabilityFlags
	Entities []EntityDesc
}

// Applies reports whether the subset is merged for flags.
func (s Subset) Applies(flags CapabilityFlags) bool {
	return s.Requires == 0 || flags.Any(s.Requires)
}

// Catalog is the active, read-only entity set of one session.
type Catalog struct {
	flags    CapabilityFlags
	entities map[string]EntityDesc
	origin   map[string]string // key -> subset name
	keys     []string
	subsets  []string
}

// NewCatalog merges every applicable subset, in order, and validates the
// result. Duplicate keys and malformed definitions are ConfigurationErrors.
func NewCatalog(flags CapabilityFlags, subsets []Subset) (*Catalog, error) {
	c := &Catalog{
		flags:    flags,
		entities: map[string]EntityDesc{},
		origin:   map[string]string{},
	}
	seenSubsets := map[string]bool{}
	for _, subset := range subsets {
		if !subset.Applies(flags) {
			continue
		}
		if seenSubsets[subset.Name] {
			return nil, &ConfigurationError{Subset: subset.Name, Err: fmt.Errorf("subset merged twice")}
		}
		seenSubsets[subset.Name] = true
		c.subsets = append(c.subsets, subset.Name)

		for _, e := range subset.Entities {
			if err := e.validate(); err != nil {
				return nil, &ConfigurationError{Subset: subset.Name, Key: e.Key, Err: err}
			}
			if prev, ok := c.origin[e.Key]; ok {
				return nil, &ConfigurationError{
					Subset: subset.Name,
					Key:    e.Key,
					Err:    fmt.Errorf("duplicate key, already defined by subset %s", prev),
				}
			}
			c.entities[e.Key] = cloneEntity(e)
			c.origin[e.Key] = subset.Name
		}
	}

	// 派生センサーの入力は同じカタログ内の、レジスタから読む数値に限る。
	// Decode は派生を1段しか評価しない
	for key, e := range c.entities {
		s, ok := e.Spec.(SensorDesc)
		if !ok || s.Derive == nil {
			continue
		}
		for _, in := range s.Derive.Inputs {
			var err error
			input, ok := c.entities[in]
			switch {
			case in == key:
				err = fmt.Errorf("derivation refers to itself")
			case !ok:
				err = fmt.Errorf("derivation input %s is not in the catalog", in)
			case input.Register == nil:
				err = fmt.Errorf("derivation input %s is itself derived", in)
			case !input.measurable():
				err = fmt.Errorf("derivation input %s is not numeric", in)
			}
			if err != nil {
				return nil, &ConfigurationError{Subset: c.origin[key], Key: key, Err: err}
			}
		}
	}

	c.keys = slices.Sorted(maps.Keys(c.entities))
	return c, nil
}

func cloneEntity(e EntityDesc) EntityDesc {
	if e.Register != nil {
		r := *e.Register
		e.Register = &r
	}
	switch s := e.Spec.(type) {
	case SensorDesc:
		s.Options = maps.Clone(s.Options)
		if s.Derive != nil {
			d := *s.Derive
			d.Inputs = slices.Clone(d.Inputs)
			s.Derive = &d
		}
		e.Spec = s
	case SelectDesc:
		s.Options = maps.Clone(s.Options)
		e.Spec = s
	}
	return e
}

// Flags returns the capability flags the catalog was built for.
func (c *Catalog) Flags() CapabilityFlags {
	return c.flags
}

// Lookup returns the definition for key. The returned value shares its maps
// with the catalog and must not be modified.
func (c *Catalog) Lookup(key string) (EntityDesc, bool) {
	e, ok := c.entities[key]
	return e, ok
}

// Origin returns the name of the subset that contributed key.
func (c *Catalog) Origin(key string) string {
	return c.origin[key]
}

// Keys returns all keys in sorted order.
func (c *Catalog) Keys() []string {
	return slices.Clone(c.keys)
}

// Entities returns all definitions sorted by key.
func (c *Catalog) Entities() []EntityDesc {
	result := make([]EntityDesc, 0, len(c.keys))
	for _, k := range c.keys {
		result = append(result, c.entities[k])
	}
	return result
}

// Subsets lists the merged subset names in merge order.
func (c *Catalog) Subsets() []string {
	return slices.Clone(c.subsets)
}

func (c *Catalog) Len() int {
	return len(c.entities)
}
