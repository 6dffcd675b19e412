package solax

import (
	"strings"
)

// CapabilityFlags describes the connected inverter family. The zero value
// selects only the base subset.
type CapabilityFlags uint8

const (
	Gen2X1 CapabilityFlags = 1 << iota // 第2世代 単相
	Gen3X1                             // 第3世代 単相
	Gen3X3                             // 第3世代 三相
	X1EPS                              // 単相 EPS (バックアップ) あり
	X3EPS                              // 三相 EPS あり
)

var capabilityNames = []struct {
	flag CapabilityFlags
	name string
}{
	{Gen2X1, "gen2_x1"},
	{Gen3X1, "gen3_x1"},
	{Gen3X3, "gen3_x3"},
	{X1EPS, "x1_eps"},
	{X3EPS, "x3_eps"},
}

// Has reports whether every flag in f is set.
func (c CapabilityFlags) Has(f CapabilityFlags) bool {
	return c&f == f
}

// Any reports whether at least one flag in f is set.
func (c CapabilityFlags) Any(f CapabilityFlags) bool {
	return c&f != 0
}

func (c CapabilityFlags) String() string {
	names := c.Names()
	if len(names) == 0 {
		return "base"
	}
	return strings.Join(names, "|")
}

// ParseCapability returns the flag for a name such as "gen3_x3".
func ParseCapability(name string) (CapabilityFlags, bool) {
	for _, n := range capabilityNames {
		if strings.EqualFold(n.name, name) {
			return n.flag, true
		}
	}
	return 0, false
}

// Names lists the individual flag names set in c.
func (c CapabilityFlags) Names() []string {
	var names []string
	for _, n := range capabilityNames {
		if c.Has(n.flag) {
			names = append(names, n.name)
		}
	}
	return names
}

// ResolverConfig はホストから渡される設定値です。
type ResolverConfig struct {
	ReadGen2X1 bool
	ReadGen3X1 bool
	ReadGen3X3 bool
	ReadX1EPS  bool
	ReadX3EPS  bool
}

// Flags converts the configuration booleans into CapabilityFlags.
func (c ResolverConfig) Flags() CapabilityFlags {
	var f CapabilityFlags
	set := func(enabled bool, flag CapabilityFlags) {
		if enabled {
			f |= flag
		}
	}
	set(c.ReadGen2X1, Gen2X1)
	set(c.ReadGen3X1, Gen3X1)
	set(c.ReadGen3X3, Gen3X3)
	set(c.ReadX1EPS, X1EPS)
	set(c.ReadX3EPS, X3EPS)
	return f
}

// Resolve builds the capability flags and the active catalog from the built-in
// subsets.
func Resolve(cfg ResolverConfig) (CapabilityFlags, *Catalog, error) {
	return ResolveWith(cfg, BuiltinSubsets)
}

// ResolveWith is Resolve over an explicit subset list, e.g. one loaded from a
// catalog file.
func ResolveWith(cfg ResolverConfig, subsets []Subset) (CapabilityFlags, *Catalog, error) {
	flags := cfg.Flags()
	catalog, err := NewCatalog(flags, subsets)
	if err != nil {
		return flags, nil, err
	}
	return flags, catalog, nil
}
