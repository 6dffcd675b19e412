package solax

// カタログ定義用の共通メタデータとレジスタ構成のヘルパー。

var (
	PowerMeta       = Metadata{Unit: "W", DeviceClass: "power", StateClass: "measurement"}
	ApparentMeta    = Metadata{Unit: "VA"}
	VoltageMeta     = Metadata{Unit: "V", DeviceClass: "voltage"}
	CurrentMeta     = Metadata{Unit: "A", DeviceClass: "current"}
	FrequencyMeta   = Metadata{Unit: "Hz"}
	TemperatureMeta = Metadata{Unit: "°C", DeviceClass: "temperature", StateClass: "measurement"}
	PercentMeta     = Metadata{Unit: "%"}
	HoursMeta       = Metadata{Unit: "h"}
	EnergyMeta      = Metadata{Unit: "kWh", DeviceClass: "energy", StateClass: "total_increasing", Icon: "mdi:solar-power"}
)

// hidden marks an entity as disabled by default in the host registry.
func hidden(m Metadata) Metadata {
	m.DisabledDefault = true
	return m
}

func u16(a Address) *Register { return &Register{Address: a} }
func s16(a Address) *Register { return &Register{Address: a, Signed: true} }

// 32bit 値は下位ワードが先 (SolaX のプロトコル仕様)
func u32(a Address) *Register { return &Register{Address: a, Words: 2, LowFirst: true} }
func s32(a Address) *Register { return &Register{Address: a, Words: 2, Signed: true, LowFirst: true} }

func text(a Address, words int) *Register { return &Register{Address: a, Words: words} }

var (
	plain = SensorDesc{Encoding: EncodingInteger}
	clock = SensorDesc{Encoding: EncodingClock}
	ascii = SensorDesc{Encoding: EncodingASCII}
)

func scaled(scale float64) SensorDesc {
	return SensorDesc{Encoding: EncodingScaled, Scale: scale}
}

func enum(options map[int]string) SensorDesc {
	return SensorDesc{Encoding: EncodingInteger, Options: options}
}

func derived(op DerivationOp, inputs ...string) SensorDesc {
	return SensorDesc{Derive: &Derivation{Op: op, Inputs: inputs}}
}

var (
	disabledEnabled = map[int]string{0: "Disabled", 1: "Enabled"}
	noYes           = map[int]string{0: "No", 1: "Yes"}
)
