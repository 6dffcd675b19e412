package solax

// EPS は単相・三相どちらの EPS にもある設定値です。
func (r SubsetRegistry) EPS() Subset {
	return Subset{
		Name:     "eps",
		Requires: X1EPS | X3EPS,
		Entities: []EntityDesc{
			{Key: "eps_mute", Name: "EPS Mute", Register: u16(Holding(0xB7)), Spec: enum(noYes)},
			{Key: "eps_set_frequency", Name: "EPS Set Frequency", Register: u16(Holding(0xB8)), Meta: FrequencyMeta,
				Spec: enum(map[int]string{0: "50Hz", 1: "60Hz"})},
			{Key: "eps_auto_restart", Name: "EPS Auto Restart", Register: u16(Holding(0xF0)), Spec: enum(disabledEnabled)},
			{Key: "eps_min_esc_soc", Name: "EPS Min Esc SOC", Register: u16(Holding(0xF1)), Meta: PercentMeta, Spec: plain},
			{Key: "eps_min_esc_voltage", Name: "EPS Min Esc Voltage", Register: u16(Holding(0xF2)), Meta: Metadata{Unit: "V"}, Spec: scaled(0.1)},
		},
	}
}

func (r SubsetRegistry) X1EPS() Subset {
	return Subset{
		Name:     "x1_eps",
		Requires: X1EPS,
		Entities: []EntityDesc{
			{Key: "eps_voltage", Name: "EPS Voltage", Register: u16(Input(0x4C)), Meta: VoltageMeta, Spec: scaled(0.1)},
			{Key: "eps_current", Name: "EPS Current", Register: u16(Input(0x4D)), Meta: CurrentMeta, Spec: scaled(0.1)},
			{Key: "eps_power", Name: "EPS Power", Register: u16(Input(0x4E)), Meta: ApparentMeta, Spec: plain},
			{Key: "eps_frequency", Name: "EPS Frequency", Register: u16(Input(0x4F)), Meta: FrequencyMeta, Spec: scaled(0.01)},
		},
	}
}

// X3EPS は三相 EPS の相別計測値です。相ごとに4レジスタ (電圧, 電流, 有効電力, 皮相電力)。
func (r SubsetRegistry) X3EPS() Subset {
	entities := []EntityDesc{
		{Key: "eps_mode_runtime", Name: "EPS Mode Runtime", Register: u32(Input(0x8C)), Meta: hidden(HoursMeta), Spec: scaled(0.1)},
	}
	for i, p := range []struct{ suffix, label string }{{"r", "R"}, {"s", "S"}, {"t", "T"}} {
		base := uint16(0x76 + 4*i)
		entities = append(entities,
			EntityDesc{Key: "eps_voltage_" + p.suffix, Name: "EPS Voltage " + p.label, Register: u16(Input(base)), Meta: VoltageMeta, Spec: scaled(0.1)},
			EntityDesc{Key: "eps_current_" + p.suffix, Name: "EPS Current " + p.label, Register: u16(Input(base + 1)), Meta: CurrentMeta, Spec: scaled(0.1)},
			EntityDesc{Key: "eps_power_active_" + p.suffix, Name: "EPS Power Active " + p.label, Register: s16(Input(base + 2)), Meta: PowerMeta, Spec: plain},
			EntityDesc{Key: "eps_power_" + p.suffix, Name: "EPS Power " + p.label, Register: u16(Input(base + 3)), Meta: ApparentMeta, Spec: plain},
		)
	}
	return Subset{
		Name:     "x3_eps",
		Requires: X3EPS,
		Entities: entities,
	}
}
