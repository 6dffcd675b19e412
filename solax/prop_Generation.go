package solax

const (
	RegBatteryCharge               uint16 = 0x24
	RegBatteryDischarge            uint16 = 0x25
	RegForceTimePeriod1MaxCapacity uint16 = 0xA4
	RegForceTimePeriod2MaxCapacity uint16 = 0xA5
)

// batteryCurrentLimits は世代ごとに上限だけが異なる充放電電流の設定です。
func batteryCurrentLimits(max float64) []EntityDesc {
	current := NumberDesc{Encoding: EncodingScaled, Scale: 0.1, Min: 0, Max: max, Step: 0.1}
	return []EntityDesc{
		{Key: "battery_charge", Name: "Battery Charge", Register: u16(Holding(RegBatteryCharge)), Meta: Metadata{Unit: "A"}, Spec: current},
		{Key: "battery_discharge", Name: "Battery Discharge", Register: u16(Holding(RegBatteryDischarge)), Meta: Metadata{Unit: "A"}, Spec: current},
	}
}

// Gen2 は第2世代単相機の設定です。
func (r SubsetRegistry) Gen2() Subset {
	return Subset{
		Name:     "gen2",
		Requires: Gen2X1,
		Entities: batteryCurrentLimits(50),
	}
}

// Gen3 は第3世代 (単相・三相共通) の設定と計測値です。
func (r SubsetRegistry) Gen3() Subset {
	capacity := NumberDesc{Encoding: EncodingInteger, Min: 5, Max: 100, Step: 1}
	entities := batteryCurrentLimits(20)
	entities = append(entities,
		EntityDesc{Key: "forcetime_period_1_max_capacity", Name: "ForceTime Period 1 Max Capacity",
			Register: u16(Holding(RegForceTimePeriod1MaxCapacity)), Meta: PercentMeta, Spec: capacity},
		EntityDesc{Key: "forcetime_period_2_max_capacity", Name: "ForceTime Period 2 Max Capacity",
			Register: u16(Holding(RegForceTimePeriod2MaxCapacity)), Meta: PercentMeta, Spec: capacity},
		EntityDesc{Key: "export_energy_today", Name: "Today's Export Energy", Register: u32(Input(0x98)), Meta: EnergyMeta, Spec: scaled(0.01)},
		EntityDesc{Key: "import_energy_today", Name: "Today's Import Energy", Register: u32(Input(0x9A)), Meta: EnergyMeta, Spec: scaled(0.01)},
	)
	return Subset{
		Name:     "gen3",
		Requires: Gen3X1 | Gen3X3,
		Entities: entities,
	}
}

// Gen3X1 は第3世代単相機の設定値の読み返しです。
func (r SubsetRegistry) Gen3X1() Subset {
	return Subset{
		Name:     "gen3_x1",
		Requires: Gen3X1,
		Entities: []EntityDesc{
			{Key: "backup_gridcharge", Name: "Backup Gridcharge", Register: u16(Holding(0xE0)), Spec: enum(disabledEnabled)},
			{Key: "backup_charge_start", Name: "Backup Charge Start", Register: u16(Holding(0xE1)), Spec: clock},
			{Key: "backup_charge_end", Name: "Backup Charge End", Register: u16(Holding(0xE2)), Spec: clock},
			{Key: "was4777_power_manager", Name: "wAS4777 Power Manager", Register: u16(Holding(0xE3)), Meta: hidden(Metadata{}), Spec: enum(disabledEnabled)},
			{Key: "cloud_control", Name: "Cloud Control", Register: u16(Holding(0xE4)), Meta: hidden(Metadata{}), Spec: enum(disabledEnabled)},
			{Key: "global_mppt_function", Name: "Global MPPT Function", Register: u16(Holding(0xE5)), Meta: hidden(Metadata{}), Spec: enum(disabledEnabled)},
			{Key: "machine_style", Name: "Machine Style", Register: u16(Holding(0xE6)), Meta: hidden(Metadata{}),
				Spec: enum(map[int]string{0: "X-Hybrid", 1: "X-Retro Fit"})},
			{Key: "meter_function", Name: "Meter Function", Register: u16(Holding(0xE7)), Meta: hidden(Metadata{}), Spec: enum(disabledEnabled)},
			{Key: "meter_1_id", Name: "Meter 1 id", Register: u16(Holding(0xE8)), Meta: hidden(Metadata{}), Spec: plain},
			{Key: "meter_2_id", Name: "Meter 2 id", Register: u16(Holding(0xE9)), Meta: hidden(Metadata{}), Spec: plain},
			{Key: "power_control_timeout", Name: "Power Control Timeout", Register: u16(Holding(0xEA)), Meta: hidden(Metadata{}), Spec: plain},
			{Key: "ct_meter_setting", Name: "CT Meter Setting", Register: u16(Holding(0xEB)), Meta: hidden(Metadata{}),
				Spec: enum(map[int]string{0: "Meter", 1: "CT"})},
			{Key: "disch_cut_off_capacity_grid_mode", Name: "Discharge Cut Off Capacity Grid Mode", Register: u16(Holding(0xEC)),
				Meta: hidden(PercentMeta), Spec: plain},
			{Key: "disch_cut_off_point_different", Name: "Discharge Cut Off Point Different", Register: u16(Holding(0xED)),
				Meta: hidden(Metadata{}), Spec: enum(disabledEnabled)},
			{Key: "disch_cut_off_voltage_grid_mode", Name: "Discharge Cut Off Voltage Grid Mode", Register: u16(Holding(0xEE)),
				Meta: hidden(Metadata{Unit: "V"}), Spec: scaled(0.1)},
		},
	}
}

// Gen3X3 は第3世代三相機の相別計測値です。
func (r SubsetRegistry) Gen3X3() Subset {
	entities := []EntityDesc{
		{Key: "feedin_energy_total", Name: "Feedin Energy Total", Register: u32(Input(0x48)), Meta: EnergyMeta, Spec: scaled(0.01)},
		{Key: "grid_mode_runtime", Name: "Grid Mode Runtime", Register: u32(Input(0x8A)), Meta: hidden(HoursMeta), Spec: scaled(0.1)},
		{Key: "earth_detect_x3", Name: "Earth Detect X3", Register: u16(Holding(0xF8)), Meta: hidden(Metadata{}), Spec: enum(disabledEnabled)},
		{Key: "grid_service_x3", Name: "Grid Service X3", Register: u16(Holding(0xF9)), Meta: hidden(Metadata{}), Spec: enum(disabledEnabled)},
		{Key: "phase_power_balance_x3", Name: "Phase Power Balance X3", Register: u16(Holding(0xFA)), Spec: enum(disabledEnabled)},
	}
	phases := []struct {
		suffix string
		label  string
		grid   uint16 // voltage, current, power
		feedin uint16
	}{
		{"r", "R", 0x6A, 0x82},
		{"s", "S", 0x6E, 0x84},
		{"t", "T", 0x72, 0x86},
	}
	for _, p := range phases {
		entities = append(entities,
			EntityDesc{Key: "grid_voltage_" + p.suffix, Name: "Inverter Voltage " + p.label, Register: u16(Input(p.grid)), Meta: VoltageMeta, Spec: scaled(0.1)},
			EntityDesc{Key: "grid_current_" + p.suffix, Name: "Inverter Current " + p.label, Register: s16(Input(p.grid + 1)), Meta: CurrentMeta, Spec: scaled(0.1)},
			EntityDesc{Key: "grid_power_" + p.suffix, Name: "Inverter Power " + p.label, Register: s16(Input(p.grid + 2)), Meta: PowerMeta, Spec: plain},
			EntityDesc{Key: "feedin_power_" + p.suffix, Name: "Measured Power " + p.label, Register: s32(Input(p.feedin)), Meta: PowerMeta, Spec: plain},
		)
	}
	return Subset{
		Name:     "gen3_x3",
		Requires: Gen3X3,
		Entities: entities,
	}
}
