package solax

const (
	// 書き込みレジスタ (holding)
	RegRunModeSelect          uint16 = 0x1F
	RegBatteryMinimumCapacity uint16 = 0x20
	RegGridChargeSelect       uint16 = 0x40
	RegBatteryAwaken          uint16 = 0x56
)

// RunModes は運転モードの選択肢です (書き込みと読み返しで共通)。
var RunModes = map[int]string{
	0: "Self Use Mode",
	1: "Force Time Use",
	2: "Back Up Mode",
	3: "Feedin Priority",
}

var GridChargeModes = map[int]string{
	0: "Both Forbidden",
	1: "Period 1 Allowed",
	2: "Period 2 Allowed",
	3: "Both Allowed",
}

var inverterStates = map[int]string{
	0:  "Waiting",
	1:  "Checking",
	2:  "Normal Mode",
	3:  "Off Mode",
	4:  "Permanent Fault Mode",
	5:  "Update Mode",
	6:  "EPS Check Mode",
	7:  "EPS Mode",
	8:  "Self Test",
	9:  "Idle Mode",
	10: "Standby",
}

// Base は全機種に共通のエンティティです。
func (r SubsetRegistry) Base() Subset {
	return Subset{
		Name: "base",
		Entities: []EntityDesc{
			// numbers / selects
			{Key: "battery_minimum_capacity", Name: "Battery Minimum Capacity", Register: u16(Holding(RegBatteryMinimumCapacity)),
				Meta: PercentMeta, Spec: NumberDesc{Encoding: EncodingInteger, Min: 0, Max: 99, Step: 1}},
			{Key: "run_mode_select", Name: "Run Mode Select", Register: u16(Holding(RegRunModeSelect)),
				Spec: SelectDesc{Options: RunModes}},
			{Key: "grid_charge_select", Name: "Grid Charge Select", Register: u16(Holding(RegGridChargeSelect)),
				Spec: SelectDesc{Options: GridChargeModes}},
			{Key: "battery_awaken", Name: "Battery Awaken", Register: u16(Holding(RegBatteryAwaken)),
				Spec: SelectDesc{Options: map[int]string{0: "Disable", 1: "Enable"}}},

			// 機器情報・設定の読み返し (holding)
			{Key: "seriesnumber", Name: "Series Number", Register: text(Holding(0x00), 7), Meta: hidden(Metadata{}), Spec: ascii},
			{Key: "modulename", Name: "Module Name", Register: text(Holding(0x0E), 7), Meta: hidden(Metadata{}), Spec: ascii},
			{Key: "firmwareversion_invertermaster", Name: "Firmware Version Inverter Master", Register: u16(Holding(0x7D)), Meta: hidden(Metadata{}), Spec: plain},
			{Key: "firmwareversion_modbustcp_major", Name: "Firmware Version Modbus TCP Major", Register: u16(Holding(0x7F)), Meta: hidden(Metadata{}), Spec: plain},
			{Key: "firmwareversion_modbustcp_minor", Name: "Firmware Version Modbus TCP Minor", Register: u16(Holding(0x80)), Meta: hidden(Metadata{}), Spec: plain},
			{Key: "firmwareversion_manager", Name: "Firmware Version Manager", Register: u16(Holding(0x83)), Meta: hidden(Metadata{}), Spec: plain},
			{Key: "myaddress", Name: "My address", Register: u16(Holding(0x84)), Meta: hidden(Metadata{}), Spec: plain},
			{Key: "charger_use_mode", Name: "Charger Use Mode", Register: u16(Holding(0x8B)), Spec: enum(RunModes)},
			{Key: "battery_min_capacity", Name: "Battery Minimum Capacity", Register: u16(Holding(0x8C)), Meta: PercentMeta, Spec: plain},
			{Key: "battery_type", Name: "Battery Type", Register: u16(Holding(0x8D)), Meta: hidden(Metadata{}),
				Spec: enum(map[int]string{0: "Lead Acid", 1: "Lithium"})},
			{Key: "battery_discharge_cut_off_voltage", Name: "Battery Discharge Cut Off Voltage", Register: u16(Holding(0x90)),
				Meta: hidden(Metadata{Unit: "V"}), Spec: scaled(0.1)},
			{Key: "battery_charge_max_current", Name: "Battery Charge Max Current", Register: u16(Holding(0x91)), Meta: Metadata{Unit: "A"}, Spec: scaled(0.1)},
			{Key: "battery_discharge_max_current", Name: "Battery Discharge Max Current", Register: u16(Holding(0x92)), Meta: Metadata{Unit: "A"}, Spec: scaled(0.1)},
			{Key: "charger_start_time_1", Name: "Start Time 1", Register: u16(Holding(0x97)), Spec: clock},
			{Key: "charger_end_time_1", Name: "End Time 1", Register: u16(Holding(0x98)), Spec: clock},
			{Key: "charger_start_time_2", Name: "Start Time 2", Register: u16(Holding(0x99)), Spec: clock},
			{Key: "charger_end_time_2", Name: "End Time 2", Register: u16(Holding(0x9A)), Spec: clock},
			{Key: "allow_grid_charge", Name: "Allow Grid Charge", Register: u16(Holding(0x9C)), Spec: enum(GridChargeModes)},
			{Key: "registration_code", Name: "Registration Code", Register: text(Holding(0xAA), 5), Meta: hidden(Metadata{}), Spec: ascii},
			{Key: "export_control_factory_limit", Name: "Export Control Factory Limit", Register: u16(Holding(0xB5)), Meta: hidden(Metadata{Unit: "W"}), Spec: plain},
			{Key: "export_control_user_limit", Name: "Export Control User Limit", Register: u16(Holding(0xB6)), Meta: hidden(Metadata{Unit: "W"}), Spec: plain},
			{Key: "language", Name: "Language", Register: u16(Holding(0xBA)), Meta: hidden(Metadata{}), Spec: plain},
			{Key: "lock_state", Name: "Lock State", Register: u16(Holding(0xBC)), Meta: hidden(Metadata{}),
				Spec: enum(map[int]string{0: "Locked", 1: "Unlocked"})},

			// 計測値 (input)
			{Key: "inverter_voltage", Name: "Inverter Voltage", Register: u16(Input(0x00)), Meta: VoltageMeta, Spec: scaled(0.1)},
			{Key: "inverter_current", Name: "Inverter Current", Register: s16(Input(0x01)), Meta: CurrentMeta, Spec: scaled(0.1)},
			{Key: "inverter_load", Name: "Inverter Power", Register: s16(Input(0x02)), Meta: PowerMeta, Spec: plain},
			{Key: "pv_voltage_1", Name: "PV Voltage 1", Register: u16(Input(0x03)), Meta: VoltageMeta, Spec: scaled(0.1)},
			{Key: "pv_voltage_2", Name: "PV Voltage 2", Register: u16(Input(0x04)), Meta: VoltageMeta, Spec: scaled(0.1)},
			{Key: "pv_current_1", Name: "PV Current 1", Register: u16(Input(0x05)), Meta: CurrentMeta, Spec: scaled(0.1)},
			{Key: "pv_current_2", Name: "PV Current 2", Register: u16(Input(0x06)), Meta: CurrentMeta, Spec: scaled(0.1)},
			{Key: "grid_frequency", Name: "Inverter Frequency", Register: u16(Input(0x07)), Meta: FrequencyMeta, Spec: scaled(0.01)},
			{Key: "inverter_temperature", Name: "Inverter Temperature", Register: s16(Input(0x08)), Meta: TemperatureMeta, Spec: plain},
			{Key: "run_mode", Name: "Run Mode", Register: u16(Input(0x09)), Spec: enum(inverterStates)},
			{Key: "pv_power_1", Name: "PV Power 1", Register: u16(Input(0x0A)), Meta: PowerMeta, Spec: plain},
			{Key: "pv_power_2", Name: "PV Power 2", Register: u16(Input(0x0B)), Meta: PowerMeta, Spec: plain},
			{Key: "battery_voltage_charge", Name: "Battery Voltage Charge", Register: s16(Input(0x14)), Meta: VoltageMeta, Spec: scaled(0.1)},
			{Key: "battery_current_charge", Name: "Battery Current Charge", Register: s16(Input(0x15)), Meta: CurrentMeta, Spec: scaled(0.1)},
			{Key: "battery_power_charge", Name: "Battery Power Charge", Register: s16(Input(0x16)), Meta: PowerMeta, Spec: plain},
			{Key: "bms_connect_state", Name: "BMS Connect State", Register: u16(Input(0x17)),
				Spec: enum(map[int]string{0: "Disconnected", 1: "Connected"})},
			{Key: "battery_temperature", Name: "Battery Temperature", Register: s16(Input(0x18)), Meta: TemperatureMeta, Spec: plain},
			{Key: "normal_runtime", Name: "Normal Runtime", Register: u16(Input(0x19)), Meta: hidden(HoursMeta), Spec: plain},
			{Key: "battery_capacity_charge", Name: "Battery Capacity", Register: u16(Input(0x1C)),
				Meta: Metadata{Unit: "%", DeviceClass: "battery"}, Spec: plain},
			{Key: "output_energy_charge_today", Name: "Battery Output Energy Today", Register: u16(Input(0x20)), Meta: EnergyMeta, Spec: scaled(0.1)},
			{Key: "input_energy_charge_today", Name: "Battery Input Energy Today", Register: u16(Input(0x23)), Meta: EnergyMeta, Spec: scaled(0.1)},
			{Key: "bms_charge_max_current", Name: "BMS Charge Max Current", Register: u16(Input(0x24)), Meta: hidden(Metadata{Unit: "A"}), Spec: scaled(0.1)},
			{Key: "bms_discharge_max_current", Name: "BMS Discharge Max Current", Register: u16(Input(0x25)), Meta: hidden(Metadata{Unit: "A"}), Spec: scaled(0.1)},
			{Key: "feedin_power", Name: "Measured Power", Register: s32(Input(0x46)), Meta: PowerMeta, Spec: plain},
			{Key: "consumed_energy_total", Name: "Consumed Energy Total", Register: u32(Input(0x4A)), Meta: hidden(EnergyMeta), Spec: scaled(0.01)},
			{Key: "energy_today", Name: "Today's Yield", Register: u16(Input(0x50)),
				Meta: Metadata{Unit: "kWh", DeviceClass: "energy", StateClass: "total_increasing"}, Spec: scaled(0.1)},
			{Key: "total_energy_to_grid", Name: "Total Energy To Grid", Register: u32(Input(0x52)), Meta: hidden(EnergyMeta), Spec: scaled(0.1)},
			{Key: "bus_volt", Name: "Bus Volt", Register: u16(Input(0x64)), Meta: hidden(VoltageMeta), Spec: scaled(0.1)},
			{Key: "dc_fault_val", Name: "DC Fault Val", Register: u16(Input(0x65)), Meta: hidden(Metadata{}), Spec: plain},
			{Key: "overload_fault_val", Name: "Overload Fault Val", Register: u16(Input(0x66)), Meta: hidden(Metadata{}), Spec: plain},
			{Key: "battery_volt_fault_val", Name: "Battery Volt Fault Val", Register: u16(Input(0x67)), Meta: hidden(Metadata{}), Spec: plain},
			{Key: "time_count_down", Name: "Time Count Down", Register: u16(Input(0x68)), Meta: hidden(Metadata{}), Spec: plain},
			{Key: "solar_energy_total", Name: "Total Solar Energy", Register: u32(Input(0x94)), Meta: hidden(EnergyMeta), Spec: scaled(0.1)},
			{Key: "solar_energy_today", Name: "Today's Solar Energy", Register: u16(Input(0x96)), Meta: EnergyMeta, Spec: scaled(0.1)},

			// 計算値
			{Key: "pv_total_power", Name: "PV Total Power", Meta: PowerMeta, Spec: derived(DeriveSum, "pv_power_1", "pv_power_2")},
			{Key: "grid_export", Name: "Grid Export", Meta: PowerMeta, Spec: derived(DerivePositive, "feedin_power")},
			{Key: "grid_import", Name: "Grid Import", Meta: PowerMeta, Spec: derived(DeriveNegative, "feedin_power")},
			{Key: "house_load", Name: "House Load", Meta: PowerMeta, Spec: derived(DeriveDifference, "inverter_load", "feedin_power")},
		},
	}
}
