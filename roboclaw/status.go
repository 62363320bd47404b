package roboclaw

import "fmt"

// Direction reports which way an encoder is counting.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "Backward"
	}
	return "Forward"
}

// BatteryKind selects which battery voltage to read.
type BatteryKind int

const (
	Main BatteryKind = iota
	Logic
)

// Status is the decoded controller error/status bitmask. It is modeled as
// an enum with a Display projection rather than a bare string so callers
// compare by variant (per the Design Notes), not by formatted text.
type Status uint32

// Status bit values, decoded from the 32-bit GETERROR bitmask. The full
// superset is carried from original_source's RoboClaw.py rather than
// re-derived from spec.md's summary table.
const (
	StatusNormal                   Status = 0x00000000
	StatusEStop                    Status = 0x00000001
	StatusTemperatureError         Status = 0x00000002
	StatusTemperature2Error        Status = 0x00000004
	StatusMainVoltageHighError     Status = 0x00000008
	StatusLogicVoltageHighError    Status = 0x00000010
	StatusLogicVoltageLowError     Status = 0x00000020
	StatusM1DriverFaultError       Status = 0x00000040
	StatusM2DriverFaultError       Status = 0x00000080
	StatusM1SpeedError             Status = 0x00000100
	StatusM2SpeedError             Status = 0x00000200
	StatusM1PositionError          Status = 0x00000400
	StatusM2PositionError          Status = 0x00000800
	StatusM1CurrentError           Status = 0x00001000
	StatusM2CurrentError           Status = 0x00002000
	StatusM1OverCurrentWarning     Status = 0x00010000
	StatusM2OverCurrentWarning     Status = 0x00020000
	StatusMainVoltageHighWarning   Status = 0x00040000
	StatusMainVoltageLowWarning    Status = 0x00080000
	StatusTemperatureWarning       Status = 0x00100000
	StatusTemperature2Warning      Status = 0x00200000
	StatusS4SignalTriggered        Status = 0x00400000
	StatusS5SignalTriggered        Status = 0x00800000
	StatusSpeedErrorLimitWarning   Status = 0x01000000
	StatusPositionErrorLimitWarning Status = 0x02000000
)

var statusNames = map[Status]string{
	StatusNormal:                   "Normal",
	StatusEStop:                    "E-Stop",
	StatusTemperatureError:         "Temperature Error",
	StatusTemperature2Error:        "Temperature 2 Error",
	StatusMainVoltageHighError:     "Main Voltage High Error",
	StatusLogicVoltageHighError:    "Logic Voltage High Error",
	StatusLogicVoltageLowError:     "Logic Voltage Low Error",
	StatusM1DriverFaultError:       "M1 Driver Fault Error",
	StatusM2DriverFaultError:       "M2 Driver Fault Error",
	StatusM1SpeedError:             "M1 Speed Error",
	StatusM2SpeedError:             "M2 Speed Error",
	StatusM1PositionError:          "M1 Position Error",
	StatusM2PositionError:          "M2 Position Error",
	StatusM1CurrentError:           "M1 Current Error",
	StatusM2CurrentError:           "M2 Current Error",
	StatusM1OverCurrentWarning:     "M1 Over Current Warning",
	StatusM2OverCurrentWarning:     "M2 Over Current Warning",
	StatusMainVoltageHighWarning:   "Main Voltage High Warning",
	StatusMainVoltageLowWarning:    "Main Voltage Low Warning",
	StatusTemperatureWarning:       "Temperature Warning",
	StatusTemperature2Warning:      "Temperature 2 Warning",
	StatusS4SignalTriggered:        "S4 Signal Triggered",
	StatusS5SignalTriggered:        "S5 Signal Triggered",
	StatusSpeedErrorLimitWarning:   "Speed Error Limit Warning",
	StatusPositionErrorLimitWarning: "Position Error Limit Warning",
}

// String renders the status the way read_status's original string table
// does, falling back to a hex-coded unknown-error label for any bit
// pattern not in the table (unlike the Python original, which formats the
// fallback in decimal — kept as hex here since every other unknown-code
// fallback in this protocol, e.g. ReadSPinModes, is hex).
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown Error: 0x%08X", uint32(s))
}

func decodeStatus(raw [4]byte) Status {
	return Status(uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3]))
}

// EncoderPosition is the decoded response of ReadEncoderPosition.
type EncoderPosition struct {
	Count      int32
	Underflow  bool
	Overflow   bool
	Direction  Direction
}

func decodeEncoderPosition(count int32, status byte) EncoderPosition {
	return EncoderPosition{
		Count:     count,
		Underflow: status&0x01 != 0,
		Direction: directionFromBit(status&0x02 != 0),
		Overflow:  status&0x04 != 0,
	}
}

func directionFromBit(backward bool) Direction {
	if backward {
		return Backward
	}
	return Forward
}

// EncoderSpeed is the decoded response of ReadEncoderSpeed.
type EncoderSpeed struct {
	Speed     uint32
	Direction Direction
}

// SPinModes is the decoded response of ReadSPinModes.
type SPinModes struct {
	S3 string
	S4 string
	S5 string
}

var s3Modes = map[byte]string{
	0x00: "Default", 0x01: "E-Stop", 0x81: "E-Stop(Latching)",
	0x14: "Voltage Clamp", 0x24: "RS485 Direction", 0x84: "Encoder toggle",
	0x04: "Brake", 0xE2: "Home(Auto)", 0x62: "Home(User)",
	0xF2: "Home(Auto)/Limit(Fwd)", 0x72: "Home(User)/Limit(Fwd)",
	0x12: "Limit(Fwd)", 0x22: "Limit(Rev)", 0x32: "Limit(Both)",
}

var s4Modes = map[byte]string{
	0x00: "Disabled", 0x01: "E-Stop", 0x81: "E-Stop(Latching)",
	0x14: "Voltage Clamp", 0x04: "Brake", 0x62: "Home(User)",
	0xF2: "Home(Auto)/Limit(Fwd)", 0x72: "Home(User)/Limit(Fwd)",
	0x12: "Limit(Fwd)", 0x22: "Limit(Rev)", 0x32: "Limit(Both)",
}

var s5Modes = map[byte]string{
	0x00: "Disabled", 0x01: "E-Stop", 0x81: "E-Stop(Latching)",
	0x14: "Voltage Clamp", 0x62: "Home(User)",
	0xF2: "Home(Auto)/Limit(Fwd)", 0x72: "Home(User)/Limit(Fwd)",
}

func lookupMode(table map[byte]string, raw byte) string {
	if name, ok := table[raw]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (0x%02X)", raw)
}

func decodeSPinModes(s3, s4, s5 byte) SPinModes {
	return SPinModes{
		S3: lookupMode(s3Modes, s3),
		S4: lookupMode(s4Modes, s4),
		S5: lookupMode(s5Modes, s5),
	}
}

// StandardConfig is the decoded 16-bit GETCONFIG bitmask. Field groups
// mirror RoboClaw.py's decode_standard_config exactly: exactly one of the
// SerialMode* fields is true, exactly one BatteryMode*, exactly one
// BaudRate*, exactly one PacketAddress*.
type StandardConfig struct {
	SerialModeRC     bool
	SerialModeAnalog bool
	SerialModeSimple bool
	SerialModePacket bool

	BatteryMode string // "Off", "Auto", "2 Cell", ... "7 Cell"
	BaudRate    int    // 2400 .. 460800

	FlipSwitch    bool
	PacketAddress byte // 0x80 .. 0x87

	SlaveMode     bool
	RelayMode     bool
	SwapEncoders  bool
	SwapButtons   bool
	MultiUnitMode bool
}

var batteryModeNames = map[uint16]string{
	0x0000: "Off", 0x0004: "Auto", 0x0008: "2 Cell", 0x000C: "3 Cell",
	0x0010: "4 Cell", 0x0014: "5 Cell", 0x0018: "6 Cell", 0x001C: "7 Cell",
}

var baudRateValues = map[uint16]int{
	0x0000: 2400, 0x0020: 9600, 0x0040: 19200, 0x0060: 38400,
	0x0080: 57600, 0x00A0: 115200, 0x00C0: 230400, 0x00E0: 460800,
}

func decodeStandardConfig(config uint16) StandardConfig {
	serialMode := config & 0x0003
	batteryMode := config & 0x001C
	baudBits := config & 0x00E0
	packetAddr := byte((config & 0x0700) >> 8)

	return StandardConfig{
		SerialModeRC:     serialMode == 0x0000,
		SerialModeAnalog: serialMode == 0x0001,
		SerialModeSimple: serialMode == 0x0002,
		SerialModePacket: serialMode == 0x0003,

		BatteryMode: batteryModeNames[batteryMode],
		BaudRate:    baudRateValues[baudBits],

		FlipSwitch:    config&0x0100 != 0,
		PacketAddress: 0x80 + packetAddr,

		SlaveMode:     config&0x0800 != 0,
		RelayMode:     config&0x1000 != 0,
		SwapEncoders:  config&0x2000 != 0,
		SwapButtons:   config&0x4000 != 0,
		MultiUnitMode: config&0x8000 != 0,
	}
}

// AsMap renders the decoded config as a flag->bool map, matching the shape
// of RoboClaw.py's decode_standard_config for callers (and tests) that want
// to assert "exactly one true entry per group" without naming every field.
func (c StandardConfig) AsMap() map[string]bool {
	m := map[string]bool{
		"RC Mode":            c.SerialModeRC,
		"Analog Mode":        c.SerialModeAnalog,
		"Simple Serial Mode": c.SerialModeSimple,
		"Packet Serial Mode": c.SerialModePacket,
		"FlipSwitch":         c.FlipSwitch,
		"Slave Mode":         c.SlaveMode,
		"Relay Mode":         c.RelayMode,
		"Swap Encoders":      c.SwapEncoders,
		"Swap Buttons":       c.SwapButtons,
		"Multi-Unit Mode":    c.MultiUnitMode,
	}
	for _, name := range []string{"Off", "Auto", "2 Cell", "3 Cell", "4 Cell", "5 Cell", "6 Cell", "7 Cell"} {
		m["Battery Mode "+name] = c.BatteryMode == name
	}
	for _, rate := range []int{2400, 9600, 19200, 38400, 57600, 115200, 230400, 460800} {
		m[fmt.Sprintf("BaudRate %d", rate)] = c.BaudRate == rate
	}
	for i := 0; i < 8; i++ {
		addr := byte(0x80 + i)
		m[fmt.Sprintf("Packet Address 0x%02X", addr)] = c.PacketAddress == addr
	}
	return m
}
