package sht3x

import "strings"

// Status register bits. Bit 1 is inverted on decode: the register stores
// "last command NOT processed".
const (
	statusChecksumFailed uint16 = 1 << 0
	statusCommandFailed  uint16 = 1 << 1
	statusSystemReset    uint16 = 1 << 4
	statusAlertT         uint16 = 1 << 10
	statusAlertRH        uint16 = 1 << 11
	statusHeater         uint16 = 1 << 13
	statusAlertPending   uint16 = 1 << 15
)

// Status is the decoded 16-bit status register. It is a value object; decode
// a fresh one rather than mutating.
type Status struct {
	ChecksumFailed       bool // CRC of the last write was invalid
	LastCommandProcessed bool // last command executed successfully
	SystemReset          bool // reset detected since the last clear
	TemperatureAlert     bool
	HumidityAlert        bool
	HeaterOn             bool
	AlertPending         bool
}

// DecodeStatus interprets a raw status word. Reserved bits are ignored.
func DecodeStatus(word uint16) Status {
	return Status{
		ChecksumFailed:       word&statusChecksumFailed != 0,
		LastCommandProcessed: word&statusCommandFailed == 0,
		SystemReset:          word&statusSystemReset != 0,
		TemperatureAlert:     word&statusAlertT != 0,
		HumidityAlert:        word&statusAlertRH != 0,
		HeaterOn:             word&statusHeater != 0,
		AlertPending:         word&statusAlertPending != 0,
	}
}

// String lists the noteworthy flags, or "ok" when nothing is flagged.
func (s Status) String() string {
	parts := make([]string, 0, 7)
	if s.ChecksumFailed {
		parts = append(parts, "checksum_failed")
	}
	if !s.LastCommandProcessed {
		parts = append(parts, "command_failed")
	}
	if s.SystemReset {
		parts = append(parts, "system_reset")
	}
	if s.TemperatureAlert {
		parts = append(parts, "temperature_alert")
	}
	if s.HumidityAlert {
		parts = append(parts, "humidity_alert")
	}
	if s.HeaterOn {
		parts = append(parts, "heater_on")
	}
	if s.AlertPending {
		parts = append(parts, "alert_pending")
	}
	if len(parts) == 0 {
		return "ok"
	}
	return strings.Join(parts, ",")
}
