package types

// ------------------------
// Temperature & humidity
// ------------------------

// Info.Detail published under hal/capability/<kind>/<id>/info (retained).

type TemperatureInfo struct {
	Sensor string `json:"sensor"` // "sht3x"
	Addr   uint16 `json:"addr"`   // I2C address
	Bus    string `json:"bus"`    // "i2c0", "sim0", ...
}

type HumidityInfo struct {
	Sensor string `json:"sensor"`
	Addr   uint16 `json:"addr"`
	Bus    string `json:"bus"`
}

// Value payloads published under hal/capability/<kind>/<id>/value.
// Fixed-point, small types to suit TinyGo.

type TemperatureValue struct {
	// Tenths of a degree (e.g. 231 => 23.1°).
	DeciC int16 `json:"deci_c"`
}

type HumidityValue struct {
	// Hundredths of %RH (0..10000 for 0..100.00%).
	RHx100 uint16 `json:"rh_x100"`
}

// EnvReading is the read_now reply: both quantities from one frame.
type EnvReading struct {
	TempDeci int16  `json:"temp_deci"`
	RHx100   uint16 `json:"rh_x100"`
	Unit     string `json:"unit"` // "celsius" or "fahrenheit"
	TS       int64  `json:"ts_ms"`
}

// SensorStatus is the status verb reply, decoded from the sensor's status
// register. Polarity is wire-friendly: true means the condition is present.
type SensorStatus struct {
	ChecksumFailed   bool `json:"checksum_failed"`
	CommandFailed    bool `json:"command_failed"`
	SystemReset      bool `json:"system_reset"`
	TemperatureAlert bool `json:"temperature_alert"`
	HumidityAlert    bool `json:"humidity_alert"`
	HeaterOn         bool `json:"heater_on"`
	AlertPending     bool `json:"alert_pending"`
}

// ------------------------
// History
// ------------------------

// HistoryPoint is one buffered sample. V carries DeciC for temperature
// capabilities and RHx100 for humidity ones.
type HistoryPoint struct {
	TS int64 `json:"ts_ms"`
	V  int32 `json:"v"`
}

type History struct {
	Points []HistoryPoint `json:"points"`
}

// ------------------------
// Control payloads
// ------------------------

type SetRate struct {
	PeriodMs int `json:"period_ms"`
}

type SetHeater struct {
	On bool `json:"on"`
}

type SetUnit struct {
	Unit string `json:"unit"` // "celsius" or "fahrenheit"
}

type HistoryReq struct {
	N int `json:"n,omitempty"` // 0 => everything buffered
}
