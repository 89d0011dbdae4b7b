package sht3x

// Alert limit registers. The sensor drives its ALERT pin from two hysteresis
// pairs: the alert raises above HighSet / below LowSet and clears again past
// HighClear / LowClear.
type AlertLimit uint8

const (
	AlertHighSet AlertLimit = iota
	AlertHighClear
	AlertLowClear
	AlertLowSet
)

func (l AlertLimit) String() string {
	switch l {
	case AlertHighSet:
		return "high_set"
	case AlertHighClear:
		return "high_clear"
	case AlertLowClear:
		return "low_clear"
	case AlertLowSet:
		return "low_set"
	default:
		return "unknown"
	}
}

// Threshold is one alert limit in raw sensor counts. The packed register
// keeps only the top 7 humidity bits and top 9 temperature bits, so values
// round-trip with reduced precision.
type Threshold struct {
	RawHumidity    uint16
	RawTemperature uint16
}

// NewThreshold converts physical values into raw counts. The temperature is
// interpreted in the given unit.
func NewThreshold(temperature, humidity float32, u Unit) Threshold {
	return Threshold{
		RawHumidity:    humidityToRaw(humidity),
		RawTemperature: temperatureToRaw(temperature, u),
	}
}

// Temperature returns the limit in the given unit.
func (t Threshold) Temperature(u Unit) float32 { return rawToTemperature(t.RawTemperature, u) }

// Humidity returns the limit as a percentage.
func (t Threshold) Humidity() float32 { return rawToHumidity(t.RawHumidity) }

// packed layout: humidity[15:9] | temperature[8:0].
func (t Threshold) pack() uint16 {
	return t.RawHumidity&0xFE00 | t.RawTemperature&0xFF80>>7
}

func unpackThreshold(w uint16) Threshold {
	return Threshold{
		RawHumidity:    w & 0xFE00,
		RawTemperature: w & 0x01FF << 7,
	}
}

// ReadAlertLimit fetches one alert limit register.
func (d *device) ReadAlertLimit(l AlertLimit) (Threshold, error) {
	if l > AlertLowSet {
		return Threshold{}, ErrNoSuchLimit
	}
	var buf [3]byte
	if err := d.writeRead(alertReadCmd[l], buf[:]); err != nil {
		return Threshold{}, err
	}
	if c := Checksum(buf[0], buf[1]); c != buf[2] {
		return Threshold{}, &ChecksumError{
			Subject:    SubjectAlert,
			Data:       [2]byte{buf[0], buf[1]},
			Expected:   buf[2],
			Calculated: c,
		}
	}
	return unpackThreshold(uint16(buf[0])<<8 | uint16(buf[1])), nil
}

// WriteAlertLimit programs one alert limit register. The packed word is sent
// with its CRC appended.
func (d *device) WriteAlertLimit(l AlertLimit, t Threshold) error {
	if l > AlertLowSet {
		return ErrNoSuchLimit
	}
	w := t.pack()
	msb, lsb := byte(w>>8), byte(w)
	return d.write(alertWriteCmd[l], msb, lsb, Checksum(msb, lsb))
}
