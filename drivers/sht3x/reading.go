package sht3x

// Reading is one verified measurement in the configured temperature unit.
// Humidity is a nominal 0..100 percentage; values may run slightly outside
// that range at the extremes and are deliberately not clamped.
type Reading struct {
	Temperature float32
	Humidity    float32
}

const rawSpan = 65535.0

// Conversion pairs per the datasheet: physical = mul*(raw/65535) - sub.
func (u Unit) pair() (sub, mul float32) {
	if u == Fahrenheit {
		return 49, 315
	}
	return 45, 175
}

// Symbol returns the printable unit suffix.
func (u Unit) Symbol() string {
	if u == Fahrenheit {
		return "°F"
	}
	return "°C"
}

func rawToTemperature(raw uint16, u Unit) float32 {
	sub, mul := u.pair()
	return mul*(float32(raw)/rawSpan) - sub
}

func rawToHumidity(raw uint16) float32 {
	return 100 * float32(raw) / rawSpan
}

func temperatureToRaw(t float32, u Unit) uint16 {
	sub, mul := u.pair()
	f := (t + sub) / mul * rawSpan
	if f < 0 {
		return 0
	}
	if f > rawSpan {
		return 65535
	}
	return uint16(f)
}

func humidityToRaw(h float32) uint16 {
	f := h / 100 * rawSpan
	if f < 0 {
		return 0
	}
	if f > rawSpan {
		return 65535
	}
	return uint16(f)
}

// ToReading verifies a raw 6-byte measurement frame and converts it. Both raw
// values are the unsigned big-endian interpretation: temperature from bytes
// 0..1, humidity from bytes 3..4.
func ToReading(buf [6]byte, u Unit) (Reading, error) {
	if err := Verify(buf); err != nil {
		return Reading{}, err
	}
	rawT := uint16(buf[0])<<8 | uint16(buf[1])
	rawH := uint16(buf[3])<<8 | uint16(buf[4])
	return Reading{
		Temperature: rawToTemperature(rawT, u),
		Humidity:    rawToHumidity(rawH),
	}, nil
}
