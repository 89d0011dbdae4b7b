package conv

import "envsense-go/x/mathx"

// DeciC converts degrees (Celsius or Fahrenheit) to tenths of a degree,
// rounding half away from zero and clamping to the int16 range. Readings are
// published as fixed-point integers so MCU builds never format floats.
func DeciC(deg float32) int16 {
	v := deg * 10
	if v >= 0 {
		v += 0.5
	} else {
		v -= 0.5
	}
	return int16(mathx.Clamp(v, -32768, 32767))
}

// RHx100 converts percent relative humidity to hundredths of a percent,
// clamped to 0..10000.
func RHx100(pct float32) uint16 {
	return uint16(mathx.Clamp(pct*100+0.5, 0, 10000))
}
