package mathx

// RoundDiv divides with round-to-nearest for unsigned operands. Division by
// zero yields zero rather than trapping; callers validate separately.
func RoundDiv[T ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64](a, b T) T {
	if b == 0 {
		return 0
	}
	return (a + b/2) / b
}

// LerpU16 interpolates from a towards b by t/65535, using 32-bit
// intermediates so the multiply cannot overflow.
func LerpU16(a, b, t uint16) uint16 {
	span := int32(b) - int32(a)
	v := int32(a) + span*int32(t)/65535
	return uint16(Clamp(v, 0, 65535))
}

// MapU16 rescales x from [inMin,inMax] to [outMin,outMax], clamping inputs
// outside the source range.
func MapU16(x, inMin, inMax, outMin, outMax uint16) uint16 {
	if inMax == inMin {
		return outMin
	}
	if x <= inMin {
		return outMin
	}
	if x >= inMax {
		return outMax
	}
	num := uint32(x-inMin) * uint32(outMax-outMin)
	return outMin + uint16(num/uint32(inMax-inMin))
}
