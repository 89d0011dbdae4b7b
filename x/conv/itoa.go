package conv

// Allocation-free decimal rendering into caller-provided buffers. Digits are
// written into the tail of buf and the used slice is returned; a 20-byte
// buffer fits any uint64, 21 bytes any int64.

// Utoa renders an unsigned value in base 10.
func Utoa(buf []byte, n uint64) []byte {
	i := len(buf)
	if i == 0 {
		return buf
	}
	if n == 0 {
		i--
		buf[i] = '0'
		return buf[i:]
	}
	for n > 0 && i > 0 {
		i--
		buf[i] = '0' + byte(n%10)
		n /= 10
	}
	return buf[i:]
}

// Itoa renders a signed value in base 10.
func Itoa(buf []byte, n int64) []byte {
	if n >= 0 {
		return Utoa(buf, uint64(n))
	}
	s := Utoa(buf, uint64(-n))
	if len(s) < len(buf) {
		i := len(buf) - len(s) - 1
		buf[i] = '-'
		return buf[i:]
	}
	return s
}
