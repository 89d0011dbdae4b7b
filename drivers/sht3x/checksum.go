package sht3x

// Sensirion CRC-8: polynomial 0x31, initial value 0xFF, no reflection, no
// final XOR. Payloads are two bytes, so a bitwise implementation beats a
// lookup table here.

func crc8(data []byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Checksum computes the CRC over one register payload.
func Checksum(msb, lsb byte) byte {
	d := [2]byte{msb, lsb}
	return crc8(d[:])
}

// Verify checks both CRC bytes of a 6-byte measurement frame laid out as
// [temp_msb, temp_lsb, temp_crc, hum_msb, hum_lsb, hum_crc]. A mismatch is
// reported as a *ChecksumError tagged with the quantity that failed.
func Verify(buf [6]byte) error {
	if c := Checksum(buf[0], buf[1]); c != buf[2] {
		return &ChecksumError{
			Subject:    SubjectTemperature,
			Data:       [2]byte{buf[0], buf[1]},
			Expected:   buf[2],
			Calculated: c,
		}
	}
	if c := Checksum(buf[3], buf[4]); c != buf[5] {
		return &ChecksumError{
			Subject:    SubjectHumidity,
			Data:       [2]byte{buf[3], buf[4]},
			Expected:   buf[5],
			Calculated: c,
		}
	}
	return nil
}
