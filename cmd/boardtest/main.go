//go:build rp2040 || rp2350

// cmd/boardtest/main.go
//
// Bring-up tool for a freshly wired board: finds the sensor on I2C0, dumps
// the raw status word, then prints a reading every two seconds. All output
// goes through the allocation-free conv helpers so the binary stays small.
package main

import (
	"time"

	"machine"

	"envsense-go/drivers/sht3x"
	"envsense-go/x/conv"
)

const readEvery = 2 * time.Second

func main() {
	time.Sleep(2 * time.Second) // let USB serial enumerate

	println("boardtest: configuring i2c0")
	err := machine.I2C0.Configure(machine.I2CConfig{
		SDA:       machine.I2C0_SDA_PIN,
		SCL:       machine.I2C0_SCL_PIN,
		Frequency: 400_000,
	})
	if err != nil {
		println("boardtest: i2c0 configure failed:", err.Error())
		return
	}

	addr, ok := probe(machine.I2C0)
	if !ok {
		println("boardtest: no sensor on 0x44 or 0x45; check wiring")
		return
	}
	printHexWord("boardtest: sensor at addr", uint16(addr))

	// Raw status word first: a fresh part reports the reset-detected bit.
	var raw [3]byte
	if err := machine.I2C0.Tx(addr, []byte{0xF3, 0x2D}, raw[:]); err != nil {
		println("boardtest: status read failed:", err.Error())
		return
	}
	word := uint16(raw[0])<<8 | uint16(raw[1])
	printHexWord("boardtest: status word", word)
	st := sht3x.DecodeStatus(word)
	println("boardtest: reset_detected:", st.SystemReset, "heater:", st.HeaterOn)

	dev := sht3x.New(machine.I2C0, sht3x.WithAddress(addr))
	if err := dev.ClearStatus(); err != nil {
		println("boardtest: clear status failed:", err.Error())
	}

	for {
		r, err := dev.Read()
		if err != nil {
			println("boardtest: read failed:", err.Error())
		} else {
			printReading(r)
		}
		time.Sleep(readEvery)
	}
}

// probe tries both strap addresses with a status read and returns the first
// that acknowledges.
func probe(bus *machine.I2C) (uint16, bool) {
	var buf [3]byte
	for _, addr := range []uint16{sht3x.AddressA, sht3x.AddressB} {
		if err := bus.Tx(addr, []byte{0xF3, 0x2D}, buf[:]); err == nil {
			return addr, true
		}
	}
	return 0, false
}

func printHexWord(prefix string, w uint16) {
	var buf [4]byte
	println(prefix, "0x"+string(conv.U16Hex(buf[:], w)))
}

// printReading renders fixed-point values without pulling in fmt:
// "temp 22.4 C rh 38.51 %".
func printReading(r sht3x.Reading) {
	println("temp", formatDeci(conv.DeciC(r.Temperature)),
		"C rh", formatCenti(conv.RHx100(r.Humidity)), "%")
}

func formatDeci(v int16) string {
	var wb, fb [8]byte
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return sign + string(conv.Utoa(wb[:], uint64(v/10))) + "." + string(conv.Utoa(fb[:], uint64(v%10)))
}

func formatCenti(v uint16) string {
	var wb, fb [8]byte
	whole := string(conv.Utoa(wb[:], uint64(v/100)))
	frac := uint64(v % 100)
	f := string(conv.Utoa(fb[:], frac))
	if frac < 10 {
		f = "0" + f
	}
	return whole + "." + f
}
