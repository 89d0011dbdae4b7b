package sht3x

import (
	"errors"
	"testing"
)

func TestThresholdPackUnpack(t *testing.T) {
	th := Threshold{RawHumidity: 0x9999, RawTemperature: 0x67DE}
	w := th.pack()
	if w != 0x98CF {
		t.Fatalf("pack() = %#04x, want 0x98cf", w)
	}
	got := unpackThreshold(w)
	if got.RawHumidity != 0x9800 {
		t.Errorf("unpacked humidity = %#04x, want 0x9800", got.RawHumidity)
	}
	if got.RawTemperature != 0x6780 {
		t.Errorf("unpacked temperature = %#04x, want 0x6780", got.RawTemperature)
	}
}

// Packing drops the low bits, so a round trip loses at most one step of the
// retained precision: 128 counts of temperature, 512 of humidity.
func TestThresholdRoundTripPrecision(t *testing.T) {
	cases := []struct {
		temp, hum float32
	}{
		{-20, 5},
		{0, 40},
		{26, 60},
		{80, 90},
	}
	for _, tc := range cases {
		th := NewThreshold(tc.temp, tc.hum, Celsius)
		rt := unpackThreshold(th.pack())
		if d := rt.Temperature(Celsius) - tc.temp; d < -0.35 || d > 0 {
			t.Errorf("temperature %v round-tripped to %v", tc.temp, rt.Temperature(Celsius))
		}
		if d := rt.Humidity() - tc.hum; d < -0.8 || d > 0 {
			t.Errorf("humidity %v round-tripped to %v", tc.hum, rt.Humidity())
		}
	}
}

func TestWriteAlertLimitFrame(t *testing.T) {
	th := Threshold{RawHumidity: 0x9800, RawTemperature: 0x6780}
	cases := []struct {
		limit AlertLimit
		lsb   byte
	}{
		{AlertHighSet, 0x1D},
		{AlertHighClear, 0x16},
		{AlertLowClear, 0x0B},
		{AlertLowSet, 0x00},
	}
	for _, tc := range cases {
		t.Run(tc.limit.String(), func(t *testing.T) {
			want := []byte{0x61, tc.lsb, 0x98, 0xCF, Checksum(0x98, 0xCF)}
			bus := newScript(t, txStep{wantW: want})
			s := NewSingleShot(bus)
			if err := s.WriteAlertLimit(tc.limit, th); err != nil {
				t.Fatalf("WriteAlertLimit: %v", err)
			}
			bus.done()
		})
	}
}

func TestReadAlertLimit(t *testing.T) {
	cases := []struct {
		limit AlertLimit
		lsb   byte
	}{
		{AlertHighSet, 0x1F},
		{AlertHighClear, 0x14},
		{AlertLowClear, 0x09},
		{AlertLowSet, 0x02},
	}
	for _, tc := range cases {
		t.Run(tc.limit.String(), func(t *testing.T) {
			bus := newScript(t, txStep{
				wantW: []byte{0xE1, tc.lsb},
				reply: []byte{0x98, 0xCF, Checksum(0x98, 0xCF)},
			})
			s := NewSingleShot(bus)
			th, err := s.ReadAlertLimit(tc.limit)
			if err != nil {
				t.Fatalf("ReadAlertLimit: %v", err)
			}
			if th.RawHumidity != 0x9800 || th.RawTemperature != 0x6780 {
				t.Fatalf("threshold = %+v", th)
			}
			bus.done()
		})
	}
}

func TestReadAlertLimitBadChecksum(t *testing.T) {
	bus := newScript(t, txStep{
		wantW: []byte{0xE1, 0x1F},
		reply: []byte{0x98, 0xCF, 0x00},
	})
	s := NewSingleShot(bus)

	_, err := s.ReadAlertLimit(AlertHighSet)
	var ce *ChecksumError
	if !errors.As(err, &ce) {
		t.Fatalf("ReadAlertLimit = %v, want *ChecksumError", err)
	}
	if ce.Subject != SubjectAlert {
		t.Fatalf("subject = %v, want alert", ce.Subject)
	}
	bus.done()
}

func TestAlertLimitOutOfRange(t *testing.T) {
	bus := newScript(t)
	s := NewSingleShot(bus)
	if _, err := s.ReadAlertLimit(AlertLimit(7)); !errors.Is(err, ErrNoSuchLimit) {
		t.Fatalf("ReadAlertLimit(7) = %v, want ErrNoSuchLimit", err)
	}
	if err := s.WriteAlertLimit(AlertLimit(7), Threshold{}); !errors.Is(err, ErrNoSuchLimit) {
		t.Fatalf("WriteAlertLimit(7) = %v, want ErrNoSuchLimit", err)
	}
	bus.done()
}

func TestNewThresholdFromPhysical(t *testing.T) {
	th := NewThreshold(26, 60, Celsius)
	if !within(th.Temperature(Celsius), 26, 0.01) {
		t.Errorf("temperature = %v, want 26", th.Temperature(Celsius))
	}
	if !within(th.Humidity(), 60, 0.01) {
		t.Errorf("humidity = %v, want 60", th.Humidity())
	}
}
