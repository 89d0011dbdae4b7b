package sht3x

import (
	"errors"
	"testing"
	"time"
)

func TestPeriodicMeasureCommandTable(t *testing.T) {
	rates := []struct {
		name string
		rate Rate
		msb  byte
	}{
		{"0.5mps", RateHalf, 0x20},
		{"1mps", Rate1, 0x21},
		{"2mps", Rate2, 0x22},
		{"4mps", Rate4, 0x23},
		{"10mps", Rate10, 0x27},
	}
	accs := []struct {
		name string
		acc  Accuracy
		lsb  [5]byte // indexed by Rate
	}{
		{"high", AccuracyHigh, [5]byte{0x32, 0x30, 0x36, 0x34, 0x37}},
		{"medium", AccuracyMedium, [5]byte{0x24, 0x26, 0x20, 0x22, 0x21}},
		{"low", AccuracyLow, [5]byte{0x2F, 0x2D, 0x2B, 0x29, 0x2A}},
	}
	for _, rc := range rates {
		for _, ac := range accs {
			t.Run(rc.name+"/"+ac.name, func(t *testing.T) {
				bus := newScript(t, txStep{wantW: []byte{rc.msb, ac.lsb[rc.rate]}})
				p := NewPeriodic(bus, rc.rate, WithAccuracy(ac.acc))
				if err := p.Measure(); err != nil {
					t.Fatalf("Measure: %v", err)
				}
				bus.done()
			})
		}
	}
}

func TestPeriodicARTOverridesRate(t *testing.T) {
	bus := newScript(t,
		txStep{wantW: []byte{0x2B, 0x32}},
		txStep{wantW: []byte{0x20, 0x24}},
	)
	p := NewPeriodic(bus, RateHalf, WithAccuracy(AccuracyMedium))
	p.SetART(true)
	if err := p.Measure(); err != nil {
		t.Fatalf("Measure with ART: %v", err)
	}
	p.SetART(false)
	if err := p.Measure(); err != nil {
		t.Fatalf("Measure after ART off: %v", err)
	}
	bus.done()
}

func TestPeriodicSetRateAppliesToNextMeasure(t *testing.T) {
	bus := newScript(t,
		txStep{wantW: []byte{0x21, 0x30}},
		txStep{wantW: []byte{0x27, 0x37}},
	)
	p := NewPeriodic(bus, Rate1)
	if err := p.Measure(); err != nil {
		t.Fatalf("Measure: %v", err)
	}
	p.SetRate(Rate10)
	if err := p.Measure(); err != nil {
		t.Fatalf("Measure after SetRate: %v", err)
	}
	bus.done()
}

func TestPeriodicReadFetchesLatest(t *testing.T) {
	bus := newScript(t,
		txStep{wantW: []byte{0x21, 0x30}},
		txStep{wantW: []byte{0xE0, 0x00}, reply: goldenFrame},
		txStep{wantW: []byte{0xE0, 0x00}, reply: goldenFrame},
	)
	p := NewPeriodic(bus, Rate1, WithUnit(Fahrenheit))
	if err := p.Measure(); err != nil {
		t.Fatalf("Measure: %v", err)
	}
	for i := 0; i < 2; i++ {
		r, err := p.Read()
		if err != nil {
			t.Fatalf("Read %d: %v", i, err)
		}
		if !within(r.Temperature, 72.32318, 1e-3) {
			t.Errorf("Read %d temperature = %v, want 72.32318", i, r.Temperature)
		}
	}
	bus.done()
}

// Fetch with no sample available surfaces the bus failure.
func TestPeriodicReadBeforeDataReady(t *testing.T) {
	bus := newScript(t, txStep{wantW: []byte{0xE0, 0x00}, err: errBus})
	p := NewPeriodic(bus, Rate1)

	_, err := p.Read()
	if !errors.Is(err, ErrWriteRead) {
		t.Fatalf("Read = %v, want ErrWriteRead", err)
	}
	if !errors.Is(err, errBus) {
		t.Fatal("underlying bus error not preserved")
	}
	bus.done()
}

func TestPeriodicOutOfRangeInputsFallBack(t *testing.T) {
	bus := newScript(t, txStep{wantW: []byte{0x21, 0x30}})
	p := NewPeriodic(bus, Rate(17), WithAccuracy(Accuracy(9)))
	if err := p.Measure(); err != nil {
		t.Fatalf("Measure: %v", err)
	}
	bus.done()
}

func TestRatePeriod(t *testing.T) {
	cases := []struct {
		rate Rate
		want time.Duration
	}{
		{RateHalf, 2 * time.Second},
		{Rate1, time.Second},
		{Rate2, 500 * time.Millisecond},
		{Rate4, 250 * time.Millisecond},
		{Rate10, 100 * time.Millisecond},
		{Rate(99), time.Second},
	}
	for _, tc := range cases {
		if got := tc.rate.Period(); got != tc.want {
			t.Errorf("Rate(%d).Period() = %v, want %v", tc.rate, got, tc.want)
		}
	}
}
