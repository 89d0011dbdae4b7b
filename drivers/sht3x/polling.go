package sht3x

import (
	"time"

	"tinygo.org/x/drivers"
)

// Polling mode defaults.
const (
	DefaultAttempts = 8
	DefaultInterval = 100 * time.Millisecond
)

// Polling is the blocking convenience mode: Read writes the measure command
// once and then retries the result read a bounded number of times, sleeping
// between attempts.
type Polling struct {
	device
	attempts int
	interval time.Duration
	sleep    func(time.Duration)
}

// New returns a handle in polling mode, the mode most callers want: Read
// blocks until a reading is available or the attempts are exhausted. Use
// NewSingleShot or NewPeriodic for the other modes.
func New(bus drivers.I2C, opts ...Option) *Polling {
	return newPolling(newDevice(bus, opts...))
}

func newPolling(d device) *Polling {
	return &Polling{
		device:   d,
		attempts: DefaultAttempts,
		interval: DefaultInterval,
		sleep:    time.Sleep,
	}
}

// SetAttempts bounds the number of result reads per Read call. Zero is legal
// but makes Read fail with ErrNoAttempts; negative values are treated as zero.
func (p *Polling) SetAttempts(n int) {
	if n < 0 {
		n = 0
	}
	p.attempts = n
}

// SetInterval sets the pause between result reads.
func (p *Polling) SetInterval(d time.Duration) {
	if d < 0 {
		d = 0
	}
	p.interval = d
}

// Read triggers a measurement and polls for the result. Checksum mismatches
// and transport read failures both count as "not ready yet". The sleep runs
// between attempts only; exhausting all attempts returns the last failure
// wrapped in ErrTimeout without a trailing sleep.
func (p *Polling) Read() (Reading, error) {
	if err := p.write(cmdMeasurePolled(p.acc)); err != nil {
		return Reading{}, err
	}
	if p.attempts == 0 {
		return Reading{}, ErrNoAttempts
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	var last error
	for i := 0; i < p.attempts; i++ {
		if i > 0 {
			sleep(p.interval)
		}
		r, err := p.collect()
		if err == nil {
			return r, nil
		}
		last = err
	}
	return Reading{}, wrap(ErrTimeout, last)
}

// ToSingleShot switches to single-shot mode. The transition stops any running
// acquisition and leaves the heater off; on failure the current handle stays
// usable.
func (p *Polling) ToSingleShot() (*SingleShot, error) {
	if err := p.transition(); err != nil {
		return nil, err
	}
	s := &SingleShot{device: p.device}
	p.bus = nil
	return s, nil
}

// ToPeriodic switches to periodic mode at the given rate. Same transition
// semantics as ToSingleShot.
func (p *Polling) ToPeriodic(rate Rate) (*Periodic, error) {
	if err := p.transition(); err != nil {
		return nil, err
	}
	per := &Periodic{device: p.device, rate: rate}
	p.bus = nil
	return per, nil
}
