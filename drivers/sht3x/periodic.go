package sht3x

import (
	"time"

	"tinygo.org/x/drivers"
)

// Rate is the periodic acquisition cadence in measurements per second.
type Rate uint8

const (
	RateHalf Rate = iota // one measurement every two seconds
	Rate1
	Rate2
	Rate4
	Rate10
)

// Period returns the nominal time between consecutive measurements, useful
// for scheduling fetches.
func (r Rate) Period() time.Duration {
	switch r {
	case RateHalf:
		return 2 * time.Second
	case Rate2:
		return 500 * time.Millisecond
	case Rate4:
		return 250 * time.Millisecond
	case Rate10:
		return 100 * time.Millisecond
	default:
		return time.Second
	}
}

// Periodic is the continuous mode: Measure starts the sensor's internal
// acquisition loop, Read fetches the most recent result at any time.
type Periodic struct {
	device
	rate Rate
	art  bool
}

// NewPeriodic returns a handle in periodic mode. The sensor does not start
// measuring until Measure is called.
func NewPeriodic(bus drivers.I2C, rate Rate, opts ...Option) *Periodic {
	return &Periodic{device: newDevice(bus, opts...), rate: rate}
}

// SetRate changes the cadence used by the next Measure call. It does not
// retune a running acquisition; issue Break and Measure again for that.
func (p *Periodic) SetRate(r Rate) { p.rate = r }

// SetART enables accelerated response time. While set, Measure ignores rate
// and accuracy and starts the fixed 4 Hz high-repeatability mode.
func (p *Periodic) SetART(on bool) { p.art = on }

// Measure starts periodic acquisition. It returns as soon as the start
// command is written; the first sample becomes available one period later.
func (p *Periodic) Measure() error {
	cmd := cmdMeasurePeriodic(p.rate, p.acc)
	if p.art {
		cmd = cmdPeriodicART
	}
	return p.write(cmd)
}

// Read fetches the most recent measurement. Calling it before Measure is a
// caller error that surfaces as a transport or checksum failure from the
// sensor, not as a distinct driver error.
func (p *Periodic) Read() (Reading, error) {
	if err := p.writeRead(cmdFetch, p.buf[:]); err != nil {
		return Reading{}, err
	}
	return ToReading(p.buf, p.unit)
}

// ToSingleShot switches to single-shot mode. The transition stops the running
// acquisition and leaves the heater off; on failure the current handle stays
// usable.
func (p *Periodic) ToSingleShot() (*SingleShot, error) {
	if err := p.transition(); err != nil {
		return nil, err
	}
	s := &SingleShot{device: p.device}
	p.bus = nil
	return s, nil
}

// ToPolling switches to polling mode. Same transition semantics as
// ToSingleShot.
func (p *Periodic) ToPolling() (*Polling, error) {
	if err := p.transition(); err != nil {
		return nil, err
	}
	pl := newPolling(p.device)
	p.bus = nil
	return pl, nil
}
