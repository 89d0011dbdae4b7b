package sht3x

import "tinygo.org/x/drivers"

// SingleShot is the try-once mode: Measure starts a conversion, Read fetches
// the result with a single attempt and fails immediately if the sensor has
// not finished converting.
type SingleShot struct {
	device
}

// NewSingleShot returns a handle in single-shot mode. The bus must already be
// configured; the sensor is not touched.
func NewSingleShot(bus drivers.I2C, opts ...Option) *SingleShot {
	return &SingleShot{device: newDevice(bus, opts...)}
}

// Measure commands one conversion at the configured accuracy.
func (s *SingleShot) Measure() error {
	return s.write(cmdMeasureOneShot(s.acc))
}

// Read fetches the result of a previous Measure. No retry: if the conversion
// is still running the sensor NACKs and the read fails.
func (s *SingleShot) Read() (Reading, error) {
	return s.collect()
}

// ToPolling switches to polling mode. The transition stops any running
// acquisition and leaves the heater off; on failure the current handle stays
// usable.
func (s *SingleShot) ToPolling() (*Polling, error) {
	if err := s.transition(); err != nil {
		return nil, err
	}
	p := newPolling(s.device)
	s.bus = nil
	return p, nil
}

// ToPeriodic switches to periodic mode at the given rate. Same transition
// semantics as ToPolling.
func (s *SingleShot) ToPeriodic(rate Rate) (*Periodic, error) {
	if err := s.transition(); err != nil {
		return nil, err
	}
	p := &Periodic{device: s.device, rate: rate}
	s.bus = nil
	return p, nil
}
