// Package sht3x provides a driver for the Sensirion SHT3x temperature/humidity
// sensor family (SHT30/31/35). The acquisition mode is part of the handle's
// type, so mode-inappropriate operations do not compile:
//
//	s := sht3x.New(bus)                  // polling mode: write, then bounded retries
//	r, err := s.Read()
//
//	p, err := s.ToPeriodic(sht3x.Rate1)  // stops any running acquisition first
//	err = p.Measure()                    // sensor now samples on its own
//	r, err = p.Read()                    // fetch the latest sample
//
// Device-level commands (heater, status, resets, alert limits) are available in
// every mode. A handle exclusively owns its bus until Release() hands it back.
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read when both
// w and r are provided, without releasing the bus.
package sht3x

import (
	"tinygo.org/x/drivers"
)

// The two legal I2C addresses, selected by the ADDR strap pin. The driver does
// not probe; the caller must supply the address that is actually wired.
const (
	AddressA uint16 = 0x44 // ADDR tied low (default)
	AddressB uint16 = 0x45 // ADDR tied high
)

const addrGeneralCall uint16 = 0x00

// Accuracy selects the measurement repeatability. Higher repeatability means
// longer conversion time and more supply current.
type Accuracy uint8

const (
	AccuracyHigh Accuracy = iota
	AccuracyMedium
	AccuracyLow
)

// Unit selects the temperature scale used by conversions.
type Unit uint8

const (
	Celsius Unit = iota
	Fahrenheit
)

// Measurer starts an acquisition without collecting its result.
type Measurer interface {
	Measure() error
}

// Reader produces one checksum-verified reading.
type Reader interface {
	Read() (Reading, error)
}

var (
	_ Measurer = (*SingleShot)(nil)
	_ Measurer = (*Periodic)(nil)
	_ Reader   = (*SingleShot)(nil)
	_ Reader   = (*Polling)(nil)
	_ Reader   = (*Periodic)(nil)
)

// Option configures a handle at construction time.
type Option func(*device)

// WithAddress selects AddressA or AddressB.
func WithAddress(addr uint16) Option { return func(d *device) { d.addr = addr } }

// WithAccuracy selects the measurement repeatability.
func WithAccuracy(a Accuracy) Option { return func(d *device) { d.acc = a } }

// WithUnit selects the temperature scale.
func WithUnit(u Unit) Option { return func(d *device) { d.unit = u } }

// device is the core shared by all mode handles: the owned bus, the slave
// address, conversion configuration and a fixed reuse buffer.
type device struct {
	bus    drivers.I2C
	addr   uint16
	acc    Accuracy
	unit   Unit
	heater bool
	buf    [6]byte
}

func newDevice(bus drivers.I2C, opts ...Option) device {
	d := device{bus: bus, addr: AddressA}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// ---------------- configuration ----------------

// SetAccuracy changes the measurement repeatability for subsequent commands.
func (d *device) SetAccuracy(a Accuracy) { d.acc = a }

// SetUnit changes the temperature scale for subsequent conversions.
func (d *device) SetUnit(u Unit) { d.unit = u }

// SetAddress changes the slave address (AddressA or AddressB).
func (d *device) SetAddress(addr uint16) { d.addr = addr }

// Address returns the configured slave address.
func (d *device) Address() uint16 { return d.addr }

// Heater reports the last heater state confirmed on the wire.
func (d *device) Heater() bool { return d.heater }

// ---------------- device commands ----------------

// SetHeater switches the internal heater. The in-memory flag is updated only
// after the write has succeeded, so a transport failure cannot leave the flag
// out of step with the hardware.
func (d *device) SetHeater(on bool) error {
	cmd := cmdHeaterOff
	if on {
		cmd = cmdHeaterOn
	}
	if err := d.write(cmd); err != nil {
		return err
	}
	d.heater = on
	return nil
}

// Status reads and decodes the 16-bit status register.
func (d *device) Status() (Status, error) {
	var buf [3]byte
	if err := d.writeRead(cmdReadStatus, buf[:]); err != nil {
		return Status{}, err
	}
	if c := Checksum(buf[0], buf[1]); c != buf[2] {
		return Status{}, &ChecksumError{
			Subject:    SubjectStatus,
			Data:       [2]byte{buf[0], buf[1]},
			Expected:   buf[2],
			Calculated: c,
		}
	}
	return DecodeStatus(uint16(buf[0])<<8 | uint16(buf[1])), nil
}

// ClearStatus resets the alert and tracking bits of the status register.
// Safe to issue repeatedly.
func (d *device) ClearStatus() error { return d.write(cmdClearStatus) }

// Break cancels a running periodic acquisition. Harmless when idle.
func (d *device) Break() error { return d.write(cmdBreak) }

// SoftReset re-initialises the sensor without dropping power.
func (d *device) SoftReset() error { return d.write(cmdSoftReset) }

// GeneralCallReset issues the bus-wide reset sequence. Every device on the
// bus that honours the general call address will reset, not just this sensor.
func (d *device) GeneralCallReset() error {
	if d.bus == nil {
		return ErrReleased
	}
	cmd := cmdGeneralReset
	if err := d.bus.Tx(addrGeneralCall, cmd[:], nil); err != nil {
		return wrap(ErrWrite, err)
	}
	return nil
}

// Release consumes the handle and returns the bus. Every operation on the
// handle afterwards fails with ErrReleased.
func (d *device) Release() drivers.I2C {
	bus := d.bus
	d.bus = nil
	return bus
}

// transition prepares the core for a mode change: any running acquisition is
// stopped and, if the heater was on, it is switched off so the new handle
// starts with flag and hardware agreeing.
func (d *device) transition() error {
	if err := d.write(cmdBreak); err != nil {
		return err
	}
	if d.heater {
		if err := d.write(cmdHeaterOff); err != nil {
			return err
		}
		d.heater = false
	}
	return nil
}

// ---------------- transport funnels ----------------
// The three calls below are the only places the bus is touched; transport
// errors are converted to driver error kinds here and nowhere else.

func (d *device) write(cmd command, data ...byte) error {
	if d.bus == nil {
		return ErrReleased
	}
	frame := [8]byte{cmd[0], cmd[1]}
	n := 2 + copy(frame[2:], data)
	if err := d.bus.Tx(d.addr, frame[:n], nil); err != nil {
		return wrap(ErrWrite, err)
	}
	return nil
}

func (d *device) read(buf []byte) error {
	if d.bus == nil {
		return ErrReleased
	}
	if err := d.bus.Tx(d.addr, nil, buf); err != nil {
		return wrap(ErrRead, err)
	}
	return nil
}

func (d *device) writeRead(cmd command, buf []byte) error {
	if d.bus == nil {
		return ErrReleased
	}
	if err := d.bus.Tx(d.addr, cmd[:], buf); err != nil {
		return wrap(ErrWriteRead, err)
	}
	return nil
}

// collect performs the bare 6-byte result read shared by the single-shot and
// polling modes, then verifies and converts it.
func (d *device) collect() (Reading, error) {
	if err := d.read(d.buf[:]); err != nil {
		return Reading{}, err
	}
	return ToReading(d.buf, d.unit)
}
