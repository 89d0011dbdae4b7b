// Package sim provides a simulated SHT3x on a fake I2C bus for host builds.
// It decodes the same command words the driver encodes and produces frames
// with valid CRCs, so the real driver runs against it unchanged. It is the
// host stand-in for the physical sensor, not a test mock.
package sim

import (
	"errors"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"envsense-go/drivers/sht3x"
	"envsense-go/x/mathx"
)

// ErrNACK is returned whenever the simulated sensor would not acknowledge:
// wrong address, unknown command, or a result read before conversion is done.
var ErrNACK = errors.New("sim: not acknowledged")

// Status register bits, mirroring the datasheet layout.
const (
	stChecksumFailed uint16 = 1 << 0
	stCommandFailed  uint16 = 1 << 1
	stSystemReset    uint16 = 1 << 4
	stAlertT         uint16 = 1 << 10
	stAlertRH        uint16 = 1 << 11
	stHeater         uint16 = 1 << 13
	stAlertPending   uint16 = 1 << 15
)

// Raw endpoints of the synthesised signal: 21..27 °C and 35..55 %RH, one
// triangle cycle every 256 samples.
const (
	rawTLo = 24716 // 21 °C
	rawTHi = 26963 // 27 °C
	rawHLo = 22937 // 35 %RH
	rawHHi = 36044 // 55 %RH
)

type mode uint8

const (
	modeIdle mode = iota
	modeOneShot
	modePeriodic
)

// SHT3x is one simulated sensor. Safe for concurrent use; the HAL worker and
// a test may poke it at the same time.
type SHT3x struct {
	mu   sync.Mutex
	addr uint16

	mode     mode
	readyAt  time.Time
	periodMs uint64
	started  time.Time

	step   uint32
	heater bool
	status uint16
	limits [4]uint16 // packed alert words, indexed by sht3x.AlertLimit

	notReady int
	corrupt  int
}

var _ drivers.I2C = (*SHT3x)(nil)

// New returns a powered-up sensor at the given address. The reset-detected
// status bit starts set, as on real hardware.
func New(addr uint16) *SHT3x {
	s := &SHT3x{addr: addr}
	s.reset()
	return s
}

// FailReads makes the next n result reads NACK regardless of conversion
// state, for exercising retry paths.
func (s *SHT3x) FailReads(n int) {
	s.mu.Lock()
	s.notReady = n
	s.mu.Unlock()
}

// CorruptFrames flips the humidity CRC of the next n produced frames.
func (s *SHT3x) CorruptFrames(n int) {
	s.mu.Lock()
	s.corrupt = n
	s.mu.Unlock()
}

// Heater reports the simulated heater state.
func (s *SHT3x) Heater() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heater
}

// Running reports whether a periodic acquisition is active.
func (s *SHT3x) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode == modePeriodic
}

// Tx implements drivers.I2C.
func (s *SHT3x) Tx(addr uint16, w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if addr == 0 {
		if len(w) == 2 && w[0] == 0x00 && w[1] == 0x06 {
			s.reset()
			return nil
		}
		return ErrNACK
	}
	if addr != s.addr {
		return ErrNACK
	}
	if len(w) == 0 {
		return s.dataRead(r)
	}
	if len(w) < 2 {
		return ErrNACK
	}
	cmd := uint16(w[0])<<8 | uint16(w[1])
	if len(r) > 0 {
		return s.commandRead(cmd, r)
	}
	return s.command(cmd, w[2:])
}

func (s *SHT3x) reset() {
	s.mode = modeIdle
	s.heater = false
	s.status = stSystemReset
	s.limits[sht3x.AlertHighSet] = 0xFFFF
	s.limits[sht3x.AlertHighClear] = 0xFFFF
	s.limits[sht3x.AlertLowClear] = 0x0000
	s.limits[sht3x.AlertLowSet] = 0x0000
}

// Pure writes.
func (s *SHT3x) command(cmd uint16, data []byte) error {
	switch {
	case cmd == 0x3093: // break
		s.mode = modeIdle
		return nil
	case cmd == 0x30A2: // soft reset
		s.reset()
		return nil
	case cmd == 0x306D:
		s.heater = true
		return nil
	case cmd == 0x3066:
		s.heater = false
		return nil
	case cmd == 0x3041: // clear status
		s.status = 0
		return nil
	case cmd>>8 == 0x24 || cmd>>8 == 0x2C: // one-shot, plain or polled
		if s.mode == modePeriodic {
			s.status |= stCommandFailed
			return ErrNACK
		}
		s.mode = modeOneShot
		s.readyAt = time.Now().Add(convTime(byte(cmd)))
		return nil
	case cmd == 0x2B32: // ART: fixed 4 Hz
		s.startPeriodic(250)
		return nil
	case cmd>>8 == 0x20 || cmd>>8 == 0x21 || cmd>>8 == 0x22 ||
		cmd>>8 == 0x23 || cmd>>8 == 0x27:
		s.startPeriodic(periodMsFor(byte(cmd >> 8)))
		return nil
	case cmd>>8 == 0x61: // alert limit write
		return s.writeLimit(cmd, data)
	default:
		s.status |= stCommandFailed
		return ErrNACK
	}
}

// Write-then-read transactions.
func (s *SHT3x) commandRead(cmd uint16, r []byte) error {
	switch {
	case cmd == 0xF32D && len(r) >= 3: // read status
		w := s.statusWord()
		r[0], r[1] = byte(w>>8), byte(w)
		r[2] = sht3x.Checksum(r[0], r[1])
		return nil
	case cmd == 0xE000 && len(r) >= 6: // fetch latest periodic result
		if s.mode != modePeriodic {
			s.status |= stCommandFailed
			return ErrNACK
		}
		elapsed := uint64(time.Since(s.started).Milliseconds())
		if elapsed < s.periodMs {
			return ErrNACK // first sample not produced yet
		}
		if s.notReady > 0 {
			s.notReady--
			return ErrNACK
		}
		// Drift follows the acquisition clock, not the fetch cadence.
		s.step = uint32(mathx.RoundDiv(elapsed, s.periodMs))
		s.fillFrame(r)
		return nil
	case cmd>>8 == 0xE1 && len(r) >= 3: // alert limit read
		l, ok := limitFor(cmd)
		if !ok {
			s.status |= stCommandFailed
			return ErrNACK
		}
		w := s.limits[l]
		r[0], r[1] = byte(w>>8), byte(w)
		r[2] = sht3x.Checksum(r[0], r[1])
		return nil
	default:
		s.status |= stCommandFailed
		return ErrNACK
	}
}

// Bare result read after a one-shot command. A frame the master rejects on
// CRC is re-served on the next read; only a clean readout consumes the result.
func (s *SHT3x) dataRead(r []byte) error {
	if s.mode != modeOneShot || len(r) < 6 {
		return ErrNACK
	}
	if time.Now().Before(s.readyAt) {
		return ErrNACK
	}
	if s.notReady > 0 {
		s.notReady--
		return ErrNACK
	}
	s.step++
	corrupted := s.corrupt > 0
	s.fillFrame(r)
	if !corrupted {
		s.mode = modeIdle
	}
	return nil
}

func (s *SHT3x) startPeriodic(periodMs uint64) {
	s.mode = modePeriodic
	s.periodMs = periodMs
	s.started = time.Now()
}

func (s *SHT3x) fillFrame(r []byte) {
	rawT, rawH := s.sample()
	s.evalAlerts(rawT, rawH)
	r[0], r[1] = byte(rawT>>8), byte(rawT)
	r[2] = sht3x.Checksum(r[0], r[1])
	r[3], r[4] = byte(rawH>>8), byte(rawH)
	r[5] = sht3x.Checksum(r[3], r[4])
	if s.corrupt > 0 {
		s.corrupt--
		r[5] ^= 0xFF
	}
}

// sample synthesises the raw pair for the current step: temperature sweeps up
// while humidity sweeps down, and the heater nudges temperature toward the
// top of the scale.
func (s *SHT3x) sample() (rawT, rawH uint16) {
	ph := triangle(uint8(s.step))
	rawT = mathx.MapU16(ph, 0, 65278, rawTLo, rawTHi)
	rawH = mathx.MapU16(65278-ph, 0, 65278, rawHLo, rawHHi)
	if s.heater {
		rawT = mathx.LerpU16(rawT, 0xFFFF, 1024)
	}
	return rawT, rawH
}

// triangle maps an 8-bit step onto a 0..65278..0 ramp.
func triangle(step uint8) uint16 {
	if step < 128 {
		return uint16(step) * 514
	}
	return uint16(255-step) * 514
}

// evalAlerts compares a produced sample against the programmed set limits.
// Hysteresis is not modelled; the set thresholds alone drive the bits.
func (s *SHT3x) evalAlerts(rawT, rawH uint16) {
	highT, highH := unpackLimit(s.limits[sht3x.AlertHighSet])
	lowT, lowH := unpackLimit(s.limits[sht3x.AlertLowSet])

	alertT := rawT >= highT || rawT <= lowT
	alertH := rawH >= highH || rawH <= lowH

	s.setBit(stAlertT, alertT)
	s.setBit(stAlertRH, alertH)
	s.setBit(stAlertPending, alertT || alertH)
}

func (s *SHT3x) setBit(bit uint16, on bool) {
	if on {
		s.status |= bit
	} else {
		s.status &^= bit
	}
}

func (s *SHT3x) statusWord() uint16 {
	w := s.status
	if s.heater {
		w |= stHeater
	} else {
		w &^= stHeater
	}
	return w
}

func (s *SHT3x) writeLimit(cmd uint16, data []byte) error {
	l, ok := limitFor(cmd)
	if !ok || len(data) != 3 {
		s.status |= stCommandFailed
		return ErrNACK
	}
	if sht3x.Checksum(data[0], data[1]) != data[2] {
		s.status |= stChecksumFailed | stCommandFailed
		return nil // sensor ACKs the bytes but discards the write
	}
	s.limits[l] = uint16(data[0])<<8 | uint16(data[1])
	return nil
}

// unpackLimit splits a packed alert word into full-scale raw thresholds:
// humidity keeps its top 7 bits, temperature its top 9.
func unpackLimit(w uint16) (rawT, rawH uint16) {
	return w & 0x01FF << 7, w & 0xFE00
}

// limitFor maps a read or write command word to its limit register. The LSB
// tables differ between the 0xE1 reads and 0x61 writes.
func limitFor(cmd uint16) (sht3x.AlertLimit, bool) {
	switch cmd {
	case 0xE11F, 0x611D:
		return sht3x.AlertHighSet, true
	case 0xE114, 0x6116:
		return sht3x.AlertHighClear, true
	case 0xE109, 0x610B:
		return sht3x.AlertLowClear, true
	case 0xE102, 0x6100:
		return sht3x.AlertLowSet, true
	default:
		return 0, false
	}
}

// convTime is the worst-case conversion duration for a one-shot command LSB.
func convTime(lsb byte) time.Duration {
	switch lsb {
	case 0x0B, 0x0D: // medium repeatability
		return 7 * time.Millisecond
	case 0x16, 0x10: // low repeatability
		return 5 * time.Millisecond
	default: // high repeatability
		return 16 * time.Millisecond
	}
}

// periodMsFor maps a periodic command MSB to its acquisition period.
func periodMsFor(msb byte) uint64 {
	switch msb {
	case 0x20:
		return 2000
	case 0x22:
		return 500
	case 0x23:
		return 250
	case 0x27:
		return 100
	default: // 0x21
		return 1000
	}
}
