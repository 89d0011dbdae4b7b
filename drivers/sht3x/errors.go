package sht3x

import (
	"errors"
	"fmt"
)

// Errors returned by the driver. Transport failures are folded into the three
// I/O kinds at the funnel layer; everything else is protocol-level.
var (
	ErrWrite       = errors.New("sht3x: i2c write failed")
	ErrRead        = errors.New("sht3x: i2c read failed")
	ErrWriteRead   = errors.New("sht3x: i2c write-read failed")
	ErrTimeout     = errors.New("sht3x: no reading after all attempts")
	ErrNoAttempts  = errors.New("sht3x: zero read attempts configured")
	ErrReleased    = errors.New("sht3x: handle released")
	ErrChecksum    = errors.New("sht3x: checksum mismatch")
	ErrNoSuchLimit = errors.New("sht3x: no such alert limit")
)

func wrap(kind, cause error) error {
	return fmt.Errorf("%w: %w", kind, cause)
}

// ChecksumSubject identifies which quantity failed verification. Status
// failures are informational; reading failures are what the polling mode
// retries on.
type ChecksumSubject uint8

const (
	SubjectTemperature ChecksumSubject = iota
	SubjectHumidity
	SubjectStatus
	SubjectAlert
)

func (s ChecksumSubject) String() string {
	switch s {
	case SubjectTemperature:
		return "temperature"
	case SubjectHumidity:
		return "humidity"
	case SubjectStatus:
		return "status"
	case SubjectAlert:
		return "alert"
	default:
		return "unknown"
	}
}

// ChecksumError carries the raw payload plus both checksums so wiring or
// noise problems can be diagnosed from the error value alone.
type ChecksumError struct {
	Subject    ChecksumSubject
	Data       [2]byte
	Expected   byte
	Calculated byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("sht3x: %s checksum mismatch on % x: expected %#02x, calculated %#02x",
		e.Subject, e.Data[:], e.Expected, e.Calculated)
}

// Is lets errors.Is(err, ErrChecksum) match any tagged mismatch.
func (e *ChecksumError) Is(target error) bool { return target == ErrChecksum }
