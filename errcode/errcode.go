package errcode

import (
	"errors"

	"envsense-go/drivers/sht3x"
)

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK                Code = "ok"
	Busy              Code = "busy"
	Unsupported       Code = "unsupported"
	InvalidParams     Code = "invalid_params"
	InvalidPayload    Code = "invalid_payload"
	UnknownCapability Code = "unknown_capability"
	UnknownDevice     Code = "unknown_device"
	NotReady          Code = "not_ready"
	NotConfigured     Code = "not_configured"
	InvalidTopic      Code = "invalid_topic"

	IOFailure        Code = "io_failure"
	ChecksumMismatch Code = "checksum_mismatch"
	Timeout          Code = "timeout"
	Released         Code = "released"

	Error Code = "error" // generic fallback
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}

// MapDriverErr maps sensor driver errors to a Code. Order matters: a retry
// timeout wraps the final attempt's failure, so it is matched first.
func MapDriverErr(err error) Code {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, sht3x.ErrTimeout):
		return Timeout
	case errors.Is(err, sht3x.ErrChecksum):
		return ChecksumMismatch
	case errors.Is(err, sht3x.ErrReleased):
		return Released
	case errors.Is(err, sht3x.ErrNoAttempts), errors.Is(err, sht3x.ErrNoSuchLimit):
		return InvalidParams
	case errors.Is(err, sht3x.ErrWrite), errors.Is(err, sht3x.ErrRead), errors.Is(err, sht3x.ErrWriteRead):
		return IOFailure
	default:
		return Error
	}
}
