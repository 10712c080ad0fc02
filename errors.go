package cardreset

import (
	"errors"
	"fmt"
)

// Code classifies the outcome of a detect/execute run. The numeric value
// doubles as the indicator blink count, so the ordering is part of the
// external contract and must not change.
type Code int

const (
	Ok Code = iota
	WrongCard
	WrongFlashID
	Timeout
	NoPatchesForCard
	ChecksumMismatch
	DifferentCard

	// Unknown covers errors that carry no result code, e.g. a failed bus
	// transaction. Callers should treat it as a hard fault.
	Unknown Code = -1
)

func (c Code) String() string {
	switch c {
	case Ok:
		return "ok"
	case WrongCard:
		return "wrong card"
	case WrongFlashID:
		return "wrong flash ID"
	case Timeout:
		return "timeout"
	case NoPatchesForCard:
		return "no patches for card"
	case ChecksumMismatch:
		return "checksum mismatch"
	case DifferentCard:
		return "different card"
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Error is the discriminated failure every core operation reports.
type Error struct {
	Code Code
	Op   string // operation that failed, e.g. "erase block 0x10000"
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	s := e.Op + ": " + e.Code.String()
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf extracts the result code from err. nil maps to Ok, errors without
// an embedded *Error map to Unknown.
func CodeOf(err error) Code {
	if err == nil {
		return Ok
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Unknown
}

func errf(code Code, format string, a ...any) *Error {
	return &Error{Code: code, Op: fmt.Sprintf(format, a...)}
}
