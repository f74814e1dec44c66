// Package status implements the result-code and last-error plumbing
// described by the TAO error handling design: every fallible operation
// returns a Code, and the specific Kind behind an ERROR is recorded in a
// goroutine-local last-error slot rather than folded into the return value.
package status

import (
	"fmt"
)

// Code is the uniform tri-state result of a fallible operation.
type Code int

const (
	OK Code = iota
	ERROR
	TIMEOUT
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case ERROR:
		return "ERROR"
	case TIMEOUT:
		return "TIMEOUT"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Kind enumerates the error kinds a conformant implementation must
// distinguish (spec §7). Values are negative so they never collide with a
// positive system errno surfaced through a wrapped Cause.
type Kind int

const (
	KindNone Kind = -iota
	KindBadArgument
	KindBadAddress
	KindBadSize
	KindBadRange
	KindBadType
	KindBadName
	KindBadMagic
	KindBadRank
	KindBadEncoding
	KindBadPixelType
	KindBadSerial
	KindAlreadyInUse
	KindAlreadyExists
	KindNotFound
	KindNotLocked
	KindNotReady
	KindNotRunning
	KindNotAcquiring
	KindAcquisitionRunning
	KindDestroyed
	KindOverwritten
	KindBrokenCycle
	KindCorrupted
	KindExhausted
	KindForbiddenChange
	KindInexactConversion
	KindMustReset
	KindUnreachable
	KindUnsupported
	KindUnrecoverable
	KindAssertionFailed
)

var kindNames = map[Kind]string{
	KindNone:               "none",
	KindBadArgument:        "bad-argument",
	KindBadAddress:         "bad-address",
	KindBadSize:            "bad-size",
	KindBadRange:           "bad-range",
	KindBadType:            "bad-type",
	KindBadName:            "bad-name",
	KindBadMagic:           "bad-magic",
	KindBadRank:            "bad-rank",
	KindBadEncoding:        "bad-encoding",
	KindBadPixelType:       "bad-pixel-type",
	KindBadSerial:          "bad-serial",
	KindAlreadyInUse:       "already-in-use",
	KindAlreadyExists:      "already-exists",
	KindNotFound:           "not-found",
	KindNotLocked:          "not-locked",
	KindNotReady:           "not-ready",
	KindNotRunning:         "not-running",
	KindNotAcquiring:       "not-acquiring",
	KindAcquisitionRunning: "acquisition-running",
	KindDestroyed:          "destroyed",
	KindOverwritten:        "overwritten",
	KindBrokenCycle:        "broken-cycle",
	KindCorrupted:          "corrupted",
	KindExhausted:          "exhausted",
	KindForbiddenChange:    "forbidden-change",
	KindInexactConversion:  "inexact-conversion",
	KindMustReset:          "must-reset",
	KindUnreachable:        "unreachable",
	KindUnsupported:        "unsupported",
	KindUnrecoverable:      "unrecoverable",
	KindAssertionFailed:    "assertion-failed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the record stashed in the last-error slot and optionally
// returned to callers that want the detail behind a bare Code.
type Error struct {
	Func  string
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Func, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Func, e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error and records it as the caller goroutine's last
// error, returning status.ERROR for convenience at call sites:
//
//	if badSize {
//	    return status.New("shm.Create", status.KindBadSize, nil)
//	}
func New(fn string, kind Kind, cause error) Code {
	Set(fn, kind, cause)
	return ERROR
}
