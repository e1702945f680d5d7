package domain

import (
	"errors"
	"fmt"
)

// Reason classifies a Fault so callers can branch on why an operation failed.
type Reason string

// Fault reasons. Configuration reasons are fatal at resolver construction,
// resolution reasons are fatal per call, argument and state reasons are
// raised synchronously at the point of detection.
const (
	ReasonConfigMissing        Reason = "config_missing"
	ReasonConfigMalformed      Reason = "config_malformed"
	ReasonDuplicateProcessor   Reason = "duplicate_processor"
	ReasonUnknownComponentType Reason = "unknown_component_type"
	ReasonNoConstructor        Reason = "no_constructor"
	ReasonInstantiation        Reason = "instantiation"
	ReasonInvalidArgument      Reason = "invalid_argument"
	ReasonTypeMismatch         Reason = "type_mismatch"
	ReasonDuplicate            Reason = "duplicate"
	ReasonInvalidKey           Reason = "invalid_key"
	ReasonInvalidState         Reason = "invalid_state"
	ReasonMalformedElement     Reason = "malformed_element"
	ReasonUnsupported          Reason = "unsupported"
	ReasonProcessing           Reason = "processing"
)

// Fault is the single error family surfaced by the object model and the proxy.
type Fault struct {
	Reason  Reason
	Op      string
	Message string
	Err     error
}

// Error implements error.
func (f *Fault) Error() string {
	msg := f.Message
	if msg == "" && f.Err != nil {
		msg = f.Err.Error()
	} else if f.Err != nil {
		msg = msg + ": " + f.Err.Error()
	}
	if f.Op == "" {
		return fmt.Sprintf("%s: %s", f.Reason, msg)
	}
	return fmt.Sprintf("%s: %s: %s", f.Op, f.Reason, msg)
}

// Unwrap returns the wrapped cause.
func (f *Fault) Unwrap() error { return f.Err }

// Is matches another Fault by reason so errors.Is(err, &Fault{Reason: r}) works.
func (f *Fault) Is(target error) bool {
	var t *Fault
	if !errors.As(target, &t) {
		return false
	}
	return t.Reason == f.Reason && t.Op == "" && t.Message == "" && t.Err == nil
}

// NewFault builds a fault without a cause.
func NewFault(reason Reason, op, format string, args ...any) *Fault {
	return &Fault{Reason: reason, Op: op, Message: fmt.Sprintf(format, args...)}
}

// WrapFault wraps err in a Fault. An err that already is a Fault is returned
// unchanged so the innermost reason is preserved.
func WrapFault(err error, reason Reason, op, message string) error {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return err
	}
	return &Fault{Reason: reason, Op: op, Message: message, Err: err}
}

// ReasonOf reports the reason of the outermost Fault in err's chain.
func ReasonOf(err error) (Reason, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f.Reason, true
	}
	return "", false
}

// IsReason reports whether err carries the given reason.
func IsReason(err error, reason Reason) bool {
	r, ok := ReasonOf(err)
	return ok && r == reason
}

// IsConfiguration reports configuration faults.
func IsConfiguration(err error) bool {
	r, _ := ReasonOf(err)
	switch r {
	case ReasonConfigMissing, ReasonConfigMalformed, ReasonDuplicateProcessor:
		return true
	}
	return false
}

// IsResolution reports processor resolution faults.
func IsResolution(err error) bool {
	r, _ := ReasonOf(err)
	switch r {
	case ReasonUnknownComponentType, ReasonNoConstructor, ReasonInstantiation:
		return true
	}
	return false
}

// IsArgument reports argument faults.
func IsArgument(err error) bool {
	r, _ := ReasonOf(err)
	switch r {
	case ReasonInvalidArgument, ReasonTypeMismatch, ReasonDuplicate, ReasonInvalidKey, ReasonMalformedElement:
		return true
	}
	return false
}

// IsInvalidState reports lifecycle faults.
func IsInvalidState(err error) bool {
	return IsReason(err, ReasonInvalidState)
}
