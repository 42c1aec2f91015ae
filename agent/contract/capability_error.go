package contract

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindNotFound   ErrorKind = "not_found"
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindCanceled   ErrorKind = "canceled"
	ErrorKindUpstream   ErrorKind = "upstream"
	ErrorKindInternal   ErrorKind = "internal"
)

// CapabilityError is the typed failure of a dispatch. It travels as a value inside a
// CapabilityCall and is shown to the planner as an observation.
type CapabilityError struct {
	Kind       ErrorKind `json:"kind"`
	Capability string    `json:"capability"`
	Message    string    `json:"message"`
}

func (e *CapabilityError) Error() string {
	if e == nil {
		return ""
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "capability failed"
	}
	return fmt.Sprintf("%s (%s): %s", e.Capability, e.Kind, msg)
}

func (e *CapabilityError) Unwrap() error {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case ErrorKindValidation:
		return ErrValidation
	case ErrorKindNotFound:
		return ErrCapabilityNotFound
	case ErrorKindTimeout:
		return ErrCapabilityTimeout
	case ErrorKindCanceled:
		return ErrCapabilityCanceled
	case ErrorKindUpstream:
		return ErrCapabilityUpstream
	default:
		return ErrCapabilityInternal
	}
}

func NewCapabilityError(kind ErrorKind, capability string, format string, args ...any) *CapabilityError {
	return &CapabilityError{
		Kind:       kind,
		Capability: capability,
		Message:    fmt.Sprintf(format, args...),
	}
}

// AsCapabilityError classifies an arbitrary implementation error.
// Errors that already carry a CapabilityError keep their kind.
func AsCapabilityError(capability string, err error) *CapabilityError {
	if err == nil {
		return nil
	}
	var ce *CapabilityError
	if errors.As(err, &ce) {
		out := *ce
		if out.Capability == "" {
			out.Capability = capability
		}
		return &out
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrCapabilityTimeout):
		return NewCapabilityError(ErrorKindTimeout, capability, "%v", err)
	case errors.Is(err, context.Canceled), errors.Is(err, ErrCapabilityCanceled):
		return NewCapabilityError(ErrorKindCanceled, capability, "%v", err)
	case errors.Is(err, ErrValidation):
		return NewCapabilityError(ErrorKindValidation, capability, "%v", err)
	case errors.Is(err, ErrCapabilityInternal):
		return NewCapabilityError(ErrorKindInternal, capability, "%v", err)
	default:
		return NewCapabilityError(ErrorKindUpstream, capability, "%v", err)
	}
}
