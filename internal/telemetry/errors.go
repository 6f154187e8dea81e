package telemetry

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means the platform has no value to report right now.
	ErrUnavailable = errors.New("telemetry value unavailable")
	// ErrUnsupported means this system lacks the source entirely.
	ErrUnsupported = errors.New("telemetry source unsupported on this system")
	// ErrDenied means the source exists but access was refused.
	ErrDenied = errors.New("access to telemetry source denied")
)

// Error codes carried in ErrorRecord.Code.
const (
	CodeUnavailable    = "Unavailable"
	CodeUnsupported    = "Unsupported"
	CodeDenied         = "Denied"
	CodeNotImplemented = "NotImplemented"
	CodeInternal       = "Internal"
)

// ErrorRecord is the three-part error returned to bridge callers.
type ErrorRecord struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *ErrorRecord) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
}

// NewErrorRecord classifies err into a bridge error record. The cause chain
// below the outermost message lands in Details.
func NewErrorRecord(err error) *ErrorRecord {
	if err == nil {
		return nil
	}
	var rec *ErrorRecord
	if errors.As(err, &rec) {
		return rec
	}

	code := CodeInternal
	switch {
	case errors.Is(err, ErrUnavailable):
		code = CodeUnavailable
	case errors.Is(err, ErrUnsupported):
		code = CodeUnsupported
	case errors.Is(err, ErrDenied):
		code = CodeDenied
	}

	details := ""
	if cause := rootCause(err); cause != nil {
		details = "Cause: " + cause.Error()
	}
	return &ErrorRecord{Code: code, Message: err.Error(), Details: details}
}

// rootCause follows the wrap chain to its innermost error. For joined
// errors the last one is followed, which is where native causes are placed.
func rootCause(err error) error {
	var cause error
	for {
		var next error
		switch e := err.(type) {
		case interface{ Unwrap() error }:
			next = e.Unwrap()
		case interface{ Unwrap() []error }:
			if errs := e.Unwrap(); len(errs) > 0 {
				next = errs[len(errs)-1]
			}
		}
		if next == nil {
			return cause
		}
		cause, err = next, next
	}
}
