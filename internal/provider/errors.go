package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// SenderError describes a delivery that never produced a notify-service verdict.
type SenderError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *SenderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := []string{"notify sender"}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *SenderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether a delivery error might succeed on a later attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}

	var senderErr *SenderError
	if errors.As(err, &senderErr) {
		return senderErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// FailureReason returns a low-cardinality label for metrics and logs.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return "rejected"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case IsTransient(err):
		return "transient_error"
	default:
		return "permanent_error"
	}
}
