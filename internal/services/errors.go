package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Transition errors. Use errors.Is to classify; ErrorKind gives a stable label.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrInvalidReference = errors.New("invalid reference")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrForbidden        = errors.New("forbidden")
	ErrTimeout          = errors.New("timeout")
	ErrUnexpected       = errors.New("unexpected error")
)

// CapacityExceededError carries the numbers shown to the operator.
type CapacityExceededError struct {
	Required      int64
	Available     int64
	LocationNames []string
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("capacity exceeded: required %d, available %d across %s",
		e.Required, e.Available, strings.Join(e.LocationNames, ", "))
}

func (e *CapacityExceededError) Is(target error) bool {
	return target == ErrCapacityExceeded
}

// ErrorKind maps an error to the label used in API responses and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrInvalidReference):
		return "invalid_reference"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "unexpected"
	}
}

// isBusinessError reports whether err is one of the locally detected outcomes
// that must reach the caller unchanged.
func isBusinessError(err error) bool {
	for _, target := range []error{ErrNotFound, ErrInvalidState, ErrInvalidReference, ErrCapacityExceeded, ErrInvalidArgument, ErrForbidden} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// classify turns storage failures into ErrTimeout or ErrUnexpected, keeping
// the underlying error in the chain.
func classify(ctx context.Context, err error) error {
	if err == nil || isBusinessError(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrUnexpected, err)
}
