package sched

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an operation references an unknown job ID.
	ErrNotFound = errors.New("job not found")

	// ErrInvalid is wrapped by all validation failures rejected at the
	// facade boundary.
	ErrInvalid = errors.New("invalid argument")
)

func errMinuteRange(field string, v int) error {
	return fmt.Errorf("%w: %s must be within 0..1439, got %d", ErrInvalid, field, v)
}

func errBadTimezone(tz string, err error) error {
	return fmt.Errorf("%w: load timezone %q: %v", ErrInvalid, tz, err)
}
