package domain

import (
	"errors"
	"fmt"
)

// Error kinds mirror the spec's error taxonomy: configuration errors are
// detected before any media I/O starts, input/invariant errors are raised
// by a single processor and propagated through the scheduler's error flag,
// and capacity errors are raised when a codec adapter's internal queue is
// full or when the muxer cannot write or fit its output.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrInput         = errors.New("input error")
	ErrInvariant     = errors.New("invariant violation")
	ErrCapacity      = errors.New("capacity error")
)

func WrapConfiguration(cause error) error { return fmt.Errorf("%w: %v", ErrConfiguration, cause) }
func WrapInput(cause error) error         { return fmt.Errorf("%w: %v", ErrInput, cause) }
func WrapInvariant(cause error) error     { return fmt.Errorf("%w: %v", ErrInvariant, cause) }
func WrapCapacity(cause error) error      { return fmt.Errorf("%w: %v", ErrCapacity, cause) }
