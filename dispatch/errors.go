// Package dispatch implements the edge dispatch core: a forwarding table
// keyed by lambda name, pluggable entry selection policies, a local
// optimizer that turns observed latencies into weight adjustments, and a
// windowed processing-time estimator. See SPEC_FULL.md for the full
// component breakdown.
package dispatch

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to callers and, ultimately, to the wire
// (§6, §7). Use errors.Is against these; DestinationUnreachable and
// InvalidConfiguration are typically wrapped with context via %w.
var (
	// ErrNoDestinations is returned when a lookup targets an unknown or
	// empty lambda.
	ErrNoDestinations = errors.New("no destinations")

	// ErrDestinationNotFound is returned when removing an absent
	// destination from an entry or table.
	ErrDestinationNotFound = errors.New("destination not found")

	// ErrDestinationAlreadyExists is returned by a strict-add operation
	// over an existing (lambda, destination) pair.
	ErrDestinationAlreadyExists = errors.New("destination already exists")

	// ErrInvalidWeight is returned for a negative or non-finite weight.
	ErrInvalidWeight = errors.New("invalid weight")

	// ErrDestinationUnreachable is surfaced by the dispatcher on
	// transport failure. It is never fed to the local optimizer.
	ErrDestinationUnreachable = errors.New("destination unreachable")

	// ErrInvalidConfiguration is returned by constructors given a
	// malformed configuration string or an unsupported option, and by
	// ForwardingTable.Change for a non-final destination.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// invalidWeightf wraps ErrInvalidWeight with a formatted reason.
func invalidWeightf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidWeight, fmt.Sprintf(format, args...))
}

// invalidConfigf wraps ErrInvalidConfiguration with a formatted reason.
func invalidConfigf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}
