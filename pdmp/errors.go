package pdmp

import "errors"

// Sentinel errors. Construction APIs return errors wrapping one of these;
// misuse detected while a process is running panics with a wrapped sentinel.
var (
	// ErrConfiguration reports a badly assembled graph or builder input:
	// mismatched node counts, a kernel writing variables it does not read,
	// mismatched modification lengths.
	ErrConfiguration = errors.New("pdmp: configuration error")

	// ErrOutOfRange reports a factor, kernel or coordinate index outside its
	// declared bounds.
	ErrOutOfRange = errors.New("pdmp: index out of range")

	// ErrDomain reports a dimension or coordinate that a flow cannot handle.
	ErrDomain = errors.New("pdmp: domain error")

	// ErrUnimplemented is raised by FactorNode.EvaluateIntensity on factors
	// that declared no intensity function.
	ErrUnimplemented = errors.New("pdmp: called unimplemented intensity")

	// ErrNoFactorFired is raised when a kernel is asked to jump before the
	// scheduler has selected any factor.
	ErrNoFactorFired = errors.New("pdmp: no factor has fired yet")

	// ErrNoFiniteEvent is raised when the earliest accepted event lies at
	// infinity, i.e. no factor can ever fire again.
	ErrNoFiniteEvent = errors.New("pdmp: no factor proposed a finite event time")
)
