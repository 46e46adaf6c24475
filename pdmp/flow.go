package pdmp

import "fmt"

// Flow is the deterministic dynamics followed between jumps.
type Flow interface {
	// Advance returns the state reached from s after time t. Must be pure.
	Advance(s State, t float64) State
	// DependentVariables returns the coordinates whose future values depend
	// on coordinate id in a state of dimension dim.
	DependentVariables(id, dim int) []int
}

// LinearFlow is constant-velocity motion: position += velocity * t.
type LinearFlow struct{}

// Advance moves the position half of s along the velocity half for time t.
func (LinearFlow) Advance(s State, t float64) State {
	half := s.half()
	out := NewState(s.coords)
	for i := 0; i < half; i++ {
		out.coords[i] += out.coords[half+i] * t
	}
	return out
}

// DependentVariables returns {id} for a position coordinate and
// {id - dim/2, id} for a velocity coordinate.
// Panics with ErrDomain on a non-positive or odd dim, or an id outside [0, dim).
func (LinearFlow) DependentVariables(id, dim int) []int {
	if dim <= 0 || dim%2 != 0 {
		panic(fmt.Errorf("%w: linear flow needs a positive even dimension, got %d", ErrDomain, dim))
	}
	if id < 0 || id >= dim {
		panic(fmt.Errorf("%w: coordinate %d outside dimension %d", ErrDomain, id, dim))
	}
	half := dim / 2
	if id < half {
		return []int{id}
	}
	return []int{id - half, id}
}
