package pdmp

import (
	"fmt"
	"math"
)

// State is a point of the process state space: an ordered vector of real
// coordinates. For position/velocity processes the first half of the
// coordinates is the position and the second half the velocity.
//
// State is immutable by convention. WithModified returns a copy;
// ModifyInPlace is the only mutating method.
type State struct {
	coords []float64
}

// NewState creates a state holding a copy of coords.
func NewState(coords []float64) State {
	c := make([]float64, len(coords))
	copy(c, coords)
	return State{coords: c}
}

// NewPositionVelocityState concatenates position and velocity into a state.
// Panics with ErrConfiguration if their lengths differ.
func NewPositionVelocityState(position, velocity []float64) State {
	if len(position) != len(velocity) {
		panic(fmt.Errorf("%w: position has %d coordinates, velocity has %d",
			ErrConfiguration, len(position), len(velocity)))
	}
	c := make([]float64, 0, 2*len(position))
	c = append(c, position...)
	c = append(c, velocity...)
	return State{coords: c}
}

// Dim returns the number of coordinates.
func (s State) Dim() int { return len(s.coords) }

// At returns the coordinate at index i.
func (s State) At(i int) float64 {
	s.checkIndex(i)
	return s.coords[i]
}

// Coords returns a copy of all coordinates.
func (s State) Coords() []float64 {
	c := make([]float64, len(s.coords))
	copy(c, s.coords)
	return c
}

// Position returns a copy of the first half of the coordinates.
func (s State) Position() []float64 {
	half := s.half()
	return append([]float64(nil), s.coords[:half]...)
}

// Velocity returns a copy of the second half of the coordinates.
func (s State) Velocity() []float64 {
	half := s.half()
	return append([]float64(nil), s.coords[half:]...)
}

// Subvector returns the coordinates at ids, in the order given.
// An empty id list yields an empty vector.
func (s State) Subvector(ids []int) []float64 {
	sub := make([]float64, len(ids))
	for k, id := range ids {
		s.checkIndex(id)
		sub[k] = s.coords[id]
	}
	return sub
}

// WithModified returns a copy of s with coordinate ids[k] set to values[k].
func (s State) WithModified(ids []int, values []float64) State {
	out := NewState(s.coords)
	out.ModifyInPlace(ids, values)
	return out
}

// ModifyInPlace sets coordinate ids[k] to values[k].
func (s *State) ModifyInPlace(ids []int, values []float64) {
	if len(ids) != len(values) {
		panic(fmt.Errorf("%w: %d ids but %d modification values",
			ErrConfiguration, len(ids), len(values)))
	}
	for _, id := range ids {
		s.checkIndex(id)
	}
	for k, id := range ids {
		s.coords[id] = values[k]
	}
}

// Equal reports exact coordinate-wise equality.
func (s State) Equal(other State) bool {
	if len(s.coords) != len(other.coords) {
		return false
	}
	for i := range s.coords {
		if s.coords[i] != other.coords[i] {
			return false
		}
	}
	return true
}

// ApproxEqual reports coordinate-wise equality within an absolute tolerance.
func (s State) ApproxEqual(other State, tol float64) bool {
	if len(s.coords) != len(other.coords) {
		return false
	}
	for i := range s.coords {
		if math.Abs(s.coords[i]-other.coords[i]) > tol {
			return false
		}
	}
	return true
}

// String renders the state as its coordinate vector.
func (s State) String() string {
	return fmt.Sprintf("%v", s.coords)
}

func (s State) checkIndex(i int) {
	if i < 0 || i >= len(s.coords) {
		panic(fmt.Errorf("%w: coordinate %d, state has %d", ErrOutOfRange, i, len(s.coords)))
	}
}

func (s State) half() int {
	n := len(s.coords)
	if n == 0 || n%2 != 0 {
		panic(fmt.Errorf("%w: position/velocity split needs a positive even dimension, got %d", ErrDomain, n))
	}
	return n / 2
}
