package pdmp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockJumpTimer struct{ mock.Mock }

func (m *mockJumpTimer) JumpTime(s State) float64 {
	return m.Called(s).Get(0).(float64)
}

type mockJumper struct{ mock.Mock }

func (m *mockJumper) Jump(s State) State {
	return m.Called(s).Get(0).(State)
}

func TestPdmp_SimulateOneIteration(t *testing.T) {
	initial := NewPositionVelocityState([]float64{0.2, 0.3}, []float64{1, 2})
	advanced := LinearFlow{}.Advance(initial, 2)
	jumped := NewPositionVelocityState([]float64{-1, -1}, []float64{0, 0})

	timer := new(mockJumpTimer)
	timer.On("JumpTime", initial).Return(2.0).Once()
	jumper := new(mockJumper)
	jumper.On("Jump", mock.MatchedBy(func(s State) bool { return s.ApproxEqual(advanced, 1e-12) })).
		Return(jumped).Once()

	p := New(timer, jumper, LinearFlow{})
	got := p.SimulateOneIteration(initial)

	assert.True(t, got.Equal(IterationResult{State: jumped, ElapsedTime: 2}), "got %+v", got)
	timer.AssertExpectations(t)
	jumper.AssertExpectations(t)
}

func TestPdmp_Accessors(t *testing.T) {
	b := NewBuilder(2, nil)
	_, err := b.AddFactorNode([]int{0}, func([]float64, State, *FactorNode) Proposal { return Exact(1) }, nil)
	require.NoError(t, err)
	_, err = b.AddMarkovKernelNode([]int{1}, []int{1}, identityKernel)
	require.NoError(t, err)
	p, err := b.Build()
	require.NoError(t, err)

	assert.IsType(t, &PoissonProcess{}, p.PoissonProcess())
	assert.IsType(t, &MarkovKernel{}, p.MarkovKernel())
	assert.Equal(t, LinearFlow{}, p.Flow())
}

func TestIterationResult_Equal(t *testing.T) {
	a := IterationResult{State: NewState([]float64{1}), ElapsedTime: 1}
	assert.True(t, a.Equal(IterationResult{State: NewState([]float64{1}), ElapsedTime: 1}))
	assert.False(t, a.Equal(IterationResult{State: NewState([]float64{1}), ElapsedTime: 2}))
	assert.False(t, a.Equal(IterationResult{State: NewState([]float64{2}), ElapsedTime: 1}))
}

func TestMarkovKernel_UsesLastFiredFactor(t *testing.T) {
	g := newTestGraph(t, [][]int{{0}, {1}}, [][]int{{0}, {1}}, identityFlow{})
	reporter := &fixedReporter{id: -1}
	mk := NewMarkovKernel(g, reporter)
	assertPanicsWith(t, ErrNoFactorFired, func() { mk.Jump(NewState([]float64{0, 0})) })
	assertPanicsWith(t, ErrNoFactorFired, func() { mk.LastModifiedVariables() })

	reporter.id = 1
	assert.Equal(t, []int{1}, mk.LastModifiedVariables())
	mk.LastModifiedVariables()[0] = 7
	assert.Equal(t, []int{1}, g.Kernel(1).ModifiedVariableIDs, "callers must not reach the kernel's ids")
	assert.Equal(t, []float64{3, 4}, mk.Jump(NewState([]float64{3, 4})).Coords())
}

type fixedReporter struct{ id int }

func (r *fixedReporter) LastFactorID() int { return r.id }
