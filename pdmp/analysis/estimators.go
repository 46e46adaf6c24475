package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/stat"

	"github.com/inference-sim/pdmp-sim/pdmp"
)

// Integrand is a real function of the process state whose path average is
// being estimated.
type Integrand func(pdmp.State) float64

// Coordinate returns the integrand reading coordinate id.
func Coordinate(id int) Integrand {
	return func(s pdmp.State) float64 { return s.At(id) }
}

// DefaultQuadratureNodes is the Gauss-Legendre order used per segment. It
// integrates polynomials of degree up to 7 along the flow exactly.
const DefaultQuadratureNodes = 4

// integrateSegment integrates f along the flow from s for duration t.
func integrateSegment(f Integrand, flow pdmp.Flow, s pdmp.State, t float64, nodes int) float64 {
	if t <= 0 {
		return 0
	}
	return quad.Fixed(func(u float64) float64 {
		return f(flow.Advance(s, u))
	}, 0, t, nodes, quad.Legendre{}, 0)
}

// QuadratureMean estimates the path average of an integrand by integrating
// every segment with Gauss-Legendre quadrature.
type QuadratureMean struct {
	integrand Integrand
	nodes     int
	segments  segmentTracker
	length    float64
	integral  float64
}

// NewQuadratureMean estimates the path average of f with nodes quadrature
// points per segment; a non-positive nodes selects DefaultQuadratureNodes.
func NewQuadratureMean(f Integrand, nodes int) *QuadratureMean {
	if nodes <= 0 {
		nodes = DefaultQuadratureNodes
	}
	return &QuadratureMean{integrand: f, nodes: nodes}
}

func (q *QuadratureMean) ProcessBegins(p *pdmp.Pdmp, initial pdmp.State) {
	q.segments.begin(p, initial)
	q.length, q.integral = 0, 0
}

func (q *QuadratureMean) IterationResult(r pdmp.IterationResult) {
	from := q.segments.next(r)
	q.integral += integrateSegment(q.integrand, q.segments.flow, from, r.ElapsedTime, q.nodes)
	q.length += r.ElapsedTime
}

func (q *QuadratureMean) ProcessEnded() {}

// Mean returns the path average, or NaN before any process time elapsed.
func (q *QuadratureMean) Mean() float64 {
	if q.length == 0 {
		return math.NaN()
	}
	return q.integral / q.length
}

// TrajectoryLength returns the process time integrated so far.
func (q *QuadratureMean) TrajectoryLength() float64 { return q.length }

// Batch is a contiguous stretch of the path.
type Batch struct {
	Length   float64
	Integral float64
}

// Mean returns the batch's path average.
func (b Batch) Mean() float64 { return b.Integral / b.Length }

// DefaultMaxBatches bounds the number of batches kept by BatchMeans.
const DefaultMaxBatches = 32

// BatchMeans estimates a path average and its asymptotic variance.
// Segments are grouped into batches holding the same number of segments.
// When the batch count reaches its maximum, neighbouring batches merge
// pairwise and the batch size doubles, so sizes stay a power of two.
type BatchMeans struct {
	integrand  Integrand
	nodes      int
	maxBatches int
	segments   segmentTracker

	perBatch int
	inLast   int
	batches  []Batch
}

// NewBatchMeans creates a batch means estimator keeping at most maxBatches
// batches; maxBatches is rounded up to an even number of at least 2, and a
// non-positive value selects DefaultMaxBatches.
func NewBatchMeans(f Integrand, maxBatches int) *BatchMeans {
	if maxBatches <= 0 {
		maxBatches = DefaultMaxBatches
	}
	if maxBatches%2 != 0 {
		maxBatches++
	}
	return &BatchMeans{integrand: f, nodes: DefaultQuadratureNodes, maxBatches: maxBatches}
}

func (bm *BatchMeans) ProcessBegins(p *pdmp.Pdmp, initial pdmp.State) {
	bm.segments.begin(p, initial)
	bm.perBatch = 1
	bm.inLast = 0
	bm.batches = []Batch{{}}
}

func (bm *BatchMeans) IterationResult(r pdmp.IterationResult) {
	from := bm.segments.next(r)
	last := &bm.batches[len(bm.batches)-1]
	last.Integral += integrateSegment(bm.integrand, bm.segments.flow, from, r.ElapsedTime, bm.nodes)
	last.Length += r.ElapsedTime
	bm.inLast++
	if bm.inLast < bm.perBatch {
		return
	}
	if len(bm.batches) == bm.maxBatches {
		bm.merge()
	}
	bm.batches = append(bm.batches, Batch{})
	bm.inLast = 0
}

func (bm *BatchMeans) ProcessEnded() {}

func (bm *BatchMeans) merge() {
	merged := make([]Batch, 0, len(bm.batches)/2)
	for i := 0; i+1 < len(bm.batches); i += 2 {
		merged = append(merged, Batch{
			Length:   bm.batches[i].Length + bm.batches[i+1].Length,
			Integral: bm.batches[i].Integral + bm.batches[i+1].Integral,
		})
	}
	bm.batches = merged
	bm.perBatch *= 2
}

// Batches returns the completed batches in path order.
func (bm *BatchMeans) Batches() []Batch {
	if len(bm.batches) == 0 {
		return nil
	}
	return append([]Batch(nil), bm.batches[:len(bm.batches)-1]...)
}

// SegmentsPerBatch returns the current batch size.
func (bm *BatchMeans) SegmentsPerBatch() int { return bm.perBatch }

// Mean returns the path average over the whole path, or NaN before any
// process time elapsed.
func (bm *BatchMeans) Mean() float64 {
	var length, integral float64
	for _, b := range bm.batches {
		length += b.Length
		integral += b.Integral
	}
	if length == 0 {
		return math.NaN()
	}
	return integral / length
}

// AsymptoticVariance estimates the variance of the time-average CLT from
// the completed batches: sum_b L_b (m_b - m)^2 / (B - 1), where m is the
// length-weighted mean of the batch means m_b.
func (bm *BatchMeans) AsymptoticVariance() (float64, error) {
	means, lengths, err := bm.batchMeans(2)
	if err != nil {
		return 0, err
	}
	return weightedSquares(means, lengths, stat.Mean(means, lengths)) / float64(len(means)-1), nil
}

// AsymptoticVarianceKnownMean is AsymptoticVariance with the true mean of
// the integrand substituted for its estimate.
func (bm *BatchMeans) AsymptoticVarianceKnownMean(mean float64) (float64, error) {
	means, lengths, err := bm.batchMeans(1)
	if err != nil {
		return 0, err
	}
	return weightedSquares(means, lengths, mean) / float64(len(means)), nil
}

func (bm *BatchMeans) batchMeans(atLeast int) (means, lengths []float64, err error) {
	batches := bm.Batches()
	if len(batches) < atLeast {
		return nil, nil, fmt.Errorf("%w: %d completed batches, need %d", pdmp.ErrConfiguration, len(batches), atLeast)
	}
	means = make([]float64, len(batches))
	lengths = make([]float64, len(batches))
	for i, b := range batches {
		means[i], lengths[i] = b.Mean(), b.Length
	}
	return means, lengths, nil
}

func weightedSquares(x, w []float64, centre float64) float64 {
	d := make([]float64, len(x))
	for i := range x {
		d[i] = (x[i] - centre) * (x[i] - centre)
	}
	return floats.Dot(d, w)
}
