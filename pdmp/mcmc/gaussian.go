package mcmc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/inference-sim/pdmp-sim/pdmp"
)

// Gaussian is a multivariate normal target, held by its mean and precision.
type Gaussian struct {
	mean      *mat.VecDense
	precision *mat.SymDense
}

// NewGaussian creates a Gaussian from a mean vector and a row-major
// covariance matrix, which must be symmetric positive definite.
func NewGaussian(mean []float64, covariance [][]float64) (*Gaussian, error) {
	n := len(mean)
	if n == 0 {
		return nil, fmt.Errorf("%w: gaussian needs at least one dimension", pdmp.ErrConfiguration)
	}
	if len(covariance) != n {
		return nil, fmt.Errorf("%w: covariance has %d rows for a %d-dimensional mean",
			pdmp.ErrConfiguration, len(covariance), n)
	}
	data := make([]float64, 0, n*n)
	for i, row := range covariance {
		if len(row) != n {
			return nil, fmt.Errorf("%w: covariance row %d has %d entries, want %d",
				pdmp.ErrConfiguration, i, len(row), n)
		}
		for j := 0; j < i; j++ {
			if row[j] != covariance[j][i] {
				return nil, fmt.Errorf("%w: covariance is not symmetric at (%d, %d)", pdmp.ErrConfiguration, i, j)
			}
		}
		data = append(data, row...)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(n, data)); !ok {
		return nil, fmt.Errorf("%w: covariance is not positive definite", pdmp.ErrDomain)
	}
	precision := mat.NewSymDense(n, nil)
	if err := chol.InverseTo(precision); err != nil {
		return nil, fmt.Errorf("%w: inverting covariance: %v", pdmp.ErrDomain, err)
	}
	return &Gaussian{
		mean:      mat.NewVecDense(n, append([]float64(nil), mean...)),
		precision: precision,
	}, nil
}

// StandardGaussian returns the n-dimensional standard normal.
func StandardGaussian(n int) *Gaussian {
	precision := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		precision.SetSym(i, i, 1)
	}
	return &Gaussian{mean: mat.NewVecDense(n, nil), precision: precision}
}

// Dim returns the dimension of the target.
func (g *Gaussian) Dim() int { return g.mean.Len() }

// Mean returns a copy of the mean vector.
func (g *Gaussian) Mean() []float64 {
	return append([]float64(nil), g.mean.RawVector().Data...)
}

// Precision returns the inverse covariance.
func (g *Gaussian) Precision() mat.Symmetric { return g.precision }

// LogDensity returns the log density at x up to an additive constant.
func (g *Gaussian) LogDensity(x []float64) float64 {
	grad := g.EnergyGradient(x)
	centred := g.centred(x)
	return -0.5 * floats.Dot(centred, grad)
}

// LogDensityGradient returns -P(x - mean).
func (g *Gaussian) LogDensityGradient(x []float64) []float64 {
	grad := g.EnergyGradient(x)
	floats.Scale(-1, grad)
	return grad
}

// EnergyGradient returns P(x - mean), the gradient of the negative log density.
func (g *Gaussian) EnergyGradient(x []float64) []float64 {
	return g.apply(g.centred(x))
}

// apply returns P v.
func (g *Gaussian) apply(v []float64) []float64 {
	out := mat.NewVecDense(len(v), nil)
	out.MulVec(g.precision, mat.NewVecDense(len(v), v))
	return out.RawVector().Data
}

func (g *Gaussian) centred(x []float64) []float64 {
	if len(x) != g.Dim() {
		panic(fmt.Errorf("%w: point has %d coordinates, gaussian has %d", pdmp.ErrConfiguration, len(x), g.Dim()))
	}
	c := append([]float64(nil), x...)
	floats.Sub(c, g.mean.RawVector().Data)
	return c
}

// Factor is one term of a factorised target: a Gaussian over a subset of
// the model variables.
type Factor struct {
	Variables []int
	Target    *Gaussian
}

// GaussianChain returns a chain of n zero-mean variables where each
// neighbouring pair is a bivariate Gaussian factor with unit variances and
// correlation rho. Interior variables receive precision from two factors, so
// the marginals of the joint are not unit. A single variable yields one
// standard normal factor.
func GaussianChain(n int, rho float64) ([]Factor, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: chain needs at least one variable", pdmp.ErrConfiguration)
	}
	if math.Abs(rho) >= 1 {
		return nil, fmt.Errorf("%w: correlation must lie in (-1, 1), got %g", pdmp.ErrDomain, rho)
	}
	if n == 1 {
		return []Factor{{Variables: []int{0}, Target: StandardGaussian(1)}}, nil
	}
	pair, err := NewGaussian([]float64{0, 0}, [][]float64{{1, rho}, {rho, 1}})
	if err != nil {
		return nil, err
	}
	factors := make([]Factor, 0, n-1)
	for i := 0; i+1 < n; i++ {
		factors = append(factors, Factor{Variables: []int{i, i + 1}, Target: pair})
	}
	return factors, nil
}
