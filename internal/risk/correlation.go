package risk

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MonteCarloMode selects how per-asset draws relate to each other
type MonteCarloMode string

const (
	// Independent draws ignore the correlation matrix
	Independent MonteCarloMode = "independent"
	// Cholesky correlates draws through the Cholesky factor of the correlation matrix
	Cholesky MonteCarloMode = "cholesky"
)

// correlator turns independent standard normals into correlated ones
type correlator struct {
	n int
	l *mat.TriDense // nil = independent
}

// newCorrelator factors the correlation matrix over assets.
// Missing off-diagonal entries are 0, the diagonal is 1.
// ok is false when the matrix is not positive definite.
func newCorrelator(assets []string, corr CorrelationMatrix) (c correlator, ok bool) {
	n := len(assets)
	c.n = n
	if n == 0 {
		return c, true
	}

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		sym.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			v, _ := corr.Get(assets[i], assets[j])
			sym.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(sym) {
		return correlator{n: n}, false
	}
	var l mat.TriDense
	chol.LTo(&l)
	c.l = &l
	return c, true
}

// draw fills z with n standard normals, correlated when a factor is present
func (c correlator) draw(rng *rand.Rand, z, scratch []float64) {
	for i := 0; i < c.n; i++ {
		scratch[i] = rng.NormFloat64()
	}
	if c.l == nil {
		copy(z, scratch)
		return
	}
	for i := 0; i < c.n; i++ {
		var sum float64
		for j := 0; j <= i; j++ {
			sum += c.l.At(i, j) * scratch[j]
		}
		z[i] = sum
	}
}

// PearsonCorrelation returns the sample correlation of equal-length series; 0 on degenerate input
func PearsonCorrelation(x, y []float64) float64 {
	n := len(x)
	if n != len(y) || n < 2 {
		return 0
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}
