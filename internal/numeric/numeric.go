// Package numeric is the single boundary between the analysis code and the
// numeric libraries it depends on (gonum for statistics and vector algebra,
// algo-fft for fast convolution). Callers never see library-specific
// signatures or version differences.
package numeric

import (
	"math"
	"sort"

	algofft "github.com/cwbudde/algo-fft"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 clamps v to [0,1] and maps NaN to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return Clamp(v, 0, 1)
}

func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func MaxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Mean returns the arithmetic mean, 0 for empty input.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}

// PopVariance returns the population (1/N) variance, 0 for fewer than two
// values.
func PopVariance(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	return stat.PopVariance(x, nil)
}

// Norm2 returns the Euclidean norm.
func Norm2(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Norm(x, 2)
}

// Dot returns the inner product of equal-length vectors.
func Dot(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	return floats.Dot(a, b)
}

// Max returns the largest value, 0 for empty input.
func Max(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Max(x)
}

// ArgMax returns the index of the largest value, -1 for empty input.
func ArgMax(x []float64) int {
	if len(x) == 0 {
		return -1
	}
	return floats.MaxIdx(x)
}

// Median returns the median of x without modifying it.
func Median(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return 0.5 * (s[n/2-1] + s[n/2])
}

// Autocorrelation returns the raw autocorrelation of x for lags 0..len(x)-1,
// computed as an FFT convolution of x with its time reverse.
func Autocorrelation(x []float64) ([]float64, error) {
	n := len(x)
	if n == 0 {
		return nil, nil
	}
	a := make([]float32, n)
	b := make([]float32, n)
	for i, v := range x {
		a[i] = float32(v)
		b[n-1-i] = float32(v)
	}
	full := make([]float32, 2*n-1)
	if err := algofft.ConvolveReal(full, a, b); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for k := 0; k < n; k++ {
		out[k] = float64(full[n-1+k])
	}
	return out, nil
}

// CrossCorrelation returns sum_i a[i+lag]*b[i] for lag in
// [-(len(b)-1), len(a)-1]. Lag 0 sits at index len(b)-1.
func CrossCorrelation(a, b []float64) ([]float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return nil, nil
	}
	fa := make([]float32, len(a))
	for i, v := range a {
		fa[i] = float32(v)
	}
	fb := make([]float32, len(b))
	for i, v := range b {
		fb[len(b)-1-i] = float32(v)
	}
	full := make([]float32, len(a)+len(b)-1)
	if err := algofft.ConvolveReal(full, fa, fb); err != nil {
		return nil, err
	}
	out := make([]float64, len(full))
	for i, v := range full {
		out[i] = float64(v)
	}
	return out, nil
}

// JensenShannon returns the Jensen-Shannon divergence of two distributions
// over the same support, normalized to [0,1] (base 2). Inputs are
// renormalized; zero-mass bins contribute nothing. Degenerate inputs with no
// mass on either side yield 0.
func JensenShannon(p, q []float64) float64 {
	if len(p) == 0 || len(p) != len(q) {
		return 0
	}
	pn, okP := normalized(p)
	qn, okQ := normalized(q)
	if !okP || !okQ {
		return 0
	}
	return Clamp01(stat.JensenShannon(pn, qn) / math.Ln2)
}

func normalized(p []float64) ([]float64, bool) {
	out := make([]float64, len(p))
	var sum float64
	for i, v := range p {
		if v < 0 || math.IsNaN(v) {
			v = 0
		}
		out[i] = v
		sum += v
	}
	if sum <= 0 {
		return nil, false
	}
	floats.Scale(1/sum, out)
	return out, true
}
