package dsp

import (
	"math"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
)

// Biquad implements a second-order IIR filter (no heap allocations in Process)
type Biquad struct {
	// Coefficients
	b0, b1, b2 float64
	a1, a2     float64

	// State (previous samples)
	x1, x2 float64 // input history
	y1, y2 float64 // output history
}

// NewBiquad creates a new biquad filter with the given coefficients
func NewBiquad(b0, b1, b2, a1, a2 float64) *Biquad {
	return &Biquad{
		b0: b0,
		b1: b1,
		b2: b2,
		a1: a1,
		a2: a2,
	}
}

// Process processes one sample through the biquad filter
func (b *Biquad) Process(input float64) float64 {
	// Direct Form I implementation
	output := b.b0*input + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2
	output = dspcore.FlushDenormals(output)

	b.x2 = b.x1
	b.x1 = input
	b.y2 = b.y1
	b.y1 = output

	return output
}

// Reset clears the filter state
func (b *Biquad) Reset() {
	b.x1, b.x2 = 0, 0
	b.y1, b.y2 = 0, 0
}

func normalizedBiquad(b0, b1, b2, a0, a1, a2 float64) *Biquad {
	return NewBiquad(b0/a0, b1/a0, b2/a0, a1/a0, a2/a0)
}

// NewLowpass creates an RBJ lowpass biquad
func NewLowpass(cutoff, sampleRate, q float64) *Biquad {
	w0 := 2.0 * math.Pi * cutoff / sampleRate
	alpha := math.Sin(w0) / (2.0 * q)
	cosw0 := math.Cos(w0)

	return normalizedBiquad(
		(1.0-cosw0)/2.0,
		1.0-cosw0,
		(1.0-cosw0)/2.0,
		1.0+alpha,
		-2.0*cosw0,
		1.0-alpha,
	)
}

// NewHighpass creates an RBJ highpass biquad
func NewHighpass(cutoff, sampleRate, q float64) *Biquad {
	w0 := 2.0 * math.Pi * cutoff / sampleRate
	alpha := math.Sin(w0) / (2.0 * q)
	cosw0 := math.Cos(w0)

	return normalizedBiquad(
		(1.0+cosw0)/2.0,
		-(1.0 + cosw0),
		(1.0+cosw0)/2.0,
		1.0+alpha,
		-2.0*cosw0,
		1.0-alpha,
	)
}

// Butterworth Q values for a 4th order response built from two biquads.
var butterworth4Q = [2]float64{0.54119610, 1.30656296}

// Chain runs samples through a series of biquads.
type Chain []*Biquad

// Reset clears every stage.
func (c Chain) Reset() {
	for _, b := range c {
		b.Reset()
	}
}

// Filter runs x through the chain and returns a new slice.
func (c Chain) Filter(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		for _, b := range c {
			v = b.Process(v)
		}
		out[i] = v
	}
	return out
}

// FilterZeroPhase runs the chain forward and then backward over x, which
// cancels the phase response and squares the magnitude response.
func (c Chain) FilterZeroPhase(x []float64) []float64 {
	c.Reset()
	fwd := c.Filter(x)
	reverse(fwd)
	c.Reset()
	out := c.Filter(fwd)
	reverse(out)
	c.Reset()
	return out
}

// NewBandpassChain builds a 4th order Butterworth highpass at lo followed by
// a 4th order Butterworth lowpass at hi.
func NewBandpassChain(lo, hi, sampleRate float64) Chain {
	nyq := sampleRate / 2
	if hi >= nyq {
		hi = 0.95 * nyq
	}
	if lo <= 0 {
		lo = 1
	}
	c := make(Chain, 0, 4)
	for _, q := range butterworth4Q {
		c = append(c, NewHighpass(lo, sampleRate, q))
	}
	for _, q := range butterworth4Q {
		c = append(c, NewLowpass(hi, sampleRate, q))
	}
	return c
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}

// LagrangeInterpolator provides higher-order fractional delay interpolation
type LagrangeInterpolator struct {
	order int
}

// NewLagrangeInterpolator creates a new Lagrange interpolator
// order: 1 = linear, 3 = cubic
func NewLagrangeInterpolator(order int) *LagrangeInterpolator {
	return &LagrangeInterpolator{
		order: order,
	}
}

// Interpolate performs Lagrange interpolation
// samples: array of samples around the interpolation point
// frac: fractional position (0.0 to 1.0)
func (l *LagrangeInterpolator) Interpolate(samples []float64, frac float64) float64 {
	if l.order == 3 && len(samples) >= 4 {
		// Interpolating between samples[1] and samples[2]
		d := frac
		c0 := samples[1]
		c1 := samples[2] - samples[0]/3.0 - samples[1]/2.0 - samples[3]/6.0
		c2 := samples[0]/2.0 - samples[1] + samples[2]/2.0
		c3 := samples[1]/2.0 - samples[2]/2.0 + (samples[3]-samples[0])/6.0

		return c0 + d*(c1+d*(c2+d*c3))
	}

	return samples[0] + frac*(samples[1]-samples[0])
}

// ResampleCubic stretches x to n output samples with cubic Lagrange
// interpolation. Used where a rational-ratio resampler cannot be built.
func ResampleCubic(x []float64, n int) []float64 {
	if n <= 0 || len(x) == 0 {
		return nil
	}
	out := make([]float64, n)
	if len(x) == 1 {
		for i := range out {
			out[i] = x[0]
		}
		return out
	}
	interp := NewLagrangeInterpolator(3)
	step := float64(len(x)-1) / float64(maxInt(n-1, 1))
	var win [4]float64
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		for k := 0; k < 4; k++ {
			win[k] = extrapolatedAt(x, idx-1+k)
		}
		out[i] = interp.Interpolate(win[:], frac)
	}
	return out
}

// extrapolatedAt reads x[j], continuing the end slopes linearly outside the
// signal. len(x) must be at least 2.
func extrapolatedAt(x []float64, j int) float64 {
	n := len(x)
	switch {
	case j < 0:
		return x[0] + float64(j)*(x[1]-x[0])
	case j >= n:
		return x[n-1] + float64(j-n+1)*(x[n-1]-x[n-2])
	}
	return x[j]
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
