// Package wave holds the mono waveform type shared by the analysis,
// transformation and repair stages, plus the level helpers they all use.
package wave

import "math"

// GenerationRate is the sample rate of every generation-facing waveform.
const GenerationRate = 32000

// Waveform is a mono sequence of samples at a fixed rate. Stages that change
// samples work on a Clone; a Waveform is never mutated after hand-off.
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// New wraps samples without copying.
func New(samples []float64, sampleRate int) Waveform {
	return Waveform{Samples: samples, SampleRate: sampleRate}
}

// Len returns the number of samples.
func (w Waveform) Len() int { return len(w.Samples) }

// Seconds returns the duration in seconds.
func (w Waveform) Seconds() float64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// Clone returns a deep copy.
func (w Waveform) Clone() Waveform {
	return Waveform{
		Samples:    append([]float64(nil), w.Samples...),
		SampleRate: w.SampleRate,
	}
}

// Slice returns the samples in [start,end) clamped to the signal bounds.
// The result shares memory with w.
func (w Waveform) Slice(start, end int) Waveform {
	if start < 0 {
		start = 0
	}
	if end > len(w.Samples) {
		end = len(w.Samples)
	}
	if end < start {
		end = start
	}
	return Waveform{Samples: w.Samples[start:end], SampleRate: w.SampleRate}
}

// Float32 converts the samples for encoders that take float32 data.
func (w Waveform) Float32() []float32 {
	out := make([]float32, len(w.Samples))
	for i, v := range w.Samples {
		out[i] = float32(v)
	}
	return out
}

// RMS returns the root mean square of x, 0 for empty input.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

// Peak returns the maximum absolute sample value.
func Peak(x []float64) float64 {
	var p float64
	for _, v := range x {
		if a := math.Abs(v); a > p {
			p = a
		}
	}
	return p
}

// ZeroCrossingRate returns sign changes per sample over x.
func ZeroCrossingRate(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(x); i++ {
		if (x[i-1] >= 0) != (x[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(x))
}

// PeakFloor is the smallest peak that PeakNormalize will scale up.
const PeakFloor = 1e-6

// PeakNormalize scales x in place so its peak equals target. Signals whose
// peak is below PeakFloor are left untouched.
func PeakNormalize(x []float64, target float64) bool {
	p := Peak(x)
	if p <= PeakFloor {
		return false
	}
	g := target / p
	for i := range x {
		x[i] *= g
	}
	return true
}

// LinToDB converts a linear amplitude to dBFS with a -240 dB floor.
func LinToDB(x float64) float64 {
	if x < 1e-12 {
		x = 1e-12
	}
	return 20.0 * math.Log10(x)
}
