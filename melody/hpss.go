package melody

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/cwbudde/algo-restyle/dsp"
)

// HPSS geometry. Median filters span 17 frames in time for the harmonic
// estimate and 17 bins in frequency for the percussive one.
const (
	hpssFrame  = 2048
	hpssHop    = 512
	hpssKernel = 17
	hpssPower  = 2.0
)

// Harmonic returns the harmonic part of x using median-filter soft masks on
// the STFT. The output has the same length as x.
func Harmonic(x []float64) []float64 {
	n := len(x)
	if n == 0 {
		return nil
	}
	pad := hpssFrame / 2
	padded := make([]float64, n+2*pad)
	copy(padded[pad:], x)

	win := dsp.Hann(hpssFrame)
	fft := fourier.NewFFT(hpssFrame)
	frames := 1 + (len(padded)-hpssFrame+hpssHop-1)/hpssHop
	spec := make([][]complex128, frames)
	mag := make([][]float64, frames)
	buf := make([]float64, hpssFrame)
	for f := 0; f < frames; f++ {
		start := f * hpssHop
		for i := range buf {
			if j := start + i; j < len(padded) {
				buf[i] = padded[j] * win[i]
			} else {
				buf[i] = 0
			}
		}
		spec[f] = fft.Coefficients(nil, buf)
		m := make([]float64, len(spec[f]))
		for k, c := range spec[f] {
			m[k] = math.Hypot(real(c), imag(c))
		}
		mag[f] = m
	}

	bins := len(mag[0])
	harm := medianAcrossTime(mag, bins)
	perc := medianAcrossFreq(mag)

	out := make([]float64, len(padded)+hpssFrame)
	norm := make([]float64, len(out))
	seq := make([]float64, hpssFrame)
	for f := 0; f < frames; f++ {
		masked := make([]complex128, bins)
		for k := 0; k < bins; k++ {
			h := math.Pow(harm[f][k], hpssPower)
			p := math.Pow(perc[f][k], hpssPower)
			mask := 0.0
			if den := h + p; den > 1e-20 {
				mask = h / den
			}
			masked[k] = spec[f][k] * complex(mask, 0)
		}
		fft.Sequence(seq, masked)
		start := f * hpssHop
		for i, v := range seq {
			// Sequence is unnormalized.
			out[start+i] += v / hpssFrame * win[i]
			norm[start+i] += win[i] * win[i]
		}
	}
	res := make([]float64, n)
	for i := range res {
		j := i + pad
		if norm[j] > 1e-8 {
			res[i] = out[j] / norm[j]
		}
	}
	return res
}

func medianAcrossTime(mag [][]float64, bins int) [][]float64 {
	frames := len(mag)
	out := make([][]float64, frames)
	for f := range out {
		out[f] = make([]float64, bins)
	}
	col := make([]float64, frames)
	scratch := make([]float64, hpssKernel)
	for k := 0; k < bins; k++ {
		for f := 0; f < frames; f++ {
			col[f] = mag[f][k]
		}
		for f := 0; f < frames; f++ {
			out[f][k] = windowMedian(col, f, scratch)
		}
	}
	return out
}

func medianAcrossFreq(mag [][]float64) [][]float64 {
	out := make([][]float64, len(mag))
	scratch := make([]float64, hpssKernel)
	for f, row := range mag {
		out[f] = make([]float64, len(row))
		for k := range row {
			out[f][k] = windowMedian(row, k, scratch)
		}
	}
	return out
}

// windowMedian returns the median of x over a centered kernel, clamping
// indices at the edges.
func windowMedian(x []float64, center int, scratch []float64) float64 {
	half := hpssKernel / 2
	for i := 0; i < hpssKernel; i++ {
		j := center - half + i
		if j < 0 {
			j = 0
		}
		if j >= len(x) {
			j = len(x) - 1
		}
		scratch[i] = x[j]
	}
	sort.Float64s(scratch)
	return scratch[half]
}
