package dsp

import (
	"fmt"
	"math"

	dspconv "github.com/cwbudde/algo-dsp/dsp/conv"
)

// BandpassKernel designs a linear-phase windowed-sinc band-pass with the
// given odd number of taps.
func BandpassKernel(lo, hi, sampleRate float64, taps int) []float64 {
	if taps%2 == 0 {
		taps++
	}
	fl := lo / sampleRate
	fh := hi / sampleRate
	mid := taps / 2
	win := Hann(taps)
	h := make([]float64, taps)
	for i := range h {
		n := float64(i - mid)
		var v float64
		if n == 0 {
			v = 2 * (fh - fl)
		} else {
			v = (math.Sin(2*math.Pi*fh*n) - math.Sin(2*math.Pi*fl*n)) / (math.Pi * n)
		}
		h[i] = v * win[i]
	}
	return h
}

// FilterFIR convolves x with a linear-phase kernel using partitioned
// overlap-add and removes the group delay so the output aligns with x.
func FilterFIR(x, kernel []float64, partSize int) ([]float64, error) {
	if len(x) == 0 {
		return nil, nil
	}
	ola, err := dspconv.NewOverlapAdd(kernel, partSize)
	if err != nil {
		return nil, fmt.Errorf("overlap-add: %w", err)
	}
	full, err := ola.Process(x)
	if err != nil {
		return nil, fmt.Errorf("overlap-add process: %w", err)
	}
	delay := len(kernel) / 2
	out := make([]float64, len(x))
	for i := range out {
		if j := i + delay; j < len(full) {
			out[i] = full[j]
		}
	}
	return out, nil
}
