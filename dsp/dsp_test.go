package dsp

import (
	"math"
	"testing"
)

func sine(freq float64, sr, n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sr))
	}
	return x
}

func rms(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v * v
	}
	return math.Sqrt(s / float64(len(x)))
}

func TestBandpassChainPassesBandRejectsOutside(t *testing.T) {
	sr := 32000
	n := sr
	chain := NewBandpassChain(200, 1200, float64(sr))

	in := rms(chain.FilterZeroPhase(sine(600, sr, n))[n/4 : 3*n/4])
	low := rms(chain.FilterZeroPhase(sine(40, sr, n))[n/4 : 3*n/4])
	high := rms(chain.FilterZeroPhase(sine(6000, sr, n))[n/4 : 3*n/4])

	if in < 0.6 {
		t.Fatalf("in-band rms %.3f too low", in)
	}
	if low > 0.05*in || high > 0.05*in {
		t.Fatalf("out-of-band leakage: low=%.4f high=%.4f in=%.3f", low, high, in)
	}
}

func TestFilterZeroPhaseKeepsAlignment(t *testing.T) {
	sr := 32000
	x := sine(500, sr, sr/2)
	y := NewBandpassChain(200, 1200, float64(sr)).FilterZeroPhase(x)

	// Forward/backward filtering leaves no lag, so the correlation at lag 0
	// beats small shifts either way.
	corr := func(lag int) float64 {
		var s float64
		for i := 2000; i < len(x)-2000; i++ {
			s += x[i] * y[i+lag]
		}
		return s
	}
	c0 := corr(0)
	for _, lag := range []int{-8, -4, 4, 8} {
		if corr(lag) > c0 {
			t.Fatalf("lag %d correlates better than lag 0", lag)
		}
	}
}

func TestFIRBandpassMatchesBand(t *testing.T) {
	sr := 32000
	n := sr / 2
	k := BandpassKernel(200, 1200, float64(sr), 511)

	pass, err := FilterFIR(sine(700, sr, n), k, 1024)
	if err != nil {
		t.Fatalf("FilterFIR: %v", err)
	}
	stop, err := FilterFIR(sine(5000, sr, n), k, 1024)
	if err != nil {
		t.Fatalf("FilterFIR: %v", err)
	}
	if len(pass) != n {
		t.Fatalf("len = %d, want %d", len(pass), n)
	}
	p := rms(pass[n/4 : 3*n/4])
	s := rms(stop[n/4 : 3*n/4])
	if p < 0.6 || s > 0.05 {
		t.Fatalf("pass=%.3f stop=%.3f", p, s)
	}
}

func TestSTFTPeakBin(t *testing.T) {
	sr := 16000
	st, err := NewSTFT(1024, 256)
	if err != nil {
		t.Fatalf("NewSTFT: %v", err)
	}
	freq := 1000.0
	frames := st.Magnitudes(sine(freq, sr, sr/2))
	if len(frames) != st.Frames(sr/2) {
		t.Fatalf("frames = %d, want %d", len(frames), st.Frames(sr/2))
	}
	want := int(math.Round(freq / st.BinHz(sr)))
	mid := frames[len(frames)/2]
	best := 0
	for k := range mid {
		if mid[k] > mid[best] {
			best = k
		}
	}
	if best != want {
		t.Fatalf("peak bin %d, want %d", best, want)
	}
}

func TestSTFTShortInputSingleFrame(t *testing.T) {
	st, err := NewSTFT(512, 128)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(st.Magnitudes(make([]float64, 100))); got != 1 {
		t.Fatalf("frames = %d, want 1", got)
	}
	if got := len(st.Magnitudes(nil)); got != 0 {
		t.Fatalf("frames = %d, want 0", got)
	}
}

func TestResampleCubicEndpoints(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4}
	y := ResampleCubic(x, 9)
	if len(y) != 9 {
		t.Fatalf("len = %d", len(y))
	}
	for i, v := range y {
		if want := float64(i) * 0.5; math.Abs(v-want) > 1e-9 {
			t.Fatalf("y[%d] = %f, want %f", i, v, want)
		}
	}
}
