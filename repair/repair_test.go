package repair

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-restyle/internal/wave"
)

const sr = 8000

func sine(seconds, amp float64) []float64 {
	n := int(seconds * sr)
	x := make([]float64, n)
	for i := range x {
		x[i] = amp * math.Sin(2*math.Pi*220*float64(i)/sr)
	}
	return x
}

func newRepairer(t *testing.T) *Repairer {
	t.Helper()
	r, err := New(DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestTailSilenceIsRepaired(t *testing.T) {
	// RMS 0.1 everywhere except an exactly silent final two seconds.
	x := sine(10, 0.1*math.Sqrt2)
	for i := len(x) - 2*sr; i < len(x); i++ {
		x[i] = 0
	}
	in := wave.New(x, sr)
	out, rep := newRepairer(t).Repair(in)
	if !rep.TailRepaired || rep.MidRepaired {
		t.Fatalf("report = %+v", rep)
	}
	n := out.Len()
	tail := wave.RMS(out.Samples[n-2*sr:])
	prev := wave.RMS(out.Samples[n-4*sr : n-2*sr])
	if tail < 0.35*prev {
		t.Fatalf("tail rms %g still below 35%% of %g", tail, prev)
	}
	if p := wave.Peak(out.Samples); math.Abs(p-0.98) > 1e-9 {
		t.Fatalf("peak = %g, want 0.98", p)
	}
	if in.Samples[len(x)-1] != 0 {
		t.Fatal("input was modified")
	}
}

func TestUniformSignalIsUntouched(t *testing.T) {
	in := wave.New(sine(10, 0.5), sr)
	out, rep := newRepairer(t).Repair(in)
	if rep.Changed() {
		t.Fatalf("report = %+v", rep)
	}
	if &out.Samples[0] != &in.Samples[0] || out.Len() != in.Len() {
		t.Fatal("healthy audio must be returned as is")
	}
}

func TestMidCollapseIsRepaired(t *testing.T) {
	x := sine(9, 0.3)
	n := len(x)
	for i := n / 2; i < 2*n/3; i++ {
		x[i] *= 0.05
	}
	out, rep := newRepairer(t).Repair(wave.New(x, sr))
	if !rep.MidRepaired {
		t.Fatalf("report = %+v", rep)
	}
	a := wave.RMS(out.Samples[n/3 : n/2])
	b := wave.RMS(out.Samples[n/2 : 2*n/3])
	if b < 0.33*a {
		t.Fatalf("mid rms %g still below 33%% of %g", b, a)
	}
}

func TestShortSignalIsNoOp(t *testing.T) {
	x := sine(3, 0.5)
	for i := len(x) - sr; i < len(x); i++ {
		x[i] = 0
	}
	in := wave.New(x, sr)
	out, rep := newRepairer(t).Repair(in)
	if rep.Changed() || &out.Samples[0] != &in.Samples[0] {
		t.Fatalf("short input must pass through, report = %+v", rep)
	}
	empty, rep := newRepairer(t).Repair(wave.Waveform{})
	if rep.Changed() || empty.Len() != 0 {
		t.Fatal("empty input must pass through")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSeconds = 3
	if err := cfg.Validate(); err == nil {
		t.Fatal("min_seconds shorter than two tail segments must fail")
	}
	cfg = DefaultConfig()
	cfg.TailRatio = 1.5
	if _, err := New(cfg, nil); err == nil {
		t.Fatal("tail_ratio 1.5 must fail")
	}
}
