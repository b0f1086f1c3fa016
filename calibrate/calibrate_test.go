package calibrate

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/algo-restyle/analysis"
)

func syntheticSamples(n int, truth analysis.Weights, seed int64) []Sample {
	rng := rand.New(rand.NewSource(seed))
	scorer := analysis.NewMelodyScorer(truth)
	out := make([]Sample, n)
	for i := range out {
		ms := analysis.MelodyScore{
			Hook:       rng.Float64(),
			Smoothness: rng.Float64(),
			Interval:   rng.Float64(),
			Rhythm:     rng.Float64(),
			Scale:      rng.Float64(),
		}
		out[i] = Sample{Name: "s", Score: ms, Rating: scorer.Combine(ms)}
	}
	return out
}

func sum(w analysis.Weights) float64 {
	var s float64
	for _, v := range w.Slice() {
		s += v
	}
	return s
}

func TestSoftmax(t *testing.T) {
	w := Softmax([]float64{0.5, 0.5, 0.5, 0.5, 0.5}, 4)
	for _, v := range w.Slice() {
		if math.Abs(v-0.2) > 1e-6 {
			t.Fatalf("equal logits should give equal weights: %+v", w)
		}
	}
	w = Softmax([]float64{1, 0, 0, 0, 0}, 4)
	if w.Hook < 0.99 {
		t.Fatalf("hook should dominate: %+v", w)
	}
	if math.Abs(sum(w)-1) > 1e-9 {
		t.Fatalf("weights must sum to 1: %g", sum(w))
	}
}

func TestLossZeroAtTruth(t *testing.T) {
	truth := analysis.DefaultWeights()
	samples := syntheticSamples(30, truth, 1)
	if l := Loss(truth, samples); l > 1e-12 {
		t.Fatalf("loss at generating weights = %g", l)
	}
	if l := Loss(analysis.Weights{Scale: 1}, samples); l <= 0 {
		t.Fatal("wrong weights should have positive loss")
	}
}

func TestFitImprovesOnBaseline(t *testing.T) {
	samples := syntheticSamples(40, analysis.DefaultWeights(), 2)
	baseline := analysis.Weights{Hook: 0.2, Smoothness: 0.2, Interval: 0.2, Rhythm: 0.2, Scale: 0.2}
	cfg := DefaultConfig()
	cfg.Variant = "ma"
	cfg.Iterations = 40
	res, err := Fit(cfg, samples, baseline)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if res.Loss >= res.BaselineLoss {
		t.Fatalf("no improvement: loss %g baseline %g", res.Loss, res.BaselineLoss)
	}
	if res.Evals < 2 {
		t.Fatalf("evals = %d", res.Evals)
	}
	if math.Abs(sum(res.Weights)-1) > 1e-6 {
		t.Fatalf("fitted weights not normalized: %+v", res.Weights)
	}
	if err := res.Weights.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestFitErrors(t *testing.T) {
	if _, err := Fit(DefaultConfig(), nil, analysis.DefaultWeights()); err != ErrNoSamples {
		t.Fatalf("err = %v, want ErrNoSamples", err)
	}
	cfg := DefaultConfig()
	cfg.Variant = "bogus"
	if _, err := Fit(cfg, syntheticSamples(3, analysis.DefaultWeights(), 3), analysis.DefaultWeights()); err == nil {
		t.Fatal("unknown variant must fail")
	}
}

func TestConfigValidateVariant(t *testing.T) {
	for _, v := range []string{"", "ma", "desma", "olce", "eobbma", "gsasma", "mpma", "aoblmoa"} {
		cfg := DefaultConfig()
		cfg.Variant = v
		if err := cfg.Validate(); err != nil {
			t.Fatalf("variant %q: %v", v, err)
		}
	}
	cfg := DefaultConfig()
	cfg.Variant = "DESMA"
	if err := cfg.Validate(); err == nil {
		t.Fatal("variant names are case sensitive")
	}
}

func TestSearchConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Population = 60
	cfg.Iterations = 7
	m := cfg.search(5, func([]float64) float64 { return 0 })
	if m.ProblemSize != 5 || m.MaxIterations != 7 {
		t.Fatalf("size/iters = %d/%d", m.ProblemSize, m.MaxIterations)
	}
	if m.LowerBound != 0 || m.UpperBound != 1 {
		t.Fatalf("bounds = [%g,%g]", m.LowerBound, m.UpperBound)
	}
	if m.NPop != 60 || m.NPopF != 60 || m.NC != 120 || m.NM != 3 {
		t.Fatalf("swarm = %d/%d/%d/%d", m.NPop, m.NPopF, m.NC, m.NM)
	}
	if m.Rand == nil || m.ObjectiveFunc == nil {
		t.Fatal("rand and objective must be set")
	}
	cfg.Population = 4
	if m := cfg.search(5, nil); m.NM != 1 {
		t.Fatalf("NM = %d, want at least 1", m.NM)
	}
}

func TestLoadSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ratings.yaml")
	body := `
- name: hooky
  score: {hook: 0.9, smoothness: 0.5, interval: 0.5, rhythm: 0.5, scale: 0.5}
  rating: 0.9
- name: clip
  audio: clip.wav
  rating: 0.2
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	samples, err := LoadSamples(path)
	if err != nil {
		t.Fatalf("LoadSamples: %v", err)
	}
	if len(samples) != 2 || samples[0].Score.Hook != 0.9 || samples[1].Audio != "clip.wav" {
		t.Fatalf("samples = %+v", samples)
	}

	if err := os.WriteFile(path, []byte("- name: x\n  rating: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSamples(path); err == nil {
		t.Fatal("out-of-range rating must fail")
	}
}
