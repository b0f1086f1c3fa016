package scoring

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/cwbudde/algo-restyle/internal/classifier"
)

func mustScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(DefaultTables())
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	return s
}

func TestDefaultBreakpoints(t *testing.T) {
	tabs := DefaultTables()
	cases := []struct {
		name string
		tab  Table
		v    float64
		want float64
	}{
		{"gain top", tabs.Gain, 0.30, 20},
		{"gain just below", tabs.Gain, 0.2999, 16},
		{"gain zero", tabs.Gain, 0, 4},
		{"gain negative", tabs.Gain, -0.01, 0},
		{"escape small", tabs.Escape, 0.05, 5},
		{"escape none", tabs.Escape, 0.049, 0},
		{"divergence mid", tabs.Divergence, 0.25, 15},
		{"confidence high", tabs.Confidence, 0.95, 20},
		{"confidence mid", tabs.Confidence, 0.5, 10},
		{"confidence low", tabs.Confidence, 0.2, 0},
		{"nan", tabs.Gain, math.NaN(), 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.tab.Lookup(c.v); got != c.want {
				t.Fatalf("Lookup(%g) = %g, want %g", c.v, got, c.want)
			}
		})
	}
}

func TestValidateRejectsNonMonotoneTables(t *testing.T) {
	bad := []Table{
		nil,
		{{Min: 0.1, Points: 10}, {Min: 0.2, Points: 5}},
		{{Min: 0.3, Points: 10}, {Min: 0.2, Points: 15}},
		{{Min: 0.3, Points: 25}},
		{{Min: 0.3, Points: -1}},
		{{Min: math.NaN(), Points: 5}},
	}
	for i, tab := range bad {
		if err := tab.Validate(); !errors.Is(err, ErrInvalidTable) {
			t.Fatalf("table %d: err = %v, want ErrInvalidTable", i, err)
		}
	}
	tabs := DefaultTables()
	tabs.Escape = Table{{Min: 0.1, Points: 5}, {Min: 0.1, Points: 5}}
	if _, err := NewScorer(tabs); !errors.Is(err, ErrInvalidTable) {
		t.Fatalf("NewScorer err = %v", err)
	}
}

func TestMapSumsSubScores(t *testing.T) {
	s := mustScorer(t)
	b := s.Map(Inputs{StyleGain: 0.4, EmotionGain: 0.12, Escape: 0.21, Divergence: 0.06, Confidence: 0.7})
	if b.StyleGain != 20 || b.EmotionGain != 12 || b.Escape != 15 || b.Divergence != 5 || b.Confidence != 15 {
		t.Fatalf("breakdown = %+v", b)
	}
	if b.Total != 67 {
		t.Fatalf("total = %g, want 67", b.Total)
	}
	top := s.Map(Inputs{StyleGain: 1, EmotionGain: 1, Escape: 1, Divergence: 1, Confidence: 1})
	if top.Total != 100 {
		t.Fatalf("max total = %g", top.Total)
	}
}

func randomDist(rng *rand.Rand, labels []string) map[string]float64 {
	m := make(map[string]float64, len(labels))
	var sum float64
	for _, l := range labels {
		v := rng.Float64()
		m[l] = v
		sum += v
	}
	for l := range m {
		m[l] /= sum
	}
	return m
}

// Raising any one input while holding the others fixed never lowers the
// composite.
func TestCompositeMonotoneInEachInput(t *testing.T) {
	s := mustScorer(t)
	rng := rand.New(rand.NewSource(7))
	styles := []string{"rock", "jazz", "pop", "classical", "electronic"}
	emotions := []string{"happy", "sad", "tense", "calm"}
	fields := []func(*Inputs) *float64{
		func(in *Inputs) *float64 { return &in.StyleGain },
		func(in *Inputs) *float64 { return &in.EmotionGain },
		func(in *Inputs) *float64 { return &in.Escape },
		func(in *Inputs) *float64 { return &in.Divergence },
		func(in *Inputs) *float64 { return &in.Confidence },
	}
	for trial := 0; trial < 300; trial++ {
		orig := classifier.Analysis{Style: "rock", StyleProb: randomDist(rng, styles), Emotion: "sad", EmotionProb: randomDist(rng, emotions)}
		gen := classifier.Analysis{Style: "jazz", StyleProb: randomDist(rng, styles), Emotion: "happy", EmotionProb: randomDist(rng, emotions)}
		base := Measure(orig, gen, Target{Style: "jazz", Emotion: "happy"})
		baseTotal := s.Map(base).Total
		for fi, field := range fields {
			bumped := base
			*field(&bumped) += rng.Float64() * 0.5
			if got := s.Map(bumped).Total; got < baseTotal {
				t.Fatalf("trial %d field %d: total fell from %g to %g", trial, fi, baseTotal, got)
			}
		}
	}
}

func TestMeasure(t *testing.T) {
	orig := classifier.Analysis{
		Style: "rock", StyleProb: map[string]float64{"rock": 0.8, "jazz": 0.2},
		Emotion: "sad", EmotionProb: map[string]float64{"sad": 0.6, "happy": 0.4},
	}
	gen := classifier.Analysis{
		Style: "jazz", StyleProb: map[string]float64{"rock": 0.3, "jazz": 0.7},
		Emotion: "happy", EmotionProb: map[string]float64{"sad": 0.1, "happy": 0.9},
	}
	in := Measure(orig, gen, Target{Style: "jazz", Emotion: "happy"})
	near := func(a, b float64) bool { return math.Abs(a-b) < 1e-9 }
	if !near(in.StyleGain, 0.5) || !near(in.EmotionGain, 0.5) || !near(in.Escape, 0.5) || !near(in.Confidence, 0.8) {
		t.Fatalf("inputs = %+v", in)
	}
	if in.Divergence <= 0 || in.Divergence > 1 {
		t.Fatalf("divergence = %g", in.Divergence)
	}
}

func TestDivergenceBounds(t *testing.T) {
	p := map[string]float64{"a": 1}
	q := map[string]float64{"b": 1}
	if d := Divergence(p, q); math.Abs(d-1) > 1e-9 {
		t.Fatalf("disjoint divergence = %g, want 1", d)
	}
	if d := Divergence(p, p); d > 1e-12 {
		t.Fatalf("self divergence = %g", d)
	}
	if d := Divergence(nil, q); d != 0 {
		t.Fatalf("empty divergence = %g", d)
	}
}
