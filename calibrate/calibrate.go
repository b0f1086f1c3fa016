// Package calibrate fits the melody composite weights to listener ratings
// with a mayfly search.
//
// A candidate position in [0,1]^5 maps to logits in [-Spread,Spread] and the
// weights are their softmax, so every candidate is a valid, normalized mix.
// The loss is the mean squared error between the composite and the rating.
package calibrate

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sync"

	approx "github.com/cwbudde/algo-approx"
	"github.com/cwbudde/mayfly"
	"github.com/goccy/go-yaml"

	"github.com/cwbudde/algo-restyle/analysis"
)

// Sample is one rated clip. Score may be left empty when Audio is set; the
// caller measures it before fitting.
type Sample struct {
	Name   string               `yaml:"name"`
	Audio  string               `yaml:"audio,omitempty"`
	Score  analysis.MelodyScore `yaml:"score"`
	Rating float64              `yaml:"rating"`
}

// LoadSamples reads a YAML list of samples.
func LoadSamples(path string) ([]Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var samples []Sample
	if err := yaml.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("parse samples %s: %w", path, err)
	}
	for i, s := range samples {
		if s.Rating < 0 || s.Rating > 1 || math.IsNaN(s.Rating) {
			return nil, fmt.Errorf("sample %d (%s): rating must be in [0,1], got %g", i, s.Name, s.Rating)
		}
	}
	return samples, nil
}

type Config struct {
	Variant    string  `yaml:"variant"`
	Population int     `yaml:"population"`
	Iterations int     `yaml:"iterations"`
	Spread     float64 `yaml:"spread"`
	Seed       int64   `yaml:"seed"`
}

func DefaultConfig() Config {
	return Config{Variant: "desma", Population: 20, Iterations: 80, Spread: 4, Seed: 1}
}

func (c Config) Validate() error {
	if _, ok := variants[c.Variant]; !ok {
		return fmt.Errorf("unknown mayfly variant %q", c.Variant)
	}
	switch {
	case c.Population < 2:
		return fmt.Errorf("population must be >= 2, got %d", c.Population)
	case c.Iterations < 1:
		return fmt.Errorf("iterations must be >= 1, got %d", c.Iterations)
	case c.Spread <= 0:
		return fmt.Errorf("spread must be > 0, got %g", c.Spread)
	}
	return nil
}

// Result is the best fit found.
type Result struct {
	Weights      analysis.Weights `yaml:"weights"`
	Loss         float64          `yaml:"loss"`
	BaselineLoss float64          `yaml:"baseline_loss"`
	Evals        int              `yaml:"evals"`
}

var ErrNoSamples = errors.New("calibrate: no samples")

// Fit searches for weights minimizing the rating error. The baseline
// weights are evaluated first, so the result is never worse than them.
func Fit(cfg Config, samples []Sample, baseline analysis.Weights) (Result, error) {
	if len(samples) == 0 {
		return Result{}, ErrNoSamples
	}
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	base := Loss(baseline, samples)
	res := Result{Weights: baseline, Loss: base, BaselineLoss: base, Evals: 1}
	var mu sync.Mutex
	objective := func(pos []float64) float64 {
		w := Softmax(pos, cfg.Spread)
		loss := Loss(w, samples)
		mu.Lock()
		res.Evals++
		if loss < res.Loss {
			res.Loss = loss
			res.Weights = w
		}
		mu.Unlock()
		return loss
	}
	err := optimize(cfg.search(len(baseline.Slice()), objective))
	return res, err
}

// Loss is the mean squared error between the composite under w and the
// sample ratings.
func Loss(w analysis.Weights, samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	scorer := analysis.NewMelodyScorer(w)
	var sum float64
	for _, s := range samples {
		d := scorer.Combine(s.Score) - s.Rating
		sum += d * d
	}
	return sum / float64(len(samples))
}

// Softmax maps a position in [0,1]^5 to normalized weights.
func Softmax(pos []float64, spread float64) analysis.Weights {
	logits := make([]float64, len(pos))
	hi := math.Inf(-1)
	for i, p := range pos {
		logits[i] = (2*p - 1) * spread
		hi = max(hi, logits[i])
	}
	var sum float64
	for i, l := range logits {
		logits[i] = float64(approx.FastExp(float32(l - hi)))
		sum += logits[i]
	}
	for i := range logits {
		logits[i] /= sum
	}
	return analysis.WeightsFromSlice(logits)
}

// variants lists the supported mayfly presets; "" selects "ma".
var variants = map[string]func() *mayfly.Config{
	"":        mayfly.NewDefaultConfig,
	"ma":      mayfly.NewDefaultConfig,
	"desma":   mayfly.NewDESMAConfig,
	"olce":    mayfly.NewOLCEConfig,
	"eobbma":  mayfly.NewEOBBMAConfig,
	"gsasma":  mayfly.NewGSASMAConfig,
	"mpma":    mayfly.NewMPMAConfig,
	"aoblmoa": mayfly.NewAOBLMOAConfig,
}

// search builds the mayfly run over the unit cube in dims dimensions. The
// male and female swarms share the population size; mutants are 5% of it.
func (c Config) search(dims int, objective func([]float64) float64) *mayfly.Config {
	m := variants[c.Variant]()
	m.ProblemSize = dims
	m.LowerBound, m.UpperBound = 0, 1
	m.MaxIterations = c.Iterations
	m.NPop, m.NPopF = c.Population, c.Population
	m.NC = 2 * c.Population
	m.NM = max(1, c.Population/20)
	m.Rand = rand.New(rand.NewSource(c.Seed))
	m.ObjectiveFunc = objective
	return m
}

// optimize runs m, turning a panic inside the optimizer into an error.
func optimize(m *mayfly.Config) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("calibrate: optimizer failed: %v", r)
		}
	}()
	_, err = mayfly.Optimize(m)
	return err
}
