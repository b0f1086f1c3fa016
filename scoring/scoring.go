// Package scoring rates a generated clip against the original on the
// target style and emotion. The composite is the sum of five step-mapped
// sub-scores, each 0-20, for a total in [0,100].
package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/algo-restyle/internal/classifier"
	"github.com/cwbudde/algo-restyle/internal/numeric"
)

// Step maps values at or above Min to Points.
type Step struct {
	Min    float64 `yaml:"min" json:"min"`
	Points float64 `yaml:"points" json:"points"`
}

// Table is a descending step function. Values below the last threshold
// score 0.
type Table []Step

// Lookup returns the points of the first step whose threshold v reaches.
func (t Table) Lookup(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	for _, s := range t {
		if v >= s.Min {
			return s.Points
		}
	}
	return 0
}

var ErrInvalidTable = errors.New("scoring: invalid step table")

// Validate requires strictly descending thresholds and non-increasing
// points within [0,20], which keeps Lookup monotone non-decreasing.
func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidTable)
	}
	for i, s := range t {
		if math.IsNaN(s.Min) || s.Points < 0 || s.Points > MaxSubScore {
			return fmt.Errorf("%w: step %d out of range (%g -> %g)", ErrInvalidTable, i, s.Min, s.Points)
		}
		if i > 0 {
			if s.Min >= t[i-1].Min {
				return fmt.Errorf("%w: thresholds must descend at step %d", ErrInvalidTable, i)
			}
			if s.Points > t[i-1].Points {
				return fmt.Errorf("%w: points must not increase at step %d", ErrInvalidTable, i)
			}
		}
	}
	return nil
}

// MaxSubScore is the ceiling of each sub-score.
const MaxSubScore = 20.0

// Tables holds one step table per sub-score.
type Tables struct {
	Gain       Table `yaml:"gain" json:"gain"`
	Escape     Table `yaml:"escape" json:"escape"`
	Divergence Table `yaml:"divergence" json:"divergence"`
	Confidence Table `yaml:"confidence" json:"confidence"`
}

// DefaultTables returns the v4 breakpoints.
func DefaultTables() Tables {
	return Tables{
		Gain: Table{
			{Min: 0.30, Points: 20},
			{Min: 0.20, Points: 16},
			{Min: 0.10, Points: 12},
			{Min: 0.05, Points: 8},
			{Min: 0.00, Points: 4},
		},
		Escape: Table{
			{Min: 0.30, Points: 20},
			{Min: 0.20, Points: 15},
			{Min: 0.10, Points: 10},
			{Min: 0.05, Points: 5},
		},
		Divergence: Table{
			{Min: 0.30, Points: 20},
			{Min: 0.20, Points: 15},
			{Min: 0.10, Points: 10},
			{Min: 0.05, Points: 5},
		},
		Confidence: Table{
			{Min: 0.80, Points: 20},
			{Min: 0.65, Points: 15},
			{Min: 0.50, Points: 10},
			{Min: 0.35, Points: 5},
		},
	}
}

func (t Tables) Validate() error {
	for name, tab := range map[string]Table{
		"gain":       t.Gain,
		"escape":     t.Escape,
		"divergence": t.Divergence,
		"confidence": t.Confidence,
	} {
		if err := tab.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Target names the style and emotion labels to move toward.
type Target struct {
	Style   string `yaml:"style" json:"style"`
	Emotion string `yaml:"emotion" json:"emotion"`
}

// Inputs are the raw measurements before step mapping.
type Inputs struct {
	StyleGain   float64 `yaml:"style_gain" json:"style_gain"`
	EmotionGain float64 `yaml:"emotion_gain" json:"emotion_gain"`
	Escape      float64 `yaml:"escape" json:"escape"`
	Divergence  float64 `yaml:"divergence" json:"divergence"`
	Confidence  float64 `yaml:"confidence" json:"confidence"`
}

// Breakdown carries the inputs, the mapped sub-scores and their sum.
type Breakdown struct {
	Inputs      Inputs  `yaml:"inputs" json:"inputs"`
	StyleGain   float64 `yaml:"style_gain" json:"style_gain"`
	EmotionGain float64 `yaml:"emotion_gain" json:"emotion_gain"`
	Escape      float64 `yaml:"escape" json:"escape"`
	Divergence  float64 `yaml:"divergence" json:"divergence"`
	Confidence  float64 `yaml:"confidence" json:"confidence"`
	Total       float64 `yaml:"total" json:"total"`
}

// Scorer applies Tables to analyses.
type Scorer struct {
	tables Tables
}

// NewScorer validates tables.
func NewScorer(t Tables) (*Scorer, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{tables: t}, nil
}

// Measure derives the raw inputs from the two analyses.
func Measure(orig, gen classifier.Analysis, target Target) Inputs {
	return Inputs{
		StyleGain:   gen.StyleProb[target.Style] - orig.StyleProb[target.Style],
		EmotionGain: gen.EmotionProb[target.Emotion] - orig.EmotionProb[target.Emotion],
		Escape:      orig.StyleProb[orig.Style] - gen.StyleProb[orig.Style],
		Divergence: 0.5 * (Divergence(orig.StyleProb, gen.StyleProb) +
			Divergence(orig.EmotionProb, gen.EmotionProb)),
		Confidence: 0.5 * (topProb(gen.StyleProb) + topProb(gen.EmotionProb)),
	}
}

// Score returns the composite breakdown for a generated analysis.
func (s *Scorer) Score(orig, gen classifier.Analysis, target Target) Breakdown {
	return s.Map(Measure(orig, gen, target))
}

// Map applies the step tables to raw inputs.
func (s *Scorer) Map(in Inputs) Breakdown {
	b := Breakdown{
		Inputs:      in,
		StyleGain:   s.tables.Gain.Lookup(in.StyleGain),
		EmotionGain: s.tables.Gain.Lookup(in.EmotionGain),
		Escape:      s.tables.Escape.Lookup(in.Escape),
		Divergence:  s.tables.Divergence.Lookup(in.Divergence),
		Confidence:  s.tables.Confidence.Lookup(in.Confidence),
	}
	b.Total = numeric.Clamp(b.StyleGain+b.EmotionGain+b.Escape+b.Divergence+b.Confidence, 0, 5*MaxSubScore)
	return b
}

// Divergence is the base-2 Jensen-Shannon divergence of two label
// distributions over the union of their labels, in [0,1].
func Divergence(p, q map[string]float64) float64 {
	labels := make([]string, 0, len(p)+len(q))
	seen := make(map[string]bool, len(p)+len(q))
	for _, m := range []map[string]float64{p, q} {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				labels = append(labels, k)
			}
		}
	}
	sort.Strings(labels)
	pv := make([]float64, len(labels))
	qv := make([]float64, len(labels))
	for i, k := range labels {
		pv[i] = p[k]
		qv[i] = q[k]
	}
	return numeric.JensenShannon(pv, qv)
}

func topProb(m map[string]float64) float64 {
	var best float64
	for _, v := range m {
		if v > best {
			best = v
		}
	}
	return best
}
