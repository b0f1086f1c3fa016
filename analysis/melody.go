package analysis

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-restyle/internal/numeric"
	"github.com/cwbudde/algo-restyle/internal/wave"
	"github.com/cwbudde/algo-restyle/pitch"
)

// Fallback sub-scores for contours too sparse to measure.
const (
	FallbackSmoothness = 0.2
	FallbackInterval   = 0.2
	FallbackHook       = 0.2
	FallbackScale      = 0.3
	FallbackNoOnsets   = 0.3
	FallbackOneGap     = 0.4
)

const (
	minFramesBasic  = 5
	minFramesHook   = 10
	hookSkipLags    = 5
	octaveErrorHz   = 2000.0
	scaleTolerance  = 1.2
	largeJumpSemis  = 9.0
	mediumJumpSemis = 5.0
)

// pentatonic is the reference scale for scale fit, in semitones from C.
var pentatonic = []float64{0, 2, 4, 7, 9}

// MelodyScore holds the composite and its five sub-scores, each in [0,1].
type MelodyScore struct {
	Total      float64 `json:"total" yaml:"total"`
	Smoothness float64 `json:"smoothness" yaml:"smoothness"`
	Interval   float64 `json:"interval" yaml:"interval"`
	Hook       float64 `json:"hook" yaml:"hook"`
	Rhythm     float64 `json:"rhythm" yaml:"rhythm"`
	Scale      float64 `json:"scale" yaml:"scale"`
}

// Weights sets the composite mix. The default favours melodic repetition
// over harmonic purity.
type Weights struct {
	Hook       float64 `yaml:"hook"`
	Smoothness float64 `yaml:"smoothness"`
	Interval   float64 `yaml:"interval"`
	Rhythm     float64 `yaml:"rhythm"`
	Scale      float64 `yaml:"scale"`
}

func DefaultWeights() Weights {
	return Weights{Hook: 0.70, Smoothness: 0.15, Interval: 0.05, Rhythm: 0.05, Scale: 0.05}
}

// Validate rejects negative weights and an all-zero mix.
func (w Weights) Validate() error {
	vals := w.Slice()
	var sum float64
	for _, v := range vals {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("melody weights must be non-negative: %+v", w)
		}
		sum += v
	}
	if sum <= 0 {
		return fmt.Errorf("melody weights sum to zero")
	}
	return nil
}

// Slice returns the weights in hook, smoothness, interval, rhythm, scale
// order.
func (w Weights) Slice() []float64 {
	return []float64{w.Hook, w.Smoothness, w.Interval, w.Rhythm, w.Scale}
}

// WeightsFromSlice is the inverse of Slice.
func WeightsFromSlice(v []float64) Weights {
	return Weights{Hook: v[0], Smoothness: v[1], Interval: v[2], Rhythm: v[3], Scale: v[4]}
}

// MelodyScorer combines the sub-scores of a contour and its onsets.
type MelodyScorer struct {
	Weights Weights
}

func NewMelodyScorer(w Weights) *MelodyScorer {
	return &MelodyScorer{Weights: w}
}

// Score rates contour c with onset times (seconds) for rhythm. It never
// fails: sparse input falls back to fixed sub-scores.
func (s *MelodyScorer) Score(c pitch.Contour, onsets []float64) MelodyScore {
	valid := c.Valid()
	ms := MelodyScore{
		Smoothness: SmoothnessScore(valid),
		Interval:   IntervalScore(valid),
		Hook:       HookScore(valid),
		Rhythm:     RhythmScore(onsets),
		Scale:      ScaleScore(valid),
	}
	ms.Total = s.Combine(ms)
	return ms
}

// ScoreWaveform tracks and scores all of w as one window.
func (s *MelodyScorer) ScoreWaveform(tracker *pitch.Tracker, w wave.Waveform) (MelodyScore, error) {
	contour, err := tracker.Track(w)
	if err != nil {
		return MelodyScore{}, fmt.Errorf("pitch track: %w", err)
	}
	env, err := NewOnsetEnvelope(w)
	if err != nil {
		return MelodyScore{}, fmt.Errorf("onset envelope: %w", err)
	}
	return s.Score(contour, env.Onsets()), nil
}

// Combine returns the weighted composite of ms clamped to [0,1].
func (s *MelodyScorer) Combine(ms MelodyScore) float64 {
	w := s.Weights
	return numeric.Clamp01(w.Hook*ms.Hook +
		w.Smoothness*ms.Smoothness +
		w.Interval*ms.Interval +
		w.Rhythm*ms.Rhythm +
		w.Scale*ms.Scale)
}

// SmoothnessScore is 1/(1+mean|second difference|/20) over voiced pitch
// values.
func SmoothnessScore(valid []float64) float64 {
	if len(valid) < minFramesBasic {
		return FallbackSmoothness
	}
	var sum float64
	for i := 2; i < len(valid); i++ {
		sum += math.Abs(valid[i] - 2*valid[i-1] + valid[i-2])
	}
	mean := sum / float64(len(valid)-2)
	return numeric.Clamp01(1 / (1 + mean/20))
}

// IntervalScore penalizes large semitone jumps between consecutive voiced
// values. Jumps of 2 kHz or more are treated as tracking errors.
func IntervalScore(valid []float64) float64 {
	if len(valid) < minFramesBasic {
		return FallbackInterval
	}
	var n, large, medium int
	for i := 1; i < len(valid); i++ {
		if math.Abs(valid[i]-valid[i-1]) >= octaveErrorHz {
			continue
		}
		semis := 12 * math.Abs(math.Log2(valid[i]/valid[i-1]))
		n++
		switch {
		case semis > largeJumpSemis:
			large++
		case semis > mediumJumpSemis:
			medium++
		}
	}
	if n == 0 {
		return FallbackInterval
	}
	penalty := 0.7*float64(large)/float64(n) + 0.3*float64(medium)/float64(n)
	return numeric.Clamp01(1 - penalty)
}

// HookScore is the autocorrelation peak of the mean-centered series over
// lags past the first few, relative to its lag-0 energy.
func HookScore(valid []float64) float64 {
	if len(valid) < minFramesHook {
		return FallbackHook
	}
	mean := numeric.Mean(valid)
	x := make([]float64, len(valid))
	for i, v := range valid {
		x[i] = v - mean
	}
	ac, err := numeric.Autocorrelation(x)
	if err != nil || len(ac) <= hookSkipLags {
		return FallbackHook
	}
	if ac[0] <= 1e-12 {
		return 0
	}
	return numeric.Clamp01(numeric.Max(ac[hookSkipLags:]) / ac[0])
}

// RhythmScore rewards regular inter-onset intervals: 1/(1+4*variance).
func RhythmScore(onsets []float64) float64 {
	if len(onsets) < 2 {
		return FallbackNoOnsets
	}
	gaps := make([]float64, len(onsets)-1)
	for i := 1; i < len(onsets); i++ {
		gaps[i-1] = onsets[i] - onsets[i-1]
	}
	if len(gaps) < 2 {
		return FallbackOneGap
	}
	return numeric.Clamp01(1 / (1 + 4*numeric.PopVariance(gaps)))
}

// ScaleScore is the fraction of voiced values within 1.2 semitones of the
// major pentatonic on C.
func ScaleScore(valid []float64) float64 {
	if len(valid) < minFramesBasic {
		return FallbackScale
	}
	hits := 0
	for _, f := range valid {
		pc := math.Mod(pitch.HzToMIDI(f), 12)
		if pc < 0 {
			pc += 12
		}
		best := 12.0
		for _, p := range pentatonic {
			d := math.Abs(pc - p)
			if d > 6 {
				d = 12 - d
			}
			if d < best {
				best = d
			}
		}
		if best < scaleTolerance {
			hits++
		}
	}
	return float64(hits) / float64(len(valid))
}
