package melody

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/cwbudde/algo-restyle/internal/numeric"
	"github.com/cwbudde/algo-restyle/internal/wave"
)

// TransformConfig sets the attempt-indexed perturbation schedule. Spans
// widen linearly from the Start value at attempt 2 to the End value at
// RampAttempts and stay there. Ramps shorter than 3 attempts count as 3.
type TransformConfig struct {
	RampAttempts     int     `yaml:"ramp_attempts"`
	StretchStart     float64 `yaml:"stretch_start"`
	StretchEnd       float64 `yaml:"stretch_end"`
	PitchStart       float64 `yaml:"pitch_start"`
	PitchEnd         float64 `yaml:"pitch_end"`
	StretchThreshold float64 `yaml:"stretch_threshold"`
	PitchThreshold   float64 `yaml:"pitch_threshold"`
	PeakTarget       float64 `yaml:"peak_target"`
}

func DefaultTransformConfig() TransformConfig {
	return TransformConfig{
		RampAttempts:     4,
		StretchStart:     0.03,
		StretchEnd:       0.08,
		PitchStart:       0.5,
		PitchEnd:         1.0,
		StretchThreshold: 0.01,
		PitchThreshold:   0.05,
		PeakTarget:       0.9,
	}
}

func (c TransformConfig) Validate() error {
	if c.RampAttempts < 0 {
		return fmt.Errorf("ramp attempts must be >= 0: %d", c.RampAttempts)
	}
	if c.StretchStart < 0 || c.StretchEnd < c.StretchStart || c.StretchEnd >= 0.5 {
		return fmt.Errorf("stretch span must widen within [0,0.5): %g..%g", c.StretchStart, c.StretchEnd)
	}
	if c.PitchStart < 0 || c.PitchEnd < c.PitchStart || c.PitchEnd > 12 {
		return fmt.Errorf("pitch span must widen within [0,12]: %g..%g", c.PitchStart, c.PitchEnd)
	}
	if c.PeakTarget <= 0 || c.PeakTarget > 1 {
		return fmt.Errorf("peak target must be in (0,1]: %g", c.PeakTarget)
	}
	return nil
}

// Spans returns the stretch and pitch half-widths used at attempt.
func (c TransformConfig) Spans(attempt int) (stretch, pitch float64) {
	ramp := max(c.RampAttempts, 3)
	f := numeric.Clamp01(float64(attempt-2) / float64(ramp-2))
	stretch = c.StretchStart + f*(c.StretchEnd-c.StretchStart)
	pitch = c.PitchStart + f*(c.PitchEnd-c.PitchStart)
	return stretch, pitch
}

// TransformParams records what one attempt did to the melody clip.
type TransformParams struct {
	Attempt     int      `json:"attempt" yaml:"attempt"`
	Identity    bool     `json:"identity" yaml:"identity"`
	StretchSpan float64  `json:"stretch_span" yaml:"stretch_span"`
	PitchSpan   float64  `json:"pitch_span" yaml:"pitch_span"`
	Rate        float64  `json:"rate" yaml:"rate"`
	Semitones   float64  `json:"semitones" yaml:"semitones"`
	Stretched   bool     `json:"stretched" yaml:"stretched"`
	Shifted     bool     `json:"shifted" yaml:"shifted"`
	Warnings    []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Transformer perturbs melody clips across attempts. It is safe for
// concurrent use.
type Transformer struct {
	cfg     TransformConfig
	shifter Shifter
	logger  *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

type TransformerOption func(*Transformer)

// WithRand sets the random source. Tests pass a seeded source.
func WithRand(r *rand.Rand) TransformerOption {
	return func(t *Transformer) { t.rng = r }
}

// WithShifter replaces the WSOLA shifter.
func WithShifter(s Shifter) TransformerOption {
	return func(t *Transformer) { t.shifter = s }
}

func WithTransformLogger(l *slog.Logger) TransformerOption {
	return func(t *Transformer) { t.logger = l }
}

func NewTransformer(cfg TransformConfig, opts ...TransformerOption) (*Transformer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Transformer{
		cfg:     cfg,
		shifter: WSOLA{},
		logger:  slog.Default(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Transformer) draw(span float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return (2*t.rng.Float64() - 1) * span
}

// Transform returns the clip for attempt (1-based). Attempt 1 is the
// identity. Later attempts draw a stretch rate and a pitch offset from spans
// that widen with the attempt index; a failing step is logged and skipped.
func (t *Transformer) Transform(w wave.Waveform, attempt int) (wave.Waveform, TransformParams) {
	p := TransformParams{Attempt: attempt, Rate: 1}
	if attempt <= 1 {
		p.Identity = true
		return w.Clone(), p
	}

	p.StretchSpan, p.PitchSpan = t.cfg.Spans(attempt)
	p.Rate = 1 + t.draw(p.StretchSpan)
	p.Semitones = t.draw(p.PitchSpan)

	out := w.Clone()
	if math.Abs(p.Rate-1) > t.cfg.StretchThreshold {
		y, err := t.shifter.TimeStretch(out.Samples, p.Rate, out.SampleRate)
		if err != nil || len(y) == 0 {
			t.warn(&p, "time stretch skipped", err, "rate", p.Rate)
		} else {
			out.Samples = y
			p.Stretched = true
		}
	}
	if math.Abs(p.Semitones) > t.cfg.PitchThreshold {
		y, err := t.shifter.PitchShift(out.Samples, p.Semitones, out.SampleRate)
		if err != nil || len(y) == 0 {
			t.warn(&p, "pitch shift skipped", err, "semitones", p.Semitones)
		} else {
			out.Samples = y
			p.Shifted = true
		}
	}
	wave.PeakNormalize(out.Samples, t.cfg.PeakTarget)

	t.logger.Info("melody transformed",
		"attempt", attempt,
		"rate", p.Rate,
		"semitones", p.Semitones,
		"stretched", p.Stretched,
		"shifted", p.Shifted)
	return out, p
}

func (t *Transformer) warn(p *TransformParams, msg string, err error, args ...any) {
	if err == nil {
		err = fmt.Errorf("empty output")
	}
	p.Warnings = append(p.Warnings, fmt.Sprintf("%s: %v", msg, err))
	t.logger.Warn(msg, append(args, "attempt", p.Attempt, "error", err)...)
}
