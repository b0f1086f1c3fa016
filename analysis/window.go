package analysis

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/algo-restyle/internal/wave"
	"github.com/cwbudde/algo-restyle/pitch"
)

// WindowConfig controls the sliding-window search.
type WindowConfig struct {
	WindowSeconds float64 `yaml:"window_seconds"`
	HopSeconds    float64 `yaml:"hop_seconds"`
	RMSFloor      float64 `yaml:"rms_floor"`
	ZCRCeiling    float64 `yaml:"zcr_ceiling"`
	MinScore      float64 `yaml:"min_score"`
}

func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		WindowSeconds: 5.0,
		HopSeconds:    0.5,
		RMSFloor:      1e-4,
		ZCRCeiling:    0.20,
		MinScore:      0.2,
	}
}

func (c WindowConfig) Validate() error {
	if c.WindowSeconds <= 0 || c.HopSeconds <= 0 {
		return fmt.Errorf("window and hop must be positive: window=%g hop=%g", c.WindowSeconds, c.HopSeconds)
	}
	if c.RMSFloor < 0 || c.ZCRCeiling <= 0 || c.ZCRCeiling > 1 {
		return fmt.Errorf("window gates out of range: rms_floor=%g zcr_ceiling=%g", c.RMSFloor, c.ZCRCeiling)
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("min_score must be in [0,1]: %g", c.MinScore)
	}
	return nil
}

// Window is a selected [Start,End) sample range.
type Window struct {
	Start int         `json:"start" yaml:"start"`
	End   int         `json:"end" yaml:"end"`
	Score MelodyScore `json:"score" yaml:"score"`
	// Fallback is set when no window passed the gates and the clip start
	// was taken instead.
	Fallback bool `json:"fallback" yaml:"fallback"`
	// LowConfidence is set when the best window scored below MinScore.
	LowConfidence bool `json:"low_confidence" yaml:"low_confidence"`
	Scanned       int  `json:"scanned" yaml:"scanned"`
	Gated         int  `json:"gated" yaml:"gated"`
}

// Len returns the window length in samples.
func (w Window) Len() int { return w.End - w.Start }

// WindowSelector finds the most melodic window of a signal.
type WindowSelector struct {
	cfg     WindowConfig
	tracker *pitch.Tracker
	scorer  *MelodyScorer
	logger  *slog.Logger
}

// NewWindowSelector builds a selector. A nil logger uses slog.Default.
func NewWindowSelector(cfg WindowConfig, tracker *pitch.Tracker, scorer *MelodyScorer, logger *slog.Logger) (*WindowSelector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tracker == nil || scorer == nil {
		return nil, fmt.Errorf("window selector needs a pitch tracker and a melody scorer")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WindowSelector{cfg: cfg, tracker: tracker, scorer: scorer, logger: logger}, nil
}

// Config returns the selector configuration.
func (s *WindowSelector) Config() WindowConfig { return s.cfg }

// Select slides the window over w, skips positions that fail the RMS or ZCR
// gates, and returns the highest-scoring survivor. Pitch and onset analysis
// run once on the whole signal and are sliced per window.
func (s *WindowSelector) Select(w wave.Waveform) (Window, error) {
	win := int(s.cfg.WindowSeconds * float64(w.SampleRate))
	hop := int(s.cfg.HopSeconds * float64(w.SampleRate))
	if win <= 0 || hop <= 0 {
		return Window{}, fmt.Errorf("window geometry invalid at %d Hz", w.SampleRate)
	}
	fallback := Window{Start: 0, End: min(win, w.Len()), Fallback: true}

	var starts []int
	for start := 0; start+win <= w.Len(); start += hop {
		seg := w.Samples[start : start+win]
		if wave.RMS(seg) < s.cfg.RMSFloor || wave.ZeroCrossingRate(seg) > s.cfg.ZCRCeiling {
			fallback.Gated++
			continue
		}
		starts = append(starts, start)
	}
	fallback.Scanned = len(starts) + fallback.Gated
	if len(starts) == 0 {
		s.logger.Warn("no window passed the gates, using clip start",
			"scanned", fallback.Scanned, "window_samples", fallback.End)
		return fallback, nil
	}

	contour, err := s.tracker.Track(w)
	if err != nil {
		return Window{}, fmt.Errorf("pitch track: %w", err)
	}
	env, err := NewOnsetEnvelope(w)
	if err != nil {
		return Window{}, fmt.Errorf("onset envelope: %w", err)
	}

	sr := float64(w.SampleRate)
	best := Window{Start: -1}
	for _, start := range starts {
		t0 := float64(start) / sr
		t1 := float64(start+win) / sr
		score := s.scorer.Score(contour.Slice(t0, t1), env.Slice(t0, t1).Onsets())
		if best.Start < 0 || score.Total > best.Score.Total {
			best = Window{Start: start, End: start + win, Score: score}
		}
	}
	best.Scanned = fallback.Scanned
	best.Gated = fallback.Gated
	if best.Score.Total < s.cfg.MinScore {
		best.LowConfidence = true
		s.logger.Warn("best window below minimum melody score",
			"score", best.Score.Total, "min_score", s.cfg.MinScore, "start", best.Start)
	}
	return best, nil
}
