// Package generator adapts external music generators. Every adapter takes a
// Request and returns the path of the WAV it wrote.
package generator

import (
	"errors"
	"fmt"
)

// SecondsPerToken is the audio duration of one MusicGen token.
const SecondsPerToken = 0.0305

var ErrNoOutput = errors.New("generator: no audio written")

// Sampling holds the decoder parameters forwarded to the model.
type Sampling struct {
	GuidanceScale float64 `yaml:"guidance_scale" json:"guidance_scale"`
	Temperature   float64 `yaml:"temperature" json:"temperature"`
	TopP          float64 `yaml:"top_p" json:"top_p"`
	DoSample      bool    `yaml:"do_sample" json:"do_sample"`
}

func DefaultSampling() Sampling {
	return Sampling{GuidanceScale: 3.0, Temperature: 1.0, TopP: 0.95, DoSample: true}
}

func (s Sampling) Validate() error {
	switch {
	case s.GuidanceScale < 0:
		return fmt.Errorf("guidance_scale must be >= 0, got %g", s.GuidanceScale)
	case s.Temperature <= 0:
		return fmt.Errorf("temperature must be > 0, got %g", s.Temperature)
	case s.TopP <= 0 || s.TopP > 1:
		return fmt.Errorf("top_p must be in (0,1], got %g", s.TopP)
	}
	return nil
}

// Request is one generation call.
type Request struct {
	Prompt        string
	MelodyPath    string
	OutputPath    string
	TargetSeconds float64
	Sampling      Sampling
}

// TokenBudget converts a duration to the number of new tokens to decode.
func TokenBudget(seconds float64) int {
	if seconds <= 0 {
		return 0
	}
	return int(seconds / SecondsPerToken)
}
