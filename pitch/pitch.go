// Package pitch estimates fundamental-frequency contours with the YIN
// algorithm.
package pitch

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-restyle/internal/numeric"
	"github.com/cwbudde/algo-restyle/internal/wave"
	"github.com/cwbudde/algo-restyle/internal/wavio"
)

// NoPitch marks unvoiced or undetected frames in a Contour.
var NoPitch = math.NaN()

// Voiced reports whether f is a usable pitch value. Zero and negative values
// are rejected like NoPitch.
func Voiced(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f > 0
}

// Contour is a per-frame f0 series.
type Contour struct {
	Hz         []float64
	HopSeconds float64
}

// Len returns the number of frames.
func (c Contour) Len() int { return len(c.Hz) }

// Valid returns the voiced values in order.
func (c Contour) Valid() []float64 {
	out := make([]float64, 0, len(c.Hz))
	for _, f := range c.Hz {
		if Voiced(f) {
			out = append(out, f)
		}
	}
	return out
}

// VoicedFraction returns the share of voiced frames.
func (c Contour) VoicedFraction() float64 {
	if len(c.Hz) == 0 {
		return 0
	}
	return float64(len(c.Valid())) / float64(len(c.Hz))
}

// Slice returns the frames whose start time lies in [start,end) seconds.
// The result shares memory with c.
func (c Contour) Slice(start, end float64) Contour {
	if c.HopSeconds <= 0 || len(c.Hz) == 0 {
		return Contour{HopSeconds: c.HopSeconds}
	}
	i := int(math.Ceil(start/c.HopSeconds - 1e-9))
	j := int(math.Ceil(end/c.HopSeconds - 1e-9))
	i = numeric.MaxInt(i, 0)
	j = numeric.MinInt(j, len(c.Hz))
	if j < i {
		j = i
	}
	return Contour{Hz: c.Hz[i:j], HopSeconds: c.HopSeconds}
}

// Config controls the tracker.
type Config struct {
	MinHz        float64 `yaml:"min_hz"`
	MaxHz        float64 `yaml:"max_hz"`
	AnalysisRate int     `yaml:"analysis_rate"`
	FrameSize    int     `yaml:"frame_size"`
	Hop          int     `yaml:"hop"`
	// Threshold is the YIN absolute threshold on the cumulative mean
	// normalized difference.
	Threshold float64 `yaml:"threshold"`
	// SilenceRMS marks frames below this level unvoiced without analysis.
	SilenceRMS float64 `yaml:"silence_rms"`
}

// DefaultConfig covers C2..C6 with 8 ms frames.
func DefaultConfig() Config {
	return Config{
		MinHz:        65.4,
		MaxHz:        1046.5,
		AnalysisRate: 16000,
		FrameSize:    1024,
		Hop:          128,
		Threshold:    0.15,
		SilenceRMS:   1e-4,
	}
}

// Validate checks the configuration for usable ranges.
func (c Config) Validate() error {
	if c.MinHz <= 0 || c.MaxHz <= c.MinHz {
		return fmt.Errorf("pitch range invalid: min=%g max=%g", c.MinHz, c.MaxHz)
	}
	if c.AnalysisRate <= 0 || c.Hop <= 0 {
		return fmt.Errorf("pitch geometry invalid: rate=%d hop=%d", c.AnalysisRate, c.Hop)
	}
	if maxLag := int(float64(c.AnalysisRate) / c.MinHz); c.FrameSize < 2*maxLag {
		return fmt.Errorf("pitch frame size %d too short for %g Hz at %d Hz", c.FrameSize, c.MinHz, c.AnalysisRate)
	}
	if c.Threshold <= 0 || c.Threshold >= 1 {
		return fmt.Errorf("pitch threshold must be in (0,1): %g", c.Threshold)
	}
	return nil
}

// Tracker estimates contours. It holds no per-call state and may be shared.
type Tracker struct {
	cfg Config
}

// NewTracker validates cfg and returns a tracker.
func NewTracker(cfg Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Tracker{cfg: cfg}, nil
}

// HopSeconds returns the frame spacing of produced contours.
func (t *Tracker) HopSeconds() float64 {
	return float64(t.cfg.Hop) / float64(t.cfg.AnalysisRate)
}

// Track computes the contour of w. Signals shorter than one frame produce an
// empty contour.
func (t *Tracker) Track(w wave.Waveform) (Contour, error) {
	c := Contour{HopSeconds: t.HopSeconds()}
	if w.Len() == 0 {
		return c, nil
	}
	x := w.Samples
	if w.SampleRate != t.cfg.AnalysisRate {
		var err error
		x, err = wavio.ResampleSlice(w.Samples, float64(w.SampleRate), float64(t.cfg.AnalysisRate))
		if err != nil {
			return c, fmt.Errorf("pitch resample: %w", err)
		}
	}
	n := t.cfg.FrameSize
	if len(x) < n {
		return c, nil
	}
	frames := 1 + (len(x)-n)/t.cfg.Hop
	c.Hz = make([]float64, frames)
	for f := 0; f < frames; f++ {
		hz, err := t.frame(x[f*t.cfg.Hop : f*t.cfg.Hop+n])
		if err != nil {
			return c, err
		}
		c.Hz[f] = hz
	}
	return c, nil
}

func (t *Tracker) frame(x []float64) (float64, error) {
	if wave.RMS(x) < t.cfg.SilenceRMS {
		return NoPitch, nil
	}
	sr := float64(t.cfg.AnalysisRate)
	minLag := numeric.MaxInt(int(sr/t.cfg.MaxHz), 2)
	maxLag := numeric.MinInt(int(sr/t.cfg.MinHz)+1, len(x)/2)

	r, err := numeric.Autocorrelation(x)
	if err != nil {
		return NoPitch, fmt.Errorf("pitch autocorrelation: %w", err)
	}

	// Prefix energies give the head and tail energy of the shrinking
	// overlap for each lag.
	n := len(x)
	cum := make([]float64, n+1)
	for i, v := range x {
		cum[i+1] = cum[i] + v*v
	}

	d := make([]float64, maxLag+2)
	for tau := 1; tau < len(d); tau++ {
		head := cum[n-tau]
		tail := cum[n] - cum[tau]
		v := head + tail - 2*r[tau]
		if v < 0 {
			v = 0
		}
		d[tau] = v
	}

	// Cumulative mean normalized difference.
	cmnd := make([]float64, len(d))
	cmnd[0] = 1
	var running float64
	for tau := 1; tau < len(d); tau++ {
		running += d[tau]
		if running <= 0 {
			cmnd[tau] = 1
			continue
		}
		cmnd[tau] = d[tau] * float64(tau) / running
	}

	best := -1
	for tau := minLag; tau <= maxLag; tau++ {
		if cmnd[tau] < t.cfg.Threshold {
			for tau+1 <= maxLag && cmnd[tau+1] < cmnd[tau] {
				tau++
			}
			best = tau
			break
		}
	}
	if best < 0 {
		return NoPitch, nil
	}

	lag := float64(best)
	if best > 1 && best+1 < len(cmnd) {
		a, b, cc := cmnd[best-1], cmnd[best], cmnd[best+1]
		if den := a - 2*b + cc; den != 0 {
			lag += 0.5 * (a - cc) / den
		}
	}
	hz := sr / lag
	if hz < t.cfg.MinHz || hz > t.cfg.MaxHz {
		return NoPitch, nil
	}
	return hz, nil
}

// HzToMIDI converts a frequency to a fractional MIDI note number.
func HzToMIDI(hz float64) float64 {
	return 69 + 12*math.Log2(hz/440)
}
