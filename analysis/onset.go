package analysis

import (
	"math"

	"github.com/cwbudde/algo-restyle/dsp"
	"github.com/cwbudde/algo-restyle/internal/numeric"
	"github.com/cwbudde/algo-restyle/internal/wave"
)

// Onset envelope geometry and peak-picking parameters.
const (
	onsetFrame     = 2048
	onsetHop       = 512
	onsetLogGain   = 1000.0
	onsetPreMax    = 3
	onsetPostMax   = 3
	onsetPreAvg    = 10
	onsetPostAvg   = 10
	onsetDelta     = 0.07
	onsetMinFrames = 3
)

// OnsetEnvelope is a log-magnitude spectral flux curve normalized to a peak
// of 1.
type OnsetEnvelope struct {
	Strength   []float64
	HopSeconds float64
}

// NewOnsetEnvelope computes the onset-strength envelope of w.
func NewOnsetEnvelope(w wave.Waveform) (OnsetEnvelope, error) {
	env := OnsetEnvelope{}
	if w.SampleRate <= 0 {
		return env, nil
	}
	env.HopSeconds = float64(onsetHop) / float64(w.SampleRate)
	if w.Len() == 0 {
		return env, nil
	}
	st, err := dsp.NewSTFT(onsetFrame, onsetHop)
	if err != nil {
		return env, err
	}
	frames := st.Magnitudes(w.Samples)
	env.Strength = make([]float64, len(frames))
	prev := make([]float64, st.Bins())
	for f, mag := range frames {
		var flux float64
		for k, m := range mag {
			v := math.Log1p(onsetLogGain * m)
			if f > 0 {
				if d := v - prev[k]; d > 0 {
					flux += d
				}
			}
			prev[k] = v
		}
		env.Strength[f] = flux / float64(len(mag))
	}
	if peak := numeric.Max(env.Strength); peak > 0 {
		for i := range env.Strength {
			env.Strength[i] /= peak
		}
	}
	return env, nil
}

// Slice returns the frames whose start lies in [start,end) seconds.
func (e OnsetEnvelope) Slice(start, end float64) OnsetEnvelope {
	if e.HopSeconds <= 0 || len(e.Strength) == 0 {
		return OnsetEnvelope{HopSeconds: e.HopSeconds}
	}
	i := numeric.MaxInt(int(math.Ceil(start/e.HopSeconds-1e-9)), 0)
	j := numeric.MinInt(int(math.Ceil(end/e.HopSeconds-1e-9)), len(e.Strength))
	if j < i {
		j = i
	}
	return OnsetEnvelope{Strength: e.Strength[i:j], HopSeconds: e.HopSeconds}
}

// Onsets picks local maxima that stand out from their neighbourhood mean and
// returns their times in seconds relative to the start of the envelope.
func (e OnsetEnvelope) Onsets() []float64 {
	s := e.Strength
	var out []float64
	last := -onsetMinFrames - 1
	for i, v := range s {
		if v <= 0 {
			continue
		}
		lo := numeric.MaxInt(i-onsetPreMax, 0)
		hi := numeric.MinInt(i+onsetPostMax+1, len(s))
		if v < numeric.Max(s[lo:hi]) {
			continue
		}
		lo = numeric.MaxInt(i-onsetPreAvg, 0)
		hi = numeric.MinInt(i+onsetPostAvg+1, len(s))
		if v < numeric.Mean(s[lo:hi])+onsetDelta {
			continue
		}
		if i-last <= onsetMinFrames {
			continue
		}
		out = append(out, float64(i)*e.HopSeconds)
		last = i
	}
	return out
}
