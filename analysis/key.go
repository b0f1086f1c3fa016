package analysis

import (
	"fmt"

	"github.com/cwbudde/algo-restyle/internal/numeric"
	"github.com/cwbudde/algo-restyle/internal/wave"
)

// Mode is the key mode.
type Mode int

const (
	Major Mode = iota
	Minor
)

func (m Mode) String() string {
	if m == Minor {
		return "minor"
	}
	return "major"
}

// PitchClassNames indexes pitch classes from C.
var PitchClassNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Key is a descriptive key estimate. It annotates output and never
// constrains melody content.
type Key struct {
	Tonic      int     `json:"tonic" yaml:"tonic"`
	Mode       Mode    `json:"mode" yaml:"mode"`
	Name       string  `json:"name" yaml:"name"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// Krumhansl-Kessler probe-tone profiles, tonic first.
var (
	majorProfile = unitProfile([12]float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88})
	minorProfile = unitProfile([12]float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17})
)

func unitProfile(p [12]float64) [12]float64 {
	n := numeric.Norm2(p[:])
	for i := range p {
		p[i] /= n
	}
	return p
}

// rotated returns the profile with its tonic moved to pitch class t.
func rotated(p [12]float64, t int) [12]float64 {
	var out [12]float64
	for i := range out {
		out[i] = p[((i-t)%12+12)%12]
	}
	return out
}

// KeyFromChroma picks the major or minor key whose rotated profile has the
// largest dot product with the normalized chroma vector. Ties keep the
// lower tonic and prefer major. A zero vector yields C major with zero
// confidence.
func KeyFromChroma(chroma [12]float64) Key {
	c := normalizeChroma(chroma)
	best := Key{Tonic: 0, Mode: Major, Confidence: 0}
	bestDot := 0.0
	first := true
	for t := 0; t < 12; t++ {
		for _, mode := range []Mode{Major, Minor} {
			prof := majorProfile
			if mode == Minor {
				prof = minorProfile
			}
			r := rotated(prof, t)
			d := numeric.Dot(c[:], r[:])
			if first || d > bestDot {
				best = Key{Tonic: t, Mode: mode}
				bestDot = d
				first = false
			}
		}
	}
	best.Confidence = numeric.Clamp01(bestDot)
	best.Name = fmt.Sprintf("%s %s", PitchClassNames[best.Tonic], best.Mode)
	return best
}

// DetectKey estimates the key of w from its chroma.
func DetectKey(w wave.Waveform) (Key, error) {
	c, err := Chroma(w)
	if err != nil {
		return Key{}, fmt.Errorf("chroma: %w", err)
	}
	return KeyFromChroma(c), nil
}
