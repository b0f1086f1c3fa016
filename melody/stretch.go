package melody

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-restyle/dsp"
	"github.com/cwbudde/algo-restyle/internal/wavio"
)

// Shifter changes tempo and pitch independently.
type Shifter interface {
	// TimeStretch speeds x up by rate (>1 shortens) without changing pitch.
	TimeStretch(x []float64, rate float64, sampleRate int) ([]float64, error)
	// PitchShift moves x by semitones while keeping its length.
	PitchShift(x []float64, semitones float64, sampleRate int) ([]float64, error)
}

// WSOLA is a waveform-similarity overlap-add shifter. Pitch shifting
// stretches by the pitch ratio and resamples back to the original length.
type WSOLA struct {
	// FrameSeconds is the grain length; zero means 40 ms.
	FrameSeconds float64
}

func (s WSOLA) frame(sampleRate int) int {
	sec := s.FrameSeconds
	if sec <= 0 {
		sec = 0.040
	}
	n := int(sec * float64(sampleRate))
	if n%2 == 1 {
		n++
	}
	return n
}

func (s WSOLA) TimeStretch(x []float64, rate float64, sampleRate int) ([]float64, error) {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil, fmt.Errorf("invalid stretch rate %g", rate)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	n := len(x)
	outLen := int(math.Round(float64(n) / rate))
	if n == 0 || outLen == 0 {
		return []float64{}, nil
	}
	frame := s.frame(sampleRate)
	if n < 2*frame {
		return dsp.ResampleCubic(x, outLen), nil
	}

	synHop := frame / 2
	anaHop := float64(synHop) * rate
	tol := frame / 4
	win := periodicHann(frame)

	out := make([]float64, outLen+frame)
	norm := make([]float64, outLen+frame)
	prev := 0
	for k := 0; k*synHop < outLen; k++ {
		pos := 0
		if k > 0 {
			nominal := int(math.Round(float64(k) * anaHop))
			pos = bestAlignment(x, prev+synHop, nominal, tol, frame)
		}
		base := k * synHop
		for i := 0; i < frame; i++ {
			j := pos + i
			if j >= n {
				break
			}
			out[base+i] += x[j] * win[i]
			norm[base+i] += win[i]
		}
		prev = pos
	}
	res := make([]float64, outLen)
	for i := range res {
		if norm[i] > 1e-6 {
			res[i] = out[i] / norm[i]
		}
	}
	return res, nil
}

// bestAlignment searches [nominal-tol, nominal+tol] for the grain start whose
// content best matches the natural continuation at target.
func bestAlignment(x []float64, target, nominal, tol, frame int) int {
	n := len(x)
	lo := max(nominal-tol, 0)
	hi := min(nominal+tol, n-frame)
	if hi < lo {
		return max(min(nominal, n-1), 0)
	}
	if target < 0 || target+frame > n {
		return max(min(nominal, hi), lo)
	}
	best := lo
	bestScore := math.Inf(-1)
	for p := lo; p <= hi; p++ {
		var s float64
		for i := 0; i < frame; i += 2 {
			s += x[p+i] * x[target+i]
		}
		if s > bestScore {
			bestScore = s
			best = p
		}
	}
	return best
}

func periodicHann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// resampleGrid quantizes intermediate rates so the polyphase resampler
// works with small integer ratios.
const resampleGrid = 100.0

func (s WSOLA) PitchShift(x []float64, semitones float64, sampleRate int) ([]float64, error) {
	if math.IsNaN(semitones) || math.IsInf(semitones, 0) {
		return nil, fmt.Errorf("invalid pitch shift %g", semitones)
	}
	n := len(x)
	if n == 0 || semitones == 0 {
		return append([]float64(nil), x...), nil
	}
	ratio := math.Pow(2, semitones/12)
	from := math.Round(float64(sampleRate)*ratio/resampleGrid) * resampleGrid
	if from <= 0 {
		return nil, fmt.Errorf("pitch ratio %g out of range", ratio)
	}
	ratio = from / float64(sampleRate)

	stretched, err := s.TimeStretch(x, 1/ratio, sampleRate)
	if err != nil {
		return nil, err
	}
	shifted, err := wavio.ResampleSlice(stretched, from, float64(sampleRate))
	if err != nil {
		shifted = dsp.ResampleCubic(stretched, n)
	}
	out := make([]float64, n)
	copy(out, shifted)
	return out, nil
}
