package analysis

import (
	"math"

	"github.com/cwbudde/algo-restyle/dsp"
	"github.com/cwbudde/algo-restyle/internal/numeric"
	"github.com/cwbudde/algo-restyle/internal/wave"
)

// Chroma analysis geometry.
const (
	chromaFrame = 4096
	chromaHop   = 1024
	chromaLoHz  = 55.0
	chromaHiHz  = 5000.0
)

// Chroma folds the STFT power of w into 12 pitch classes (C=0), averaged
// over frames and L2-normalized. Silent input yields the zero vector.
func Chroma(w wave.Waveform) ([12]float64, error) {
	var out [12]float64
	if w.Len() == 0 || w.SampleRate <= 0 {
		return out, nil
	}
	st, err := dsp.NewSTFT(chromaFrame, chromaHop)
	if err != nil {
		return out, err
	}
	binHz := st.BinHz(w.SampleRate)
	classes := make([]int, st.Bins())
	for k := range classes {
		f := float64(k) * binHz
		if k == 0 || f < chromaLoHz || f > chromaHiHz {
			classes[k] = -1
			continue
		}
		midi := int(math.Round(69 + 12*math.Log2(f/440)))
		classes[k] = ((midi % 12) + 12) % 12
	}

	frames := st.Magnitudes(w.Samples)
	for _, mag := range frames {
		for k, m := range mag {
			if pc := classes[k]; pc >= 0 {
				out[pc] += m * m
			}
		}
	}
	if len(frames) > 0 {
		for i := range out {
			out[i] /= float64(len(frames))
		}
	}
	return normalizeChroma(out), nil
}

func normalizeChroma(c [12]float64) [12]float64 {
	n := numeric.Norm2(c[:])
	if n <= 1e-12 {
		return [12]float64{}
	}
	for i := range c {
		c[i] /= n
	}
	return c
}
