package dsp

import (
	"fmt"
	"math"
	"math/cmplx"

	algofft "github.com/cwbudde/algo-fft"
)

// Hann returns a symmetric Hann window of length n.
func Hann(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// STFT computes magnitude spectra of Hann-windowed frames.
type STFT struct {
	size int
	hop  int
	win  []float64
	fwd  func(dst []complex128, src []float64)
	buf  []float64
	spec []complex128
}

// NewSTFT creates an analyzer with the given frame size and hop.
func NewSTFT(size, hop int) (*STFT, error) {
	if size < 2 || hop < 1 {
		return nil, fmt.Errorf("invalid stft geometry size=%d hop=%d", size, hop)
	}
	plan, err := algofft.NewPlanReal64(size)
	if err != nil {
		return nil, fmt.Errorf("fft plan: %w", err)
	}
	return &STFT{
		size: size,
		hop:  hop,
		win:  Hann(size),
		fwd:  func(dst []complex128, src []float64) { plan.Forward(dst, src) },
		buf:  make([]float64, size),
		spec: make([]complex128, size/2+1),
	}, nil
}

// Size returns the frame length.
func (s *STFT) Size() int { return s.size }

// Hop returns the hop length.
func (s *STFT) Hop() int { return s.hop }

// Bins returns the number of magnitude bins per frame.
func (s *STFT) Bins() int { return s.size/2 + 1 }

// BinHz returns the bin spacing at the given sample rate.
func (s *STFT) BinHz(sampleRate int) float64 {
	return float64(sampleRate) / float64(s.size)
}

// Frames returns the number of frames Magnitudes will produce for n samples.
// A signal shorter than one frame yields a single zero-padded frame.
func (s *STFT) Frames(n int) int {
	if n <= 0 {
		return 0
	}
	if n <= s.size {
		return 1
	}
	return 1 + (n-s.size+s.hop-1)/s.hop
}

// Magnitudes returns |X[k]| for every frame, frame-major.
func (s *STFT) Magnitudes(x []float64) [][]float64 {
	nFrames := s.Frames(len(x))
	out := make([][]float64, nFrames)
	for f := 0; f < nFrames; f++ {
		pos := f * s.hop
		for i := 0; i < s.size; i++ {
			if pos+i < len(x) {
				s.buf[i] = x[pos+i] * s.win[i]
			} else {
				s.buf[i] = 0
			}
		}
		s.fwd(s.spec, s.buf)
		mag := make([]float64, len(s.spec))
		for k, c := range s.spec {
			mag[k] = cmplx.Abs(c)
		}
		out[f] = mag
	}
	return out
}
