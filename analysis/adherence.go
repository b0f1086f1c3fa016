package analysis

import (
	"math"

	"github.com/cwbudde/algo-restyle/dsp"
	"github.com/cwbudde/algo-restyle/internal/numeric"
	"github.com/cwbudde/algo-restyle/internal/wave"
)

// Adherence measures how closely a generated clip follows the melody clip it
// was conditioned on. Lower Distance means closer; Similarity is
// exp(-4*Distance).
type Adherence struct {
	SampleRate int `json:"sample_rate" yaml:"sample_rate"`

	MelodyFrames    int `json:"melody_frames" yaml:"melody_frames"`
	GeneratedFrames int `json:"generated_frames" yaml:"generated_frames"`
	AlignedFrames   int `json:"aligned_frames" yaml:"aligned_frames"`
	LagSamples      int `json:"lag_samples" yaml:"lag_samples"`

	EnvelopeRMSEDB float64 `json:"envelope_rmse_db" yaml:"envelope_rmse_db"`
	SpectralRMSEDB float64 `json:"spectral_rmse_db" yaml:"spectral_rmse_db"`
	ChromaDistance float64 `json:"chroma_distance" yaml:"chroma_distance"`

	Distance   float64 `json:"distance" yaml:"distance"`
	Similarity float64 `json:"similarity" yaml:"similarity"`
}

const (
	adherenceMaxLagSeconds = 0.5
	adherenceMinFrames     = 256
	envelopeFrame          = 256
	envelopeHop            = 128
)

// CompareMelody aligns generated against melody by cross-correlation and
// returns envelope, spectral and chroma distances over the overlap. Both
// clips must share a sample rate; mismatched or empty input yields the
// maximum distance.
func CompareMelody(melody, generated wave.Waveform) Adherence {
	m := Adherence{
		SampleRate:      melody.SampleRate,
		MelodyFrames:    melody.Len(),
		GeneratedFrames: generated.Len(),
		Distance:        1.0,
	}
	sr := melody.SampleRate
	if sr <= 0 || sr != generated.SampleRate || melody.Len() == 0 || generated.Len() == 0 {
		return m
	}

	ref := trimLeadingSilence(melody.Samples, 1e-6)
	cand := trimLeadingSilence(generated.Samples, 1e-6)
	if len(ref) == 0 || len(cand) == 0 {
		return m
	}
	ref = normalizeRMS(ref, 0.1)
	cand = normalizeRMS(cand, 0.1)

	maxLag := int(adherenceMaxLagSeconds * float64(sr))
	maxLag = numeric.MaxInt(numeric.MinInt(maxLag, numeric.MinInt(len(ref), len(cand))-1), 1)
	lag := estimateLag(ref, cand, maxLag)
	m.LagSamples = lag

	refA, candA := alignByLag(ref, cand, lag)
	n := numeric.MinInt(len(refA), len(candA))
	if n < adherenceMinFrames {
		return m
	}
	refA = refA[:n]
	candA = candA[:n]
	m.AlignedFrames = n

	refEnv := rmsEnvelope(refA, envelopeFrame, envelopeHop)
	candEnv := rmsEnvelope(candA, envelopeFrame, envelopeHop)
	if envN := numeric.MinInt(len(refEnv), len(candEnv)); envN > 0 {
		envDiff := make([]float64, envN)
		for i := 0; i < envN; i++ {
			envDiff[i] = wave.LinToDB(refEnv[i]) - wave.LinToDB(candEnv[i])
		}
		m.EnvelopeRMSEDB = wave.RMS(envDiff)
	}

	m.SpectralRMSEDB = spectralRMSEDB(refA, candA)

	refChroma, errR := Chroma(wave.New(refA, sr))
	candChroma, errC := Chroma(wave.New(candA, sr))
	if errR == nil && errC == nil {
		// Both vectors are unit length, so the chord distance lies in [0,2].
		var d [12]float64
		for i := range d {
			d[i] = refChroma[i] - candChroma[i]
		}
		m.ChromaDistance = numeric.Norm2(d[:]) / 2
	}

	envNorm := numeric.Clamp01(m.EnvelopeRMSEDB / 30.0)
	specNorm := numeric.Clamp01(m.SpectralRMSEDB / 30.0)
	chromaNorm := numeric.Clamp01(m.ChromaDistance)
	m.Distance = numeric.Clamp01(0.30*envNorm + 0.30*specNorm + 0.40*chromaNorm)
	m.Similarity = numeric.Clamp01(math.Exp(-4.0 * m.Distance))
	return m
}

func trimLeadingSilence(x []float64, threshold float64) []float64 {
	for i := 0; i < len(x); i++ {
		if math.Abs(x[i]) > threshold {
			return x[i:]
		}
	}
	return nil
}

func normalizeRMS(x []float64, target float64) []float64 {
	if len(x) == 0 {
		return x
	}
	r := wave.RMS(x)
	if r <= 1e-12 {
		return append([]float64(nil), x...)
	}
	g := target / r
	out := make([]float64, len(x))
	for i := range x {
		out[i] = x[i] * g
	}
	return out
}

// estimateLag returns the lag in [-maxLag,maxLag] maximizing
// sum ref[i+lag]*cand[i].
func estimateLag(ref []float64, cand []float64, maxLag int) int {
	if len(ref) == 0 || len(cand) == 0 {
		return 0
	}
	xc, err := numeric.CrossCorrelation(ref, cand)
	if err != nil {
		return 0
	}
	zero := len(cand) - 1
	bestLag := 0
	best := math.Inf(-1)
	for lag := -maxLag; lag <= maxLag; lag++ {
		i := zero + lag
		if i < 0 || i >= len(xc) {
			continue
		}
		if xc[i] > best {
			best = xc[i]
			bestLag = lag
		}
	}
	return bestLag
}

func alignByLag(ref []float64, cand []float64, lag int) ([]float64, []float64) {
	if lag >= 0 {
		if lag >= len(ref) {
			return nil, nil
		}
		return ref[lag:], cand
	}
	o := -lag
	if o >= len(cand) {
		return nil, nil
	}
	return ref, cand[o:]
}

func rmsEnvelope(x []float64, frame int, hop int) []float64 {
	if frame <= 0 || hop <= 0 || len(x) < frame {
		return nil
	}
	n := 1 + (len(x)-frame)/hop
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		start := i * hop
		out[i] = wave.RMS(x[start : start+frame])
	}
	return out
}

// spectralRMSEDB compares the frame-averaged log spectra of a and b.
func spectralRMSEDB(a []float64, b []float64) float64 {
	n := numeric.MinInt(len(a), len(b))
	if n < 512 {
		return 0
	}
	size := 4096
	for size > n {
		size /= 2
	}
	st, err := dsp.NewSTFT(size, size/2)
	if err != nil {
		return 0
	}
	avgA := averageSpectrum(st.Magnitudes(a[:n]))
	avgB := averageSpectrum(st.Magnitudes(b[:n]))
	bins := len(avgA) - 1
	if bins < 2 {
		return 0
	}
	var sum float64
	for k := 1; k < bins; k++ {
		d := wave.LinToDB(avgA[k]) - wave.LinToDB(avgB[k])
		sum += d * d
	}
	return math.Sqrt(sum / float64(bins-1))
}

func averageSpectrum(frames [][]float64) []float64 {
	if len(frames) == 0 {
		return nil
	}
	out := make([]float64, len(frames[0]))
	for _, f := range frames {
		for k, v := range f {
			out[k] += v
		}
	}
	scale := 1.0 / float64(len(frames))
	for k := range out {
		out[k] *= scale
	}
	return out
}
