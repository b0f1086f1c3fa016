// Package wavio reads and writes mono WAV files and converts sample rates.
package wavio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
	"github.com/h2non/filetype"

	"github.com/cwbudde/algo-restyle/internal/wave"
)

var (
	ErrNotFound          = errors.New("wavio: file not found")
	ErrUnsupportedFormat = errors.New("wavio: unsupported audio format")
	ErrCorrupt           = errors.New("wavio: corrupt audio")
)

// sniffLen is the header length filetype needs to recognise a container.
const sniffLen = 261

// Validate checks that path exists and that its content is a WAV container.
func Validate(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return err
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read header %s: %w", path, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: empty file %s", ErrCorrupt, path)
	}
	kind, err := filetype.Match(head[:n])
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, path, err)
	}
	if kind == filetype.Unknown || kind.Extension != "wav" {
		return fmt.Errorf("%w: %s (detected %q)", ErrUnsupportedFormat, path, kind.Extension)
	}
	return nil
}

// ReadMono validates and decodes path, downmixing all channels to mono.
func ReadMono(path string) (wave.Waveform, error) {
	if err := Validate(path); err != nil {
		return wave.Waveform{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return wave.Waveform{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return wave.Waveform{}, fmt.Errorf("%w: invalid wav file: %s", ErrCorrupt, path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return wave.Waveform{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate <= 0 {
		return wave.Waveform{}, fmt.Errorf("%w: invalid wav buffer: %s", ErrCorrupt, path)
	}
	ch := buf.Format.NumChannels
	frames := len(buf.Data) / ch
	if frames == 0 {
		return wave.Waveform{}, fmt.Errorf("%w: empty wav data: %s", ErrCorrupt, path)
	}
	out := make([]float64, frames)
	var peak float64
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < ch; c++ {
			sum += float64(buf.Data[i*ch+c])
		}
		out[i] = sum / float64(ch)
		if a := math.Abs(out[i]); a > peak {
			peak = a
		}
	}
	// Integer PCM that was not scaled by the decoder.
	if peak > 1.5 && buf.SourceBitDepth > 0 {
		scale := 1.0 / float64(int64(1)<<(buf.SourceBitDepth-1))
		for i := range out {
			out[i] *= scale
		}
	}
	return wave.New(out, buf.Format.SampleRate), nil
}

// ReadMonoAt reads path and resamples it to sampleRate.
func ReadMonoAt(path string, sampleRate int) (wave.Waveform, error) {
	w, err := ReadMono(path)
	if err != nil {
		return wave.Waveform{}, err
	}
	return Resample(w, sampleRate)
}

// Resample converts w to sampleRate. The input is returned as-is when the
// rates already match.
func Resample(w wave.Waveform, sampleRate int) (wave.Waveform, error) {
	if w.SampleRate == sampleRate || len(w.Samples) == 0 {
		return wave.New(w.Samples, sampleRate), nil
	}
	out, err := ResampleSlice(w.Samples, float64(w.SampleRate), float64(sampleRate))
	if err != nil {
		return wave.Waveform{}, err
	}
	return wave.New(out, sampleRate), nil
}

// ResampleSlice converts samples between arbitrary positive rates.
func ResampleSlice(in []float64, fromRate, toRate float64) ([]float64, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid resample rates %g -> %g", fromRate, toRate)
	}
	if fromRate == toRate {
		return append([]float64(nil), in...), nil
	}
	r, err := dspresample.NewForRates(
		fromRate,
		toRate,
		dspresample.WithQuality(dspresample.QualityBest),
	)
	if err != nil {
		return nil, fmt.Errorf("resampler %g -> %g: %w", fromRate, toRate, err)
	}
	out := r.Process(in)
	want := int(math.Round(float64(len(in)) * toRate / fromRate))
	return fitLength(out, want), nil
}

// fitLength trims or zero-pads x to n samples.
func fitLength(x []float64, n int) []float64 {
	if len(x) == n {
		return x
	}
	out := make([]float64, n)
	copy(out, x)
	return out
}

// WriteMono writes w as a 16-bit mono WAV, creating parent directories.
func WriteMono(path string, w wave.Waveform) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := wav.NewEncoder(f, w.SampleRate, 16, 1, 1)

	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  w.SampleRate,
			NumChannels: 1,
		},
		Data:           w.Float32(),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return enc.Close()
}
