// Package melody cuts a representative melodic clip from a source recording
// and perturbs it between generation attempts.
package melody

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/algo-restyle/analysis"
	"github.com/cwbudde/algo-restyle/dsp"
	"github.com/cwbudde/algo-restyle/internal/wave"
	"github.com/cwbudde/algo-restyle/internal/wavio"
)

// Band-pass implementations.
const (
	FilterIIR = "iir"
	FilterFIR = "fir"
)

// ExtractorConfig controls clip preparation.
type ExtractorConfig struct {
	SampleRate int                   `yaml:"sample_rate"`
	Window     analysis.WindowConfig `yaml:"window"`
	HPSS       bool                  `yaml:"hpss"`
	Bandpass   bool                  `yaml:"bandpass"`
	BandLowHz  float64               `yaml:"band_low_hz"`
	BandHighHz float64               `yaml:"band_high_hz"`
	Filter     string                `yaml:"filter"`
	FIRTaps    int                   `yaml:"fir_taps"`
	PeakTarget float64               `yaml:"peak_target"`
}

func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		SampleRate: wave.GenerationRate,
		Window:     analysis.DefaultWindowConfig(),
		HPSS:       true,
		Bandpass:   true,
		BandLowHz:  200,
		BandHighHz: 1200,
		Filter:     FilterIIR,
		FIRTaps:    1023,
		PeakTarget: 0.9,
	}
}

func (c ExtractorConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("extractor sample rate must be positive: %d", c.SampleRate)
	}
	if err := c.Window.Validate(); err != nil {
		return err
	}
	if c.Bandpass {
		if c.BandLowHz <= 0 || c.BandHighHz <= c.BandLowHz || c.BandHighHz >= float64(c.SampleRate)/2 {
			return fmt.Errorf("band-pass range invalid: %g..%g Hz", c.BandLowHz, c.BandHighHz)
		}
		if c.Filter != FilterIIR && c.Filter != FilterFIR {
			return fmt.Errorf("unknown band-pass filter %q", c.Filter)
		}
		if c.Filter == FilterFIR && c.FIRTaps < 3 {
			return fmt.Errorf("fir taps must be at least 3: %d", c.FIRTaps)
		}
	}
	if c.PeakTarget <= 0 || c.PeakTarget > 1 {
		return fmt.Errorf("peak target must be in (0,1]: %g", c.PeakTarget)
	}
	return nil
}

// Extraction is the prepared melody of one source. Key and Window are
// computed once; the clip is handed out as copies.
type Extraction struct {
	Key           analysis.Key
	Window        analysis.Window
	SourceSeconds float64
	clip          wave.Waveform
}

// NewExtraction wraps an already processed clip, for callers that cut the
// melody elsewhere.
func NewExtraction(key analysis.Key, win analysis.Window, sourceSeconds float64, clip wave.Waveform) *Extraction {
	return &Extraction{Key: key, Window: win, SourceSeconds: sourceSeconds, clip: clip.Clone()}
}

// Clip returns a copy of the processed melody clip.
func (e *Extraction) Clip() wave.Waveform { return e.clip.Clone() }

// WriteClip writes the processed clip as WAV.
func (e *Extraction) WriteClip(path string) error {
	return wavio.WriteMono(path, e.clip)
}

// Extractor runs key detection and window selection on a source and cuts the
// melody clip.
type Extractor struct {
	cfg      ExtractorConfig
	selector *analysis.WindowSelector
	logger   *slog.Logger
}

func NewExtractor(cfg ExtractorConfig, selector *analysis.WindowSelector, logger *slog.Logger) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if selector == nil {
		return nil, fmt.Errorf("extractor needs a window selector")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{cfg: cfg, selector: selector, logger: logger}, nil
}

// PrepareFile reads path at the extractor rate and prepares it.
func (e *Extractor) PrepareFile(path string) (*Extraction, error) {
	w, err := wavio.ReadMonoAt(path, e.cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	return e.Prepare(w)
}

// Prepare detects the key, selects the best window and processes the clip.
func (e *Extractor) Prepare(source wave.Waveform) (*Extraction, error) {
	src, err := wavio.Resample(source, e.cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("resample source: %w", err)
	}
	key, err := analysis.DetectKey(src)
	if err != nil {
		return nil, fmt.Errorf("detect key: %w", err)
	}
	win, err := e.selector.Select(src)
	if err != nil {
		return nil, fmt.Errorf("select window: %w", err)
	}
	e.logger.Info("melody window selected",
		"key", key.Name,
		"start_s", float64(win.Start)/float64(src.SampleRate),
		"end_s", float64(win.End)/float64(src.SampleRate),
		"score", win.Score.Total,
		"fallback", win.Fallback,
		"low_confidence", win.LowConfidence)

	clip, err := e.process(src.Slice(win.Start, win.End).Clone())
	if err != nil {
		return nil, err
	}
	return &Extraction{
		Key:           key,
		Window:        win,
		SourceSeconds: src.Seconds(),
		clip:          clip,
	}, nil
}

func (e *Extractor) process(w wave.Waveform) (wave.Waveform, error) {
	x := w.Samples
	if e.cfg.HPSS && len(x) > 0 {
		x = Harmonic(x)
	}
	if e.cfg.Bandpass && len(x) > 0 {
		sr := float64(w.SampleRate)
		switch e.cfg.Filter {
		case FilterFIR:
			k := dsp.BandpassKernel(e.cfg.BandLowHz, e.cfg.BandHighHz, sr, e.cfg.FIRTaps)
			y, err := dsp.FilterFIR(x, k, 1024)
			if err != nil {
				return wave.Waveform{}, fmt.Errorf("fir band-pass: %w", err)
			}
			x = y
		default:
			x = dsp.NewBandpassChain(e.cfg.BandLowHz, e.cfg.BandHighHz, sr).FilterZeroPhase(x)
		}
	}
	if !wave.PeakNormalize(x, e.cfg.PeakTarget) {
		e.logger.Warn("melody clip is silent, left unnormalized")
	}
	return wave.New(x, w.SampleRate), nil
}
