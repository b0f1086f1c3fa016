// Package repair patches energy collapses in generated audio. A segment
// whose level drops far below the audio just before it is replaced by a
// blend weighted toward that preceding audio.
package repair

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/algo-restyle/internal/wave"
)

// Config holds the repair thresholds.
type Config struct {
	MinSeconds    float64 `yaml:"min_seconds"`     // below this the input is returned unchanged
	MidMinSeconds float64 `yaml:"mid_min_seconds"` // mid pass needs at least this much audio
	MidRatio      float64 `yaml:"mid_ratio"`
	TailSeconds   float64 `yaml:"tail_seconds"`
	TailRatio     float64 `yaml:"tail_ratio"`
	PrevWeight    float64 `yaml:"prev_weight"` // weight of the preceding segment in the blend
	ActiveRMS     float64 `yaml:"active_rms"`  // reference segments quieter than this are not trusted
	PeakTarget    float64 `yaml:"peak_target"`
}

func DefaultConfig() Config {
	return Config{
		MinSeconds:    4,
		MidMinSeconds: 6,
		MidRatio:      0.33,
		TailSeconds:   2,
		TailRatio:     0.35,
		PrevWeight:    0.7,
		ActiveRMS:     1e-5,
		PeakTarget:    0.98,
	}
}

func (c Config) Validate() error {
	switch {
	case c.TailSeconds <= 0:
		return fmt.Errorf("repair: tail_seconds must be > 0, got %g", c.TailSeconds)
	case c.MinSeconds < 2*c.TailSeconds:
		return fmt.Errorf("repair: min_seconds %g must cover two tail segments (%g)", c.MinSeconds, 2*c.TailSeconds)
	case c.MidRatio <= 0 || c.MidRatio >= 1:
		return fmt.Errorf("repair: mid_ratio must be in (0,1), got %g", c.MidRatio)
	case c.TailRatio <= 0 || c.TailRatio >= 1:
		return fmt.Errorf("repair: tail_ratio must be in (0,1), got %g", c.TailRatio)
	case c.PrevWeight < 0 || c.PrevWeight > 1:
		return fmt.Errorf("repair: prev_weight must be in [0,1], got %g", c.PrevWeight)
	case c.PeakTarget <= 0 || c.PeakTarget > 1:
		return fmt.Errorf("repair: peak_target must be in (0,1], got %g", c.PeakTarget)
	}
	return nil
}

// Report says which passes fired.
type Report struct {
	MidRepaired  bool    `yaml:"mid_repaired" json:"mid_repaired" msgpack:"mid_repaired"`
	TailRepaired bool    `yaml:"tail_repaired" json:"tail_repaired" msgpack:"tail_repaired"`
	RMSBefore    float64 `yaml:"rms_before" json:"rms_before" msgpack:"rms_before"`
	RMSAfter     float64 `yaml:"rms_after" json:"rms_after" msgpack:"rms_after"`
}

// Changed reports whether any pass modified the audio.
func (r Report) Changed() bool { return r.MidRepaired || r.TailRepaired }

type Repairer struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Repairer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Repairer{cfg: cfg, logger: logger}, nil
}

// Repair returns the patched waveform. When no pass fires the input itself
// is returned, so callers can rely on identity for healthy audio.
func (r *Repairer) Repair(w wave.Waveform) (wave.Waveform, Report) {
	rep := Report{RMSBefore: wave.RMS(w.Samples)}
	rep.RMSAfter = rep.RMSBefore
	if w.SampleRate <= 0 || w.Seconds() < r.cfg.MinSeconds {
		return w, rep
	}

	var out wave.Waveform
	ensureCopy := func() {
		if out.Samples == nil {
			out = w.Clone()
		}
	}

	n := w.Len()
	if w.Seconds() >= r.cfg.MidMinSeconds {
		a := w.Samples[n/3 : n/2]
		b := w.Samples[n/2 : 2*n/3]
		ra, rb := wave.RMS(a), wave.RMS(b)
		if ra > r.cfg.ActiveRMS && rb < r.cfg.MidRatio*ra {
			ensureCopy()
			r.blend(out.Samples[n/2:2*n/3], a)
			rep.MidRepaired = true
			r.logger.Info("mid collapse repaired", "ref_rms", ra, "segment_rms", rb)
		}
	}

	seg := int(r.cfg.TailSeconds * float64(w.SampleRate))
	src := w.Samples
	if out.Samples != nil {
		src = out.Samples
	}
	tail := src[n-seg:]
	prev := src[n-2*seg : n-seg]
	rp, rt := wave.RMS(prev), wave.RMS(tail)
	if rp > r.cfg.ActiveRMS && rt < r.cfg.TailRatio*rp {
		ensureCopy()
		r.blend(out.Samples[n-seg:], out.Samples[n-2*seg:n-seg])
		rep.TailRepaired = true
		r.logger.Info("tail collapse repaired", "ref_rms", rp, "segment_rms", rt)
	}

	if !rep.Changed() {
		return w, rep
	}
	wave.PeakNormalize(out.Samples, r.cfg.PeakTarget)
	rep.RMSAfter = wave.RMS(out.Samples)
	return out, rep
}

// blend overwrites dst with PrevWeight*ref + (1-PrevWeight)*dst over the
// shorter of the two.
func (r *Repairer) blend(dst, ref []float64) {
	k := r.cfg.PrevWeight
	for i := range min(len(dst), len(ref)) {
		dst[i] = k*ref[i] + (1-k)*dst[i]
	}
}
