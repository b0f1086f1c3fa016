package pitch

import (
	"math"
	"sort"
	"testing"

	"github.com/cwbudde/algo-restyle/internal/wave"
)

func tone(freq float64, sr int, seconds float64) wave.Waveform {
	n := int(seconds * float64(sr))
	x := make([]float64, n)
	for i := range x {
		ph := 2 * math.Pi * freq * float64(i) / float64(sr)
		x[i] = 0.5*math.Sin(ph) + 0.2*math.Sin(2*ph)
	}
	return wave.New(x, sr)
}

func median(x []float64) float64 {
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	return s[len(s)/2]
}

func TestTrackerFindsToneFrequency(t *testing.T) {
	tr, err := NewTracker(DefaultConfig())
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	for _, tc := range []struct {
		freq float64
		sr   int
	}{
		{220, 16000},
		{440, 32000},
		{130.81, 32000},
	} {
		c, err := tr.Track(tone(tc.freq, tc.sr, 1))
		if err != nil {
			t.Fatalf("Track: %v", err)
		}
		valid := c.Valid()
		if len(valid) < c.Len()*8/10 {
			t.Fatalf("%.1f Hz: only %d of %d frames voiced", tc.freq, len(valid), c.Len())
		}
		got := median(valid)
		if math.Abs(got-tc.freq)/tc.freq > 0.02 {
			t.Fatalf("median f0 = %.2f Hz, want %.2f Hz", got, tc.freq)
		}
	}
}

func TestTrackerSilenceIsUnvoiced(t *testing.T) {
	tr, err := NewTracker(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	c, err := tr.Track(wave.New(make([]float64, 16000), 16000))
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if c.Len() == 0 {
		t.Fatal("expected frames for one second of input")
	}
	for i, f := range c.Hz {
		if Voiced(f) {
			t.Fatalf("frame %d voiced in silence: %f", i, f)
		}
	}
}

func TestTrackerShortInput(t *testing.T) {
	tr, err := NewTracker(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	c, err := tr.Track(wave.New(make([]float64, 100), 16000))
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("frames = %d, want 0", c.Len())
	}
}

func TestContourSlice(t *testing.T) {
	c := Contour{Hz: []float64{1, 2, 3, 4, 5, 6, 7, 8}, HopSeconds: 0.5}
	s := c.Slice(1.0, 2.5)
	if len(s.Hz) != 3 || s.Hz[0] != 3 {
		t.Fatalf("slice = %v", s.Hz)
	}
	if e := c.Slice(10, 12); e.Len() != 0 {
		t.Fatalf("out of range slice = %v", e.Hz)
	}
}

func TestVoicedRejectsZero(t *testing.T) {
	if Voiced(0) || Voiced(-3) || Voiced(NoPitch) {
		t.Fatal("zero, negative and NoPitch must not be voiced")
	}
	if !Voiced(220) {
		t.Fatal("220 Hz must be voiced")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameSize = 256
	if _, err := NewTracker(cfg); err == nil {
		t.Fatal("expected frame size error")
	}
}
