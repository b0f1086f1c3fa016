package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/algo-restyle/scoring"
	"github.com/cwbudde/algo-restyle/session"
)

func TestStateLinesRespectVerbose(t *testing.T) {
	var quiet, loud bytes.Buffer
	for _, r := range []*Reporter{NewReporter(&quiet, 4, false), NewReporter(&loud, 4, true)} {
		r.StateChanged("s", 0, session.StateAnalyzeOriginal)
		r.StateChanged("s", 1, session.StateLoopStart)
		r.StateChanged("s", 1, session.StateGenerate)
	}
	if !strings.Contains(quiet.String(), "[1/4]") {
		t.Fatalf("attempt start missing: %q", quiet.String())
	}
	if strings.Contains(quiet.String(), "GENERATE") {
		t.Fatalf("quiet reporter printed inner state: %q", quiet.String())
	}
	if !strings.Contains(loud.String(), "GENERATE") {
		t.Fatalf("verbose reporter missed inner state: %q", loud.String())
	}
}

func TestAttemptFinished(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, 3, false)
	r.AttemptFinished(session.AttemptRecord{
		Attempt:   2,
		Score:     72,
		Breakdown: scoring.Breakdown{StyleGain: 16, EmotionGain: 12, Escape: 15, Divergence: 14, Confidence: 15, Total: 72},
		Duration:  1500 * time.Millisecond,
		Prompt:    "smoky jazz, walking bass, brushed drums",
	})
	r.AttemptFinished(session.AttemptRecord{Attempt: 3, Failed: true, FailedAt: "GENERATE", Error: "boom", Prompt: "brighter jazz"})
	out := buf.String()
	for _, want := range []string{"[2/3]", "72", "style 16", "1.5s", "prompt: smoky jazz, walking bass, brushed drums", "failed at GENERATE", "boom", "prompt: brighter jazz"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}

func TestAttemptFinishedWithoutPrompt(t *testing.T) {
	var buf bytes.Buffer
	NewReporter(&buf, 1, false).AttemptFinished(session.AttemptRecord{Attempt: 1, Score: 40})
	if out := buf.String(); strings.Contains(out, "prompt:") || strings.Count(out, "\n") != 1 {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestDone(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, 0, false)
	r.Done(&session.Result{OutputDir: "output/x", Attempts: make([]session.AttemptRecord, 2), Failures: 2})
	out := buf.String()
	if !strings.Contains(out, "no usable result") || !strings.Contains(out, "output/x") {
		t.Fatalf("unexpected summary: %q", out)
	}
}
