package commands

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/cwbudde/algo-restyle/internal/artifact"
	"github.com/cwbudde/algo-restyle/internal/config"
	"github.com/cwbudde/algo-restyle/internal/generator"
	"github.com/cwbudde/algo-restyle/internal/pyexec"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(&buf, config.LogConfig{Level: "warn", Format: "json"})
	if err != nil {
		t.Fatal(err)
	}
	l.Info("hidden")
	l.Warn("shown", "k", 1)
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("unexpected log output: %q", out)
	}
	if _, err := newLogger(&buf, config.LogConfig{Level: "loud"}); err == nil {
		t.Fatal("unknown level must fail")
	}
	if _, err := newLogger(&buf, config.LogConfig{Format: "xml"}); err == nil {
		t.Fatal("unknown format must fail")
	}
}

func TestApplyRunFlags(t *testing.T) {
	defer func() { runAttempts, runWorkers, runEarlyStop, runOutput = 0, "", -1, "" }()

	c := config.Default()
	runAttempts, runWorkers, runEarlyStop, runOutput = 6, "3", 75, "out"
	if err := applyRunFlags(&c); err != nil {
		t.Fatal(err)
	}
	s := c.Session
	if s.MaxAttempts != 6 || s.Workers != 3 || s.EarlyStopScore != 75 || s.OutputDir != "out" {
		t.Fatalf("flags not applied: %+v", s)
	}
	if r := c.TransformSchedule().RampAttempts; r != 6 {
		t.Fatalf("transform ramp = %d, want --attempts", r)
	}

	c = config.Default()
	runWorkers = "zero"
	if err := applyRunFlags(&c); err == nil {
		t.Fatal("bad workers must fail")
	}
	runWorkers = ""
	runEarlyStop = 150
	if err := applyRunFlags(&c); err == nil {
		t.Fatal("early stop above 100 must fail")
	}
}

func TestNewGenerator(t *testing.T) {
	runner := pyexec.NewRunner("python3", t.TempDir())
	c := config.Default()
	g, err := newGenerator(c, runner)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := g.(*generator.MusicGen); !ok {
		t.Fatalf("default backend = %T", g)
	}

	c.Generator.Backend = config.BackendMiniMax
	if _, err := newGenerator(c, runner); err == nil {
		t.Fatal("minimax without key must fail")
	}
	c.Generator.MiniMax.APIKey = "k"
	c.Generator.MiniMax.BaseURL = "http://localhost:1"
	g, err = newGenerator(c, runner)
	if err != nil {
		t.Fatal(err)
	}
	mm, ok := g.(*generator.MiniMax)
	if !ok || mm.BaseURL != "http://localhost:1" || mm.Model != generator.DefaultMiniMaxModel {
		t.Fatalf("minimax = %+v", g)
	}
}

func TestNewPublisher(t *testing.T) {
	c := config.Default()
	p, err := newPublisher(c)
	if err != nil || p != nil {
		t.Fatalf("disabled publisher = %v, %v", p, err)
	}
	c.Publish.Target = config.PublishLocal
	c.Publish.Dir = t.TempDir()
	p, err = newPublisher(c)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*artifact.Local); !ok {
		t.Fatalf("publisher = %T", p)
	}
	c.Publish.Target = config.PublishS3
	if _, err := newPublisher(c); err == nil {
		t.Fatal("s3 without bucket must fail")
	}
}

func TestNewSessionWiresDefaults(t *testing.T) {
	c := config.Default()
	c.Python.ScriptsDir = t.TempDir()
	if _, err := newSession(c, slog.Default(), nil, nil); err != nil {
		t.Fatalf("newSession: %v", err)
	}
}
