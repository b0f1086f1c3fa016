package session

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/cwbudde/algo-restyle/analysis"
	"github.com/cwbudde/algo-restyle/internal/classifier"
	"github.com/cwbudde/algo-restyle/melody"
	"github.com/cwbudde/algo-restyle/repair"
	"github.com/cwbudde/algo-restyle/scoring"
)

// AttemptRecord is everything one attempt produced. Failed attempts carry
// the state they failed in and the error text; their Score is 0 and they
// never become the best record.
type AttemptRecord struct {
	SessionID     string                 `json:"session_id" yaml:"session_id" msgpack:"session_id"`
	Attempt       int                    `json:"attempt" yaml:"attempt" msgpack:"attempt"`
	Prompt        string                 `json:"prompt" yaml:"prompt" msgpack:"prompt"`
	MelodyPath    string                 `json:"melody_path" yaml:"melody_path" msgpack:"melody_path"`
	RawPath       string                 `json:"raw_path,omitempty" yaml:"raw_path,omitempty" msgpack:"raw_path"`
	GeneratedPath string                 `json:"generated_path,omitempty" yaml:"generated_path,omitempty" msgpack:"generated_path"`
	Transform     melody.TransformParams `json:"transform" yaml:"transform" msgpack:"transform"`
	Repair        repair.Report          `json:"repair" yaml:"repair" msgpack:"repair"`
	Adherence     analysis.Adherence     `json:"adherence" yaml:"adherence" msgpack:"adherence"`
	Generated     classifier.Analysis    `json:"generated" yaml:"generated" msgpack:"generated"`
	Breakdown     scoring.Breakdown      `json:"breakdown" yaml:"breakdown" msgpack:"breakdown"`
	Score         float64                `json:"score" yaml:"score" msgpack:"score"`
	Failed        bool                   `json:"failed" yaml:"failed" msgpack:"failed"`
	FailedAt      string                 `json:"failed_at,omitempty" yaml:"failed_at,omitempty" msgpack:"failed_at"`
	Error         string                 `json:"error,omitempty" yaml:"error,omitempty" msgpack:"error"`
	Duration      time.Duration          `json:"duration" yaml:"duration" msgpack:"duration"`
}

// Result summarizes a session. Best is nil exactly when Outcome is
// OutcomeNoResult.
type Result struct {
	ID          string               `json:"id" yaml:"id"`
	Source      string               `json:"source" yaml:"source"`
	Target      scoring.Target       `json:"target" yaml:"target"`
	Original    classifier.Analysis  `json:"original" yaml:"original"`
	Key         analysis.Key         `json:"key" yaml:"key"`
	Melody      analysis.MelodyScore `json:"melody" yaml:"melody"`
	MelodyPath  string               `json:"melody_path" yaml:"melody_path"`
	OutputDir   string               `json:"output_dir" yaml:"output_dir"`
	Outcome     Outcome              `json:"outcome" yaml:"outcome"`
	Best        *AttemptRecord       `json:"best,omitempty" yaml:"best,omitempty"`
	BestScore   float64              `json:"best_score" yaml:"best_score"`
	BestAttempt int                  `json:"best_attempt" yaml:"best_attempt"`
	EarlyStop   bool                 `json:"early_stop" yaml:"early_stop"`
	// Attempts logs every finished attempt in order for the report; the
	// loop itself only consults the best record.
	Attempts    []AttemptRecord      `json:"attempts" yaml:"attempts"`
	Failures    int                  `json:"failures" yaml:"failures"`
	StartedAt   time.Time            `json:"started_at" yaml:"started_at"`
	Duration    time.Duration        `json:"duration" yaml:"duration"`
}

// Summary is the one-line user-facing outcome.
func (r *Result) Summary() string {
	if r.Best == nil {
		return fmt.Sprintf("no usable result after %d attempts (%d failed)", len(r.Attempts), r.Failures)
	}
	return fmt.Sprintf("best attempt %d scored %.0f/100: %s", r.BestAttempt, r.BestScore, r.Best.GeneratedPath)
}

// WriteReport writes r as YAML.
func WriteReport(path string, r *Result) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Result
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &r, nil
}
