// Package classifier adapts the style and emotion classifiers.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/cwbudde/algo-restyle/internal/pyexec"
)

var (
	ErrFileNotFound = errors.New("classifier: audio file not found")
	ErrBadOutput    = errors.New("classifier: malformed output")
)

// Analysis is a predicted label and full distribution for style and for
// emotion.
type Analysis struct {
	Style       string             `json:"style" yaml:"style" msgpack:"style"`
	StyleProb   map[string]float64 `json:"style_prob" yaml:"style_prob" msgpack:"style_prob"`
	Emotion     string             `json:"emotion" yaml:"emotion" msgpack:"emotion"`
	EmotionProb map[string]float64 `json:"emotion_prob" yaml:"emotion_prob" msgpack:"emotion_prob"`
}

// Validate checks that both labels are present and that the distributions
// are non-negative with positive mass.
func (a Analysis) Validate() error {
	if a.Style == "" || a.Emotion == "" {
		return fmt.Errorf("%w: missing label", ErrBadOutput)
	}
	for name, m := range map[string]map[string]float64{"style_prob": a.StyleProb, "emotion_prob": a.EmotionProb} {
		var sum float64
		for k, v := range m {
			if v < 0 || v != v {
				return fmt.Errorf("%w: %s[%s] = %g", ErrBadOutput, name, k, v)
			}
			sum += v
		}
		if sum <= 0 {
			return fmt.Errorf("%w: %s has no mass", ErrBadOutput, name)
		}
	}
	return nil
}

// Top returns the n most probable labels of m, highest first.
func Top(m map[string]float64, n int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if n < len(keys) {
		keys = keys[:n]
	}
	return keys
}

// Script runs a classifier script that prints one JSON Analysis object on
// stdout. The script is invoked as `<script> --audio <path>`.
type Script struct {
	Runner *pyexec.Runner
	Path   string
}

func NewScript(runner *pyexec.Runner, script string) *Script {
	return &Script{Runner: runner, Path: script}
}

// Analyze classifies the audio at path.
func (s *Script) Analyze(ctx context.Context, path string) (Analysis, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Analysis{}, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return Analysis{}, err
	}
	res, err := s.Runner.RunScript(ctx, "classifier", "analyze", s.Path, "--audio", path)
	if err != nil {
		return Analysis{}, err
	}
	return Parse([]byte(res.Stdout))
}

// Parse decodes classifier output. Log lines before the JSON object are
// skipped; the last line starting with '{' is used.
func Parse(out []byte) (Analysis, error) {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var a Analysis
		if err := json.Unmarshal(line, &a); err != nil {
			return Analysis{}, fmt.Errorf("%w: %v", ErrBadOutput, err)
		}
		if err := a.Validate(); err != nil {
			return Analysis{}, err
		}
		return a, nil
	}
	return Analysis{}, fmt.Errorf("%w: no JSON object in output", ErrBadOutput)
}
