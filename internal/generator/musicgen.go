package generator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cwbudde/algo-restyle/internal/pyexec"
)

// MusicGen runs a melody-conditioned MusicGen script. The script receives
// the prompt, the melody clip and the sampling parameters as flags and
// writes a 32 kHz WAV to --output.
type MusicGen struct {
	Runner *pyexec.Runner
	Script string
	Model  string
}

func NewMusicGen(runner *pyexec.Runner, script, model string) *MusicGen {
	return &MusicGen{Runner: runner, Script: script, Model: model}
}

func (m *MusicGen) Args(req Request) []string {
	args := []string{
		"--prompt", req.Prompt,
		"--melody", req.MelodyPath,
		"--output", req.OutputPath,
		"--max-new-tokens", strconv.Itoa(TokenBudget(req.TargetSeconds)),
		"--guidance-scale", strconv.FormatFloat(req.Sampling.GuidanceScale, 'g', -1, 64),
		"--temperature", strconv.FormatFloat(req.Sampling.Temperature, 'g', -1, 64),
		"--top-p", strconv.FormatFloat(req.Sampling.TopP, 'g', -1, 64),
	}
	if !req.Sampling.DoSample {
		args = append(args, "--greedy")
	}
	if m.Model != "" {
		args = append(args, "--model", m.Model)
	}
	return args
}

// Generate runs the script and returns req.OutputPath.
func (m *MusicGen) Generate(ctx context.Context, req Request) (string, error) {
	if req.OutputPath == "" {
		return "", fmt.Errorf("musicgen: output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return "", fmt.Errorf("musicgen: create output dir: %w", err)
	}
	if _, err := m.Runner.RunScript(ctx, "musicgen", "generate", m.Script, m.Args(req)...); err != nil {
		return "", err
	}
	if st, err := os.Stat(req.OutputPath); err != nil || st.Size() == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoOutput, req.OutputPath)
	}
	return req.OutputPath, nil
}
