// Package pyexec runs the Python model scripts the restyle loop depends on.
package pyexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Result holds command execution output
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// ProcessError represents a failure in an external process
type ProcessError struct {
	Tool     string // "classifier", "musicgen"
	Stage    string // "analyze", "generate"
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed at %s (exit %d): %s", e.Tool, e.Stage, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s failed at %s (exit %d)", e.Tool, e.Stage, e.ExitCode)
}

func (e *ProcessError) Unwrap() error {
	return e.Cause
}

// Timeout reports whether the process was killed by its context deadline.
func (e *ProcessError) Timeout() bool {
	return errors.Is(e.Cause, context.DeadlineExceeded)
}

// Runner executes Python scripts with context support
type Runner struct {
	PythonPath string
	ScriptsDir string
	Env        []string
}

// NewRunner creates a runner. An empty pythonPath prefers a .venv inside
// scriptsDir and falls back to python3 on PATH.
func NewRunner(pythonPath, scriptsDir string) *Runner {
	if pythonPath == "" {
		venvPython := filepath.Join(scriptsDir, ".venv", "bin", "python")
		if _, err := os.Stat(venvPython); err == nil {
			pythonPath = venvPython
		} else {
			pythonPath = "python3"
		}
	}
	return &Runner{
		PythonPath: pythonPath,
		ScriptsDir: scriptsDir,
	}
}

// RunScript executes a script from ScriptsDir. Failures are returned as
// *ProcessError tagged with tool and stage.
func (r *Runner) RunScript(ctx context.Context, tool, stage, script string, args ...string) (*Result, error) {
	scriptPath := script
	if !filepath.IsAbs(script) {
		scriptPath = filepath.Join(r.ScriptsDir, script)
	}
	fullArgs := append([]string{scriptPath}, args...)
	return r.execute(ctx, tool, stage, r.PythonPath, fullArgs...)
}

// execute runs a command and captures output
func (r *Runner) execute(ctx context.Context, tool, stage, name string, args ...string) (*Result, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if r.ScriptsDir != "" {
		cmd.Dir = r.ScriptsDir
		cmd.Env = append(os.Environ(), fmt.Sprintf("PYTHONPATH=%s", r.ScriptsDir))
	}
	if len(r.Env) > 0 {
		if cmd.Env == nil {
			cmd.Env = os.Environ()
		}
		cmd.Env = append(cmd.Env, r.Env...)
	}

	err := cmd.Run()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
	}

	if err != nil {
		cause := err
		if ctxErr := ctx.Err(); ctxErr != nil {
			cause = ctxErr
		}
		return result, &ProcessError{
			Tool:     tool,
			Stage:    stage,
			ExitCode: result.ExitCode,
			Stderr:   lastLines(result.Stderr, 8),
			Cause:    cause,
		}
	}

	return result, nil
}

// lastLines keeps the tail of a long stderr dump.
func lastLines(s string, n int) string {
	b := bytes.TrimRight([]byte(s), "\n")
	for i, count := len(b)-1, 0; i >= 0; i-- {
		if b[i] == '\n' {
			count++
			if count == n {
				return string(b[i+1:])
			}
		}
	}
	return string(b)
}
