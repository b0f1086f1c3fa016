// Package progress prints session progress to a terminal.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/cwbudde/algo-restyle/session"
)

// Theme defines the reporter colors.
type Theme struct {
	Primary lipgloss.Color
	Good    lipgloss.Color
	Bad     lipgloss.Color
	Dim     lipgloss.Color
}

var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Good:    lipgloss.Color("#3fb950"),
	Bad:     lipgloss.Color("#f85149"),
	Dim:     lipgloss.Color("#6e7681"),
}

type styles struct {
	stage lipgloss.Style
	good  lipgloss.Style
	bad   lipgloss.Style
	dim   lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		stage: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		good:  lipgloss.NewStyle().Bold(true).Foreground(t.Good),
		bad:   lipgloss.NewStyle().Foreground(t.Bad),
		dim:   lipgloss.NewStyle().Foreground(t.Dim),
	}
}

// Reporter is a session.Observer writing one line per event. Per-state
// lines are printed only in verbose mode.
type Reporter struct {
	mu          sync.Mutex
	out         io.Writer
	st          styles
	verbose     bool
	maxAttempts int
	startTime   time.Time
}

func NewReporter(out io.Writer, maxAttempts int, verbose bool) *Reporter {
	return &Reporter{
		out:         out,
		st:          newStyles(DefaultTheme),
		verbose:     verbose,
		maxAttempts: maxAttempts,
		startTime:   time.Now(),
	}
}

// StateChanged implements session.Observer.
func (r *Reporter) StateChanged(_ string, attempt int, s session.State) {
	switch s {
	case session.StateAnalyzeOriginal:
		r.printf("%s analyzing original...\n", r.st.stage.Render("[setup]"))
	case session.StateLoopStart:
		r.printf("%s starting\n", r.st.stage.Render(r.tag(attempt)))
	case session.StateStop:
		r.printf("%s loop stopped\n", r.st.stage.Render(r.tag(attempt)))
	case session.StateFinalize:
	default:
		if r.verbose {
			r.printf("       %s\n", r.st.dim.Render(s.String()))
		}
	}
}

// AttemptFinished implements session.Observer. The prompt follows on a
// dimmed second line.
func (r *Reporter) AttemptFinished(rec session.AttemptRecord) {
	tag := r.tag(rec.Attempt)
	if rec.Failed {
		r.printf("%s %s\n%s", r.st.bad.Render(tag+" failed at "+rec.FailedAt+":"), rec.Error, r.promptLine(rec.Prompt))
		return
	}
	b := rec.Breakdown
	r.printf("%s score %s  (style %.0f, emotion %.0f, escape %.0f, divergence %.0f, confidence %.0f)  %s\n",
		r.st.stage.Render(tag),
		r.st.good.Render(fmt.Sprintf("%.0f", rec.Score)),
		b.StyleGain, b.EmotionGain, b.Escape, b.Divergence, b.Confidence,
		r.st.dim.Render(rec.Duration.Round(time.Millisecond).String()))
	r.printf("%s", r.promptLine(rec.Prompt))
}

func (r *Reporter) promptLine(p string) string {
	if p == "" {
		return ""
	}
	return "       " + r.st.dim.Render("prompt: "+p) + "\n"
}

// Done prints the session summary.
func (r *Reporter) Done(res *session.Result) {
	elapsed := time.Since(r.startTime)
	if res.Best == nil {
		r.printf("%s\n", r.st.bad.Render(res.Summary()))
	} else {
		r.printf("%s\n", r.st.good.Render(res.Summary()))
	}
	r.printf("Report: %s\n", r.st.dim.Render(res.OutputDir))
	r.printf("Completed in %.1f seconds\n", elapsed.Seconds())
}

// Warning prints a non-fatal problem.
func (r *Reporter) Warning(format string, args ...any) {
	r.printf("%s %s\n", r.st.bad.Render("Warning:"), fmt.Sprintf(format, args...))
}

func (r *Reporter) tag(attempt int) string {
	if r.maxAttempts > 0 {
		return fmt.Sprintf("[%d/%d]", attempt, r.maxAttempts)
	}
	return fmt.Sprintf("[%d]", attempt)
}

func (r *Reporter) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

var _ session.Observer = (*Reporter)(nil)
