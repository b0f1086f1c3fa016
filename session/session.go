// Package session runs the restyle loop: analyze the source once, then for
// each attempt build a prompt, perturb the melody clip, generate, repair,
// classify and score, keeping the best attempt and stopping early once an
// attempt scores high enough.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/algo-restyle/analysis"
	"github.com/cwbudde/algo-restyle/internal/classifier"
	"github.com/cwbudde/algo-restyle/internal/generator"
	"github.com/cwbudde/algo-restyle/internal/wave"
	"github.com/cwbudde/algo-restyle/internal/wavio"
	"github.com/cwbudde/algo-restyle/melody"
	"github.com/cwbudde/algo-restyle/prompt"
	"github.com/cwbudde/algo-restyle/repair"
	"github.com/cwbudde/algo-restyle/scoring"
)

var (
	// ErrInput wraps failures to read or decode the source audio.
	ErrInput = errors.New("session: invalid input")
	// ErrNoResult is returned when every attempt failed.
	ErrNoResult = errors.New("session: no attempt produced a result")
)

// Analyzer classifies the audio file at a path.
type Analyzer interface {
	Analyze(ctx context.Context, audioPath string) (classifier.Analysis, error)
}

// Generator renders a request and returns the path of the written WAV.
type Generator interface {
	Generate(ctx context.Context, req generator.Request) (string, error)
}

type PromptBuilder interface {
	Build(req prompt.Request) string
}

type OutcomeScorer interface {
	Score(orig, gen classifier.Analysis, target scoring.Target) scoring.Breakdown
}

type MelodyExtractor interface {
	Prepare(source wave.Waveform) (*melody.Extraction, error)
}

type MelodyTransformer interface {
	Transform(w wave.Waveform, attempt int) (wave.Waveform, melody.TransformParams)
}

type AudioRepairer interface {
	Repair(w wave.Waveform) (wave.Waveform, repair.Report)
}

// Observer is told about state transitions and finished attempts. With
// Workers > 1 it is called from several goroutines.
type Observer interface {
	StateChanged(sessionID string, attempt int, s State)
	AttemptFinished(rec AttemptRecord)
}

// RecordSink persists attempt records.
type RecordSink interface {
	Append(ctx context.Context, rec AttemptRecord) error
}

// Config controls the loop.
type Config struct {
	MaxAttempts    int                `yaml:"max_attempts"`
	EarlyStopScore float64            `yaml:"early_stop_score"`
	AttemptTimeout time.Duration      `yaml:"attempt_timeout"`
	Workers        int                `yaml:"workers"`
	OutputDir      string             `yaml:"output_dir"`
	TargetSeconds  float64            `yaml:"target_seconds"`
	Sampling       generator.Sampling `yaml:"sampling"`
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:    4,
		EarlyStopScore: 90,
		AttemptTimeout: 10 * time.Minute,
		Workers:        1,
		OutputDir:      "output",
		TargetSeconds:  20,
		Sampling:       generator.DefaultSampling(),
	}
}

func (c Config) Validate() error {
	switch {
	case c.MaxAttempts < 1:
		return fmt.Errorf("max_attempts must be >= 1, got %d", c.MaxAttempts)
	case c.EarlyStopScore < 0 || c.EarlyStopScore > 100:
		return fmt.Errorf("early_stop_score must be in [0,100], got %g", c.EarlyStopScore)
	case c.AttemptTimeout < 0:
		return fmt.Errorf("attempt_timeout must be >= 0, got %s", c.AttemptTimeout)
	case c.Workers < 1:
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	case c.OutputDir == "":
		return errors.New("output_dir is required")
	case c.TargetSeconds <= 0:
		return fmt.Errorf("target_seconds must be > 0, got %g", c.TargetSeconds)
	}
	return c.Sampling.Validate()
}

// Deps are the collaborators of a Session. Sink, Observer and Logger are
// optional.
type Deps struct {
	Analyzer    Analyzer
	Generator   Generator
	Prompts     PromptBuilder
	Scorer      OutcomeScorer
	Extractor   MelodyExtractor
	Transformer MelodyTransformer
	Repairer    AudioRepairer
	Sink        RecordSink
	Observer    Observer
	Logger      *slog.Logger
}

// Request names the source and the target labels of one run.
type Request struct {
	ID     string         `json:"id,omitempty" yaml:"id,omitempty"`
	Source string         `json:"source" yaml:"source"`
	Target scoring.Target `json:"target" yaml:"target"`
}

// Session is constructed once and may Run many requests.
type Session struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
}

func New(cfg Config, deps Deps) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Analyzer == nil:
		return nil, errors.New("session: analyzer is required")
	case deps.Generator == nil:
		return nil, errors.New("session: generator is required")
	case deps.Prompts == nil:
		return nil, errors.New("session: prompt builder is required")
	case deps.Scorer == nil:
		return nil, errors.New("session: scorer is required")
	case deps.Extractor == nil:
		return nil, errors.New("session: melody extractor is required")
	case deps.Transformer == nil:
		return nil, errors.New("session: melody transformer is required")
	case deps.Repairer == nil:
		return nil, errors.New("session: repairer is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{cfg: cfg, deps: deps, logger: logger}, nil
}

func (s *Session) Config() Config { return s.cfg }

// run holds what every attempt of one request reads. Nothing in it is
// written after the loop starts.
type run struct {
	id         string
	dir        string
	target     scoring.Target
	original   classifier.Analysis
	extraction *melody.Extraction
	logger     *slog.Logger
}

// Run executes the loop for req. The returned Result is non-nil whenever
// the source was analyzed; err is ErrNoResult when every attempt failed and
// the context error when ctx ended the loop early.
func (s *Session) Run(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	r := &run{
		id:     id,
		dir:    filepath.Join(s.cfg.OutputDir, id),
		target: req.Target,
		logger: s.logger.With("session", id),
	}

	s.enter(r, 0, StateAnalyzeOriginal)
	src, err := wavio.ReadMonoAt(req.Source, wave.GenerationRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInput, err)
	}
	if src.Len() == 0 {
		return nil, fmt.Errorf("%w: %s has no samples", ErrInput, req.Source)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	r.original, err = s.deps.Analyzer.Analyze(ctx, req.Source)
	if err != nil {
		return nil, fmt.Errorf("analyze original: %w", err)
	}
	r.extraction, err = s.deps.Extractor.Prepare(src)
	if err != nil {
		return nil, fmt.Errorf("extract melody: %w", err)
	}
	basePath := filepath.Join(r.dir, "melody_base.wav")
	if err := r.extraction.WriteClip(basePath); err != nil {
		return nil, fmt.Errorf("write melody clip: %w", err)
	}
	r.logger.Info("source analyzed",
		"style", r.original.Style,
		"emotion", r.original.Emotion,
		"key", r.extraction.Key.Name,
		"melody_score", r.extraction.Window.Score.Total)

	res := &Result{
		ID:         id,
		Source:     req.Source,
		Target:     req.Target,
		Original:   r.original,
		Key:        r.extraction.Key,
		Melody:     r.extraction.Window.Score,
		MelodyPath: basePath,
		OutputDir:  r.dir,
		Outcome:    OutcomeNoResult,
		StartedAt:  started,
	}

	best := &bestSlot{}
	last := 0
	for next := 1; next <= s.cfg.MaxAttempts; {
		if ctx.Err() != nil {
			break
		}
		batch := min(s.cfg.Workers, s.cfg.MaxAttempts-next+1)
		recs := s.runBatch(ctx, r, next, batch)
		for _, rec := range recs {
			res.Attempts = append(res.Attempts, rec)
			if rec.Failed {
				res.Failures++
			} else if best.offer(rec) {
				r.logger.Info("new best attempt", "attempt", rec.Attempt, "score", rec.Score)
			}
			if s.deps.Sink != nil {
				if err := s.deps.Sink.Append(context.WithoutCancel(ctx), rec); err != nil {
					r.logger.Warn("record sink append failed", "attempt", rec.Attempt, "error", err)
				}
			}
			if s.deps.Observer != nil {
				s.deps.Observer.AttemptFinished(rec)
			}
		}
		next += batch
		last = next - 1

		if b := best.get(); b != nil && b.Score >= s.cfg.EarlyStopScore {
			res.EarlyStop = true
			s.enter(r, last, StateStop)
			break
		}
		if next > s.cfg.MaxAttempts || ctx.Err() != nil {
			s.enter(r, last, StateStop)
			break
		}
		s.enter(r, last, StateContinue)
	}

	s.enter(r, last, StateFinalize)
	if b := best.get(); b != nil {
		res.Outcome = OutcomeBest
		res.Best = b
		res.BestScore = b.Score
		res.BestAttempt = b.Attempt
	}
	res.Duration = time.Since(started)
	if err := WriteReport(filepath.Join(r.dir, "report.yaml"), res); err != nil {
		r.logger.Warn("write report failed", "error", err)
	}
	r.logger.Info("session finished",
		"outcome", res.Outcome,
		"best_attempt", res.BestAttempt,
		"best_score", res.BestScore,
		"attempts", len(res.Attempts),
		"failures", res.Failures,
		"early_stop", res.EarlyStop)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if res.Best == nil {
		return res, ErrNoResult
	}
	return res, nil
}

// runBatch runs attempts first..first+n-1, concurrently when n > 1, and
// returns their records in attempt order.
func (s *Session) runBatch(ctx context.Context, r *run, first, n int) []AttemptRecord {
	recs := make([]AttemptRecord, n)
	if n == 1 {
		recs[0] = s.attempt(ctx, r, first)
		return recs
	}
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			recs[i] = s.attempt(ctx, r, first+i)
		}(i)
	}
	wg.Wait()
	return recs
}

// attempt runs one pass from BUILD_PROMPT to SCORE. Failures are recorded,
// never returned.
func (s *Session) attempt(ctx context.Context, r *run, n int) AttemptRecord {
	start := time.Now()
	rec := AttemptRecord{SessionID: r.id, Attempt: n}
	log := r.logger.With("attempt", n)
	fail := func(at State, err error) AttemptRecord {
		rec.Failed = true
		rec.FailedAt = at.String()
		rec.Error = err.Error()
		rec.Duration = time.Since(start)
		log.Warn("attempt failed", "state", at.String(), "error", err)
		return rec
	}

	actx := ctx
	if s.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, s.cfg.AttemptTimeout)
		defer cancel()
	}

	s.enter(r, n, StateLoopStart)
	s.enter(r, n, StateBuildPrompt)
	key := r.extraction.Key
	ms := r.extraction.Window.Score
	rec.Prompt = s.deps.Prompts.Build(prompt.Request{
		Style:   r.target.Style,
		Emotion: r.target.Emotion,
		Attempt: n,
		Key:     &key,
		Melody:  &ms,
	})
	log.Debug("prompt built", "prompt", rec.Prompt)

	s.enter(r, n, StateExtractMelody)
	clip := r.extraction.Clip()

	s.enter(r, n, StateTransformMelody)
	mel, params := s.deps.Transformer.Transform(clip, n)
	rec.Transform = params
	rec.MelodyPath = filepath.Join(r.dir, fmt.Sprintf("melody_attempt_%d.wav", n))
	if err := wavio.WriteMono(rec.MelodyPath, mel); err != nil {
		return fail(StateTransformMelody, err)
	}

	s.enter(r, n, StateGenerate)
	raw, err := s.deps.Generator.Generate(actx, generator.Request{
		Prompt:        rec.Prompt,
		MelodyPath:    rec.MelodyPath,
		OutputPath:    filepath.Join(r.dir, fmt.Sprintf("raw_attempt_%d.wav", n)),
		TargetSeconds: s.cfg.TargetSeconds,
		Sampling:      s.cfg.Sampling,
	})
	if err != nil {
		return fail(StateGenerate, err)
	}
	rec.RawPath = raw

	s.enter(r, n, StateRepair)
	gen, err := wavio.ReadMonoAt(raw, wave.GenerationRate)
	if err != nil {
		return fail(StateRepair, err)
	}
	fixed, report := s.deps.Repairer.Repair(gen)
	rec.Repair = report
	rec.GeneratedPath = filepath.Join(r.dir, fmt.Sprintf("generated_attempt_%d.wav", n))
	if err := wavio.WriteMono(rec.GeneratedPath, fixed); err != nil {
		return fail(StateRepair, err)
	}
	rec.Adherence = analysis.CompareMelody(mel, fixed)

	s.enter(r, n, StateAnalyzeGenerated)
	ga, err := s.deps.Analyzer.Analyze(actx, rec.GeneratedPath)
	if err != nil {
		return fail(StateAnalyzeGenerated, err)
	}
	rec.Generated = ga

	s.enter(r, n, StateScore)
	rec.Breakdown = s.deps.Scorer.Score(r.original, ga, r.target)
	rec.Score = rec.Breakdown.Total
	rec.Duration = time.Since(start)
	log.Info("attempt scored",
		"score", rec.Score,
		"style", ga.Style,
		"emotion", ga.Emotion,
		"adherence", rec.Adherence.Similarity,
		"repaired", report.Changed(),
		"prompt", rec.Prompt,
		"elapsed", rec.Duration.Round(time.Millisecond))
	return rec
}

func (s *Session) enter(r *run, attempt int, st State) {
	r.logger.Debug("state", "attempt", attempt, "state", st.String())
	if s.deps.Observer != nil {
		s.deps.Observer.StateChanged(r.id, attempt, st)
	}
}

// bestSlot holds the best successful attempt. A record replaces the current
// one only with a strictly higher score, or an equal score from an earlier
// attempt.
type bestSlot struct {
	mu  sync.Mutex
	rec *AttemptRecord
}

func (b *bestSlot) offer(rec AttemptRecord) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rec != nil {
		if rec.Score < b.rec.Score || (rec.Score == b.rec.Score && rec.Attempt >= b.rec.Attempt) {
			return false
		}
	}
	r := rec
	b.rec = &r
	return true
}

func (b *bestSlot) get() *AttemptRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rec
}
