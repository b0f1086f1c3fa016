package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwbudde/algo-restyle/analysis"
	"github.com/cwbudde/algo-restyle/internal/artifact"
	"github.com/cwbudde/algo-restyle/internal/classifier"
	"github.com/cwbudde/algo-restyle/internal/config"
	"github.com/cwbudde/algo-restyle/internal/generator"
	"github.com/cwbudde/algo-restyle/internal/pyexec"
	"github.com/cwbudde/algo-restyle/internal/recordstore"
	"github.com/cwbudde/algo-restyle/melody"
	"github.com/cwbudde/algo-restyle/pitch"
	"github.com/cwbudde/algo-restyle/prompt"
	"github.com/cwbudde/algo-restyle/repair"
	"github.com/cwbudde/algo-restyle/scoring"
	"github.com/cwbudde/algo-restyle/session"
)

// newExtractor builds the melody extractor and the pieces it shares with
// score-melody.
func newExtractor(c config.Config, l *slog.Logger) (*melody.Extractor, *pitch.Tracker, *analysis.MelodyScorer, error) {
	tracker, err := pitch.NewTracker(c.Pitch)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("pitch tracker: %w", err)
	}
	scorer := analysis.NewMelodyScorer(c.Weights)
	selector, err := analysis.NewWindowSelector(c.Extractor.Window, tracker, scorer, l)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("window selector: %w", err)
	}
	ex, err := melody.NewExtractor(c.Extractor, selector, l)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("melody extractor: %w", err)
	}
	return ex, tracker, scorer, nil
}

func newGenerator(c config.Config, runner *pyexec.Runner) (session.Generator, error) {
	switch c.Generator.Backend {
	case config.BackendMusicGen:
		return generator.NewMusicGen(runner, c.Generator.Script, c.Generator.Model), nil
	case config.BackendMiniMax:
		mc := c.Generator.MiniMax
		if mc.APIKey == "" {
			return nil, fmt.Errorf("minimax backend needs %s", config.EnvMiniMaxKey)
		}
		g := generator.NewMiniMax(mc.APIKey)
		if mc.BaseURL != "" {
			g.BaseURL = mc.BaseURL
		}
		if mc.Model != "" {
			g.Model = mc.Model
		}
		g.MaxRetries = mc.MaxRetries
		return g, nil
	default:
		return nil, fmt.Errorf("unknown generator backend %q", c.Generator.Backend)
	}
}

// newSession wires every collaborator from c. sink and obs may be nil
// interfaces.
func newSession(c config.Config, l *slog.Logger, sink session.RecordSink, obs session.Observer) (*session.Session, error) {
	ex, _, _, err := newExtractor(c, l)
	if err != nil {
		return nil, err
	}
	tr, err := melody.NewTransformer(c.TransformSchedule(), melody.WithTransformLogger(l))
	if err != nil {
		return nil, fmt.Errorf("melody transformer: %w", err)
	}
	rep, err := repair.New(c.Repair, l)
	if err != nil {
		return nil, fmt.Errorf("repairer: %w", err)
	}
	sc, err := scoring.NewScorer(c.Scoring)
	if err != nil {
		return nil, fmt.Errorf("scorer: %w", err)
	}
	runner := pyexec.NewRunner(c.Python.Path, c.Python.ScriptsDir)
	gen, err := newGenerator(c, runner)
	if err != nil {
		return nil, err
	}
	deps := session.Deps{
		Analyzer:    classifier.NewScript(runner, c.Classifier.Script),
		Generator:   gen,
		Prompts:     prompt.NewBuilder(c.Prompt.Styles, c.Prompt.Emotions),
		Scorer:      sc,
		Extractor:   ex,
		Transformer: tr,
		Repairer:    rep,
		Sink:        sink,
		Observer:    obs,
		Logger:      l,
	}
	return session.New(c.Session, deps)
}

// openStore returns nil when the record store is disabled.
func openStore(c config.Config, l *slog.Logger) (*recordstore.Store, error) {
	if !c.Store.Enabled {
		return nil, nil
	}
	return recordstore.Open(recordstore.Options{Dir: c.Store.Dir, Logger: l})
}

// sinkOf avoids handing a typed nil store to the session.
func sinkOf(s *recordstore.Store) session.RecordSink {
	if s == nil {
		return nil
	}
	return s
}

// newPublisher returns nil when publishing is off.
func newPublisher(c config.Config) (artifact.FileStore, error) {
	switch c.Publish.Target {
	case config.PublishNone:
		return nil, nil
	case config.PublishLocal:
		l, err := artifact.NewLocal(c.Publish.Dir)
		if err != nil {
			return nil, err
		}
		return l, nil
	case config.PublishS3:
		s, err := artifact.NewS3FromConfig(c.Publish.S3)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.New("unknown publish target " + c.Publish.Target)
	}
}
