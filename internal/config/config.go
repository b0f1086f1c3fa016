// Package config loads the restyle configuration: one YAML file overlaid
// on built-in defaults, with secrets taken from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/cwbudde/algo-restyle/analysis"
	"github.com/cwbudde/algo-restyle/internal/artifact"
	"github.com/cwbudde/algo-restyle/melody"
	"github.com/cwbudde/algo-restyle/pitch"
	"github.com/cwbudde/algo-restyle/prompt"
	"github.com/cwbudde/algo-restyle/repair"
	"github.com/cwbudde/algo-restyle/scoring"
	"github.com/cwbudde/algo-restyle/session"
)

// Environment variables read by Load.
const (
	EnvMiniMaxKey   = "RESTYLE_MINIMAX_API_KEY"
	EnvAWSAccessKey = "AWS_ACCESS_KEY_ID"
	EnvAWSSecretKey = "AWS_SECRET_ACCESS_KEY"
)

// Generator backends.
const (
	BackendMusicGen = "musicgen"
	BackendMiniMax  = "minimax"
)

// Publish targets.
const (
	PublishNone  = ""
	PublishLocal = "local"
	PublishS3    = "s3"
)

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type PythonConfig struct {
	Path       string `yaml:"path"`
	ScriptsDir string `yaml:"scripts_dir"`
}

type ClassifierConfig struct {
	Script string `yaml:"script"`
}

type MiniMaxConfig struct {
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	MaxRetries int    `yaml:"max_retries"`
	APIKey     string `yaml:"-"`
}

type GeneratorConfig struct {
	Backend string        `yaml:"backend"`
	Script  string        `yaml:"script"`
	Model   string        `yaml:"model"`
	MiniMax MiniMaxConfig `yaml:"minimax"`
}

type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type PublishConfig struct {
	Target string            `yaml:"target"`
	Dir    string            `yaml:"dir"`
	S3     artifact.S3Config `yaml:"s3"`
}

type PromptConfig struct {
	Styles   map[string]prompt.StyleInfo `yaml:"styles,omitempty"`
	Emotions map[string]string           `yaml:"emotions,omitempty"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the whole application configuration.
type Config struct {
	Log        LogConfig              `yaml:"log"`
	Session    session.Config         `yaml:"session"`
	Pitch      pitch.Config           `yaml:"pitch"`
	Weights    analysis.Weights       `yaml:"melody_weights"`
	Extractor  melody.ExtractorConfig `yaml:"extractor"`
	Transform  melody.TransformConfig `yaml:"transform"`
	Repair     repair.Config          `yaml:"repair"`
	Scoring    scoring.Tables         `yaml:"scoring"`
	Prompt     PromptConfig           `yaml:"prompt"`
	Python     PythonConfig           `yaml:"python"`
	Classifier ClassifierConfig       `yaml:"classifier"`
	Generator  GeneratorConfig        `yaml:"generator"`
	Store      StoreConfig            `yaml:"store"`
	Publish    PublishConfig          `yaml:"publish"`
	Server     ServerConfig           `yaml:"server"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:       LogConfig{Level: "info", Format: "text"},
		Session:   session.DefaultConfig(),
		Pitch:     pitch.DefaultConfig(),
		Weights:   analysis.DefaultWeights(),
		Extractor: melody.DefaultExtractorConfig(),
		Transform: followAttempts(melody.DefaultTransformConfig()),
		Repair:    repair.DefaultConfig(),
		Scoring:   scoring.DefaultTables(),
		Python:    PythonConfig{ScriptsDir: "scripts"},
		Classifier: ClassifierConfig{
			Script: "classify.py",
		},
		Generator: GeneratorConfig{
			Backend: BackendMusicGen,
			Script:  "generate_musicgen.py",
			Model:   "facebook/musicgen-melody",
			MiniMax: MiniMaxConfig{MaxRetries: 2},
		},
		Store:   StoreConfig{Enabled: true, Dir: filepath.Join("output", "records")},
		Publish: PublishConfig{Target: PublishNone},
		Server:  ServerConfig{Addr: ":8080"},
	}
}

// followAttempts clears the ramp length so TransformSchedule ties it to
// session.max_attempts.
func followAttempts(t melody.TransformConfig) melody.TransformConfig {
	t.RampAttempts = 0
	return t
}

// TransformSchedule returns the transform config with a zero ramp_attempts
// replaced by session.max_attempts.
func (c Config) TransformSchedule() melody.TransformConfig {
	t := c.Transform
	if t.RampAttempts == 0 {
		t.RampAttempts = c.Session.MaxAttempts
	}
	return t
}

// Load reads path over the defaults and applies environment secrets. An
// empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, cfg.Validate()
}

// ApplyEnv fills secrets from getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvMiniMaxKey); v != "" {
		c.Generator.MiniMax.APIKey = v
	}
	if v := getenv(EnvAWSAccessKey); v != "" {
		c.Publish.S3.AccessKeyID = v
	}
	if v := getenv(EnvAWSSecretKey); v != "" {
		c.Publish.S3.SecretAccessKey = v
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	var errs []error
	check := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		check("log", fmt.Errorf("unknown level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		check("log", fmt.Errorf("unknown format %q", c.Log.Format))
	}
	check("session", c.Session.Validate())
	check("pitch", c.Pitch.Validate())
	check("melody_weights", c.Weights.Validate())
	check("extractor", c.Extractor.Validate())
	check("transform", c.Transform.Validate())
	check("repair", c.Repair.Validate())
	check("scoring", c.Scoring.Validate())
	switch c.Generator.Backend {
	case BackendMusicGen:
		if c.Generator.Script == "" {
			check("generator", errors.New("script is required for the musicgen backend"))
		}
	case BackendMiniMax:
	default:
		check("generator", fmt.Errorf("unknown backend %q", c.Generator.Backend))
	}
	switch c.Publish.Target {
	case PublishNone, PublishS3:
	case PublishLocal:
		if c.Publish.Dir == "" {
			check("publish", errors.New("dir is required for local publishing"))
		}
	default:
		check("publish", fmt.Errorf("unknown target %q", c.Publish.Target))
	}
	if c.Store.Enabled && c.Store.Dir == "" {
		check("store", errors.New("dir is required when enabled"))
	}
	return errors.Join(errs...)
}

// Save writes c as YAML, creating parent directories. Secrets are not
// written.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ParseWorkers accepts an integer >= 1 or "auto", which resolves to the
// CPU count capped at maxAttempts.
func ParseWorkers(raw string, maxAttempts int) (int, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return 0, fmt.Errorf("empty value (use integer >= 1 or 'auto')")
	}
	if v == "auto" {
		return max(1, min(runtime.NumCPU(), maxAttempts)), nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%q (use integer >= 1 or 'auto')", raw)
	}
	if n < 1 {
		return 0, fmt.Errorf("%d (must be >= 1 or 'auto')", n)
	}
	return n, nil
}
