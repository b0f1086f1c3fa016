package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-restyle/internal/artifact"
	"github.com/cwbudde/algo-restyle/internal/config"
	"github.com/cwbudde/algo-restyle/internal/progress"
	"github.com/cwbudde/algo-restyle/scoring"
	"github.com/cwbudde/algo-restyle/session"
)

var (
	runStyle     string
	runEmotion   string
	runAttempts  int
	runWorkers   string
	runEarlyStop float64
	runOutput    string
	runVerbose   bool
)

var runCmd = &cobra.Command{
	Use:   "run <source.wav>",
	Short: "Run the generation loop on a source recording",
	Long: `Analyze the source, extract its most melodic window and generate
renditions until one reaches the early-stop score or the attempt budget is
spent. Artifacts and report.yaml land in <output_dir>/<session id>/.

Examples:
  restyle run song.wav --style jazz --emotion happy
  restyle run song.wav -s rock -e angry --attempts 6 --workers auto`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runStyle, "style", "s", "", "Target style label (required)")
	runCmd.Flags().StringVarP(&runEmotion, "emotion", "e", "", "Target emotion label (required)")
	runCmd.Flags().IntVarP(&runAttempts, "attempts", "n", 0, "Maximum attempts (default from config)")
	runCmd.Flags().StringVarP(&runWorkers, "workers", "w", "", "Concurrent attempts: integer >= 1 or 'auto'")
	runCmd.Flags().Float64Var(&runEarlyStop, "early-stop", -1, "Stop once an attempt scores at least this (0-100)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Output directory (default from config)")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print every state transition")
	runCmd.MarkFlagRequired("style")
	runCmd.MarkFlagRequired("emotion")
}

// applyRunFlags folds command-line overrides into c.Session.
func applyRunFlags(c *config.Config) error {
	if runAttempts > 0 {
		c.Session.MaxAttempts = runAttempts
	}
	if runEarlyStop >= 0 {
		c.Session.EarlyStopScore = runEarlyStop
	}
	if runOutput != "" {
		c.Session.OutputDir = runOutput
	}
	if runWorkers != "" {
		n, err := config.ParseWorkers(runWorkers, c.Session.MaxAttempts)
		if err != nil {
			return fmt.Errorf("invalid --workers: %w", err)
		}
		c.Session.Workers = n
	}
	return c.Session.Validate()
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := applyRunFlags(&cfg); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}
	publisher, err := newPublisher(cfg)
	if err != nil {
		return err
	}

	rep := progress.NewReporter(cmd.OutOrStdout(), cfg.Session.MaxAttempts, runVerbose)
	sess, err := newSession(cfg, logger, sinkOf(store), rep)
	if err != nil {
		return err
	}

	res, runErr := sess.Run(ctx, session.Request{
		Source: args[0],
		Target: scoring.Target{Style: runStyle, Emotion: runEmotion},
	})
	if res == nil {
		return runErr
	}
	rep.Done(res)

	if publisher != nil {
		written, err := artifact.Publish(context.WithoutCancel(ctx), publisher, res)
		if err != nil {
			rep.Warning("publish failed: %v", err)
		} else {
			logger.Info("artifacts published", "session", res.ID, "files", len(written))
		}
	}
	if errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("interrupted after %d attempts", len(res.Attempts))
	}
	return runErr
}
