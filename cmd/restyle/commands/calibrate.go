package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-restyle/calibrate"
	"github.com/cwbudde/algo-restyle/internal/wavio"
)

var (
	calVariant string
	calPop     int
	calIters   int
	calSeed    int64
	calWrite   string
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate <ratings.yaml>",
	Short: "Fit melody weights to rated clips",
	Long: `Fit the melody composite weights so the composite tracks listener
ratings in [0,1]. Entries with an audio path are scored first; relative
paths resolve against the ratings file.

Ratings file:
  - name: chorus
    audio: clips/chorus.wav
    rating: 0.9
  - name: pad
    score: {hook: 0.1, smoothness: 0.8, interval: 0.6, rhythm: 0.3, scale: 0.7}
    rating: 0.2

Example:
  restyle calibrate ratings.yaml --write restyle.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runCalibrate,
}

func init() {
	rootCmd.AddCommand(calibrateCmd)

	def := calibrate.DefaultConfig()
	calibrateCmd.Flags().StringVar(&calVariant, "variant", def.Variant, "Mayfly variant: ma|desma|olce|eobbma|gsasma|mpma|aoblmoa")
	calibrateCmd.Flags().IntVar(&calPop, "pop", def.Population, "Mayfly population size")
	calibrateCmd.Flags().IntVar(&calIters, "iters", def.Iterations, "Mayfly iterations")
	calibrateCmd.Flags().Int64Var(&calSeed, "seed", def.Seed, "Random seed")
	calibrateCmd.Flags().StringVar(&calWrite, "write", "", "Write the effective config with fitted weights to this path")
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	samples, err := calibrate.LoadSamples(args[0])
	if err != nil {
		return err
	}
	_, tracker, scorer, err := newExtractor(cfg, logger)
	if err != nil {
		return err
	}
	base := filepath.Dir(args[0])
	var scored int
	for i := range samples {
		s := &samples[i]
		if s.Audio == "" {
			continue
		}
		path := s.Audio
		if !filepath.IsAbs(path) {
			path = filepath.Join(base, path)
		}
		w, err := wavio.ReadMonoAt(path, cfg.Extractor.SampleRate)
		if err != nil {
			return fmt.Errorf("sample %s: %w", s.Name, err)
		}
		if s.Score, err = scorer.ScoreWaveform(tracker, w); err != nil {
			return fmt.Errorf("sample %s: %w", s.Name, err)
		}
		scored++
	}
	if scored > 0 {
		logger.Info("scored audio samples", "scored", scored, "samples", len(samples))
	}

	res, err := calibrate.Fit(calibrate.Config{
		Variant:    calVariant,
		Population: calPop,
		Iterations: calIters,
		Spread:     calibrate.DefaultConfig().Spread,
		Seed:       calSeed,
	}, samples, cfg.Weights)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := res.Weights
	fmt.Fprintf(out, "Samples:   %d (%d evaluations)\n", len(samples), res.Evals)
	fmt.Fprintf(out, "Loss:      %.5f (baseline %.5f)\n", res.Loss, res.BaselineLoss)
	fmt.Fprintf(out, "Weights:   hook=%.3f smoothness=%.3f interval=%.3f rhythm=%.3f scale=%.3f\n",
		w.Hook, w.Smoothness, w.Interval, w.Rhythm, w.Scale)

	if calWrite != "" {
		next := cfg
		next.Weights = res.Weights
		if err := next.Save(calWrite); err != nil {
			return err
		}
		fmt.Fprintf(out, "Config:    %s\n", calWrite)
	}
	return nil
}
