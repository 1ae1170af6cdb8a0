package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chimechallenge/chime6-synchronisation/internal/config"
	"github.com/chimechallenge/chime6-synchronisation/internal/corpus"
	"github.com/chimechallenge/chime6-synchronisation/internal/pipeline"
	"github.com/chimechallenge/chime6-synchronisation/internal/sox"
	"github.com/chimechallenge/chime6-synchronisation/internal/store"
)

var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, pipeline.ErrIncomplete) {
			log.Error().Err(err).Msg("chime-sync failed")
		}
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chime-sync",
		Short:         "Correct clock drift and frame drops in CHiME recordings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(cmd.Flags()); err != nil {
				return err
			}
			setupLogging(cfg.LogLevel)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String(config.KeyConfig, "", "YAML config file")
	flags.String(config.KeyCorpus, corpus.DefaultPath, "corpus metadata file")
	flags.String(config.KeyDatasets, "train,dev,eval", "datasets to process when --sessions is not given")
	flags.String(config.KeySessions, "", `sessions to process, e.g. "S02 S04"`)
	flags.String(config.KeySoxPath, "", "directory containing the sox binary (default: PATH)")
	flags.String(config.KeyTmpDir, "", "directory for intermediate segment files")
	flags.Int(config.KeyMaxParallel, 1, "devices corrected concurrently")
	flags.String(config.KeyLogLevel, "info", "log level: debug, info, warn, error")
	flags.String(config.KeyReport, "", "write a YAML run report to this file")

	root.AddCommand(newClockDriftCmd(), newFrameDropsCmd(), newTranscriptCmd())
	return root
}

func newClockDriftCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clock-drift <clock_drift.json> <in_audio_dir> <out_audio_dir>",
		Short: "Resample audio to remove clock drift",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := store.LoadClockDriftData(args[0])
			if err != nil {
				return err
			}
			p, err := newPipeline()
			if err != nil {
				return err
			}
			return finish(p, p.CorrectClockDrift(cmd.Context(), data, args[1], args[2]))
		},
	}
}

func newFrameDropsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "frame-drops <frame_drops.json> <in_audio_dir> <out_audio_dir>",
		Short: "Reinsert dropped frames into Kinect audio",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := store.LoadFrameDropData(args[0])
			if err != nil {
				return err
			}
			p, err := newPipeline()
			if err != nil {
				return err
			}
			return finish(p, p.CorrectFrameDrops(cmd.Context(), data, args[1], args[2]))
		},
	}
}

func newTranscriptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcript <in_transcript_dir> <out_transcript_dir>",
		Short: "Map transcript times onto the corrected timeline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("clock-drift-data")
			data, err := store.LoadClockDriftData(path)
			if err != nil {
				return err
			}
			p, err := newPipeline()
			if err != nil {
				return err
			}
			in, out := store.NewFileStore(args[0]), store.NewFileStore(args[1])
			return finish(p, p.CorrectTranscripts(cmd.Context(), data, in, out))
		},
	}
	cmd.Flags().String(config.KeyFormat, "consolidated", "output timestamp format: consolidated or legacy")
	cmd.Flags().String("clock-drift-data", "", "clock drift correction file")
	_ = cmd.MarkFlagRequired("clock-drift-data")
	return cmd
}

func newPipeline() (*pipeline.Pipeline, error) {
	c, err := corpus.Load(cfg.CorpusPath)
	if err != nil {
		return nil, err
	}
	runner := sox.NewRunner(cfg.SoxPath)
	log.Info().
		Str("corpus", cfg.CorpusPath).
		Str("sox", runner.Bin()).
		Int("max_parallel", cfg.MaxParallel).
		Msg("Starting chime-sync")
	return pipeline.New(cfg, c, runner), nil
}

// finish writes the run report, if one was requested, and summarises the run.
func finish(p *pipeline.Pipeline, runErr error) error {
	report := p.Report()
	log.Info().
		Str("run_id", report.RunID).
		Int("ok", report.Count(pipeline.StatusOK)).
		Int("skipped", report.Count(pipeline.StatusSkipped)).
		Int("failed", report.Count(pipeline.StatusFailed)).
		Dur("elapsed", time.Since(report.Started)).
		Msg("Run finished")

	if cfg.ReportPath != "" {
		if err := report.WriteFile(cfg.ReportPath); err != nil {
			log.Error().Err(err).Msg("Failed to write run report")
			if runErr == nil {
				runErr = err
			}
		} else {
			log.Info().Str("file", cfg.ReportPath).Msg("Wrote run report")
		}
	}
	return runErr
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Debug().Str("level", level).Msg("Logging configured")
}
