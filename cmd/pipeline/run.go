package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"shorts_pipeline/internal/config"
	"shorts_pipeline/internal/domain"
	"shorts_pipeline/internal/logging"
	"shorts_pipeline/internal/narration"
	"shorts_pipeline/internal/pipeline"
	"shorts_pipeline/internal/publisher"
	"shorts_pipeline/internal/render"
	"shorts_pipeline/internal/scheduler"
	"shorts_pipeline/internal/selection"
	"shorts_pipeline/internal/source/reddit"
	"shorts_pipeline/internal/storage/sqldb"
	"shorts_pipeline/internal/voice"
)

func newRunCommand(load func() (*config.Config, error)) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			logger := logging.New(cfg.LogLevel, cfg.LogFormat)

			go func() {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				defer signal.Stop(sigCh)
				select {
				case sig := <-sigCh:
					logger.Info("received shutdown signal", "signal", sig)
					cancel()
				case <-ctx.Done():
				}
			}()

			return runPipeline(ctx, cmd.OutOrStdout(), cfg, once, logger)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run a single batch and ignore the schedule")
	return cmd
}

func runPipeline(ctx context.Context, out io.Writer, cfg *config.Config, once bool, logger *slog.Logger) error {
	if cfg.Database.Driver == config.DriverSQLite && cfg.Database.Path != ":memory:" {
		lock, err := sqldb.TryLock(cfg.Database.Path + ".lock")
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	db, err := sqldb.Open(ctx, cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	logger.Info("connected to database", "driver", cfg.Database.Driver)

	deps, closeDeps, err := buildDeps(cfg, db, logger)
	if err != nil {
		return err
	}
	defer closeDeps()

	runner := &batchRunner{
		orchestrator: pipeline.NewOrchestrator(
			pipeline.NewStages(deps, logger),
			deps.Store,
			sqldb.NewTaskRunStore(db),
			logger,
		),
		tasks: cfg.Tasks,
		out:   out,
	}

	if once || (cfg.Schedule.Cron == "" && cfg.Schedule.Interval <= 0) {
		_, err := runner.RunBatch(ctx)
		return err
	}

	sched, err := scheduler.NewScheduler(runner, scheduler.Config{
		Interval: cfg.Schedule.Interval,
		Cron:     cfg.Schedule.Cron,
		Timeout:  cfg.Schedule.Timeout,
	}, logger)
	if err != nil {
		return err
	}

	logger.Info("starting scheduled pipeline",
		"tasks", len(cfg.Tasks),
		"interval", cfg.Schedule.Interval,
		"cron", cfg.Schedule.Cron,
	)
	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildDeps wires the collaborators the configuration enables. Collaborators
// without credentials stay nil so their stages report as not configured.
func buildDeps(cfg *config.Config, db *sqlx.DB, logger *slog.Logger) (pipeline.Deps, func(), error) {
	deps := pipeline.Deps{
		Source: reddit.New(reddit.Config{
			BaseURL:        cfg.Reddit.BaseURL,
			Listing:        cfg.Reddit.Listing,
			Limit:          cfg.Reddit.Limit,
			Pages:          cfg.Reddit.Pages,
			UserAgent:      cfg.Reddit.UserAgent,
			Timeout:        cfg.Reddit.Timeout,
			MaxAttempts:    cfg.Reddit.Retry.MaxAttempts,
			InitialBackoff: cfg.Reddit.Retry.InitialBackoff,
			MaxBackoff:     cfg.Reddit.Retry.MaxBackoff,
		}, logger),
		Store: sqldb.NewStore(db),
		Renderer: render.New(render.Config{
			FFmpeg:   cfg.Media.FFmpeg,
			FFprobe:  cfg.Media.FFprobe,
			FontSize: cfg.Media.FontSize,
		}, logger),
		Subreddits:  cfg.Discovery.Subreddits,
		Selection:   selection.Config{TopN: cfg.Selection.TopN},
		AudioDir:    cfg.Media.AudioDir,
		OutputDir:   cfg.Media.OutputDir,
		VideoAssets: cfg.Media.VideoAssets,
	}

	if cfg.LLM.APIKey != "" {
		deps.Narrator = narration.New(narration.Config{
			BaseURL:    cfg.LLM.BaseURL,
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.LLM.Model,
			Timeout:    cfg.LLM.Timeout,
			MaxRetries: *cfg.LLM.MaxRetries,
		}, logger)
	} else {
		logger.Warn("llm.api_key is empty, narration stage disabled")
	}

	if cfg.Speech.APIKey != "" {
		speech := voice.New(voice.Config{
			BaseURL:            cfg.Speech.BaseURL,
			APIKey:             cfg.Speech.APIKey,
			TTSModel:           cfg.Speech.TTSModel,
			Voice:              cfg.Speech.Voice,
			TranscriptionModel: cfg.Speech.TranscriptionModel,
			Timeout:            cfg.Speech.Timeout,
			MaxRetries:         *cfg.Speech.MaxRetries,
		}, logger)
		deps.Synthesizer = speech
		deps.Transcriber = speech
	} else {
		logger.Warn("speech.api_key is empty, audio and edit stages disabled")
	}

	closeFn := func() {}
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			return deps, closeFn, err
		}
		deps.Uploader = rabbitMQ
		closeFn = func() {
			if err := rabbitMQ.Close(); err != nil {
				logger.Warn("failed to close rabbitmq", "error", err)
			}
		}
	}

	return deps, closeFn, nil
}

// batchRunner builds fresh tasks from their definitions for every batch.
type batchRunner struct {
	orchestrator *pipeline.Orchestrator
	tasks        []config.TaskConfig
	out          io.Writer
}

func (r *batchRunner) RunBatch(ctx context.Context) (*domain.BatchStats, error) {
	tasks := make([]*domain.Task, 0, len(r.tasks))
	for _, def := range r.tasks {
		tasks = append(tasks, def.NewTask())
	}

	stats, err := r.orchestrator.Run(ctx, tasks)
	if stats != nil && r.out != nil {
		fmt.Fprintln(r.out, renderSummary(stats))
	}
	return stats, err
}
