package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teamxray/xray/internal/cache"
	"github.com/teamxray/xray/internal/jobs"
	"github.com/teamxray/xray/internal/models"
	"github.com/teamxray/xray/internal/pipeline"
	"github.com/teamxray/xray/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analysis API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	orch := pipeline.New(ctx, cfg, logger)
	store := cache.NewStore(cfg.Cache.Directory, logger)

	// Completed runs are persisted so results survive restarts.
	run := func(ctx context.Context, repoURL string, months int, emit func(models.Event)) (*models.AnalysisResult, error) {
		result, err := orch.Run(ctx, repoURL, months, emit)
		if err != nil {
			return nil, err
		}
		if err := store.Save(result); err != nil {
			logger.WithError(err).Warn("failed to cache analysis result")
		}
		return result, nil
	}

	registry := jobs.NewRegistry(run, int64(cfg.Server.MaxConcurrent), logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.New(cfg, registry, store, logger).Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		registry.Shutdown()
		return err
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("shutting down")
		registry.Shutdown()
		return nil
	}
}
