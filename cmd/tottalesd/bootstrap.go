package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tottales/internal/assets"
	"tottales/internal/character"
	"tottales/internal/config"
	"tottales/internal/daemon"
	"tottales/internal/illustration"
	"tottales/internal/narrative"
	"tottales/internal/notifications"
	"tottales/internal/orchestrator"
	"tottales/internal/preview"
	"tottales/internal/safety"
	"tottales/internal/services/gemini"
	"tottales/internal/store"
)

// buildDaemon wires the full pipeline: model client, object storage, safety
// filters, the three generation stages, the orchestrator, and the daemon
// around them.
func buildDaemon(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) (*daemon.Daemon, error) {
	model, err := gemini.New(ctx, gemini.ConfigFromApp(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}

	objects, err := assets.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	checker := safety.NewChecker(cfg.Safety.Blocking, logger)
	refs := store.NewReferenceCache(st)

	characters := character.NewAnalyzer(st, model, assets.NewFetcher(30*time.Second), logger)
	writer := narrative.NewGenerator(model, checker, logger)
	renderer := illustration.NewRenderer(model, objects, checker, illustration.SettingsFromApp(cfg), logger)

	orch := orchestrator.New(st, refs, characters, writer, renderer,
		notifications.NewService(cfg), orchestrator.SettingsFromApp(cfg), logger)
	previews := preview.NewGenerator(st, refs, model, objects, cfg.Storage.PreviewBucket, logger)

	return daemon.New(cfg, st, orch, objects, previews, logger)
}
