// Package bot wires moderabot's components together and manages their lifecycle.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/moderabot/internal/classifier"
	"github.com/edgard/moderabot/internal/database"
)

// Bot represents the main application and manages its components' lifecycle.
type Bot struct {
	logger     *slog.Logger
	store      database.Store
	classifier classifier.Classifier
	scheduler  *Scheduler
}

// NewBot creates the orchestrator over an already configured store, classifier and scheduler.
func NewBot(logger *slog.Logger, store database.Store, cls classifier.Classifier, scheduler *Scheduler) *Bot {
	return &Bot{
		logger:     logger.With("component", "bot_orchestrator"),
		store:      store,
		classifier: cls,
		scheduler:  scheduler,
	}
}

// Run starts the scheduler and the classifier key probe and blocks until ctx
// is cancelled or a component fails. The scheduler is stopped before Run
// returns, after any running tick has finished.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting scheduler...")
		if err := b.scheduler.Start(gCtx); err != nil {
			b.logger.Error("Failed to start scheduler", "error", err)
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}

		return nil
	})

	g.Go(func() error {
		bots, err := b.store.ListPollingBots(gCtx)
		if err != nil {
			b.logger.Warn("Skipping classifier key probe", "error", err)
			return nil
		}
		ProbeKeys(gCtx, b.classifier, bots, b.logger)
		return nil
	})

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}

// ProbeKeys validates the classifier key of every bot that has toxicity
// checks enabled and logs a warning for each missing or rejected key.
// It returns the number of bots whose key is unusable.
func ProbeKeys(ctx context.Context, cls classifier.Classifier, bots []database.Bot, logger *slog.Logger) int {
	invalid := 0
	for _, bot := range bots {
		if !bot.ToxicityCheckEnabled {
			continue
		}
		if ctx.Err() != nil {
			return invalid
		}
		if err := cls.Validate(ctx, bot.ClassifierAPIKey); err != nil {
			logger.WarnContext(ctx, "Classifier key is unusable, toxicity checks will fail",
				"bot_id", bot.ID, "bot_name", bot.Name, "error", err)
			invalid++
			continue
		}
		logger.InfoContext(ctx, "Classifier key accepted", "bot_id", bot.ID, "bot_name", bot.Name)
	}
	return invalid
}
