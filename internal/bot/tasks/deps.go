// Package tasks implements the scheduled tasks of moderabot: the ingestion
// and moderation tick and database maintenance.
package tasks

import (
	"context"
	"log/slog"

	"github.com/edgard/moderabot/internal/config"
	"github.com/edgard/moderabot/internal/database"
	"github.com/edgard/moderabot/internal/ingest"
)

// Ingester runs one ingestion tick for a bot.
type Ingester interface {
	Tick(ctx context.Context, bot database.Bot) (ingest.Result, error)
}

// Moderator processes the unprocessed messages of a bot.
type Moderator interface {
	RunBot(ctx context.Context, bot database.Bot) error
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger    *slog.Logger
	Store     database.Store
	Ingester  Ingester
	Moderator Moderator
	Config    *config.Config
}
