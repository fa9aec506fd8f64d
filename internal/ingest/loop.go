package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot/models"

	"github.com/edgard/moderabot/internal/database"
	"github.com/edgard/moderabot/internal/logger"
)

// Fetcher is the inbound side of the Bot API.
type Fetcher interface {
	// FetchUpdates returns updates with id >= offset, waiting up to wait.
	FetchUpdates(ctx context.Context, token string, offset int64, wait time.Duration) ([]models.Update, error)
}

// CallbackHandler reacts to callback queries once the tick that received them has committed.
type CallbackHandler interface {
	HandleCallback(ctx context.Context, bot database.Bot, query models.CallbackQuery) error
}

// Result summarizes one tick of one bot.
type Result struct {
	Updates      int
	Messages     int
	Skipped      int
	Media        int
	Callbacks    int
	LastUpdateID int64
}

// Loop runs ingestion ticks.
type Loop struct {
	store     database.Store
	fetcher   Fetcher
	callbacks CallbackHandler
	wait      time.Duration
	logger    *slog.Logger
}

// NewLoop creates an ingestion loop. callbacks may be nil, in which case callback queries are dropped.
func NewLoop(store database.Store, fetcher Fetcher, callbacks CallbackHandler, wait time.Duration, logger *slog.Logger) *Loop {
	return &Loop{
		store:     store,
		fetcher:   fetcher,
		callbacks: callbacks,
		wait:      wait,
		logger:    logger.With("component", "ingest"),
	}
}

// Tick fetches the pending updates of bot and persists them in one transaction
// together with the new offset. On any error nothing is persisted and the same
// updates are fetched again on the next tick.
func (l *Loop) Tick(ctx context.Context, bot database.Bot) (Result, error) {
	log := l.logger.With("bot_id", bot.ID, "bot_name", bot.Name)
	var res Result

	last, found, err := l.store.GetOffset(ctx, bot.ID)
	if err != nil {
		return res, err
	}
	var offset int64
	if found {
		offset = last + 1
	}

	updates, err := l.fetcher.FetchUpdates(ctx, bot.Token, offset, l.wait)
	if err != nil {
		return res, fmt.Errorf("failed to fetch updates: %w", err)
	}
	if len(updates) == 0 {
		log.DebugContext(ctx, "No new updates", "offset", offset)
		return res, nil
	}
	res.Updates = len(updates)

	tx, err := l.store.BeginIngest(ctx)
	if err != nil {
		return res, err
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			log.WarnContext(ctx, "Error rolling back ingestion transaction", "error", rollbackErr)
		}
	}()

	batch := NewBatch(tx, bot.ID)
	var callbacks []models.CallbackQuery
	maxID := last

	for i := range updates {
		update := &updates[i]
		if update.ID > maxID {
			maxID = update.ID
		}
		log.DebugContext(ctx, "Processing update", logger.UpdateAttrs(update)...)

		if update.CallbackQuery != nil {
			if update.CallbackQuery.Data != "" {
				callbacks = append(callbacks, *update.CallbackQuery)
			}
			continue
		}

		msg := update.EditedMessage
		if msg == nil {
			msg = update.Message
		}
		if msg == nil || msg.From == nil {
			res.Skipped++
			continue
		}

		media, err := l.persist(ctx, batch, msg)
		if err != nil {
			return res, fmt.Errorf("update %d: %w", update.ID, err)
		}
		res.Messages++
		res.Media += media
	}

	if err := tx.AdvanceOffset(ctx, bot.ID, maxID); err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		log.ErrorContext(ctx, "Failed to commit ingestion transaction", "error", err)
		return res, fmt.Errorf("failed to commit ingestion: %w", err)
	}
	res.LastUpdateID = maxID

	log.InfoContext(ctx, "Updates ingested",
		"updates", res.Updates,
		"messages", res.Messages,
		"skipped", res.Skipped,
		"media", res.Media,
		"last_update_id", maxID)

	l.dispatch(ctx, log, bot, callbacks)
	res.Callbacks = len(callbacks)
	return res, nil
}

func (l *Loop) persist(ctx context.Context, batch *Batch, msg *models.Message) (int, error) {
	chat, _, err := batch.Chat(ctx, msg.Chat)
	if err != nil {
		return 0, err
	}
	author, _, err := batch.User(ctx, msg.From)
	if err != nil {
		return 0, err
	}
	stored, _, err := batch.Message(ctx, chat, author, msg)
	if err != nil {
		return 0, err
	}
	return batch.Media(ctx, stored, msg)
}

func (l *Loop) dispatch(ctx context.Context, log *slog.Logger, bot database.Bot, callbacks []models.CallbackQuery) {
	if l.callbacks == nil {
		return
	}
	for _, q := range callbacks {
		if err := l.callbacks.HandleCallback(ctx, bot, q); err != nil {
			log.ErrorContext(ctx, "Failed to handle callback query", "callback_query_id", q.ID, "error", err)
		}
	}
}
