package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned by single-row lookups when no row matches.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for database operations.
// Methods should accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error

	// UpsertBot creates or updates a bot identified by name. The bot ID is
	// filled in on return.
	UpsertBot(ctx context.Context, bot *Bot) error

	// ListPollingBots returns active bots that receive updates by long polling.
	ListPollingBots(ctx context.Context) ([]Bot, error)

	// UpsertHandler creates or updates a handler identified by (external id, bot).
	UpsertHandler(ctx context.Context, handler *Handler) error

	// ActiveHandlers returns the active handlers of a bot in definition order.
	ActiveHandlers(ctx context.Context, botID string) ([]Handler, error)

	// GetOffset returns the last consumed update id of a bot and whether one was recorded.
	GetOffset(ctx context.Context, botID string) (int64, bool, error)

	// BeginIngest opens the transaction that carries one ingestion tick.
	BeginIngest(ctx context.Context) (IngestTx, error)

	// ChatByExternalID looks up a chat of a bot by its Telegram id.
	ChatByExternalID(ctx context.Context, botID string, externalID int64) (*Chat, error)

	// ChatsWithUnprocessed returns the chats of a bot that have unprocessed messages.
	ChatsWithUnprocessed(ctx context.Context, botID string) ([]Chat, error)

	// UnprocessedMessages returns the unprocessed messages of a chat in insertion order.
	UnprocessedMessages(ctx context.Context, chatID int64) ([]Message, error)

	// GetMessage returns a message by its row id.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// MessageByExternalID looks up a message of a chat by its Telegram id.
	MessageByExternalID(ctx context.Context, chatID, externalID int64) (*Message, error)

	// MessageMedia returns the photos and videos attached to a message.
	MessageMedia(ctx context.Context, messageID int64) ([]Photo, []Video, error)

	// UserByID returns a user by its row id.
	UserByID(ctx context.Context, id int64) (*User, error)

	// CompleteMessage applies a moderation outcome atomically: ledger adjustments,
	// the verified flag of the replied-to message and the processed flag.
	CompleteMessage(ctx context.Context, outcome MessageOutcome) error

	// LedgerEntries returns the rows of a ledger for a chat, highest score first.
	LedgerEntries(ctx context.Context, ledger Ledger, chatID int64) ([]LedgerEntry, error)

	// LedgerScore returns the score of one ledger row and whether it exists.
	LedgerScore(ctx context.Context, ledger Ledger, userID, chatID int64) (float64, bool, error)
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)

	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)

	default:
		s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	}

	return nil
}

func (s *sqlxStore) UpsertBot(ctx context.Context, bot *Bot) error {
	if bot == nil {
		return fmt.Errorf("cannot save nil bot")
	}
	if bot.ID == "" {
		return fmt.Errorf("bot must have an id")
	}

	now := time.Now().UTC()
	bot.CreatedAt = now
	bot.UpdatedAt = now

	query := `
		INSERT INTO bots (id, name, token, is_active, use_polling, webhook_url,
			classifier_api_key, toxicity_check_enabled, created_at, updated_at)
		VALUES (:id, :name, :token, :is_active, :use_polling, :webhook_url,
			:classifier_api_key, :toxicity_check_enabled, :created_at, :updated_at)
		ON CONFLICT(name) DO UPDATE SET
			token = excluded.token,
			is_active = excluded.is_active,
			use_polling = excluded.use_polling,
			webhook_url = excluded.webhook_url,
			classifier_api_key = excluded.classifier_api_key,
			toxicity_check_enabled = excluded.toxicity_check_enabled,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.NamedExecContext(ctx, query, bot); err != nil {
		s.logger.ErrorContext(ctx, "Error saving bot", "bot_name", bot.Name, "error", err)
		return fmt.Errorf("failed to save bot %q: %w", bot.Name, err)
	}

	// The row may predate this call, in which case it keeps its original id.
	var stored Bot
	if err := s.db.GetContext(ctx, &stored, `SELECT * FROM bots WHERE name = ?`, bot.Name); err != nil {
		return fmt.Errorf("failed to reload bot %q: %w", bot.Name, err)
	}
	*bot = stored

	s.logger.DebugContext(ctx, "Bot saved successfully", "bot_id", bot.ID, "bot_name", bot.Name)
	return nil
}

func (s *sqlxStore) ListPollingBots(ctx context.Context) ([]Bot, error) {
	var bots []Bot
	query := `SELECT * FROM bots WHERE is_active = 1 AND use_polling = 1 ORDER BY name`
	if err := s.db.SelectContext(ctx, &bots, query); err != nil {
		return nil, fmt.Errorf("failed to list polling bots: %w", err)
	}
	return bots, nil
}

func (s *sqlxStore) UpsertHandler(ctx context.Context, handler *Handler) error {
	if handler == nil {
		return fmt.Errorf("cannot save nil handler")
	}
	if handler.BotID == "" || handler.ExternalID == "" {
		return fmt.Errorf("handler must have a bot id and a trigger token")
	}

	now := time.Now().UTC()
	handler.CreatedAt = now
	handler.UpdatedAt = now

	query := `
		INSERT INTO handlers (bot_id, external_id, name, type, code, text, is_active, position, created_at, updated_at)
		VALUES (:bot_id, :external_id, :name, :type, :code, :text, :is_active, :position, :created_at, :updated_at)
		ON CONFLICT(external_id, bot_id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			code = excluded.code,
			text = excluded.text,
			is_active = excluded.is_active,
			position = excluded.position,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.NamedExecContext(ctx, query, handler); err != nil {
		s.logger.ErrorContext(ctx, "Error saving handler", "bot_id", handler.BotID, "trigger", handler.ExternalID, "error", err)
		return fmt.Errorf("failed to save handler %q: %w", handler.ExternalID, err)
	}

	return s.db.GetContext(ctx, &handler.ID,
		`SELECT id FROM handlers WHERE external_id = ? AND bot_id = ?`, handler.ExternalID, handler.BotID)
}

func (s *sqlxStore) ActiveHandlers(ctx context.Context, botID string) ([]Handler, error) {
	var handlers []Handler
	query := `SELECT * FROM handlers WHERE bot_id = ? AND is_active = 1 ORDER BY position, id`
	if err := s.db.SelectContext(ctx, &handlers, query, botID); err != nil {
		return nil, fmt.Errorf("failed to load handlers for bot %s: %w", botID, err)
	}
	return handlers, nil
}

func (s *sqlxStore) GetOffset(ctx context.Context, botID string) (int64, bool, error) {
	var offset int64
	err := s.db.GetContext(ctx, &offset, `SELECT last_update_id FROM offsets WHERE bot_id = ?`, botID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("failed to load offset for bot %s: %w", botID, err)
	}
	return offset, true, nil
}

func (s *sqlxStore) BeginIngest(ctx context.Context) (IngestTx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin ingestion transaction", "error", err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqlxIngestTx{tx: tx}, nil
}

func (s *sqlxStore) ChatByExternalID(ctx context.Context, botID string, externalID int64) (*Chat, error) {
	return chatByExternalID(ctx, s.db, botID, externalID)
}

func (s *sqlxStore) ChatsWithUnprocessed(ctx context.Context, botID string) ([]Chat, error) {
	var chats []Chat
	query := `
		SELECT c.* FROM chats c
		WHERE c.bot_id = ?
		  AND EXISTS (SELECT 1 FROM messages m WHERE m.chat_id = c.id AND m.processed = 0)
		ORDER BY c.id
	`
	if err := s.db.SelectContext(ctx, &chats, query, botID); err != nil {
		return nil, fmt.Errorf("failed to list chats with unprocessed messages for bot %s: %w", botID, err)
	}
	return chats, nil
}

func (s *sqlxStore) UnprocessedMessages(ctx context.Context, chatID int64) ([]Message, error) {
	var messages []Message
	query := `SELECT * FROM messages WHERE chat_id = ? AND processed = 0 ORDER BY id`
	if err := s.db.SelectContext(ctx, &messages, query, chatID); err != nil {
		return nil, fmt.Errorf("failed to get unprocessed messages for chat %d: %w", chatID, err)
	}
	return messages, nil
}

func (s *sqlxStore) GetMessage(ctx context.Context, id int64) (*Message, error) {
	var m Message
	if err := getOne(ctx, s.db, &m, `SELECT * FROM messages WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *sqlxStore) MessageByExternalID(ctx context.Context, chatID, externalID int64) (*Message, error) {
	return messageByExternalID(ctx, s.db, chatID, externalID)
}

func (s *sqlxStore) MessageMedia(ctx context.Context, messageID int64) ([]Photo, []Video, error) {
	var photos []Photo
	if err := s.db.SelectContext(ctx, &photos, `SELECT * FROM photos WHERE message_id = ? ORDER BY id`, messageID); err != nil {
		return nil, nil, fmt.Errorf("failed to load photos of message %d: %w", messageID, err)
	}
	var videos []Video
	if err := s.db.SelectContext(ctx, &videos, `SELECT * FROM videos WHERE message_id = ? ORDER BY id`, messageID); err != nil {
		return nil, nil, fmt.Errorf("failed to load videos of message %d: %w", messageID, err)
	}
	return photos, videos, nil
}

func (s *sqlxStore) UserByID(ctx context.Context, id int64) (*User, error) {
	var u User
	if err := getOne(ctx, s.db, &u, `SELECT * FROM users WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *sqlxStore) CompleteMessage(ctx context.Context, outcome MessageOutcome) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for message outcome", "message_id", outcome.MessageID, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	now := time.Now().UTC()
	for _, adj := range outcome.Adjustments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_entries (ledger, user_id, chat_id, score, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(ledger, user_id, chat_id) DO UPDATE SET
				score = score + excluded.score,
				updated_at = excluded.updated_at`,
			adj.Ledger, adj.UserID, adj.ChatID, adj.Delta, now, now)
		if err != nil {
			return fmt.Errorf("failed to adjust %s ledger for user %d in chat %d: %w", adj.Ledger, adj.UserID, adj.ChatID, err)
		}
	}

	if outcome.VerifyMessageID != 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE messages SET verified_on_toxics = 1, updated_at = ? WHERE id = ?`,
			now, outcome.VerifyMessageID); err != nil {
			return fmt.Errorf("failed to flag message %d as verified: %w", outcome.VerifyMessageID, err)
		}
	}

	result, err := tx.ExecContext(ctx, `UPDATE messages SET processed = 1, updated_at = ? WHERE id = ?`, now, outcome.MessageID)
	if err != nil {
		return fmt.Errorf("failed to mark message %d as processed: %w", outcome.MessageID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected != 1 {
		s.logger.WarnContext(ctx, "Unexpected number of rows affected when marking message processed",
			"message_id", outcome.MessageID, "affected", affected)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit message outcome", "message_id", outcome.MessageID, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Message outcome saved",
		"message_id", outcome.MessageID,
		"verified_message_id", outcome.VerifyMessageID,
		"adjustments", len(outcome.Adjustments))
	return nil
}

func (s *sqlxStore) LedgerEntries(ctx context.Context, ledger Ledger, chatID int64) ([]LedgerEntry, error) {
	var entries []LedgerEntry
	query := `
		SELECT l.user_id, l.chat_id, l.score, u.username, u.first_name
		FROM ledger_entries l
		JOIN users u ON u.id = l.user_id
		WHERE l.ledger = ? AND l.chat_id = ?
		ORDER BY l.score DESC, l.id
	`
	if err := s.db.SelectContext(ctx, &entries, query, ledger, chatID); err != nil {
		return nil, fmt.Errorf("failed to load %s ledger for chat %d: %w", ledger, chatID, err)
	}
	return entries, nil
}

func (s *sqlxStore) LedgerScore(ctx context.Context, ledger Ledger, userID, chatID int64) (float64, bool, error) {
	var score float64
	err := s.db.GetContext(ctx, &score,
		`SELECT score FROM ledger_entries WHERE ledger = ? AND user_id = ? AND chat_id = ?`, ledger, userID, chatID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("failed to load %s score for user %d in chat %d: %w", ledger, userID, chatID, err)
	}
	return score, true, nil
}

// getOne runs a single-row query and maps sql.ErrNoRows to ErrNotFound.
func getOne(ctx context.Context, q sqlx.QueryerContext, dest any, query string, args ...any) error {
	err := sqlx.GetContext(ctx, q, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func chatByExternalID(ctx context.Context, q sqlx.QueryerContext, botID string, externalID int64) (*Chat, error) {
	var c Chat
	if err := getOne(ctx, q, &c, `SELECT * FROM chats WHERE external_id = ? AND bot_id = ?`, externalID, botID); err != nil {
		return nil, err
	}
	return &c, nil
}

func messageByExternalID(ctx context.Context, q sqlx.QueryerContext, chatID, externalID int64) (*Message, error) {
	var m Message
	if err := getOne(ctx, q, &m, `SELECT * FROM messages WHERE external_id = ? AND chat_id = ?`, externalID, chatID); err != nil {
		return nil, err
	}
	return &m, nil
}
