package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// IngestTx is the unit of work of one ingestion tick. Every write of the tick,
// including the offset advance, commits or rolls back together.
type IngestTx interface {
	ChatByExternalID(ctx context.Context, botID string, externalID int64) (*Chat, error)
	InsertChat(ctx context.Context, chat *Chat) error
	UpdateChat(ctx context.Context, chat *Chat) error

	UserByExternalID(ctx context.Context, externalID int64) (*User, error)
	InsertUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error

	MessageByExternalID(ctx context.Context, chatID, externalID int64) (*Message, error)
	InsertMessage(ctx context.Context, msg *Message) error
	// UpdateMessageContent overwrites the sent time, text and caption of a message.
	UpdateMessageContent(ctx context.Context, msg *Message) error

	// InsertPhotoIfAbsent stores a photo unless the same (file, unique file, message)
	// triple is already present. It reports whether a row was written.
	InsertPhotoIfAbsent(ctx context.Context, photo *Photo) (bool, error)
	// InsertVideoIfAbsent is the video counterpart of InsertPhotoIfAbsent.
	InsertVideoIfAbsent(ctx context.Context, video *Video) (bool, error)

	// AdvanceOffset records updateID as consumed. The stored value never decreases.
	AdvanceOffset(ctx context.Context, botID string, updateID int64) error

	Commit() error
	Rollback() error
}

type sqlxIngestTx struct {
	tx *sqlx.Tx
}

func (t *sqlxIngestTx) ChatByExternalID(ctx context.Context, botID string, externalID int64) (*Chat, error) {
	return chatByExternalID(ctx, t.tx, botID, externalID)
}

func (t *sqlxIngestTx) InsertChat(ctx context.Context, chat *Chat) error {
	now := time.Now().UTC()
	chat.CreatedAt = now
	chat.UpdatedAt = now
	query := `
		INSERT INTO chats (bot_id, external_id, type, title, username, first_name, last_name, created_at, updated_at)
		VALUES (:bot_id, :external_id, :type, :title, :username, :first_name, :last_name, :created_at, :updated_at)
	`
	id, err := insertReturningID(ctx, t.tx, query, chat)
	if err != nil {
		return fmt.Errorf("failed to insert chat %d: %w", chat.ExternalID, err)
	}
	chat.ID = id
	return nil
}

func (t *sqlxIngestTx) UpdateChat(ctx context.Context, chat *Chat) error {
	chat.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE chats SET type = :type, title = :title, username = :username,
			first_name = :first_name, last_name = :last_name, updated_at = :updated_at
		WHERE id = :id
	`
	if _, err := t.tx.NamedExecContext(ctx, query, chat); err != nil {
		return fmt.Errorf("failed to update chat %d: %w", chat.ExternalID, err)
	}
	return nil
}

func (t *sqlxIngestTx) UserByExternalID(ctx context.Context, externalID int64) (*User, error) {
	var u User
	if err := getOne(ctx, t.tx, &u, `SELECT * FROM users WHERE external_id = ?`, externalID); err != nil {
		return nil, err
	}
	return &u, nil
}

func (t *sqlxIngestTx) InsertUser(ctx context.Context, user *User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	query := `
		INSERT INTO users (external_id, first_name, last_name, username, is_bot, created_at, updated_at)
		VALUES (:external_id, :first_name, :last_name, :username, :is_bot, :created_at, :updated_at)
	`
	id, err := insertReturningID(ctx, t.tx, query, user)
	if err != nil {
		return fmt.Errorf("failed to insert user %d: %w", user.ExternalID, err)
	}
	user.ID = id
	return nil
}

func (t *sqlxIngestTx) UpdateUser(ctx context.Context, user *User) error {
	user.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE users SET first_name = :first_name, last_name = :last_name, username = :username,
			is_bot = :is_bot, updated_at = :updated_at
		WHERE id = :id
	`
	if _, err := t.tx.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("failed to update user %d: %w", user.ExternalID, err)
	}
	return nil
}

func (t *sqlxIngestTx) MessageByExternalID(ctx context.Context, chatID, externalID int64) (*Message, error) {
	return messageByExternalID(ctx, t.tx, chatID, externalID)
}

func (t *sqlxIngestTx) InsertMessage(ctx context.Context, msg *Message) error {
	now := time.Now().UTC()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	query := `
		INSERT INTO messages (chat_id, from_user_id, external_id, reply_to_external_id, sent_at,
			text, caption, processed, verified_on_toxics, created_at, updated_at)
		VALUES (:chat_id, :from_user_id, :external_id, :reply_to_external_id, :sent_at,
			:text, :caption, :processed, :verified_on_toxics, :created_at, :updated_at)
	`
	id, err := insertReturningID(ctx, t.tx, query, msg)
	if err != nil {
		return fmt.Errorf("failed to insert message %d: %w", msg.ExternalID, err)
	}
	msg.ID = id
	return nil
}

func (t *sqlxIngestTx) UpdateMessageContent(ctx context.Context, msg *Message) error {
	msg.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE messages SET sent_at = :sent_at, text = :text, caption = :caption, updated_at = :updated_at
		WHERE id = :id
	`
	if _, err := t.tx.NamedExecContext(ctx, query, msg); err != nil {
		return fmt.Errorf("failed to update message %d: %w", msg.ExternalID, err)
	}
	return nil
}

func (t *sqlxIngestTx) InsertPhotoIfAbsent(ctx context.Context, photo *Photo) (bool, error) {
	var exists bool
	err := t.tx.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM photos WHERE file_id = ? AND file_unique_id = ? AND message_id = ?)`,
		photo.FileID, photo.FileUniqueID, photo.MessageID)
	if err != nil {
		return false, fmt.Errorf("failed to check photo %s: %w", photo.FileUniqueID, err)
	}
	if exists {
		return false, nil
	}

	photo.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO photos (message_id, file_id, file_unique_id, width, height, file_size, created_at)
		VALUES (:message_id, :file_id, :file_unique_id, :width, :height, :file_size, :created_at)
	`
	id, err := insertReturningID(ctx, t.tx, query, photo)
	if err != nil {
		return false, fmt.Errorf("failed to insert photo %s: %w", photo.FileUniqueID, err)
	}
	photo.ID = id
	return true, nil
}

func (t *sqlxIngestTx) InsertVideoIfAbsent(ctx context.Context, video *Video) (bool, error) {
	var exists bool
	err := t.tx.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM videos WHERE file_id = ? AND file_unique_id = ? AND message_id = ?)`,
		video.FileID, video.FileUniqueID, video.MessageID)
	if err != nil {
		return false, fmt.Errorf("failed to check video %s: %w", video.FileUniqueID, err)
	}
	if exists {
		return false, nil
	}

	video.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO videos (message_id, file_id, file_unique_id, file_name, width, height,
			duration, file_size, mime_type, created_at)
		VALUES (:message_id, :file_id, :file_unique_id, :file_name, :width, :height,
			:duration, :file_size, :mime_type, :created_at)
	`
	id, err := insertReturningID(ctx, t.tx, query, video)
	if err != nil {
		return false, fmt.Errorf("failed to insert video %s: %w", video.FileUniqueID, err)
	}
	video.ID = id
	return true, nil
}

func (t *sqlxIngestTx) AdvanceOffset(ctx context.Context, botID string, updateID int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO offsets (bot_id, last_update_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(bot_id) DO UPDATE SET
			last_update_id = MAX(last_update_id, excluded.last_update_id),
			updated_at = excluded.updated_at`,
		botID, updateID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to advance offset for bot %s: %w", botID, err)
	}
	return nil
}

func (t *sqlxIngestTx) Commit() error {
	return t.tx.Commit()
}

// Rollback is safe to call after Commit.
func (t *sqlxIngestTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func insertReturningID(ctx context.Context, tx *sqlx.Tx, query string, arg any) (int64, error) {
	result, err := tx.NamedExecContext(ctx, query, arg)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}
