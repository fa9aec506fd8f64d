package database

import (
	"time"
)

// Handler types understood by the moderation engine.
const (
	HandlerTypeMenu     = "Menu"
	HandlerTypeToxicity = "CheckingAMessageForToxicity"
	HandlerTypeQuiz     = "Quiz"
)

// Ledger names a scoring ledger. Each (user, chat) pair has at most one row per ledger.
type Ledger string

// Known ledgers.
const (
	LedgerToxic Ledger = "toxic"
	LedgerKPI   Ledger = "kpi"
)

// Bot is a Telegram bot account served by the engine.
type Bot struct {
	ID                   string    `db:"id"`
	Name                 string    `db:"name"`
	Token                string    `db:"token"`
	IsActive             bool      `db:"is_active"`
	UsePolling           bool      `db:"use_polling"`
	WebhookURL           string    `db:"webhook_url"`
	ClassifierAPIKey     string    `db:"classifier_api_key"`
	ToxicityCheckEnabled bool      `db:"toxicity_check_enabled"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

// Offset stores the last consumed update id of a bot.
type Offset struct {
	ID           int64     `db:"id"`
	BotID        string    `db:"bot_id"`
	LastUpdateID int64     `db:"last_update_id"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Chat is a Telegram chat as seen by one bot.
type Chat struct {
	ID         int64     `db:"id"`
	BotID      string    `db:"bot_id"`
	ExternalID int64     `db:"external_id"`
	Type       string    `db:"type"`
	Title      string    `db:"title"`
	Username   string    `db:"username"`
	FirstName  string    `db:"first_name"`
	LastName   string    `db:"last_name"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// User is a message author. Users are shared across bots.
type User struct {
	ID         int64     `db:"id"`
	ExternalID int64     `db:"external_id"`
	FirstName  string    `db:"first_name"`
	LastName   string    `db:"last_name"`
	Username   string    `db:"username"`
	IsBot      bool      `db:"is_bot"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Message is a chat message. Edits overwrite SentAt, Text and Caption only.
type Message struct {
	ID                int64     `db:"id"`
	ChatID            int64     `db:"chat_id"`
	FromUserID        int64     `db:"from_user_id"`
	ExternalID        int64     `db:"external_id"`
	ReplyToExternalID int64     `db:"reply_to_external_id"` // 0 when the message is not a reply
	SentAt            time.Time `db:"sent_at"`
	Text              string    `db:"text"`
	Caption           string    `db:"caption"`
	Processed         bool      `db:"processed"`
	VerifiedOnToxics  bool      `db:"verified_on_toxics"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// Photo is one size variant of a photo attached to a message.
type Photo struct {
	ID           int64     `db:"id"`
	MessageID    int64     `db:"message_id"`
	FileID       string    `db:"file_id"`
	FileUniqueID string    `db:"file_unique_id"`
	Width        int       `db:"width"`
	Height       int       `db:"height"`
	FileSize     int64     `db:"file_size"`
	CreatedAt    time.Time `db:"created_at"`
}

// Video is a video attached to a message.
type Video struct {
	ID           int64     `db:"id"`
	MessageID    int64     `db:"message_id"`
	FileID       string    `db:"file_id"`
	FileUniqueID string    `db:"file_unique_id"`
	FileName     string    `db:"file_name"`
	Width        int       `db:"width"`
	Height       int       `db:"height"`
	Duration     int       `db:"duration"`
	FileSize     int64     `db:"file_size"`
	MimeType     string    `db:"mime_type"`
	CreatedAt    time.Time `db:"created_at"`
}

// Handler is an admin-defined rule: a trigger token bound to a side effect.
type Handler struct {
	ID         int64     `db:"id"`
	BotID      string    `db:"bot_id"`
	ExternalID string    `db:"external_id"` // trigger token, matched as "/<token>"
	Name       string    `db:"name"`
	Type       string    `db:"type"`
	Code       string    `db:"code"` // inline keyboard JSON for menu handlers
	Text       string    `db:"text"`
	IsActive   bool      `db:"is_active"`
	Position   int       `db:"position"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// LedgerAdjustment is a signed change to one ledger row.
type LedgerAdjustment struct {
	Ledger Ledger
	UserID int64
	ChatID int64
	Delta  float64
}

// LedgerEntry is a ledger row joined with its user's display fields.
type LedgerEntry struct {
	UserID    int64   `db:"user_id"`
	ChatID    int64   `db:"chat_id"`
	Score     float64 `db:"score"`
	Username  string  `db:"username"`
	FirstName string  `db:"first_name"`
}

// MessageOutcome is everything the moderation engine persists for one message:
// the ledger adjustments, the replied-to message to flag as verified (0 for none)
// and the processed flag of the message itself.
type MessageOutcome struct {
	MessageID       int64
	VerifyMessageID int64
	Adjustments     []LedgerAdjustment
}
