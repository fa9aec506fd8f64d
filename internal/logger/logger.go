// Package logger provides structured logging functionality for moderabot.
// It uses Go's slog package for logging with configurable levels and formats.
package logger

import (
	"log/slog"
	"os"

	"github.com/go-co-op/gocron/v2"
	"github.com/go-telegram/bot/models"
)

// NewLogger creates a new slog Logger with the specified level and format.
// If jsonOutput is true, logs will be formatted as JSON, otherwise as text.
func NewLogger(levelStr string, jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(levelStr),
	}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a configured level name to a slog level. Unknown names yield info.
func ParseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// gocronLogger adapts slog to gocron.Logger.
type gocronLogger struct {
	log *slog.Logger
}

// NewGocronLogger returns a gocron.Logger writing to log under the "gocron" component.
func NewGocronLogger(log *slog.Logger) gocron.Logger {
	return &gocronLogger{log: log.With("component", "gocron")}
}

func (l *gocronLogger) Debug(msg string, args ...any) { l.log.Debug(msg, args...) }
func (l *gocronLogger) Info(msg string, args ...any)  { l.log.Info(msg, args...) }
func (l *gocronLogger) Warn(msg string, args ...any)  { l.log.Warn(msg, args...) }
func (l *gocronLogger) Error(msg string, args ...any) { l.log.Error(msg, args...) }

// UpdateAttrs returns the log attributes describing an incoming update.
func UpdateAttrs(update *models.Update) []any {
	attrs := []any{"update_id", update.ID}

	switch {
	case update.EditedMessage != nil:
		attrs = append(attrs, "update_type", "edited_message")
		attrs = append(attrs, messageAttrs(update.EditedMessage)...)
	case update.Message != nil:
		attrs = append(attrs, "update_type", "message")
		attrs = append(attrs, messageAttrs(update.Message)...)
	case update.CallbackQuery != nil:
		attrs = append(attrs,
			"update_type", "callback_query",
			"callback_query_id", update.CallbackQuery.ID,
			"user_id", update.CallbackQuery.From.ID,
			"data", update.CallbackQuery.Data,
		)
		if msg := update.CallbackQuery.Message.Message; msg != nil {
			attrs = append(attrs, "chat_id", msg.Chat.ID, "message_accessible", true)
		} else if msg := update.CallbackQuery.Message.InaccessibleMessage; msg != nil {
			attrs = append(attrs, "chat_id", msg.Chat.ID, "message_accessible", false)
		}
	default:
		attrs = append(attrs, "update_type", "other")
	}

	return attrs
}

func messageAttrs(msg *models.Message) []any {
	attrs := []any{
		"message_id", msg.ID,
		"chat_id", msg.Chat.ID,
		"text_preview", truncateString(msg.Text, 50),
	}
	if msg.From != nil {
		attrs = append(attrs, "user_id", msg.From.ID)
	}
	return attrs
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
