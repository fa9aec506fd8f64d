package telegram

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot/models"
)

// Notifier performs best-effort sends: failures are logged and reported as
// false, never returned, so a lost reply cannot undo persisted state.
type Notifier struct {
	sender Sender
	logger *slog.Logger
}

// NewNotifier wraps sender. logger should already carry the bot and chat attributes.
func NewNotifier(sender Sender, logger *slog.Logger) *Notifier {
	return &Notifier{sender: sender, logger: logger}
}

// Reply sends text as a reply to the message replyTo.
func (n *Notifier) Reply(ctx context.Context, chatID int64, replyTo int, text string) bool {
	if err := n.sender.SendText(ctx, chatID, text, replyTo); err != nil {
		n.logger.ErrorContext(ctx, "Failed to send reply", "chat_id", chatID, "reply_to", replyTo, "error", err)
		return false
	}
	return true
}

// HTML sends an HTML formatted message.
func (n *Notifier) HTML(ctx context.Context, chatID int64, html string) bool {
	if err := n.sender.SendHTML(ctx, chatID, html); err != nil {
		n.logger.ErrorContext(ctx, "Failed to send message", "chat_id", chatID, "error", err)
		return false
	}
	return true
}

// Menu sends an inline keyboard.
func (n *Notifier) Menu(ctx context.Context, chatID int64, keyboard *models.InlineKeyboardMarkup, label string) bool {
	if err := n.sender.SendMenu(ctx, chatID, keyboard, label); err != nil {
		n.logger.ErrorContext(ctx, "Failed to send menu", "chat_id", chatID, "error", err)
		return false
	}
	return true
}

// Quiz sends a quiz poll.
func (n *Notifier) Quiz(ctx context.Context, chatID int64, question string, options []string, correct int) bool {
	if err := n.sender.SendPoll(ctx, chatID, question, options, correct); err != nil {
		n.logger.ErrorContext(ctx, "Failed to send quiz", "chat_id", chatID, "error", err)
		return false
	}
	return true
}

// Acknowledge answers a callback query.
func (n *Notifier) Acknowledge(ctx context.Context, callbackID string) bool {
	if err := n.sender.AnswerCallback(ctx, callbackID); err != nil {
		n.logger.WarnContext(ctx, "Failed to answer callback query", "callback_query_id", callbackID, "error", err)
		return false
	}
	return true
}
