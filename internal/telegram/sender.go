package telegram

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Sender is the outbound half of the Bot API used by the engine.
type Sender interface {
	// SendText sends plain text, as a reply to replyTo when it is not zero.
	SendText(ctx context.Context, chatID int64, text string, replyTo int) error
	// SendHTML sends text using the HTML parse mode.
	SendHTML(ctx context.Context, chatID int64, html string) error
	// SendMenu sends label with an inline keyboard attached.
	SendMenu(ctx context.Context, chatID int64, keyboard *models.InlineKeyboardMarkup, label string) error
	// SendPoll sends a quiz poll with a single correct option.
	SendPoll(ctx context.Context, chatID int64, question string, options []string, correct int) error
	// AnswerCallback acknowledges a callback query.
	AnswerCallback(ctx context.Context, callbackID string) error
}

// Client implements Sender on top of go-telegram/bot.
type Client struct {
	bot *bot.Bot
}

// NewClient wraps an existing go-telegram/bot instance.
func NewClient(b *bot.Bot) *Client {
	return &Client{bot: b}
}

func (c *Client) SendText(ctx context.Context, chatID int64, text string, replyTo int) error {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	if replyTo != 0 {
		params.ReplyParameters = &models.ReplyParameters{
			MessageID:                replyTo,
			AllowSendingWithoutReply: true,
		}
	}
	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}
	return nil
}

func (c *Client) SendHTML(ctx context.Context, chatID int64, html string) error {
	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      html,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("failed to send html message to chat %d: %w", chatID, err)
	}
	return nil
}

func (c *Client) SendMenu(ctx context.Context, chatID int64, keyboard *models.InlineKeyboardMarkup, label string) error {
	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        label,
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: keyboard,
	})
	if err != nil {
		return fmt.Errorf("failed to send menu to chat %d: %w", chatID, err)
	}
	return nil
}

func (c *Client) SendPoll(ctx context.Context, chatID int64, question string, options []string, correct int) error {
	pollOptions := make([]models.InputPollOption, 0, len(options))
	for _, o := range options {
		pollOptions = append(pollOptions, models.InputPollOption{Text: o})
	}

	_, err := c.bot.SendPoll(ctx, &bot.SendPollParams{
		ChatID:          chatID,
		Question:        question,
		Options:         pollOptions,
		Type:            "quiz",
		CorrectOptionID: correct,
	})
	if err != nil {
		return fmt.Errorf("failed to send quiz to chat %d: %w", chatID, err)
	}
	return nil
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	if _, err := c.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: callbackID}); err != nil {
		return fmt.Errorf("failed to answer callback query %s: %w", callbackID, err)
	}
	return nil
}

// DecodeKeyboard parses a handler's stored inline keyboard JSON.
func DecodeKeyboard(code string) (*models.InlineKeyboardMarkup, error) {
	var keyboard models.InlineKeyboardMarkup
	if err := json.Unmarshal([]byte(code), &keyboard); err != nil {
		return nil, fmt.Errorf("invalid inline keyboard: %w", err)
	}
	if len(keyboard.InlineKeyboard) == 0 {
		return nil, fmt.Errorf("invalid inline keyboard: no buttons")
	}
	return &keyboard, nil
}
