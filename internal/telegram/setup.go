// Package telegram is the Bot API boundary: outbound sends through go-telegram/bot
// and inbound long polling of getUpdates.
package telegram

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-telegram/bot"
)

// ErrEmptyToken is returned when a bot client is requested without a token.
var ErrEmptyToken = errors.New("telegram bot token cannot be empty")

// NewTelegramBot creates a go-telegram/bot instance for outbound calls only.
// getMe is skipped so that creating a client never touches the network.
func NewTelegramBot(token, apiURL string, logger *slog.Logger, opts ...bot.Option) (*bot.Bot, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "telegram_bot")

	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	if apiURL != "" {
		opts = append(opts, bot.WithServerURL(apiURL))
	}

	b, err := bot.New(token, opts...)
	if err != nil {
		log.Error("Failed to create Telegram bot instance", "error", err)
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	log.Debug("Telegram bot instance created", "token_prefix", tokenPrefix(token))
	return b, nil
}

// SenderProvider hands out a Sender for a bot token.
type SenderProvider interface {
	Sender(token string) (Sender, error)
}

// Clients caches one Client per bot token.
type Clients struct {
	apiURL string
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// NewClients creates an empty client cache for the given Bot API server.
func NewClients(apiURL string, logger *slog.Logger) *Clients {
	return &Clients{
		apiURL:  apiURL,
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

// Sender returns the cached Client for token, creating it on first use.
func (c *Clients) Sender(token string) (Sender, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[token]; ok {
		return client, nil
	}

	b, err := NewTelegramBot(token, c.apiURL, c.logger)
	if err != nil {
		return nil, err
	}
	client := &Client{bot: b}
	c.clients[token] = client
	return client, nil
}

func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return "..."
	}
	return token[:8] + "..."
}
