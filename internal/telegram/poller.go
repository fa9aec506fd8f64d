package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/go-telegram/bot/models"
)

// allowedUpdates are the update kinds requested from getUpdates.
var allowedUpdates = []string{"message", "edited_message", "callback_query"}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

type getUpdatesResponse struct {
	OK          bool            `json:"ok"`
	Result      []models.Update `json:"result"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Poller fetches updates with the Bot API getUpdates method.
// One Poller serves every bot; the token selects the account per call.
type Poller struct {
	client *resty.Client
	limit  int
	logger *slog.Logger
}

// NewPoller creates a Poller against apiURL. requestTimeout bounds each HTTP
// call and must exceed the long-poll wait passed to FetchUpdates.
func NewPoller(apiURL string, requestTimeout time.Duration, limit int, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	client := resty.New().
		SetBaseURL(apiURL).
		SetTimeout(requestTimeout).
		SetHeader("Content-Type", "application/json")

	return &Poller{
		client: client,
		limit:  limit,
		logger: logger.With("component", "telegram_poller"),
	}
}

// FetchUpdates returns the updates with id >= offset, waiting up to wait for
// at least one to arrive. offset 0 asks for the oldest pending update.
func (p *Poller) FetchUpdates(ctx context.Context, token string, offset int64, wait time.Duration) ([]models.Update, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	var result getUpdatesResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParam("token", token).
		SetBody(getUpdatesRequest{
			Offset:         offset,
			Limit:          p.limit,
			Timeout:        int(wait / time.Second),
			AllowedUpdates: allowedUpdates,
		}).
		SetResult(&result).
		SetError(&result).
		Post("/bot{token}/getUpdates")
	if err != nil {
		return nil, fmt.Errorf("getUpdates request failed: %w", err)
	}

	if resp.IsError() || !result.OK {
		p.logger.DebugContext(ctx, "getUpdates rejected",
			"status", resp.StatusCode(),
			"error_code", result.ErrorCode,
			"description", result.Description,
			"token_prefix", tokenPrefix(token))
		return nil, fmt.Errorf("getUpdates failed with status %d: %s", resp.StatusCode(), result.Description)
	}

	return result.Result, nil
}
