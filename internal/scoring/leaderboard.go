// Package scoring renders the per-chat toxic and KPI leaderboards and answers
// the inline keyboard callbacks that request them.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/edgard/moderabot/internal/config"
	"github.com/edgard/moderabot/internal/database"
	"github.com/edgard/moderabot/internal/telegram"
)

// Board describes how one ledger is presented.
type Board struct {
	Ledger      database.Ledger
	Header      string
	Empty       string
	UnknownUser string
}

// Render formats entries as a ranked list inside an expandable quote. Entries
// must be ordered by score descending; zero scores are skipped and do not take
// a rank. An empty list renders the board's Empty text.
func Render(board Board, entries []database.LedgerEntry) string {
	var lines []string
	rank := 0
	for _, e := range entries {
		if e.Score == 0 {
			continue
		}
		rank++
		lines = append(lines, fmt.Sprintf("%d. %s: %s", rank, displayName(e, board.UnknownUser), formatScore(e.Score)))
	}

	body := board.Empty
	if len(lines) > 0 {
		body = strings.Join(lines, "\n")
	}
	return fmt.Sprintf("<blockquote expandable>%s\n\n%s</blockquote>", board.Header, body)
}

func displayName(e database.LedgerEntry, unknown string) string {
	switch {
	case e.Username != "":
		return "@" + html.EscapeString(e.Username)
	case e.FirstName != "":
		return html.EscapeString(e.FirstName)
	default:
		return html.EscapeString(unknown)
	}
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

// LedgerReader is the read side of the store used for leaderboards.
type LedgerReader interface {
	ChatByExternalID(ctx context.Context, botID string, externalID int64) (*database.Chat, error)
	LedgerEntries(ctx context.Context, ledger database.Ledger, chatID int64) ([]database.LedgerEntry, error)
}

// Responder answers leaderboard callback queries.
type Responder struct {
	store   LedgerReader
	senders telegram.SenderProvider
	boards  map[string]Board
	logger  *slog.Logger
}

// NewResponder maps the configured callback data to their boards.
func NewResponder(store LedgerReader, senders telegram.SenderProvider, lb config.LeaderboardConfig, msgs config.MessagesConfig, logger *slog.Logger) *Responder {
	return &Responder{
		store:   store,
		senders: senders,
		boards: map[string]Board{
			lb.ToxicCallback: {
				Ledger:      database.LedgerToxic,
				Header:      msgs.ToxicHeader,
				Empty:       msgs.NoToxicEntries,
				UnknownUser: msgs.UnknownUserDisplay,
			},
			lb.KPICallback: {
				Ledger:      database.LedgerKPI,
				Header:      msgs.KPIHeader,
				Empty:       msgs.NoKPIEntries,
				UnknownUser: msgs.UnknownUserDisplay,
			},
		},
		logger: logger.With("component", "leaderboard"),
	}
}

// HandleCallback acknowledges query and, when its data names a leaderboard,
// posts that chat's leaderboard. Sends are best-effort; only store failures
// are returned.
func (r *Responder) HandleCallback(ctx context.Context, bot database.Bot, query models.CallbackQuery) error {
	log := r.logger.With("bot_id", bot.ID, "callback_query_id", query.ID, "data", query.Data)

	sender, err := r.senders.Sender(bot.Token)
	if err != nil {
		return fmt.Errorf("no sender for bot %s: %w", bot.ID, err)
	}
	notifier := telegram.NewNotifier(sender, log)
	defer notifier.Acknowledge(ctx, query.ID)

	board, ok := r.boards[query.Data]
	if !ok {
		log.DebugContext(ctx, "Ignoring callback with unknown data")
		return nil
	}

	msg := query.Message.Message
	if msg == nil {
		log.DebugContext(ctx, "Ignoring callback without an accessible message")
		return nil
	}

	chat, err := r.store.ChatByExternalID(ctx, bot.ID, msg.Chat.ID)
	if errors.Is(err, database.ErrNotFound) {
		log.WarnContext(ctx, "Leaderboard requested for unknown chat", "chat_external_id", msg.Chat.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load chat %d: %w", msg.Chat.ID, err)
	}

	entries, err := r.store.LedgerEntries(ctx, board.Ledger, chat.ID)
	if err != nil {
		return err
	}

	notifier.HTML(ctx, chat.ExternalID, Render(board, entries))
	log.InfoContext(ctx, "Leaderboard sent", "chat_id", chat.ID, "ledger", board.Ledger, "entries", len(entries))
	return nil
}
