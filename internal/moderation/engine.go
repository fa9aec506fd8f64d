// Package moderation runs the active handlers of a bot over its unprocessed
// messages and records the outcome of every message exactly once.
package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/edgard/moderabot/internal/classifier"
	"github.com/edgard/moderabot/internal/config"
	"github.com/edgard/moderabot/internal/database"
	"github.com/edgard/moderabot/internal/fanout"
	"github.com/edgard/moderabot/internal/telegram"
)

// ReportWindow is how old a message may be and still be reported.
const ReportWindow = 24 * time.Hour

// Engine evaluates handlers against unprocessed messages.
type Engine struct {
	store      database.Store
	senders    telegram.SenderProvider
	classifier classifier.Classifier
	messages   config.MessagesConfig
	quiz       config.QuizConfig
	maxChats   int
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock used for the report window.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a moderation engine. maxChats bounds how many chats of one
// bot are processed at the same time.
func NewEngine(
	store database.Store,
	senders telegram.SenderProvider,
	cls classifier.Classifier,
	messages config.MessagesConfig,
	quiz config.QuizConfig,
	maxChats int,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:      store,
		senders:    senders,
		classifier: cls,
		messages:   messages,
		quiz:       quiz,
		maxChats:   maxChats,
		now:        time.Now,
		logger:     logger.With("component", "moderation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunBot processes every chat of bot that has unprocessed messages. Chats run
// in parallel; the messages of one chat run in order. A failing chat leaves
// its remaining messages unprocessed for the next run.
func (e *Engine) RunBot(ctx context.Context, bot database.Bot) error {
	log := e.logger.With("bot_id", bot.ID, "bot_name", bot.Name)

	handlers, err := e.store.ActiveHandlers(ctx, bot.ID)
	if err != nil {
		return err
	}
	chats, err := e.store.ChatsWithUnprocessed(ctx, bot.ID)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		return nil
	}

	sender, err := e.senders.Sender(bot.Token)
	if err != nil {
		return fmt.Errorf("no sender for bot %s: %w", bot.ID, err)
	}

	units := make([]fanout.Unit, 0, len(chats))
	for _, chat := range chats {
		chatLog := log.With("chat_id", chat.ID, "chat_external_id", chat.ExternalID)
		cr := &chatRun{
			engine:   e,
			bot:      bot,
			chat:     chat,
			handlers: handlers,
			notifier: telegram.NewNotifier(sender, chatLog),
			log:      chatLog,
		}
		units = append(units, fanout.Unit{
			Name: "chat " + strconv.FormatInt(chat.ExternalID, 10),
			Run:  cr.run,
		})
	}

	if failed := fanout.Run(ctx, log, e.maxChats, units); failed > 0 {
		return fmt.Errorf("%d of %d chats failed", failed, len(chats))
	}
	return ctx.Err()
}

// chatRun processes the unprocessed messages of one chat.
type chatRun struct {
	engine   *Engine
	bot      database.Bot
	chat     database.Chat
	handlers []database.Handler
	notifier *telegram.Notifier
	log      *slog.Logger
}

// messageRun accumulates the effects of all handlers on one message. Sends are
// deferred until the outcome has been committed.
type messageRun struct {
	msg     database.Message
	outcome database.MessageOutcome
	sends   []func(ctx context.Context)
}

func (r *messageRun) send(fn func(ctx context.Context)) {
	r.sends = append(r.sends, fn)
}

func (r *messageRun) adjust(ledger database.Ledger, userID, chatID int64, delta float64) {
	r.outcome.Adjustments = append(r.outcome.Adjustments, database.LedgerAdjustment{
		Ledger: ledger,
		UserID: userID,
		ChatID: chatID,
		Delta:  delta,
	})
}

func (c *chatRun) run(ctx context.Context) error {
	messages, err := c.engine.store.UnprocessedMessages(ctx, c.chat.ID)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return err
		}

		run := &messageRun{
			msg:     msg,
			outcome: database.MessageOutcome{MessageID: msg.ID},
		}
		for _, h := range c.handlers {
			if err := c.apply(ctx, h, run); err != nil {
				return fmt.Errorf("handler %d on message %d: %w", h.ID, msg.ID, err)
			}
		}

		// A cancelled classification must not be recorded as a failed check.
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.engine.store.CompleteMessage(ctx, run.outcome); err != nil {
			return err
		}
		for _, send := range run.sends {
			send(ctx)
		}
	}

	if len(messages) > 0 {
		c.log.DebugContext(ctx, "Chat processed", "messages", len(messages))
	}
	return nil
}

func (c *chatRun) apply(ctx context.Context, h database.Handler, run *messageRun) error {
	if !triggered(run.msg.Text, h.ExternalID) {
		return nil
	}

	switch h.Type {
	case database.HandlerTypeMenu:
		c.menu(h, run)
	case database.HandlerTypeQuiz:
		c.sendQuiz(run)
	case database.HandlerTypeToxicity:
		if run.msg.ReplyToExternalID == 0 || !c.bot.ToxicityCheckEnabled {
			return nil
		}
		return c.checkToxicity(ctx, run)
	default:
		c.log.WarnContext(ctx, "Skipping handler of unknown type", "handler_id", h.ID, "type", h.Type)
	}
	return nil
}

// triggered reports whether text carries the command form of token.
func triggered(text, token string) bool {
	return token != "" && strings.Contains(text, "/"+token)
}
