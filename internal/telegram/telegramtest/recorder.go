// Package telegramtest provides an in-memory Sender for tests.
package telegramtest

import (
	"context"
	"sync"

	"github.com/go-telegram/bot/models"

	"github.com/edgard/moderabot/internal/telegram"
)

// Sent is one recorded outbound call.
type Sent struct {
	Kind     string // text, html, menu, poll or answer
	ChatID   int64
	Text     string
	ReplyTo  int
	Keyboard *models.InlineKeyboardMarkup
	Options  []string
	Correct  int
}

// Recorder records every call instead of talking to the Bot API. It serves as
// its own SenderProvider for any token.
type Recorder struct {
	// Err, when set, is returned by every send after it is recorded.
	Err error

	mu   sync.Mutex
	sent []Sent
}

var (
	_ telegram.Sender         = (*Recorder)(nil)
	_ telegram.SenderProvider = (*Recorder)(nil)
)

func (r *Recorder) Sender(string) (telegram.Sender, error) {
	return r, nil
}

// Sent returns a copy of the recorded calls in order.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// Texts returns the text of every recorded call of the given kind.
func (r *Recorder) Texts(kind string) []string {
	var texts []string
	for _, s := range r.Sent() {
		if s.Kind == kind {
			texts = append(texts, s.Text)
		}
	}
	return texts
}

func (r *Recorder) record(s Sent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, s)
	return r.Err
}

func (r *Recorder) SendText(_ context.Context, chatID int64, text string, replyTo int) error {
	return r.record(Sent{Kind: "text", ChatID: chatID, Text: text, ReplyTo: replyTo})
}

func (r *Recorder) SendHTML(_ context.Context, chatID int64, html string) error {
	return r.record(Sent{Kind: "html", ChatID: chatID, Text: html})
}

func (r *Recorder) SendMenu(_ context.Context, chatID int64, keyboard *models.InlineKeyboardMarkup, label string) error {
	return r.record(Sent{Kind: "menu", ChatID: chatID, Text: label, Keyboard: keyboard})
}

func (r *Recorder) SendPoll(_ context.Context, chatID int64, question string, options []string, correct int) error {
	return r.record(Sent{Kind: "poll", ChatID: chatID, Text: question, Options: options, Correct: correct})
}

func (r *Recorder) AnswerCallback(_ context.Context, callbackID string) error {
	return r.record(Sent{Kind: "answer", Text: callbackID})
}
