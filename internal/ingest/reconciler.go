// Package ingest turns Bot API updates into persisted chats, users, messages
// and media, one transaction per bot per tick.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot/models"

	"github.com/edgard/moderabot/internal/database"
)

// Batch is the per-tick reconciliation state of one bot. Its caches live only
// as long as the tick's transaction.
type Batch struct {
	tx    database.IngestTx
	botID string
	chats map[int64]*database.Chat
	users map[int64]*database.User
}

// NewBatch starts reconciliation for botID inside tx.
func NewBatch(tx database.IngestTx, botID string) *Batch {
	return &Batch{
		tx:    tx,
		botID: botID,
		chats: make(map[int64]*database.Chat),
		users: make(map[int64]*database.User),
	}
}

// Chat resolves the chat of an update, inserting it or refreshing its mutable
// fields. wrote reports whether a row was written.
func (b *Batch) Chat(ctx context.Context, c models.Chat) (*database.Chat, bool, error) {
	incoming := database.Chat{
		BotID:      b.botID,
		ExternalID: c.ID,
		Type:       string(c.Type),
		Title:      c.Title,
		Username:   c.Username,
		FirstName:  c.FirstName,
		LastName:   c.LastName,
	}

	chat, ok := b.chats[c.ID]
	if !ok {
		stored, err := b.tx.ChatByExternalID(ctx, b.botID, c.ID)
		switch {
		case errors.Is(err, database.ErrNotFound):
			if err := b.tx.InsertChat(ctx, &incoming); err != nil {
				return nil, false, err
			}
			b.chats[c.ID] = &incoming
			return &incoming, true, nil
		case err != nil:
			return nil, false, fmt.Errorf("failed to look up chat %d: %w", c.ID, err)
		}
		chat = stored
		b.chats[c.ID] = chat
	}

	if chat.Type == incoming.Type &&
		chat.Title == incoming.Title &&
		chat.Username == incoming.Username &&
		chat.FirstName == incoming.FirstName &&
		chat.LastName == incoming.LastName {
		return chat, false, nil
	}

	chat.Type = incoming.Type
	chat.Title = incoming.Title
	chat.Username = incoming.Username
	chat.FirstName = incoming.FirstName
	chat.LastName = incoming.LastName
	if err := b.tx.UpdateChat(ctx, chat); err != nil {
		return nil, false, err
	}
	return chat, true, nil
}

// User resolves a message author. Users are global, shared by all bots.
func (b *Batch) User(ctx context.Context, u *models.User) (*database.User, bool, error) {
	incoming := database.User{
		ExternalID: u.ID,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Username:   u.Username,
		IsBot:      u.IsBot,
	}

	user, ok := b.users[u.ID]
	if !ok {
		stored, err := b.tx.UserByExternalID(ctx, u.ID)
		switch {
		case errors.Is(err, database.ErrNotFound):
			if err := b.tx.InsertUser(ctx, &incoming); err != nil {
				return nil, false, err
			}
			b.users[u.ID] = &incoming
			return &incoming, true, nil
		case err != nil:
			return nil, false, fmt.Errorf("failed to look up user %d: %w", u.ID, err)
		}
		user = stored
		b.users[u.ID] = user
	}

	if user.FirstName == incoming.FirstName &&
		user.LastName == incoming.LastName &&
		user.Username == incoming.Username &&
		user.IsBot == incoming.IsBot {
		return user, false, nil
	}

	user.FirstName = incoming.FirstName
	user.LastName = incoming.LastName
	user.Username = incoming.Username
	user.IsBot = incoming.IsBot
	if err := b.tx.UpdateUser(ctx, user); err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// Message upserts msg under chat by (external id, chat). A new message starts
// unprocessed and unverified; a known one only takes the sent time, text and
// caption of the payload. wrote reports whether a row was written.
func (b *Batch) Message(ctx context.Context, chat *database.Chat, author *database.User, msg *models.Message) (*database.Message, bool, error) {
	sentAt := time.Unix(int64(msg.Date), 0).UTC()

	stored, err := b.tx.MessageByExternalID(ctx, chat.ID, int64(msg.ID))
	switch {
	case errors.Is(err, database.ErrNotFound):
		created := &database.Message{
			ChatID:     chat.ID,
			FromUserID: author.ID,
			ExternalID: int64(msg.ID),
			SentAt:     sentAt,
			Text:       msg.Text,
			Caption:    msg.Caption,
		}
		if msg.ReplyToMessage != nil {
			created.ReplyToExternalID = int64(msg.ReplyToMessage.ID)
		}
		if err := b.tx.InsertMessage(ctx, created); err != nil {
			return nil, false, err
		}
		return created, true, nil
	case err != nil:
		return nil, false, fmt.Errorf("failed to look up message %d: %w", msg.ID, err)
	}

	if stored.SentAt.Equal(sentAt) && stored.Text == msg.Text && stored.Caption == msg.Caption {
		return stored, false, nil
	}

	stored.SentAt = sentAt
	stored.Text = msg.Text
	stored.Caption = msg.Caption
	if err := b.tx.UpdateMessageContent(ctx, stored); err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

// Media stores the photo size variants and the video of msg that are not
// already attached to stored. It returns the number of rows inserted.
func (b *Batch) Media(ctx context.Context, stored *database.Message, msg *models.Message) (int, error) {
	inserted := 0

	for _, p := range msg.Photo {
		ok, err := b.tx.InsertPhotoIfAbsent(ctx, &database.Photo{
			MessageID:    stored.ID,
			FileID:       p.FileID,
			FileUniqueID: p.FileUniqueID,
			Width:        p.Width,
			Height:       p.Height,
			FileSize:     int64(p.FileSize),
		})
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}

	if v := msg.Video; v != nil {
		ok, err := b.tx.InsertVideoIfAbsent(ctx, &database.Video{
			MessageID:    stored.ID,
			FileID:       v.FileID,
			FileUniqueID: v.FileUniqueID,
			FileName:     v.FileName,
			Width:        v.Width,
			Height:       v.Height,
			Duration:     v.Duration,
			FileSize:     int64(v.FileSize),
			MimeType:     v.MimeType,
		})
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}

	return inserted, nil
}
