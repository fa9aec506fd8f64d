package database_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/moderabot/internal/database"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, nil)
}

func seedBot(t *testing.T, store database.Store, name string) database.Bot {
	t.Helper()

	bot := database.Bot{
		ID:                   name + "-id",
		Name:                 name,
		Token:                name + "-token",
		IsActive:             true,
		UsePolling:           true,
		ToxicityCheckEnabled: true,
	}
	require.NoError(t, store.UpsertBot(context.Background(), &bot))
	return bot
}

type fixture struct {
	chat     *database.Chat
	author   *database.User
	reporter *database.User
	target   *database.Message
}

func seedChat(t *testing.T, store database.Store, botID string) fixture {
	t.Helper()
	ctx := context.Background()

	tx, err := store.BeginIngest(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	chat := &database.Chat{BotID: botID, ExternalID: -100, Type: "supergroup", Title: "chat"}
	require.NoError(t, tx.InsertChat(ctx, chat))
	author := &database.User{ExternalID: 1, FirstName: "Alice", Username: "alice"}
	require.NoError(t, tx.InsertUser(ctx, author))
	reporter := &database.User{ExternalID: 2, FirstName: "Rob"}
	require.NoError(t, tx.InsertUser(ctx, reporter))
	target := &database.Message{ChatID: chat.ID, FromUserID: author.ID, ExternalID: 10, SentAt: time.Now().UTC(), Text: "hello"}
	require.NoError(t, tx.InsertMessage(ctx, target))
	require.NoError(t, tx.Commit())

	return fixture{chat: chat, author: author, reporter: reporter, target: target}
}

func TestUpsertBotKeepsID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	first := database.Bot{ID: "first-id", Name: "mod", Token: "t1", IsActive: true, UsePolling: true}
	require.NoError(t, store.UpsertBot(ctx, &first))

	second := database.Bot{ID: "second-id", Name: "mod", Token: "t2", IsActive: true, UsePolling: true}
	require.NoError(t, store.UpsertBot(ctx, &second))

	assert.Equal(t, "first-id", second.ID)
	assert.Equal(t, "t2", second.Token)

	bots, err := store.ListPollingBots(ctx)
	require.NoError(t, err)
	require.Len(t, bots, 1)
	assert.Equal(t, "t2", bots[0].Token)
}

func TestListPollingBotsFiltersInactiveAndWebhook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	testCases := []database.Bot{
		{ID: "a", Name: "active", Token: "a", IsActive: true, UsePolling: true},
		{ID: "b", Name: "inactive", Token: "b", IsActive: false, UsePolling: true},
		{ID: "c", Name: "webhook", Token: "c", IsActive: true, UsePolling: false},
	}
	for i := range testCases {
		require.NoError(t, store.UpsertBot(ctx, &testCases[i]))
	}

	bots, err := store.ListPollingBots(ctx)
	require.NoError(t, err)
	require.Len(t, bots, 1)
	assert.Equal(t, "active", bots[0].Name)
}

func TestActiveHandlersOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	bot := seedBot(t, store, "mod")

	handlers := []database.Handler{
		{BotID: bot.ID, ExternalID: "quiz", Type: database.HandlerTypeQuiz, IsActive: true, Position: 2},
		{BotID: bot.ID, ExternalID: "menu", Type: database.HandlerTypeMenu, IsActive: true, Position: 0},
		{BotID: bot.ID, ExternalID: "off", Type: database.HandlerTypeMenu, IsActive: false, Position: 1},
		{BotID: bot.ID, ExternalID: "toxic", Type: database.HandlerTypeToxicity, IsActive: true, Position: 1},
	}
	for i := range handlers {
		require.NoError(t, store.UpsertHandler(ctx, &handlers[i]))
	}

	active, err := store.ActiveHandlers(ctx, bot.ID)
	require.NoError(t, err)

	var triggers []string
	for _, h := range active {
		triggers = append(triggers, h.ExternalID)
	}
	assert.Equal(t, []string{"menu", "toxic", "quiz"}, triggers)
}

func TestOffsetIsMonotonic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	bot := seedBot(t, store, "mod")

	_, found, err := store.GetOffset(ctx, bot.ID)
	require.NoError(t, err)
	assert.False(t, found)

	for _, id := range []int64{7, 3} {
		tx, err := store.BeginIngest(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.AdvanceOffset(ctx, bot.ID, id))
		require.NoError(t, tx.Commit())
	}

	offset, found, err := store.GetOffset(ctx, bot.ID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(7), offset)
}

func TestIngestRollbackDiscardsWrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	bot := seedBot(t, store, "mod")

	tx, err := store.BeginIngest(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertChat(ctx, &database.Chat{BotID: bot.ID, ExternalID: 42}))
	require.NoError(t, tx.AdvanceOffset(ctx, bot.ID, 9))
	require.NoError(t, tx.Rollback())
	require.NoError(t, tx.Rollback())

	_, err = store.ChatByExternalID(ctx, bot.ID, 42)
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, found, err := store.GetOffset(ctx, bot.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMediaInsertIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	bot := seedBot(t, store, "mod")
	fx := seedChat(t, store, bot.ID)

	tx, err := store.BeginIngest(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	photo := database.Photo{MessageID: fx.target.ID, FileID: "f", FileUniqueID: "u", Width: 90, Height: 90}
	inserted, err := tx.InsertPhotoIfAbsent(ctx, &photo)
	require.NoError(t, err)
	assert.True(t, inserted)

	again := photo
	inserted, err = tx.InsertPhotoIfAbsent(ctx, &again)
	require.NoError(t, err)
	assert.False(t, inserted)

	video := database.Video{MessageID: fx.target.ID, FileID: "v", FileUniqueID: "vu", Duration: 3}
	inserted, err = tx.InsertVideoIfAbsent(ctx, &video)
	require.NoError(t, err)
	assert.True(t, inserted)
	require.NoError(t, tx.Commit())

	photos, videos, err := store.MessageMedia(ctx, fx.target.ID)
	require.NoError(t, err)
	assert.Len(t, photos, 1)
	assert.Len(t, videos, 1)
}

func TestCompleteMessageAppliesOutcome(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	bot := seedBot(t, store, "mod")
	fx := seedChat(t, store, bot.ID)

	tx, err := store.BeginIngest(ctx)
	require.NoError(t, err)
	trigger := &database.Message{
		ChatID: fx.chat.ID, FromUserID: fx.reporter.ID, ExternalID: 11,
		ReplyToExternalID: fx.target.ExternalID, SentAt: time.Now().UTC(), Text: "/toxic",
	}
	require.NoError(t, tx.InsertMessage(ctx, trigger))
	require.NoError(t, tx.Commit())

	for range 2 {
		require.NoError(t, store.CompleteMessage(ctx, database.MessageOutcome{
			MessageID:       trigger.ID,
			VerifyMessageID: fx.target.ID,
			Adjustments: []database.LedgerAdjustment{
				{Ledger: database.LedgerToxic, UserID: fx.reporter.ID, ChatID: fx.chat.ID, Delta: 1},
				{Ledger: database.LedgerKPI, UserID: fx.reporter.ID, ChatID: fx.chat.ID, Delta: -1},
			},
		}))
	}

	toxic, found, err := store.LedgerScore(ctx, database.LedgerToxic, fx.reporter.ID, fx.chat.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2.0, toxic)

	kpi, found, err := store.LedgerScore(ctx, database.LedgerKPI, fx.reporter.ID, fx.chat.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, -2.0, kpi)

	target, err := store.GetMessage(ctx, fx.target.ID)
	require.NoError(t, err)
	assert.True(t, target.VerifiedOnToxics)
	assert.False(t, target.Processed)

	processed, err := store.GetMessage(ctx, trigger.ID)
	require.NoError(t, err)
	assert.True(t, processed.Processed)
	assert.False(t, processed.VerifiedOnToxics)
}

func TestUnprocessedQueries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	bot := seedBot(t, store, "mod")
	fx := seedChat(t, store, bot.ID)

	chats, err := store.ChatsWithUnprocessed(ctx, bot.ID)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, fx.chat.ID, chats[0].ID)

	require.NoError(t, store.CompleteMessage(ctx, database.MessageOutcome{MessageID: fx.target.ID}))

	chats, err = store.ChatsWithUnprocessed(ctx, bot.ID)
	require.NoError(t, err)
	assert.Empty(t, chats)

	messages, err := store.UnprocessedMessages(ctx, fx.chat.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestLedgerEntriesOrderedByScore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	bot := seedBot(t, store, "mod")
	fx := seedChat(t, store, bot.ID)

	require.NoError(t, store.CompleteMessage(ctx, database.MessageOutcome{
		MessageID: fx.target.ID,
		Adjustments: []database.LedgerAdjustment{
			{Ledger: database.LedgerToxic, UserID: fx.reporter.ID, ChatID: fx.chat.ID, Delta: 1},
			{Ledger: database.LedgerToxic, UserID: fx.author.ID, ChatID: fx.chat.ID, Delta: 3},
			{Ledger: database.LedgerKPI, UserID: fx.reporter.ID, ChatID: fx.chat.ID, Delta: 5},
		},
	}))

	entries, err := store.LedgerEntries(ctx, database.LedgerToxic, fx.chat.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "alice", entries[0].Username)
	assert.Equal(t, 3.0, entries[0].Score)
	assert.Equal(t, "Rob", entries[1].FirstName)
	assert.Equal(t, 1.0, entries[1].Score)
}

func TestExtractDBNameFromPath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain path", input: "data/moderabot.db", expected: "data/moderabot.db"},
		{name: "file uri", input: "file:moderabot.db", expected: "moderabot.db"},
		{name: "query string", input: "moderabot.db?_pragma=foreign_keys(1)", expected: "moderabot.db"},
		{name: "escaped", input: "my%20bot.db", expected: "my bot.db"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, database.ExtractDBNameFromPath(tc.input))
		})
	}
}
