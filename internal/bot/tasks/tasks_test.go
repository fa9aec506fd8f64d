package tasks_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/moderabot/internal/bot/tasks"
	"github.com/edgard/moderabot/internal/config"
	"github.com/edgard/moderabot/internal/database"
	"github.com/edgard/moderabot/internal/ingest"
)

// journal records ingestion and moderation calls in order.
type journal struct {
	mu         sync.Mutex
	events     []string
	failIngest string
}

func (j *journal) add(event string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, event)
}

func (j *journal) Tick(_ context.Context, bot database.Bot) (ingest.Result, error) {
	j.add("ingest " + bot.Name)
	if bot.Name == j.failIngest {
		return ingest.Result{}, errors.New("fetch failed")
	}
	return ingest.Result{}, nil
}

func (j *journal) RunBot(_ context.Context, bot database.Bot) error {
	j.add("moderate " + bot.Name)
	return nil
}

func newDeps(t *testing.T, j *journal, names ...string) tasks.TaskDeps {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })
	store := database.NewStore(db, nil)

	for _, name := range names {
		b := database.Bot{ID: name + "-id", Name: name, Token: name + "-token", IsActive: true, UsePolling: true}
		require.NoError(t, store.UpsertBot(context.Background(), &b))
	}

	return tasks.TaskDeps{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:     store,
		Ingester:  j,
		Moderator: j,
		Config:    &config.Config{Scheduler: config.SchedulerConfig{MaxParallelBots: 2, MaxParallelChats: 2}},
	}
}

func TestRegisterAllTasks(t *testing.T) {
	t.Parallel()

	registered := tasks.RegisterAllTasks(newDeps(t, &journal{}))
	assert.Contains(t, registered, config.TaskPollAndModerate)
	assert.Contains(t, registered, config.TaskSQLMaintenance)
}

func TestPollAndModerateIngestsAllBotsFirst(t *testing.T) {
	t.Parallel()

	j := &journal{}
	task := tasks.RegisterAllTasks(newDeps(t, j, "a", "b", "c"))[config.TaskPollAndModerate]

	require.NoError(t, task(context.Background()))

	require.Len(t, j.events, 6)
	assert.ElementsMatch(t, []string{"ingest a", "ingest b", "ingest c"}, j.events[:3])
	assert.ElementsMatch(t, []string{"moderate a", "moderate b", "moderate c"}, j.events[3:])
}

func TestPollAndModerateIsolatesFailingBot(t *testing.T) {
	t.Parallel()

	j := &journal{failIngest: "b"}
	task := tasks.RegisterAllTasks(newDeps(t, j, "a", "b"))[config.TaskPollAndModerate]

	err := task(context.Background())
	require.Error(t, err)
	assert.Contains(t, j.events, "moderate a")
	assert.Contains(t, j.events, "moderate b")
}

func TestPollAndModerateWithoutBots(t *testing.T) {
	t.Parallel()

	j := &journal{}
	task := tasks.RegisterAllTasks(newDeps(t, j))[config.TaskPollAndModerate]

	require.NoError(t, task(context.Background()))
	assert.Empty(t, j.events)
}

func TestSQLMaintenance(t *testing.T) {
	t.Parallel()

	task := tasks.RegisterAllTasks(newDeps(t, &journal{}, "a"))[config.TaskSQLMaintenance]
	require.NoError(t, task(context.Background()))
}

func TestSQLMaintenanceCancelled(t *testing.T) {
	t.Parallel()

	task := tasks.RegisterAllTasks(newDeps(t, &journal{}, "a"))[config.TaskSQLMaintenance]

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, task(ctx))
}
