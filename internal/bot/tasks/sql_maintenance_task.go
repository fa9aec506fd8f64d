package tasks

import (
	"context"
	"fmt"
	"time"
)

// newSQLMaintenanceTask reports chats still waiting for moderation, then
// compacts the database file.
func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "sql_maintenance")

	return func(ctx context.Context) error {
		started := time.Now()

		bots, err := deps.Store.ListPollingBots(ctx)
		if err != nil {
			return fmt.Errorf("failed to list polling bots: %w", err)
		}
		for _, bot := range bots {
			chats, err := deps.Store.ChatsWithUnprocessed(ctx, bot.ID)
			if err != nil {
				return fmt.Errorf("failed to count backlog of bot %s: %w", bot.Name, err)
			}
			if len(chats) > 0 {
				log.WarnContext(ctx, "Moderation backlog before compaction", "bot", bot.Name, "pending_chats", len(chats))
			}
		}

		if err := deps.Store.RunSQLMaintenance(ctx); err != nil {
			log.ErrorContext(ctx, "Database compaction failed", "error", err, "duration", time.Since(started))
			return fmt.Errorf("sql maintenance failed: %w", err)
		}

		log.InfoContext(ctx, "Database compacted", "bots", len(bots), "duration", time.Since(started))
		return nil
	}
}
