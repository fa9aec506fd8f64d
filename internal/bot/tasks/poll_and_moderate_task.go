package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/edgard/moderabot/internal/database"
	"github.com/edgard/moderabot/internal/fanout"
)

// newPollAndModerateTask creates the tick task: ingest every active polling
// bot in parallel, wait for all of them, then moderate every bot in parallel.
// A bot failing in either phase does not hold back the others.
func newPollAndModerateTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "poll_and_moderate")
	limit := deps.Config.Scheduler.MaxParallelBots

	return func(ctx context.Context) error {
		startTime := time.Now()

		bots, err := deps.Store.ListPollingBots(ctx)
		if err != nil {
			log.ErrorContext(ctx, "Failed to list polling bots", "error", err)
			return fmt.Errorf("failed to list polling bots: %w", err)
		}
		if len(bots) == 0 {
			log.DebugContext(ctx, "No active polling bots")
			return nil
		}

		ingestFailures := fanout.Run(ctx, log, limit, perBot(bots, func(ctx context.Context, bot database.Bot) error {
			_, err := deps.Ingester.Tick(ctx, bot)
			return err
		}))

		if ctx.Err() != nil {
			log.InfoContext(ctx, "Tick cancelled after ingestion", "error", ctx.Err())
			return ctx.Err()
		}

		moderationFailures := fanout.Run(ctx, log, limit, perBot(bots, deps.Moderator.RunBot))

		log.DebugContext(ctx, "Tick finished",
			"bots", len(bots),
			"ingest_failures", ingestFailures,
			"moderation_failures", moderationFailures,
			"duration", time.Since(startTime))

		if ingestFailures+moderationFailures > 0 {
			return fmt.Errorf("tick finished with %d ingestion and %d moderation failures", ingestFailures, moderationFailures)
		}
		return nil
	}
}

func perBot(bots []database.Bot, fn func(ctx context.Context, bot database.Bot) error) []fanout.Unit {
	units := make([]fanout.Unit, 0, len(bots))
	for _, b := range bots {
		units = append(units, fanout.Unit{
			Name: "bot " + b.Name,
			Run:  func(ctx context.Context) error { return fn(ctx, b) },
		})
	}
	return units
}
