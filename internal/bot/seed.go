package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/edgard/moderabot/internal/config"
	"github.com/edgard/moderabot/internal/database"
)

// Seed upserts the configured bots and their handlers. Bots are matched by
// name and keep their id; handlers are matched by trigger within a bot and
// take their position from the order they are listed in. Chats, messages and
// ledgers are never touched.
func Seed(ctx context.Context, store database.Store, seed config.SeedConfig, logger *slog.Logger) ([]database.Bot, error) {
	log := logger.With("component", "seed")
	bots := make([]database.Bot, 0, len(seed.Bots))

	for _, sb := range seed.Bots {
		bot := database.Bot{
			ID:                   uuid.NewString(),
			Name:                 sb.Name,
			Token:                sb.Token,
			IsActive:             sb.Active,
			UsePolling:           sb.Polling(),
			WebhookURL:           sb.WebhookURL,
			ClassifierAPIKey:     sb.ClassifierAPIKey,
			ToxicityCheckEnabled: sb.ToxicityCheckEnabled,
		}
		if err := store.UpsertBot(ctx, &bot); err != nil {
			return nil, fmt.Errorf("failed to seed bot %q: %w", sb.Name, err)
		}

		for i, sh := range sb.Handlers {
			handler := database.Handler{
				BotID:      bot.ID,
				ExternalID: sh.Trigger,
				Name:       sh.Name,
				Type:       sh.Type,
				Code:       sh.Code,
				Text:       sh.Text,
				IsActive:   sh.Active,
				Position:   i,
			}
			if err := store.UpsertHandler(ctx, &handler); err != nil {
				return nil, fmt.Errorf("failed to seed handler %q of bot %q: %w", sh.Trigger, sb.Name, err)
			}
		}

		log.InfoContext(ctx, "Bot seeded",
			"bot_id", bot.ID,
			"bot_name", bot.Name,
			"active", bot.IsActive,
			"use_polling", bot.UsePolling,
			"handlers", len(sb.Handlers))
		bots = append(bots, bot)
	}

	return bots, nil
}
