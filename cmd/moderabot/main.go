// Package main contains the entrypoint for the moderabot service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgard/moderabot/internal/bot"
	"github.com/edgard/moderabot/internal/bot/tasks"
	"github.com/edgard/moderabot/internal/classifier"
	"github.com/edgard/moderabot/internal/config"
	"github.com/edgard/moderabot/internal/database"
	"github.com/edgard/moderabot/internal/ingest"
	"github.com/edgard/moderabot/internal/logger"
	"github.com/edgard/moderabot/internal/moderation"
	"github.com/edgard/moderabot/internal/scoring"
	"github.com/edgard/moderabot/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := 0
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		exitCode = 1
	}
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "moderabot",
		Short:         "Telegram chat ingestion and moderation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runService(cmd.Context(), configPath)
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "./config.yaml", "Path to configuration file")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Start polling and moderating (default)",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runService(cmd.Context(), configPath)
			},
		},
		newMigrateCommand(&configPath),
		newCheckKeyCommand(&configPath),
	)

	return cmd
}

// setup loads configuration and installs the configured logger.
func setup(configPath string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", configPath, "error", err)
		return nil, nil, err
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)
	return cfg, log, nil
}

// runService initializes and starts all components (config, logger, db,
// classifier, telegram clients, scheduler) and blocks until ctx is cancelled.
func runService(ctx context.Context, configPath string) error {
	cfg, log, err := setup(configPath)
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return err
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	if _, err := bot.Seed(ctx, store, cfg.Seed, log); err != nil {
		log.Error("Failed to seed bots", "error", err)
		return err
	}

	cls, err := classifier.New(cfg.Classifier, log)
	if err != nil {
		log.Error("Failed to initialize classifier", "error", err)
		return err
	}

	senders := telegram.NewClients(cfg.Telegram.APIURL, log)
	poller := telegram.NewPoller(cfg.Telegram.APIURL, cfg.Telegram.RequestTimeout, cfg.Telegram.UpdatesLimit, log)
	responder := scoring.NewResponder(store, senders, cfg.Leaderboard, cfg.Messages, log)

	tDeps := tasks.TaskDeps{
		Logger:   log,
		Store:    store,
		Ingester: ingest.NewLoop(store, poller, responder, cfg.Telegram.PollTimeout, log),
		Moderator: moderation.NewEngine(store, senders, cls, cfg.Messages, cfg.Quiz,
			cfg.Scheduler.MaxParallelChats, log),
		Config: cfg,
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return err
	}
	app := bot.NewBot(log, store, cls, sched)

	log.Info("Starting moderabot...")
	runErr := app.Run(ctx) // Run blocks until context is cancelled or an error occurs
	log.Info("Run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Stopped due to error", "error", runErr)
		// Allow logs to flush before exiting on error
		time.Sleep(time.Second)
		return runErr
	}

	log.Info("Stopped gracefully.")
	return nil
}

func newMigrateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(*configPath)
			if err != nil {
				return err
			}
			db, err := database.NewDB(cfg.Database.Path)
			if err != nil {
				log.Error("Failed to migrate database", "path", cfg.Database.Path, "error", err)
				return err
			}
			database.CloseDB(db)
			return nil
		},
	}
}

func newCheckKeyCommand(configPath *string) *cobra.Command {
	var provider, key string

	cmd := &cobra.Command{
		Use:   "check-key",
		Short: "Check that a classifier API key is accepted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(*configPath)
			if err != nil {
				return err
			}
			if provider != "" {
				cfg.Classifier.Provider = provider
			}

			cls, err := classifier.New(cfg.Classifier, log)
			if err != nil {
				return err
			}
			if err := cls.Validate(cmd.Context(), key); err != nil {
				log.Error("Classifier key rejected", "provider", cfg.Classifier.Provider, "error", err)
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s key is valid\n", cfg.Classifier.Provider)
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Classifier provider (deepseek or gemini), defaults to the configured one")
	cmd.Flags().StringVar(&key, "key", "", "API key to check")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}
