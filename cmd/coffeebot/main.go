package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/susu3304/coffeebot/internal/api"
	"github.com/susu3304/coffeebot/internal/bot"
	"github.com/susu3304/coffeebot/internal/coffee"
	"github.com/susu3304/coffeebot/internal/config"
	"github.com/susu3304/coffeebot/internal/db"
	"github.com/susu3304/coffeebot/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "coffeebot",
		Short:         "Discord bot for shared coffee cards and group orders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Discord bot, the HTTP API and the debt reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			database, err := db.New(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := database.RunMigrations(cmd.Context()); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			logger.Info("schema is up to date")
			return nil
		},
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func serve(ctx context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	discordBot, err := bot.New(cfg.DiscordToken, database, logger, bot.Options{
		PageSize:         cfg.PageSize,
		Turn:             coffee.TurnConfig{Timeout: cfg.TurnTimeout, MaxIdleTurns: cfg.MaxIdleTurns},
		ReminderInterval: cfg.ReminderInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to create discord bot: %w", err)
	}
	if !cfg.WebEnabled() {
		logger.Warn("DISCORD_CLIENT_ID not set, web login is disabled")
	}
	apiServer := api.New(cfg, database, discordBot.Coordinator(), logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return discordBot.Run(ctx) })
	g.Go(func() error { return apiServer.Run(ctx) })

	err = g.Wait()
	logger.Info("shut down", zap.Error(err))
	return err
}
