package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/CedricFinance/pollwatch"
	"github.com/CedricFinance/pollwatch/config"
	"github.com/CedricFinance/pollwatch/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer slash commands and watch the subscribed polls",
	Long: `Start the HTTP server for the Slack slash commands and the monitor that
re-checks subscribed polls.

The server runs until interrupted (Ctrl+C) or it receives SIGTERM; the
subscriptions are written to the store one last time before exiting.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file")
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.GetLogLevel(), cfg.GetLogEncoding())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := pollwatch.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}

	if err := app.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
