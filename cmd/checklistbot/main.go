package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/dailycheck/checklistbot/internal/bot"
	"github.com/dailycheck/checklistbot/internal/config"
	"github.com/dailycheck/checklistbot/internal/daemon"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Run struct {
		DataDir string `short:"d" help:"Override the configured data directory"`
	} `cmd:"" help:"Run the bot daemon: dispatcher, daily-reset scheduler and metrics endpoint"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	Migrate struct{} `cmd:"" help:"Load the store, apply schema migrations and print a report"`
}

func main() {
	ctx := kong.Parse(&CLI)

	switch ctx.Command() {
	case "run":
		cfg, err := loadConfig()
		if err != nil {
			slog.Error("Failed to load configuration", "error", err)
			os.Exit(1)
		}
		if CLI.Run.DataDir != "" {
			cfg.DataDir = CLI.Run.DataDir
		}
		if err := runDaemon(cfg); err != nil {
			slog.Error("Daemon failed", "error", err)
			os.Exit(1)
		}
	case "init":
		setupLogging(nil)
		slog.Info("Initializing configuration", "path", CLI.Config, "force", CLI.Init.Force)
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", "error", err)
			os.Exit(1)
		}
	case "migrate":
		cfg, err := loadConfig()
		if err != nil {
			slog.Error("Failed to load configuration", "error", err)
			os.Exit(1)
		}
		if err := runMigrate(cfg); err != nil {
			slog.Error("Migrate failed", "error", err)
			os.Exit(1)
		}
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		setupLogging(nil)
		return nil, err
	}
	setupLogging(cfg)
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	format := config.LogFormatText
	if cfg != nil {
		level = config.NormalizeLogLevel(cfg.Logging.Level).SlogLevel()
		format = config.NormalizeLogFormat(cfg.Logging.Format)
	}
	if CLI.Verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func runDaemon(cfg *config.Config) error {
	slog.Info("Starting daemon mode", "data_dir", cfg.DataDir)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The concrete chat and payment bindings attach here; until then
	// outbound traffic is logged.
	d, err := daemon.NewDaemon(cfg, CLI.Config, bot.LoggingTransport{}, bot.LoggingPayments{})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	slog.Info("Daemon started, waiting for shutdown signal...")
	<-ctx.Done()
	slog.Info("Shutdown signal received, stopping daemon...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()

	if err := d.Stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	slog.Info("Daemon stopped successfully")
	return nil
}

func runMigrate(cfg *config.Config) error {
	d, err := daemon.NewDaemon(cfg, "", bot.LoggingTransport{}, bot.LoggingPayments{})
	if err != nil {
		return err
	}
	report := d.MigrationReport()
	slog.Info("Store migration report",
		"detected_version", report.DetectedVersion,
		"users_total", report.UsersTotal,
		"users_migrated", report.UsersMigrated,
		"users_backfilled", report.UsersBackfilled,
		"changed", report.Changed())
	return nil
}
