package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/sweepscope/internal/config"
	"github.com/rewired-gh/sweepscope/internal/logger"
	"github.com/rewired-gh/sweepscope/internal/storage"
	"github.com/rewired-gh/sweepscope/internal/telegram"
)

// app carries what every subcommand needs after the root pre-run.
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		cancel()
		logger.Fatal("%v", err)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "sweepscope",
		Short:         "Detect liquidity sweeps and probe order flow on exchange trade data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to configuration file (defaults and SWEEPSCOPE_* env when empty)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override logging.level")

	root.AddCommand(
		detectCmd(a),
		scanCmd(a),
		backtestCmd(a),
		probeCmd(a),
		liveCmd(a),
		fetchCmd(a),
		runsCmd(a),
		reportCmd(),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if a.configPath != "" {
		logger.Debug("Configuration loaded from %s", a.configPath)
	}
	return nil
}

// openStore returns nil when storage is disabled.
func (a *app) openStore() (*storage.Storage, error) {
	if !a.cfg.Storage.Enabled {
		logger.Debug("Storage disabled")
		return nil, nil
	}
	store, err := storage.New(a.cfg.Storage.MaxRuns, a.cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

func closeStore(store *storage.Storage) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		logger.Error("Failed to close storage: %v", err)
	}
}

// openTelegram returns nil when notifications are disabled.
func (a *app) openTelegram() (*telegram.Client, error) {
	if !a.cfg.Telegram.Enabled {
		logger.Debug("Telegram notifications disabled")
		return nil, nil
	}
	tg, err := telegram.NewClient(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID,
		a.cfg.Telegram.MaxRetries, a.cfg.Telegram.RetryDelayBase)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram client: %w", err)
	}
	logger.Info("Telegram client initialized successfully")
	return tg, nil
}

// startRun registers a run, or returns "" when storage is off or the insert fails.
func startRun(store *storage.Storage, kind, symbol string, params any) string {
	if store == nil {
		return ""
	}
	run, err := store.CreateRun(kind, symbol, params)
	if err != nil {
		logger.Warn("Failed to record %s run: %v", kind, err)
		return ""
	}
	logger.Info("Recording %s run %s", kind, run.ID)
	return run.ID
}
