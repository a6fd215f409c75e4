// ====================================
// File: cmd/bot/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/pharos-bot/internal/bot"
	"github.com/rovshanmuradov/pharos-bot/internal/config"
	"github.com/rovshanmuradov/pharos-bot/internal/logger"
	"github.com/rovshanmuradov/pharos-bot/internal/ui"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	envFile := flag.String("env", ".env", "Optional env file with PHAROS_BOT_* overrides")
	cycles := flag.Int("cycles", 0, "Number of sweeps to run, 0 runs until interrupted")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.New(&logger.Config{
		LogFile:     cfg.LogFile,
		MaxSize:     100,
		MaxAge:      7,
		MaxBackups:  3,
		Compress:    true,
		Development: cfg.DebugLogging,
	})
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(appLogger)
	}()

	appLogger.Info("🚀 Starting Pharos testnet bot",
		zap.Int("workers", cfg.Workers),
		zap.Int("loop_count", cfg.LoopCount),
		zap.Duration("cycle_interval", cfg.CycleInterval))

	runner := bot.NewRunner(cfg, appLogger)
	ui.NewPresenter(os.Stdout).Attach(runner.Events())

	opts := bot.RunOptions{Cycles: *cycles}
	if cfg.LiveCountdown {
		opts.Waiter = ui.CountdownWaiter{}
	}

	runErr := runner.Run(rootCtx, opts)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := runner.Close(shutdownCtx); err != nil {
		appLogger.Warn("Shutdown finished with errors", zap.Error(err))
	}

	if runErr != nil {
		appLogger.Error("💥 Bot stopped with error", zap.Error(runErr))
		_ = logger.Sync(appLogger)
		os.Exit(1)
	}
	appLogger.Info("🛑 Bot stopped")
}
