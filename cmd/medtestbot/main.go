package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mikhailstasyuk/medtesthelper-bot/internal/bot"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/common"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/export"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/extract"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/llm"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/repository"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/telegram"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel()}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repository.Migrate(ctx, db); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database schema ready")

	repo := repository.NewRepository(db, logger)
	extractor := extract.NewExtractor(cfg.Extract, logger)
	chat := llm.NewGroqClient(cfg.LLM, logger)
	transformer := llm.NewTransformer(chat, cfg.LLM, logger)
	exporter := export.NewService(logger)

	handler := bot.NewHandler(extractor, transformer, chat, repo, exporter, logger)
	dispatcher := bot.NewDispatcher(handler, logger)

	tg, err := telegram.New(cfg.Telegram, dispatcher, logger)
	if err != nil {
		logger.Error("telegram bot init failed", "error", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		tg.Stop()
	}()

	tg.Start()
	logger.Info("stopped")
}

func logLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "DEBUG", "debug":
		return slog.LevelDebug
	case "WARN", "warn":
		return slog.LevelWarn
	case "ERROR", "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
