package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mosskim/gembot/internal/ai"
	"github.com/mosskim/gembot/internal/chat"
	"github.com/mosskim/gembot/internal/config"
	"github.com/mosskim/gembot/internal/db"
	"github.com/mosskim/gembot/internal/httpapi"
	"github.com/mosskim/gembot/internal/logging"
	"github.com/mosskim/gembot/internal/store"
	"github.com/mosskim/gembot/internal/telegram"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(cfg.Log)
	defer logger.Sync()

	gdb, err := db.Open(cfg.Store)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	if err := db.Migrate(gdb); err != nil {
		logger.Fatal("migrate database", zap.Error(err))
	}

	st := store.New(gdb,
		store.WithBusyTimeout(cfg.Store.BusyTimeout),
		store.WithLogger(logger))
	defer st.Close()

	reg := ai.NewRegistry()
	reg.Register("gemini", func(ctx context.Context) (ai.Provider, error) {
		return ai.NewGeminiProvider(cfg.Gemini), nil
	})
	reg.Register("ollama", func(ctx context.Context) (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.AI.OllamaBaseURL, cfg.AI.OllamaModel), nil
	})

	svc := chat.NewService(st, reg, cfg.AI.Provider, cfg.AI.ContextWindow, logger)

	bot, err := telegram.NewBot(cfg.Telegram, svc, logger)
	if err != nil {
		logger.Fatal("create telegram bot", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: httpapi.NewRouter(st, cfg.HTTP, logger),
	}
	go func() {
		logger.Info("admin api listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin api", zap.Error(err))
		}
	}()

	if cfg.Store.RetentionDays > 0 {
		go retentionLoop(ctx, st, cfg.Store.RetentionDays, logger)
	}

	if err := bot.Run(ctx); err != nil {
		logger.Error("bot stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin api shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// retentionLoop purges expired messages once a day. The first purge runs
// shortly after startup so restarts don't postpone cleanup.
func retentionLoop(ctx context.Context, st *store.Store, days int, logger *zap.Logger) {
	timer := time.NewTimer(time.Minute)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		n, err := st.PurgeOlderThan(ctx, days)
		if err != nil {
			logger.Error("retention purge", zap.Error(err))
		} else if n > 0 {
			logger.Info("retention purge", zap.Int("days", days), zap.Int64("deleted", n))
		}
		timer.Reset(24 * time.Hour)
	}
}
