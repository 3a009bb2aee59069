package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mathrush-backend/internal/config"
	"mathrush-backend/internal/game"
	"mathrush-backend/internal/handlers"
	"mathrush-backend/internal/middleware"
	"mathrush-backend/internal/question"
	"mathrush-backend/internal/store"

	"github.com/coder/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.LoadConfig("") // TODO: config flags
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Debug {
		middleware.EnableDebug()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	st := store.New(pool, slog.Default())
	if err := st.Bootstrap(ctx); err != nil {
		log.Fatal(err)
	}

	registry := game.NewRegistry()
	coordinator := game.NewCoordinator(st, st, question.NewGenerator(), registry, cfg.Quiz, slog.Default())
	if err := coordinator.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer coordinator.Stop()

	acceptOpts := websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // Accepting all requests
	}
	quizHandler := handlers.NewQuizHandler(cfg, coordinator, registry, acceptOpts)

	mux := http.NewServeMux()
	mux.Handle("GET /quiz", quizHandler)
	mux.Handle("GET /health", handlers.HealthHandler())
	mux.Handle("GET /api/leaderboard", handlers.LeaderboardHandler(coordinator))

	srv := http.Server{
		Addr:        cfg.Addr,
		Handler:     middleware.ApplyDefaults(mux),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		slog.Info("listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", slog.Any("error", err))
	}
	registry.Close()
}
