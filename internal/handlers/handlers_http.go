package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"mathrush-backend/api"
	errs "mathrush-backend/internal/errors"
	"mathrush-backend/internal/game"
)

// HealthHandler reports process liveness.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		res := api.HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UnixMilli(),
		}
		if err := json.NewEncoder(w).Encode(res); err != nil {
			slog.Error("health response encode", slog.Any("error", err))
		}
	}
}

// LeaderboardHandler serves the ranked leaderboard snapshot to clients
// without an active websocket, typically on initial page load.
func LeaderboardHandler(coordinator *game.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		entries, err := coordinator.Leaderboard(ctx)
		if err != nil {
			errs.WriteHTTPError(ctx, w, errs.HTTPStoreUnavailableError(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		res := api.LeaderboardResponseData{Entries: entries}
		if err := json.NewEncoder(w).Encode(res); err != nil {
			slog.Error("leaderboard response encode", slog.Any("error", err))
		}
	}
}
