package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"mathrush-backend/api"
	"mathrush-backend/internal/config"
	errs "mathrush-backend/internal/errors"
	"mathrush-backend/internal/game"
	"mathrush-backend/internal/rate"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const maxDisplayNameRunes = 30

// QuizHandler upgrades clients to websocket and serves the quiz protocol:
// join, submitAnswer and leaderboard requests against the one always-on
// round loop.
type QuizHandler struct {
	cfg         config.Config
	coordinator *game.Coordinator
	registry    *game.Registry
	acceptOpts  websocket.AcceptOptions
}

func NewQuizHandler(cfg config.Config, coordinator *game.Coordinator, registry *game.Registry, acceptOpts websocket.AcceptOptions) QuizHandler {
	return QuizHandler{
		cfg:         cfg,
		coordinator: coordinator,
		registry:    registry,
		acceptOpts:  acceptOpts,
	}
}

func (h QuizHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &h.acceptOpts)
	if err != nil {
		// Accept already writes a status code and error message.
		slog.Error("websocket accept", slog.Any("error", err))
		return
	}
	conn.SetReadLimit(h.cfg.Quiz.WebsocketReadLimit)

	ctx := r.Context()
	h.registry.AddConn(conn)

	go ping(ctx, conn, 5*time.Second) // Detect timed out connection.
	defer h.handleDisconnect(ctx, conn)

	h.coordinator.BroadcastPlayerCount(ctx)

	// One limiter per connection: a flood of guesses only throttles the
	// flooding client.
	limiter := rate.NewLimiter(h.cfg.Quiz.SubmitRateWindow, h.cfg.Quiz.SubmitRateLimit)

	for {
		req := api.Request[json.RawMessage]{}
		err := wsjson.Read(ctx, conn, &req)
		if err != nil {
			if websocket.CloseStatus(err) == -1 { // -1 is considered as an err unrelated to closing.
				timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				errs.WriteWebsocketError(timeoutCtx, conn, errs.InvalidRequestError(err, api.RequestTypeUnknown, "could not read websocket frame"))
				cancel()
			} else {
				slog.Debug("websocket closed", slog.Any("error", err))
			}
			return
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)

		switch req.Type {
		case api.RequestTypeJoin:
			h.handleJoin(timeoutCtx, conn, req.Data)
		case api.RequestTypeSubmitAnswer:
			h.handleSubmit(timeoutCtx, conn, limiter, req.Data)
		case api.RequestTypeLeaderboard:
			h.handleLeaderboard(timeoutCtx, conn)
		default:
			err := fmt.Errorf("unknown request: %s", req.Type)
			errs.WriteWebsocketError(timeoutCtx, conn, errs.InvalidRequestError(err, api.RequestTypeUnknown, err.Error()))
		}

		cancel()
	}
}

func (h QuizHandler) handleJoin(ctx context.Context, conn *websocket.Conn, data json.RawMessage) {
	req, err := api.DecodeJSON[api.JoinRequestData](data)
	if err != nil {
		errs.WriteWebsocketError(ctx, conn, errs.InvalidRequestError(err, api.RequestTypeJoin, "invalid join request"))
		return
	}

	displayName, err := validateDisplayName(req.DisplayName)
	if err != nil {
		fields := map[string]string{"displayName": err.Error()}
		errs.WriteWebsocketError(ctx, conn, errs.InputValidationError(err, api.RequestTypeJoin, fields))
		return
	}

	// Reuse the client-held participant id so scores survive reconnects,
	// mint a fresh one on first join.
	participantID := strings.TrimSpace(req.ParticipantID)
	if participantID == "" {
		participantID = uuid.NewString()
	}

	// A repeat join on the same connection for the same participant is a
	// rename and keeps the live session.
	session, ok := h.registry.Get(conn)
	if ok && session.ParticipantID() == participantID {
		session.SetDisplayName(displayName)
	} else {
		session = game.NewSession(participantID, displayName)
		h.registry.Join(conn, session)
	}

	slog.InfoContext(ctx, "participant joined",
		slog.String("session_id", session.ID()),
		slog.String("participant_id", participantID),
		slog.String("display_name", displayName))

	res := api.Response[api.JoinedResponseData]{
		Type: api.ResponseTypeJoined,
		Data: api.JoinedResponseData{
			ParticipantID: participantID,
			DisplayName:   displayName,
		},
	}
	if err := wsjson.Write(ctx, conn, res); err != nil {
		slog.Error("joined response write", slog.Any("error", err))
		return
	}

	if snapshot, ok, err := h.coordinator.RoundSnapshot(ctx); err != nil {
		slog.Error("round snapshot read", slog.Any("error", err))
	} else if ok {
		res := api.Response[api.RoundResponseData]{
			Type: api.ResponseTypeRound,
			Data: snapshot,
		}
		if err := wsjson.Write(ctx, conn, res); err != nil {
			slog.Error("round snapshot write", slog.Any("error", err))
		}
	}

	h.writeLeaderboard(ctx, conn)
	h.coordinator.BroadcastPlayerCount(ctx)
}

func (h QuizHandler) handleSubmit(ctx context.Context, conn *websocket.Conn, limiter *rate.Limiter, data json.RawMessage) {
	session, ok := h.registry.Get(conn)
	if !ok {
		errs.WriteWebsocketError(ctx, conn, errs.NotJoinedError(api.RequestTypeSubmitAnswer))
		return
	}

	if !limiter.Allow() {
		errs.WriteWebsocketError(ctx, conn, errs.ThrottledError(api.RequestTypeSubmitAnswer))
		return
	}

	req, err := api.DecodeJSON[api.SubmitAnswerRequestData](data)
	if err != nil {
		errs.WriteWebsocketError(ctx, conn, errs.InvalidRequestError(err, api.RequestTypeSubmitAnswer, "invalid submit request"))
		return
	}
	if strings.TrimSpace(string(req.Value)) == "" {
		fields := map[string]string{"value": "answer cannot be empty"}
		errs.WriteWebsocketError(ctx, conn, errs.InputValidationError(nil, api.RequestTypeSubmitAnswer, fields))
		return
	}

	result, err := h.coordinator.Submit(ctx, session.ParticipantID(), session.DisplayName(), string(req.Value))
	if errors.Is(err, game.ErrNotANumber) {
		fields := map[string]string{"value": err.Error()}
		errs.WriteWebsocketError(ctx, conn, errs.InputValidationError(err, api.RequestTypeSubmitAnswer, fields))
		return
	}
	if err != nil {
		errs.WriteWebsocketError(ctx, conn, errs.StoreUnavailableError(err, api.RequestTypeSubmitAnswer))
		return
	}

	res := api.Response[api.AnswerResultResponseData]{
		Type: api.ResponseTypeAnswerResult,
		Data: api.AnswerResultResponseData{
			Outcome:       result.Outcome,
			Message:       result.Message,
			CorrectAnswer: result.CorrectAnswer,
			WinnerName:    result.WinnerName,
		},
	}
	if err := wsjson.Write(ctx, conn, res); err != nil {
		slog.Error("answer result write",
			slog.String("session_id", session.ID()),
			slog.Any("error", err))
	}
}

func (h QuizHandler) handleLeaderboard(ctx context.Context, conn *websocket.Conn) {
	h.writeLeaderboard(ctx, conn)
}

func (h QuizHandler) writeLeaderboard(ctx context.Context, conn *websocket.Conn) {
	entries, err := h.coordinator.Leaderboard(ctx)
	if err != nil {
		errs.WriteWebsocketError(ctx, conn, errs.StoreUnavailableError(err, api.RequestTypeLeaderboard))
		return
	}
	res := api.Response[api.LeaderboardResponseData]{
		Type: api.ResponseTypeLeaderboard,
		Data: api.LeaderboardResponseData{Entries: entries},
	}
	if err := wsjson.Write(ctx, conn, res); err != nil {
		slog.Error("leaderboard write", slog.Any("error", err))
	}
}

func (h QuizHandler) handleDisconnect(ctx context.Context, conn *websocket.Conn) {
	session, joined := h.registry.Get(conn)
	h.registry.Remove(conn)
	conn.CloseNow()

	if joined {
		slog.InfoContext(ctx, "participant disconnected",
			slog.String("session_id", session.ID()),
			slog.String("display_name", session.DisplayName()))
	}

	timeoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	h.coordinator.BroadcastPlayerCount(timeoutCtx)
}

func validateDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("display name is required")
	}
	if utf8.RuneCountInString(name) > maxDisplayNameRunes {
		runes := []rune(name)
		name = string(runes[:maxDisplayNameRunes])
	}
	return name, nil
}

func ping(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := conn.Ping(timeoutCtx); err != nil {
				slog.Debug("ping failed, closing conn", slog.Any("error", err))
				conn.CloseNow()
				cancel()
				return
			}
			cancel()
		case <-ctx.Done():
			return
		}
	}
}
