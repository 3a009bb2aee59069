// Package game owns the round lifecycle: opening questions, adjudicating
// concurrently arriving answers and fanning lifecycle events out to every
// live session.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"mathrush-backend/api"
	"mathrush-backend/internal/config"
	"mathrush-backend/internal/question"
	"mathrush-backend/internal/store"
)

// answerTolerance absorbs float rounding in generated questions. Submissions
// are never compared for exact equality.
const answerTolerance = 0.01

// ErrNotANumber rejects submissions that do not parse to a finite number.
// Nothing is persisted for such a submission.
var ErrNotANumber = errors.New("answer is not a finite number")

// RoundStore is the durable round state contract. ClaimWin must be atomic
// with respect to concurrent callers: for any round at most one call may
// return true.
type RoundStore interface {
	InsertQuestion(ctx context.Context, expression string, answer float64, tier int) (int64, error)
	OpenRound(ctx context.Context, questionID int64) error
	CurrentRound(ctx context.Context) (store.Round, bool, error)
	QuestionByID(ctx context.Context, id int64) (store.Question, error)
	ClaimWin(ctx context.Context, participantID, displayName string) (bool, error)
}

// ScoreStore is the durable score contract. Both record operations must be
// safe to call concurrently for different participants.
type ScoreStore interface {
	RecordAttempt(ctx context.Context, participantID, displayName string) error
	RecordWin(ctx context.Context, participantID, displayName string) error
	Leaderboard(ctx context.Context, limit int) ([]store.ScoreRow, error)
}

// Broadcaster delivers server-originated events to every live session.
type Broadcaster interface {
	Broadcast(ctx context.Context, v any) error
	Count() int
}

// Result is the per-submission adjudication outcome returned to the
// submitting session. A lost race is a normal outcome, not an error, and is
// distinguishable from a plain incorrect answer.
type Result struct {
	Outcome       string
	Message       string
	CorrectAnswer *float64
	WinnerName    string
}

// Coordinator drives the round state machine. It holds no cached round
// state across operations: every adjudication re-reads the store, and the
// store's conditional update is the only serialization point.
type Coordinator struct {
	rounds RoundStore
	scores ScoreStore
	gen    *question.Generator
	caster Broadcaster
	cfg    config.QuizConf
	log    *slog.Logger

	// mu guards the next-round timer only.
	mu    sync.Mutex
	timer *time.Timer
}

func NewCoordinator(rounds RoundStore, scores ScoreStore, gen *question.Generator, caster Broadcaster, cfg config.QuizConf, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		rounds: rounds,
		scores: scores,
		gen:    gen,
		caster: caster,
		cfg:    cfg,
		log:    logger,
	}
}

// Start brings the round state machine up. A fresh database gets its first
// question; a round left answered by a previous process gets its next round
// scheduled so the match cannot wedge.
func (c *Coordinator) Start(ctx context.Context) error {
	state, ok, err := c.rounds.CurrentRound(ctx)
	if err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	if !ok {
		return c.OpenNextRound(ctx)
	}
	if state.Phase == store.PhaseAnswered {
		c.scheduleNextRound(false)
	}
	return nil
}

// Stop cancels any pending round advance.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// OpenNextRound generates the next question, makes it the active round and
// broadcasts the new round snapshot. It is driven by the single
// timer/sequencer and is never invoked concurrently with itself.
func (c *Coordinator) OpenNextRound(ctx context.Context) error {
	q := c.gen.Next()

	id, err := c.rounds.InsertQuestion(ctx, q.Expression, q.Answer, q.Tier)
	if err != nil {
		return fmt.Errorf("open round: %w", err)
	}
	if err := c.rounds.OpenRound(ctx, id); err != nil {
		return fmt.Errorf("open round: %w", err)
	}

	roundIndex := c.roundIndex()
	c.log.InfoContext(ctx, "round opened",
		slog.Int64("question_id", id),
		slog.Int("tier", q.Tier),
		slog.Int("round_index", roundIndex))

	c.broadcast(ctx, api.Response[api.RoundResponseData]{
		Type: api.ResponseTypeRound,
		Data: api.RoundResponseData{
			QuestionID:     id,
			Expression:     q.Expression,
			DifficultyTier: q.Tier,
			RoundIndex:     roundIndex,
			TotalRounds:    c.cfg.RoundsPerMatch,
		},
	})
	c.BroadcastPlayerCount(ctx)

	return nil
}

// RoundSnapshot returns the active round as sent to joining sessions.
// ok is false while no question has ever been opened.
func (c *Coordinator) RoundSnapshot(ctx context.Context) (api.RoundResponseData, bool, error) {
	state, ok, err := c.rounds.CurrentRound(ctx)
	if err != nil || !ok {
		return api.RoundResponseData{}, false, err
	}
	q, err := c.rounds.QuestionByID(ctx, state.QuestionID)
	if err != nil {
		return api.RoundResponseData{}, false, err
	}
	return api.RoundResponseData{
		QuestionID:     q.ID,
		Expression:     q.Expression,
		DifficultyTier: q.Tier,
		RoundIndex:     c.roundIndex(),
		TotalRounds:    c.cfg.RoundsPerMatch,
	}, true, nil
}

// Submit adjudicates one answer submission. The attempt is recorded for
// every submission reaching an active round; whether the submitter won the
// round is decided solely by the store's conditional claim.
func (c *Coordinator) Submit(ctx context.Context, participantID, displayName, raw string) (Result, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return Result{}, ErrNotANumber
	}

	state, ok, err := c.rounds.CurrentRound(ctx)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{
			Outcome: api.OutcomeRoundOver,
			Message: "No active question.",
		}, nil
	}
	if state.Phase == store.PhaseAnswered {
		// Fast reject, nothing is persisted for late submissions.
		return Result{
			Outcome:    api.OutcomeRoundOver,
			Message:    fmt.Sprintf("Too late! %s already answered this one.", state.WinnerName),
			WinnerName: state.WinnerName,
		}, nil
	}

	q, err := c.rounds.QuestionByID(ctx, state.QuestionID)
	if errors.Is(err, store.ErrQuestionNotFound) {
		// The active round references a missing question row. Abandon
		// the round rather than leaving the match stuck.
		c.log.ErrorContext(ctx, "active round references missing question, forcing a new round",
			slog.Int64("question_id", state.QuestionID))
		if err := c.OpenNextRound(ctx); err != nil {
			return Result{}, err
		}
		return Result{
			Outcome: api.OutcomeRoundOver,
			Message: "Question unavailable, a new round is opening.",
		}, nil
	}
	if err != nil {
		return Result{}, err
	}

	if err := c.scores.RecordAttempt(ctx, participantID, displayName); err != nil {
		return Result{}, err
	}

	if math.Abs(value-q.Answer) > answerTolerance {
		return Result{
			Outcome: api.OutcomeIncorrect,
			Message: "Incorrect! Keep trying.",
		}, nil
	}

	won, err := c.rounds.ClaimWin(ctx, participantID, displayName)
	if err != nil {
		return Result{}, err
	}

	if !won {
		// Another session claimed the round between our read and our
		// claim. Re-read to name the winner for the feedback message.
		winnerName := "someone"
		if state, ok, err := c.rounds.CurrentRound(ctx); err == nil && ok && state.WinnerName != "" {
			winnerName = state.WinnerName
		}
		return Result{
			Outcome:       api.OutcomeTooLate,
			Message:       fmt.Sprintf("Correct answer! But %s was just a bit faster.", winnerName),
			CorrectAnswer: &q.Answer,
			WinnerName:    winnerName,
		}, nil
	}

	if err := c.scores.RecordWin(ctx, participantID, displayName); err != nil {
		// The claim already decided the round; losing the score bump is
		// preferable to double counting on a retry.
		c.log.ErrorContext(ctx, "record win failed",
			slog.String("participant_id", participantID),
			slog.Any("error", err))
	}

	roundIndex := c.roundIndex()
	isFinal := roundIndex >= c.cfg.RoundsPerMatch

	c.log.InfoContext(ctx, "round won",
		slog.String("participant_id", participantID),
		slog.String("display_name", displayName),
		slog.Int64("question_id", q.ID),
		slog.Bool("final_round", isFinal))

	c.broadcast(ctx, api.Response[api.WinnerResponseData]{
		Type: api.ResponseTypeWinner,
		Data: api.WinnerResponseData{
			WinnerID:              participantID,
			WinnerName:            displayName,
			Expression:            q.Expression,
			CorrectAnswer:         q.Answer,
			NextRoundDelaySeconds: int(c.cfg.NextRoundDelay / time.Second),
			IsFinalRound:          isFinal,
			RoundIndex:            roundIndex,
			TotalRounds:           c.cfg.RoundsPerMatch,
		},
	})
	c.broadcastLeaderboard(ctx)
	c.scheduleNextRound(isFinal)

	return Result{
		Outcome:       api.OutcomeWinner,
		Message:       "You won this round!",
		CorrectAnswer: &q.Answer,
	}, nil
}

// Leaderboard returns the current top entries.
func (c *Coordinator) Leaderboard(ctx context.Context) ([]api.LeaderboardEntry, error) {
	rows, err := c.scores.Leaderboard(ctx, c.cfg.LeaderboardSize)
	if err != nil {
		return nil, err
	}
	entries := make([]api.LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		entry := api.LeaderboardEntry{
			DisplayName:  row.DisplayName,
			WinCount:     row.Wins,
			AttemptCount: row.Attempts,
		}
		if row.LastWinAt != nil {
			entry.LastWinAt = row.LastWinAt.UTC().Format(time.RFC3339)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// BroadcastPlayerCount refreshes the connected-player count on every session.
func (c *Coordinator) BroadcastPlayerCount(ctx context.Context) {
	c.broadcast(ctx, api.Response[api.PlayerCountResponseData]{
		Type: api.ResponseTypePlayerCount,
		Data: api.PlayerCountResponseData{Count: c.caster.Count()},
	})
}

// scheduleNextRound arms the post-win delay timer, replacing any pending
// one so a stale timer can never double-advance the round.
func (c *Coordinator) scheduleNextRound(matchComplete bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.cfg.NextRoundDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if matchComplete {
			c.broadcastMatchEnded(ctx)
			// A new match ramps difficulty from scratch.
			c.gen.Reset()
		}
		if err := c.OpenNextRound(ctx); err != nil {
			c.log.ErrorContext(ctx, "scheduled round open failed", slog.Any("error", err))
		}
	})
}

func (c *Coordinator) broadcastLeaderboard(ctx context.Context) {
	entries, err := c.Leaderboard(ctx)
	if err != nil {
		c.log.ErrorContext(ctx, "leaderboard read failed", slog.Any("error", err))
		return
	}
	c.broadcast(ctx, api.Response[api.LeaderboardResponseData]{
		Type: api.ResponseTypeLeaderboard,
		Data: api.LeaderboardResponseData{Entries: entries},
	})
}

// broadcastMatchEnded emits the final standings. The overall winner is the
// top-ranked entry: most wins, earliest last win among ties.
func (c *Coordinator) broadcastMatchEnded(ctx context.Context) {
	entries, err := c.Leaderboard(ctx)
	if err != nil {
		c.log.ErrorContext(ctx, "match summary leaderboard read failed", slog.Any("error", err))
		entries = []api.LeaderboardEntry{}
	}

	data := api.MatchEndedResponseData{
		FinalLeaderboard: entries,
		TotalRounds:      c.cfg.RoundsPerMatch,
	}
	if len(entries) > 0 && entries[0].WinCount > 0 {
		data.OverallWinner = &entries[0]
	}
	c.broadcast(ctx, api.Response[api.MatchEndedResponseData]{
		Type: api.ResponseTypeMatchEnded,
		Data: data,
	})
}

// roundIndex is the 1-based index of the current round within its match.
// The generator counter resets at every match boundary, so it is the index
// directly, clamped to the match length.
func (c *Coordinator) roundIndex() int {
	n := c.gen.Round()
	if n < 1 {
		return 1
	}
	if n > c.cfg.RoundsPerMatch {
		return c.cfg.RoundsPerMatch
	}
	return n
}

func (c *Coordinator) broadcast(ctx context.Context, v any) {
	if err := c.caster.Broadcast(ctx, v); err != nil {
		c.log.ErrorContext(ctx, "broadcast failed", slog.Any("error", err))
	}
}
