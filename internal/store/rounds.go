package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

type Phase string

const (
	PhaseActive   Phase = "active"
	PhaseAnswered Phase = "answered"
)

// ErrQuestionNotFound reports a round referencing a missing question row.
// The coordinator treats it as corruption local to that round and opens a
// fresh one.
var ErrQuestionNotFound = errors.New("question not found")

type Question struct {
	ID         int64
	Expression string
	Answer     float64
	Tier       int
	CreatedAt  time.Time
}

type Round struct {
	QuestionID int64
	Phase      Phase
	WinnerID   string
	WinnerName string
	UpdatedAt  time.Time
}

// InsertQuestion appends a question to the audit table and returns its id.
func (s *Store) InsertQuestion(ctx context.Context, expression string, answer float64, tier int) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO questions (expression, answer, difficulty)
		VALUES ($1, $2, $3)
		RETURNING id`,
		expression, answer, tier).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert question: %w", err)
	}
	return id, nil
}

// OpenRound points the singleton row at a question and clears the winner.
// Only the coordinator's single sequencer calls this.
func (s *Store) OpenRound(ctx context.Context, questionID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE round_state
		SET current_question_id = $1,
		    phase = 'active',
		    winner_id = NULL,
		    winner_name = NULL,
		    updated_at = now()
		WHERE id = 1`,
		questionID)
	if err != nil {
		return fmt.Errorf("open round: %w", err)
	}
	return nil
}

// CurrentRound reads the singleton row. ok is false while no question has
// ever been opened, which only happens on a fresh database.
func (s *Store) CurrentRound(ctx context.Context) (Round, bool, error) {
	var (
		questionID *int64
		winnerID   *string
		winnerName *string
		round      Round
	)
	err := s.pool.QueryRow(ctx, `
		SELECT current_question_id, phase, winner_id, winner_name, updated_at
		FROM round_state
		WHERE id = 1`).
		Scan(&questionID, &round.Phase, &winnerID, &winnerName, &round.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Round{}, false, nil
	}
	if err != nil {
		return Round{}, false, fmt.Errorf("read round state: %w", err)
	}
	if questionID == nil {
		return Round{}, false, nil
	}
	round.QuestionID = *questionID
	if winnerID != nil {
		round.WinnerID = *winnerID
	}
	if winnerName != nil {
		round.WinnerName = *winnerName
	}
	return round, true, nil
}

// QuestionByID fetches one question row.
func (s *Store) QuestionByID(ctx context.Context, id int64) (Question, error) {
	var q Question
	err := s.pool.QueryRow(ctx, `
		SELECT id, expression, answer, difficulty, created_at
		FROM questions
		WHERE id = $1`,
		id).Scan(&q.ID, &q.Expression, &q.Answer, &q.Tier, &q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Question{}, ErrQuestionNotFound
	}
	if err != nil {
		return Question{}, fmt.Errorf("read question: %w", err)
	}
	return q, nil
}

// ClaimWin marks the round answered by the given participant if and only if
// it is still active. The guard runs inside the UPDATE itself, so however
// many claimers race, the database lets exactly one through.
func (s *Store) ClaimWin(ctx context.Context, participantID, displayName string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE round_state
		SET phase = 'answered',
		    winner_id = $1,
		    winner_name = $2,
		    updated_at = now()
		WHERE id = 1 AND phase = 'active'`,
		participantID, displayName)
	if err != nil {
		return false, fmt.Errorf("claim win: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
