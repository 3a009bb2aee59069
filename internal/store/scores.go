package store

import (
	"context"
	"fmt"
	"time"
)

type ScoreRow struct {
	ParticipantID string
	DisplayName   string
	Wins          int
	Attempts      int
	LastWinAt     *time.Time
}

// RecordAttempt creates or bumps a participant's attempt count. The display
// name follows the latest submission so renames stick.
func (s *Store) RecordAttempt(ctx context.Context, participantID, displayName string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO participant_scores (participant_id, display_name, wins, attempts)
		VALUES ($1, $2, 0, 1)
		ON CONFLICT (participant_id) DO UPDATE SET
			attempts = participant_scores.attempts + 1,
			display_name = excluded.display_name`,
		participantID, displayName)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// RecordWin bumps both counters and stamps the win time. A winning
// submission counts as a win and an attempt.
func (s *Store) RecordWin(ctx context.Context, participantID, displayName string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO participant_scores (participant_id, display_name, wins, attempts, last_win_at)
		VALUES ($1, $2, 1, 1, now())
		ON CONFLICT (participant_id) DO UPDATE SET
			wins = participant_scores.wins + 1,
			attempts = participant_scores.attempts + 1,
			last_win_at = now(),
			display_name = excluded.display_name`,
		participantID, displayName)
	if err != nil {
		return fmt.Errorf("record win: %w", err)
	}
	return nil
}

// Leaderboard returns the top rows ranked by wins, earliest last win first
// among ties.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]ScoreRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT participant_id, display_name, wins, attempts, last_win_at
		FROM participant_scores
		ORDER BY wins DESC, last_win_at ASC NULLS LAST
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	defer rows.Close()

	var scores []ScoreRow
	for rows.Next() {
		var row ScoreRow
		if err := rows.Scan(&row.ParticipantID, &row.DisplayName, &row.Wins, &row.Attempts, &row.LastWinAt); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		scores = append(scores, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	return scores, nil
}
