// Package store persists questions, the singleton round state and the
// participant scores in PostgreSQL.
//
// The round_state row is the serialization point for win claims: the claim
// is a single guarded UPDATE, never a read-then-write pair, so concurrent
// claimers are ordered by the database and at most one succeeds per round.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS questions (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	expression TEXT NOT NULL,
	answer DOUBLE PRECISION NOT NULL,
	difficulty INT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS round_state (
	id INT PRIMARY KEY CHECK (id = 1),
	current_question_id BIGINT REFERENCES questions(id),
	phase TEXT NOT NULL DEFAULT 'active' CHECK (phase IN ('active', 'answered')),
	winner_id TEXT,
	winner_name TEXT,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS participant_scores (
	participant_id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	wins INT NOT NULL DEFAULT 0,
	attempts INT NOT NULL DEFAULT 0,
	last_win_at TIMESTAMPTZ,
	joined_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

INSERT INTO round_state (id, phase) VALUES (1, 'active')
ON CONFLICT (id) DO NOTHING;
`

type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, log: logger}
}

// Bootstrap creates the schema and seeds the singleton round_state row.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}
	s.log.InfoContext(ctx, "store schema ready")
	return nil
}
