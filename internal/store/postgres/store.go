// Package postgres stores generations in PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fiszki/internal/flashcards"
)

// Schema creates the tables the store writes to. Migrate applies it.
const Schema = `
CREATE TABLE IF NOT EXISTS generations (
	id         UUID PRIMARY KEY,
	user_id    UUID NOT NULL,
	input      TEXT NOT NULL,
	model      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS generation_proposals (
	id            UUID PRIMARY KEY,
	generation_id UUID NOT NULL REFERENCES generations(id) ON DELETE CASCADE,
	index         SMALLINT NOT NULL CHECK (index BETWEEN 0 AND 2),
	front         TEXT NOT NULL CHECK (char_length(front) BETWEEN 1 AND 200),
	back          TEXT NOT NULL CHECK (char_length(back) BETWEEN 1 AND 500),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (generation_id, index)
);

CREATE TABLE IF NOT EXISTS generation_error_logs (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id       UUID NOT NULL,
	generation_id UUID REFERENCES generations(id) ON DELETE SET NULL,
	error_code    TEXT NOT NULL,
	error_message TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store implements flashcards.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) SaveGeneration(ctx context.Context, gen *flashcards.Generation) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	err = tx.QueryRow(ctx,
		`INSERT INTO generations (id, user_id, input, model) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		gen.ID, gen.UserID, gen.Input, gen.Model,
	).Scan(&gen.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}

	batch := &pgx.Batch{}
	for _, p := range gen.Proposals {
		batch.Queue(
			`INSERT INTO generation_proposals (id, generation_id, index, front, back) VALUES ($1, $2, $3, $4, $5)`,
			p.ID, gen.ID, p.Index, p.Front, p.Back,
		)
	}
	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert generation proposals: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit generation: %w", err)
	}
	return nil
}

func (s *Store) LogGenerationError(ctx context.Context, entry flashcards.GenerationErrorLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO generation_error_logs (user_id, generation_id, error_code, error_message) VALUES ($1, $2, $3, $4)`,
		entry.UserID, entry.GenerationID, entry.Code, entry.Message,
	)
	if err != nil {
		return fmt.Errorf("insert generation error log: %w", err)
	}
	return nil
}

// ErrNotFound is returned by GetGeneration for an unknown id.
var ErrNotFound = errors.New("generation not found")

// GetGeneration loads a generation with its proposals ordered by index.
func (s *Store) GetGeneration(ctx context.Context, id uuid.UUID) (*flashcards.Generation, error) {
	gen := &flashcards.Generation{ID: id}
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, input, model, created_at FROM generations WHERE id = $1`, id,
	).Scan(&gen.UserID, &gen.Input, &gen.Model, &gen.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select generation: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, index, front, back FROM generation_proposals WHERE generation_id = $1 ORDER BY index`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("select generation proposals: %w", err)
	}
	proposals, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (flashcards.Proposal, error) {
		p := flashcards.Proposal{GenerationID: id}
		err := row.Scan(&p.ID, &p.Index, &p.Front, &p.Back)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan generation proposals: %w", err)
	}
	gen.Proposals = proposals
	return gen, nil
}

// ErrorLogs returns the recorded failures for a user, newest first.
func (s *Store) ErrorLogs(ctx context.Context, userID uuid.UUID) ([]flashcards.GenerationErrorLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, generation_id, error_code, error_message FROM generation_error_logs
		 WHERE user_id = $1 ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select generation error logs: %w", err)
	}
	logs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (flashcards.GenerationErrorLog, error) {
		var entry flashcards.GenerationErrorLog
		err := row.Scan(&entry.UserID, &entry.GenerationID, &entry.Code, &entry.Message)
		return entry, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan generation error logs: %w", err)
	}
	return logs, nil
}
