// Package pgstore is a task.Store backed by PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonwraymond/todos/task"
)

const schema = `
CREATE TABLE IF NOT EXISTS todos (
	user_id        TEXT    NOT NULL,
	todo_id        TEXT    NOT NULL,
	created_at     TEXT    NOT NULL,
	name           TEXT    NOT NULL,
	due_date       TEXT    NOT NULL DEFAULT '',
	done           BOOLEAN NOT NULL DEFAULT FALSE,
	attachment_url TEXT    NOT NULL DEFAULT '',
	updated_at     TEXT,
	PRIMARY KEY (user_id, todo_id)
);
CREATE INDEX IF NOT EXISTS todos_user_created_at_idx ON todos (user_id, created_at);
`

const columns = `user_id, todo_id, created_at, name, due_date, done, attachment_url, updated_at`

// Store implements task.Store.
type Store struct{ pool *pgxpool.Pool }

// New connects a pool to dsn. The connection is verified by Ping, not here.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse dsn: %w", err)
	}
	if cfg.MaxConns == 0 || cfg.MaxConns > 8 {
		cfg.MaxConns = 8
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the table and index when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close closes the pool.
func (s *Store) Close() { s.pool.Close() }

func scanTask(row pgx.Row) (task.Task, error) {
	var (
		t         task.Task
		updatedAt *string
	)
	err := row.Scan(&t.UserID, &t.TodoID, &t.CreatedAt, &t.Name, &t.DueDate, &t.Done, &t.AttachmentURL, &updatedAt)
	if updatedAt != nil {
		t.UpdatedAt = *updatedAt
	}
	return t, err
}

func (s *Store) Get(ctx context.Context, userID, todoID string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+columns+` FROM todos WHERE user_id = $1 AND todo_id = $2`, userID, todoID)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, task.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get: %w", err)
	}
	return &t, nil
}

func (s *Store) Put(ctx context.Context, t *task.Task) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO todos (`+columns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))`,
		t.UserID, t.TodoID, t.CreatedAt, t.Name, t.DueDate, t.Done, t.AttachmentURL, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: put: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, userID, todoID string, u task.Update) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE todos SET name = $3, due_date = $4, done = $5, updated_at = $6
		 WHERE user_id = $1 AND todo_id = $2`,
		userID, todoID, u.Name, u.DueDate, u.Done, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return task.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID, todoID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM todos WHERE user_id = $1 AND todo_id = $2`, userID, todoID)
	if err != nil {
		return fmt.Errorf("pgstore: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return task.ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context, userID string) ([]task.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+columns+` FROM todos WHERE user_id = $1 ORDER BY created_at, todo_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list: %w", err)
	}
	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (task.Task, error) {
		return scanTask(row)
	})
	if err != nil {
		return nil, fmt.Errorf("pgstore: list: %w", err)
	}
	return tasks, nil
}

var _ task.Store = (*Store)(nil)
