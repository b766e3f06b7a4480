// Package postgres implements the repository interfaces on PostgreSQL via
// pgx. Vote casts lock the target content row (SELECT ... FOR UPDATE) so
// concurrent casts on one target are applied one after another.
//
// PGX DIRECTLY, NOT database/sql:
// The sqlite package goes through database/sql because that is the only way
// modernc exposes its driver. pgx has its own native API: pgxpool.Pool is
// the connection pool, pgx.Tx the transaction, and rows scan straight into
// Go types. TEXT[] columns scan into []string without a wrapper type.
//
// POOL SIZING:
// Unlike the sqlite store (one connection, writes queue up in Go), Postgres
// handles concurrent writers itself. MaxConns bounds how many requests hit
// the server at once; extra requests wait in pgxpool.Acquire until a
// connection frees up or their context ends.
//
// STARTUP RETRIES:
// In docker-compose style deployments the API often starts before Postgres
// accepts connections. newPool retries a few times before giving up, and
// stops early if ctx is cancelled.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/repository"
)

var _ repository.Store = (*DB)(nil)

const (
	maxRetries    = 5
	retryInterval = 2 * time.Second

	uniqueViolationCode = "23505"
)

// DB wraps a pgx connection pool and implements repository.Store.
type DB struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL, retrying while the server comes up, and
// applies the schema.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := newPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	db := &DB{pool: pool}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}
	return db, nil
}

func newPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse database url: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= maxRetries; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, config)
		if err == nil {
			if pingErr := pool.Ping(ctx); pingErr == nil {
				slog.Info("database connected", "driver", "postgres")
				return pool, nil
			} else {
				pool.Close()
				err = pingErr
			}
		}

		slog.Warn("database connection attempt failed",
			"attempt", attempt, "max", maxRetries, "error", err)
		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryInterval):
			}
		}
	}

	return nil, fmt.Errorf("postgres: connection failed after %d attempts: %w", maxRetries, err)
}

func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('guest', 'user', 'admin')),
	github_id     BIGINT UNIQUE,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL,
	author_id  TEXT NOT NULL REFERENCES users(id),
	tags       TEXT[] NOT NULL DEFAULT '{}',
	votes      INTEGER NOT NULL DEFAULT 0,
	view_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_questions_created_at ON questions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_questions_tags ON questions USING GIN (tags);

CREATE TABLE IF NOT EXISTS answers (
	id          TEXT PRIMARY KEY,
	content     TEXT NOT NULL,
	author_id   TEXT NOT NULL REFERENCES users(id),
	question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
	votes       INTEGER NOT NULL DEFAULT 0,
	is_accepted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_answers_question_id ON answers(question_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_answers_one_accepted
	ON answers(question_id) WHERE is_accepted;

CREATE TABLE IF NOT EXISTS votes (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL REFERENCES users(id),
	question_id TEXT REFERENCES questions(id) ON DELETE CASCADE,
	answer_id   TEXT REFERENCES answers(id) ON DELETE CASCADE,
	direction   SMALLINT NOT NULL CHECK (direction IN (1, -1)),
	created_at  TIMESTAMPTZ NOT NULL,
	CHECK ((question_id IS NULL) <> (answer_id IS NULL))
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_votes_user_question
	ON votes(user_id, question_id) WHERE question_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_votes_user_answer
	ON votes(user_id, answer_id) WHERE answer_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_votes_question_id ON votes(question_id);
CREATE INDEX IF NOT EXISTS idx_votes_answer_id ON votes(answer_id);
`

func (db *DB) migrate(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, schema)
	return err
}

// inTx runs fn in a transaction committed only when fn returns nil.
func (db *DB) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, db.pool, fn)
}

// uniqueViolation reports whether err is a unique_violation and which column
// the violated constraint covers, derived from the constraint name
// ("users_username_key" → "username").
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return "", false
	}
	name := pgErr.ConstraintName
	for _, col := range []string{"username", "email", "github_id"} {
		if strings.Contains(name, col) {
			return col, true
		}
	}
	return "", true
}

func now() time.Time {
	return time.Now().UTC()
}

func notFoundIfNone(tag pgconn.CommandTag, resource, id string) error {
	if tag.RowsAffected() == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}

func conflictField(col string) string {
	switch col {
	case "github_id":
		return "GitHub account"
	case "":
		return "username or email"
	default:
		return col
	}
}
