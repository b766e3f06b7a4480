// Package sqlite implements the repository interfaces on an embedded SQLite
// database (modernc.org/sqlite, pure Go, no CGo).
//
// CONCURRENCY:
// The pool is capped at one connection. Every transaction therefore runs
// alone, which is what makes CastVote's read-decide-write sequence atomic
// per target without SQLITE_BUSY retries. Inside a transaction only the *sql.Tx
// may be used; touching db.conn there would wait on the connection the
// transaction already holds.
//
// ":memory:" works for tests because the single connection is never
// recycled, so the in-memory database lives as long as the DB.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and implements repository.Store.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath, applies pragmas, and runs migrations.
//
// dbPath examples:
//   - "data/stackit.db" → file-based database (persistent)
//   - ":memory:"        → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers of the file proceed while a write is in progress
	// (e.g. an operator running sqlite3 against a live server).
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrations run in order; each statement is idempotent.
var migrations = []struct {
	name string
	sql  string
}{
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			role          TEXT NOT NULL DEFAULT 'user'
			              CHECK (role IN ('guest', 'user', 'admin')),
			github_id     INTEGER UNIQUE,
			created_at    DATETIME NOT NULL,
			updated_at    DATETIME NOT NULL
		);`},
	{"questions", `
		CREATE TABLE IF NOT EXISTS questions (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			content    TEXT NOT NULL,
			author_id  TEXT NOT NULL REFERENCES users(id),
			tags       TEXT NOT NULL DEFAULT '[]',
			votes      INTEGER NOT NULL DEFAULT 0,
			view_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_questions_created_at ON questions(created_at);
		CREATE INDEX IF NOT EXISTS idx_questions_author_id ON questions(author_id);`},
	{"answers", `
		CREATE TABLE IF NOT EXISTS answers (
			id          TEXT PRIMARY KEY,
			content     TEXT NOT NULL,
			author_id   TEXT NOT NULL REFERENCES users(id),
			question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
			votes       INTEGER NOT NULL DEFAULT 0,
			is_accepted INTEGER NOT NULL DEFAULT 0,
			created_at  DATETIME NOT NULL,
			updated_at  DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_answers_question_id ON answers(question_id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_answers_one_accepted
			ON answers(question_id) WHERE is_accepted = 1;`},
	{"votes", `
		CREATE TABLE IF NOT EXISTS votes (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL REFERENCES users(id),
			question_id TEXT REFERENCES questions(id) ON DELETE CASCADE,
			answer_id   TEXT REFERENCES answers(id) ON DELETE CASCADE,
			direction   INTEGER NOT NULL CHECK (direction IN (1, -1)),
			created_at  DATETIME NOT NULL,
			CHECK ((question_id IS NULL) <> (answer_id IS NULL))
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_votes_user_question
			ON votes(user_id, question_id) WHERE question_id IS NOT NULL;
		CREATE UNIQUE INDEX IF NOT EXISTS idx_votes_user_answer
			ON votes(user_id, answer_id) WHERE answer_id IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_votes_question_id ON votes(question_id);
		CREATE INDEX IF NOT EXISTS idx_votes_answer_id ON votes(answer_id);`},
}

func (db *DB) migrate() error {
	for _, m := range migrations {
		if _, err := db.conn.Exec(m.sql); err != nil {
			return fmt.Errorf("creating %s: %w", m.name, err)
		}
	}
	return nil
}

// inTx runs fn inside a transaction, committing on success and rolling back
// on error or panic.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// uniqueViolation reports whether err is a UNIQUE constraint failure and,
// if so, which column ("users.username" → "username").
func uniqueViolation(err error) (string, bool) {
	var se *sqlitedriver.Error
	if !errors.As(err, &se) {
		return "", false
	}
	if se.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE && se.Code() != sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return "", false
	}
	msg := se.Error()
	if i := strings.LastIndex(msg, "."); i >= 0 && i+1 < len(msg) {
		col := msg[i+1:]
		if j := strings.IndexAny(col, " )"); j >= 0 {
			col = col[:j]
		}
		return col, true
	}
	return "", true
}

func now() time.Time {
	return time.Now().UTC()
}

// notFoundIfNone maps a zero RowsAffected to apperror.NotFound.
func notFoundIfNone(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
