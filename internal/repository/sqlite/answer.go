package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
)

var _ repository.AnswerRepository = (*DB)(nil)

const answerSelect = `
	SELECT a.id, a.content, a.author_id, u.username, a.question_id,
	       a.votes, a.is_accepted, a.created_at, a.updated_at
	FROM answers a
	JOIN users u ON u.id = a.author_id`

func scanAnswer(row rowScanner) (*model.Answer, error) {
	var a model.Answer
	if err := row.Scan(
		&a.ID, &a.Content, &a.AuthorID, &a.AuthorName, &a.QuestionID,
		&a.Votes, &a.IsAccepted, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAnswer inserts a under its question. The question must exist.
func (db *DB) CreateAnswer(ctx context.Context, a *model.Answer) error {
	a.ID = xid.New().String()
	a.CreatedAt = now()
	a.UpdatedAt = a.CreatedAt
	a.Votes = 0
	a.IsAccepted = false

	return db.inTx(ctx, func(tx *sql.Tx) error {
		if err := rowExists(ctx, tx, "questions", a.QuestionID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO answers (id, content, author_id, question_id, votes, is_accepted, created_at, updated_at)
			 VALUES (?, ?, ?, ?, 0, 0, ?, ?)`,
			a.ID, a.Content, a.AuthorID, a.QuestionID, a.CreatedAt, a.UpdatedAt,
		); err != nil {
			return fmt.Errorf("sqlite: inserting answer: %w", err)
		}
		return nil
	})
}

func (db *DB) GetAnswer(ctx context.Context, id string) (*model.Answer, error) {
	a, err := scanAnswer(db.conn.QueryRowContext(ctx, answerSelect+` WHERE a.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("answer", id)
		}
		return nil, fmt.Errorf("sqlite: getting answer %s: %w", id, err)
	}
	return a, nil
}

// ListAnswers returns every answer of the question: accepted first, then
// highest voted, then oldest.
func (db *DB) ListAnswers(ctx context.Context, questionID string) ([]model.Answer, error) {
	rows, err := db.conn.QueryContext(ctx,
		answerSelect+` WHERE a.question_id = ?
		 ORDER BY a.is_accepted DESC, a.votes DESC, a.created_at ASC, a.id ASC`,
		questionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing answers of question %s: %w", questionID, err)
	}
	defer rows.Close()

	answers := []model.Answer{}
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning answer row: %w", err)
		}
		answers = append(answers, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating answers: %w", err)
	}
	return answers, nil
}

// AcceptAnswer makes answerID the only accepted answer of questionID.
// Clearing runs before setting so the one-accepted-per-question index never
// sees two rows flagged at once.
func (db *DB) AcceptAnswer(ctx context.Context, answerID, questionID string) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx,
			`SELECT question_id FROM answers WHERE id = ?`, answerID).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != questionID) {
			return apperror.NotFound("answer", answerID)
		}
		if err != nil {
			return fmt.Errorf("sqlite: looking up answer %s: %w", answerID, err)
		}

		ts := now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE answers SET is_accepted = 0, updated_at = ?
			 WHERE question_id = ? AND is_accepted = 1 AND id <> ?`,
			ts, questionID, answerID,
		); err != nil {
			return fmt.Errorf("sqlite: clearing accepted answers of question %s: %w", questionID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE answers SET is_accepted = 1, updated_at = ? WHERE id = ?`,
			ts, answerID,
		); err != nil {
			return fmt.Errorf("sqlite: accepting answer %s: %w", answerID, err)
		}
		return nil
	})
}

// DeleteAnswer removes the answer and its votes.
func (db *DB) DeleteAnswer(ctx context.Context, id string) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM votes WHERE answer_id = ?`, id); err != nil {
			return fmt.Errorf("sqlite: deleting votes of answer %s: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM answers WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("sqlite: deleting answer %s: %w", id, err)
		}
		return notFoundIfNone(res, "answer", id)
	})
}

// rowExists returns apperror.NotFound unless table has a row with id.
// table is always a package constant, never user input.
func rowExists(ctx context.Context, tx *sql.Tx, table, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound(singular(table), id)
	}
	if err != nil {
		return fmt.Errorf("sqlite: checking %s %s: %w", singular(table), id, err)
	}
	return nil
}

func singular(table string) string {
	switch table {
	case "questions":
		return "question"
	case "answers":
		return "answer"
	default:
		return table
	}
}
