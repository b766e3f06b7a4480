package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
)

const questionSelect = `
	SELECT q.id, q.title, q.content, q.author_id, u.username, q.tags,
	       q.votes, q.view_count,
	       (SELECT COUNT(*) FROM answers a WHERE a.question_id = q.id)::int,
	       q.created_at, q.updated_at
	FROM questions q
	JOIN users u ON u.id = q.author_id`

func scanQuestion(row pgx.Row) (*model.Question, error) {
	var q model.Question
	if err := row.Scan(
		&q.ID, &q.Title, &q.Content, &q.AuthorID, &q.AuthorName, &q.Tags,
		&q.Votes, &q.ViewCount, &q.AnswerCount,
		&q.CreatedAt, &q.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if q.Tags == nil {
		q.Tags = []string{}
	}
	return &q, nil
}

func (db *DB) CreateQuestion(ctx context.Context, q *model.Question) error {
	if q.Tags == nil {
		q.Tags = []string{}
	}
	q.ID = xid.New().String()
	q.CreatedAt = now()
	q.UpdatedAt = q.CreatedAt
	q.Votes, q.ViewCount, q.AnswerCount = 0, 0, 0

	_, err := db.pool.Exec(ctx,
		`INSERT INTO questions (id, title, content, author_id, tags, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		q.ID, q.Title, q.Content, q.AuthorID, q.Tags, q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: inserting question: %w", err)
	}
	return nil
}

func (db *DB) GetQuestion(ctx context.Context, id string) (*model.Question, error) {
	q, err := scanQuestion(db.pool.QueryRow(ctx, questionSelect+` WHERE q.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("question", id)
		}
		return nil, fmt.Errorf("postgres: getting question %s: %w", id, err)
	}
	return q, nil
}

func (db *DB) ListQuestions(ctx context.Context, filter repository.QuestionFilter) ([]model.Question, error) {
	opts := filter.ListOptions.Normalize()

	query := questionSelect
	args := []any{opts.Limit, opts.Offset}
	if filter.Tag != "" {
		query += ` WHERE $3 = ANY(q.tags)`
		args = append(args, filter.Tag)
	}
	query += ` ORDER BY q.created_at DESC, q.id DESC LIMIT $1 OFFSET $2`

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing questions: %w", err)
	}
	defer rows.Close()

	questions := make([]model.Question, 0, opts.Limit)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning question row: %w", err)
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

func (db *DB) IncrementViewCount(ctx context.Context, id string) error {
	tag, err := db.pool.Exec(ctx, `UPDATE questions SET view_count = view_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: incrementing views of question %s: %w", id, err)
	}
	return notFoundIfNone(tag, "question", id)
}

func (db *DB) DeleteQuestion(ctx context.Context, id string) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM votes WHERE question_id = $1
			    OR answer_id IN (SELECT id FROM answers WHERE question_id = $1)`, id); err != nil {
			return fmt.Errorf("postgres: deleting votes of question %s: %w", id, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM answers WHERE question_id = $1`, id); err != nil {
			return fmt.Errorf("postgres: deleting answers of question %s: %w", id, err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("postgres: deleting question %s: %w", id, err)
		}
		return notFoundIfNone(tag, "question", id)
	})
}

const answerSelect = `
	SELECT a.id, a.content, a.author_id, u.username, a.question_id,
	       a.votes, a.is_accepted, a.created_at, a.updated_at
	FROM answers a
	JOIN users u ON u.id = a.author_id`

func scanAnswer(row pgx.Row) (*model.Answer, error) {
	var a model.Answer
	if err := row.Scan(
		&a.ID, &a.Content, &a.AuthorID, &a.AuthorName, &a.QuestionID,
		&a.Votes, &a.IsAccepted, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

func (db *DB) CreateAnswer(ctx context.Context, a *model.Answer) error {
	a.ID = xid.New().String()
	a.CreatedAt = now()
	a.UpdatedAt = a.CreatedAt
	a.Votes = 0
	a.IsAccepted = false

	tag, err := db.pool.Exec(ctx,
		`INSERT INTO answers (id, content, author_id, question_id, created_at, updated_at)
		 SELECT $1, $2, $3, q.id, $5, $5 FROM questions q WHERE q.id = $4`,
		a.ID, a.Content, a.AuthorID, a.QuestionID, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: inserting answer: %w", err)
	}
	return notFoundIfNone(tag, "question", a.QuestionID)
}

func (db *DB) GetAnswer(ctx context.Context, id string) (*model.Answer, error) {
	a, err := scanAnswer(db.pool.QueryRow(ctx, answerSelect+` WHERE a.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("answer", id)
		}
		return nil, fmt.Errorf("postgres: getting answer %s: %w", id, err)
	}
	return a, nil
}

func (db *DB) ListAnswers(ctx context.Context, questionID string) ([]model.Answer, error) {
	rows, err := db.pool.Query(ctx,
		answerSelect+` WHERE a.question_id = $1
		 ORDER BY a.is_accepted DESC, a.votes DESC, a.created_at ASC, a.id ASC`, questionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing answers of question %s: %w", questionID, err)
	}
	defer rows.Close()

	answers := []model.Answer{}
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning answer row: %w", err)
		}
		answers = append(answers, *a)
	}
	return answers, rows.Err()
}

// AcceptAnswer locks the question row so two concurrent accepts on the same
// question cannot both pass the clear step.
func (db *DB) AcceptAnswer(ctx context.Context, answerID, questionID string) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		var one int
		err := tx.QueryRow(ctx, `SELECT 1 FROM questions WHERE id = $1 FOR UPDATE`, questionID).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.NotFound("question", questionID)
		}
		if err != nil {
			return fmt.Errorf("postgres: locking question %s: %w", questionID, err)
		}

		var owner string
		err = tx.QueryRow(ctx, `SELECT question_id FROM answers WHERE id = $1`, answerID).Scan(&owner)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && owner != questionID) {
			return apperror.NotFound("answer", answerID)
		}
		if err != nil {
			return fmt.Errorf("postgres: looking up answer %s: %w", answerID, err)
		}

		ts := now()
		if _, err := tx.Exec(ctx,
			`UPDATE answers SET is_accepted = FALSE, updated_at = $1
			 WHERE question_id = $2 AND is_accepted AND id <> $3`, ts, questionID, answerID); err != nil {
			return fmt.Errorf("postgres: clearing accepted answers of question %s: %w", questionID, err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE answers SET is_accepted = TRUE, updated_at = $1 WHERE id = $2`, ts, answerID); err != nil {
			return fmt.Errorf("postgres: accepting answer %s: %w", answerID, err)
		}
		return nil
	})
}

func (db *DB) DeleteAnswer(ctx context.Context, id string) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM votes WHERE answer_id = $1`, id); err != nil {
			return fmt.Errorf("postgres: deleting votes of answer %s: %w", id, err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM answers WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("postgres: deleting answer %s: %w", id, err)
		}
		return notFoundIfNone(tag, "answer", id)
	})
}
