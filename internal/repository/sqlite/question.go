package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
)

var _ repository.QuestionRepository = (*DB)(nil)

// questionSelect joins the author's username and counts answers so a single
// query fills every read-only field of model.Question.
const questionSelect = `
	SELECT q.id, q.title, q.content, q.author_id, u.username, q.tags,
	       q.votes, q.view_count,
	       (SELECT COUNT(*) FROM answers a WHERE a.question_id = q.id),
	       q.created_at, q.updated_at
	FROM questions q
	JOIN users u ON u.id = q.author_id`

func scanQuestion(row rowScanner) (*model.Question, error) {
	var (
		q    model.Question
		tags string
	)
	if err := row.Scan(
		&q.ID, &q.Title, &q.Content, &q.AuthorID, &q.AuthorName, &tags,
		&q.Votes, &q.ViewCount, &q.AnswerCount,
		&q.CreatedAt, &q.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &q.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags of question %s: %w", q.ID, err)
	}
	if q.Tags == nil {
		q.Tags = []string{}
	}
	return &q, nil
}

// CreateQuestion inserts q, filling ID and timestamps. Votes and ViewCount
// always start at zero regardless of what the caller set.
func (db *DB) CreateQuestion(ctx context.Context, q *model.Question) error {
	if q.Tags == nil {
		q.Tags = []string{}
	}
	tags, err := json.Marshal(q.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: encoding tags: %w", err)
	}

	q.ID = xid.New().String()
	q.CreatedAt = now()
	q.UpdatedAt = q.CreatedAt
	q.Votes = 0
	q.ViewCount = 0
	q.AnswerCount = 0

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO questions (id, title, content, author_id, tags, votes, view_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		q.ID, q.Title, q.Content, q.AuthorID, string(tags), q.CreatedAt, q.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting question: %w", err)
	}
	return nil
}

// GetQuestion retrieves one question with its author name and answer count.
func (db *DB) GetQuestion(ctx context.Context, id string) (*model.Question, error) {
	q, err := scanQuestion(db.conn.QueryRowContext(ctx, questionSelect+` WHERE q.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("question", id)
		}
		return nil, fmt.Errorf("sqlite: getting question %s: %w", id, err)
	}
	return q, nil
}

// ListQuestions returns questions newest first. A non-empty filter.Tag keeps
// only questions whose tag list contains it.
func (db *DB) ListQuestions(ctx context.Context, filter repository.QuestionFilter) ([]model.Question, error) {
	opts := filter.ListOptions.Normalize()

	query := questionSelect
	args := make([]any, 0, 3)
	if filter.Tag != "" {
		query += ` WHERE EXISTS (SELECT 1 FROM json_each(q.tags) t WHERE t.value = ?)`
		args = append(args, filter.Tag)
	}
	query += ` ORDER BY q.created_at DESC, q.id DESC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing questions: %w", err)
	}
	defer rows.Close()

	questions := make([]model.Question, 0, opts.Limit)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning question row: %w", err)
		}
		questions = append(questions, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating questions: %w", err)
	}
	return questions, nil
}

// IncrementViewCount adds one to the question's view counter.
func (db *DB) IncrementViewCount(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE questions SET view_count = view_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: incrementing views of question %s: %w", id, err)
	}
	return notFoundIfNone(res, "question", id)
}

// DeleteQuestion removes the question together with its answers and every
// vote cast on either.
func (db *DB) DeleteQuestion(ctx context.Context, id string) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		steps := []struct {
			what  string
			query string
		}{
			{"answer votes", `DELETE FROM votes WHERE answer_id IN (SELECT id FROM answers WHERE question_id = ?)`},
			{"question votes", `DELETE FROM votes WHERE question_id = ?`},
			{"answers", `DELETE FROM answers WHERE question_id = ?`},
		}
		for _, s := range steps {
			if _, err := tx.ExecContext(ctx, s.query, id); err != nil {
				return fmt.Errorf("sqlite: deleting %s of question %s: %w", s.what, id, err)
			}
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("sqlite: deleting question %s: %w", id, err)
		}
		return notFoundIfNone(res, "question", id)
	})
}
