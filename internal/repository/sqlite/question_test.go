package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
)

func createTestQuestion(t *testing.T, db *DB, author *model.User, title string, tags ...string) *model.Question {
	t.Helper()
	q := &model.Question{
		Title:    title,
		Content:  "content of " + title,
		AuthorID: author.ID,
		Tags:     tags,
	}
	require.NoError(t, db.CreateQuestion(context.Background(), q))
	return q
}

func createTestAnswer(t *testing.T, db *DB, author *model.User, q *model.Question, content string) *model.Answer {
	t.Helper()
	a := &model.Answer{Content: content, AuthorID: author.ID, QuestionID: q.ID}
	require.NoError(t, db.CreateAnswer(context.Background(), a))
	return a
}

func TestQuestionCreateAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")

	q := createTestQuestion(t, db, alice, "How do channels work?", "go", "concurrency")
	assert.NotEmpty(t, q.ID)

	got, err := db.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "How do channels work?", got.Title)
	assert.Equal(t, "alice", got.AuthorName)
	assert.Equal(t, []string{"go", "concurrency"}, got.Tags)
	assert.Zero(t, got.Votes)
	assert.Zero(t, got.ViewCount)
	assert.Zero(t, got.AnswerCount)

	createTestAnswer(t, db, alice, q, "use make(chan T)")
	got, err = db.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AnswerCount)
}

func TestQuestionCreate_NoTags(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")
	q := createTestQuestion(t, db, alice, "untagged")

	got, err := db.GetQuestion(context.Background(), q.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.Tags)
	assert.Empty(t, got.Tags)
}

func TestQuestionGet_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetQuestion(context.Background(), "nope")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestListQuestions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")

	first := createTestQuestion(t, db, alice, "first", "go")
	createTestQuestion(t, db, alice, "second", "rust")
	third := createTestQuestion(t, db, alice, "third", "go", "sql")

	all, err := db.ListQuestions(ctx, repository.QuestionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "third", all[0].Title, "newest first")
	assert.Equal(t, "first", all[2].Title)

	tagged, err := db.ListQuestions(ctx, repository.QuestionFilter{Tag: "go"})
	require.NoError(t, err)
	require.Len(t, tagged, 2)
	assert.Equal(t, third.ID, tagged[0].ID)
	assert.Equal(t, first.ID, tagged[1].ID)

	none, err := db.ListQuestions(ctx, repository.QuestionFilter{Tag: "haskell"})
	require.NoError(t, err)
	assert.Empty(t, none)

	page, err := db.ListQuestions(ctx, repository.QuestionFilter{
		ListOptions: repository.ListOptions{Limit: 1, Offset: 1},
	})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "second", page[0].Title)
}

func TestIncrementViewCount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	q := createTestQuestion(t, db, alice, "views")

	for range 3 {
		require.NoError(t, db.IncrementViewCount(ctx, q.ID))
	}
	got, err := db.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ViewCount)

	err = db.IncrementViewCount(ctx, "missing")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestDeleteQuestion_Cascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	q := createTestQuestion(t, db, alice, "doomed")
	a := createTestAnswer(t, db, bob, q, "answer")
	keep := createTestQuestion(t, db, alice, "survivor")

	_, err := db.CastVote(ctx, bob.ID, model.VoteTarget{QuestionID: q.ID}, model.Up)
	require.NoError(t, err)
	_, err = db.CastVote(ctx, alice.ID, model.VoteTarget{AnswerID: a.ID}, model.Up)
	require.NoError(t, err)
	_, err = db.CastVote(ctx, bob.ID, model.VoteTarget{QuestionID: keep.ID}, model.Down)
	require.NoError(t, err)

	require.NoError(t, db.DeleteQuestion(ctx, q.ID))

	_, err = db.GetQuestion(ctx, q.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	_, err = db.GetAnswer(ctx, a.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	var orphans int
	require.NoError(t, db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM votes WHERE question_id = ? OR answer_id = ?`, q.ID, a.ID,
	).Scan(&orphans))
	assert.Zero(t, orphans)

	// Unrelated content is untouched.
	sum, err := db.SumVotes(ctx, model.VoteTarget{QuestionID: keep.ID})
	require.NoError(t, err)
	assert.Equal(t, -1, sum)

	err = db.DeleteQuestion(ctx, q.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestAnswerCreate_QuestionMissing(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")

	err := db.CreateAnswer(context.Background(), &model.Answer{
		Content: "orphan", AuthorID: alice.ID, QuestionID: "missing",
	})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestAcceptAnswer(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	q := createTestQuestion(t, db, alice, "q")
	a1 := createTestAnswer(t, db, bob, q, "one")
	a2 := createTestAnswer(t, db, bob, q, "two")

	require.NoError(t, db.AcceptAnswer(ctx, a1.ID, q.ID))
	// Accepting the same answer twice is a no-op.
	require.NoError(t, db.AcceptAnswer(ctx, a1.ID, q.ID))

	answers, err := db.ListAnswers(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, a1.ID, answers[0].ID)
	assert.True(t, answers[0].IsAccepted)
	assert.False(t, answers[1].IsAccepted)

	require.NoError(t, db.AcceptAnswer(ctx, a2.ID, q.ID))
	answers, err = db.ListAnswers(ctx, q.ID)
	require.NoError(t, err)
	accepted := 0
	for _, a := range answers {
		if a.IsAccepted {
			accepted++
			assert.Equal(t, a2.ID, a.ID)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, a2.ID, answers[0].ID, "accepted answer sorts first")
}

func TestAcceptAnswer_WrongQuestion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	q1 := createTestQuestion(t, db, alice, "q1")
	q2 := createTestQuestion(t, db, alice, "q2")
	a := createTestAnswer(t, db, alice, q1, "belongs to q1")

	err := db.AcceptAnswer(ctx, a.ID, q2.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	err = db.AcceptAnswer(ctx, "missing", q1.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestListAnswers_Order(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	q := createTestQuestion(t, db, alice, "q")

	older := createTestAnswer(t, db, bob, q, "older")
	popular := createTestAnswer(t, db, bob, q, "popular")
	newer := createTestAnswer(t, db, bob, q, "newer")

	_, err := db.CastVote(ctx, alice.ID, model.VoteTarget{AnswerID: popular.ID}, model.Up)
	require.NoError(t, err)

	answers, err := db.ListAnswers(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, answers, 3)
	assert.Equal(t, popular.ID, answers[0].ID)
	assert.Equal(t, older.ID, answers[1].ID)
	assert.Equal(t, newer.ID, answers[2].ID)
	assert.Equal(t, "bob", answers[0].AuthorName)
}

func TestDeleteAnswer(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	q := createTestQuestion(t, db, alice, "q")
	a := createTestAnswer(t, db, alice, q, "bye")

	_, err := db.CastVote(ctx, alice.ID, model.VoteTarget{AnswerID: a.ID}, model.Down)
	require.NoError(t, err)

	require.NoError(t, db.DeleteAnswer(ctx, a.ID))
	_, err = db.GetAnswer(ctx, a.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	sum, err := db.SumVotes(ctx, model.VoteTarget{AnswerID: a.ID})
	require.NoError(t, err)
	assert.Zero(t, sum)

	err = db.DeleteAnswer(ctx, a.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}
