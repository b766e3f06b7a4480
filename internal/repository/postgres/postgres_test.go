package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
)

// newTestDB connects to TEST_DATABASE_URL and empties every table. Tests are
// skipped when the variable is unset.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping PostgreSQL tests")
	}
	ctx := context.Background()
	db, err := New(ctx, url)
	require.NoError(t, err)
	_, err = db.pool.Exec(ctx, `TRUNCATE votes, answers, questions, users`)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, db *DB, name string) *model.User {
	t.Helper()
	u := &model.User{Username: name, Email: name + "@example.com", PasswordHash: "hash"}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

func TestPostgres_Users(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	alice := createUser(t, db, "alice")
	got, err := db.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	assert.Equal(t, model.RoleUser, got.Role)

	err = db.CreateUser(ctx, &model.User{Username: "alice", Email: "x@example.com"})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.True(t, errors.Is(err, apperror.ErrConflict))
	assert.Equal(t, "username", appErr.Field)

	require.NoError(t, db.UpdateRole(ctx, alice.ID, model.RoleAdmin))
	users, err := db.ListUsers(ctx, repository.ListOptions{})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, model.RoleAdmin, users[0].Role)

	ghID := int64(7)
	gh := &model.User{Username: "octo", Email: "octo@example.com", GitHubID: &ghID}
	require.NoError(t, db.UpsertGitHubUser(ctx, gh))
	again := &model.User{Username: "octo", Email: "new@example.com", GitHubID: &ghID}
	require.NoError(t, db.UpsertGitHubUser(ctx, again))
	assert.Equal(t, gh.ID, again.ID)
	assert.Equal(t, "new@example.com", again.Email)
}

func TestPostgres_ContentAndVotes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	q := &model.Question{Title: "t", Content: "c", AuthorID: alice.ID, Tags: []string{"go"}}
	require.NoError(t, db.CreateQuestion(ctx, q))
	a := &model.Answer{Content: "a", AuthorID: bob.ID, QuestionID: q.ID}
	require.NoError(t, db.CreateAnswer(ctx, a))

	tagged, err := db.ListQuestions(ctx, repository.QuestionFilter{Tag: "go"})
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, 1, tagged[0].AnswerCount)
	assert.Equal(t, "alice", tagged[0].AuthorName)

	target := model.VoteTarget{QuestionID: q.ID}
	for _, d := range []model.Direction{model.Up, model.Up, model.Down, model.Up} {
		_, err := db.CastVote(ctx, bob.ID, target, d)
		require.NoError(t, err)
	}
	got, err := db.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Votes)

	require.NoError(t, db.AcceptAnswer(ctx, a.ID, q.ID))
	require.NoError(t, db.AcceptAnswer(ctx, a.ID, q.ID))
	answers, err := db.ListAnswers(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.True(t, answers[0].IsAccepted)

	require.NoError(t, db.DeleteQuestion(ctx, q.ID))
	_, err = db.GetAnswer(ctx, a.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	sum, err := db.SumVotes(ctx, target)
	require.NoError(t, err)
	assert.Zero(t, sum)
}

func TestPostgres_ConcurrentVoters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	author := createUser(t, db, "author")
	q := &model.Question{Title: "hot", Content: "c", AuthorID: author.ID}
	require.NoError(t, db.CreateQuestion(ctx, q))
	target := model.VoteTarget{QuestionID: q.ID}

	const voters = 16
	var wg sync.WaitGroup
	for i := range voters {
		u := createUser(t, db, fmt.Sprintf("voter%02d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, d := range []model.Direction{model.Up, model.Down, model.Up} {
				_, err := db.CastVote(ctx, u.ID, target, d)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	got, err := db.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	sum, err := db.SumVotes(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, voters, sum)
	assert.Equal(t, sum, got.Votes)
}
