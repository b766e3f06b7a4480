package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
)

// answerFixture is a question by alice with two answers by bob.
type answerFixture struct {
	alice, bob *model.User
	question   *model.Question
	a1, a2     *model.Answer
}

func newAnswerFixture(t *testing.T, s *services) answerFixture {
	t.Helper()
	ctx := context.Background()
	f := answerFixture{
		alice: s.seedUser(t, "alice", model.RoleUser),
		bob:   s.seedUser(t, "bob", model.RoleUser),
	}
	var err error
	f.question, err = s.questions.Create(ctx, f.alice.ID, "title", "content", nil)
	require.NoError(t, err)
	f.a1, err = s.answers.Create(ctx, f.bob.ID, f.question.ID, "first")
	require.NoError(t, err)
	f.a2, err = s.answers.Create(ctx, f.bob.ID, f.question.ID, "second")
	require.NoError(t, err)
	return f
}

func acceptedIDs(s *services, questionID string) []string {
	var ids []string
	for _, a := range s.store.answers {
		if a.QuestionID == questionID && a.IsAccepted {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

func TestCreateAnswer(t *testing.T) {
	s := newTestServices(t)
	f := newAnswerFixture(t, s)

	assert.Equal(t, "bob", f.a1.AuthorName)
	assert.Equal(t, f.question.ID, f.a1.QuestionID)
	assert.False(t, f.a1.IsAccepted)
}

func TestCreateAnswer_Errors(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	f := newAnswerFixture(t, s)
	guest := s.seedUser(t, "guest1", model.RoleGuest)

	_, err := s.answers.Create(ctx, guest.ID, f.question.ID, "hi")
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	_, err = s.answers.Create(ctx, f.bob.ID, "missing", "hi")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	_, err = s.answers.Create(ctx, f.bob.ID, f.question.ID, "   ")
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = s.answers.Create(ctx, "", f.question.ID, "hi")
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))
}

func TestAcceptAnswer(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	f := newAnswerFixture(t, s)

	require.NoError(t, s.answers.Accept(ctx, f.alice.ID, f.a1.ID))
	assert.Equal(t, []string{f.a1.ID}, acceptedIDs(s, f.question.ID))

	// Idempotent.
	require.NoError(t, s.answers.Accept(ctx, f.alice.ID, f.a1.ID))
	assert.Equal(t, []string{f.a1.ID}, acceptedIDs(s, f.question.ID))

	// Switching moves the flag.
	require.NoError(t, s.answers.Accept(ctx, f.alice.ID, f.a2.ID))
	assert.Equal(t, []string{f.a2.ID}, acceptedIDs(s, f.question.ID))
}

func TestAcceptAnswer_OnlyQuestionAuthor(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	f := newAnswerFixture(t, s)
	admin := s.seedUser(t, "admin1", model.RoleAdmin)

	// Neither the answer's author nor an admin may accept.
	for _, caller := range []*model.User{f.bob, admin} {
		err := s.answers.Accept(ctx, caller.ID, f.a1.ID)
		assert.True(t, errors.Is(err, apperror.ErrForbidden), "caller %s", caller.Username)
	}
	assert.Empty(t, acceptedIDs(s, f.question.ID))

	err := s.answers.Accept(ctx, f.alice.ID, "missing")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestDeleteAnswer(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	f := newAnswerFixture(t, s)
	admin := s.seedUser(t, "admin1", model.RoleAdmin)

	_, err := s.votes.Cast(ctx, f.alice.ID, model.VoteTarget{AnswerID: f.a1.ID}, -1)
	require.NoError(t, err)

	err = s.answers.Delete(ctx, f.alice.ID, f.a1.ID)
	assert.True(t, errors.Is(err, apperror.ErrForbidden), "question author does not own the answer")

	require.NoError(t, s.answers.Delete(ctx, f.bob.ID, f.a1.ID))
	require.NoError(t, s.answers.Delete(ctx, admin.ID, f.a2.ID))
	assert.Empty(t, s.store.answers)
	assert.Empty(t, s.store.votes)
}
