// Package repository declares the persistence contracts used by the service
// layer. Two backends implement them: repository/sqlite (embedded, default)
// and repository/postgres.
//
// Every multi-row mutation (vote cast, answer acceptance, cascading deletes)
// is a single transaction inside the backend, so services never observe or
// leave a partial write.
package repository

import (
	"context"

	"github.com/sakif/stackit/internal/model"
)

// Page size bounds shared by both backends.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type ListOptions struct {
	Limit  int
	Offset int
}

// Normalize clamps Limit to [1, MaxListLimit] (0 means default) and Offset
// to >= 0.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// QuestionFilter narrows a question listing. An empty Tag matches all.
type QuestionFilter struct {
	ListOptions
	Tag string
}

// UserRepository is the Account Store.
type UserRepository interface {
	// CreateUser inserts a user, filling ID and timestamps. Duplicate
	// username or email yields apperror.ErrConflict.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	// UpsertGitHubUser finds the account linked to user.GitHubID or creates it.
	UpsertGitHubUser(ctx context.Context, user *model.User) error
	UpdateRole(ctx context.Context, id string, role model.Role) error
	ListUsers(ctx context.Context, opts ListOptions) ([]model.User, error)
}

// QuestionRepository is the question half of the Content Store.
type QuestionRepository interface {
	CreateQuestion(ctx context.Context, q *model.Question) error
	// GetQuestion returns the question with AuthorName and AnswerCount set.
	GetQuestion(ctx context.Context, id string) (*model.Question, error)
	// ListQuestions returns newest first.
	ListQuestions(ctx context.Context, filter QuestionFilter) ([]model.Question, error)
	IncrementViewCount(ctx context.Context, id string) error
	// DeleteQuestion removes the question, its answers, and every vote on
	// either, in one transaction.
	DeleteQuestion(ctx context.Context, id string) error
}

// AnswerRepository is the answer half of the Content Store.
type AnswerRepository interface {
	CreateAnswer(ctx context.Context, a *model.Answer) error
	GetAnswer(ctx context.Context, id string) (*model.Answer, error)
	// ListAnswers orders accepted first, then by votes, then oldest first.
	ListAnswers(ctx context.Context, questionID string) ([]model.Answer, error)
	// AcceptAnswer clears the flag on every answer of questionID and sets it
	// on answerID, in one transaction.
	AcceptAnswer(ctx context.Context, answerID, questionID string) error
	// DeleteAnswer removes the answer and its votes in one transaction.
	DeleteAnswer(ctx context.Context, id string) error
}

// VoteRepository is the Vote Ledger.
type VoteRepository interface {
	// CastVote applies model.ResolveVote to the voter's current ledger row
	// for target and adjusts the target's vote total by the outcome's
	// delta, atomically. A missing target yields apperror.ErrNotFound.
	CastVote(ctx context.Context, voterID string, target model.VoteTarget, dir model.Direction) (model.VoteOutcome, error)
	// GetVote returns the voter's ledger row for target, or ErrNotFound.
	GetVote(ctx context.Context, voterID string, target model.VoteTarget) (*model.Vote, error)
	// SumVotes returns the sum of ledger directions for target.
	SumVotes(ctx context.Context, target model.VoteTarget) (int, error)
}

// Store bundles every repository plus lifecycle. Both backends implement it.
type Store interface {
	UserRepository
	QuestionRepository
	AnswerRepository
	VoteRepository
	Ping(ctx context.Context) error
	Close() error
}
