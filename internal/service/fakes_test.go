package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/auth"
	"github.com/sakif/stackit/internal/metrics"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
)

// =========================================================================
// FAKE STORE
// =========================================================================

// fakeStore is an in-memory repository.Store. It applies the same rules as
// the SQL backends (unique username/email, cascades, one accepted answer)
// so service tests exercise real outcomes without a database.
type fakeStore struct {
	mu        sync.Mutex
	users     map[string]*model.User
	questions map[string]*model.Question
	answers   map[string]*model.Answer
	votes     map[string]model.Vote // keyed by voter + target
	seq       int

	// failNext, when set, is returned by the next mutating call.
	failNext error
}

var _ repository.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[string]*model.User),
		questions: make(map[string]*model.Question),
		answers:   make(map[string]*model.Answer),
		votes:     make(map[string]model.Vote),
	}
}

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%03d", prefix, f.seq)
}

func (f *fakeStore) takeFailure() error {
	err := f.failNext
	f.failNext = nil
	return err
}

func voteKey(voterID string, t model.VoteTarget) string {
	return voterID + "|" + t.QuestionID + "|" + t.AnswerID
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                   { return nil }

func (f *fakeStore) CreateUser(ctx context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return err
	}
	for _, existing := range f.users {
		if existing.Username == u.Username {
			return apperror.Conflict("user", "username")
		}
		if existing.Email == u.Email {
			return apperror.Conflict("user", "email")
		}
	}
	u.ID = f.nextID("user")
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	stored := *u
	f.users[u.ID] = &stored
	return nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", username)
}

func (f *fakeStore) UpsertGitHubUser(ctx context.Context, u *model.User) error {
	f.mu.Lock()
	if err := f.takeFailure(); err != nil {
		f.mu.Unlock()
		return err
	}
	for _, existing := range f.users {
		if existing.GitHubID != nil && u.GitHubID != nil && *existing.GitHubID == *u.GitHubID {
			existing.Email = u.Email
			*u = *existing
			f.mu.Unlock()
			return nil
		}
	}
	f.mu.Unlock()
	return f.CreateUser(ctx, u)
}

func (f *fakeStore) UpdateRole(ctx context.Context, id string, role model.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.Role = role
	return nil
}

func (f *fakeStore) ListUsers(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	opts = opts.Normalize()
	all := make([]model.User, 0, len(f.users))
	for _, u := range f.users {
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return page(all, opts), nil
}

func page[T any](all []T, opts repository.ListOptions) []T {
	if opts.Offset >= len(all) {
		return []T{}
	}
	end := min(opts.Offset+opts.Limit, len(all))
	return all[opts.Offset:end]
}

func (f *fakeStore) CreateQuestion(ctx context.Context, q *model.Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return err
	}
	q.ID = f.nextID("q")
	q.CreatedAt = time.Now()
	q.UpdatedAt = q.CreatedAt
	stored := *q
	f.questions[q.ID] = &stored
	return nil
}

func (f *fakeStore) fillQuestion(q model.Question) model.Question {
	if u, ok := f.users[q.AuthorID]; ok {
		q.AuthorName = u.Username
	}
	q.AnswerCount = 0
	for _, a := range f.answers {
		if a.QuestionID == q.ID {
			q.AnswerCount++
		}
	}
	return q
}

func (f *fakeStore) GetQuestion(ctx context.Context, id string) (*model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.questions[id]
	if !ok {
		return nil, apperror.NotFound("question", id)
	}
	filled := f.fillQuestion(*q)
	return &filled, nil
}

func (f *fakeStore) ListQuestions(ctx context.Context, filter repository.QuestionFilter) ([]model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := []model.Question{}
	for _, q := range f.questions {
		if filter.Tag != "" && !slices.Contains(q.Tags, filter.Tag) {
			continue
		}
		all = append(all, f.fillQuestion(*q))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return page(all, filter.ListOptions.Normalize()), nil
}

func (f *fakeStore) IncrementViewCount(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.questions[id]
	if !ok {
		return apperror.NotFound("question", id)
	}
	q.ViewCount++
	return nil
}

func (f *fakeStore) DeleteQuestion(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return err
	}
	if _, ok := f.questions[id]; !ok {
		return apperror.NotFound("question", id)
	}
	for aid, a := range f.answers {
		if a.QuestionID == id {
			f.deleteVotesLocked(func(v model.Vote) bool { return v.Target.AnswerID == aid })
			delete(f.answers, aid)
		}
	}
	f.deleteVotesLocked(func(v model.Vote) bool { return v.Target.QuestionID == id })
	delete(f.questions, id)
	return nil
}

func (f *fakeStore) deleteVotesLocked(match func(model.Vote) bool) {
	for k, v := range f.votes {
		if match(v) {
			delete(f.votes, k)
		}
	}
}

func (f *fakeStore) CreateAnswer(ctx context.Context, a *model.Answer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return err
	}
	if _, ok := f.questions[a.QuestionID]; !ok {
		return apperror.NotFound("question", a.QuestionID)
	}
	a.ID = f.nextID("a")
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	stored := *a
	f.answers[a.ID] = &stored
	return nil
}

func (f *fakeStore) GetAnswer(ctx context.Context, id string) (*model.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.answers[id]
	if !ok {
		return nil, apperror.NotFound("answer", id)
	}
	cp := *a
	if u, ok := f.users[a.AuthorID]; ok {
		cp.AuthorName = u.Username
	}
	return &cp, nil
}

func (f *fakeStore) ListAnswers(ctx context.Context, questionID string) ([]model.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Answer{}
	for _, a := range f.answers {
		if a.QuestionID == questionID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsAccepted != out[j].IsAccepted {
			return out[i].IsAccepted
		}
		if out[i].Votes != out[j].Votes {
			return out[i].Votes > out[j].Votes
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakeStore) AcceptAnswer(ctx context.Context, answerID, questionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	target, ok := f.answers[answerID]
	if !ok || target.QuestionID != questionID {
		return apperror.NotFound("answer", answerID)
	}
	for _, a := range f.answers {
		if a.QuestionID == questionID {
			a.IsAccepted = false
		}
	}
	target.IsAccepted = true
	return nil
}

func (f *fakeStore) DeleteAnswer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.answers[id]; !ok {
		return apperror.NotFound("answer", id)
	}
	f.deleteVotesLocked(func(v model.Vote) bool { return v.Target.AnswerID == id })
	delete(f.answers, id)
	return nil
}

func (f *fakeStore) CastVote(ctx context.Context, voterID string, target model.VoteTarget, dir model.Direction) (model.VoteOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return model.VoteOutcome{}, err
	}

	var counter *int
	switch target.Kind() {
	case model.TargetQuestion:
		q, ok := f.questions[target.QuestionID]
		if !ok {
			return model.VoteOutcome{}, apperror.NotFound("question", target.QuestionID)
		}
		counter = &q.Votes
	case model.TargetAnswer:
		a, ok := f.answers[target.AnswerID]
		if !ok {
			return model.VoteOutcome{}, apperror.NotFound("answer", target.AnswerID)
		}
		counter = &a.Votes
	}

	key := voteKey(voterID, target)
	var existing *model.Direction
	if v, ok := f.votes[key]; ok {
		d := v.Direction
		existing = &d
	}

	out := model.ResolveVote(existing, dir)
	if out.Next == nil {
		delete(f.votes, key)
	} else {
		f.votes[key] = model.Vote{UserID: voterID, Target: target, Direction: *out.Next}
	}
	*counter += out.Delta
	return out, nil
}

func (f *fakeStore) GetVote(ctx context.Context, voterID string, target model.VoteTarget) (*model.Vote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.votes[voteKey(voterID, target)]
	if !ok {
		return nil, apperror.NotFound("vote", target.ID())
	}
	return &v, nil
}

func (f *fakeStore) SumVotes(ctx context.Context, target model.VoteTarget) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum := 0
	for _, v := range f.votes {
		if v.Target == target {
			sum += int(v.Direction)
		}
	}
	return sum, nil
}

// =========================================================================
// HELPERS
// =========================================================================

var errDBDown = errors.New("database is on fire")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// services bundles every service over one fake store.
type services struct {
	store     *fakeStore
	metrics   *metrics.Metrics
	auth      *AuthService
	users     *UserService
	questions *QuestionService
	answers   *AnswerService
	votes     *VoteService
}

func newTestServices(t *testing.T) *services {
	t.Helper()
	store := newFakeStore()
	m := metrics.New()
	logger := quietLogger()

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	require.NoError(t, err)

	return &services{
		store:     store,
		metrics:   m,
		auth:      NewAuthService(store, tokens, auth.NewPasswordServiceForTest(), logger),
		users:     NewUserService(store, logger),
		questions: NewQuestionService(store, store, store, m, logger),
		answers:   NewAnswerService(store, store, store, m, logger),
		votes:     NewVoteService(store, store, m, logger),
	}
}

// seedUser inserts a user with role directly into the store.
func (s *services) seedUser(t *testing.T, username string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{Username: username, Email: username + "@example.com", Role: role}
	require.NoError(t, s.store.CreateUser(context.Background(), u))
	return u
}
