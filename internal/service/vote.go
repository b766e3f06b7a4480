package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/metrics"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
)

// VoteService applies votes with toggle semantics.
//
// The transition itself (create / toggle off / flip) is model.ResolveVote;
// the repository runs it inside one transaction together with the counter
// update, so the stored total always equals the ledger sum.
type VoteService struct {
	users   repository.UserRepository
	votes   repository.VoteRepository
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewVoteService(
	users repository.UserRepository,
	votes repository.VoteRepository,
	m *metrics.Metrics,
	logger *slog.Logger,
) *VoteService {
	return &VoteService{users: users, votes: votes, metrics: m, logger: logger}
}

// Cast applies direction (1 or -1) from voterID to target. Any authenticated
// account may vote, guests included.
func (s *VoteService) Cast(ctx context.Context, voterID string, target model.VoteTarget, direction int) (model.VoteOutcome, error) {
	dir, err := model.ParseDirection(direction)
	if err != nil {
		return model.VoteOutcome{}, apperror.ValidationFailed("voteType", "voteType must be 1 or -1")
	}
	target.QuestionID = strings.TrimSpace(target.QuestionID)
	target.AnswerID = strings.TrimSpace(target.AnswerID)
	if err := target.Validate(); err != nil {
		return model.VoteOutcome{}, apperror.ValidationFailed("target", err.Error())
	}

	voter, err := loadActor(ctx, s.users, voterID)
	if err != nil {
		return model.VoteOutcome{}, err
	}

	outcome, err := s.votes.CastVote(ctx, voter.ID, target, dir)
	if err != nil {
		if isDomainError(err) {
			return model.VoteOutcome{}, err
		}
		s.logger.Error("failed to cast vote",
			slog.String("voter", voter.ID),
			slog.String("target", target.ID()),
			slog.String("error", err.Error()),
		)
		return model.VoteOutcome{}, fmt.Errorf("casting vote: %w", err)
	}

	s.metrics.ObserveVote(target.Kind(), outcome.Action)
	s.logger.Info("vote cast",
		slog.String("voter", voter.ID),
		slog.String("kind", string(target.Kind())),
		slog.String("target", target.ID()),
		slog.String("action", string(outcome.Action)),
		slog.Int("delta", outcome.Delta),
	)
	return outcome, nil
}
