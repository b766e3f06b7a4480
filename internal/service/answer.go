package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/metrics"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
)

// AnswerService handles answering, accepting and deleting answers.
type AnswerService struct {
	users     repository.UserRepository
	questions repository.QuestionRepository
	answers   repository.AnswerRepository
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewAnswerService(
	users repository.UserRepository,
	questions repository.QuestionRepository,
	answers repository.AnswerRepository,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AnswerService {
	return &AnswerService{
		users:     users,
		questions: questions,
		answers:   answers,
		metrics:   m,
		logger:    logger,
	}
}

// Create posts an answer to questionID.
func (s *AnswerService) Create(ctx context.Context, callerID, questionID, content string) (*model.Answer, error) {
	actor, err := loadActor(ctx, s.users, callerID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.CanPost() {
		return nil, apperror.Forbidden("guests cannot create answers")
	}

	content, err = checkText("content", content, MaxContentLength)
	if err != nil {
		return nil, err
	}

	a := &model.Answer{
		Content:    content,
		AuthorID:   actor.ID,
		QuestionID: questionID,
	}
	if err := s.answers.CreateAnswer(ctx, a); err != nil {
		if isDomainError(err) {
			return nil, err
		}
		s.logger.Error("failed to create answer", slog.String("question", questionID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("creating answer: %w", err)
	}
	a.AuthorName = actor.Username
	s.metrics.ObserveAnswerCreated()

	s.logger.Info("answer created",
		slog.String("id", a.ID),
		slog.String("question", questionID),
		slog.String("author", actor.Username),
	)
	return a, nil
}

// Accept marks answerID as the accepted answer of its question, clearing any
// previous one. Only the question's author may accept. Accepting the already
// accepted answer succeeds without change.
func (s *AnswerService) Accept(ctx context.Context, callerID, answerID string) error {
	actor, err := loadActor(ctx, s.users, callerID)
	if err != nil {
		return err
	}

	a, err := s.answers.GetAnswer(ctx, answerID)
	if err != nil {
		if isDomainError(err) {
			return err
		}
		return fmt.Errorf("getting answer %s: %w", answerID, err)
	}
	q, err := s.questions.GetQuestion(ctx, a.QuestionID)
	if err != nil {
		if isDomainError(err) {
			return err
		}
		return fmt.Errorf("getting question %s: %w", a.QuestionID, err)
	}
	if q.AuthorID != actor.ID {
		return apperror.Forbidden("only the question author can accept answers")
	}

	if err := s.answers.AcceptAnswer(ctx, a.ID, q.ID); err != nil {
		if isDomainError(err) {
			return err
		}
		s.logger.Error("failed to accept answer", slog.String("answer", answerID), slog.String("error", err.Error()))
		return fmt.Errorf("accepting answer %s: %w", answerID, err)
	}

	s.logger.Info("answer accepted", slog.String("answer", a.ID), slog.String("question", q.ID))
	return nil
}

// Delete removes an answer and its votes. Only the author or an admin may do it.
func (s *AnswerService) Delete(ctx context.Context, callerID, answerID string) error {
	actor, err := loadActor(ctx, s.users, callerID)
	if err != nil {
		return err
	}

	a, err := s.answers.GetAnswer(ctx, answerID)
	if err != nil {
		if isDomainError(err) {
			return err
		}
		return fmt.Errorf("getting answer %s: %w", answerID, err)
	}
	if !canModerate(actor, a.AuthorID) {
		return apperror.Forbidden("only the author or an admin can delete this answer")
	}

	if err := s.answers.DeleteAnswer(ctx, answerID); err != nil {
		if isDomainError(err) {
			return err
		}
		return fmt.Errorf("deleting answer %s: %w", answerID, err)
	}

	s.logger.Info("answer deleted", slog.String("id", answerID), slog.String("by", actor.ID))
	return nil
}
