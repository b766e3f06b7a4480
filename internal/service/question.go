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

// QuestionDetail is a question together with its ordered answers.
type QuestionDetail struct {
	model.Question
	Answers []model.Answer `json:"answers"`
}

// QuestionService handles posting, browsing and deleting questions.
type QuestionService struct {
	users     repository.UserRepository
	questions repository.QuestionRepository
	answers   repository.AnswerRepository
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewQuestionService(
	users repository.UserRepository,
	questions repository.QuestionRepository,
	answers repository.AnswerRepository,
	m *metrics.Metrics,
	logger *slog.Logger,
) *QuestionService {
	return &QuestionService{
		users:     users,
		questions: questions,
		answers:   answers,
		metrics:   m,
		logger:    logger,
	}
}

// Create posts a question as callerID. Guests are rejected before anything
// is written.
func (s *QuestionService) Create(ctx context.Context, callerID, title, content string, tags []string) (*model.Question, error) {
	actor, err := loadActor(ctx, s.users, callerID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.CanPost() {
		return nil, apperror.Forbidden("guests cannot create questions")
	}

	title, err = checkText("title", title, MaxTitleLength)
	if err != nil {
		return nil, err
	}
	content, err = checkText("content", content, MaxContentLength)
	if err != nil {
		return nil, err
	}
	cleaned, err := cleanTags(tags)
	if err != nil {
		return nil, err
	}

	q := &model.Question{
		Title:    title,
		Content:  content,
		AuthorID: actor.ID,
		Tags:     cleaned,
	}
	if err := s.questions.CreateQuestion(ctx, q); err != nil {
		s.logger.Error("failed to create question", slog.String("author", actor.ID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("creating question: %w", err)
	}
	q.AuthorName = actor.Username
	s.metrics.ObserveQuestionCreated()

	s.logger.Info("question created",
		slog.String("id", q.ID),
		slog.String("author", actor.Username),
		slog.Int("tags", len(q.Tags)),
	)
	return q, nil
}

// List returns questions newest first, optionally narrowed to one tag.
func (s *QuestionService) List(ctx context.Context, tag string, limit, offset int) ([]model.Question, error) {
	questions, err := s.questions.ListQuestions(ctx, repository.QuestionFilter{
		ListOptions: repository.ListOptions{Limit: limit, Offset: offset},
		Tag:         strings.ToLower(strings.TrimSpace(tag)),
	})
	if err != nil {
		return nil, fmt.Errorf("listing questions: %w", err)
	}
	return questions, nil
}

// View fetches a question with its answers and counts the view.
//
// The fetch and the increment are separate statements, so under concurrent
// views the returned count (stored + 1) may lag the database by a few.
func (s *QuestionService) View(ctx context.Context, id string) (*QuestionDetail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "question ID is required")
	}

	q, err := s.questions.GetQuestion(ctx, id)
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("getting question %s: %w", id, err)
	}

	if err := s.questions.IncrementViewCount(ctx, id); err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("counting view of %s: %w", id, err)
	}
	q.ViewCount++

	answers, err := s.answers.ListAnswers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing answers of %s: %w", id, err)
	}
	q.AnswerCount = len(answers)

	return &QuestionDetail{Question: *q, Answers: answers}, nil
}

// Delete removes a question with all its answers and votes. Only the author
// or an admin may do it.
func (s *QuestionService) Delete(ctx context.Context, callerID, id string) error {
	actor, err := loadActor(ctx, s.users, callerID)
	if err != nil {
		return err
	}

	q, err := s.questions.GetQuestion(ctx, id)
	if err != nil {
		if isDomainError(err) {
			return err
		}
		return fmt.Errorf("getting question %s: %w", id, err)
	}
	if !canModerate(actor, q.AuthorID) {
		return apperror.Forbidden("only the author or an admin can delete this question")
	}

	if err := s.questions.DeleteQuestion(ctx, id); err != nil {
		if isDomainError(err) {
			return err
		}
		s.logger.Error("failed to delete question", slog.String("id", id), slog.String("error", err.Error()))
		return fmt.Errorf("deleting question %s: %w", id, err)
	}

	s.logger.Info("question deleted", slog.String("id", id), slog.String("by", actor.ID))
	return nil
}
