package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/repository"
)

// UserService holds the admin-only account operations.
type UserService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

func NewUserService(users repository.UserRepository, logger *slog.Logger) *UserService {
	return &UserService{users: users, logger: logger}
}

func (s *UserService) requireAdmin(ctx context.Context, callerID, action string) (*model.User, error) {
	actor, err := loadActor(ctx, s.users, callerID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsAdmin() {
		return nil, apperror.Forbidden("only admins can " + action)
	}
	return actor, nil
}

// ChangeRole sets targetID's role. The caller must currently be an admin and
// role must be exactly one of guest, user, admin.
func (s *UserService) ChangeRole(ctx context.Context, callerID, targetID, role string) (*model.User, error) {
	actor, err := s.requireAdmin(ctx, callerID, "update user roles")
	if err != nil {
		return nil, err
	}

	newRole, err := model.ParseRole(strings.TrimSpace(role))
	if err != nil {
		return nil, apperror.ValidationFailed("role", "role must be one of guest, user, admin")
	}

	if err := s.users.UpdateRole(ctx, targetID, newRole); err != nil {
		if isDomainError(err) {
			return nil, err
		}
		s.logger.Error("failed to update role", slog.String("target", targetID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("updating role of %s: %w", targetID, err)
	}

	user, err := s.users.GetUserByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("reloading user %s: %w", targetID, err)
	}

	s.logger.Info("role changed",
		slog.String("by", actor.ID),
		slog.String("userID", targetID),
		slog.String("role", newRole.String()),
	)
	return user, nil
}

// List returns accounts oldest first. Admin only.
func (s *UserService) List(ctx context.Context, callerID string, limit, offset int) ([]model.User, error) {
	if _, err := s.requireAdmin(ctx, callerID, "list users"); err != nil {
		return nil, err
	}
	users, err := s.users.ListUsers(ctx, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}
