package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/service"
)

// UserHandler serves the admin account endpoints.
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=guest user admin"`
}

// HandleList returns all accounts, oldest first.
//
// HTTP: GET /api/users?limit=&offset=
// Auth: Required; admin only.
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, err)
		return
	}

	users, err := h.users.List(r.Context(), userID, limit, offset)
	if err != nil {
		logFailure(h.logger, "failed to list users", err)
		writeError(w, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}

	writeJSON(w, http.StatusOK, users)
}

// HandleChangeRole sets another account's role.
//
// HTTP: PUT /api/users/{id}/role
// REQUEST BODY: {"role": "guest" | "user" | "admin"}
// Auth: Required; admin only.
func (h *UserHandler) HandleChangeRole(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req changeRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	targetID := r.PathValue("id")
	if _, err := h.users.ChangeRole(r.Context(), userID, targetID, req.Role); err != nil {
		logFailure(h.logger, "failed to change role", err, slog.String("target", targetID))
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, "User role updated successfully")
}
