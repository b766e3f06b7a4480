package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/stackit/internal/service"
)

// AnswerHandler serves answering, accepting and deleting answers.
type AnswerHandler struct {
	answers *service.AnswerService
	logger  *slog.Logger
}

func NewAnswerHandler(answers *service.AnswerService, logger *slog.Logger) *AnswerHandler {
	return &AnswerHandler{answers: answers, logger: logger}
}

type createAnswerRequest struct {
	Content string `json:"content" validate:"required"`
}

// HandleCreate posts an answer to the question in the path.
//
// HTTP: POST /api/questions/{id}/answers
// REQUEST BODY: {"content": "..."}
func (h *AnswerHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req createAnswerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	questionID := r.PathValue("id")
	a, err := h.answers.Create(r.Context(), userID, questionID, req.Content)
	if err != nil {
		logFailure(h.logger, "failed to create answer", err, slog.String("question", questionID))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{
		Message: "Answer created successfully",
		ID:      a.ID,
	})
}

// HandleAccept marks the answer as accepted.
//
// HTTP: POST /api/answers/{id}/accept
// Auth: Required; only the question's author.
func (h *AnswerHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id := r.PathValue("id")

	if err := h.answers.Accept(r.Context(), userID, id); err != nil {
		logFailure(h.logger, "failed to accept answer", err, slog.String("id", id))
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, "Answer accepted successfully")
}

// HandleDelete removes an answer and its votes.
//
// HTTP: DELETE /api/answers/{id}
// Auth: Required; author or admin.
func (h *AnswerHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id := r.PathValue("id")

	if err := h.answers.Delete(r.Context(), userID, id); err != nil {
		logFailure(h.logger, "failed to delete answer", err, slog.String("id", id))
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, "Answer deleted successfully")
}
