package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/service"
)

// QuestionHandler serves browsing, posting and deleting questions.
type QuestionHandler struct {
	questions *service.QuestionService
	logger    *slog.Logger
}

func NewQuestionHandler(questions *service.QuestionService, logger *slog.Logger) *QuestionHandler {
	return &QuestionHandler{questions: questions, logger: logger}
}

type createQuestionRequest struct {
	Title   string   `json:"title" validate:"required"`
	Content string   `json:"content" validate:"required"`
	Tags    []string `json:"tags"`
}

// HandleList returns questions newest first.
//
// HTTP: GET /api/questions?tag=go&limit=20&offset=0
//
// The response is always a JSON array, "[]" when there are no questions.
func (h *QuestionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
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

	questions, err := h.questions.List(r.Context(), r.URL.Query().Get("tag"), limit, offset)
	if err != nil {
		logFailure(h.logger, "failed to list questions", err)
		writeError(w, err)
		return
	}
	if questions == nil {
		questions = []model.Question{}
	}

	writeJSON(w, http.StatusOK, questions)
}

// HandleGet returns one question with its answers and counts the view.
//
// HTTP: GET /api/questions/{id}
func (h *QuestionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	detail, err := h.questions.View(r.Context(), id)
	if err != nil {
		logFailure(h.logger, "failed to get question", err, slog.String("id", id))
		writeError(w, err)
		return
	}
	if detail.Answers == nil {
		detail.Answers = []model.Answer{}
	}

	writeJSON(w, http.StatusOK, detail)
}

// HandleCreate posts a question.
//
// HTTP: POST /api/questions
// REQUEST BODY: {"title": "...", "content": "...", "tags": ["go", "sql"]}
// Auth: Required; guests get 403.
func (h *QuestionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req createQuestionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	q, err := h.questions.Create(r.Context(), userID, req.Title, req.Content, req.Tags)
	if err != nil {
		logFailure(h.logger, "failed to create question", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{
		Message: "Question created successfully",
		ID:      q.ID,
	})
}

// HandleDelete removes a question together with its answers and votes.
//
// HTTP: DELETE /api/questions/{id}
// Auth: Required; author or admin.
func (h *QuestionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id := r.PathValue("id")

	if err := h.questions.Delete(r.Context(), userID, id); err != nil {
		logFailure(h.logger, "failed to delete question", err, slog.String("id", id))
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, "Question deleted successfully")
}
