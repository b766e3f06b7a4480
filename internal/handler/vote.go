package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/stackit/internal/model"
	"github.com/sakif/stackit/internal/service"
)

type VoteHandler struct {
	votes  *service.VoteService
	logger *slog.Logger
}

func NewVoteHandler(votes *service.VoteService, logger *slog.Logger) *VoteHandler {
	return &VoteHandler{votes: votes, logger: logger}
}

// voteRequest names exactly one of questionId and answerId. The service
// checks that and the voteType range so the messages stay in one place.
type voteRequest struct {
	QuestionID string `json:"questionId"`
	AnswerID   string `json:"answerId"`
	VoteType   int    `json:"voteType"`
}

type voteResponse struct {
	Message string           `json:"message"`
	Action  model.VoteAction `json:"action"`
}

// HandleVote applies a vote with toggle semantics: repeating a vote removes
// it, voting the other way flips it.
//
// HTTP: POST /api/vote
// REQUEST BODY: {"questionId": "..."} or {"answerId": "..."}, plus "voteType": 1 | -1
func (h *VoteHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req voteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	target := model.VoteTarget{QuestionID: req.QuestionID, AnswerID: req.AnswerID}
	outcome, err := h.votes.Cast(r.Context(), userID, target, req.VoteType)
	if err != nil {
		logFailure(h.logger, "failed to cast vote", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, voteResponse{
		Message: "Vote recorded successfully",
		Action:  outcome.Action,
	})
}
