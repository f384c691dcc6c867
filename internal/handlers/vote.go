package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/ideahub/backend/internal/services"
	"github.com/ideahub/backend/pkg/response"
)

type VoteHandler struct {
	voteService *services.VoteService
}

func NewVoteHandler(voteService *services.VoteService) *VoteHandler {
	return &VoteHandler{voteService: voteService}
}

type castVoteRequest struct {
	IsUpvote *bool `json:"is_upvote" binding:"required"`
}

// Counts returns the tally, with the caller's own vote when authenticated
// GET /api/ideas/:id/votes
func (h *VoteHandler) Counts(c *gin.Context) {
	ideaID, ok := pathID(c, "idea")
	if !ok {
		return
	}

	summary, err := h.voteService.Counts(c.Request.Context(), ideaID, viewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, summary)
}

// Cast creates, flips or toggles off the caller's vote
// POST /api/ideas/:id/votes
func (h *VoteHandler) Cast(c *gin.Context) {
	ideaID, ok := pathID(c, "idea")
	if !ok {
		return
	}
	userID, ok := caller(c)
	if !ok {
		return
	}

	var req castVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	summary, err := h.voteService.Cast(c.Request.Context(), ideaID, userID, *req.IsUpvote)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, summary)
}

// Retract deletes the caller's vote
// DELETE /api/ideas/:id/votes
func (h *VoteHandler) Retract(c *gin.Context) {
	ideaID, ok := pathID(c, "idea")
	if !ok {
		return
	}
	userID, ok := caller(c)
	if !ok {
		return
	}

	summary, err := h.voteService.Retract(c.Request.Context(), ideaID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, summary)
}
