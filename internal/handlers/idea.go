package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ideahub/backend/internal/services"
	"github.com/ideahub/backend/pkg/response"
)

type IdeaHandler struct {
	ideaService    *services.IdeaService
	commentService *services.CommentService
}

func NewIdeaHandler(ideaService *services.IdeaService, commentService *services.CommentService) *IdeaHandler {
	return &IdeaHandler{
		ideaService:    ideaService,
		commentService: commentService,
	}
}

// Search returns one page of ideas, newest first
// GET /api/ideas?project_id=&category_ids=&text=&cursor=&limit=
func (h *IdeaHandler) Search(c *gin.Context) {
	params, err := searchParams(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	params.Viewer = viewer(c)

	page, err := h.ideaService.Search(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, page)
}

func searchParams(c *gin.Context) (services.IdeaSearchParams, error) {
	var p services.IdeaSearchParams

	if raw := c.Query("project_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return p, errors.New("invalid project_id")
		}
		p.ProjectID = &id
	}

	// category_ids=1&category_ids=2 and category_ids=1,2 are both accepted.
	for _, raw := range c.QueryArray("category_ids") {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseUint(part, 10, 32)
			if err != nil {
				return p, errors.New("invalid category_ids")
			}
			p.CategoryIDs = append(p.CategoryIDs, uint(id))
		}
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return p, errors.New("invalid limit")
		}
		p.Limit = limit
	}

	p.Text = strings.TrimSpace(c.Query("text"))
	p.Cursor = c.Query("cursor")
	return p, nil
}

// Get returns an idea with all of its comments
// GET /api/ideas/:id
func (h *IdeaHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "idea")
	if !ok {
		return
	}

	idea, err := h.ideaService.Get(c.Request.Context(), id, viewer(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, idea)
}

// Create posts a new idea
// POST /api/ideas
func (h *IdeaHandler) Create(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}

	var req services.CreateIdeaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	idea, err := h.ideaService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, idea)
}

// CreateComment adds a comment to an idea
// POST /api/ideas/:id/comments
func (h *IdeaHandler) CreateComment(c *gin.Context) {
	ideaID, ok := pathID(c, "idea")
	if !ok {
		return
	}
	userID, ok := caller(c)
	if !ok {
		return
	}

	var req services.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	comment, err := h.commentService.Create(c.Request.Context(), ideaID, &req, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, comment)
}
