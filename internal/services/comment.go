package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/ideahub/backend/internal/apperr"
	"github.com/ideahub/backend/internal/models"
	"github.com/ideahub/backend/internal/utils"
	"gorm.io/gorm"
)

type CreateCommentRequest struct {
	Content string    `json:"content" binding:"required,max=5000"`
	UserID  uuid.UUID `json:"user_id" binding:"required"`
	IdeaID  uuid.UUID `json:"idea_id" binding:"required"`
}

type CommentService struct {
	db *gorm.DB
}

func NewCommentService(db *gorm.DB) *CommentService {
	return &CommentService{db: db}
}

// Create adds a comment to the idea named in the path. The body must agree
// with both the path and the authenticated user.
func (s *CommentService) Create(ctx context.Context, ideaID uuid.UUID, req *CreateCommentRequest, caller uuid.UUID) (*CommentView, error) {
	if req.UserID != caller {
		return nil, apperr.InvalidCredentials("user does not match the authenticated user")
	}
	if req.IdeaID != ideaID {
		return nil, apperr.Mismatch("idea id in body does not match path")
	}

	content := utils.StripTags(req.Content)
	if content == "" {
		return nil, apperr.Validation("content must not be empty")
	}

	db := s.db.WithContext(ctx)
	if err := ensureIdea(db, ideaID); err != nil {
		return nil, err
	}

	var user models.User
	if err := db.Select("id", "username").Where("id = ?", caller).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal("failed to load user", err)
	}

	comment := models.Comment{
		IdeaID:  ideaID,
		UserID:  caller,
		Content: content,
	}
	if err := db.Create(&comment).Error; err != nil {
		return nil, apperr.Internal("failed to create comment", err)
	}

	return &CommentView{
		CommentPreview: CommentPreview{
			ID:        comment.ID,
			UserID:    caller,
			Username:  user.Username,
			Content:   comment.Content,
			CreatedAt: comment.CreatedAt,
		},
		IsUserComment: true,
	}, nil
}
