package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/ideahub/backend/internal/apperr"
	"github.com/ideahub/backend/internal/models"
	"github.com/ideahub/backend/internal/utils"
	"gorm.io/gorm"
)

type CreateIdeaRequest struct {
	Title       string    `json:"title" binding:"required,max=300"`
	Description string    `json:"description" binding:"required"`
	CategoryIDs []uint    `json:"category_ids"`
	CreatorID   uuid.UUID `json:"creator_id" binding:"required"`
	ProjectID   uuid.UUID `json:"project_id" binding:"required"`
}

// CommentView is a comment on the idea detail page.
type CommentView struct {
	CommentPreview
	IsUserComment bool `json:"is_user_comment"`
}

// IdeaDetail is the full view of one idea.
type IdeaDetail struct {
	IdeaSummary
	DescriptionHTML string        `json:"description_html"`
	Comments        []CommentView `json:"comments"`
}

type IdeaService struct {
	db       *gorm.DB
	searcher *IdeaSearcher
}

func NewIdeaService(db *gorm.DB, searcher *IdeaSearcher) *IdeaService {
	return &IdeaService{db: db, searcher: searcher}
}

// Search lists ideas; see IdeaSearcher.Search.
func (s *IdeaService) Search(ctx context.Context, p IdeaSearchParams) (*IdeaPage, error) {
	return s.searcher.Search(ctx, p)
}

// Create stores a new idea on behalf of caller.
func (s *IdeaService) Create(ctx context.Context, req *CreateIdeaRequest, caller uuid.UUID) (*IdeaDetail, error) {
	if req.CreatorID != caller {
		return nil, apperr.InvalidCredentials("creator does not match the authenticated user")
	}

	title := utils.StripTags(req.Title)
	description := strings.TrimSpace(req.Description)
	if title == "" {
		return nil, apperr.Validation("title must not be empty")
	}
	if description == "" {
		return nil, apperr.Validation("description must not be empty")
	}

	categoryIDs := uniqueUints(req.CategoryIDs)
	idea := models.Idea{
		Title:       title,
		Description: description,
		ProjectID:   req.ProjectID,
		CreatorID:   caller,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var creator int64
		if err := tx.Model(&models.User{}).Where("id = ?", caller).Count(&creator).Error; err != nil {
			return err
		}
		if creator == 0 {
			return apperr.NotFound("user not found")
		}

		var project models.Project
		if err := tx.Select("id").Where("id = ?", req.ProjectID).Take(&project).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("project not found")
			}
			return err
		}

		if len(categoryIDs) > 0 {
			var found int64
			if err := tx.Model(&models.Category{}).Where("id IN ?", categoryIDs).Count(&found).Error; err != nil {
				return err
			}
			if int(found) != len(categoryIDs) {
				return apperr.NotFound("category not found")
			}
		}

		if err := tx.Create(&idea).Error; err != nil {
			return err
		}

		links := make([]models.IdeaCategory, len(categoryIDs))
		for i, id := range categoryIDs {
			links[i] = models.IdeaCategory{IdeaID: idea.ID, CategoryID: id}
		}
		if len(links) > 0 {
			return tx.Create(&links).Error
		}
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInternal {
			return nil, err
		}
		return nil, apperr.Internal("failed to create idea", err)
	}

	return s.Get(ctx, idea.ID, &caller)
}

// Get returns the idea with all of its comments, newest first.
func (s *IdeaService) Get(ctx context.Context, id uuid.UUID, viewer *uuid.UUID) (*IdeaDetail, error) {
	summary, err := s.searcher.Get(ctx, id, viewer)
	if err != nil {
		return nil, err
	}

	var rows []CommentPreview
	err = s.db.WithContext(ctx).
		Table("comments").
		Select("comments.id, comments.user_id, users.username, comments.content, comments.created_at").
		Joins("JOIN users ON users.id = comments.user_id").
		Where("comments.idea_id = ?", id).
		Order("comments.created_at DESC").
		Order("comments.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internal("failed to load comments", err)
	}

	comments := make([]CommentView, len(rows))
	for i, c := range rows {
		comments[i] = CommentView{
			CommentPreview: c,
			IsUserComment:  viewer != nil && c.UserID == *viewer,
		}
	}

	return &IdeaDetail{
		IdeaSummary:     *summary,
		DescriptionHTML: utils.RenderMarkdown(summary.Description),
		Comments:        comments,
	}, nil
}

func uniqueUints(in []uint) []uint {
	seen := make(map[uint]struct{}, len(in))
	out := make([]uint, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
