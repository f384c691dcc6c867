package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/ideahub/backend/internal/apperr"
	"github.com/ideahub/backend/internal/models"
	"gorm.io/gorm"
)

type ProjectService struct {
	db *gorm.DB
}

func NewProjectService(db *gorm.DB) *ProjectService {
	return &ProjectService{db: db}
}

type ProjectListRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Name     string `form:"name"`
}

type ProjectListResponse struct {
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Items    []models.Project `json:"items"`
}

type CreateProjectRequest struct {
	Name        string    `json:"name" binding:"required,max=200"`
	Description string    `json:"description"`
	URL         string    `json:"url" binding:"omitempty,url,max=500"`
	CreatorID   uuid.UUID `json:"creator_id" binding:"required"`
}

// ProjectUpdate is a partial update; nil fields are left unchanged.
type ProjectUpdate struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=200"`
	Description *string `json:"description"`
	URL         *string `json:"url" binding:"omitempty,max=500"`
}

// List returns paginated projects
func (s *ProjectService) List(ctx context.Context, req *ProjectListRequest) (*ProjectListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 10
	}

	var projects []models.Project
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Project{})
	if req.Name != "" {
		query = query.Where("LOWER(name) LIKE ? ESCAPE '!'", containsPattern(req.Name))
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, apperr.Internal("failed to count projects", err)
	}

	offset := (req.Page - 1) * req.PageSize
	err := query.Preload("Creator").
		Offset(offset).
		Limit(req.PageSize).
		Order("created_at DESC").
		Order("id").
		Find(&projects).Error
	if err != nil {
		return nil, apperr.Internal("failed to list projects", err)
	}

	return &ProjectListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    projects,
	}, nil
}

// GetByID returns a project by ID
func (s *ProjectService) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	err := s.db.WithContext(ctx).Preload("Creator").Where("id = ?", id).Take(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("project not found")
	}
	if err != nil {
		return nil, apperr.Internal("failed to load project", err)
	}
	return &project, nil
}

// Create creates a new project owned by caller.
func (s *ProjectService) Create(ctx context.Context, req *CreateProjectRequest, caller uuid.UUID) (*models.Project, error) {
	if req.CreatorID != caller {
		return nil, apperr.InvalidCredentials("creator does not match the authenticated user")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("name must not be empty")
	}

	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.User{}).Where("id = ?", caller).Count(&count).Error; err != nil {
		return nil, apperr.Internal("failed to load user", err)
	}
	if count == 0 {
		return nil, apperr.NotFound("user not found")
	}

	project := models.Project{
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		URL:         strings.TrimSpace(req.URL),
		CreatorID:   caller,
	}
	if err := db.Create(&project).Error; err != nil {
		return nil, apperr.Internal("failed to create project", err)
	}

	return &project, nil
}

// Update applies the non-nil fields of req. Only the creator may update.
func (s *ProjectService) Update(ctx context.Context, id uuid.UUID, req *ProjectUpdate, caller uuid.UUID) (*models.Project, error) {
	project, err := s.ownedProject(ctx, id, caller)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperr.Validation("name must not be empty")
		}
		updates["name"] = name
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.URL != nil {
		updates["url"] = strings.TrimSpace(*req.URL)
	}
	if len(updates) == 0 {
		return project, nil
	}

	if err := s.db.WithContext(ctx).Model(project).Updates(updates).Error; err != nil {
		return nil, apperr.Internal("failed to update project", err)
	}

	return project, nil
}

// Delete removes a project. Projects that still have ideas are kept.
func (s *ProjectService) Delete(ctx context.Context, id, caller uuid.UUID) error {
	project, err := s.ownedProject(ctx, id, caller)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ideas int64
		if err := tx.Model(&models.Idea{}).Where("project_id = ?", project.ID).Count(&ideas).Error; err != nil {
			return apperr.Internal("failed to count ideas", err)
		}
		if ideas > 0 {
			return apperr.Conflict("project still has ideas")
		}
		if err := tx.Delete(project).Error; err != nil {
			return apperr.Internal("failed to delete project", err)
		}
		return nil
	})
}

func (s *ProjectService) ownedProject(ctx context.Context, id, caller uuid.UUID) (*models.Project, error) {
	var project models.Project
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("project not found")
	}
	if err != nil {
		return nil, apperr.Internal("failed to load project", err)
	}
	if project.CreatorID != caller {
		return nil, apperr.InvalidCredentials("only the creator may change this project")
	}
	return &project, nil
}
