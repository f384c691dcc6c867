package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/ideahub/backend/internal/apperr"
	"github.com/ideahub/backend/internal/models"
	"gorm.io/gorm"
)

const categoryCacheKey = "all"

type CreateCategoryRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

// CategoryService serves the category list from a short-lived cache; the
// list changes rarely and is read on every idea form.
type CategoryService struct {
	db    *gorm.DB
	cache *expirable.LRU[string, []models.Category]
}

func NewCategoryService(db *gorm.DB) *CategoryService {
	return &CategoryService{
		db:    db,
		cache: expirable.NewLRU[string, []models.Category](1, nil, time.Minute),
	}
}

// List returns all categories ordered by name.
func (s *CategoryService) List(ctx context.Context) ([]models.Category, error) {
	if cached, ok := s.cache.Get(categoryCacheKey); ok {
		return cached, nil
	}

	var categories []models.Category
	if err := s.db.WithContext(ctx).Order("name").Find(&categories).Error; err != nil {
		return nil, apperr.Internal("failed to list categories", err)
	}

	s.cache.Add(categoryCacheKey, categories)
	return categories, nil
}

// Create adds a category; names are unique, case-insensitively.
func (s *CategoryService) Create(ctx context.Context, req *CreateCategoryRequest) (*models.Category, error) {
	name := strings.ToLower(strings.TrimSpace(req.Name))
	if name == "" {
		return nil, apperr.Validation("name must not be empty")
	}

	category := models.Category{Name: name}
	err := s.db.WithContext(ctx).Create(&category).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, apperr.Conflict("category already exists")
	}
	if err != nil {
		return nil, apperr.Internal("failed to create category", err)
	}

	s.cache.Remove(categoryCacheKey)
	return &category, nil
}
