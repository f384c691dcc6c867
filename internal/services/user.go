package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ideahub/backend/internal/apperr"
	"github.com/ideahub/backend/internal/models"
	"github.com/ideahub/backend/internal/utils"
	"gorm.io/gorm"
)

const minPasswordLength = 6

type RegisterRequest struct {
	Username        string `json:"username" binding:"required,max=25"`
	Email           string `json:"email" binding:"required,email,max=40"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// UserProfile is the public view of a user.
type UserProfile struct {
	ID         uuid.UUID `json:"id"`
	Username   string    `json:"username"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
}

func profileOf(u *models.User) *UserProfile {
	return &UserProfile{
		ID:         u.ID,
		Username:   u.Username,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
	}
}

type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// Register creates a verified user. Usernames and emails are stored
// lowercased and must be unique.
func (s *UserService) Register(ctx context.Context, req *RegisterRequest) (*UserProfile, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if username == "" {
		return nil, apperr.Validation("username must not be empty")
	}
	if req.Password != req.ConfirmPassword {
		return nil, apperr.Validation("passwords do not match")
	}
	if len(req.Password) < minPasswordLength {
		return nil, apperr.Validation("password must be at least 6 characters")
	}

	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.User{}).Where("email = ? OR username = ?", email, username).Count(&count).Error; err != nil {
		return nil, apperr.Internal("failed to check user", err)
	}
	if count > 0 {
		return nil, apperr.Conflict("username or email already registered")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Internal("failed to hash password", err)
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsVerified:   true,
	}
	err = db.Create(&user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, apperr.Conflict("username or email already registered")
	}
	if err != nil {
		return nil, apperr.Internal("failed to create user", err)
	}

	return profileOf(&user), nil
}

// Get returns the public profile of a user.
func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*UserProfile, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal("failed to load user", err)
	}
	return profileOf(&user), nil
}
