package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Vote is at most one row per (user, idea). The unique index backs up the
// transactional check in the vote service.
type Vote struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:idx_votes_user_idea,priority:1" json:"user_id"`
	IdeaID    uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:idx_votes_user_idea,priority:2;index" json:"idea_id"`
	IsUpvote  bool      `gorm:"not null" json:"is_upvote"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Vote) TableName() string { return "votes" }

func (v *Vote) BeforeCreate(tx *gorm.DB) error {
	newID(&v.ID)
	return nil
}
