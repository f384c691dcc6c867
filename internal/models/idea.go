package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Idea is a proposal posted under a project.
type Idea struct {
	ID          uuid.UUID  `gorm:"type:char(36);primaryKey;index:idx_ideas_created_id,priority:2" json:"id"`
	Title       string     `gorm:"size:300;not null" json:"title"`
	Description string     `gorm:"type:text;not null" json:"description"`
	ProjectID   uuid.UUID  `gorm:"type:char(36);not null;index" json:"project_id"`
	Project     *Project   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"project,omitempty"`
	CreatorID   uuid.UUID  `gorm:"type:char(36);not null;index" json:"creator_id"`
	Creator     *User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"creator,omitempty"`
	Categories  []Category `gorm:"many2many:idea_categories;" json:"categories,omitempty"`
	// VoteScore is a denormalised upvotes-downvotes refreshed by the rescore
	// worker. Reads that need exact counts aggregate the votes table instead.
	VoteScore int       `gorm:"not null;default:0;index" json:"vote_score"`
	CreatedAt time.Time `gorm:"index:idx_ideas_created_id,priority:1" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Idea) TableName() string { return "ideas" }

func (i *Idea) BeforeCreate(tx *gorm.DB) error {
	newID(&i.ID)
	return nil
}

// IdeaCategory is the join row between ideas and categories.
type IdeaCategory struct {
	IdeaID     uuid.UUID `gorm:"type:char(36);primaryKey"`
	CategoryID uint      `gorm:"primaryKey;index"`
}

func (IdeaCategory) TableName() string { return "idea_categories" }
