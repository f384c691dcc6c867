// Package testutil provides an in-memory database and fixtures for
// service and handler tests.
package testutil

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ideahub/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB opens a fresh in-memory sqlite database per test with the
// full schema migrated. A single connection keeps the shared-cache database
// alive and serialises writers the way row locks would.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := "file:" + name + "_" + uuid.NewString()[:8] + "?mode=memory&cache=shared&_busy_timeout=5000"

	db, err := models.Open("sqlite", dsn, logger.Silent)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	migrate(t, db)
	return db
}

// SetupFileDB opens a sqlite database file under t.TempDir() with no cap on
// open connections, so concurrent transactions really contend for the lock.
func SetupFileDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := models.Open("sqlite", filepath.Join(t.TempDir(), "ideahub.db"), logger.Silent)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	migrate(t, db)
	return db
}

func migrate(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
}

// CreateUser inserts a verified user.
func CreateUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	user := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "not-a-real-hash",
		IsVerified:   true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	return user
}

// CreateProject inserts a project owned by creator.
func CreateProject(t *testing.T, db *gorm.DB, creator *models.User, name string) *models.Project {
	t.Helper()

	project := &models.Project{
		Name:        name,
		Description: "project " + name,
		CreatorID:   creator.ID,
	}
	if err := db.Create(project).Error; err != nil {
		t.Fatalf("Failed to create project %s: %v", name, err)
	}
	return project
}

// CreateCategory inserts a category.
func CreateCategory(t *testing.T, db *gorm.DB, name string) *models.Category {
	t.Helper()

	category := &models.Category{Name: name}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("Failed to create category %s: %v", name, err)
	}
	return category
}

// CreateIdea inserts an idea with an explicit creation time so ordering in
// tests does not depend on the clock.
func CreateIdea(t *testing.T, db *gorm.DB, project *models.Project, creator *models.User, title string, createdAt time.Time, categories ...*models.Category) *models.Idea {
	t.Helper()

	idea := &models.Idea{
		Title:       title,
		Description: "description of " + title,
		ProjectID:   project.ID,
		CreatorID:   creator.ID,
		CreatedAt:   createdAt.UTC(),
		UpdatedAt:   createdAt.UTC(),
	}
	if err := db.Create(idea).Error; err != nil {
		t.Fatalf("Failed to create idea %s: %v", title, err)
	}
	for _, c := range categories {
		link := &models.IdeaCategory{IdeaID: idea.ID, CategoryID: c.ID}
		if err := db.Create(link).Error; err != nil {
			t.Fatalf("Failed to link category %s: %v", c.Name, err)
		}
	}
	return idea
}

// CreateComment inserts a comment at the given time.
func CreateComment(t *testing.T, db *gorm.DB, idea *models.Idea, user *models.User, content string, createdAt time.Time) *models.Comment {
	t.Helper()

	comment := &models.Comment{
		IdeaID:    idea.ID,
		UserID:    user.ID,
		Content:   content,
		CreatedAt: createdAt.UTC(),
	}
	if err := db.Create(comment).Error; err != nil {
		t.Fatalf("Failed to create comment: %v", err)
	}
	return comment
}

// CreateVote inserts a vote row directly, bypassing the vote service.
func CreateVote(t *testing.T, db *gorm.DB, idea *models.Idea, user *models.User, up bool) *models.Vote {
	t.Helper()

	vote := &models.Vote{IdeaID: idea.ID, UserID: user.ID, IsUpvote: up}
	if err := db.Create(vote).Error; err != nil {
		t.Fatalf("Failed to create vote: %v", err)
	}
	return vote
}
