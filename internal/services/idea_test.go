package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ideahub/backend/internal/apperr"
	"github.com/ideahub/backend/internal/models"
	"github.com/ideahub/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdeaService_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	alice := testutil.CreateUser(t, db, "alice")
	project := testutil.CreateProject(t, db, alice, "Apollo")
	feature := testutil.CreateCategory(t, db, "feature")
	bug := testutil.CreateCategory(t, db, "bug")
	svc := NewIdeaService(db, newTestSearcher(db))

	detail, err := svc.Create(context.Background(), &CreateIdeaRequest{
		Title:       "  <b>Reusable</b> boosters ",
		Description: "Land the **first stage**.",
		CategoryIDs: []uint{feature.ID, bug.ID, feature.ID},
		CreatorID:   alice.ID,
		ProjectID:   project.ID,
	}, alice.ID)
	require.NoError(t, err)

	assert.Equal(t, "Reusable boosters", detail.Title)
	assert.Equal(t, "Land the **first stage**.", detail.Description)
	assert.Contains(t, detail.DescriptionHTML, "<strong>first stage</strong>")
	assert.Equal(t, []string{"bug", "feature"}, detail.Categories)
	assert.Equal(t, "Apollo", detail.ProjectName)
	assert.Equal(t, "alice", detail.CreatorUsername)
	assert.Empty(t, detail.Comments)

	var links int64
	require.NoError(t, db.Model(&models.IdeaCategory{}).Where("idea_id = ?", detail.ID).Count(&links).Error)
	assert.Equal(t, int64(2), links)
}

func TestIdeaService_CreateErrors(t *testing.T) {
	db := testutil.SetupTestDB(t)
	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")
	project := testutil.CreateProject(t, db, alice, "Apollo")
	feature := testutil.CreateCategory(t, db, "feature")
	ghost := uuid.New()
	svc := NewIdeaService(db, newTestSearcher(db))

	valid := func() *CreateIdeaRequest {
		return &CreateIdeaRequest{
			Title:       "title",
			Description: "description",
			CategoryIDs: []uint{feature.ID},
			CreatorID:   alice.ID,
			ProjectID:   project.ID,
		}
	}

	tests := []struct {
		name   string
		mutate func(r *CreateIdeaRequest)
		caller uuid.UUID
		kind   apperr.Kind
	}{
		{"creator is not caller", func(r *CreateIdeaRequest) {}, bob.ID, apperr.KindInvalidCredentials},
		{"unknown caller", func(r *CreateIdeaRequest) { r.CreatorID = ghost }, ghost, apperr.KindNotFound},
		{"missing project", func(r *CreateIdeaRequest) { r.ProjectID = uuid.New() }, alice.ID, apperr.KindNotFound},
		{"missing category", func(r *CreateIdeaRequest) { r.CategoryIDs = []uint{feature.ID, 999} }, alice.ID, apperr.KindNotFound},
		{"markup-only title", func(r *CreateIdeaRequest) { r.Title = "<i></i>" }, alice.ID, apperr.KindValidation},
		{"blank description", func(r *CreateIdeaRequest) { r.Description = "   " }, alice.ID, apperr.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(req)
			_, err := svc.Create(context.Background(), req, tt.caller)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}

	var count int64
	require.NoError(t, db.Model(&models.Idea{}).Count(&count).Error)
	assert.Equal(t, int64(0), count, "failed creates must not leave ideas behind")
}

func TestIdeaService_CreateByUnknownUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	alice := testutil.CreateUser(t, db, "alice")
	project := testutil.CreateProject(t, db, alice, "Apollo")
	svc := NewIdeaService(db, newTestSearcher(db))

	ghost := uuid.New()
	_, err := svc.Create(context.Background(), &CreateIdeaRequest{
		Title:       "title",
		Description: "description",
		CreatorID:   ghost,
		ProjectID:   project.ID,
	}, ghost)

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindNotFound, appErr.Kind)
	assert.Equal(t, "user not found", appErr.Message)

	var count int64
	require.NoError(t, db.Model(&models.Idea{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestIdeaService_GetDetail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")
	project := testutil.CreateProject(t, db, alice, "Apollo")
	base := time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)
	idea := testutil.CreateIdea(t, db, project, alice, "Rocket", base)
	for i, u := range []*models.User{bob, alice, bob} {
		testutil.CreateComment(t, db, idea, u, strings.Repeat("x", i+1), base.Add(time.Duration(i)*time.Minute))
	}
	testutil.CreateVote(t, db, idea, bob, false)

	svc := NewIdeaService(db, newTestSearcher(db))
	detail, err := svc.Get(context.Background(), idea.ID, &bob.ID)
	require.NoError(t, err)

	require.Len(t, detail.Comments, 3)
	assert.Equal(t, "xxx", detail.Comments[0].Content)
	assert.True(t, detail.Comments[0].IsUserComment)
	assert.False(t, detail.Comments[1].IsUserComment)
	assert.Equal(t, "x", detail.Comments[2].Content)
	assert.Equal(t, 3, detail.CommentCount)
	assert.Len(t, detail.RecentComments, 2)
	assert.True(t, detail.HasCommented)
	require.NotNil(t, detail.Votes.IsUpvote)
	assert.False(t, *detail.Votes.IsUpvote)
	assert.Equal(t, -1, detail.Votes.Score)

	_, err = svc.Get(context.Background(), uuid.New(), nil)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestUniqueUints(t *testing.T) {
	assert.Equal(t, []uint{3, 1, 2}, uniqueUints([]uint{3, 1, 3, 2, 1}))
	assert.Equal(t, []uint{}, uniqueUints(nil))
}
