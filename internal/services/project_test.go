package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ideahub/backend/internal/apperr"
	"github.com/ideahub/backend/internal/models"
	"github.com/ideahub/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestProjectService_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")
	svc := NewProjectService(db)
	ctx := context.Background()

	project, err := svc.Create(ctx, &CreateProjectRequest{
		Name:        " Apollo ",
		Description: "moon shots",
		URL:         "https://example.com/apollo",
		CreatorID:   alice.ID,
	}, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Apollo", project.Name)
	assert.Equal(t, alice.ID, project.CreatorID)

	_, err = svc.Create(ctx, &CreateProjectRequest{Name: "x", CreatorID: alice.ID}, bob.ID)
	assert.Equal(t, apperr.KindInvalidCredentials, apperr.KindOf(err))

	ghost := uuid.New()
	_, err = svc.Create(ctx, &CreateProjectRequest{Name: "x", CreatorID: ghost}, ghost)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestProjectService_ListAndGet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	alice := testutil.CreateUser(t, db, "alice")
	for i := 0; i < 5; i++ {
		testutil.CreateProject(t, db, alice, fmt.Sprintf("Project %d", i))
	}
	testutil.CreateProject(t, db, alice, "Lighthouse")
	svc := NewProjectService(db)
	ctx := context.Background()

	resp, err := svc.List(ctx, &ProjectListRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(6), resp.Total)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 10, resp.PageSize)
	assert.Len(t, resp.Items, 6)

	resp, err = svc.List(ctx, &ProjectListRequest{Page: 2, PageSize: 4})
	require.NoError(t, err)
	assert.Len(t, resp.Items, 2)

	resp, err = svc.List(ctx, &ProjectListRequest{Name: "light"})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	require.NotNil(t, resp.Items[0].Creator)
	assert.Equal(t, "alice", resp.Items[0].Creator.Username)
	lighthouseID := resp.Items[0].ID

	resp, err = svc.List(ctx, &ProjectListRequest{Name: "_"})
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
	assert.Equal(t, int64(0), resp.Total)

	got, err := svc.GetByID(ctx, lighthouseID)
	require.NoError(t, err)
	assert.Equal(t, "Lighthouse", got.Name)

	_, err = svc.GetByID(ctx, uuid.New())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestProjectService_PartialUpdate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")
	project := testutil.CreateProject(t, db, alice, "Apollo")
	svc := NewProjectService(db)
	ctx := context.Background()

	updated, err := svc.Update(ctx, project.ID, &ProjectUpdate{Description: strPtr("new description")}, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Apollo", updated.Name)
	assert.Equal(t, "new description", updated.Description)

	var stored models.Project
	require.NoError(t, db.Where("id = ?", project.ID).Take(&stored).Error)
	assert.Equal(t, "Apollo", stored.Name)
	assert.Equal(t, "new description", stored.Description)

	updated, err = svc.Update(ctx, project.ID, &ProjectUpdate{Name: strPtr("Artemis"), URL: strPtr("")}, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Artemis", updated.Name)
	assert.Equal(t, "", updated.URL)

	_, err = svc.Update(ctx, project.ID, &ProjectUpdate{Name: strPtr("Hijack")}, bob.ID)
	assert.Equal(t, apperr.KindInvalidCredentials, apperr.KindOf(err))

	_, err = svc.Update(ctx, project.ID, &ProjectUpdate{Name: strPtr("  ")}, alice.ID)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.Update(ctx, uuid.New(), &ProjectUpdate{}, alice.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestProjectService_Delete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")
	empty := testutil.CreateProject(t, db, alice, "Empty")
	busy := testutil.CreateProject(t, db, alice, "Busy")
	testutil.CreateIdea(t, db, busy, alice, "keeps it alive", time.Now())
	svc := NewProjectService(db)
	ctx := context.Background()

	err := svc.Delete(ctx, empty.ID, bob.ID)
	assert.Equal(t, apperr.KindInvalidCredentials, apperr.KindOf(err))

	err = svc.Delete(ctx, busy.ID, alice.ID)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	require.NoError(t, svc.Delete(ctx, empty.ID, alice.ID))
	_, err = svc.GetByID(ctx, empty.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
