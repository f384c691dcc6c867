package services

import (
	"context"
	"testing"

	"github.com/ideahub/backend/internal/apperr"
	"github.com/ideahub/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryService_CreateAndList(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewCategoryService(db)
	ctx := context.Background()

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	created, err := svc.Create(ctx, &CreateCategoryRequest{Name: " Research "})
	require.NoError(t, err)
	assert.Equal(t, "research", created.Name)

	_, err = svc.Create(ctx, &CreateCategoryRequest{Name: "bug"})
	require.NoError(t, err)

	// creating invalidates the cached list
	list, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "bug", list[0].Name)
	assert.Equal(t, "research", list[1].Name)
}

func TestCategoryService_Duplicate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewCategoryService(db)
	ctx := context.Background()

	_, err := svc.Create(ctx, &CreateCategoryRequest{Name: "feature"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, &CreateCategoryRequest{Name: "FEATURE"})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	_, err = svc.Create(ctx, &CreateCategoryRequest{Name: "   "})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCategoryService_ListIsCached(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.CreateCategory(t, db, "feature")
	svc := NewCategoryService(db)
	ctx := context.Background()

	first, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// written behind the service's back, so not yet visible
	testutil.CreateCategory(t, db, "bug")
	second, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, second, 1)
}
