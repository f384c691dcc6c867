package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ideahub/backend/internal/config"
	"github.com/ideahub/backend/internal/models"
	"github.com/ideahub/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func storedScore(t *testing.T, db *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var idea models.Idea
	require.NoError(t, db.Where("id = ?", id).Take(&idea).Error)
	return idea.VoteScore
}

func TestScoreService_Rescore(t *testing.T) {
	f := newVoteFixture(t)
	for i, up := range []bool{true, true, false, true} {
		u := testutil.CreateUser(t, f.db, "voter"+string(rune('a'+i)))
		testutil.CreateVote(t, f.db, f.idea, u, up)
	}

	svc := NewScoreService(f.db)
	require.NoError(t, svc.Rescore(context.Background(), f.idea.ID))
	assert.Equal(t, 2, storedScore(t, f.db, f.idea.ID))
}

func TestScoreService_RescoreWithoutVotes(t *testing.T) {
	f := newVoteFixture(t)
	require.NoError(t, f.db.Model(f.idea).UpdateColumn("vote_score", 7).Error)

	require.NoError(t, NewScoreService(f.db).Rescore(context.Background(), f.idea.ID))
	assert.Equal(t, 0, storedScore(t, f.db, f.idea.ID))
}

func TestScoreService_ProcessTaskFromVote(t *testing.T) {
	f := newVoteFixture(t)
	scores := NewScoreService(f.db)
	queue := NewSyncQueue()
	done := make(chan struct{}, 4)
	queue.SetProcessor(func(ctx context.Context, task *RescoreTask) error {
		defer func() { done <- struct{}{} }()
		return scores.ProcessTask(ctx, task)
	})
	svc := NewVoteService(f.db, NewVoteAggregator(f.db), nil, queue)
	voter := testutil.CreateUser(t, f.db, "voter")

	_, err := svc.Cast(context.Background(), f.idea.ID, voter.ID, false)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("rescore task did not run")
	}
	assert.Equal(t, -1, storedScore(t, f.db, f.idea.ID))
}

func TestScoreService_RescoreSince(t *testing.T) {
	db := testutil.SetupTestDB(t)
	owner := testutil.CreateUser(t, db, "owner")
	voter := testutil.CreateUser(t, db, "voter")
	project := testutil.CreateProject(t, db, owner, "apollo")
	now := time.Now().UTC()
	recent := testutil.CreateIdea(t, db, project, owner, "recent", now.Add(-time.Hour))
	old := testutil.CreateIdea(t, db, project, owner, "old", now.AddDate(0, 0, -30))
	testutil.CreateVote(t, db, recent, voter, true)
	testutil.CreateVote(t, db, old, voter, true)

	n, err := NewScoreService(db).RescoreSince(context.Background(), now.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, storedScore(t, db, recent.ID))
	assert.Equal(t, 0, storedScore(t, db, old.ID))
}

func TestScoreService_Drift(t *testing.T) {
	db := testutil.SetupTestDB(t)
	owner := testutil.CreateUser(t, db, "owner")
	voter := testutil.CreateUser(t, db, "voter")
	project := testutil.CreateProject(t, db, owner, "apollo")
	stale := testutil.CreateIdea(t, db, project, owner, "stale", time.Now())
	fresh := testutil.CreateIdea(t, db, project, owner, "fresh", time.Now())
	testutil.CreateVote(t, db, stale, voter, false)
	require.NoError(t, db.Model(fresh).UpdateColumn("vote_score", 0).Error)

	svc := NewScoreService(db)
	drift, err := svc.Drift(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, ScoreDrift{ID: stale.ID, Title: "stale", Stored: 0, Computed: -1}, drift[0])

	_, err = svc.RescoreSince(context.Background(), time.Time{})
	require.NoError(t, err)
	drift, err = svc.Drift(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, drift)
}

func TestScoreScheduler_RunOnceClaimsEachSlotOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	owner := testutil.CreateUser(t, db, "owner")
	project := testutil.CreateProject(t, db, owner, "apollo")
	idea := testutil.CreateIdea(t, db, project, owner, "recent", time.Now())
	testutil.CreateVote(t, db, idea, owner, true)

	cfg := config.SchedulerConfig{RescoreCron: "0 3 * * *", RescoreWindowDays: 7}
	scores := NewScoreService(db)
	first := NewScoreScheduler(db, scores, cfg)
	second := NewScoreScheduler(db, scores, cfg)
	fixed := time.Date(2024, 7, 1, 3, 0, 0, 0, time.UTC)
	first.now = func() time.Time { return fixed }
	second.now = func() time.Time { return fixed }
	// keep the idea inside the window of the fixed clock
	require.NoError(t, db.Model(idea).UpdateColumn("created_at", fixed.Add(-time.Hour)).Error)

	ran, err := first.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, storedScore(t, db, idea.ID))

	ran, err = second.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ran, "second instance must not run the same day")

	second.now = func() time.Time { return fixed.AddDate(0, 0, 1) }
	ran, err = second.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)

	var locks int64
	require.NoError(t, db.Model(&models.SchedulerLock{}).Count(&locks).Error)
	assert.Equal(t, int64(2), locks)

	var lock models.SchedulerLock
	require.NoError(t, db.Where("lock_key = ?", "2024-07-01T03:00").Take(&lock).Error)
	assert.True(t, lock.ExpiresAt.Equal(fixed.AddDate(0, 0, 1)), "claim expires at the next slot, got %s", lock.ExpiresAt)
}

func TestScoreScheduler_RunOnceHourlySchedule(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := config.SchedulerConfig{RescoreCron: "0 * * * *", RescoreWindowDays: 1}
	scores := NewScoreService(db)
	first := NewScoreScheduler(db, scores, cfg)
	second := NewScoreScheduler(db, scores, cfg)

	base := time.Date(2024, 7, 1, 3, 0, 0, 0, time.UTC)
	for hour := 0; hour < 3; hour++ {
		at := base.Add(time.Duration(hour) * time.Hour)
		first.now = func() time.Time { return at.Add(150 * time.Millisecond) }
		second.now = func() time.Time { return at.Add(400 * time.Millisecond) }

		ran, err := first.RunOnce(context.Background())
		require.NoError(t, err)
		assert.True(t, ran, "hour %d: first run of the slot", hour)

		ran, err = second.RunOnce(context.Background())
		require.NoError(t, err)
		assert.False(t, ran, "hour %d: slot already claimed", hour)
	}

	var locks int64
	require.NoError(t, db.Model(&models.SchedulerLock{}).Count(&locks).Error)
	assert.Equal(t, int64(3), locks)
}

func TestScoreScheduler_PruneFailureDoesNotFailRun(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := NewScoreScheduler(db, NewScoreService(db), config.SchedulerConfig{RescoreCron: "0 3 * * *", RescoreWindowDays: 1})
	s.now = func() time.Time { return time.Date(2024, 7, 1, 3, 0, 0, 0, time.UTC) }

	require.NoError(t, db.Callback().Delete().Before("gorm:delete").Register("test:fail_prune", func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "scheduler_locks" {
			_ = tx.AddError(errors.New("prune refused"))
		}
	}))
	t.Cleanup(func() { _ = db.Callback().Delete().Remove("test:fail_prune") })

	ran, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestScoreScheduler_StartRejectsBadCron(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := NewScoreScheduler(db, NewScoreService(db), config.SchedulerConfig{RescoreCron: "not a cron"})
	assert.Error(t, s.Start())
}

func TestScoreScheduler_StartStop(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := NewScoreScheduler(db, NewScoreService(db), config.SchedulerConfig{RescoreCron: "0 3 * * *", RescoreWindowDays: 7})
	require.NoError(t, s.Start())
	s.Stop()
}
