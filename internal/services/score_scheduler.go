package services

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/ideahub/backend/internal/config"
	"github.com/ideahub/backend/internal/models"
	"github.com/ideahub/backend/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const rescoreLockName = "idea_rescore"

// ScoreScheduler periodically reconciles vote scores for recent ideas. Only
// one instance runs each scheduled pass; the others lose the lock claim.
type ScoreScheduler struct {
	db      *gorm.DB
	scores  *ScoreService
	cfg     config.SchedulerConfig
	cron    *cron.Cron
	entryID cron.EntryID
	owner   string
	now     func() time.Time
}

func NewScoreScheduler(db *gorm.DB, scores *ScoreService, cfg config.SchedulerConfig) *ScoreScheduler {
	owner, _ := os.Hostname()
	return &ScoreScheduler{
		db:     db,
		scores: scores,
		cfg:    cfg,
		owner:  owner,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *ScoreScheduler) Start() error {
	s.cron = cron.New()

	entryID, err := s.cron.AddFunc(s.cfg.RescoreCron, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			logger.Errorf("[ScoreScheduler] Run failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	s.entryID = entryID
	s.cron.Start()
	logger.Infof("[ScoreScheduler] Scheduled rescore (cron: %s)", s.cfg.RescoreCron)
	return nil
}

func (s *ScoreScheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// RunOnce claims the current schedule slot and rescores the configured
// window. It returns false when another instance already claimed the slot.
func (s *ScoreScheduler) RunOnce(ctx context.Context) (bool, error) {
	now := s.now()
	claimed, err := s.claim(ctx, now)
	if err != nil || !claimed {
		return false, err
	}

	since := now.AddDate(0, 0, -s.cfg.RescoreWindowDays)
	n, err := s.scores.RescoreSince(ctx, since)
	if err != nil {
		return true, err
	}
	logger.Infof("[ScoreScheduler] Rescored %d ideas since %s", n, since.Format(time.RFC3339))
	return true, nil
}

// claim inserts the lock row for the slot now falls in. cron fires on minute
// boundaries, so the slot is the minute; instances firing for the same
// schedule entry compute the same key.
func (s *ScoreScheduler) claim(ctx context.Context, now time.Time) (bool, error) {
	slot := now.Truncate(time.Minute)
	expires := slot.Add(24 * time.Hour)
	if sched, err := cron.ParseStandard(s.cfg.RescoreCron); err == nil {
		expires = sched.Next(slot)
	}

	lock := models.SchedulerLock{
		LockName:  rescoreLockName,
		LockKey:   slot.Format("2006-01-02T15:04"),
		LockedBy:  s.owner,
		LockedAt:  now,
		ExpiresAt: expires,
	}
	err := s.db.WithContext(ctx).Create(&lock).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	// expired claims are kept for a week for inspection
	if err := s.db.WithContext(ctx).
		Where("lock_name = ? AND expires_at < ?", rescoreLockName, now.AddDate(0, 0, -7)).
		Delete(&models.SchedulerLock{}).Error; err != nil {
		logger.Error().Err(err).Str("lock", rescoreLockName).Msg("[ScoreScheduler] Failed to prune expired locks")
	}
	return true, nil
}
