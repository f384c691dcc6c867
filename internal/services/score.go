package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ideahub/backend/internal/apperr"
	"github.com/ideahub/backend/internal/models"
	"github.com/ideahub/backend/pkg/logger"
	"gorm.io/gorm"
)

const voteScoreExpr = `(SELECT COALESCE(SUM(CASE WHEN votes.is_upvote = ? THEN 1 ELSE -1 END), 0)
	FROM votes WHERE votes.idea_id = ideas.id)`

// ScoreService keeps ideas.vote_score in step with the votes table.
type ScoreService struct {
	db *gorm.DB
}

func NewScoreService(db *gorm.DB) *ScoreService {
	return &ScoreService{db: db}
}

// Rescore recomputes the score of one idea.
func (s *ScoreService) Rescore(ctx context.Context, ideaID uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Model(&models.Idea{}).
		Where("id = ?", ideaID).
		UpdateColumn("vote_score", gorm.Expr(voteScoreExpr, true)).Error
	if err != nil {
		return apperr.Internal("failed to rescore idea", err)
	}
	return nil
}

// RescoreSince recomputes every idea created at or after since and returns
// how many rows were touched.
func (s *ScoreService) RescoreSince(ctx context.Context, since time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Idea{}).
		Where("created_at >= ?", since.UTC()).
		UpdateColumn("vote_score", gorm.Expr(voteScoreExpr, true))
	if result.Error != nil {
		return 0, apperr.Internal("failed to rescore ideas", result.Error)
	}
	return result.RowsAffected, nil
}

// ScoreDrift is an idea whose stored score disagrees with its votes.
type ScoreDrift struct {
	ID       uuid.UUID `json:"id"`
	Title    string    `json:"title"`
	Stored   int       `json:"stored"`
	Computed int       `json:"computed"`
}

// Drift lists ideas created at or after since whose vote_score is stale.
func (s *ScoreService) Drift(ctx context.Context, since time.Time) ([]ScoreDrift, error) {
	var rows []ScoreDrift
	err := s.db.WithContext(ctx).
		Table("ideas").
		Select("ideas.id, ideas.title, ideas.vote_score AS stored, "+voteScoreExpr+" AS computed", true).
		Where("ideas.created_at >= ?", since.UTC()).
		Where("ideas.vote_score <> "+voteScoreExpr, true).
		Order("ideas.created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internal("failed to compare scores", err)
	}
	return rows, nil
}

// ProcessTask is the TaskQueue/Worker processor for rescore tasks.
func (s *ScoreService) ProcessTask(ctx context.Context, task *RescoreTask) error {
	if err := s.Rescore(ctx, task.IdeaID); err != nil {
		logger.Error().Err(err).Str("idea_id", task.IdeaID.String()).Msg("[Score] Rescore failed")
		return err
	}
	return nil
}
