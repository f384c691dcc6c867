package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/ideahub/backend/internal/apperr"
	"github.com/ideahub/backend/internal/models"
	"github.com/ideahub/backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VoteAction is what a mutation did to the (user, idea) vote row.
type VoteAction string

const (
	VoteCreated   VoteAction = "created"
	VoteFlipped   VoteAction = "flipped"
	VoteRetracted VoteAction = "retracted"
)

// maxVoteAttempts bounds retries when two first votes on the same pair race
// into the unique index.
const maxVoteAttempts = 3

// VoteService applies vote mutations and reports the resulting tally.
type VoteService struct {
	db        *gorm.DB
	votes     *VoteAggregator
	publisher VotePublisher
	queue     TaskQueue
}

// NewVoteService wires the mutation path. publisher and queue may be nil.
func NewVoteService(db *gorm.DB, votes *VoteAggregator, publisher VotePublisher, queue TaskQueue) *VoteService {
	return &VoteService{db: db, votes: votes, publisher: publisher, queue: queue}
}

// Counts returns the tally for an existing idea.
func (s *VoteService) Counts(ctx context.Context, ideaID uuid.UUID, viewer *uuid.UUID) (*VoteSummary, error) {
	if err := ensureIdea(s.db.WithContext(ctx), ideaID); err != nil {
		return nil, err
	}
	return s.votes.Summary(ctx, ideaID, viewer)
}

// Cast submits a vote of the given polarity. No vote creates one, the same
// polarity retracts it and the opposite polarity flips it.
func (s *VoteService) Cast(ctx context.Context, ideaID, userID uuid.UUID, upvote bool) (*VoteSummary, error) {
	var action VoteAction
	var err error
	for attempt := 1; attempt <= maxVoteAttempts; attempt++ {
		action, err = s.cast(ctx, ideaID, userID, upvote)
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		logger.Debug().
			Str("idea_id", ideaID.String()).
			Str("user_id", userID.String()).
			Int("attempt", attempt).
			Msg("[Vote] Concurrent first vote, retrying")
	}
	if err != nil {
		return nil, voteFailed(err)
	}

	return s.afterMutation(ctx, ideaID, userID, action)
}

func (s *VoteService) cast(ctx context.Context, ideaID, userID uuid.UUID, upvote bool) (VoteAction, error) {
	var action VoteAction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureIdea(tx, ideaID); err != nil {
			return err
		}

		existing, err := lockVote(tx, ideaID, userID)
		if err != nil {
			return err
		}

		switch {
		case existing == nil:
			action = VoteCreated
			return tx.Create(&models.Vote{UserID: userID, IdeaID: ideaID, IsUpvote: upvote}).Error
		case existing.IsUpvote == upvote:
			action = VoteRetracted
			return tx.Delete(existing).Error
		default:
			action = VoteFlipped
			return tx.Model(existing).Update("is_upvote", upvote).Error
		}
	})
	return action, err
}

// Retract deletes the caller's vote. A missing vote is NotFound.
func (s *VoteService) Retract(ctx context.Context, ideaID, userID uuid.UUID) (*VoteSummary, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureIdea(tx, ideaID); err != nil {
			return err
		}

		existing, err := lockVote(tx, ideaID, userID)
		if err != nil {
			return err
		}
		if existing == nil {
			return apperr.NotFound("vote not found")
		}
		return tx.Delete(existing).Error
	})
	if err != nil {
		return nil, voteFailed(err)
	}

	return s.afterMutation(ctx, ideaID, userID, VoteRetracted)
}

// afterMutation reads the committed tally, then fans it out. Fan-out and
// rescore failures are logged; the vote itself already succeeded.
func (s *VoteService) afterMutation(ctx context.Context, ideaID, userID uuid.UUID, action VoteAction) (*VoteSummary, error) {
	logger.Info().
		Str("idea_id", ideaID.String()).
		Str("user_id", userID.String()).
		Str("action", string(action)).
		Msg("[Vote] Vote updated")

	summary, err := s.votes.Summary(ctx, ideaID, &userID)
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishVotes(ctx, ideaID, summary.VoteCounts); err != nil {
			logger.Error().Err(err).Str("idea_id", ideaID.String()).Msg("[Vote] Failed to publish update")
		}
	}
	if s.queue != nil {
		if err := s.queue.Enqueue(&RescoreTask{IdeaID: ideaID}); err != nil {
			logger.Error().Err(err).Str("idea_id", ideaID.String()).Msg("[Vote] Failed to enqueue rescore")
		}
	}
	return summary, nil
}

// lockVote loads the (user, idea) vote for update. Returns nil when absent.
func lockVote(tx *gorm.DB, ideaID, userID uuid.UUID) (*models.Vote, error) {
	var vote models.Vote
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND idea_id = ?", userID, ideaID).
		Take(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &vote, nil
}

func ensureIdea(db *gorm.DB, ideaID uuid.UUID) error {
	var count int64
	if err := db.Model(&models.Idea{}).Where("id = ?", ideaID).Count(&count).Error; err != nil {
		return apperr.Internal("failed to load idea", err)
	}
	if count == 0 {
		return apperr.NotFound("idea not found")
	}
	return nil
}

func voteFailed(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Internal("vote failed", err)
}
