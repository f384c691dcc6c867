package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/ideahub/backend/internal/apperr"
	"gorm.io/gorm"
)

// VoteCounts is the public tally for one idea.
type VoteCounts struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
	Total     int `json:"total"`
	Score     int `json:"score"`
}

// VoteSummary adds the viewer's own vote to the tally. IsUpvote is nil
// when the viewer has not voted or is anonymous.
type VoteSummary struct {
	VoteCounts
	HasVoted bool  `json:"has_voted"`
	IsUpvote *bool `json:"is_upvote"`
}

type voteAggregateRow struct {
	IdeaID     uuid.UUID
	Upvotes    int
	Downvotes  int
	ViewerUp   int
	ViewerDown int
}

func (r voteAggregateRow) summary() VoteSummary {
	s := VoteSummary{VoteCounts: newVoteCounts(r.Upvotes, r.Downvotes)}
	switch {
	case r.ViewerUp > 0:
		up := true
		s.HasVoted, s.IsUpvote = true, &up
	case r.ViewerDown > 0:
		down := false
		s.HasVoted, s.IsUpvote = true, &down
	}
	return s
}

func newVoteCounts(up, down int) VoteCounts {
	return VoteCounts{
		Upvotes:   up,
		Downvotes: down,
		Total:     up + down,
		Score:     up - down,
	}
}

// voteAggregateColumns counts both polarities and the viewer's vote in one
// pass. A nil viewer binds uuid.Nil, which matches no row.
const voteAggregateColumns = `
	COUNT(CASE WHEN is_upvote = ? THEN 1 END) AS upvotes,
	COUNT(CASE WHEN is_upvote = ? THEN 1 END) AS downvotes,
	COUNT(CASE WHEN user_id = ? AND is_upvote = ? THEN 1 END) AS viewer_up,
	COUNT(CASE WHEN user_id = ? AND is_upvote = ? THEN 1 END) AS viewer_down`

// VoteAggregator computes vote tallies from the votes table.
type VoteAggregator struct {
	db *gorm.DB
}

func NewVoteAggregator(db *gorm.DB) *VoteAggregator {
	return &VoteAggregator{db: db}
}

func aggregateArgs(viewer *uuid.UUID) []interface{} {
	v := uuid.Nil
	if viewer != nil {
		v = *viewer
	}
	return []interface{}{true, false, v, true, v, false}
}

// Summary returns the tally for one idea. It does not check that the idea
// exists; an unknown idea has zero votes.
func (a *VoteAggregator) Summary(ctx context.Context, ideaID uuid.UUID, viewer *uuid.UUID) (*VoteSummary, error) {
	var row voteAggregateRow
	args := append(aggregateArgs(viewer), ideaID)
	err := a.db.WithContext(ctx).
		Raw("SELECT"+voteAggregateColumns+" FROM votes WHERE idea_id = ?", args...).
		Scan(&row).Error
	if err != nil {
		return nil, apperr.Internal("failed to count votes", err)
	}

	s := row.summary()
	return &s, nil
}

// Batch returns tallies for many ideas in a single grouped query. Ideas
// without votes are present with zero counts.
func (a *VoteAggregator) Batch(ctx context.Context, ideaIDs []uuid.UUID, viewer *uuid.UUID) (map[uuid.UUID]VoteSummary, error) {
	result := make(map[uuid.UUID]VoteSummary, len(ideaIDs))
	if len(ideaIDs) == 0 {
		return result, nil
	}

	var rows []voteAggregateRow
	args := append(aggregateArgs(viewer), ideaIDs)
	err := a.db.WithContext(ctx).
		Raw("SELECT idea_id,"+voteAggregateColumns+" FROM votes WHERE idea_id IN ? GROUP BY idea_id", args...).
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internal("failed to count votes", err)
	}

	for _, id := range ideaIDs {
		result[id] = VoteSummary{}
	}
	for _, r := range rows {
		result[r.IdeaID] = r.summary()
	}
	return result, nil
}
