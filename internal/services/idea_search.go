package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ideahub/backend/internal/apperr"
	"github.com/ideahub/backend/internal/config"
	"github.com/ideahub/backend/pkg/logger"
	"gorm.io/gorm"
)

// IdeaSearchParams filters the idea listing. Zero values mean "no filter".
type IdeaSearchParams struct {
	ProjectID   *uuid.UUID
	CategoryIDs []uint
	Text        string
	Cursor      string
	Limit       int
	Viewer      *uuid.UUID
}

// CommentPreview is a comment as embedded in idea summaries.
type CommentPreview struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// IdeaSummary is one row of the idea listing.
type IdeaSummary struct {
	ID              uuid.UUID        `json:"id"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	ProjectID       uuid.UUID        `json:"project_id"`
	ProjectName     string           `json:"project_name"`
	CreatorID       uuid.UUID        `json:"creator_id"`
	CreatorUsername string           `json:"creator_username"`
	Categories      []string         `json:"categories"`
	Votes           VoteSummary      `json:"votes"`
	CommentCount    int              `json:"comment_count"`
	RecentComments  []CommentPreview `json:"recent_comments"`
	HasCommented    bool             `json:"has_commented"`
	CreatedAt       time.Time        `json:"created_at"`
}

// IdeaPage is a page of summaries. NextCursor is nil on the last page.
type IdeaPage struct {
	Items      []IdeaSummary `json:"items"`
	NextCursor *string       `json:"next_cursor"`
}

type ideaRow struct {
	ID              uuid.UUID
	Title           string
	Description     string
	ProjectID       uuid.UUID
	ProjectName     string
	CreatorID       uuid.UUID
	CreatorUsername string
	CreatedAt       time.Time
}

type commentPreviewRow struct {
	CommentPreview
	IdeaID uuid.UUID
}

// IdeaSearcher builds idea summaries: the page query plus one batched query
// per embedded aggregate.
type IdeaSearcher struct {
	db    *gorm.DB
	votes *VoteAggregator
	cfg   config.SearchConfig
}

func NewIdeaSearcher(db *gorm.DB, votes *VoteAggregator, cfg config.SearchConfig) *IdeaSearcher {
	return &IdeaSearcher{db: db, votes: votes, cfg: cfg}
}

func (s *IdeaSearcher) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		return s.cfg.MaxLimit
	}
	return limit
}

func (s *IdeaSearcher) baseQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("ideas").
		Select(`ideas.id, ideas.title, ideas.description, ideas.project_id,
			projects.name AS project_name, ideas.creator_id,
			users.username AS creator_username, ideas.created_at`).
		Joins("JOIN projects ON projects.id = ideas.project_id").
		Joins("JOIN users ON users.id = ideas.creator_id")
}

// Search returns one page of ideas, newest first. Ideas sharing a creation
// time are ordered by id so that cursors never skip or repeat a row.
func (s *IdeaSearcher) Search(ctx context.Context, p IdeaSearchParams) (*IdeaPage, error) {
	limit := s.clampLimit(p.Limit)
	logger.Debug().
		Interface("project_id", p.ProjectID).
		Uints("category_ids", p.CategoryIDs).
		Str("text", p.Text).
		Int("limit", limit).
		Msg("idea search")

	query := s.baseQuery(ctx)
	if p.ProjectID != nil {
		query = query.Where("ideas.project_id = ?", *p.ProjectID)
	}
	if len(p.CategoryIDs) > 0 {
		query = query.Where("ideas.id IN (SELECT idea_id FROM idea_categories WHERE category_id IN ?)", p.CategoryIDs)
	}
	if text := strings.TrimSpace(p.Text); text != "" {
		like := containsPattern(text)
		query = query.Where(`(LOWER(ideas.title) LIKE ? ESCAPE '!'
			OR LOWER(ideas.description) LIKE ? ESCAPE '!'
			OR LOWER(projects.name) LIKE ? ESCAPE '!'
			OR LOWER(users.username) LIKE ? ESCAPE '!'
			OR ideas.id IN (
				SELECT ic.idea_id FROM idea_categories ic
				JOIN categories c ON c.id = ic.category_id
				WHERE LOWER(c.name) LIKE ? ESCAPE '!'))`, like, like, like, like, like)
	}
	if p.Cursor != "" {
		cur, err := DecodeIdeaCursor(p.Cursor)
		if err != nil {
			return nil, apperr.Validation("invalid cursor")
		}
		query = query.Where("(ideas.created_at < ? OR (ideas.created_at = ? AND ideas.id < ?))",
			cur.CreatedAt, cur.CreatedAt, cur.ID)
	}

	var rows []ideaRow
	err := query.
		Order("ideas.created_at DESC").
		Order("ideas.id DESC").
		Limit(limit + 1).
		Scan(&rows).Error
	if err != nil {
		return nil, searchFailed(err)
	}

	page := &IdeaPage{}
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next := IdeaCursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
		page.NextCursor = &next
	}

	items, err := s.summarize(ctx, rows, p.Viewer)
	if err != nil {
		return nil, err
	}
	page.Items = items
	return page, nil
}

// Get returns the summary of a single idea.
func (s *IdeaSearcher) Get(ctx context.Context, id uuid.UUID, viewer *uuid.UUID) (*IdeaSummary, error) {
	var rows []ideaRow
	if err := s.baseQuery(ctx).Where("ideas.id = ?", id).Limit(1).Scan(&rows).Error; err != nil {
		return nil, searchFailed(err)
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound("idea not found")
	}

	items, err := s.summarize(ctx, rows, viewer)
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}

// likeEscaper escapes LIKE wildcards. '!' is used as the escape character
// because a backslash literal is itself an escape in MySQL strings.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// containsPattern turns free text into a lowercase substring pattern for
// LIKE ... ESCAPE '!'.
func containsPattern(text string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(text)) + "%"
}

func searchFailed(err error) error {
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	return apperr.Internal("search failed", err)
}

// summarize fills the embedded aggregates for rows, preserving their order.
func (s *IdeaSearcher) summarize(ctx context.Context, rows []ideaRow, viewer *uuid.UUID) ([]IdeaSummary, error) {
	items := make([]IdeaSummary, 0, len(rows))
	if len(rows) == 0 {
		return items, nil
	}

	ids := make([]uuid.UUID, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	votes, err := s.votes.Batch(ctx, ids, viewer)
	if err != nil {
		return nil, searchFailed(err)
	}
	categories, err := s.categoryNames(ctx, ids)
	if err != nil {
		return nil, searchFailed(err)
	}
	counts, err := s.commentCounts(ctx, ids)
	if err != nil {
		return nil, searchFailed(err)
	}
	previews, err := s.recentComments(ctx, ids)
	if err != nil {
		return nil, searchFailed(err)
	}
	commented := map[uuid.UUID]bool{}
	if viewer != nil {
		if commented, err = s.viewerCommented(ctx, ids, *viewer); err != nil {
			return nil, searchFailed(err)
		}
	}

	for _, r := range rows {
		item := IdeaSummary{
			ID:              r.ID,
			Title:           r.Title,
			Description:     r.Description,
			ProjectID:       r.ProjectID,
			ProjectName:     r.ProjectName,
			CreatorID:       r.CreatorID,
			CreatorUsername: r.CreatorUsername,
			Categories:      categories[r.ID],
			Votes:           votes[r.ID],
			CommentCount:    counts[r.ID],
			RecentComments:  previews[r.ID],
			HasCommented:    commented[r.ID],
			CreatedAt:       r.CreatedAt,
		}
		if item.Categories == nil {
			item.Categories = []string{}
		}
		if item.RecentComments == nil {
			item.RecentComments = []CommentPreview{}
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *IdeaSearcher) categoryNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]string, error) {
	var rows []struct {
		IdeaID uuid.UUID
		Name   string
	}
	err := s.db.WithContext(ctx).
		Table("idea_categories").
		Select("idea_categories.idea_id, categories.name").
		Joins("JOIN categories ON categories.id = idea_categories.category_id").
		Where("idea_categories.idea_id IN ?", ids).
		Order("categories.name").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[uuid.UUID][]string)
	for _, r := range rows {
		result[r.IdeaID] = append(result[r.IdeaID], r.Name)
	}
	return result, nil
}

func (s *IdeaSearcher) commentCounts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error) {
	var rows []struct {
		IdeaID uuid.UUID
		Count  int
	}
	err := s.db.WithContext(ctx).
		Table("comments").
		Select("idea_id, COUNT(*) AS count").
		Where("idea_id IN ?", ids).
		Group("idea_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[uuid.UUID]int, len(rows))
	for _, r := range rows {
		result[r.IdeaID] = r.Count
	}
	return result, nil
}

// recentComments keeps the newest PreviewComments comments per idea using a
// window function so the page costs one query regardless of its size.
func (s *IdeaSearcher) recentComments(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]CommentPreview, error) {
	result := make(map[uuid.UUID][]CommentPreview)
	if s.cfg.PreviewComments <= 0 {
		return result, nil
	}

	var rows []commentPreviewRow
	err := s.db.WithContext(ctx).Raw(`
		SELECT id, idea_id, user_id, username, content, created_at FROM (
			SELECT comments.id, comments.idea_id, comments.user_id, users.username,
				comments.content, comments.created_at,
				ROW_NUMBER() OVER (
					PARTITION BY comments.idea_id
					ORDER BY comments.created_at DESC, comments.id DESC
				) AS rn
			FROM comments
			JOIN users ON users.id = comments.user_id
			WHERE comments.idea_id IN ?
		) ranked
		WHERE rn <= ?
		ORDER BY idea_id, created_at DESC, id DESC`, ids, s.cfg.PreviewComments).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, r := range rows {
		result[r.IdeaID] = append(result[r.IdeaID], r.CommentPreview)
	}
	return result, nil
}

func (s *IdeaSearcher) viewerCommented(ctx context.Context, ids []uuid.UUID, viewer uuid.UUID) (map[uuid.UUID]bool, error) {
	var commented []uuid.UUID
	err := s.db.WithContext(ctx).
		Table("comments").
		Distinct("idea_id").
		Where("user_id = ? AND idea_id IN ?", viewer, ids).
		Pluck("idea_id", &commented).Error
	if err != nil {
		return nil, err
	}

	result := make(map[uuid.UUID]bool, len(commented))
	for _, id := range commented {
		result[id] = true
	}
	return result, nil
}
