package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/junhao/promptflow/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PromptRepository handles cached prompt data operations.
type PromptRepository struct {
	db *gorm.DB
}

// NewPromptRepository creates a new PromptRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *PromptRepository: repository instance bound to db.
func NewPromptRepository(db *gorm.DB) *PromptRepository {
	return &PromptRepository{db: db}
}

// ListFilter narrows and orders a prompt listing.
type ListFilter struct {
	CategoryID *uint
	Keyword    string
	SortBy     string // "like_count" or "" for created_at
	Page       int
	PageSize   int
}

// PagedPrompts is one page of a prompt listing with the total row count.
type PagedPrompts struct {
	Items    []domain.Prompt `json:"items"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// FindByHash retrieves a cached prompt by its request fingerprint.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - hash: request fingerprint.
// Returns:
//   - *domain.Prompt: cached row if found, nil when absent.
//   - error: non-nil if the lookup fails for reasons other than absence.
func (r *PromptRepository) FindByHash(ctx context.Context, hash string) (*domain.Prompt, error) {
	var prompt domain.Prompt
	err := r.db.WithContext(ctx).First(&prompt, "request_hash = ?", hash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &prompt, nil
}

// RecordHit atomically increments the hit counter of a cached prompt and
// refreshes its update timestamp. The passed row is updated in place.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - prompt: cached row to mark as hit.
// Returns:
//   - error: non-nil if the update fails.
func (r *PromptRepository) RecordHit(ctx context.Context, prompt *domain.Prompt) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Model(prompt).
		UpdateColumns(map[string]interface{}{
			"hit_count":  gorm.Expr("hit_count + 1"),
			"updated_at": now,
		}).Error
	if err != nil {
		return err
	}
	prompt.HitCount++
	prompt.UpdatedAt = now
	return nil
}

// InsertIfAbsent persists a new cached prompt unless a row with the same
// request fingerprint already exists. On conflict the existing row is
// re-fetched and returned, so concurrent duplicate generations converge on
// one canonical row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - prompt: new row to persist.
// Returns:
//   - *domain.Prompt: the persisted row (the winner's row on conflict).
//   - bool: true if this call created the row.
//   - error: non-nil if the insert and the conflict re-fetch both fail.
func (r *PromptRepository) InsertIfAbsent(ctx context.Context, prompt *domain.Prompt) (*domain.Prompt, bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "request_hash"}},
		DoNothing: true,
	}).Create(prompt)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return prompt, true, nil
	}

	// Lost the race: another request stored this fingerprint first.
	existing, err := r.FindByHash(ctx, prompt.RequestHash)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("insert conflict on %s but row not found", prompt.RequestHash)
	}
	return existing, false, nil
}

// Stats aggregates the cache counters.
// Returns:
//   - domain.CacheStats: total rows, accumulated hits, and derived hit rate.
//   - error: non-nil if either aggregate query fails.
func (r *PromptRepository) Stats(ctx context.Context) (domain.CacheStats, error) {
	var stats domain.CacheStats
	if err := r.db.WithContext(ctx).Model(&domain.Prompt{}).Count(&stats.TotalCount).Error; err != nil {
		return stats, err
	}
	var totalHits *int64
	if err := r.db.WithContext(ctx).Model(&domain.Prompt{}).
		Select("SUM(hit_count)").Scan(&totalHits).Error; err != nil {
		return stats, err
	}
	if totalHits != nil {
		stats.TotalHits = *totalHits
	}
	if stats.TotalCount > 0 {
		stats.HitRate = float64(stats.TotalHits) / float64(stats.TotalCount)
	}
	return stats, nil
}

// GetByID retrieves a cached prompt by its ID with tags loaded, nil when
// absent.
func (r *PromptRepository) GetByID(ctx context.Context, id uint) (*domain.Prompt, error) {
	var prompt domain.Prompt
	err := r.db.WithContext(ctx).Preload("Tags").First(&prompt, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &prompt, nil
}

// List retrieves one page of prompts matching the filter, newest first
// unless the filter requests like-count ordering.
func (r *PromptRepository) List(ctx context.Context, filter ListFilter) (*PagedPrompts, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}

	query := r.db.WithContext(ctx).Model(&domain.Prompt{})
	if filter.CategoryID != nil {
		query = query.Where("category_id = ?", *filter.CategoryID)
	}
	if filter.Keyword != "" {
		like := "%" + filter.Keyword + "%"
		query = query.Where("task_description LIKE ? OR generated_prompt LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	if filter.SortBy == "like_count" {
		query = query.Order("like_count DESC, created_at DESC")
	} else {
		query = query.Order("created_at DESC")
	}

	var items []domain.Prompt
	if err := query.
		Limit(filter.PageSize).
		Offset((filter.Page - 1) * filter.PageSize).
		Find(&items).Error; err != nil {
		return nil, err
	}

	return &PagedPrompts{
		Items:    items,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// ListRecent retrieves the most recently created prompts.
func (r *PromptRepository) ListRecent(ctx context.Context, limit int) ([]domain.Prompt, error) {
	var prompts []domain.Prompt
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&prompts).Error; err != nil {
		return nil, err
	}
	return prompts, nil
}

// ListUntagged retrieves prompts that classification has not yet processed,
// newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of rows to return; 0 means no limit.
func (r *PromptRepository) ListUntagged(ctx context.Context, limit int) ([]domain.Prompt, error) {
	query := r.db.WithContext(ctx).
		Where("is_auto_tagged = ? OR is_auto_tagged IS NULL", false).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var prompts []domain.Prompt
	if err := query.Find(&prompts).Error; err != nil {
		return nil, err
	}
	return prompts, nil
}

// ListAll retrieves every cached prompt, newest first. Used by full
// reclassification.
func (r *PromptRepository) ListAll(ctx context.Context) ([]domain.Prompt, error) {
	var prompts []domain.Prompt
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&prompts).Error; err != nil {
		return nil, err
	}
	return prompts, nil
}

// ListByTagID retrieves one page of prompts linked to a tag.
func (r *PromptRepository) ListByTagID(ctx context.Context, tagID uint, page, pageSize int) (*PagedPrompts, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	base := r.db.WithContext(ctx).Model(&domain.Prompt{}).
		Joins("JOIN prompt_tag_relation rel ON rel.prompt_id = prompt_cache.id").
		Where("rel.tag_id = ?", tagID)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, err
	}

	var items []domain.Prompt
	if err := base.
		Order("prompt_cache.created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&items).Error; err != nil {
		return nil, err
	}

	return &PagedPrompts{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// SaveClassification persists the classification outcome onto a prompt row:
// category id, auto-tagged flag, and the serialized AI tag list.
func (r *PromptRepository) SaveClassification(ctx context.Context, prompt *domain.Prompt) error {
	return r.db.WithContext(ctx).Model(prompt).
		Select("category_id", "is_auto_tagged", "ai_tags").
		Updates(map[string]interface{}{
			"category_id":    prompt.CategoryID,
			"is_auto_tagged": prompt.IsAutoTagged,
			"ai_tags":        prompt.AITags,
		}).Error
}

// ReplaceTags replaces the prompt's tag associations with the given set.
// Passing an empty slice clears all associations.
func (r *PromptRepository) ReplaceTags(ctx context.Context, prompt *domain.Prompt, tags []domain.Tag) error {
	return r.db.WithContext(ctx).Model(prompt).Association("Tags").Replace(tags)
}

// IncrementLike adds one to a prompt's like counter.
func (r *PromptRepository) IncrementLike(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&domain.Prompt{}).
		Where("id = ?", id).
		UpdateColumn("like_count", gorm.Expr("like_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a cached prompt and its tag associations.
func (r *PromptRepository) Delete(ctx context.Context, id uint) error {
	prompt := domain.Prompt{ID: id}
	if err := r.db.WithContext(ctx).Model(&prompt).Association("Tags").Clear(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Delete(&prompt).Error
}

// CountByCategory counts prompts grouped by category id, skipping rows that
// have not been classified yet.
func (r *PromptRepository) CountByCategory(ctx context.Context) ([]domain.CategoryCount, error) {
	var counts []domain.CategoryCount
	if err := r.db.WithContext(ctx).Model(&domain.Prompt{}).
		Select("category_id, COUNT(*) as count").
		Where("category_id IS NOT NULL").
		Group("category_id").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	return counts, nil
}
