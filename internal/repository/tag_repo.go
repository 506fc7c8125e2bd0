package repository

import (
	"context"
	"errors"

	"github.com/junhao/promptflow/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TagRepository handles tag data operations.
type TagRepository struct {
	db *gorm.DB
}

// NewTagRepository creates a new TagRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *TagRepository: repository instance bound to db.
func NewTagRepository(db *gorm.DB) *TagRepository {
	return &TagRepository{db: db}
}

// FindByName retrieves a tag by its unique name.
// Returns nil without error when the tag does not exist.
func (r *TagRepository) FindByName(ctx context.Context, name string) (*domain.Tag, error) {
	var tag domain.Tag
	err := r.db.WithContext(ctx).First(&tag, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

// GetOrCreate returns the tag with the given name, creating it with the
// supplied color when absent. Creation is insert-if-absent on the unique
// name so concurrent classification passes converge on one row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - name: tag name.
//   - color: color assigned if the tag is newly created.
// Returns:
//   - *domain.Tag: existing or newly created tag.
//   - error: non-nil if both the insert and the conflict re-fetch fail.
func (r *TagRepository) GetOrCreate(ctx context.Context, name, color string) (*domain.Tag, error) {
	tag := domain.Tag{
		Name:     name,
		Color:    color,
		IsSystem: false,
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&tag)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		return &tag, nil
	}
	return r.FindByName(ctx, name)
}

// IncrementUsage adds one to a tag's usage counter.
func (r *TagRepository) IncrementUsage(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&domain.Tag{}).
		Where("id = ?", id).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1")).Error
}

// GetByID retrieves a tag by its ID, nil when absent.
func (r *TagRepository) GetByID(ctx context.Context, id uint) (*domain.Tag, error) {
	var tag domain.Tag
	err := r.db.WithContext(ctx).First(&tag, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

// ListByUsage retrieves all tags ordered by usage count descending.
func (r *TagRepository) ListByUsage(ctx context.Context) ([]domain.Tag, error) {
	var tags []domain.Tag
	if err := r.db.WithContext(ctx).
		Order("usage_count DESC, name ASC").
		Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

// ListPopular retrieves the most used tags, capped at limit.
func (r *TagRepository) ListPopular(ctx context.Context, limit int) ([]domain.Tag, error) {
	var tags []domain.Tag
	if err := r.db.WithContext(ctx).
		Order("usage_count DESC, name ASC").
		Limit(limit).
		Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

// Count returns the number of tag rows.
func (r *TagRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Tag{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CreateAll inserts the given tags. Used by seeding.
func (r *TagRepository) CreateAll(ctx context.Context, tags []domain.Tag) error {
	return r.db.WithContext(ctx).Create(&tags).Error
}
