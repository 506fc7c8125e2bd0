package repository

import (
	"context"
	"errors"

	"github.com/junhao/promptflow/internal/domain"
	"gorm.io/gorm"
)

// CategoryRepository handles category data operations. The core never
// mutates categories beyond seeding; all writes come from admin CRUD.
type CategoryRepository struct {
	db *gorm.DB
}

// NewCategoryRepository creates a new CategoryRepository.
func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// GetByID retrieves a category by its ID. Returns nil without error when
// the category does not exist.
func (r *CategoryRepository) GetByID(ctx context.Context, id uint) (*domain.Category, error) {
	var category domain.Category
	err := r.db.WithContext(ctx).First(&category, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// ListOrdered retrieves all categories in sort order.
func (r *CategoryRepository) ListOrdered(ctx context.Context) ([]domain.Category, error) {
	var categories []domain.Category
	if err := r.db.WithContext(ctx).
		Order("sort_order ASC").
		Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

// ListSystemOrdered retrieves system categories in sort order. Used to
// build the arbiter's category enumeration.
func (r *CategoryRepository) ListSystemOrdered(ctx context.Context) ([]domain.Category, error) {
	var categories []domain.Category
	if err := r.db.WithContext(ctx).
		Where("is_system = ?", true).
		Order("sort_order ASC").
		Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

// Count returns the number of category rows.
func (r *CategoryRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Category{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CreateAll inserts the given categories. Used by seeding.
func (r *CategoryRepository) CreateAll(ctx context.Context, categories []domain.Category) error {
	return r.db.WithContext(ctx).Create(&categories).Error
}
