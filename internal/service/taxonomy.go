package service

import (
	"context"
	"errors"

	"github.com/junhao/promptflow/internal/domain"
	"github.com/junhao/promptflow/internal/repository"
)

// ErrCategoryNotFound is returned when a category id does not exist.
var ErrCategoryNotFound = errors.New("category not found")

// ErrTagNotFound is returned when a tag id does not exist.
var ErrTagNotFound = errors.New("tag not found")

// CategoryWithCount is a category together with the number of prompts
// filed under it.
type CategoryWithCount struct {
	domain.Category
	PromptCount int64 `json:"prompt_count"`
}

// CategoryService exposes read operations over prompt categories.
type CategoryService struct {
	categoryRepo *repository.CategoryRepository
	promptRepo   *repository.PromptRepository
}

// NewCategoryService creates a new category service.
func NewCategoryService(categoryRepo *repository.CategoryRepository, promptRepo *repository.PromptRepository) *CategoryService {
	return &CategoryService{categoryRepo: categoryRepo, promptRepo: promptRepo}
}

// List returns all categories ordered by sort order.
func (s *CategoryService) List(ctx context.Context) ([]domain.Category, error) {
	return s.categoryRepo.ListOrdered(ctx)
}

// Get returns one category with its prompt count.
// Returns ErrCategoryNotFound when the id does not exist.
func (s *CategoryService) Get(ctx context.Context, id uint) (*CategoryWithCount, error) {
	category, err := s.categoryRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, ErrCategoryNotFound
	}

	counts, err := s.promptRepo.CountByCategory(ctx)
	if err != nil {
		return nil, err
	}
	result := &CategoryWithCount{Category: *category}
	for _, cc := range counts {
		if cc.CategoryID == id {
			result.PromptCount = cc.Count
			break
		}
	}
	return result, nil
}

// TagService exposes read operations over prompt tags.
type TagService struct {
	tagRepo    *repository.TagRepository
	promptRepo *repository.PromptRepository
}

// NewTagService creates a new tag service.
func NewTagService(tagRepo *repository.TagRepository, promptRepo *repository.PromptRepository) *TagService {
	return &TagService{tagRepo: tagRepo, promptRepo: promptRepo}
}

// List returns all tags ordered by usage count descending.
func (s *TagService) List(ctx context.Context) ([]domain.Tag, error) {
	return s.tagRepo.ListByUsage(ctx)
}

// ListPopular returns the most used tags, capped at limit.
func (s *TagService) ListPopular(ctx context.Context, limit int) ([]domain.Tag, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.tagRepo.ListPopular(ctx, limit)
}

// PromptsByTag returns a page of prompts carrying the given tag.
// Returns ErrTagNotFound when the tag id does not exist.
func (s *TagService) PromptsByTag(ctx context.Context, tagID uint, page, pageSize int) (*repository.PagedPrompts, error) {
	tag, err := s.tagRepo.GetByID(ctx, tagID)
	if err != nil {
		return nil, err
	}
	if tag == nil {
		return nil, ErrTagNotFound
	}
	return s.promptRepo.ListByTagID(ctx, tagID, page, pageSize)
}
