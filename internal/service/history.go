package service

import (
	"context"
	"errors"

	"github.com/junhao/promptflow/internal/domain"
	"github.com/junhao/promptflow/internal/logger"
	"github.com/junhao/promptflow/internal/repository"
)

// ErrPromptNotFound is returned when a history operation targets a prompt
// id that does not exist.
var ErrPromptNotFound = errors.New("prompt not found")

// HistoryService exposes read and maintenance operations over the stored
// prompt history.
type HistoryService struct {
	promptRepo *repository.PromptRepository
}

// NewHistoryService creates a new history service.
func NewHistoryService(promptRepo *repository.PromptRepository) *HistoryService {
	return &HistoryService{promptRepo: promptRepo}
}

// List returns a filtered, paginated page of prompt history.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - filter: category, keyword, sort and pagination settings.
// Returns:
//   - *repository.PagedPrompts: one page of results with the total count.
//   - error: non-nil on query failure.
func (s *HistoryService) List(ctx context.Context, filter repository.ListFilter) (*repository.PagedPrompts, error) {
	return s.promptRepo.List(ctx, filter)
}

// ListRecent returns the most recently created prompts, newest first.
func (s *HistoryService) ListRecent(ctx context.Context, limit int) ([]domain.Prompt, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.promptRepo.ListRecent(ctx, limit)
}

// ListByTag returns a page of prompts carrying the given tag.
func (s *HistoryService) ListByTag(ctx context.Context, tagID uint, page, pageSize int) (*repository.PagedPrompts, error) {
	return s.promptRepo.ListByTagID(ctx, tagID, page, pageSize)
}

// Get returns a single prompt with its tags loaded.
// Returns ErrPromptNotFound when the id does not exist.
func (s *HistoryService) Get(ctx context.Context, id uint) (*domain.Prompt, error) {
	prompt, err := s.promptRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if prompt == nil {
		return nil, ErrPromptNotFound
	}
	return prompt, nil
}

// Like increments the like counter of a prompt.
// Returns ErrPromptNotFound when the id does not exist.
func (s *HistoryService) Like(ctx context.Context, id uint) error {
	prompt, err := s.promptRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if prompt == nil {
		return ErrPromptNotFound
	}
	return s.promptRepo.IncrementLike(ctx, id)
}

// Delete removes a prompt and its tag associations.
// Returns ErrPromptNotFound when the id does not exist.
func (s *HistoryService) Delete(ctx context.Context, id uint) error {
	prompt, err := s.promptRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if prompt == nil {
		return ErrPromptNotFound
	}
	if err := s.promptRepo.Delete(ctx, id); err != nil {
		return err
	}
	logger.CtxInfo(ctx, "Deleted prompt %d", id)
	return nil
}

// CountByCategory returns per-category prompt counts for dashboards.
func (s *HistoryService) CountByCategory(ctx context.Context) ([]domain.CategoryCount, error) {
	return s.promptRepo.CountByCategory(ctx)
}
