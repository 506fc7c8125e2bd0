package service

import (
	"context"
	"errors"
	"hash/fnv"
	"sync/atomic"
	"time"

	"github.com/junhao/promptflow/internal/domain"
	"github.com/junhao/promptflow/internal/logger"
	"github.com/junhao/promptflow/internal/repository"
)

// ErrBatchInFlight is returned when a batch or reclassification run is
// requested while another one is still running. Serializing runs keeps tag
// usage counters from being double-incremented over the same item set.
var ErrBatchInFlight = errors.New("a classification batch is already running")

// tagPalette is the fixed set of colors assigned to newly created tags.
var tagPalette = []string{
	"#3b82f6", "#10b981", "#f59e0b", "#ec4899",
	"#6366f1", "#8b5cf6", "#14b8a6", "#f97316",
}

// llmClassifier is the external arbiter consulted when rules are not
// confident. Implementations must be failure-tolerant: they return the
// fallback result rather than an error.
type llmClassifier interface {
	Classify(ctx context.Context, prompt *domain.Prompt) domain.ClassificationResult
}

// ClassificationConfig tunes the orchestrator.
type ClassificationConfig struct {
	ConfidenceThreshold float64       // below this, the arbiter is consulted
	BatchSize           int           // default item cap for batch runs
	BatchDelay          time.Duration // inter-item delay for batch runs
	ReclassifyDelay     time.Duration // inter-item delay for full reclassification
}

// ClassificationService composes the rule classifier, the LLM arbiter, and
// the tag store into the hybrid classification pipeline.
type ClassificationService struct {
	rules      *RuleClassifier
	arbiter    llmClassifier
	promptRepo *repository.PromptRepository
	tagRepo    *repository.TagRepository
	cfg        ClassificationConfig

	batchRunning atomic.Bool
}

// NewClassificationService creates the classification orchestrator.
// Parameters:
//   - rules: rule classifier.
//   - arbiter: LLM fallback classifier.
//   - promptRepo: prompt persistence.
//   - tagRepo: tag persistence.
//   - cfg: thresholds and delays; zero values get defaults.
// Returns:
//   - *ClassificationService: initialized orchestrator.
func NewClassificationService(
	rules *RuleClassifier,
	arbiter llmClassifier,
	promptRepo *repository.PromptRepository,
	tagRepo *repository.TagRepository,
	cfg ClassificationConfig,
) *ClassificationService {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.7
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = 200 * time.Millisecond
	}
	if cfg.ReclassifyDelay <= 0 {
		cfg.ReclassifyDelay = 100 * time.Millisecond
	}
	return &ClassificationService{
		rules:      rules,
		arbiter:    arbiter,
		promptRepo: promptRepo,
		tagRepo:    tagRepo,
		cfg:        cfg,
	}
}

// Classify runs the hybrid pipeline on one prompt and persists the outcome:
// rules first, then the arbiter when rule confidence is below the
// threshold, keeping whichever result is more confident (rules win ties).
// The prompt row ends up with a category id, the auto-tagged flag set, the
// serialized tag list, refreshed tag associations, and each assigned tag's
// usage counter incremented once.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - prompt: cached prompt row; mutated with the persisted outcome.
// Returns:
//   - domain.ClassificationResult: the final result.
//   - error: non-nil only when persistence fails; classification failures
//     themselves degrade to the fallback result.
func (s *ClassificationService) Classify(ctx context.Context, prompt *domain.Prompt) (domain.ClassificationResult, error) {
	ctx = logger.WithField(ctx, logger.FieldPromptID, prompt.ID)

	result := s.rules.Classify(prompt)
	if result.Confidence < s.cfg.ConfidenceThreshold {
		logger.CtxDebug(ctx, "Rule confidence %.2f below threshold, consulting arbiter", result.Confidence)
		if llmResult := s.arbiter.Classify(ctx, prompt); llmResult.Confidence > result.Confidence {
			result = llmResult
		}
	}

	if err := s.persist(ctx, prompt, result); err != nil {
		return result, err
	}

	logger.CtxInfo(ctx, "Classified prompt: category=%d (%s), tags=%v, confidence=%.2f",
		result.CategoryID, result.CategoryName, result.Tags, result.Confidence)
	return result, nil
}

// persist writes the classification outcome: category and serialized tags
// on the prompt row, tag rows created on demand, associations replaced,
// and usage counters incremented once per distinct tag name.
func (s *ClassificationService) persist(ctx context.Context, prompt *domain.Prompt, result domain.ClassificationResult) error {
	tagNames := dedupe(result.Tags)

	categoryID := result.CategoryID
	prompt.CategoryID = &categoryID
	prompt.IsAutoTagged = true
	prompt.AITags = domain.StringArray(tagNames)
	if err := s.promptRepo.SaveClassification(ctx, prompt); err != nil {
		return err
	}

	tags := make([]domain.Tag, 0, len(tagNames))
	for _, name := range tagNames {
		tag, err := s.tagRepo.GetOrCreate(ctx, name, TagColor(name))
		if err != nil {
			return err
		}
		tags = append(tags, *tag)
	}
	if err := s.promptRepo.ReplaceTags(ctx, prompt, tags); err != nil {
		return err
	}
	for _, tag := range tags {
		if err := s.tagRepo.IncrementUsage(ctx, tag.ID); err != nil {
			return err
		}
	}
	return nil
}

// BatchSize returns the configured default item cap for batch runs.
func (s *ClassificationService) BatchSize() int {
	return s.cfg.BatchSize
}

// ClassifyUnclassified processes up to maxCount prompts that have not been
// auto-tagged yet, in sequence with an inter-item delay to respect external
// rate limits. A failure on one item is logged and skipped. Only one batch
// or reclassification run may be in flight at a time.
// Parameters:
//   - ctx: context for cancellation; aborting stops between items.
//   - maxCount: upper bound on processed items.
// Returns:
//   - int: number of successfully classified items.
//   - error: ErrBatchInFlight, a listing failure, or the context's error.
func (s *ClassificationService) ClassifyUnclassified(ctx context.Context, maxCount int) (int, error) {
	if !s.batchRunning.CompareAndSwap(false, true) {
		return 0, ErrBatchInFlight
	}
	defer s.batchRunning.Store(false)

	prompts, err := s.promptRepo.ListUntagged(ctx, maxCount)
	if err != nil {
		return 0, err
	}

	logger.CtxInfo(ctx, "Starting batch classification of %d untagged prompts", len(prompts))

	processed := 0
	for i := range prompts {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if _, err := s.Classify(ctx, &prompts[i]); err != nil {
			logger.CtxError(ctx, "Batch classification failed for prompt %d: %v", prompts[i].ID, err)
		} else {
			processed++
		}
		if i < len(prompts)-1 {
			time.Sleep(s.cfg.BatchDelay)
		}
	}

	logger.CtxInfo(ctx, "Batch classification finished: %d/%d processed", processed, len(prompts))
	return processed, nil
}

// ReclassifyAll clears every prompt's tags and auto-tagged flag, then runs
// the full pipeline again on each one. Intended for use after the rule
// dictionaries change. Same serialization and per-item failure isolation
// as ClassifyUnclassified.
// Parameters:
//   - ctx: context for cancellation; aborting stops between items.
// Returns:
//   - int: number of successfully reclassified items.
//   - error: ErrBatchInFlight, a listing failure, or the context's error.
func (s *ClassificationService) ReclassifyAll(ctx context.Context) (int, error) {
	if !s.batchRunning.CompareAndSwap(false, true) {
		return 0, ErrBatchInFlight
	}
	defer s.batchRunning.Store(false)

	prompts, err := s.promptRepo.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	logger.CtxInfo(ctx, "Starting reclassification of %d prompts", len(prompts))

	processed := 0
	for i := range prompts {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if err := s.reclassifyOne(ctx, &prompts[i]); err != nil {
			logger.CtxError(ctx, "Reclassification failed for prompt %d: %v", prompts[i].ID, err)
		} else {
			processed++
		}
		if i < len(prompts)-1 {
			time.Sleep(s.cfg.ReclassifyDelay)
		}
	}

	logger.CtxInfo(ctx, "Reclassification finished: %d/%d processed", processed, len(prompts))
	return processed, nil
}

func (s *ClassificationService) reclassifyOne(ctx context.Context, prompt *domain.Prompt) error {
	// Drop existing associations first so the pass starts from a clean
	// slate even if classification then fails.
	if err := s.promptRepo.ReplaceTags(ctx, prompt, nil); err != nil {
		return err
	}
	prompt.IsAutoTagged = false
	prompt.AITags = domain.StringArray{}
	if err := s.promptRepo.SaveClassification(ctx, prompt); err != nil {
		return err
	}
	_, err := s.Classify(ctx, prompt)
	return err
}

// TagColor derives a stable palette color from a tag name.
// Parameters:
//   - name: tag name.
// Returns:
//   - string: hex color from the fixed palette.
func TagColor(name string) string {
	h := fnv.New32a()
	h.Write([]byte(name))
	return tagPalette[h.Sum32()%uint32(len(tagPalette))]
}

func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
