package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/junhao/promptflow/internal/domain"
	"github.com/junhao/promptflow/internal/logger"
	"github.com/junhao/promptflow/internal/prompts"
	"github.com/junhao/promptflow/internal/repository"
)

// ArbiterConfig holds configuration for the LLM arbiter.
type ArbiterConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Arbiter consults an external language model when the rule classifier is
// not confident. Any call, timeout, or parse failure degrades to the
// fallback classification; the failure is logged, never propagated.
type Arbiter struct {
	client       *resty.Client
	endpoint     string
	model        string
	temperature  float64
	maxTokens    int
	categoryRepo *repository.CategoryRepository
}

// NewArbiter creates a new LLM arbiter.
// Parameters:
//   - cfg: API configuration including endpoint, key, and model.
//   - categoryRepo: source of the category list embedded in the prompt.
// Returns:
//   - *Arbiter: initialized arbiter.
func NewArbiter(cfg *ArbiterConfig, categoryRepo *repository.CategoryRepository) *Arbiter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.3
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 500
	}

	return &Arbiter{
		client:       client,
		endpoint:     strings.TrimSuffix(cfg.BaseURL, "/") + "/chat/completions",
		model:        cfg.Model,
		temperature:  temperature,
		maxTokens:    maxTokens,
		categoryRepo: categoryRepo,
	}
}

// Classify asks the model to categorize and tag the prompt. Always returns
// a usable result: the fallback classification stands in for every failure
// mode.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - prompt: cached prompt row to classify.
// Returns:
//   - domain.ClassificationResult: model's choice or the fallback.
func (a *Arbiter) Classify(ctx context.Context, prompt *domain.Prompt) domain.ClassificationResult {
	categories, err := a.categoryRepo.ListSystemOrdered(ctx)
	if err != nil {
		logger.CtxError(ctx, "Failed to load categories for classification: %v", err)
		return domain.FallbackResult()
	}

	req := chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompts.BuildClassificationPrompt(prompt, categories)},
		},
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	}

	var resp chatResponse
	httpResp, err := a.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(a.endpoint)

	if err != nil {
		logger.CtxWarn(ctx, "Classification API call failed: %v", err)
		return domain.FallbackResult()
	}
	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		logger.CtxWarn(ctx, "Classification API returned HTTP %d: %s",
			httpResp.StatusCode(), string(httpResp.Body()))
		return domain.FallbackResult()
	}
	if resp.Error != nil {
		logger.CtxWarn(ctx, "Classification API error: %s", resp.Error.Message)
		return domain.FallbackResult()
	}
	if len(resp.Choices) == 0 {
		logger.CtxWarn(ctx, "Classification API returned no choices")
		return domain.FallbackResult()
	}

	result, err := parseClassification(resp.Choices[0].Message.Content)
	if err != nil {
		logger.CtxWarn(ctx, "Failed to parse classification response: %v", err)
		return domain.FallbackResult()
	}
	return result
}

// parseClassification extracts the JSON object from the model's reply,
// tolerating surrounding prose: everything between the first '{' and the
// last '}' is parsed.
// Parameters:
//   - content: raw model reply.
// Returns:
//   - domain.ClassificationResult: decoded result with clamped confidence.
//   - error: non-nil when no parsable JSON object is present.
func parseClassification(content string) (domain.ClassificationResult, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return domain.ClassificationResult{}, fmt.Errorf("no JSON object in response")
	}

	var result domain.ClassificationResult
	if err := json.Unmarshal([]byte(content[start:end+1]), &result); err != nil {
		return domain.ClassificationResult{}, fmt.Errorf("invalid classification JSON: %w", err)
	}

	if result.CategoryID == 0 {
		return domain.ClassificationResult{}, fmt.Errorf("classification JSON missing categoryId")
	}
	if result.Tags == nil {
		result.Tags = []string{}
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	return result, nil
}
