package service

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/junhao/promptflow/internal/domain"
	"github.com/junhao/promptflow/internal/logger"
	"github.com/junhao/promptflow/internal/prompts"
	"github.com/junhao/promptflow/internal/repository"
)

// ErrTaskDescriptionRequired is returned for requests whose task
// description is empty after trimming.
var ErrTaskDescriptionRequired = errors.New("task description is required")

// ErrStreamIncomplete is returned when the upstream stream ends without
// signaling completion; partial text is never cached.
var ErrStreamIncomplete = errors.New("generation stream ended before completion")

// replayChunkSize is how many runes of a cached result are sent per chunk
// when replaying through the streaming path.
const replayChunkSize = 5

// replayChunkDelay spaces out replayed chunks so cached hits still feel
// like incremental delivery.
const replayChunkDelay = 10 * time.Millisecond

// GenerationConfig holds settings for the outbound completion API.
type GenerationConfig struct {
	BaseURL       string
	APIKey        string
	Model         string
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
	StreamTimeout time.Duration
}

// classifyTrigger starts classification of a newly stored prompt. Wired to
// ClassificationService.Classify in production.
type classifyTrigger interface {
	Classify(ctx context.Context, prompt *domain.Prompt) (domain.ClassificationResult, error)
}

// GenerationService produces prompt text, deduplicating requests through
// the fingerprint cache and handing newly stored rows to classification.
type GenerationService struct {
	client       *resty.Client
	streamClient *http.Client
	cfg          GenerationConfig
	endpoint     string
	promptRepo   *repository.PromptRepository
	classifier   classifyTrigger
}

// NewGenerationService creates a new generation service.
// Parameters:
//   - cfg: completion API configuration.
//   - promptRepo: cache persistence.
//   - classifier: classification pipeline invoked after a cache store.
// Returns:
//   - *GenerationService: initialized service.
func NewGenerationService(cfg GenerationConfig, promptRepo *repository.PromptRepository, classifier classifyTrigger) *GenerationService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 5 * time.Minute
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(cfg.Timeout)

	// The streaming client needs a short dial timeout but a generous
	// overall deadline: completions can take minutes to finish.
	streamClient := &http.Client{
		Timeout: cfg.StreamTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		},
	}

	return &GenerationService{
		client:       client,
		streamClient: streamClient,
		cfg:          cfg,
		endpoint:     strings.TrimSuffix(cfg.BaseURL, "/") + "/chat/completions",
		promptRepo:   promptRepo,
		classifier:   classifier,
	}
}

// Generate returns the prompt text for a request, from cache when possible.
// On a miss the completion API is called, the result stored (insert-if-
// absent on the fingerprint), and classification of the new row started in
// the background. Upstream failures surface to the caller and nothing is
// cached.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: generation request.
// Returns:
//   - string: generated (or cached) prompt text.
//   - bool: true when served from cache.
//   - error: validation or upstream failure.
func (s *GenerationService) Generate(ctx context.Context, req *domain.PromptRequest) (string, bool, error) {
	if !req.Validate() {
		return "", false, ErrTaskDescriptionRequired
	}

	hash := Fingerprint(req)
	cached, err := s.promptRepo.FindByHash(ctx, hash)
	if err != nil {
		return "", false, fmt.Errorf("cache lookup failed: %w", err)
	}
	if cached != nil {
		if err := s.promptRepo.RecordHit(ctx, cached); err != nil {
			logger.CtxWarn(ctx, "Failed to record cache hit for %s: %v", hash, err)
		}
		logger.CtxInfo(ctx, "Cache hit: hash=%s, hits=%d", hash, cached.HitCount)
		return cached.GeneratedPrompt, true, nil
	}

	logger.CtxInfo(ctx, "Cache miss, calling completion API: hash=%s", hash)
	text, err := s.complete(ctx, prompts.BuildGenerationPrompt(req))
	if err != nil {
		return "", false, err
	}

	s.storeAndClassify(ctx, req, hash, text)
	return text, false, nil
}

// GenerateStream is the streaming variant of Generate. Chunks are passed to
// send as they arrive; a cached result is replayed in small chunks with an
// artificial delay. Caching and classification happen only after the
// upstream stream signals completion.
// Parameters:
//   - ctx: context for cancellation; a disconnecting caller aborts the
//     upstream read and nothing is cached.
//   - req: generation request.
//   - send: receives each text chunk; a non-nil return aborts the stream.
// Returns:
//   - error: validation failure, upstream failure, send failure, or
//     ErrStreamIncomplete.
func (s *GenerationService) GenerateStream(ctx context.Context, req *domain.PromptRequest, send func(chunk string) error) error {
	if !req.Validate() {
		return ErrTaskDescriptionRequired
	}

	hash := Fingerprint(req)
	cached, err := s.promptRepo.FindByHash(ctx, hash)
	if err != nil {
		return fmt.Errorf("cache lookup failed: %w", err)
	}
	if cached != nil {
		if err := s.promptRepo.RecordHit(ctx, cached); err != nil {
			logger.CtxWarn(ctx, "Failed to record cache hit for %s: %v", hash, err)
		}
		logger.CtxInfo(ctx, "Cache hit (stream): hash=%s, hits=%d", hash, cached.HitCount)
		return replayCached(ctx, cached.GeneratedPrompt, send)
	}

	logger.CtxInfo(ctx, "Cache miss, streaming from completion API: hash=%s", hash)
	full, err := s.streamCompletion(ctx, prompts.BuildGenerationPrompt(req), send)
	if err != nil {
		return err
	}

	s.storeAndClassify(ctx, req, hash, full)
	return nil
}

// Stats reports the cache counters.
func (s *GenerationService) Stats(ctx context.Context) (domain.CacheStats, error) {
	return s.promptRepo.Stats(ctx)
}

// complete performs the blocking completion call with a bounded retry on
// transport errors and 5xx responses.
func (s *GenerationService) complete(ctx context.Context, prompt string) (string, error) {
	req := chatRequest{
		Model: s.cfg.Model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	}

	var content string
	err := retry.Do(
		func() error {
			var resp chatResponse
			httpResp, err := s.client.R().
				SetContext(ctx).
				SetBody(req).
				SetResult(&resp).
				Post(s.endpoint)
			if err != nil {
				return fmt.Errorf("completion API call failed: %w", err)
			}
			if httpResp.StatusCode() >= 500 {
				return fmt.Errorf("completion API returned HTTP %d: %s",
					httpResp.StatusCode(), string(httpResp.Body()))
			}
			if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
				return retry.Unrecoverable(fmt.Errorf("completion API returned HTTP %d: %s",
					httpResp.StatusCode(), string(httpResp.Body())))
			}
			if resp.Error != nil {
				return retry.Unrecoverable(fmt.Errorf("completion API error: %s", resp.Error.Message))
			}
			if len(resp.Choices) == 0 {
				return retry.Unrecoverable(fmt.Errorf("completion API returned no choices"))
			}
			content = resp.Choices[0].Message.Content
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", err
	}
	return content, nil
}

// streamCompletion performs the SSE completion call, forwarding each delta
// to send and returning the accumulated full text. Malformed stream lines
// are skipped individually. The text is only returned once the upstream
// terminator is seen.
func (s *GenerationService) streamCompletion(ctx context.Context, prompt string, send func(chunk string) error) (string, error) {
	req := chatRequest{
		Model: s.cfg.Model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
		Stream:      true,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode stream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("failed to build stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := s.streamClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("completion API stream failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("completion API returned HTTP %d", resp.StatusCode)
	}

	var full strings.Builder
	done := false
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if strings.TrimSpace(data) == "[DONE]" {
			done = true
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			logger.CtxDebug(ctx, "Skipping malformed stream chunk: %v", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}

		full.WriteString(content)
		if err := send(content); err != nil {
			return "", fmt.Errorf("stream consumer failed: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("completion API stream read failed: %w", err)
	}
	if !done {
		return "", ErrStreamIncomplete
	}
	return full.String(), nil
}

// storeAndClassify persists the generated text (insert-if-absent on the
// fingerprint) and, for a newly created row, starts classification in the
// background. The loser of a concurrent store race does not trigger a
// second classification of the winner's row.
func (s *GenerationService) storeAndClassify(ctx context.Context, req *domain.PromptRequest, hash, text string) {
	stored, created, err := s.promptRepo.InsertIfAbsent(ctx, req.ToPrompt(hash, text))
	if err != nil {
		// The caller already has the generated text; a failed cache write
		// must not fail the request.
		logger.CtxError(ctx, "Failed to store generated prompt %s: %v", hash, err)
		return
	}
	if !created {
		logger.CtxInfo(ctx, "Concurrent store detected for %s, reusing row %d", hash, stored.ID)
		return
	}

	logger.CtxInfo(ctx, "Stored generated prompt: hash=%s, id=%d", hash, stored.ID)

	requestID := uuid.NewString()
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		bgCtx = logger.WithFields(bgCtx, logger.Fields{
			logger.FieldRequestID: requestID,
			logger.FieldComponent: "classify",
		})
		if _, err := s.classifier.Classify(bgCtx, stored); err != nil {
			logger.CtxError(bgCtx, "Background classification failed for prompt %d: %v", stored.ID, err)
		}
	}()
}

// replayCached streams an already cached result in small chunks with a
// short delay between them, so callers get the same incremental delivery
// as a live generation.
func replayCached(ctx context.Context, text string, send func(chunk string) error) error {
	runes := []rune(text)
	for i := 0; i < len(runes); i += replayChunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := i + replayChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if err := send(string(runes[i:end])); err != nil {
			return fmt.Errorf("stream consumer failed: %w", err)
		}
		time.Sleep(replayChunkDelay)
	}
	return nil
}
