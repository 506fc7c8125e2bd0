package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/junhao/promptflow/internal/domain"
	"github.com/junhao/promptflow/internal/repository"
)

// stubTrigger records background classification invocations.
type stubTrigger struct {
	calls atomic.Int32
	done  chan uint
}

func newStubTrigger() *stubTrigger {
	return &stubTrigger{done: make(chan uint, 8)}
}

func (s *stubTrigger) Classify(ctx context.Context, prompt *domain.Prompt) (domain.ClassificationResult, error) {
	s.calls.Add(1)
	s.done <- prompt.ID
	return domain.FallbackResult(), nil
}

func newGenerationFixture(t *testing.T, baseURL string) (*GenerationService, *repository.PromptRepository, *stubTrigger) {
	t.Helper()

	db := newTestDB(t)
	promptRepo := repository.NewPromptRepository(db)
	trigger := newStubTrigger()
	svc := NewGenerationService(GenerationConfig{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}, promptRepo, trigger)
	return svc, promptRepo, trigger
}

func completionServer(t *testing.T, content string, calls *atomic.Int32) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"content":%q}}]}`, content)
	}))
}

func waitForClassify(t *testing.T, trigger *stubTrigger) uint {
	t.Helper()

	select {
	case id := <-trigger.done:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("background classification was never triggered")
		return 0
	}
}

func TestGenerate_MissThenHit(t *testing.T) {
	var apiCalls atomic.Int32
	srv := completionServer(t, "生成的提示词内容", &apiCalls)
	defer srv.Close()

	svc, promptRepo, trigger := newGenerationFixture(t, srv.URL)
	req := &domain.PromptRequest{TaskDescription: "写一篇文章", Tone: "正式"}

	text, cached, err := svc.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cached {
		t.Error("first call should not be cached")
	}
	if text != "生成的提示词内容" {
		t.Errorf("unexpected text %q", text)
	}
	if apiCalls.Load() != 1 {
		t.Errorf("expected 1 API call, got %d", apiCalls.Load())
	}

	storedID := waitForClassify(t, trigger)

	// Field-wise identical request is served from cache.
	again := &domain.PromptRequest{TaskDescription: "  写一篇文章  ", Tone: "正式"}
	text, cached, err = svc.Generate(context.Background(), again)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cached {
		t.Error("second call should be cached")
	}
	if text != "生成的提示词内容" {
		t.Errorf("unexpected cached text %q", text)
	}
	if apiCalls.Load() != 1 {
		t.Errorf("cache hit must not call the API, got %d calls", apiCalls.Load())
	}
	if trigger.calls.Load() != 1 {
		t.Errorf("cache hit must not trigger classification, got %d", trigger.calls.Load())
	}

	stored, err := promptRepo.GetByID(context.Background(), storedID)
	if err != nil {
		t.Fatalf("failed to reload prompt: %v", err)
	}
	if stored.HitCount != 1 {
		t.Errorf("expected hit count 1, got %d", stored.HitCount)
	}
}

func TestGenerate_ValidationError(t *testing.T) {
	svc, _, _ := newGenerationFixture(t, "http://localhost:0")

	for _, task := range []string{"", "   ", "\t\n"} {
		_, _, err := svc.Generate(context.Background(), &domain.PromptRequest{TaskDescription: task})
		if !errors.Is(err, ErrTaskDescriptionRequired) {
			t.Errorf("task %q: expected ErrTaskDescriptionRequired, got %v", task, err)
		}
	}
}

func TestGenerate_UpstreamFailureCachesNothing(t *testing.T) {
	var apiCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	svc, promptRepo, trigger := newGenerationFixture(t, srv.URL)

	_, _, err := svc.Generate(context.Background(), &domain.PromptRequest{TaskDescription: "写一篇文章"})
	if err == nil {
		t.Fatal("expected an error")
	}
	// 4xx responses are not retried.
	if apiCalls.Load() != 1 {
		t.Errorf("expected 1 API call, got %d", apiCalls.Load())
	}
	if trigger.calls.Load() != 0 {
		t.Error("failed generation must not trigger classification")
	}

	stats, err := promptRepo.Stats(context.Background())
	if err != nil {
		t.Fatalf("failed to read stats: %v", err)
	}
	if stats.TotalCount != 0 {
		t.Errorf("expected nothing cached, got %d rows", stats.TotalCount)
	}
}

func TestGenerate_RetriesServerErrors(t *testing.T) {
	var apiCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	svc, _, trigger := newGenerationFixture(t, srv.URL)

	text, cached, err := svc.Generate(context.Background(), &domain.PromptRequest{TaskDescription: "写一篇文章"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cached || text != "ok" {
		t.Errorf("unexpected result text=%q cached=%v", text, cached)
	}
	if apiCalls.Load() != 2 {
		t.Errorf("expected exactly one retry, got %d calls", apiCalls.Load())
	}
	waitForClassify(t, trigger)
}

func sseServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode stream request: %v", err)
		}
		if !req.Stream {
			t.Error("expected stream flag to be set")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n", line)
			flusher.Flush()
		}
	}))
}

func deltaLine(content string) string {
	return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%q}}]}`, content)
}

func TestGenerateStream_ForwardsAndCaches(t *testing.T) {
	srv := sseServer(t, []string{
		deltaLine("你好"),
		"",
		": keep-alive comment",
		deltaLine("，世界"),
		"data: this is not json",
		deltaLine("！"),
		"data: [DONE]",
	})
	defer srv.Close()

	svc, promptRepo, trigger := newGenerationFixture(t, srv.URL)

	var chunks []string
	err := svc.GenerateStream(context.Background(), &domain.PromptRequest{TaskDescription: "写一句问候"}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := strings.Join(chunks, ""); got != "你好，世界！" {
		t.Errorf("unexpected accumulated text %q", got)
	}
	if len(chunks) != 3 {
		t.Errorf("expected 3 chunks, got %d", len(chunks))
	}

	hash := Fingerprint(&domain.PromptRequest{TaskDescription: "写一句问候"})
	stored, err := promptRepo.FindByHash(context.Background(), hash)
	if err != nil {
		t.Fatalf("failed to look up cached row: %v", err)
	}
	if stored == nil {
		t.Fatal("expected completed stream to be cached")
	}
	if stored.GeneratedPrompt != "你好，世界！" {
		t.Errorf("unexpected cached text %q", stored.GeneratedPrompt)
	}
	waitForClassify(t, trigger)
}

func TestGenerateStream_IncompleteStreamNotCached(t *testing.T) {
	srv := sseServer(t, []string{
		deltaLine("部分"),
		deltaLine("内容"),
		// No [DONE] terminator before the connection closes.
	})
	defer srv.Close()

	svc, promptRepo, trigger := newGenerationFixture(t, srv.URL)

	err := svc.GenerateStream(context.Background(), &domain.PromptRequest{TaskDescription: "写一句话"}, func(string) error {
		return nil
	})
	if !errors.Is(err, ErrStreamIncomplete) {
		t.Fatalf("expected ErrStreamIncomplete, got %v", err)
	}

	stats, _ := promptRepo.Stats(context.Background())
	if stats.TotalCount != 0 {
		t.Errorf("expected nothing cached, got %d rows", stats.TotalCount)
	}
	if trigger.calls.Load() != 0 {
		t.Error("incomplete stream must not trigger classification")
	}
}

func TestGenerateStream_ConsumerErrorAborts(t *testing.T) {
	srv := sseServer(t, []string{
		deltaLine("第一块"),
		deltaLine("第二块"),
		"data: [DONE]",
	})
	defer srv.Close()

	svc, promptRepo, _ := newGenerationFixture(t, srv.URL)

	sent := 0
	err := svc.GenerateStream(context.Background(), &domain.PromptRequest{TaskDescription: "写一句话"}, func(string) error {
		sent++
		return errors.New("client went away")
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if sent != 1 {
		t.Errorf("expected abort after first chunk, got %d sends", sent)
	}

	stats, _ := promptRepo.Stats(context.Background())
	if stats.TotalCount != 0 {
		t.Errorf("expected nothing cached after abort, got %d rows", stats.TotalCount)
	}
}

func TestGenerateStream_CachedReplay(t *testing.T) {
	svc, promptRepo, trigger := newGenerationFixture(t, "http://localhost:0")

	req := &domain.PromptRequest{TaskDescription: "写一句问候"}
	cachedText := "这是一段已经缓存的提示词内容"
	if _, _, err := promptRepo.InsertIfAbsent(context.Background(), req.ToPrompt(Fingerprint(req), cachedText)); err != nil {
		t.Fatalf("failed to seed cache: %v", err)
	}

	var chunks []string
	err := svc.GenerateStream(context.Background(), req, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := strings.Join(chunks, ""); got != cachedText {
		t.Errorf("replayed text %q does not match cached text", got)
	}
	if len(chunks) < 2 {
		t.Errorf("expected chunked replay, got %d chunks", len(chunks))
	}
	for _, chunk := range chunks {
		if n := len([]rune(chunk)); n > replayChunkSize {
			t.Errorf("chunk %q exceeds replay size %d", chunk, replayChunkSize)
		}
	}

	stored, _ := promptRepo.FindByHash(context.Background(), Fingerprint(req))
	if stored.HitCount != 1 {
		t.Errorf("expected hit count 1 after replay, got %d", stored.HitCount)
	}
	if trigger.calls.Load() != 0 {
		t.Error("cached replay must not trigger classification")
	}
}

func TestGenerateStream_ValidationError(t *testing.T) {
	svc, _, _ := newGenerationFixture(t, "http://localhost:0")

	err := svc.GenerateStream(context.Background(), &domain.PromptRequest{TaskDescription: "   "}, func(string) error {
		t.Error("no chunks expected for invalid request")
		return nil
	})
	if !errors.Is(err, ErrTaskDescriptionRequired) {
		t.Errorf("expected ErrTaskDescriptionRequired, got %v", err)
	}
}
