package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/junhao/promptflow/internal/domain"
	"github.com/junhao/promptflow/internal/repository"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name             string
		content          string
		expectErr        bool
		expectedCategory uint
		expectedTags     []string
		expectedConf     float64
	}{
		{
			name:             "plain json",
			content:          `{"categoryId":2,"categoryName":"编程开发","tags":["Python"],"confidence":0.9}`,
			expectedCategory: 2,
			expectedTags:     []string{"Python"},
			expectedConf:     0.9,
		},
		{
			name: "json wrapped in prose",
			content: `好的，根据内容判断，分类结果如下：
{"categoryId":1,"categoryName":"写作创作","tags":[],"confidence":0.85}
希望对你有帮助。`,
			expectedCategory: 1,
			expectedTags:     []string{},
			expectedConf:     0.85,
		},
		{
			name:             "markdown code fence",
			content:          "```json\n{\"categoryId\":3,\"categoryName\":\"数据分析\",\"tags\":[\"Excel\"],\"confidence\":0.8}\n```",
			expectedCategory: 3,
			expectedTags:     []string{"Excel"},
			expectedConf:     0.8,
		},
		{
			name:             "confidence above one is clamped",
			content:          `{"categoryId":5,"categoryName":"商业办公","tags":[],"confidence":1.7}`,
			expectedCategory: 5,
			expectedTags:     []string{},
			expectedConf:     1,
		},
		{
			name:             "negative confidence is clamped",
			content:          `{"categoryId":5,"categoryName":"商业办公","tags":[],"confidence":-0.2}`,
			expectedCategory: 5,
			expectedTags:     []string{},
			expectedConf:     0,
		},
		{
			name:             "missing tags becomes empty slice",
			content:          `{"categoryId":8,"categoryName":"对话聊天","confidence":0.75}`,
			expectedCategory: 8,
			expectedTags:     []string{},
			expectedConf:     0.75,
		},
		{
			name:      "no json object",
			content:   "无法判断分类",
			expectErr: true,
		},
		{
			name:      "malformed json",
			content:   `{"categoryId":`,
			expectErr: true,
		},
		{
			name:      "missing category id",
			content:   `{"categoryName":"写作创作","confidence":0.9}`,
			expectErr: true,
		},
		{
			name:      "empty content",
			content:   "",
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseClassification(tt.content)

			if tt.expectErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if result.CategoryID != tt.expectedCategory {
				t.Errorf("expected category %d, got %d", tt.expectedCategory, result.CategoryID)
			}
			if result.Confidence != tt.expectedConf {
				t.Errorf("expected confidence %.2f, got %.2f", tt.expectedConf, result.Confidence)
			}
			if len(result.Tags) != len(tt.expectedTags) {
				t.Fatalf("expected tags %v, got %v", tt.expectedTags, result.Tags)
			}
			for i, tag := range tt.expectedTags {
				if result.Tags[i] != tag {
					t.Errorf("expected tag %q at %d, got %q", tag, i, result.Tags[i])
				}
			}
		})
	}
}

func newArbiterFixture(t *testing.T, baseURL string, timeout time.Duration) *Arbiter {
	t.Helper()

	db := newTestDB(t)
	categoryRepo := repository.NewCategoryRepository(db)
	if err := repository.Seed(context.Background(), categoryRepo, repository.NewTagRepository(db)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return NewArbiter(&ArbiterConfig{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Model:   "qwen-plus",
		Timeout: timeout,
	}, categoryRepo)
}

func arbiterPrompt(task string) *domain.Prompt {
	req := &domain.PromptRequest{TaskDescription: task}
	return req.ToPrompt("hash-arbiter", "generated for "+task)
}

func TestArbiter_ParsesUpstreamResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"categoryId\":3,\"categoryName\":\"数据分析\",\"tags\":[\"Excel\"],\"confidence\":0.9}"}}]}`))
	}))
	defer server.Close()

	arbiter := newArbiterFixture(t, server.URL, time.Second)
	result := arbiter.Classify(context.Background(), arbiterPrompt("分析销售数据"))

	if result.CategoryID != 3 {
		t.Errorf("expected category 3, got %d", result.CategoryID)
	}
	if result.Confidence != 0.9 {
		t.Errorf("expected confidence 0.9, got %.2f", result.Confidence)
	}
	if len(result.Tags) != 1 || result.Tags[0] != "Excel" {
		t.Errorf("expected tags [Excel], got %v", result.Tags)
	}
}

func TestArbiter_TimeoutFallsBack(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	arbiter := newArbiterFixture(t, server.URL, 100*time.Millisecond)
	result := arbiter.Classify(context.Background(), arbiterPrompt("写一篇文章"))

	if !reflect.DeepEqual(result, domain.FallbackResult()) {
		t.Errorf("expected fallback result, got %+v", result)
	}
}

func TestArbiter_UpstreamFailureFallsBack(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "internal error", http.StatusInternalServerError)
			},
		},
		{
			name: "api error body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`))
			},
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"choices":[]}`))
			},
		},
		{
			name: "unparsable content",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"choices":[{"message":{"content":"无法判断分类"}}]}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			arbiter := newArbiterFixture(t, server.URL, time.Second)
			result := arbiter.Classify(context.Background(), arbiterPrompt("写一篇文章"))

			if !reflect.DeepEqual(result, domain.FallbackResult()) {
				t.Errorf("expected fallback result, got %+v", result)
			}
		})
	}
}
