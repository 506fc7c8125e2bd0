package service

import (
	"reflect"
	"testing"

	"github.com/junhao/promptflow/internal/domain"
)

func TestRuleClassifier_Categories(t *testing.T) {
	classifier := NewRuleClassifier(nil)

	tests := []struct {
		name             string
		task             string
		generated        string
		expectedCategory uint
	}{
		{
			name:             "writing",
			task:             "帮我写一篇小红书文案",
			expectedCategory: 1,
		},
		{
			name:             "programming",
			task:             "用python写一个爬虫程序，要求代码有注释",
			expectedCategory: 2,
		},
		{
			name:             "data analysis",
			task:             "分析这份销售数据的增长趋势并输出图表",
			expectedCategory: 3,
		},
		{
			name:             "education",
			task:             "为小学生设计一份数学课程教案，方便老师讲解",
			expectedCategory: 6,
		},
		{
			name:             "no match falls back",
			task:             "xyzzy",
			expectedCategory: domain.FallbackCategoryID,
		},
		{
			name:             "empty input falls back",
			task:             "",
			expectedCategory: domain.FallbackCategoryID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := classifier.Classify(&domain.Prompt{
				TaskDescription: tt.task,
				GeneratedPrompt: tt.generated,
			})

			if result.CategoryID != tt.expectedCategory {
				t.Errorf("expected category %d, got %d (%s)",
					tt.expectedCategory, result.CategoryID, result.CategoryName)
			}
		})
	}
}

func TestRuleClassifier_Deterministic(t *testing.T) {
	classifier := NewRuleClassifier(nil)
	prompt := &domain.Prompt{TaskDescription: "用python分析数据并写一份报告"}

	first := classifier.Classify(prompt)
	for i := 0; i < 5; i++ {
		if got := classifier.Classify(prompt); !reflect.DeepEqual(got, first) {
			t.Fatalf("classification is not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestRuleClassifier_TieGoesToLowestID(t *testing.T) {
	classifier := NewRuleClassifier(nil)

	// "写" scores for category 1, "代码" for category 2, one hit each.
	result := classifier.Classify(&domain.Prompt{TaskDescription: "写代码"})

	if result.CategoryID != 1 {
		t.Errorf("expected tie to resolve to category 1, got %d", result.CategoryID)
	}
	if result.Confidence != 0.5 {
		t.Errorf("expected confidence 0.5, got %.2f", result.Confidence)
	}
}

func TestRuleClassifier_FallbackHasZeroConfidence(t *testing.T) {
	classifier := NewRuleClassifier(nil)

	result := classifier.Classify(&domain.Prompt{TaskDescription: "qqqq"})

	if result.CategoryID != domain.FallbackCategoryID {
		t.Errorf("expected fallback category, got %d", result.CategoryID)
	}
	if result.CategoryName != domain.FallbackCategoryName {
		t.Errorf("expected fallback name, got %s", result.CategoryName)
	}
	if result.Confidence != 0 {
		t.Errorf("expected zero confidence, got %.2f", result.Confidence)
	}
	if len(result.Tags) != 0 {
		t.Errorf("expected no tags, got %v", result.Tags)
	}
}

func TestRuleClassifier_Tags(t *testing.T) {
	classifier := NewRuleClassifier(nil)

	tests := []struct {
		name     string
		task     string
		expected []string
	}{
		{
			name:     "python tag",
			task:     "用python处理数据",
			expected: []string{"Python"},
		},
		{
			name: "javascript implies both tags",
			// "javascript" contains both the "java" and "js" match strings
			task:     "写一段javascript动画",
			expected: []string{"Java", "JavaScript"},
		},
		{
			name:     "chinese ai alias deduped with ascii",
			task:     "人工智能ai的发展",
			expected: []string{"AI"},
		},
		{
			name:     "no tags",
			task:     "写一首诗",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := classifier.Classify(&domain.Prompt{TaskDescription: tt.task})

			if !reflect.DeepEqual(result.Tags, tt.expected) {
				t.Errorf("expected tags %v, got %v", tt.expected, result.Tags)
			}
		})
	}
}

func TestCountOccurrences(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		keyword  string
		expected int
	}{
		{"ascii whole word", "hello js world", "js", 1},
		{"ascii inside word not counted", "json format", "js", 0},
		{"ascii repeated", "js and js again", "js", 2},
		{"ascii at edges", "js", "js", 1},
		{"ascii next to cjk counts", "用js写动画", "js", 1},
		{"ascii underscore blocks", "my_js_var", "js", 0},
		{"cjk substring", "写作业要写清楚", "写", 2},
		{"cjk multi-rune", "机器学习和深度学习", "学习", 2},
		{"empty keyword", "anything", "", 0},
		{"no match", "hello", "js", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := countOccurrences(tt.text, tt.keyword); got != tt.expected {
				t.Errorf("countOccurrences(%q, %q) = %d, want %d",
					tt.text, tt.keyword, got, tt.expected)
			}
		})
	}
}

func TestRuleClassifier_UsesGeneratedText(t *testing.T) {
	classifier := NewRuleClassifier(nil)

	// Task alone is neutral; the generated text decides.
	result := classifier.Classify(&domain.Prompt{
		TaskDescription: "qqqq",
		GeneratedPrompt: "请用python编写代码并调试程序",
	})

	if result.CategoryID != 2 {
		t.Errorf("expected category 2 from generated text, got %d", result.CategoryID)
	}
}
