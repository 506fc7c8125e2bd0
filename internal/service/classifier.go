package service

import (
	"strings"

	"github.com/junhao/promptflow/internal/domain"
)

// ruleCategory binds one category to its keyword dictionary.
type ruleCategory struct {
	ID       uint
	Name     string
	Keywords []string
}

// tagRule maps a literal substring to the tag name it implies.
type tagRule struct {
	Match string
	Tag   string
}

// RuleConfig is the immutable dictionary set the rule classifier scores
// against. Construct it once with DefaultRuleConfig and share it; the
// classifier never mutates it.
type RuleConfig struct {
	categories []ruleCategory
	tagRules   []tagRule
}

// DefaultRuleConfig returns the built-in keyword dictionaries for the nine
// seeded categories and the technology tag table.
func DefaultRuleConfig() *RuleConfig {
	return &RuleConfig{
		categories: []ruleCategory{
			{ID: 1, Name: "写作创作", Keywords: []string{
				"写", "文章", "文案", "内容", "博客", "小说", "故事", "诗歌", "散文",
				"写作", "创作", "编辑", "润色", "改写", "续写", "标题", "摘要",
				"公众号", "小红书", "知乎", "微博", "推文", "软文", "稿",
			}},
			{ID: 2, Name: "编程开发", Keywords: []string{
				"代码", "编程", "开发", "程序", "算法", "调试", "bug", "修复",
				"java", "python", "javascript", "js", "html", "css", "sql", "数据库",
				"api", "接口", "函数", "类", "方法", "变量", "循环", "条件",
				"框架", "spring", "vue", "react", "angular", "node", "docker",
			}},
			{ID: 3, Name: "数据分析", Keywords: []string{
				"数据", "分析", "统计", "图表", "可视化", "报表", "excel", "csv",
				"趋势", "预测", "模型", "机器学习", "深度学习", "ai", "人工智能",
				"指标", "kpi", "增长", "下降", "对比", "环比", "同比",
			}},
			{ID: 4, Name: "创意设计", Keywords: []string{
				"设计", "创意", "图像", "图片", "海报", "logo", "ui", "ux",
				"配色", "排版", "字体", "插画", "摄影", "视频", "剪辑", "特效",
				"艺术", "美学", "风格", "概念", "灵感", "头脑风暴",
			}},
			{ID: 5, Name: "商业办公", Keywords: []string{
				"商业", "商务", "办公", "邮件", "报告", "ppt", "演示", "汇报",
				"合同", "协议", "法务", "财务", "营销", "销售", "客户", "管理",
				"战略", "规划", "计划", "方案", "提案", "投标", "招标",
			}},
			{ID: 6, Name: "教育培训", Keywords: []string{
				"教育", "教学", "学习", "培训", "课程", "教案", "课件", "考试",
				"作业", "论文", "学术", "研究", "知识", "讲解", "辅导", "答疑",
				"学生", "老师", "教师", "教授", "导师", "学校", "大学",
			}},
			{ID: 7, Name: "翻译语言", Keywords: []string{
				"翻译", "语言", "英语", "中文", "日文", "韩文", "法文", "德文",
				"语法", "词汇", "口语", "听力", "阅读", "写作", "学习", "外语",
				"本地化", "国际化", "字幕", "配音",
			}},
			{ID: 8, Name: "对话聊天", Keywords: []string{
				"对话", "聊天", "问答", "咨询", "客服", "角色扮演", "模拟",
				"助手", "帮助", "建议", "意见", "讨论", "交流", "沟通",
				"心理", "情感", "陪伴", "娱乐", "游戏", "剧本",
			}},
		},
		tagRules: []tagRule{
			{Match: "python", Tag: "Python"},
			{Match: "java", Tag: "Java"},
			{Match: "javascript", Tag: "JavaScript"},
			{Match: "js", Tag: "JavaScript"},
			{Match: "sql", Tag: "SQL"},
			{Match: "ai", Tag: "AI"},
			{Match: "人工智能", Tag: "AI"},
			{Match: "excel", Tag: "Excel"},
			{Match: "ppt", Tag: "PPT"},
		},
	}
}

// RuleClassifier scores text against fixed per-category keyword
// dictionaries. Pure and reentrant: no external calls, no side effects,
// never fails for any input including the empty string.
type RuleClassifier struct {
	config *RuleConfig
}

// NewRuleClassifier creates a rule classifier over the given dictionaries.
// Parameters:
//   - config: immutable dictionaries; nil uses DefaultRuleConfig.
// Returns:
//   - *RuleClassifier: initialized classifier.
func NewRuleClassifier(config *RuleConfig) *RuleClassifier {
	if config == nil {
		config = DefaultRuleConfig()
	}
	return &RuleClassifier{config: config}
}

// Classify scores the prompt's task description and generated text against
// every category dictionary. The highest-scoring category wins; ties go to
// the lowest category id (a fixed, arbitrary convention). Confidence is the
// winner's share of the total score over categories that scored at all.
// When nothing matches, the fallback category is returned with zero
// confidence and no tags.
// Parameters:
//   - prompt: cached prompt row to classify.
// Returns:
//   - domain.ClassificationResult: chosen category, extracted tags, confidence.
func (c *RuleClassifier) Classify(prompt *domain.Prompt) domain.ClassificationResult {
	text := strings.ToLower(prompt.TaskDescription + " " + prompt.GeneratedPrompt)

	var best *ruleCategory
	bestScore := 0
	totalScore := 0
	for i := range c.config.categories {
		cat := &c.config.categories[i]
		score := 0
		for _, keyword := range cat.Keywords {
			score += countOccurrences(text, keyword)
		}
		totalScore += score
		if score > bestScore {
			bestScore = score
			best = cat
		}
	}

	if best == nil {
		return domain.FallbackResult()
	}

	return domain.ClassificationResult{
		CategoryID:   best.ID,
		CategoryName: best.Name,
		Tags:         c.extractTags(text),
		Confidence:   float64(bestScore) / float64(totalScore),
	}
}

// extractTags collects tag names whose match string occurs in the text,
// collapsing duplicates while keeping the fixed rule order.
func (c *RuleClassifier) extractTags(text string) []string {
	tags := make([]string, 0, 4)
	seen := make(map[string]bool)
	for _, rule := range c.config.tagRules {
		if !strings.Contains(text, rule.Match) {
			continue
		}
		if seen[rule.Tag] {
			continue
		}
		seen[rule.Tag] = true
		tags = append(tags, rule.Tag)
	}
	return tags
}

// countOccurrences counts keyword occurrences in text. ASCII keywords are
// matched on word boundaries; keywords containing non-ASCII runes (CJK has
// no delimiters to anchor on) are counted as plain substrings.
func countOccurrences(text, keyword string) int {
	if keyword == "" {
		return 0
	}
	if !isASCII(keyword) {
		return strings.Count(text, keyword)
	}

	count := 0
	for start := 0; ; {
		idx := strings.Index(text[start:], keyword)
		if idx < 0 {
			break
		}
		pos := start + idx
		end := pos + len(keyword)
		if boundaryBefore(text, pos) && boundaryAfter(text, end) {
			count++
		}
		start = pos + len(keyword)
	}
	return count
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func boundaryBefore(text string, pos int) bool {
	return pos == 0 || !isWordByte(text[pos-1])
}

func boundaryAfter(text string, end int) bool {
	return end >= len(text) || !isWordByte(text[end])
}

// isWordByte reports whether b is an ASCII word character. Multibyte
// runes (CJK neighbors in particular) always count as boundaries.
func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
