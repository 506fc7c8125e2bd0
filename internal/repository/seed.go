package repository

import (
	"context"
	"fmt"

	"github.com/junhao/promptflow/internal/domain"
)

// defaultCategories are the system categories created on first startup.
// The rule classifier's keyword dictionaries are keyed by these ids.
func defaultCategories() []domain.Category {
	return []domain.Category{
		{ID: 1, Name: "写作创作", Description: "文章、文案、内容创作、博客、小说等写作相关", Icon: "✍️", Color: "#3b82f6", SortOrder: 1, IsSystem: true},
		{ID: 2, Name: "编程开发", Description: "编程、代码、开发、算法、调试、API等技术相关", Icon: "💻", Color: "#10b981", SortOrder: 2, IsSystem: true},
		{ID: 3, Name: "数据分析", Description: "数据处理、分析、可视化、报表等相关", Icon: "📊", Color: "#f59e0b", SortOrder: 3, IsSystem: true},
		{ID: 4, Name: "创意设计", Description: "图像、设计、创意、艺术等相关", Icon: "🎨", Color: "#ec4899", SortOrder: 4, IsSystem: true},
		{ID: 5, Name: "商业办公", Description: "商务、办公、邮件、报告、演示等相关", Icon: "💼", Color: "#6366f1", SortOrder: 5, IsSystem: true},
		{ID: 6, Name: "教育培训", Description: "教学、学习、培训、考试、知识等相关", Icon: "📚", Color: "#8b5cf6", SortOrder: 6, IsSystem: true},
		{ID: 7, Name: "翻译语言", Description: "翻译、语言学习、语法、写作等相关", Icon: "🌐", Color: "#14b8a6", SortOrder: 7, IsSystem: true},
		{ID: 8, Name: "对话聊天", Description: "对话、聊天、问答、咨询、客服等相关", Icon: "💬", Color: "#f97316", SortOrder: 8, IsSystem: true},
		{ID: 9, Name: "其他", Description: "不属于以上分类的其他类型", Icon: "📌", Color: "#6b7280", SortOrder: 99, IsSystem: true},
	}
}

// defaultTags are the system tags created on first startup.
func defaultTags() []domain.Tag {
	return []domain.Tag{
		{Name: "AI", Color: "#3b82f6", IsSystem: true},
		{Name: "教程", Color: "#10b981", IsSystem: true},
		{Name: "模板", Color: "#f59e0b", IsSystem: true},
		{Name: "高效", Color: "#ec4899", IsSystem: true},
		{Name: "专业", Color: "#6366f1", IsSystem: true},
		{Name: "创意", Color: "#8b5cf6", IsSystem: true},
		{Name: "简洁", Color: "#14b8a6", IsSystem: true},
		{Name: "详细", Color: "#f97316", IsSystem: true},
		{Name: "实用", Color: "#22c55e", IsSystem: true},
		{Name: "进阶", Color: "#f59e0b", IsSystem: true},
	}
}

// Seed creates the default categories and tags when their tables are empty.
// Safe to call on every startup.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - categoryRepo: category repository.
//   - tagRepo: tag repository.
// Returns:
//   - error: non-nil if any seed insert fails.
func Seed(ctx context.Context, categoryRepo *CategoryRepository, tagRepo *TagRepository) error {
	count, err := categoryRepo.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count categories: %w", err)
	}
	if count == 0 {
		if err := categoryRepo.CreateAll(ctx, defaultCategories()); err != nil {
			return fmt.Errorf("failed to seed categories: %w", err)
		}
	}

	count, err = tagRepo.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count tags: %w", err)
	}
	if count == 0 {
		if err := tagRepo.CreateAll(ctx, defaultTags()); err != nil {
			return fmt.Errorf("failed to seed tags: %w", err)
		}
	}

	return nil
}
