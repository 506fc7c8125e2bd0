package domain

import "time"

// Tag represents a free-form label attached to prompts.
// The usage counter is incremented every time the tag is assigned to a
// prompt by classification; it is never decremented.
type Tag struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"uniqueIndex:idx_tags_name;size:50;not null" json:"name"`
	Color      string    `gorm:"size:20" json:"color"`
	UsageCount int       `gorm:"default:0" json:"usage_count"`
	IsSystem   bool      `gorm:"default:false" json:"is_system"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for Tag.
func (Tag) TableName() string {
	return "prompt_tag"
}

// ClassificationResult is the outcome of classifying one prompt, produced
// by either the rule classifier or the LLM arbiter.
type ClassificationResult struct {
	CategoryID   uint     `json:"categoryId"`
	CategoryName string   `json:"categoryName"`
	Tags         []string `json:"tags"`
	Confidence   float64  `json:"confidence"`
}

// FallbackResult returns the catch-all classification used when no signal
// is available: the fallback category with zero confidence and no tags.
func FallbackResult() ClassificationResult {
	return ClassificationResult{
		CategoryID:   FallbackCategoryID,
		CategoryName: FallbackCategoryName,
		Tags:         []string{},
		Confidence:   0,
	}
}
