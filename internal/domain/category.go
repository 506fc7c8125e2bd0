package domain

import "time"

// Category represents a topical category a prompt can be filed under.
// System categories are seeded at startup and cannot be deleted.
type Category struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex:idx_categories_name;size:50;not null" json:"name"`
	Description string    `gorm:"size:200" json:"description"`
	Icon        string    `gorm:"size:10" json:"icon"`
	Color       string    `gorm:"size:20" json:"color"`
	SortOrder   int       `gorm:"default:0" json:"sort_order"`
	IsSystem    bool      `gorm:"default:false" json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for Category.
func (Category) TableName() string {
	return "prompt_category"
}

// FallbackCategoryID is the id of the catch-all category assigned when
// neither the rule classifier nor the arbiter produces a usable result.
const FallbackCategoryID uint = 9

// FallbackCategoryName is the display name of the catch-all category.
const FallbackCategoryName = "其他"

// CategoryCount pairs a category with the number of prompts filed under it.
type CategoryCount struct {
	CategoryID uint  `json:"category_id"`
	Count      int64 `json:"count"`
}
