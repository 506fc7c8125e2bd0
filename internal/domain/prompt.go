package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// Prompt represents a cached generated prompt in the system.
// One row exists per distinct request fingerprint; the row is mutated on
// cache hits (hit counter, timestamp) and by classification (category,
// tags, auto-tagged flag).
type Prompt struct {
	ID                 uint        `gorm:"primaryKey" json:"id"`
	TaskDescription    string      `gorm:"type:text;not null" json:"task_description"`
	TargetAudience     string      `json:"target_audience,omitempty"`
	OutputFormat       string      `json:"output_format,omitempty"`
	Constraints        string      `gorm:"type:text" json:"constraints,omitempty"`
	Examples           string      `gorm:"type:text" json:"examples,omitempty"`
	Tone               string      `json:"tone,omitempty"`
	Length             string      `json:"length,omitempty"`
	GeneratedPrompt    string      `gorm:"type:text" json:"generated_prompt"`
	RequestHash        string      `gorm:"uniqueIndex:idx_prompts_hash;size:32;not null" json:"request_hash"`
	HitCount           int         `gorm:"default:0" json:"hit_count"`
	LikeCount          int         `gorm:"default:0" json:"like_count"`
	CategoryID         *uint       `gorm:"index:idx_prompts_category" json:"category_id,omitempty"`
	IsAutoTagged       bool        `gorm:"default:false;index:idx_prompts_tagged" json:"is_auto_tagged"`
	AITags             StringArray `gorm:"column:ai_tags;type:text" json:"ai_tags"`
	UsageScenario      string      `gorm:"size:200" json:"usage_scenario,omitempty"`
	EffectivenessScore int         `json:"effectiveness_score,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	Tags               []Tag       `gorm:"many2many:prompt_tag_relation;" json:"tags,omitempty"`
}

// TableName returns the database table name for Prompt.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Prompt) TableName() string {
	return "prompt_cache"
}

// CacheStats summarizes the state of the generation cache.
type CacheStats struct {
	TotalCount int64   `json:"total_count"`
	TotalHits  int64   `json:"total_hits"`
	HitRate    float64 `json:"hit_rate"`
}

// HitRatePercent formats the hit rate as a percentage string.
func (s CacheStats) HitRatePercent() string {
	return fmt.Sprintf("%.2f%%", s.HitRate*100)
}
