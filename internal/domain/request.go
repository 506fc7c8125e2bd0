package domain

import "strings"

// PromptRequest is the inbound generation request. Only TaskDescription is
// required; all other fields are optional free text. The value is immutable
// once bound and is used to derive the cache fingerprint and to seed the
// cached row the first time the prompt is generated.
type PromptRequest struct {
	TaskDescription string `json:"task_description" binding:"required"`
	TargetAudience  string `json:"target_audience"`
	OutputFormat    string `json:"output_format"`
	Constraints     string `json:"constraints"`
	Examples        string `json:"examples"`
	Tone            string `json:"tone"`
	Length          string `json:"length"`
}

// Validate checks that the required task description is non-empty after
// trimming.
// Returns:
//   - bool: true when the request is acceptable.
func (r *PromptRequest) Validate() bool {
	return strings.TrimSpace(r.TaskDescription) != ""
}

// ToPrompt builds a new cache row from the request and the generated text.
// The returned row starts with a zero hit counter and no classification.
func (r *PromptRequest) ToPrompt(hash, generated string) *Prompt {
	return &Prompt{
		TaskDescription: r.TaskDescription,
		TargetAudience:  r.TargetAudience,
		OutputFormat:    r.OutputFormat,
		Constraints:     r.Constraints,
		Examples:        r.Examples,
		Tone:            r.Tone,
		Length:          r.Length,
		GeneratedPrompt: generated,
		RequestHash:     hash,
		HitCount:        0,
		AITags:          StringArray{},
	}
}
