package model

// TokenUsage tracks token consumption for one or more provider calls.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// NewTokenUsage builds a TokenUsage with TotalTokens derived from the parts.
// Negative inputs are clamped to zero.
func NewTokenUsage(prompt, completion int) TokenUsage {
	if prompt < 0 {
		prompt = 0
	}
	if completion < 0 {
		completion = 0
	}
	return TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// Add returns the field-wise sum of u and other.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// IsZero reports whether no tokens were recorded.
func (u TokenUsage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0
}

// UsageReport is the token accounting attached to a pipeline response.
// Total always equals the field-wise sum of Components.
type UsageReport struct {
	Total      TokenUsage               `json:"total"`
	Components map[Component]TokenUsage `json:"components"`
}
