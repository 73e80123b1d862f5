package model

import "strings"

// ClarifyingContext is optional enrichment gathered by the conversational
// front-end before research starts. The pipeline only reads it.
type ClarifyingContext struct {
	UserAnswers    map[string]string `json:"userAnswers,omitempty" yaml:"user_answers"`
	AIAssumptions  map[string]string `json:"aiAssumptions,omitempty" yaml:"ai_assumptions"`
	ContextSummary string            `json:"contextSummary,omitempty" yaml:"context_summary"`
}

// IsEmpty reports whether the context carries nothing worth folding into a prompt.
func (c *ClarifyingContext) IsEmpty() bool {
	if c == nil {
		return true
	}
	return len(c.UserAnswers) == 0 && len(c.AIAssumptions) == 0 && strings.TrimSpace(c.ContextSummary) == ""
}

// ResearchRequest is the input to a single pipeline run.
type ResearchRequest struct {
	Summary           string             `json:"summary"`
	UserID            string             `json:"userId"`
	IdeaID            string             `json:"ideaId,omitempty"`
	ConversationID    string             `json:"conversationId,omitempty"`
	ClarifyingContext *ClarifyingContext `json:"clarifyingContext,omitempty"`
}
