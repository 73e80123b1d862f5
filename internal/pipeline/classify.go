package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/research-brief/internal/model"
)

const classifySystemPrompt = `You classify early-stage business ideas. Pick the single industry tag that best fits the idea and the business type that describes how it makes money. Use only the allowed values listed below, spelled exactly as given.

Industry tags: %s

Business types: %s`

const classifySchema = `Respond with a JSON object only:
{"industryTag": "<one industry tag>", "businessType": "<one business type>", "confidence": <0.0-1.0>}`

// classification is the structured classifier output.
type classification struct {
	IndustryTag  string  `json:"industryTag"`
	BusinessType string  `json:"businessType"`
	Confidence   float64 `json:"confidence"`
}

// classify maps the idea onto the industry and business type taxonomies.
func (r *run) classify(ctx context.Context) model.ComponentResult[classification] {
	ctx, cancel := context.WithTimeout(ctx, r.p.cfg.Research.ComponentTimeout())
	defer cancel()

	tx := r.p.taxonomy
	return requestStructured(ctx, r, structuredRequest{
		Component:   model.ComponentClassification,
		Model:       r.p.cfg.Research.Models.Classification,
		System:      fmt.Sprintf(classifySystemPrompt, strings.Join(tx.Tags(), ", "), strings.Join(tx.BusinessTypeNames(), ", ")),
		User:        ideaContext(r.req),
		Schema:      classifySchema,
		Temperature: 0,
		MaxTokens:   256,
	}, func(c *classification) error {
		tag, ok := tx.Industry(c.IndustryTag)
		if !ok {
			return eris.Errorf("industryTag %q is not a known industry", c.IndustryTag)
		}
		bt, ok := tx.BusinessType(c.BusinessType)
		if !ok {
			return eris.Errorf("businessType %q is not a known business type", c.BusinessType)
		}
		c.IndustryTag, c.BusinessType = tag, bt
		c.Confidence = min(max(c.Confidence, 0), 1)
		return nil
	})
}
