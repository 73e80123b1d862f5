package pipeline

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/research-brief/internal/model"
)

const minDescriptionRunes = 80

const describeSystemPrompt = `You write the opening paragraph of a market research brief. Describe the business idea in two to four plain sentences: what it offers, who it serves and how it delivers value. Stay faithful to the founder's idea and context; do not invent traction, pricing or partners.`

const describeSchema = `Respond with a JSON object only:
{"description": "<two to four sentences>"}`

type description struct {
	Description string `json:"description"`
}

// describe writes a polished description of the idea.
func (r *run) describe(ctx context.Context) model.ComponentResult[description] {
	ctx, cancel := context.WithTimeout(ctx, r.p.cfg.Research.ComponentTimeout())
	defer cancel()

	return requestStructured(ctx, r, structuredRequest{
		Component:   model.ComponentDescription,
		Model:       r.p.cfg.Research.Models.Description,
		System:      describeSystemPrompt,
		User:        ideaContext(r.req),
		Schema:      describeSchema,
		Temperature: 0.7,
		MaxTokens:   1024,
	}, func(d *description) error {
		d.Description = strings.TrimSpace(d.Description)
		if utf8.RuneCountInString(d.Description) < minDescriptionRunes {
			return eris.Errorf("description must be at least %d characters", minDescriptionRunes)
		}
		return nil
	})
}
