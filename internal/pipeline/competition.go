package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/research-brief/internal/model"
	"github.com/sells-group/research-brief/internal/signals"
)

const maxCompetitors = 8

const competitionSystemPrompt = `You map the competitive landscape for a business idea. Name existing companies or product categories a customer would consider instead, with a one-sentence description, strengths and weaknesses for each. Then list gaps in the market, the idea's potential differentiators and a one-paragraph positioning statement. Only include a website when you are confident it is the competitor's real homepage.`

const competitionSchema = `Respond with a JSON object only:
{"competitors": [{"name": "", "description": "", "website": "https://...", "strengths": [""], "weaknesses": [""]}],
 "marketGaps": [""], "differentiators": [""], "positioning": ""}
Include between 1 and 8 competitors.`

// analyzeCompetition maps the competitive landscape.
func (r *run) analyzeCompetition(ctx context.Context) model.ComponentResult[model.CompetitionAnalysis] {
	ctx, cancel := context.WithTimeout(ctx, r.p.cfg.Research.ComponentTimeout())
	defer cancel()

	return requestStructured(ctx, r, structuredRequest{
		Component:   model.ComponentCompetition,
		Model:       r.p.cfg.Research.Models.Competition,
		System:      competitionSystemPrompt,
		User:        ideaContext(r.req),
		Schema:      competitionSchema,
		Temperature: 0.4,
		MaxTokens:   3072,
	}, validateCompetition)
}

func validateCompetition(c *model.CompetitionAnalysis) error {
	comps := make([]model.Competitor, 0, len(c.Competitors))
	for _, comp := range c.Competitors {
		comp.Name = strings.TrimSpace(comp.Name)
		if comp.Name == "" {
			continue
		}
		comp.Description = strings.TrimSpace(comp.Description)
		comp.Website = strings.TrimSpace(comp.Website)
		if !signals.ValidURL(comp.Website) {
			comp.Website = ""
		}
		comp.Strengths = compact(comp.Strengths)
		comp.Weaknesses = compact(comp.Weaknesses)
		comps = append(comps, comp)
	}
	if len(comps) == 0 {
		return eris.New("competitors needs at least one named entry")
	}
	if len(comps) > maxCompetitors {
		comps = comps[:maxCompetitors]
	}
	c.Competitors = comps
	c.MarketGaps = compact(c.MarketGaps)
	c.Differentiators = compact(c.Differentiators)
	c.Positioning = strings.TrimSpace(c.Positioning)
	if c.Positioning == "" {
		return eris.New("positioning is empty")
	}
	return nil
}
