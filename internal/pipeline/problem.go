package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/research-brief/internal/model"
)

const maxWhyNow = 6

const problemSystemPrompt = `You are a market analyst. State the customer problem this business idea solves in one short paragraph, then list the reasons the timing is right now: market shifts, regulation, technology or behavior changes. Be concrete and avoid hype. Do not cite statistics you cannot attribute.`

const problemSchema = `Respond with a JSON object only:
{"problem": "<one paragraph>", "whyNow": ["<reason>", "..."]}
whyNow must hold between 1 and 6 short reasons.`

type problemAnalysis struct {
	Problem string   `json:"problem"`
	WhyNow  []string `json:"whyNow"`
}

// analyzeProblem produces the problem statement and why-now reasons.
func (r *run) analyzeProblem(ctx context.Context) model.ComponentResult[problemAnalysis] {
	ctx, cancel := context.WithTimeout(ctx, r.p.cfg.Research.ComponentTimeout())
	defer cancel()

	return requestStructured(ctx, r, structuredRequest{
		Component:   model.ComponentProblemAnalysis,
		Model:       r.p.cfg.Research.Models.Problem,
		System:      problemSystemPrompt,
		User:        ideaContext(r.req),
		Schema:      problemSchema,
		Temperature: 0.5,
		MaxTokens:   1536,
	}, func(p *problemAnalysis) error {
		p.Problem = strings.TrimSpace(p.Problem)
		if p.Problem == "" {
			return eris.New("problem is empty")
		}
		p.WhyNow = compact(p.WhyNow)
		if len(p.WhyNow) == 0 {
			return eris.New("whyNow needs at least one reason")
		}
		if len(p.WhyNow) > maxWhyNow {
			p.WhyNow = p.WhyNow[:maxWhyNow]
		}
		return nil
	})
}

// compact trims entries and drops blanks. The result is never nil.
func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
