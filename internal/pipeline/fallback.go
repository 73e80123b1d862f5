package pipeline

import (
	"strings"
	"time"

	"github.com/sells-group/research-brief/internal/model"
	"github.com/sells-group/research-brief/internal/taxonomy"
)

// Static values substituted for components that produced no data.
const (
	FallbackProblem     = "A problem statement could not be generated for this idea. Validate the core customer pain directly with prospective buyers."
	FallbackWhyNow      = "Timing analysis was unavailable for this run."
	FallbackPositioning = "Competitive positioning could not be generated for this run."
)

// fallbackBrief returns a fully populated brief built only from the summary.
// Component outputs are layered on top of it.
func fallbackBrief(summary string, tx *taxonomy.Taxonomy, now time.Time) model.ResearchBriefResult {
	return model.ResearchBriefResult{
		IndustryTag:  taxonomy.FallbackIndustry,
		BusinessType: taxonomy.FallbackBusinessType,
		Description:  strings.TrimSpace(summary),
		Problem:      FallbackProblem,
		WhyNow:       []string{FallbackWhyNow},
		Competition: model.CompetitionAnalysis{
			Competitors:     []model.Competitor{},
			MarketGaps:      []string{},
			Differentiators: []string{},
			Positioning:     FallbackPositioning,
		},
		Keywords:     heuristicKeywords(summary, tx, now),
		ProofSignals: []model.ProofSignal{},
	}
}
