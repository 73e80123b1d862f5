package signals

import (
	"strings"

	"github.com/sells-group/research-brief/internal/model"
	"github.com/sells-group/research-brief/internal/taxonomy"
)

const (
	maxTopicWords = 8

	// TemplateStage marks bundles built without any live research.
	TemplateStage = "unverified"
)

// Templates builds disclaimed research leads from the generic market-signal
// templates, parameterized by the idea summary. It never fails.
func Templates(summary string, tx *taxonomy.Taxonomy) model.ProofSignalsBundle {
	topic := Topic(summary)

	sigs := make([]model.ProofSignal, 0, len(tx.SignalTemplates))
	for _, tpl := range tx.SignalTemplates {
		desc, evidence, source := tpl.Render(topic)
		sigs = append(sigs, model.ProofSignal{
			Description: desc,
			Evidence:    evidence,
			Sources:     []string{source},
			Disclaimer:  TemplateDisclaimer,
		})
	}

	return model.ProofSignalsBundle{
		Signals:    sigs,
		Summary:    "No live market research was available for \"" + topic + "\". The signals below are starting points for manual validation.",
		Stage:      TemplateStage,
		Disclaimer: TemplateDisclaimer,
	}
}

// Topic condenses a summary into a short phrase usable in a search query.
func Topic(summary string) string {
	words := strings.Fields(summary)
	if len(words) > maxTopicWords {
		words = words[:maxTopicWords]
	}
	topic := strings.TrimRight(strings.Join(words, " "), ".,;:!?")
	if topic == "" {
		return "this business idea"
	}
	return topic
}
