package pipeline

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sells-group/research-brief/internal/model"
)

const repairSystemPrompt = `You fix malformed JSON produced by another model. Return only the corrected JSON object that satisfies the schema below. Keep every fact from the original; do not add new claims, names or URLs. When a required field is missing, fill it with a short neutral placeholder such as "Not specified" (or an empty list for arrays) instead of inventing content. Never invent a URL: leave URL fields empty when the original has none. No prose, no code fences.`

const repairUserPrompt = `The output below was rejected: %s

Original output:
%s`

// ideaContext renders the summary plus any clarifying context as the user
// message shared by every component.
func ideaContext(req model.ResearchRequest) string {
	var b strings.Builder
	b.WriteString("Business idea:\n")
	b.WriteString(strings.TrimSpace(req.Summary))
	b.WriteString("\n")

	cc := req.ClarifyingContext
	if cc.IsEmpty() {
		return b.String()
	}

	if s := strings.TrimSpace(cc.ContextSummary); s != "" {
		b.WriteString("\nContext from the founder conversation:\n")
		b.WriteString(s)
		b.WriteString("\n")
	}
	writePairs(&b, "Founder answers", cc.UserAnswers)
	writePairs(&b, "Working assumptions (unconfirmed)", cc.AIAssumptions)
	return b.String()
}

func writePairs(b *strings.Builder, heading string, m map[string]string) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	fmt.Fprintf(b, "\n%s:\n", heading)
	for _, k := range keys {
		v := strings.TrimSpace(m[k])
		if v == "" {
			continue
		}
		fmt.Fprintf(b, "- %s: %s\n", k, v)
	}
}
