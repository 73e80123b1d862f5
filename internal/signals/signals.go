// Package signals turns proof-signal research output into structured
// bundles. Everything here is a pure function of its input text, so the
// extractors can be exercised without any provider.
package signals

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/research-brief/internal/model"
)

// Method records which extractor produced a bundle.
type Method string

const (
	MethodJSON      Method = "json"
	MethodHeuristic Method = "heuristic"
	MethodTemplate  Method = "template"
)

// Disclaimers attached to degraded bundles.
const (
	HeuristicDisclaimer = "These signals were extracted automatically from unstructured research notes and may be incomplete."
	TemplateDisclaimer  = "Live market research was unavailable. These are generic research leads, not verified evidence; check each source yourself."
)

// ErrNoSignals is returned when no extractor found a signal with a usable source.
var ErrNoSignals = eris.New("signals: no usable signals in text")

type payload struct {
	Signals      []rawSignal `json:"signals"`
	ProofSignals []rawSignal `json:"proofSignals"`
	Summary      string      `json:"summary"`
	Stage        string      `json:"stage"`
}

type rawSignal struct {
	Description string   `json:"description"`
	Evidence    string   `json:"evidence"`
	Sources     []string `json:"sources"`
	Source      string   `json:"source"`
	URL         string   `json:"url"`
}

func (r rawSignal) toSignal() model.ProofSignal {
	sources := append([]string{}, r.Sources...)
	if r.Source != "" {
		sources = append(sources, r.Source)
	}
	if r.URL != "" {
		sources = append(sources, r.URL)
	}
	return model.ProofSignal{
		Description: r.Description,
		Evidence:    r.Evidence,
		Sources:     sources,
	}
}

// Parse extracts a bundle from research output. JSON is tried first; when it
// is missing or yields nothing usable, the heuristic extractors run over the
// raw text. ErrNoSignals means neither produced a sourced signal.
func Parse(text string) (model.ProofSignalsBundle, Method, error) {
	if b, err := ParseJSON(text); err == nil {
		return b, MethodJSON, nil
	}

	b := Extract(text)
	if len(b.Signals) == 0 {
		return b, MethodHeuristic, ErrNoSignals
	}
	return b, MethodHeuristic, nil
}

// ParseWithCitations resolves numbered citation markers against citations
// before parsing.
func ParseWithCitations(text string, citations []string) (model.ProofSignalsBundle, Method, error) {
	return Parse(ResolveCitations(text, citations))
}

// ParseJSON decodes a JSON bundle and normalizes it.
func ParseJSON(text string) (model.ProofSignalsBundle, error) {
	var p payload
	if err := json.Unmarshal([]byte(CleanJSON(text)), &p); err != nil {
		return model.ProofSignalsBundle{}, eris.Wrap(err, "signals: decode json")
	}

	raw := p.Signals
	if len(raw) == 0 {
		raw = p.ProofSignals
	}
	sigs := make([]model.ProofSignal, 0, len(raw))
	for _, r := range raw {
		sigs = append(sigs, r.toSignal())
	}

	b := model.ProofSignalsBundle{
		Signals: Normalize(sigs),
		Summary: strings.TrimSpace(p.Summary),
		Stage:   NormalizeStage(p.Stage),
	}
	if len(b.Signals) == 0 {
		return b, ErrNoSignals
	}
	return b, nil
}

// CleanJSON strips markdown code fences and surrounding prose, returning the
// outermost JSON object in text.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
