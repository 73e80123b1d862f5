package signals

import (
	"net/url"
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/research-brief/internal/model"
)

// Market stages accepted from research output.
var stages = map[string]string{
	"early":     "early",
	"nascent":   "early",
	"emerging":  "emerging",
	"growing":   "growing",
	"growth":    "growing",
	"mature":    "mature",
	"declining": "declining",
}

// NormalizeStage maps a free-form stage label to a known stage, or "".
func NormalizeStage(s string) string {
	return stages[cases.Fold().String(strings.TrimSpace(s))]
}

// Normalize trims signals, drops invalid and duplicate sources, and removes
// signals left without a description or without any source.
func Normalize(in []model.ProofSignal) []model.ProofSignal {
	out := make([]model.ProofSignal, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s.Description = collapse(s.Description)
		s.Evidence = collapse(s.Evidence)
		s.Disclaimer = strings.TrimSpace(s.Disclaimer)
		if s.Description == "" {
			s.Description = s.Evidence
		}
		if s.Description == "" {
			continue
		}

		s.Sources = cleanSources(s.Sources)
		if len(s.Sources) == 0 {
			continue
		}

		key := cases.Fold().String(s.Description)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// ValidURL reports whether s is an absolute http(s) URL with a host.
func ValidURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	return host != "" && strings.Contains(host, ".")
}

func cleanSources(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimRight(strings.TrimSpace(s), ".,;:!?")
		if !ValidURL(s) || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
