package signals

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sells-group/research-brief/internal/model"
)

const (
	maxHeuristicSignals = 8
	maxSummaryRunes     = 600
	minDescriptionRunes = 12
	minParagraphRunes   = 40
)

var (
	urlPattern      = regexp.MustCompile("https?://[^\\s<>()\\[\\]{}\"'`]+")
	mdLinkPattern   = regexp.MustCompile(`\[([^\]]*)\]\((https?://[^)\s]+)\)`)
	citationPattern = regexp.MustCompile(`\[(\d{1,3})\]`)
	listMarker      = regexp.MustCompile(`^(?:[-*+•]|\d{1,2}[.)]|#{1,6})\s*`)
	emptyParens     = regexp.MustCompile(`[(\[]\s*[)\]]`)
)

// Extract runs both heuristic extractors over free text: URL/sentence
// pairing for signals and first-paragraph extraction for the summary.
func Extract(text string) model.ProofSignalsBundle {
	b := model.ProofSignalsBundle{
		Signals: PairURLs(text),
		Summary: FirstParagraph(text),
	}
	if len(b.Signals) > 0 {
		b.Disclaimer = HeuristicDisclaimer
	}
	return b
}

// PairURLs builds one signal per sentence that cites a URL. A sentence that
// is little more than a link borrows the preceding sentence as its claim.
func PairURLs(text string) []model.ProofSignal {
	text = mdLinkPattern.ReplaceAllString(text, "$1 $2")

	var sigs []model.ProofSignal
	prev := ""
	for _, sentence := range sentences(text) {
		urls := urlPattern.FindAllString(sentence, -1)
		claim := stripMarkup(urlPattern.ReplaceAllString(sentence, ""))
		if len(urls) == 0 {
			if claim != "" {
				prev = claim
			}
			continue
		}

		evidence := stripMarkup(sentence)
		if utf8.RuneCountInString(claim) < minDescriptionRunes || isSourceLabel(claim) {
			if prev == "" {
				continue
			}
			claim = prev
		}

		sigs = append(sigs, model.ProofSignal{
			Description: claim,
			Evidence:    evidence,
			Sources:     urls,
		})
		prev = ""
	}

	sigs = Normalize(sigs)
	if len(sigs) > maxHeuristicSignals {
		sigs = sigs[:maxHeuristicSignals]
	}
	return sigs
}

// FirstParagraph returns the first substantial prose paragraph of text with
// links and markup removed, truncated on a word boundary.
func FirstParagraph(text string) string {
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		p := strings.TrimSpace(para)
		if p == "" || strings.HasPrefix(p, "{") || strings.HasPrefix(p, "[") || strings.HasPrefix(p, "```") {
			continue
		}
		var lines []string
		for _, line := range strings.Split(p, "\n") {
			if l := stripMarkup(urlPattern.ReplaceAllString(mdLinkPattern.ReplaceAllString(line, "$1"), "")); l != "" {
				lines = append(lines, l)
			}
		}
		clean := strings.Join(lines, " ")
		if utf8.RuneCountInString(clean) < minParagraphRunes {
			continue
		}
		return truncateWords(clean, maxSummaryRunes)
	}
	return ""
}

// ResolveCitations replaces 1-based [n] markers with the matching citation
// URL. Markers without a matching citation are dropped.
func ResolveCitations(text string, citations []string) string {
	if len(citations) == 0 {
		return text
	}
	return citationPattern.ReplaceAllStringFunc(text, func(m string) string {
		n, err := strconv.Atoi(m[1 : len(m)-1])
		if err != nil || n < 1 || n > len(citations) {
			return ""
		}
		return " " + citations[n-1] + " "
	})
}

// sentences splits text at line breaks and at terminal punctuation followed
// by whitespace. Periods inside URLs never split.
func sentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		start := 0
		runes := []rune(line)
		for i, r := range runes {
			if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stripMarkup(s string) string {
	s = strings.TrimSpace(s)
	s = listMarker.ReplaceAllString(s, "")
	s = strings.NewReplacer("**", "", "__", "", "`", "").Replace(s)
	s = emptyParens.ReplaceAllString(s, "")
	s = collapse(s)
	s = strings.TrimRight(s, " :-–(")
	s = strings.ReplaceAll(s, " .", ".")
	return strings.TrimSpace(s)
}

func isSourceLabel(s string) bool {
	l := strings.ToLower(strings.TrimRight(s, ":. "))
	switch l {
	case "source", "sources", "see", "via", "link", "reference", "references", "read more":
		return true
	}
	return false
}

func truncateWords(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)[:limit]
	cut := strings.LastIndexFunc(string(r), unicode.IsSpace)
	if cut <= 0 {
		return string(r) + "…"
	}
	return strings.TrimSpace(string(r)[:cut]) + "…"
}
