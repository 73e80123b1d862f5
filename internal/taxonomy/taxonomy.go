// Package taxonomy holds the fixed vocabularies used by the research
// pipeline: industry tags, business types, proof-signal templates and the
// stop-word list for heuristic keyword extraction.
package taxonomy

import (
	_ "embed"
	"net/url"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// Fallback values used when classification cannot produce a recognized entry.
const (
	FallbackIndustry     = "General Business"
	FallbackBusinessType = "Unspecified"
)

//go:embed taxonomy.yaml
var embedded []byte

// Industry is a canonical industry tag and its accepted aliases.
type Industry struct {
	Tag     string   `yaml:"tag"`
	Aliases []string `yaml:"aliases"`
}

// BusinessType is a canonical business model name and its aliases.
type BusinessType struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// SignalTemplate is a generic market-signal pattern. {topic} and {query}
// placeholders are filled from the idea summary.
type SignalTemplate struct {
	Description string `yaml:"description"`
	Evidence    string `yaml:"evidence"`
	Source      string `yaml:"source"`
}

// Render fills the template placeholders for topic.
func (s SignalTemplate) Render(topic string) (description, evidence, source string) {
	r := strings.NewReplacer("{topic}", topic, "{query}", url.QueryEscape(topic))
	return r.Replace(s.Description), r.Replace(s.Evidence), r.Replace(s.Source)
}

// Taxonomy is the parsed vocabulary with caseless lookup indexes.
type Taxonomy struct {
	Industries      []Industry       `yaml:"industries"`
	BusinessTypes   []BusinessType   `yaml:"business_types"`
	SignalTemplates []SignalTemplate `yaml:"signal_templates"`
	StopWords       []string         `yaml:"stop_words"`

	industryIndex map[string]string
	typeIndex     map[string]string
	stopIndex     map[string]bool
}

// Parse decodes a taxonomy document and builds its indexes.
func Parse(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "taxonomy: parse")
	}
	if len(t.Industries) == 0 {
		return nil, eris.New("taxonomy: no industries defined")
	}
	if len(t.SignalTemplates) == 0 {
		return nil, eris.New("taxonomy: no signal templates defined")
	}

	t.industryIndex = make(map[string]string)
	for _, ind := range t.Industries {
		t.industryIndex[fold(ind.Tag)] = ind.Tag
		for _, a := range ind.Aliases {
			t.industryIndex[fold(a)] = ind.Tag
		}
	}
	t.typeIndex = make(map[string]string)
	for _, bt := range t.BusinessTypes {
		t.typeIndex[fold(bt.Name)] = bt.Name
		for _, a := range bt.Aliases {
			t.typeIndex[fold(a)] = bt.Name
		}
	}
	t.stopIndex = make(map[string]bool, len(t.StopWords))
	for _, w := range t.StopWords {
		t.stopIndex[fold(w)] = true
	}
	return &t, nil
}

var loadDefault = sync.OnceValues(func() (*Taxonomy, error) {
	return Parse(embedded)
})

// Default returns the embedded taxonomy. The embedded document is covered
// by tests, so a parse failure is a build defect and panics.
func Default() *Taxonomy {
	t, err := loadDefault()
	if err != nil {
		panic(err)
	}
	return t
}

// Tags returns the canonical industry tags in document order.
func (t *Taxonomy) Tags() []string {
	out := make([]string, len(t.Industries))
	for i, ind := range t.Industries {
		out[i] = ind.Tag
	}
	return out
}

// BusinessTypeNames returns the canonical business type names.
func (t *Taxonomy) BusinessTypeNames() []string {
	out := make([]string, len(t.BusinessTypes))
	for i, bt := range t.BusinessTypes {
		out[i] = bt.Name
	}
	return out
}

// Industry resolves a tag or alias to its canonical tag.
func (t *Taxonomy) Industry(s string) (string, bool) {
	tag, ok := t.industryIndex[fold(s)]
	return tag, ok
}

// BusinessType resolves a name or alias to its canonical business type.
func (t *Taxonomy) BusinessType(s string) (string, bool) {
	name, ok := t.typeIndex[fold(s)]
	return name, ok
}

// IsStopWord reports whether w carries no topical signal.
func (t *Taxonomy) IsStopWord(w string) bool {
	return t.stopIndex[fold(w)]
}

func fold(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}
