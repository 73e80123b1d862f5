// Package cost estimates the USD cost of provider calls made during a run.
package cost

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic  map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityRate       `yaml:"perplexity" mapstructure:"perplexity"`
	Keywords   KeywordRate          `yaml:"keywords" mapstructure:"keywords"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	BatchDiscount float64 `yaml:"batch_discount" mapstructure:"batch_discount"`
}

// PerplexityRate holds Perplexity pricing: a flat request fee plus tokens.
type PerplexityRate struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
	PerMTok  float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// KeywordRate holds keyword-volume provider pricing.
type KeywordRate struct {
	PerRequest float64 `yaml:"per_request" mapstructure:"per_request"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost of Claude tokens. Batch (background job) calls
// get the batch discount. Unknown models cost 0.
func (c *Calculator) Claude(model string, isBatch bool, prompt, completion int) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}

	mul := 1.0
	if isBatch && rate.BatchDiscount > 0 {
		mul = rate.BatchDiscount
	}

	in := (float64(prompt) / 1e6) * rate.Input * mul
	out := (float64(completion) / 1e6) * rate.Output * mul
	return in + out
}

// Perplexity computes the cost of one Perplexity completion.
func (c *Calculator) Perplexity(prompt, completion int) float64 {
	return c.rates.Perplexity.PerQuery + (float64(prompt+completion)/1e6)*c.rates.Perplexity.PerMTok
}

// Keywords computes the cost of n keyword provider requests.
func (c *Calculator) Keywords(requests int) float64 {
	return float64(requests) * c.rates.Keywords.PerRequest
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 1.00, Output: 5.00, BatchDiscount: 0.5,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00, BatchDiscount: 0.5,
			},
			"claude-opus-4-6": {
				Input: 15.00, Output: 75.00, BatchDiscount: 0.5,
			},
		},
		Perplexity: PerplexityRate{PerQuery: 0.005, PerMTok: 1.00},
		Keywords:   KeywordRate{PerRequest: 0.05},
	}
}
