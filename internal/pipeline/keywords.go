package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/research-brief/internal/model"
	"github.com/sells-group/research-brief/internal/resilience"
	"github.com/sells-group/research-brief/internal/signals"
	"github.com/sells-group/research-brief/internal/taxonomy"
	"github.com/sells-group/research-brief/pkg/keywords"
)

const (
	maxKeywords    = 10
	minLLMKeywords = 5
	maxSeeds       = 5
	phraseTokens   = 3
	minTokenRunes  = 3
	trendMonths    = 12

	llmBaseVolume       = 5000
	heuristicBaseVolume = 1000
	heuristicGrowth     = 0.05
)

const keywordsSystemPrompt = `You are an SEO strategist. Propose the search terms a potential customer would type when looking for a product like this business idea. Order them from most to least important. Label each with its search intent: informational, commercial, transactional or navigational. Do not estimate search volumes.`

const keywordsSchema = `Respond with a JSON object only:
{"keywords": [{"term": "<search phrase>", "intent": "<intent>"}]}
Include between 5 and 10 distinct terms.`

var validIntents = map[string]bool{
	"informational": true,
	"commercial":    true,
	"transactional": true,
	"navigational":  true,
}

type keywordIdeas struct {
	Keywords []keywordIdea `json:"keywords"`
}

type keywordIdea struct {
	Term   string `json:"term"`
	Intent string `json:"intent"`
}

// keywordAnalytics runs the keyword ladder: provider, then LLM term list with
// rank-derived numbers, then token-frequency heuristics. Tiers run strictly
// in order and the heuristic tier always produces data.
func (r *run) keywordAnalytics(ctx context.Context) model.ComponentResult[model.KeywordAnalyticsResult] {
	var res model.ComponentResult[model.KeywordAnalyticsResult]
	now := r.p.clock.Now()

	kw, err := r.keywordsFromProvider(ctx, now)
	if err == nil {
		res.Data = kw
		return res
	}
	r.log.Info("pipeline: keyword provider unavailable, using llm terms", zap.Error(err))
	res = res.Fail(researchErr(model.ComponentKeywords, err))

	ideas := r.keywordIdeas(ctx)
	res.Usage = res.Usage.Add(ideas.Usage)
	if ideas.OK() {
		out := synthesizeKeywords(ideas.Data.Keywords, now)
		res.Data = &out
		return res
	}
	r.log.Info("pipeline: llm keyword terms failed, using heuristics")
	res.Errors = append(res.Errors, ideas.Errors...)

	out := heuristicKeywords(r.req.Summary, r.p.taxonomy, now)
	res.Data = &out
	return res
}

func (r *run) keywordsFromProvider(ctx context.Context, now time.Time) (*model.KeywordAnalyticsResult, error) {
	if !r.p.cfg.Keywords.Enabled || r.p.keywords == nil {
		return nil, eris.Wrap(ErrNotConfigured, "keyword provider disabled")
	}

	seeds := seedTerms(r.req.Summary, r.p.taxonomy)
	if len(seeds) == 0 {
		return nil, eris.Wrap(ErrValidation, "no seed terms in summary")
	}
	if len(seeds) > maxSeeds {
		seeds = seeds[:maxSeeds]
	}

	ctx, cancel := context.WithTimeout(ctx, r.p.cfg.Research.ComponentTimeout())
	defer cancel()

	retry := r.p.retry
	retry.OnRetry = resilience.RetryLogger(breakerKeywords, "ideas")
	cb := r.p.breakers.Get(breakerKeywords)

	items, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]keywords.Keyword, error) {
		return resilience.ExecuteVal(ctx, cb, func(ctx context.Context) ([]keywords.Keyword, error) {
			items, err := r.p.keywords.Ideas(ctx, seeds)
			return items, rateLimited(err)
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "keyword provider")
	}
	r.acc.addCost(r.p.costCalc.Keywords(1))

	out, ok := providerKeywords(items, now)
	if !ok {
		return nil, eris.Wrap(ErrValidation, "keyword provider returned no usable keywords")
	}
	return &out, nil
}

// providerKeywords keeps the highest-volume keywords and derives growth and
// trend from their monthly history.
func providerKeywords(items []keywords.Keyword, now time.Time) (model.KeywordAnalyticsResult, bool) {
	seen := make(map[string]bool, len(items))
	kept := make([]keywords.Keyword, 0, len(items))
	for _, it := range items {
		k := strings.ToLower(strings.TrimSpace(it.Keyword))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		it.Keyword = k
		kept = append(kept, it)
	}
	if len(kept) == 0 {
		return model.KeywordAnalyticsResult{}, false
	}
	slices.SortStableFunc(kept, func(a, b keywords.Keyword) int {
		return cmp.Compare(b.SearchVolume, a.SearchVolume)
	})
	if len(kept) > maxKeywords {
		kept = kept[:maxKeywords]
	}

	insights := make([]model.KeywordInsight, 0, len(kept))
	for _, k := range kept {
		trend := monthlyTrend(k.Monthly)
		growth := 0.0
		if len(trend) == 0 {
			trend = ramp(int(k.SearchVolume), 0, now)
		} else {
			growth = trendGrowth(trend)
		}
		insights = append(insights, model.KeywordInsight{
			Keyword:      k.Keyword,
			SearchVolume: int(k.SearchVolume),
			CPC:          round(k.CPC, 2),
			Competition:  round(k.Competition, 2),
			Growth:       growth,
			Trend:        trend,
		})
	}
	return assembleKeywords(insights, model.KeywordSourceProvider), true
}

func monthlyTrend(monthly []keywords.MonthlyVolume) []model.TrendPoint {
	ms := slices.Clone(monthly)
	slices.SortFunc(ms, func(a, b keywords.MonthlyVolume) int {
		return cmp.Or(cmp.Compare(a.Year, b.Year), cmp.Compare(a.Month, b.Month))
	})
	if len(ms) > trendMonths {
		ms = ms[len(ms)-trendMonths:]
	}
	out := make([]model.TrendPoint, 0, len(ms))
	for _, m := range ms {
		out = append(out, model.TrendPoint{
			Date:   fmt.Sprintf("%04d-%02d", m.Year, m.Month),
			Volume: int(m.Volume),
		})
	}
	return out
}

func trendGrowth(trend []model.TrendPoint) float64 {
	if len(trend) < 2 || trend[0].Volume <= 0 {
		return 0
	}
	first, last := float64(trend[0].Volume), float64(trend[len(trend)-1].Volume)
	return round((last-first)/first, 3)
}

// keywordIdeas asks the LLM for a ranked term list.
func (r *run) keywordIdeas(ctx context.Context) model.ComponentResult[keywordIdeas] {
	ctx, cancel := context.WithTimeout(ctx, r.p.cfg.Research.ComponentTimeout())
	defer cancel()

	return requestStructured(ctx, r, structuredRequest{
		Component:   model.ComponentKeywords,
		Model:       r.p.cfg.Research.Models.Keywords,
		System:      keywordsSystemPrompt,
		User:        ideaContext(r.req),
		Schema:      keywordsSchema,
		Temperature: 0.3,
		MaxTokens:   1024,
	}, validateKeywordIdeas)
}

func validateKeywordIdeas(k *keywordIdeas) error {
	seen := make(map[string]bool, len(k.Keywords))
	out := make([]keywordIdea, 0, len(k.Keywords))
	for _, idea := range k.Keywords {
		term := strings.ToLower(strings.Join(strings.Fields(idea.Term), " "))
		if term == "" || seen[term] {
			continue
		}
		seen[term] = true
		intent := strings.ToLower(strings.TrimSpace(idea.Intent))
		if !validIntents[intent] {
			intent = "informational"
		}
		out = append(out, keywordIdea{Term: term, Intent: intent})
	}
	if len(out) < minLLMKeywords {
		return eris.Errorf("need at least %d distinct keywords, got %d", minLLMKeywords, len(out))
	}
	if len(out) > maxKeywords {
		out = out[:maxKeywords]
	}
	k.Keywords = out
	return nil
}

// synthesizeKeywords attaches figures derived only from each term's rank, so
// the numbers are visibly synthetic and identical across runs.
func synthesizeKeywords(ideas []keywordIdea, now time.Time) model.KeywordAnalyticsResult {
	insights := make([]model.KeywordInsight, 0, len(ideas))
	for i, idea := range ideas {
		volume := roundTo10(llmBaseVolume * math.Pow(0.75, float64(i)))
		growth := round(0.20-0.02*float64(i), 3)
		insights = append(insights, model.KeywordInsight{
			Keyword:      idea.Term,
			Intent:       idea.Intent,
			SearchVolume: volume,
			CPC:          round(2.5*math.Pow(0.9, float64(i)), 2),
			Competition:  round(0.65-0.04*float64(i), 2),
			Growth:       growth,
			Trend:        ramp(volume, growth, now),
		})
	}
	return assembleKeywords(insights, model.KeywordSourceLLMFallback)
}

// heuristicKeywords derives terms from the summary's own tokens on a fixed
// curve. It always yields at least one keyword.
func heuristicKeywords(summary string, tx *taxonomy.Taxonomy, now time.Time) model.KeywordAnalyticsResult {
	terms := seedTerms(summary, tx)
	if len(terms) == 0 {
		terms = []string{strings.ToLower(signals.Topic(summary))}
	}
	if len(terms) > maxKeywords {
		terms = terms[:maxKeywords]
	}

	insights := make([]model.KeywordInsight, 0, len(terms))
	for i, term := range terms {
		volume := roundTo10(float64(heuristicBaseVolume) / float64(i+1))
		insights = append(insights, model.KeywordInsight{
			Keyword:      term,
			SearchVolume: volume,
			CPC:          1.0,
			Competition:  0.5,
			Growth:       heuristicGrowth,
			Trend:        ramp(volume, heuristicGrowth, now),
		})
	}
	return assembleKeywords(insights, model.KeywordSourceHeuristic)
}

// seedTerms returns a phrase made of the first significant tokens followed by
// the most frequent single tokens.
func seedTerms(summary string, tx *taxonomy.Taxonomy) []string {
	tokens := significantTokens(summary, tx)
	if len(tokens) == 0 {
		return nil
	}

	var terms []string
	if len(tokens) >= 2 {
		terms = append(terms, strings.Join(tokens[:min(phraseTokens, len(tokens))], " "))
	}

	counts := make(map[string]int, len(tokens))
	var order []string
	for _, t := range tokens {
		if counts[t] == 0 {
			order = append(order, t)
		}
		counts[t]++
	}
	slices.SortStableFunc(order, func(a, b string) int {
		return cmp.Compare(counts[b], counts[a])
	})

	for _, t := range order {
		if len(terms) >= maxKeywords {
			break
		}
		if !slices.Contains(terms, t) {
			terms = append(terms, t)
		}
	}
	return terms
}

func significantTokens(s string, tx *taxonomy.Taxonomy) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < minTokenRunes || tx.IsStopWord(f) || isNumber(f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// ramp builds a linear monthly series ending at volume in now's month whose
// first point is volume/(1+growth).
func ramp(volume int, growth float64, now time.Time) []model.TrendPoint {
	first := float64(volume) / (1 + growth)
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(trendMonths - 1), 0)

	out := make([]model.TrendPoint, 0, trendMonths)
	for i := range trendMonths {
		v := first + (float64(volume)-first)*float64(i)/float64(trendMonths-1)
		out = append(out, model.TrendPoint{
			Date:   start.AddDate(0, i, 0).Format("2006-01"),
			Volume: int(math.Round(v)),
		})
	}
	return out
}

// assembleKeywords fills the aggregate fields from the ranked insights.
func assembleKeywords(insights []model.KeywordInsight, source model.KeywordSource) model.KeywordAnalyticsResult {
	out := model.KeywordAnalyticsResult{
		Keywords: insights,
		History:  []model.TrendPoint{},
		Source:   source,
	}
	if len(insights) == 0 {
		return out
	}
	out.PrimaryKeyword = insights[0].Keyword

	byMonth := make(map[string]int)
	var growth float64
	for _, k := range insights {
		out.TotalSearchVolume += k.SearchVolume
		growth += k.Growth
		for _, p := range k.Trend {
			byMonth[p.Date] += p.Volume
		}
	}
	out.AverageGrowth = round(growth/float64(len(insights)), 3)

	for date, vol := range byMonth {
		out.History = append(out.History, model.TrendPoint{Date: date, Volume: vol})
	}
	slices.SortFunc(out.History, func(a, b model.TrendPoint) int {
		return strings.Compare(a.Date, b.Date)
	})
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func roundTo10(v float64) int {
	return int(math.Round(v/10) * 10)
}
