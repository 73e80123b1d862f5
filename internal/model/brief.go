package model

import "time"

// KeywordSource says which tier of the keyword ladder produced the numbers.
type KeywordSource string

const (
	KeywordSourceProvider    KeywordSource = "provider"
	KeywordSourceLLMFallback KeywordSource = "llm_fallback"
	KeywordSourceHeuristic   KeywordSource = "heuristic"
)

// TrendPoint is one month of aggregated search volume.
type TrendPoint struct {
	Date   string `json:"date"` // YYYY-MM
	Volume int    `json:"volume"`
}

// KeywordInsight is a single keyword with its demand figures.
type KeywordInsight struct {
	Keyword      string       `json:"keyword"`
	Intent       string       `json:"intent,omitempty"`
	SearchVolume int          `json:"searchVolume"`
	CPC          float64      `json:"cpc"`
	Competition  float64      `json:"competition"`
	Growth       float64      `json:"growth"`
	Trend        []TrendPoint `json:"trend,omitempty"`
}

// KeywordAnalyticsResult is the output of the keyword ladder.
type KeywordAnalyticsResult struct {
	PrimaryKeyword    string           `json:"primaryKeyword"`
	TotalSearchVolume int              `json:"totalSearchVolume"`
	AverageGrowth     float64          `json:"averageGrowth"`
	History           []TrendPoint     `json:"history"`
	Keywords          []KeywordInsight `json:"keywords"`
	Source            KeywordSource    `json:"source"`
}

// Competitor is one entry in the competitive landscape.
type Competitor struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Website     string   `json:"website,omitempty"`
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
}

// CompetitionAnalysis is the competitive landscape for the idea.
type CompetitionAnalysis struct {
	Competitors     []Competitor `json:"competitors"`
	MarketGaps      []string     `json:"marketGaps"`
	Differentiators []string     `json:"differentiators"`
	Positioning     string       `json:"positioning"`
}

// ProofSignal is one piece of evidence of market demand. A signal with no
// sources is malformed.
type ProofSignal struct {
	Description string   `json:"description"`
	Evidence    string   `json:"evidence"`
	Sources     []string `json:"sources"`
	Disclaimer  string   `json:"disclaimer,omitempty"`
}

// ProofSignalsBundle is the output of proof-signal research.
type ProofSignalsBundle struct {
	Signals    []ProofSignal `json:"signals"`
	Summary    string        `json:"summary,omitempty"`
	Stage      string        `json:"stage,omitempty"`
	Disclaimer string        `json:"disclaimer,omitempty"`
	Usage      TokenUsage    `json:"usage"`
}

// ResearchBriefResult is the assembled brief. Every field is populated,
// with static fallbacks when a component failed.
type ResearchBriefResult struct {
	IndustryTag           string                 `json:"industryTag"`
	BusinessType          string                 `json:"businessType"`
	Description           string                 `json:"description"`
	Problem               string                 `json:"problem"`
	WhyNow                []string               `json:"whyNow"`
	Competition           CompetitionAnalysis    `json:"competition"`
	Keywords              KeywordAnalyticsResult `json:"keywords"`
	ProofSignals          []ProofSignal          `json:"proofSignals"`
	ProofSignalSummary    string                 `json:"proofSignalSummary,omitempty"`
	ProofSignalStage      string                 `json:"proofSignalStage,omitempty"`
	ProofSignalDisclaimer string                 `json:"proofSignalDisclaimer,omitempty"`
	GenerationTimeMs      int64                  `json:"generationTimeMs"`
}

// ResearchResponse is what a pipeline run hands back to its caller.
type ResearchResponse struct {
	RunID            string              `json:"runId"`
	Result           ResearchBriefResult `json:"result"`
	StartedAt        time.Time           `json:"startedAt"`
	CompletedAt      time.Time           `json:"completedAt"`
	TokenUsage       UsageReport         `json:"tokenUsage"`
	EstimatedCostUSD float64             `json:"estimatedCostUsd"`
	Errors           []ResearchError     `json:"errors"`
	BackgroundJobID  string              `json:"backgroundJobId,omitempty"`
	IsBackgroundJob  bool                `json:"isBackgroundJob,omitempty"`
}
