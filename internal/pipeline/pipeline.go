// Package pipeline assembles research briefs. A run fans out to six component
// executors in three steps and always returns a fully populated brief, with
// static fallbacks and an error list standing in for whatever degraded.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/research-brief/internal/config"
	"github.com/sells-group/research-brief/internal/cost"
	"github.com/sells-group/research-brief/internal/jobs"
	"github.com/sells-group/research-brief/internal/model"
	"github.com/sells-group/research-brief/internal/resilience"
	"github.com/sells-group/research-brief/internal/signals"
	"github.com/sells-group/research-brief/internal/taxonomy"
	"github.com/sells-group/research-brief/pkg/anthropic"
	"github.com/sells-group/research-brief/pkg/keywords"
	"github.com/sells-group/research-brief/pkg/perplexity"
)

// ErrEmptySummary is returned before any provider call when the request has
// no summary.
var ErrEmptySummary = eris.New("pipeline: summary is required")

// Pipeline orchestrates the research brief components.
type Pipeline struct {
	cfg        *config.Config
	anthropic  anthropic.Client
	perplexity perplexity.Client
	keywords   keywords.Client
	jobs       *jobs.Manager
	taxonomy   *taxonomy.Taxonomy
	costCalc   *cost.Calculator
	breakers   *resilience.ServiceBreakers
	retry      resilience.RetryConfig
	clock      clock.Clock
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock sets the time source used for timing and polling.
func WithClock(c clock.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithTaxonomy replaces the embedded taxonomy.
func WithTaxonomy(tx *taxonomy.Taxonomy) Option {
	return func(p *Pipeline) { p.taxonomy = tx }
}

// New creates a Pipeline. Any client may be nil; its tier then records a
// configuration error and falls through. A nil job manager is built from
// aiClient and the research config.
func New(
	cfg *config.Config,
	aiClient anthropic.Client,
	pplxClient perplexity.Client,
	kwClient keywords.Client,
	jobMgr *jobs.Manager,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		cfg:        cfg,
		anthropic:  aiClient,
		perplexity: pplxClient,
		keywords:   kwClient,
		jobs:       jobMgr,
		costCalc:   cost.NewCalculator(cfg.Pricing),
		retry:      resilience.FromRateLimitConfig(cfg.Resilience.RateLimitRetries, cfg.Resilience.RateLimitBackoffMs),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.clock == nil {
		p.clock = clock.New()
	}
	p.retry.Clock = p.clock
	if p.taxonomy == nil {
		p.taxonomy = taxonomy.Default()
	}
	p.breakers = resilience.NewServiceBreakers(resilience.FromCircuitConfig(
		cfg.Resilience.BreakerFailures, cfg.Resilience.BreakerResetSecs,
	))
	if p.jobs == nil {
		p.jobs = jobs.NewManager(aiClient, jobs.Config{
			Model:            cfg.Research.Models.ProofSignals,
			WebSearchMaxUses: int64(cfg.Research.WebSearchMaxUses),
			Clock:            p.clock,
			Retry:            p.retry,
		})
	}
	return p
}

// Jobs returns the background research job manager.
func (p *Pipeline) Jobs() *jobs.Manager {
	return p.jobs
}

// JobStatus checks a background research job.
func (p *Pipeline) JobStatus(ctx context.Context, jobID string) (*model.JobStatus, error) {
	return p.jobs.Status(ctx, jobID)
}

// run carries the per-invocation state shared by the executors.
type run struct {
	p   *Pipeline
	req model.ResearchRequest
	acc *accumulator
	log *zap.Logger
}

// Run produces a research brief for req. The only error it returns is
// ErrEmptySummary; component failures are reported in the response's Errors.
func (p *Pipeline) Run(ctx context.Context, req model.ResearchRequest) (*model.ResearchResponse, error) {
	if strings.TrimSpace(req.Summary) == "" {
		return nil, ErrEmptySummary
	}

	startedAt := p.clock.Now()
	runID := uuid.NewString()
	log := zap.L().With(
		zap.String("run_id", runID),
		zap.String("user_id", req.UserID),
		zap.String("idea_id", req.IdeaID),
	)
	log.Info("pipeline: starting research",
		zap.Bool("background_proof_signals", p.cfg.Research.BackgroundProofSignals),
		zap.Duration("timeout", p.cfg.Research.Timeout()),
	)

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Research.Timeout())
	defer cancel()

	r := &run{p: p, req: req, acc: newAccumulator(), log: log}

	// Step 1: classification and keyword analytics.
	var (
		cls  model.ComponentResult[classification]
		kw   model.ComponentResult[model.KeywordAnalyticsResult]
		desc model.ComponentResult[description]
		prob model.ComponentResult[problemAnalysis]
		comp model.ComponentResult[model.CompetitionAnalysis]
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := p.clock.Now()
		cls = r.classify(gCtx)
		r.track(model.ComponentClassification, start, cls.Usage, cls.Errors)
		return nil
	})
	g.Go(func() error {
		start := p.clock.Now()
		kw = r.keywordAnalytics(gCtx)
		r.track(model.ComponentKeywords, start, kw.Usage, kw.Errors)
		return nil
	})
	_ = g.Wait()

	// Step 2: description, problem and competition.
	g, gCtx = errgroup.WithContext(ctx)
	g.Go(func() error {
		start := p.clock.Now()
		desc = r.describe(gCtx)
		r.track(model.ComponentDescription, start, desc.Usage, desc.Errors)
		return nil
	})
	g.Go(func() error {
		start := p.clock.Now()
		prob = r.analyzeProblem(gCtx)
		r.track(model.ComponentProblemAnalysis, start, prob.Usage, prob.Errors)
		return nil
	})
	g.Go(func() error {
		start := p.clock.Now()
		comp = r.analyzeCompetition(gCtx)
		r.track(model.ComponentCompetition, start, comp.Usage, comp.Errors)
		return nil
	})
	_ = g.Wait()

	// Step 3: proof signals.
	start := p.clock.Now()
	proof := r.proofSignals(ctx)
	r.track(model.ComponentProofSignals, start, proof.result.Usage, proof.result.Errors)

	brief := fallbackBrief(req.Summary, p.taxonomy, startedAt)
	if cls.OK() {
		brief.IndustryTag = cls.Data.IndustryTag
		brief.BusinessType = cls.Data.BusinessType
	}
	if desc.OK() {
		brief.Description = desc.Data.Description
	}
	if prob.OK() {
		brief.Problem = prob.Data.Problem
		brief.WhyNow = prob.Data.WhyNow
	}
	if comp.OK() {
		brief.Competition = *comp.Data
	}
	if kw.OK() {
		brief.Keywords = *kw.Data
	}
	if proof.result.OK() {
		ApplyProofSignals(&brief, *proof.result.Data)
	}

	completedAt := p.clock.Now()
	brief.GenerationTimeMs = completedAt.Sub(startedAt).Milliseconds()

	resp := &model.ResearchResponse{
		RunID:            runID,
		Result:           brief,
		StartedAt:        startedAt,
		CompletedAt:      completedAt,
		TokenUsage:       r.acc.report(),
		EstimatedCostUSD: r.acc.cost(),
		Errors:           r.acc.errors(),
	}
	if proof.background() {
		resp.BackgroundJobID = proof.jobID
		resp.IsBackgroundJob = true
	}

	log.Info("pipeline: research complete",
		zap.Int64("generation_ms", brief.GenerationTimeMs),
		zap.Int("total_tokens", resp.TokenUsage.Total.TotalTokens),
		zap.Float64("cost_usd", resp.EstimatedCostUSD),
		zap.Int("errors", len(resp.Errors)),
		zap.String("keyword_source", string(brief.Keywords.Source)),
	)
	return resp, nil
}

// track records a finished component and logs its outcome.
func (r *run) track(c model.Component, start time.Time, usage model.TokenUsage, errs []model.ResearchError) {
	r.acc.record(c, usage, errs)

	fields := []zap.Field{
		zap.String("component", string(c)),
		zap.Int64("duration_ms", r.p.clock.Now().Sub(start).Milliseconds()),
		zap.Int("total_tokens", usage.TotalTokens),
	}
	if len(errs) > 0 {
		r.log.Warn("pipeline: component degraded", append(fields, zap.Int("errors", len(errs)))...)
		return
	}
	r.log.Debug("pipeline: component complete", fields...)
}

// ApplyProofSignals patches a brief with a proof-signal bundle. Callers use
// it to finish a brief whose signals were researched in the background.
func ApplyProofSignals(brief *model.ResearchBriefResult, b model.ProofSignalsBundle) {
	brief.ProofSignals = b.Signals
	if brief.ProofSignals == nil {
		brief.ProofSignals = []model.ProofSignal{}
	}
	brief.ProofSignalSummary = b.Summary
	brief.ProofSignalStage = b.Stage
	brief.ProofSignalDisclaimer = b.Disclaimer
}

// ResolveJob turns a terminal job status into the bundle to apply. A failed
// job yields the disclaimed template signals for summary. It returns false
// while the job is still running.
func (p *Pipeline) ResolveJob(summary string, st *model.JobStatus) (model.ProofSignalsBundle, bool) {
	if st == nil || !st.IsComplete {
		return model.ProofSignalsBundle{}, false
	}
	if st.Status == model.JobCompleted && st.Result != nil {
		return *st.Result, true
	}
	return signals.Templates(summary, p.taxonomy), true
}
