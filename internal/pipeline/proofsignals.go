package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/research-brief/internal/jobs"
	"github.com/sells-group/research-brief/internal/model"
	"github.com/sells-group/research-brief/internal/resilience"
	"github.com/sells-group/research-brief/internal/signals"
	"github.com/sells-group/research-brief/pkg/perplexity"
)

// cancelGrace bounds the best-effort cancel sent after a research job times out.
const cancelGrace = 5 * time.Second

const proofSignalsSystemPrompt = `You are a market researcher validating demand for a business idea. Use web search to find real, recent public evidence that customers want this: growing search interest, forum threads describing the pain, funded competitors, industry reports, regulation or news. Every signal must cite at least one source URL you actually retrieved. Never invent URLs or figures.

Respond with JSON only, no prose:
{"signals": [{"description": "<what the signal shows>", "evidence": "<quote or figure from the source>", "sources": ["https://..."]}],
 "summary": "<two or three sentences on overall demand>",
 "stage": "<early|emerging|growing|mature|declining>"}`

const perplexityUserPrompt = `Find evidence of market demand for the business idea below. List each signal with the evidence and its source URL, then summarize overall demand and the market stage (early, emerging, growing, mature or declining). Answer as JSON in the form {"signals": [{"description": "", "evidence": "", "sources": [""]}], "summary": "", "stage": ""}.

`

// proofOutcome is the proof-signal component's result plus the background
// job handle when one was started.
type proofOutcome struct {
	result model.ComponentResult[model.ProofSignalsBundle]
	jobID  string
}

func (o proofOutcome) background() bool { return o.jobID != "" }

// researchPrompt is the instruction submitted as a web-search research job.
func researchPrompt(req model.ResearchRequest) jobs.Prompt {
	return jobs.Prompt{
		System:      proofSignalsSystemPrompt,
		User:        ideaContext(req),
		Temperature: ptr(0.2),
	}
}

// proofSignals gathers market evidence. In background mode it only starts
// the research job. Otherwise it walks the ladder: web-search job, then
// Perplexity, then disclaimed templates, which never fail.
func (r *run) proofSignals(ctx context.Context) proofOutcome {
	var res model.ComponentResult[model.ProofSignalsBundle]
	prompt := researchPrompt(r.req)

	if r.p.cfg.Research.BackgroundProofSignals {
		job, err := r.p.jobs.Create(ctx, prompt)
		if err == nil {
			r.log.Info("pipeline: proof signals running in background", zap.String("job_id", job.JobID))
			res.Data = &model.ProofSignalsBundle{Signals: []model.ProofSignal{}}
			return proofOutcome{result: res, jobID: job.JobID}
		}
		r.log.Warn("pipeline: could not start background research", zap.Error(err))
		res = res.Fail(researchErr(model.ComponentProofSignals, err))
	} else {
		b, usage, err := r.webSearchResearch(ctx, prompt)
		res.Usage = res.Usage.Add(usage)
		if err == nil {
			return r.finishProof(res, b)
		}
		r.log.Warn("pipeline: web search research failed", zap.Error(err))
		res = res.Fail(researchErr(model.ComponentProofSignals, err))
	}

	b, usage, err := r.perplexityResearch(ctx)
	res.Usage = res.Usage.Add(usage)
	if err == nil {
		return r.finishProof(res, b)
	}
	r.log.Warn("pipeline: perplexity research failed, using templates", zap.Error(err))
	res = res.Fail(researchErr(model.ComponentProofSignals, err))

	tpl := signals.Templates(r.req.Summary, r.p.taxonomy)
	return r.finishProof(res, &tpl)
}

func (r *run) finishProof(res model.ComponentResult[model.ProofSignalsBundle], b *model.ProofSignalsBundle) proofOutcome {
	b.Usage = res.Usage
	res.Data = b
	return proofOutcome{result: res}
}

// webSearchResearch runs the research job and waits for it within ctx. On
// timeout the job is cancelled before returning.
func (r *run) webSearchResearch(ctx context.Context, prompt jobs.Prompt) (*model.ProofSignalsBundle, model.TokenUsage, error) {
	job, err := r.p.jobs.Create(ctx, prompt)
	if err != nil {
		return nil, model.TokenUsage{}, err
	}

	st, err := r.p.jobs.Await(ctx, job.JobID, resilience.PollConfig{
		Interval: r.p.cfg.Research.PollInterval(),
		MaxPolls: r.p.cfg.Research.MaxPolls,
		Clock:    r.p.clock,
	})
	if err != nil {
		r.cancelJob(ctx, job.JobID)
		return nil, model.TokenUsage{}, eris.Wrapf(err, "research job %s", job.JobID)
	}

	usage := r.p.jobs.Usage(job.JobID)
	r.acc.addCost(r.p.costCalc.Claude(r.p.jobs.Model(), true, usage.PromptTokens, usage.CompletionTokens))

	if st.Status == model.JobFailed || st.Result == nil {
		return nil, usage, eris.Errorf("research job %s failed: %s", job.JobID, st.Error)
	}
	b := *st.Result
	return &b, usage, nil
}

// cancelJob asks the provider to stop a job. It runs on a context detached
// from ctx so that an expired run deadline doesn't suppress the cancel.
func (r *run) cancelJob(ctx context.Context, jobID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelGrace)
	defer cancel()
	if err := r.p.jobs.Cancel(ctx, jobID); err != nil {
		r.log.Warn("pipeline: failed to cancel research job", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (r *run) perplexityResearch(ctx context.Context) (*model.ProofSignalsBundle, model.TokenUsage, error) {
	if r.p.perplexity == nil {
		return nil, model.TokenUsage{}, eris.Wrap(ErrNotConfigured, "perplexity")
	}
	if err := ctx.Err(); err != nil {
		return nil, model.TokenUsage{}, eris.Wrap(err, "perplexity research skipped")
	}

	ctx, cancel := context.WithTimeout(ctx, r.p.cfg.Research.ComponentTimeout())
	defer cancel()

	retry := r.p.retry
	retry.OnRetry = resilience.RetryLogger(breakerPerplexity, "chat_completion")
	cb := r.p.breakers.Get(breakerPerplexity)

	req := perplexity.ChatCompletionRequest{
		Model: r.p.cfg.Perplexity.Model,
		Messages: []perplexity.Message{
			{Role: "user", Content: perplexityUserPrompt + ideaContext(r.req)},
		},
		Temperature:         ptr(0.2),
		SearchRecencyFilter: "year",
	}
	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*perplexity.ChatCompletionResponse, error) {
		return resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (*perplexity.ChatCompletionResponse, error) {
			resp, err := r.p.perplexity.ChatCompletion(ctx, req)
			return resp, rateLimited(err)
		})
	})
	if err != nil {
		return nil, model.TokenUsage{}, eris.Wrap(err, "perplexity research")
	}

	usage := model.NewTokenUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	r.acc.addCost(r.p.costCalc.Perplexity(resp.Usage.PromptTokens, resp.Usage.CompletionTokens))

	b, method, err := signals.ParseWithCitations(resp.Content(), resp.Citations)
	if err != nil {
		return nil, usage, eris.Wrapf(ErrValidation, "perplexity research: %v", err)
	}
	r.log.Debug("pipeline: perplexity signals parsed",
		zap.String("method", string(method)),
		zap.Int("signals", len(b.Signals)),
	)
	return &b, usage, nil
}
