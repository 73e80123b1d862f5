// Package jobs manages background proof-signal research jobs. A job is a
// single-request Anthropic message batch with web search enabled; the batch
// id is the job id handed back to callers.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/research-brief/internal/model"
	"github.com/sells-group/research-brief/internal/resilience"
	"github.com/sells-group/research-brief/internal/signals"
	"github.com/sells-group/research-brief/pkg/anthropic"
)

// CustomID identifies the research request inside its batch.
const CustomID = "proof-signals"

// ErrNotConfigured is returned when no LLM client is available.
var ErrNotConfigured = eris.New("jobs: anthropic client not configured")

// Prompt is the research instruction submitted as a job.
type Prompt struct {
	System      string
	User        string
	Temperature *float64
}

// Config configures a Manager.
type Config struct {
	Model            string
	MaxTokens        int64
	WebSearchMaxUses int64
	Clock            clock.Clock

	// Retry wraps every provider call. Default: two rate-limit retries.
	Retry resilience.RetryConfig
	// Retention drops bookkeeping for jobs not touched for this long.
	// Default: 6h.
	Retention time.Duration
	// MaxJobs caps tracked jobs; the least recently touched go first.
	// Default: 1000.
	MaxJobs int
}

// Manager creates research jobs and maps provider state onto the job
// lifecycle. Bookkeeping lives in memory only and is bounded by Retention and
// MaxJobs; a job id it doesn't hold is looked up from the provider and only
// tracked once the provider knows it.
type Manager struct {
	client anthropic.Client
	cfg    Config

	mu   sync.Mutex
	jobs map[string]*entry
}

type entry struct {
	job    model.BackgroundResearchJob
	result *model.ProofSignalsBundle
	errMsg string
	usage  model.TokenUsage
}

// NewManager creates a Manager. A nil client makes every operation fail
// with ErrNotConfigured.
func NewManager(client anthropic.Client, cfg Config) *Manager {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.WebSearchMaxUses <= 0 {
		cfg.WebSearchMaxUses = 8
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = resilience.FromRateLimitConfig(2, 0)
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 6 * time.Hour
	}
	if cfg.MaxJobs <= 0 {
		cfg.MaxJobs = 1000
	}
	return &Manager{
		client: client,
		cfg:    cfg,
		jobs:   make(map[string]*entry),
	}
}

// Model returns the model research jobs run on.
func (m *Manager) Model() string {
	return m.cfg.Model
}

// Create submits a research job and returns its handle without waiting.
func (m *Manager) Create(ctx context.Context, p Prompt) (*model.BackgroundResearchJob, error) {
	if m == nil || m.client == nil {
		return nil, ErrNotConfigured
	}

	req := anthropic.MessageRequest{
		Model:            m.cfg.Model,
		MaxTokens:        m.cfg.MaxTokens,
		Messages:         []anthropic.Message{{Role: "user", Content: p.User}},
		Temperature:      p.Temperature,
		WebSearchMaxUses: m.cfg.WebSearchMaxUses,
	}
	if p.System != "" {
		req.System = []anthropic.SystemBlock{{Text: p.System}}
	}

	batch, err := call(ctx, m, "create_batch", func(ctx context.Context) (*anthropic.BatchResponse, error) {
		return m.client.CreateBatch(ctx, anthropic.BatchRequest{
			Requests: []anthropic.BatchRequestItem{{CustomID: CustomID, Params: req}},
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "jobs: create research job")
	}

	job := model.BackgroundResearchJob{
		JobID:     batch.ID,
		Status:    model.JobQueued,
		CreatedAt: m.cfg.Clock.Now(),
	}

	m.mu.Lock()
	m.trackLocked(&entry{job: job})
	m.mu.Unlock()

	zap.L().Info("jobs: research job created",
		zap.String("job_id", job.JobID),
		zap.String("model", m.cfg.Model),
	)
	return &job, nil
}

// Status reads the job's provider state and maps it onto the job lifecycle.
// It is idempotent: the only bookkeeping it advances is LastPolledAt, plus
// caching a terminal outcome so later checks don't refetch results. A job id
// is tracked only after the provider has answered for it.
func (m *Manager) Status(ctx context.Context, jobID string) (*model.JobStatus, error) {
	if m == nil || m.client == nil {
		return nil, ErrNotConfigured
	}
	if jobID == "" {
		return nil, eris.New("jobs: empty job id")
	}

	m.mu.Lock()
	if e, ok := m.jobs[jobID]; ok && e.job.Status.Terminal() {
		e.job.LastPolledAt = m.cfg.Clock.Now()
		st := e.status()
		m.mu.Unlock()
		return st, nil
	}
	m.mu.Unlock()

	batch, err := call(ctx, m, "get_batch", func(ctx context.Context) (*anthropic.BatchResponse, error) {
		return m.client.GetBatch(ctx, jobID)
	})
	if err != nil {
		return nil, eris.Wrap(err, "jobs: status check")
	}

	next := model.JobInProgress
	var (
		result *model.ProofSignalsBundle
		errMsg string
		usage  model.TokenUsage
	)
	switch batch.ProcessingStatus {
	case anthropic.BatchInProgress, anthropic.BatchCanceling:
	case anthropic.BatchEnded:
		result, usage, errMsg, err = m.collect(ctx, jobID)
		if err != nil {
			return nil, err
		}
		next = model.JobCompleted
		if result == nil {
			next = model.JobFailed
		}
	default:
		zap.L().Warn("jobs: unknown provider status",
			zap.String("job_id", jobID),
			zap.String("status", batch.ProcessingStatus),
		)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[jobID]
	if !ok {
		e = &entry{job: model.BackgroundResearchJob{
			JobID:     jobID,
			Status:    model.JobQueued,
			CreatedAt: m.cfg.Clock.Now(),
		}}
		m.trackLocked(e)
	}
	prev := e.job.Status
	e.job.Status = prev.Advance(next)
	e.job.LastPolledAt = m.cfg.Clock.Now()
	if e.job.Status.Terminal() && !prev.Terminal() {
		e.result, e.errMsg, e.usage = result, errMsg, usage
		zap.L().Info("jobs: research job finished",
			zap.String("job_id", jobID),
			zap.String("status", string(e.job.Status)),
			zap.Int("total_tokens", usage.TotalTokens),
		)
	}
	return e.status(), nil
}

// collect fetches and parses the single result of an ended batch. A nil
// bundle with an error message means the job failed.
func (m *Manager) collect(ctx context.Context, jobID string) (*model.ProofSignalsBundle, model.TokenUsage, string, error) {
	type single struct {
		msg     *anthropic.MessageResponse
		failure *anthropic.BatchFailure
	}
	res, err := call(ctx, m, "get_batch_results", func(ctx context.Context) (single, error) {
		msg, failure, err := anthropic.SingleResult(ctx, m.client, jobID, CustomID)
		return single{msg, failure}, err
	})
	if err != nil {
		return nil, model.TokenUsage{}, "", eris.Wrap(err, "jobs: fetch results")
	}
	msg, failure := res.msg, res.failure
	if failure != nil {
		return nil, model.TokenUsage{}, "research request " + failure.Type, nil
	}

	usage := model.NewTokenUsage(int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens))
	bundle, method, err := signals.Parse(msg.Text())
	if err != nil {
		return nil, usage, "research output contained no usable proof signals", nil
	}
	bundle.Usage = usage

	zap.L().Debug("jobs: parsed research output",
		zap.String("job_id", jobID),
		zap.String("method", string(method)),
		zap.Int("signals", len(bundle.Signals)),
	)
	return &bundle, usage, "", nil
}

// Await polls Status until the job is terminal. Exceeding cfg.MaxPolls yields
// resilience.ErrPollLimit, a synthetic timeout rather than a provider error.
func (m *Manager) Await(ctx context.Context, jobID string, cfg resilience.PollConfig) (*model.JobStatus, error) {
	if cfg.Clock == nil {
		cfg.Clock = m.cfg.Clock
	}
	return resilience.Poll(ctx, cfg, func(ctx context.Context) (*model.JobStatus, bool, error) {
		st, err := m.Status(ctx, jobID)
		if err != nil {
			// Rate limits already spent their retries inside Status.
			if ctx.Err() == nil && resilience.IsTransient(err) && !resilience.IsRateLimited(err) {
				zap.L().Warn("jobs: transient status failure, polling again",
					zap.String("job_id", jobID),
					zap.Error(err),
				)
				return nil, false, nil
			}
			return nil, false, err
		}
		return st, st.IsComplete, nil
	})
}

// Cancel asks the provider to stop a job. Local state is left for Status to
// observe.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	if m == nil || m.client == nil {
		return ErrNotConfigured
	}
	_, err := call(ctx, m, "cancel_batch", func(ctx context.Context) (*anthropic.BatchResponse, error) {
		return m.client.CancelBatch(ctx, jobID)
	})
	if err != nil {
		return eris.Wrap(err, "jobs: cancel")
	}
	zap.L().Info("jobs: research job cancel requested", zap.String("job_id", jobID))
	return nil
}

// Job returns a snapshot of a known job's bookkeeping.
func (m *Manager) Job(jobID string) (model.BackgroundResearchJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[jobID]
	if !ok {
		return model.BackgroundResearchJob{}, false
	}
	return e.job, true
}

// Usage returns the tokens a terminal job consumed.
func (m *Manager) Usage(jobID string) model.TokenUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.jobs[jobID]; ok {
		return e.usage
	}
	return model.TokenUsage{}
}

// trackLocked stores e, then drops entries idle past Retention and, over
// MaxJobs, the least recently touched ones.
func (m *Manager) trackLocked(e *entry) {
	m.jobs[e.job.JobID] = e

	now := m.cfg.Clock.Now()
	for id, old := range m.jobs {
		if now.Sub(old.touched()) > m.cfg.Retention {
			delete(m.jobs, id)
		}
	}
	for len(m.jobs) > m.cfg.MaxJobs {
		var (
			oldestID string
			oldestAt time.Time
		)
		for id, old := range m.jobs {
			if id == e.job.JobID {
				continue
			}
			if oldestID == "" || old.touched().Before(oldestAt) {
				oldestID, oldestAt = id, old.touched()
			}
		}
		if oldestID == "" {
			break
		}
		delete(m.jobs, oldestID)
	}
}

// call runs one provider call under the retry policy, mapping throttling and
// transient statuses so the retry and poll loops recognize them.
func call[T any](ctx context.Context, m *Manager, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	retry := m.cfg.Retry
	retry.OnRetry = resilience.RetryLogger("anthropic_batches", op)
	return resilience.DoVal(ctx, retry, func(ctx context.Context) (T, error) {
		v, err := fn(ctx)
		return v, providerErr(err)
	})
}

func providerErr(err error) error {
	if err == nil {
		return nil
	}
	if anthropic.IsRateLimit(err) {
		d, _ := anthropic.RetryAfter(err)
		return resilience.NewRateLimitError(err, d)
	}
	if code := anthropic.StatusCode(err); resilience.IsTransientHTTPStatus(code) {
		return resilience.NewTransientError(err, code)
	}
	return err
}

func (e *entry) touched() time.Time {
	if e.job.LastPolledAt.After(e.job.CreatedAt) {
		return e.job.LastPolledAt
	}
	return e.job.CreatedAt
}

func (e *entry) status() *model.JobStatus {
	st := &model.JobStatus{
		Status:     e.job.Status,
		IsComplete: e.job.Status.Terminal(),
		Error:      e.errMsg,
	}
	if e.result != nil {
		r := *e.result
		st.Result = &r
	}
	return st
}
