package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/research-brief/internal/jobs"
	"github.com/sells-group/research-brief/internal/model"
	"github.com/sells-group/research-brief/internal/resilience"
	"github.com/sells-group/research-brief/internal/signals"
	"github.com/sells-group/research-brief/pkg/anthropic"
	"github.com/sells-group/research-brief/pkg/keywords"
	"github.com/sells-group/research-brief/pkg/perplexity"
)

const (
	breakerAnthropic  = "anthropic"
	breakerPerplexity = "perplexity"
	breakerKeywords   = "keywords"

	defaultMaxTokens int64 = 2048
	repairMaxTokens  int64 = 2048
)

var (
	// ErrNotConfigured marks a provider that has no client or is switched off.
	ErrNotConfigured = eris.New("provider not configured")

	// ErrValidation marks model output that failed schema validation.
	ErrValidation = eris.New("output failed validation")
)

// structuredRequest describes one schema-constrained LLM call.
type structuredRequest struct {
	Component   model.Component
	Model       string
	System      string
	User        string
	Schema      string
	Temperature float64
	MaxTokens   int64
}

// requestStructured performs a structured generation: call, decode, validate.
// A decode or validation failure triggers one repair call on the repair model;
// if that output still fails, a validation error is returned. Usage from every
// call is accumulated on the result.
func requestStructured[T any](ctx context.Context, r *run, req structuredRequest, validate func(*T) error) model.ComponentResult[T] {
	var res model.ComponentResult[T]
	log := r.log.With(zap.String("component", string(req.Component)))

	if r.p.anthropic == nil {
		return res.Fail(model.NewResearchError(req.Component, model.ErrorKindConfiguration, "anthropic client not configured"))
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	text, usage, err := r.complete(ctx, anthropic.MessageRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		System:      []anthropic.SystemBlock{{Text: req.System + "\n\n" + req.Schema}},
		Messages:    []anthropic.Message{{Role: "user", Content: req.User}},
		Temperature: ptr(req.Temperature),
	})
	res.Usage = res.Usage.Add(usage)
	if err != nil {
		log.Warn("pipeline: structured call failed", zap.Error(err))
		return res.Fail(researchErr(req.Component, err))
	}

	val, verr := decode(text, validate)
	if verr == nil {
		res.Data = val
		return res
	}

	log.Info("pipeline: output invalid, attempting repair", zap.Error(verr))
	repaired, rusage, rerr := r.complete(ctx, anthropic.MessageRequest{
		Model:       r.p.cfg.Research.Models.Repair,
		MaxTokens:   max(maxTokens, repairMaxTokens),
		System:      []anthropic.SystemBlock{{Text: repairSystemPrompt + "\n\n" + req.Schema}},
		Messages:    []anthropic.Message{{Role: "user", Content: fmt.Sprintf(repairUserPrompt, verr.Error(), text)}},
		Temperature: ptr(0.0),
	})
	res.Usage = res.Usage.Add(rusage)
	if rerr != nil {
		if kind := errorKind(rerr); kind == model.ErrorKindTimeout || kind == model.ErrorKindRateLimit {
			return res.Fail(model.NewResearchError(req.Component, kind, "repair call failed: "+rerr.Error()))
		}
		return res.Fail(model.NewResearchError(req.Component, model.ErrorKindValidation,
			fmt.Sprintf("invalid output (%v); repair call failed: %v", verr, rerr)))
	}

	val, verr = decode(repaired, validate)
	if verr != nil {
		log.Warn("pipeline: repair did not produce valid output", zap.Error(verr))
		return res.Fail(model.NewResearchError(req.Component, model.ErrorKindValidation, verr.Error()))
	}
	res.Data = val
	return res
}

func decode[T any](text string, validate func(*T) error) (*T, error) {
	cleaned := signals.CleanJSON(text)
	if cleaned == "" {
		return nil, eris.Wrap(ErrValidation, "empty output")
	}
	var v T
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return nil, eris.Wrapf(ErrValidation, "decode: %v", err)
	}
	if validate != nil {
		if err := validate(&v); err != nil {
			return nil, eris.Wrapf(ErrValidation, "%v", err)
		}
	}
	return &v, nil
}

// complete sends one message through the rate-limit retry loop and the
// anthropic circuit breaker, recording its cost on the run.
func (r *run) complete(ctx context.Context, req anthropic.MessageRequest) (string, model.TokenUsage, error) {
	retry := r.p.retry
	retry.OnRetry = resilience.RetryLogger(breakerAnthropic, "create_message")
	cb := r.p.breakers.Get(breakerAnthropic)

	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			resp, err := r.p.anthropic.CreateMessage(ctx, req)
			return resp, rateLimited(err)
		})
	})
	if err != nil {
		return "", model.TokenUsage{}, err
	}

	usage := claudeUsage(resp.Usage)
	r.acc.addCost(r.p.costCalc.Claude(req.Model, false, usage.PromptTokens, usage.CompletionTokens))
	return resp.Text(), usage, nil
}

func claudeUsage(u anthropic.TokenUsage) model.TokenUsage {
	prompt := u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens
	return model.NewTokenUsage(int(prompt), int(u.OutputTokens))
}

// rateLimited rewraps provider throttling so the retry loop recognizes it.
func rateLimited(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case anthropic.IsRateLimit(err):
		d, _ := anthropic.RetryAfter(err)
		return resilience.NewRateLimitError(err, d)
	case perplexity.IsRateLimit(err):
		var se *perplexity.StatusError
		errors.As(err, &se)
		return resilience.NewRateLimitError(err, se.RetryAfter)
	case keywords.IsRateLimit(err):
		var se *keywords.StatusError
		errors.As(err, &se)
		return resilience.NewRateLimitError(err, se.RetryAfter)
	}
	return err
}

// errorKind classifies a provider failure.
func errorKind(err error) model.ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, resilience.ErrPollLimit):
		return model.ErrorKindTimeout
	case resilience.IsRateLimited(err):
		return model.ErrorKindRateLimit
	case errors.Is(err, ErrValidation):
		return model.ErrorKindValidation
	case errors.Is(err, ErrNotConfigured), errors.Is(err, jobs.ErrNotConfigured):
		return model.ErrorKindConfiguration
	default:
		return model.ErrorKindTransport
	}
}

func researchErr(c model.Component, err error) model.ResearchError {
	return model.NewResearchError(c, errorKind(err), err.Error())
}

func ptr[T any](v T) *T { return &v }
