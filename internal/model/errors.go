package model

import "fmt"

// Component names one of the six executors in a pipeline run.
type Component string

const (
	ComponentClassification  Component = "classification"
	ComponentDescription     Component = "description"
	ComponentProblemAnalysis Component = "problemAnalysis"
	ComponentCompetition     Component = "competition"
	ComponentKeywords        Component = "keywords"
	ComponentProofSignals    Component = "proofSignals"
)

// AllComponents returns every component in pipeline order.
func AllComponents() []Component {
	return []Component{
		ComponentClassification,
		ComponentDescription,
		ComponentProblemAnalysis,
		ComponentCompetition,
		ComponentKeywords,
		ComponentProofSignals,
	}
}

// ErrorKind classifies why a component degraded.
type ErrorKind string

const (
	ErrorKindTransport     ErrorKind = "transport"
	ErrorKindRateLimit     ErrorKind = "rate_limit"
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindTimeout       ErrorKind = "timeout"
	ErrorKindConfiguration ErrorKind = "configuration"
)

// Retryable reports whether a fresh attempt could plausibly succeed. Only
// used for telemetry; the pipeline never re-enters itself.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindTransport, ErrorKindRateLimit, ErrorKindTimeout:
		return true
	default:
		return false
	}
}

// ResearchError records a single degradation of a component.
type ResearchError struct {
	Component Component `json:"component"`
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

// NewResearchError builds a ResearchError with Retryable derived from kind.
func NewResearchError(component Component, kind ErrorKind, msg string) ResearchError {
	return ResearchError{
		Component: component,
		Kind:      kind,
		Message:   msg,
		Retryable: kind.Retryable(),
	}
}

func (e ResearchError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Component, e.Message, e.Kind)
}

// ComponentResult is what every executor returns. Data may be present
// alongside Errors when a degraded tier produced it.
type ComponentResult[T any] struct {
	Data   *T              `json:"data,omitempty"`
	Usage  TokenUsage      `json:"usage"`
	Errors []ResearchError `json:"errors,omitempty"`
}

// OK reports whether the executor produced data.
func (r ComponentResult[T]) OK() bool {
	return r.Data != nil
}

// Fail appends an error and returns the result for chaining.
func (r ComponentResult[T]) Fail(e ResearchError) ComponentResult[T] {
	r.Errors = append(r.Errors, e)
	return r
}
