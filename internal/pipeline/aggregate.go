package pipeline

import (
	"sync"

	"github.com/sells-group/research-brief/internal/model"
)

// accumulator collects usage, errors and cost from concurrently running
// components. It is safe for concurrent use.
type accumulator struct {
	mu      sync.Mutex
	usage   map[model.Component]model.TokenUsage
	errs    []model.ResearchError
	costUSD float64
}

func newAccumulator() *accumulator {
	usage := make(map[model.Component]model.TokenUsage, len(model.AllComponents()))
	for _, c := range model.AllComponents() {
		usage[c] = model.TokenUsage{}
	}
	return &accumulator{usage: usage, errs: []model.ResearchError{}}
}

func (a *accumulator) record(c model.Component, usage model.TokenUsage, errs []model.ResearchError) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.usage[c] = a.usage[c].Add(usage)
	a.errs = append(a.errs, errs...)
}

func (a *accumulator) addCost(usd float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.costUSD += usd
}

// report returns the usage breakdown with Total summed from the components.
func (a *accumulator) report() model.UsageReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	rep := model.UsageReport{Components: make(map[model.Component]model.TokenUsage, len(a.usage))}
	for c, u := range a.usage {
		rep.Components[c] = u
		rep.Total = rep.Total.Add(u)
	}
	return rep
}

func (a *accumulator) errors() []model.ResearchError {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.ResearchError{}, a.errs...)
}

func (a *accumulator) cost() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.costUSD
}
