package pipeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/research-brief/internal/model"
)

func TestAccumulator_ConcurrentRecord(t *testing.T) {
	acc := newAccumulator()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := model.AllComponents()[i%len(model.AllComponents())]
			acc.record(c, model.NewTokenUsage(10, 5), []model.ResearchError{
				model.NewResearchError(c, model.ErrorKindTransport, "boom"),
			})
			acc.addCost(0.01)
		}()
	}
	wg.Wait()

	rep := acc.report()
	assert.Equal(t, model.NewTokenUsage(500, 250), rep.Total)
	assert.Equal(t, sumComponents(rep), rep.Total)
	assert.Len(t, acc.errors(), 50)
	assert.InDelta(t, 0.5, acc.cost(), 1e-9)
}

func TestAccumulator_AllComponentsReported(t *testing.T) {
	acc := newAccumulator()
	rep := acc.report()
	require.Len(t, rep.Components, len(model.AllComponents()))
	assert.True(t, rep.Total.IsZero())
	assert.NotNil(t, acc.errors())
}

func TestAccumulator_ErrorsIsCopy(t *testing.T) {
	acc := newAccumulator()
	acc.record(model.ComponentKeywords, model.TokenUsage{}, []model.ResearchError{
		model.NewResearchError(model.ComponentKeywords, model.ErrorKindConfiguration, "disabled"),
	})
	errs := acc.errors()
	errs[0].Message = "changed"
	assert.Equal(t, "disabled", acc.errors()[0].Message)
}
