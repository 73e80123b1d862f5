package pipeline

import (
	"net/http"
	"net/http/httptest"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/sells-group/research-brief/internal/config"
	"github.com/sells-group/research-brief/internal/cost"
	"github.com/sells-group/research-brief/internal/jobs"
	"github.com/sells-group/research-brief/internal/model"
	"github.com/sells-group/research-brief/pkg/anthropic"
	"github.com/sells-group/research-brief/pkg/keywords"
)

const (
	modelClassify    = "m-classify"
	modelDescribe    = "m-describe"
	modelProblem     = "m-problem"
	modelCompetition = "m-competition"
	modelKeywords    = "m-keywords"
	modelProof       = "m-proof"
	modelRepair      = "m-repair"

	dentalSummary = "AI scheduling tool for dental clinics"
)

const (
	classifyJSON    = `{"industryTag":"healthtech","businessType":"saas","confidence":0.92}`
	describeJSON    = `{"description":"An AI assistant that books, reschedules and confirms dental appointments automatically, filling last-minute cancellations from a waitlist so clinics keep chairs full."}`
	problemJSON     = `{"problem":"Dental clinics lose revenue to no-shows and spend front-desk hours on phone scheduling.","whyNow":["Patients expect online booking"," ","Front-desk staffing shortages"]}`
	competitionJSON = "```json\n" + `{"competitors":[{"name":"Weave","description":"Patient communication suite","website":"https://www.getweave.com","strengths":["Broad feature set"],"weaknesses":["Expensive"]},{"name":"NexHealth","website":"not a url"}],"marketGaps":["Autonomous rescheduling"],"differentiators":["AI waitlist fill"],"positioning":"The hands-off scheduler for independent practices."}` + "\n```"
	keywordsJSON    = `{"keywords":[{"term":"dental scheduling software","intent":"commercial"},{"term":"dental appointment app","intent":"transactional"},{"term":"reduce dental no shows","intent":"informational"},{"term":"dental practice management","intent":"Commercial"},{"term":"online booking for dentists","intent":"buy now"},{"term":"Dental Scheduling Software","intent":"commercial"},{"term":"ai receptionist dental","intent":"navigational"}]}`
	researchJSON    = `{"summary":"Clinics are actively looking for scheduling help.","stage":"Growing","signals":[{"description":"Dental no-shows cost practices revenue","evidence":"Industry survey reports 10% no-show rates","sources":["https://example.com/no-shows"]},{"description":"Online booking demand","evidence":"Most patients prefer booking online","sources":["https://example.com/booking"]}]}`
)

func testConfig() *config.Config {
	models := config.ModelsConfig{
		Classification: modelClassify,
		Description:    modelDescribe,
		Problem:        modelProblem,
		Competition:    modelCompetition,
		Keywords:       modelKeywords,
		ProofSignals:   modelProof,
		Repair:         modelRepair,
	}
	rates := cost.Rates{
		Anthropic:  map[string]cost.ModelRate{},
		Perplexity: cost.PerplexityRate{PerQuery: 0.005, PerMTok: 1},
		Keywords:   cost.KeywordRate{PerRequest: 0.075},
	}
	for _, m := range []string{modelClassify, modelDescribe, modelProblem, modelCompetition, modelKeywords, modelProof, modelRepair} {
		rates.Anthropic[m] = cost.ModelRate{Input: 1, Output: 5, BatchDiscount: 0.5}
	}

	return &config.Config{
		Perplexity: config.PerplexityConfig{Model: "sonar-pro"},
		Research: config.ResearchConfig{
			TimeoutSecs:          30,
			ComponentTimeoutSecs: 10,
			PollIntervalSecs:     1,
			MaxPolls:             5,
			WebSearchMaxUses:     4,
			Models:               models,
		},
		Resilience: config.ResilienceConfig{
			RateLimitRetries:   1,
			RateLimitBackoffMs: 1,
			BreakerFailures:    100,
			BreakerResetSecs:   1,
		},
		Pricing: rates,
	}
}

func textResp(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}
}

func onModel(mc *mockAnthropicClient, name string) *mock.Call {
	return mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == name
	}))
}

// apiError builds the error the SDK returns for a non-2xx response.
func apiError(code int) error {
	return &sdk.Error{
		StatusCode: code,
		Request:    httptest.NewRequest(http.MethodGet, "https://api.anthropic.com/v1/messages/batches", nil),
		Response:   &http.Response{StatusCode: code, Header: http.Header{}},
	}
}

func batchResp(id, status string) *anthropic.BatchResponse {
	return &anthropic.BatchResponse{ID: id, ProcessingStatus: status}
}

func succeededItem(text string) anthropic.BatchResultItem {
	return anthropic.BatchResultItem{
		CustomID: jobs.CustomID,
		Type:     anthropic.ResultSucceeded,
		Message: &anthropic.MessageResponse{
			Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
			Usage:   anthropic.TokenUsage{InputTokens: 2000, OutputTokens: 800},
		},
	}
}

// healthyAnthropic answers every component and completes research jobs on
// the first poll.
func healthyAnthropic() *mockAnthropicClient {
	mc := new(mockAnthropicClient)
	onModel(mc, modelClassify).Return(textResp(classifyJSON), nil)
	onModel(mc, modelKeywords).Return(textResp(keywordsJSON), nil)
	stubStepTwo(mc)
	stubResearchJob(mc, "batch_1")
	return mc
}

// stubStepTwo answers description, problem and competition.
func stubStepTwo(mc *mockAnthropicClient) {
	onModel(mc, modelDescribe).Return(textResp(describeJSON), nil)
	onModel(mc, modelProblem).Return(textResp(problemJSON), nil)
	onModel(mc, modelCompetition).Return(textResp(competitionJSON), nil)
}

// stubResearchJob makes research job id end with researchJSON on first poll.
func stubResearchJob(mc *mockAnthropicClient, id string) {
	mc.On("CreateBatch", mock.Anything, mock.Anything).Return(batchResp(id, anthropic.BatchInProgress), nil)
	mc.On("GetBatch", mock.Anything, id).Return(batchResp(id, anthropic.BatchEnded), nil)
	mc.On("GetBatchResults", mock.Anything, id).Return(newIterator(succeededItem(researchJSON)), nil)
}

func providerKeywordsData() []keywords.Keyword {
	return []keywords.Keyword{
		{Keyword: "dental scheduling", SearchVolume: 1300, CPC: 12.456, Competition: 0.61, Monthly: []keywords.MonthlyVolume{
			{Year: 2026, Month: 9, Volume: 1300},
			{Year: 2025, Month: 10, Volume: 1000},
		}},
		{Keyword: "dental clinics", SearchVolume: 9900, CPC: 3.1, Competition: 0.2},
		{Keyword: "Dental Scheduling", SearchVolume: 10},
		{Keyword: " ", SearchVolume: 50000},
	}
}

func newTestRun(p *Pipeline, summary string) *run {
	return &run{
		p:   p,
		req: model.ResearchRequest{Summary: summary},
		acc: newAccumulator(),
		log: zap.NewNop(),
	}
}

func errorsFor(errs []model.ResearchError, c model.Component) []model.ResearchError {
	var out []model.ResearchError
	for _, e := range errs {
		if e.Component == c {
			out = append(out, e)
		}
	}
	return out
}

func sumComponents(rep model.UsageReport) model.TokenUsage {
	var total model.TokenUsage
	for _, u := range rep.Components {
		total = total.Add(u)
	}
	return total
}
