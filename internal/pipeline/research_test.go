package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaj441/aaronos-core/internal/domain"
)

func TestConfidence(t *testing.T) {
	tests := []struct {
		name     string
		sources  int
		insights int
		summary  string
		want     float64
	}{
		{"rich research clamps to one", 5, 6, longSummary(250), 1.0},
		{"no data stays at base", 0, 0, "", 0.5},
		{"three sources", 3, 0, "", 0.6},
		{"five sources", 5, 0, "", 0.7},
		{"insights only", 0, 5, "", 0.65},
		{"long summary only", 0, 0, longSummary(201), 0.65},
		{"boundary summary not counted", 0, 0, longSummary(200), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Confidence(tt.sources, tt.insights, tt.summary), 1e-9)
		})
	}
}

func longSummary(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}

func TestResearchPlanCompletes(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{
		"research planning assistant": `Here you go: ["q1", "q2", "q3"]`,
		"strategic business analyst":  `{"summary": "` + longSummary(250) + `", "key_points": ["a", "b", "c", "d", "e"]}`,
	}}
	sources := &fakeSources{perQuery: 2}

	p := NewResearch(gen, sources, discardLogger())
	plan := p.Plan(ResearchRequest{Query: "fleet telematics"})
	work := runPlan(t, domain.KindResearch, plan)

	assert.Equal(t, domain.WorkCompleted, work.Status)
	assert.Equal(t, 100, work.Progress)

	var result domain.ResearchResult
	require.NoError(t, json.Unmarshal(work.Result, &result))
	assert.Len(t, result.Sources, 6) // 3 queries x 2 sources
	assert.Len(t, result.Insights, 5)
	assert.Nil(t, result.Competitors)
	assert.Nil(t, result.Market)
	// 6 sources, 5 insights, >200 char summary.
	assert.InDelta(t, 1.0, result.Confidence, 1e-9)
}

func TestResearchOptionalAnalysisSteps(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{
		"research planning assistant": `["q1"]`,
		"identify and analyze":        `{"competitors": [{"name": "Rival", "url": "https://rival.test", "description": "d", "strengths": ["s"], "weaknesses": ["w"], "market_position": "mid"}]}`,
		"provide market analysis":     `{"size": "large", "growth": "12%", "trends": ["t1"], "opportunities": ["o1"], "threats": ["th1"]}`,
		"strategic business analyst":  `{"summary": "short", "key_points": ["a"]}`,
	}}

	p := NewResearch(gen, &fakeSources{}, discardLogger())
	plan := p.Plan(ResearchRequest{Query: "x", IncludeCompetitors: true, IncludeMarket: true})
	work := runPlan(t, domain.KindResearch, plan)

	require.Equal(t, domain.WorkCompleted, work.Status)

	var result domain.ResearchResult
	require.NoError(t, json.Unmarshal(work.Result, &result))
	require.Len(t, result.Competitors, 1)
	assert.Equal(t, "Rival", result.Competitors[0].Name)
	require.NotNil(t, result.Market)
	assert.Equal(t, "large", result.Market.Size)
}

func TestResearchPlanFallbackQueries(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{
		"research planning assistant": "I cannot produce structured output, sorry.",
		"strategic business analyst":  `{"summary": "s", "key_points": ["a"]}`,
	}}

	p := NewResearch(gen, &fakeSources{}, discardLogger())
	run := &researchRun{req: ResearchRequest{Query: "widgets"}}
	require.NoError(t, p.plan(context.Background(), run))

	assert.Equal(t, []string{
		"widgets",
		"widgets market analysis",
		"widgets competitors",
		"widgets trends",
	}, run.queries)
}

func TestResearchGatherToleratesQueryFailure(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{
		"research planning assistant": `["good", "bad", "fine"]`,
		"strategic business analyst":  `{"summary": "s", "key_points": ["a"]}`,
	}}
	sources := &fakeSources{failFor: map[string]bool{"bad": true}}

	p := NewResearch(gen, sources, discardLogger())
	work := runPlan(t, domain.KindResearch, p.Plan(ResearchRequest{Query: "x"}))

	require.Equal(t, domain.WorkCompleted, work.Status)
	var result domain.ResearchResult
	require.NoError(t, json.Unmarshal(work.Result, &result))
	assert.Len(t, result.Sources, 2)
}

func TestResearchGeneratorFailureFailsJob(t *testing.T) {
	gen := &fakeGenerator{err: assert.AnError}
	p := NewResearch(gen, &fakeSources{}, discardLogger())
	work := runPlan(t, domain.KindResearch, p.Plan(ResearchRequest{Query: "x"}))

	assert.Equal(t, domain.WorkFailed, work.Status)
	assert.Contains(t, work.Error, "plan")
	assert.Nil(t, work.Result)
}

func TestResearchSynthesisFallback(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{
		"research planning assistant": `["q1"]`,
		"strategic business analyst":  "no json here",
	}}
	p := NewResearch(gen, &fakeSources{}, discardLogger())
	work := runPlan(t, domain.KindResearch, p.Plan(ResearchRequest{Query: "x"}))

	require.Equal(t, domain.WorkCompleted, work.Status)
	var result domain.ResearchResult
	require.NoError(t, json.Unmarshal(work.Result, &result))
	assert.Equal(t, "Analysis completed with limited data.", result.Summary)
	assert.Equal(t, []string{"Further research recommended"}, result.Insights)
}
