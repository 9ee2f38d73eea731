// Package pipeline defines the domain pipelines executed by the runner: each
// builds a weighted step plan around its external collaborators.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aaj441/aaronos-core/internal/domain"
	"github.com/aaj441/aaronos-core/internal/llm"
	"github.com/aaj441/aaronos-core/internal/runner"
)

const (
	maxGatherQueries   = 5
	analysisContextMax = 15000
	insightContextMax  = 10000

	planTokens     = 2048
	analysisTokens = 4096
)

// ResearchRequest is the validated input to a research job.
type ResearchRequest struct {
	Query              string `json:"query"`
	IncludeCompetitors bool   `json:"include_competitors"`
	IncludeMarket      bool   `json:"include_market"`
}

// Research builds plans for research jobs.
type Research struct {
	gen     llm.Generator
	sources SourceProvider
	logger  *slog.Logger
}

// NewResearch constructs the research pipeline.
func NewResearch(gen llm.Generator, sources SourceProvider, logger *slog.Logger) *Research {
	if logger == nil {
		logger = slog.Default()
	}
	return &Research{gen: gen, sources: sources, logger: logger}
}

type researchRun struct {
	req         ResearchRequest
	queries     []string
	sources     []Source
	competitors []domain.CompetitorData
	market      *domain.MarketData
	summary     string
	insights    []string
}

// Plan assembles the step sequence for one research job. The optional
// analysis steps reshape the weight split; every variant sums to 100.
func (p *Research) Plan(req ResearchRequest) runner.Plan {
	run := &researchRun{req: req}

	steps := make([]runner.Step, 0, 5)
	planW, gatherW, optW, synthW := 20, 40, 0, 40
	switch {
	case req.IncludeCompetitors && req.IncludeMarket:
		planW, gatherW, optW, synthW = 15, 35, 10, 30
	case req.IncludeCompetitors || req.IncludeMarket:
		planW, gatherW, optW, synthW = 15, 40, 15, 30
	}

	steps = append(steps,
		runner.Step{Name: "plan", Weight: planW, Run: func(ctx context.Context, _ *runner.Progress) error {
			return p.plan(ctx, run)
		}},
		runner.Step{Name: "gather", Weight: gatherW, Run: func(ctx context.Context, prog *runner.Progress) error {
			return p.gather(ctx, run, prog)
		}},
	)
	if req.IncludeCompetitors {
		steps = append(steps, runner.Step{Name: "analyze_competitors", Weight: optW, Run: func(ctx context.Context, _ *runner.Progress) error {
			return p.analyzeCompetitors(ctx, run)
		}})
	}
	if req.IncludeMarket {
		steps = append(steps, runner.Step{Name: "analyze_market", Weight: optW, Run: func(ctx context.Context, _ *runner.Progress) error {
			return p.analyzeMarket(ctx, run)
		}})
	}
	steps = append(steps, runner.Step{Name: "synthesize", Weight: synthW, Run: func(ctx context.Context, _ *runner.Progress) error {
		return p.synthesize(ctx, run)
	}})

	return runner.Plan{
		Steps: steps,
		Result: func() any {
			urls := make([]string, len(run.sources))
			for i, s := range run.sources {
				urls[i] = s.URL
			}
			return &domain.ResearchResult{
				Summary:     run.summary,
				Insights:    run.insights,
				Competitors: run.competitors,
				Market:      run.market,
				Sources:     urls,
				Confidence:  Confidence(len(run.sources), len(run.insights), run.summary),
			}
		},
	}
}

func (p *Research) plan(ctx context.Context, run *researchRun) error {
	prompt := fmt.Sprintf(`You are a research planning assistant. Given the following research query, generate 5-8 specific search queries that would help gather comprehensive information.

Research Query: %s

Return ONLY a JSON array of search query strings, no other text.
Example: ["query 1", "query 2", "query 3"]`, run.req.Query)

	text, err := p.gen.Generate(ctx, prompt, planTokens)
	if err != nil {
		return fmt.Errorf("generate research plan: %w", err)
	}

	if !llm.DecodeArray(text, &run.queries) || len(run.queries) == 0 {
		p.logger.Warn("research plan not decodable, using fallback queries",
			slog.String("query", run.req.Query))
		run.queries = []string{
			run.req.Query,
			run.req.Query + " market analysis",
			run.req.Query + " competitors",
			run.req.Query + " trends",
		}
	}
	return nil
}

func (p *Research) gather(ctx context.Context, run *researchRun, prog *runner.Progress) error {
	queries := run.queries
	if len(queries) > maxGatherQueries {
		queries = queries[:maxGatherQueries]
	}
	for i, q := range queries {
		sources, err := p.sources.Gather(ctx, q)
		if err != nil {
			// Per-query failures are excluded, not fatal.
			p.logger.Warn("source gathering failed for query",
				slog.String("search_query", q),
				slog.String("error", err.Error()),
			)
		} else {
			run.sources = append(run.sources, sources...)
		}
		prog.Report(ctx, i+1, len(queries))
	}
	return nil
}

func (p *Research) analyzeCompetitors(ctx context.Context, run *researchRun) error {
	prompt := fmt.Sprintf(`Based on the following research data about %q, identify and analyze the top 3-5 competitors.

Research Data:
%s

Provide analysis in JSON format:
{
  "competitors": [
    {
      "name": "Company Name",
      "url": "website",
      "description": "brief description",
      "strengths": ["strength 1", "strength 2"],
      "weaknesses": ["weakness 1", "weakness 2"],
      "market_position": "description of market position"
    }
  ]
}

Return ONLY valid JSON.`, run.req.Query, sourceContext(run.sources, analysisContextMax))

	text, err := p.gen.Generate(ctx, prompt, analysisTokens)
	if err != nil {
		return fmt.Errorf("analyze competitors: %w", err)
	}

	var decoded struct {
		Competitors []domain.CompetitorData `json:"competitors"`
	}
	if llm.DecodeObject(text, &decoded) {
		run.competitors = decoded.Competitors
	} else {
		p.logger.Warn("competitor analysis not decodable, continuing without it")
	}
	return nil
}

func (p *Research) analyzeMarket(ctx context.Context, run *researchRun) error {
	prompt := fmt.Sprintf(`Based on the following research data about %q, provide market analysis.

Research Data:
%s

Provide analysis in JSON format:
{
  "size": "estimated market size",
  "growth": "growth rate and trends",
  "trends": ["trend 1", "trend 2", "trend 3"],
  "opportunities": ["opportunity 1", "opportunity 2"],
  "threats": ["threat 1", "threat 2"]
}

Return ONLY valid JSON.`, run.req.Query, sourceContext(run.sources, analysisContextMax))

	text, err := p.gen.Generate(ctx, prompt, analysisTokens)
	if err != nil {
		return fmt.Errorf("analyze market: %w", err)
	}

	market := domain.MarketData{Size: "Data unavailable", Growth: "Data unavailable"}
	if !llm.DecodeObject(text, &market) {
		p.logger.Warn("market analysis not decodable, using fallback")
	}
	run.market = &market
	return nil
}

func (p *Research) synthesize(ctx context.Context, run *researchRun) error {
	var extras strings.Builder
	if len(run.competitors) > 0 {
		fmt.Fprintf(&extras, "\n\nCompetitor Analysis:\n%s", describeCompetitors(run.competitors))
	}
	if run.market != nil {
		fmt.Fprintf(&extras, "\n\nMarket Data:\nsize: %s, growth: %s, trends: %s",
			run.market.Size, run.market.Growth, strings.Join(run.market.Trends, "; "))
	}

	prompt := fmt.Sprintf(`You are a strategic business analyst. Synthesize the following research into actionable insights.

Research Query: %s

Research Data:
%s%s

Provide a comprehensive analysis with:
1. Executive summary (2-3 paragraphs)
2. 5-7 key strategic insights

Format as JSON:
{
  "summary": "executive summary text",
  "key_points": ["insight 1", "insight 2"]
}

Return ONLY valid JSON.`, run.req.Query, sourceContext(run.sources, insightContextMax), extras.String())

	text, err := p.gen.Generate(ctx, prompt, analysisTokens)
	if err != nil {
		return fmt.Errorf("synthesize insights: %w", err)
	}

	var decoded struct {
		Summary   string   `json:"summary"`
		KeyPoints []string `json:"key_points"`
	}
	if llm.DecodeObject(text, &decoded) && decoded.Summary != "" {
		run.summary = decoded.Summary
		run.insights = decoded.KeyPoints
	} else {
		p.logger.Warn("synthesis not decodable, using fallback")
		run.summary = "Analysis completed with limited data."
		run.insights = []string{"Further research recommended"}
	}
	return nil
}

// Confidence scores a research outcome from source count and output richness.
func Confidence(sources, insights int, summary string) float64 {
	confidence := 0.5
	if sources >= 5 {
		confidence += 0.2
	} else if sources >= 3 {
		confidence += 0.1
	}
	if insights >= 5 {
		confidence += 0.15
	}
	if len(summary) > 200 {
		confidence += 0.15
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

func sourceContext(sources []Source, maxLen int) string {
	parts := make([]string, len(sources))
	for i, s := range sources {
		parts[i] = fmt.Sprintf("Source: %s\n%s", s.URL, s.Content)
	}
	joined := strings.Join(parts, "\n\n---\n\n")
	if len(joined) > maxLen {
		joined = joined[:maxLen]
	}
	return joined
}

func describeCompetitors(competitors []domain.CompetitorData) string {
	var b strings.Builder
	for _, c := range competitors {
		fmt.Fprintf(&b, "- %s (%s): %s\n", c.Name, c.URL, c.Description)
	}
	return b.String()
}
