package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aaj441/aaronos-core/internal/browser"
	"github.com/aaj441/aaronos-core/internal/domain"
	"github.com/aaj441/aaronos-core/internal/runner"
)

const (
	// DefaultMaxPages bounds discovery when the request gives no cap.
	DefaultMaxPages = 10

	discoverNavTimeout = 10 * time.Second
	scanNavTimeout     = 15 * time.Second

	topIssueCount = 10
)

// ScanRequest is the validated input to an accessibility scan job.
type ScanRequest struct {
	TargetURL string   `json:"target_url"`
	Domains   []string `json:"domains"`
	MaxPages  int      `json:"max_pages,omitempty"`
}

// Scan builds plans for accessibility scan jobs.
type Scan struct {
	newBrowser func() (browser.Browser, error)
	logger     *slog.Logger
}

// NewScan constructs the scan pipeline. newBrowser is invoked once per job;
// the browser is released when the job reaches a terminal state.
func NewScan(newBrowser func() (browser.Browser, error), logger *slog.Logger) *Scan {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scan{newBrowser: newBrowser, logger: logger}
}

type scanRun struct {
	req     ScanRequest
	browser browser.Browser
	pages   []string
	results []domain.PageResult
	result  *domain.ScanResult

	closeOnce sync.Once
}

func (run *scanRun) close() {
	run.closeOnce.Do(func() {
		if run.browser != nil {
			_ = run.browser.Close()
		}
	})
}

// Plan assembles the step sequence for one scan job.
func (p *Scan) Plan(req ScanRequest) runner.Plan {
	if req.MaxPages <= 0 {
		req.MaxPages = DefaultMaxPages
	}
	run := &scanRun{req: req}

	return runner.Plan{
		Steps: []runner.Step{
			{Name: "discover_pages", Weight: 20, Run: func(ctx context.Context, _ *runner.Progress) error {
				return p.discover(ctx, run)
			}},
			{Name: "scan_pages", Weight: 65, Run: func(ctx context.Context, prog *runner.Progress) error {
				return p.scanPages(ctx, run, prog)
			}},
			{Name: "compile", Weight: 15, Run: func(ctx context.Context, _ *runner.Progress) error {
				run.result = compileScan(run.results)
				return nil
			}},
		},
		Result:  func() any { return run.result },
		Cleanup: run.close,
	}
}

// discover walks links breadth-first from the seed. The seed is always
// admitted; further links only when their host matches an allowed domain and
// the cap has not been reached.
func (p *Scan) discover(ctx context.Context, run *scanRun) error {
	b, err := p.newBrowser()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	run.browser = b

	discovered := map[string]bool{run.req.TargetURL: true}
	order := []string{run.req.TargetURL}
	queue := []string{run.req.TargetURL}
	visited := map[string]bool{}

	for len(queue) > 0 && len(discovered) < run.req.MaxPages {
		u := queue[0]
		queue = queue[1:]
		if visited[u] {
			continue
		}
		visited[u] = true

		links, err := p.pageLinks(ctx, run.browser, u)
		if err != nil {
			p.logger.Warn("link discovery failed for page",
				slog.String("url", u),
				slog.String("error", err.Error()),
			)
			continue
		}

		for _, link := range links {
			if len(discovered) >= run.req.MaxPages {
				break
			}
			if !hostAllowed(link, run.req.Domains) || discovered[link] {
				continue
			}
			discovered[link] = true
			order = append(order, link)
			queue = append(queue, link)
		}
	}

	run.pages = order
	p.logger.Info("page discovery finished",
		slog.String("seed", run.req.TargetURL),
		slog.Int("pages", len(run.pages)),
	)
	return nil
}

func (p *Scan) pageLinks(ctx context.Context, b browser.Browser, u string) ([]string, error) {
	page, err := b.Navigate(ctx, u, discoverNavTimeout)
	if err != nil {
		return nil, err
	}
	defer page.Close()
	return page.Links(ctx)
}

func (p *Scan) scanPages(ctx context.Context, run *scanRun, prog *runner.Progress) error {
	for i, u := range run.pages {
		result, err := p.scanPage(ctx, run.browser, u)
		if err != nil {
			// A single page failing is excluded, not fatal.
			p.logger.Warn("page scan failed",
				slog.String("url", u),
				slog.String("error", err.Error()),
			)
		} else {
			run.results = append(run.results, *result)
		}
		prog.Report(ctx, i+1, len(run.pages))
	}
	return nil
}

func (p *Scan) scanPage(ctx context.Context, b browser.Browser, u string) (*domain.PageResult, error) {
	page, err := b.Navigate(ctx, u, scanNavTimeout)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	audit, err := page.Audit(ctx)
	if err != nil {
		return nil, err
	}

	issues := make([]domain.ScanIssue, len(audit.Violations))
	for i, v := range audit.Violations {
		issues[i] = domain.ScanIssue{
			RuleID:      v.RuleID,
			Impact:      v.Impact,
			Description: v.Description,
			Help:        v.Help,
			HelpURL:     v.HelpURL,
			WCAGTags:    v.Tags,
			Targets:     v.Targets,
		}
	}

	return &domain.PageResult{
		URL:        u,
		Score:      pageScore(len(audit.Violations), audit.Passes),
		Violations: issues,
		Passes:     audit.Passes,
		Incomplete: audit.Incomplete,
		ScannedAt:  time.Now().UTC(),
	}, nil
}

// pageScore is the passed share of executed checks, 100 when nothing ran.
func pageScore(violations, passes int) int {
	total := violations + passes
	if total == 0 {
		return 100
	}
	return int(math.Round(float64(passes) / float64(total) * 100))
}

func hostAllowed(link string, domains []string) bool {
	u, err := url.Parse(link)
	if err != nil || u.Hostname() == "" {
		return false
	}
	for _, d := range domains {
		if strings.Contains(u.Hostname(), d) {
			return true
		}
	}
	return false
}

// compileScan aggregates per-page results into the terminal payload. With no
// scanned pages the overall score is 100 by convention.
func compileScan(results []domain.PageResult) *domain.ScanResult {
	byImpact := map[string]int{"critical": 0, "serious": 0, "moderate": 0, "minor": 0}
	byLevel := map[string]int{}

	type issueCount struct {
		issue domain.ScanIssue
		count int
	}
	counts := map[string]*issueCount{}
	var firstSeen []string

	total := 0
	scoreSum := 0
	for _, page := range results {
		scoreSum += page.Score
		for _, v := range page.Violations {
			total++
			byImpact[v.Impact]++
			for _, tag := range v.WCAGTags {
				if strings.HasPrefix(tag, "wcag") {
					byLevel[tag]++
				}
			}
			if c, ok := counts[v.RuleID]; ok {
				c.count++
			} else {
				counts[v.RuleID] = &issueCount{issue: v, count: 1}
				firstSeen = append(firstSeen, v.RuleID)
			}
		}
	}

	overall := 100
	if len(results) > 0 {
		overall = int(math.Round(float64(scoreSum) / float64(len(results))))
	}

	// Most frequent distinct issues, ties kept in first-encountered order.
	sort.SliceStable(firstSeen, func(i, j int) bool {
		return counts[firstSeen[i]].count > counts[firstSeen[j]].count
	})
	top := firstSeen
	if len(top) > topIssueCount {
		top = top[:topIssueCount]
	}
	common := make([]domain.ScanIssue, len(top))
	for i, id := range top {
		common[i] = counts[id].issue
	}

	return &domain.ScanResult{
		OverallScore:    overall,
		PagesScanned:    len(results),
		TotalViolations: total,
		CriticalIssues:  byImpact["critical"],
		Pages:           results,
		ByImpact:        byImpact,
		ByWCAGLevel:     byLevel,
		CommonIssues:    common,
	}
}
