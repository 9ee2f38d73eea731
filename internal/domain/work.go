package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// WorkKind identifies which pipeline a work record belongs to.
type WorkKind string

const (
	KindResearch          WorkKind = "research"
	KindBookGeneration    WorkKind = "book_generation"
	KindAccessibilityScan WorkKind = "accessibility_scan"
)

// Valid reports whether k is one of the known pipeline kinds.
func (k WorkKind) Valid() bool {
	switch k {
	case KindResearch, KindBookGeneration, KindAccessibilityScan:
		return true
	}
	return false
}

// WorkStatus represents the states a work record can be in.
type WorkStatus string

const (
	WorkPending   WorkStatus = "PENDING"
	WorkRunning   WorkStatus = "RUNNING"
	WorkCompleted WorkStatus = "COMPLETED"
	WorkFailed    WorkStatus = "FAILED"
	WorkCancelled WorkStatus = "CANCELLED"
)

// IsTerminal returns true if no further state transitions are possible.
func (s WorkStatus) IsTerminal() bool {
	return s == WorkCompleted || s == WorkFailed || s == WorkCancelled
}

// CanTransition reports whether moving from s to next is a legal transition.
// The legal paths are PENDING→{RUNNING,CANCELLED} and
// RUNNING→{COMPLETED,FAILED,CANCELLED}. A PENDING record can be cancelled
// directly when the job is killed before it ever acquires an execution slot.
func (s WorkStatus) CanTransition(next WorkStatus) bool {
	switch s {
	case WorkPending:
		return next == WorkRunning || next == WorkCancelled
	case WorkRunning:
		return next.IsTerminal()
	}
	return false
}

// WorkRecord is one invocation of a long-running job. It is created PENDING
// by the submitting request and mutated only by the runner executing it.
type WorkRecord struct {
	ID          string          `json:"id"`
	Kind        WorkKind        `json:"kind"`
	OwnerID     string          `json:"owner_id"`
	Status      WorkStatus      `json:"status"`
	Progress    int             `json:"progress"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// ResearchResult is the terminal payload of a research job.
type ResearchResult struct {
	Summary     string           `json:"summary"`
	Insights    []string         `json:"insights"`
	Competitors []CompetitorData `json:"competitors,omitempty"`
	Market      *MarketData      `json:"market,omitempty"`
	Sources     []string         `json:"sources"`
	Confidence  float64          `json:"confidence"`
}

// CompetitorData describes one competitor found during research.
type CompetitorData struct {
	Name           string   `json:"name"`
	URL            string   `json:"url"`
	Description    string   `json:"description"`
	Strengths      []string `json:"strengths"`
	Weaknesses     []string `json:"weaknesses"`
	MarketPosition string   `json:"market_position"`
}

// MarketData describes market conditions found during research.
type MarketData struct {
	Size          string   `json:"size"`
	Growth        string   `json:"growth"`
	Trends        []string `json:"trends"`
	Opportunities []string `json:"opportunities"`
	Threats       []string `json:"threats"`
}

// BookResult is the terminal payload of a book generation job.
type BookResult struct {
	Title      string             `json:"title"`
	Chapters   []GeneratedChapter `json:"chapters"`
	TotalWords int                `json:"total_words"`
	FilePath   string             `json:"file_path"`
	Format     string             `json:"format"`
	Quality    float64            `json:"quality"`
}

// GeneratedChapter is one generated chapter of a book.
type GeneratedChapter struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	WordCount int    `json:"word_count"`
}

// ScanResult is the terminal payload of an accessibility scan job.
type ScanResult struct {
	OverallScore    int            `json:"overall_score"`
	PagesScanned    int            `json:"pages_scanned"`
	TotalViolations int            `json:"total_violations"`
	CriticalIssues  int            `json:"critical_issues"`
	Pages           []PageResult   `json:"pages"`
	ByImpact        map[string]int `json:"by_impact"`
	ByWCAGLevel     map[string]int `json:"by_wcag_level"`
	CommonIssues    []ScanIssue    `json:"common_issues"`
}

// PageResult is the audit outcome for a single scanned page.
type PageResult struct {
	URL        string      `json:"url"`
	Score      int         `json:"score"`
	Violations []ScanIssue `json:"violations"`
	Passes     int         `json:"passes"`
	Incomplete int         `json:"incomplete"`
	ScannedAt  time.Time   `json:"scanned_at"`
}

// ScanIssue is one accessibility violation reported by the audit.
type ScanIssue struct {
	RuleID      string   `json:"rule_id"`
	Impact      string   `json:"impact"`
	Description string   `json:"description"`
	Help        string   `json:"help"`
	HelpURL     string   `json:"help_url"`
	WCAGTags    []string `json:"wcag_tags"`
	Targets     []string `json:"targets"`
}

// EncodeResult marshals a typed result payload and verifies it matches the
// record's kind. Results are stored as tagged variants, one per pipeline.
func EncodeResult(kind WorkKind, result any) (json.RawMessage, error) {
	ok := false
	switch result.(type) {
	case *ResearchResult, ResearchResult:
		ok = kind == KindResearch
	case *BookResult, BookResult:
		ok = kind == KindBookGeneration
	case *ScanResult, ScanResult:
		ok = kind == KindAccessibilityScan
	}
	if !ok {
		return nil, fmt.Errorf("result type %T does not match work kind %q", result, kind)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", kind, err)
	}
	return raw, nil
}
