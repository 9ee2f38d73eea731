// Package browser wraps headless-Chrome automation behind a small interface
// so pipelines and tests never depend on chromedp directly.
package browser

import (
	"context"
	"time"
)

// AuditSummary is the outcome of an accessibility audit on a loaded page.
type AuditSummary struct {
	Violations []Violation
	Passes     int
	Incomplete int
}

// Violation is one failed accessibility rule.
type Violation struct {
	RuleID      string   `json:"id"`
	Impact      string   `json:"impact"`
	Description string   `json:"description"`
	Help        string   `json:"help"`
	HelpURL     string   `json:"helpUrl"`
	Tags        []string `json:"tags"`
	Targets     []string `json:"targets"`
}

// Page is a loaded browser tab.
type Page interface {
	// Links returns the href of every anchor on the page.
	Links(ctx context.Context) ([]string, error)
	// Audit runs an accessibility audit against the loaded document.
	Audit(ctx context.Context) (*AuditSummary, error)
	// Close releases the tab.
	Close() error
}

// Browser navigates to URLs and hands back loaded pages.
type Browser interface {
	// Navigate opens url in a fresh tab, waiting at most timeout for the
	// document to become ready.
	Navigate(ctx context.Context, url string, timeout time.Duration) (Page, error)
	// Close shuts the browser down.
	Close() error
}
