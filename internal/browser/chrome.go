package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

const axeScriptURL = "https://cdnjs.cloudflare.com/ajax/libs/axe-core/4.10.2/axe.min.js"

// loadAxeJS injects the axe-core script tag and resolves once it has loaded.
const loadAxeJS = `new Promise((resolve, reject) => {
	if (window.axe) { resolve(true); return; }
	const s = document.createElement('script');
	s.src = %q;
	s.onload = () => resolve(true);
	s.onerror = () => reject(new Error('failed to load axe-core'));
	document.head.appendChild(s);
})`

// runAxeJS runs the audit and serializes the fields we consume.
const runAxeJS = `axe.run(document).then(r => JSON.stringify({
	violations: r.violations.map(v => ({
		id: v.id,
		impact: v.impact || 'minor',
		description: v.description,
		help: v.help,
		helpUrl: v.helpUrl,
		tags: v.tags,
		targets: v.nodes.flatMap(n => n.target.map(String)),
	})),
	passes: r.passes.length,
	incomplete: r.incomplete.length,
}))`

// Chrome is the chromedp-backed Browser. One headless Chrome process serves
// all tabs opened through it.
type Chrome struct {
	allocCtx context.Context
	cancel   context.CancelFunc
}

// NewChrome launches a headless Chrome allocator. Close must be called to
// reap the browser process.
func NewChrome(ctx context.Context) *Chrome {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
	)
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	return &Chrome{allocCtx: allocCtx, cancel: cancel}
}

func (c *Chrome) Navigate(ctx context.Context, url string, timeout time.Duration) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(c.allocCtx)

	navCtx, navCancel := context.WithTimeout(tabCtx, timeout)
	defer navCancel()

	// Stop waiting early if the caller gives up.
	go func() {
		select {
		case <-ctx.Done():
			navCancel()
		case <-navCtx.Done():
		}
	}()

	if err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	); err != nil {
		tabCancel()
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	return &tab{ctx: tabCtx, cancel: tabCancel}, nil
}

func (c *Chrome) Close() error {
	c.cancel()
	return nil
}

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// run executes actions on the tab while honoring the caller's context. The
// chromedp session lives on t.ctx, so the caller's cancellation is bridged
// into a child of it.
func (t *tab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (t *tab) Links(ctx context.Context) ([]string, error) {
	var links []string
	err := t.run(ctx, chromedp.Evaluate(
		`Array.from(document.querySelectorAll('a[href]')).map(a => a.href)`,
		&links,
	))
	if err != nil {
		return nil, fmt.Errorf("extract links: %w", err)
	}
	return links, nil
}

func (t *tab) Audit(ctx context.Context) (*AuditSummary, error) {
	awaitPromise := func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}

	var raw string
	err := t.run(ctx,
		chromedp.Evaluate(fmt.Sprintf(loadAxeJS, axeScriptURL), nil, awaitPromise),
		chromedp.Evaluate(runAxeJS, &raw, awaitPromise),
	)
	if err != nil {
		return nil, fmt.Errorf("run accessibility audit: %w", err)
	}

	var decoded struct {
		Violations []Violation `json:"violations"`
		Passes     int         `json:"passes"`
		Incomplete int         `json:"incomplete"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("decode audit result: %w", err)
	}
	return &AuditSummary{
		Violations: decoded.Violations,
		Passes:     decoded.Passes,
		Incomplete: decoded.Incomplete,
	}, nil
}

func (t *tab) Close() error {
	t.cancel()
	return nil
}

var _ Browser = (*Chrome)(nil)
