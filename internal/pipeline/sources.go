package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aaj441/aaronos-core/internal/llm"
)

// Source is one piece of raw material gathered for a research job.
type Source struct {
	URL     string
	Title   string
	Content string
}

// SourceProvider returns raw material for one search query. Implementations
// are expected to fail per-query; the gather step excludes failed queries
// instead of aborting.
type SourceProvider interface {
	Gather(ctx context.Context, query string) ([]Source, error)
}

const (
	sourceFetchTimeout = 10 * time.Second
	maxSourceBody      = 64 << 10
)

// httpSourceProvider resolves queries against a search endpoint that returns
// page text for ?q=<query>.
type httpSourceProvider struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSourceProvider builds a SourceProvider backed by the given search
// endpoint.
func NewHTTPSourceProvider(endpoint string) SourceProvider {
	return &httpSourceProvider{
		endpoint: endpoint,
		client:   &http.Client{Timeout: sourceFetchTimeout},
	}
}

func (p *httpSourceProvider) Gather(ctx context.Context, query string) ([]Source, error) {
	u := p.endpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build source request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sources for %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch sources for %q: status %d", query, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBody))
	if err != nil {
		return nil, fmt.Errorf("read source body for %q: %w", query, err)
	}

	return []Source{{
		URL:     u,
		Title:   "Results for " + query,
		Content: string(body),
	}}, nil
}

// generatedSourceProvider synthesizes source material with the generator when
// no search endpoint is configured.
type generatedSourceProvider struct {
	gen llm.Generator
}

// NewGeneratedSourceProvider builds a SourceProvider that asks the generator
// for an overview of each query instead of fetching real pages.
func NewGeneratedSourceProvider(gen llm.Generator) SourceProvider {
	return &generatedSourceProvider{gen: gen}
}

func (p *generatedSourceProvider) Gather(ctx context.Context, query string) ([]Source, error) {
	text, err := p.gen.Generate(ctx, "Provide a concise factual overview of: "+query, 1024)
	if err != nil {
		return nil, fmt.Errorf("generate source for %q: %w", query, err)
	}
	return []Source{{
		URL:     "generated:" + url.QueryEscape(query),
		Title:   query,
		Content: text,
	}}, nil
}
