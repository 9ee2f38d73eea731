package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aaj441/aaronos-core/internal/domain"
	"github.com/aaj441/aaronos-core/internal/postgres"
	redisstore "github.com/aaj441/aaronos-core/internal/redis"
	"github.com/aaj441/aaronos-core/internal/runner"
)

// fakeGenerator serves canned responses keyed by a substring of the prompt.
type fakeGenerator struct {
	mu        sync.Mutex
	responses map[string]string
	err       error
	prompts   []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, _ int) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	for key, resp := range f.responses {
		if strings.Contains(prompt, key) {
			return resp, nil
		}
	}
	return "", errors.New("no canned response for prompt")
}

type fakeSources struct {
	perQuery int
	failFor  map[string]bool
}

func (f *fakeSources) Gather(_ context.Context, query string) ([]Source, error) {
	if f.failFor[query] {
		return nil, errors.New("fetch refused")
	}
	n := f.perQuery
	if n == 0 {
		n = 1
	}
	sources := make([]Source, n)
	for i := range sources {
		sources[i] = Source{URL: "https://example.com/" + query, Title: query, Content: "material about " + query}
	}
	return sources, nil
}

type memRepo struct {
	mu      sync.Mutex
	updates []postgres.WorkUpdate
}

func (m *memRepo) Create(context.Context, *domain.WorkRecord) error { return nil }

func (m *memRepo) Update(_ context.Context, _ string, upd postgres.WorkUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, upd)
	return nil
}

func (m *memRepo) GetByID(context.Context, string) (*domain.WorkRecord, error) {
	return nil, errors.New("not implemented")
}

func (m *memRepo) ListByOwner(context.Context, string, int) ([]*domain.WorkRecord, error) {
	return nil, nil
}

func (m *memRepo) CountCompletedBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type memStore struct {
	mu   sync.Mutex
	last redisstore.WorkState
}

func (m *memStore) SetState(_ context.Context, _ string, s redisstore.WorkState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = s
	return nil
}

func (m *memStore) GetState(context.Context, string) (redisstore.WorkState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, nil
}

func runPlan(t *testing.T, kind domain.WorkKind, plan runner.Plan) *domain.WorkRecord {
	t.Helper()
	work := &domain.WorkRecord{
		ID:      "w-test",
		Kind:    kind,
		OwnerID: "owner",
		Status:  domain.WorkPending,
	}
	r := runner.New(&memRepo{}, &memStore{}, runner.WithLogger(discardLogger()))
	if err := r.Execute(context.Background(), work, plan); err != nil {
		t.Fatalf("execute plan: %v", err)
	}
	return work
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
