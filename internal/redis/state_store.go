package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aaj441/aaronos-core/internal/domain"
)

const stateTTL = 24 * time.Hour

func stateKey(workID string) string { return "work:state:" + workID }

// WorkState is the live view served to pollers without touching Postgres.
type WorkState struct {
	Status   domain.WorkStatus `json:"status"`
	Progress int               `json:"progress"`
	Error    string            `json:"error,omitempty"`
}

// StateStore manages real-time work state in Redis. The runner writes through
// after every progress update; the API reads it as the polling fast path.
type StateStore interface {
	SetState(ctx context.Context, workID string, state WorkState) error
	GetState(ctx context.Context, workID string) (WorkState, error)
}

type stateStore struct {
	client *redis.Client
}

// NewStateStore creates a Redis-backed StateStore.
func NewStateStore(client *redis.Client) StateStore {
	return &stateStore{client: client}
}

// NewClient creates and returns a new Redis client.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

func (s *stateStore) SetState(ctx context.Context, workID string, state WorkState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal work state: %w", err)
	}
	if err := s.client.Set(ctx, stateKey(workID), data, stateTTL).Err(); err != nil {
		return fmt.Errorf("redis set state for %s: %w", workID, err)
	}
	return nil
}

func (s *stateStore) GetState(ctx context.Context, workID string) (WorkState, error) {
	data, err := s.client.Get(ctx, stateKey(workID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return WorkState{}, &domain.WorkNotFoundError{WorkID: workID}
		}
		return WorkState{}, fmt.Errorf("redis get state for %s: %w", workID, err)
	}
	var state WorkState
	if err := json.Unmarshal(data, &state); err != nil {
		return WorkState{}, fmt.Errorf("unmarshal work state: %w", err)
	}
	return state, nil
}
