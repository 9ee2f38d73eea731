package domain

import "fmt"

// WorkNotFoundError is returned when a work record ID does not exist.
type WorkNotFoundError struct {
	WorkID string
}

func (e *WorkNotFoundError) Error() string {
	return fmt.Sprintf("work record not found: %s", e.WorkID)
}

// TaskNotFoundError is returned when a scheduled task name does not exist.
type TaskNotFoundError struct {
	Name string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("scheduled task not found: %s", e.Name)
}

// InvalidTransitionError is returned when a status change would move a work
// record backwards or out of a terminal state.
type InvalidTransitionError struct {
	WorkID string
	From   WorkStatus
	To     WorkStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("work %s: illegal transition %s → %s", e.WorkID, e.From, e.To)
}

// ValidationError is returned for malformed submissions. The job is never
// created when validation fails.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// TaskOverlapError is returned when a trigger fires for a task that is still
// running a previous invocation.
type TaskOverlapError struct {
	Name string
}

func (e *TaskOverlapError) Error() string {
	return fmt.Sprintf("task %q already has a run in progress", e.Name)
}

// RateLimitExceededError is returned when an owner exceeds the submission rate.
type RateLimitExceededError struct {
	OwnerID string
	Limit   int
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("submission rate limit exceeded for owner %q: limit is %d", e.OwnerID, e.Limit)
}
