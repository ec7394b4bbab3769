// Package providers abstracts the external video generation backends
// behind a uniform submit/poll/cancel contract. The orchestrator never
// touches provider-specific request or response shapes.
package providers

import (
	"context"
	"fmt"

	"reelforge-backend/internal/models"
)

// JobState is the remote lifecycle of a submitted generation job.
type JobState string

const (
	StatePending   JobState = "pending"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
)

// JobHandle identifies a job at the remote provider. The remote id is the
// source of truth for completion; supervision can be rebuilt from it alone.
type JobHandle struct {
	Provider string
	JobID    string
}

// PollResult is one observation of a remote job.
type PollResult struct {
	State JobState
	// OutputURL is the provider-hosted result location, set when State
	// is StateSucceeded.
	OutputURL string
	// ProgressHint is the provider's native progress fraction if it
	// reports one.
	ProgressHint *float64
	// RemoteStatus is the provider's raw status string, recorded for
	// stall detection and diagnostics.
	RemoteStatus string
	// FailureReason and Transient are set when State is StateFailed.
	FailureReason string
	Transient     bool
}

// SubmissionError means the provider rejected the job input. It is fatal:
// resubmitting the same plan cannot succeed.
type SubmissionError struct {
	Provider string
	Reason   string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s rejected submission: %s", e.Provider, e.Reason)
}

// TransientError wraps a provider failure worth retrying: rate limits,
// timeouts, upstream 5xx.
type TransientError struct {
	Provider string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s transient failure: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Adapter is implemented once per generation backend.
type Adapter interface {
	// ID is the provider id used in requests and fallback ordering,
	// e.g. "runway-gen4".
	ID() string
	// Kind groups adapters for the progress estimator's expected
	// duration table, e.g. "runway".
	Kind() string
	// Available reports whether the adapter is backed by configured
	// credentials. Selection never routes to an unavailable adapter.
	Available() bool
	// Submit starts a generation job for the plan snapshot.
	Submit(ctx context.Context, plan *models.GenerationPlan) (JobHandle, error)
	// Poll returns the current remote state of the job.
	Poll(ctx context.Context, handle JobHandle) (PollResult, error)
	// Cancel is best effort; providers without cancellation support
	// implement it as a no-op.
	Cancel(ctx context.Context, handle JobHandle) error
}
