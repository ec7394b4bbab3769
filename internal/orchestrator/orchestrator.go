// Package orchestrator drives a project from planned (or failed) to a
// terminal state using exactly one supervised background job per project.
// It owns provider selection and fallback, the polling schedule, transient
// retry classification, the wall-clock stall timeout, and re-attachment of
// supervision after a process restart.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"reelforge-backend/internal/lifecycle"
	"reelforge-backend/internal/models"
	"reelforge-backend/internal/progress"
	"reelforge-backend/internal/providers"
	"reelforge-backend/internal/storage"
	"reelforge-backend/internal/store"
)

// ErrJobAlreadyActive rejects a second generation start while one job is
// outstanding. Starts are rejected, never queued or merged.
var ErrJobAlreadyActive = errors.New("a generation job is already active for this project")

// ErrNoPlanAvailable rejects generation for a project without a plan.
var ErrNoPlanAvailable = errors.New("no generation plan available")

// PreconditionError reports a generation request against a project whose
// status does not allow it.
type PreconditionError struct {
	Status models.Status
	Err    error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot start generation from status %q: %v", e.Status, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// Error kinds recorded on failed projects.
const (
	ErrKindTransient  = "transient"
	ErrKindSubmission = "submission"
	ErrKindTimeout    = "timeout"
	ErrKindFatal      = "fatal"
)

// Ingestor copies a provider-hosted output into durable storage and
// returns the internal reference. Implemented by storage.R2Store.
type Ingestor interface {
	IngestURL(ctx context.Context, sourceURL, key string) (string, error)
}

// Config carries the orchestrator's tunable policy knobs.
type Config struct {
	Backoff             BackoffPolicy
	MaxTransientRetries int
	// MaxJobStall forces a job to failed when the provider reports no
	// state change for this long, regardless of remaining retry budget.
	MaxJobStall time.Duration
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		Backoff:             DefaultBackoff(),
		MaxTransientRetries: 3,
		MaxJobStall:         15 * time.Minute,
	}
}

type supervision struct {
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}
}

// Orchestrator supervises generation jobs. One instance serves the whole
// process; per-project state lives in the durable store plus the active
// supervision table.
type Orchestrator struct {
	store    store.ProjectStore
	registry *providers.Registry
	cfg      Config
	clock    Clock
	logger   *slog.Logger
	ingestor Ingestor
	locks    *store.KeyedLock

	mu   sync.Mutex
	jobs map[uuid.UUID]*supervision
	wg   sync.WaitGroup
}

func New(st store.ProjectStore, registry *providers.Registry, cfg Config, clock Clock, logger *slog.Logger, ingestor Ingestor) *Orchestrator {
	if clock == nil {
		clock = RealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    st,
		registry: registry,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		ingestor: ingestor,
		locks:    store.NewKeyedLock(),
		jobs:     make(map[uuid.UUID]*supervision),
	}
}

// Locks exposes the per-project lock so handlers serialize plan mutations
// against generation starts.
func (o *Orchestrator) Locks() *store.KeyedLock { return o.locks }

// StartGeneration snapshots the plan, submits a job to the selected
// provider and schedules supervision. The submit happens on the caller's
// path so the response can carry the remote job id; everything after that
// runs in the background.
func (o *Orchestrator) StartGeneration(ctx context.Context, projectID uuid.UUID, requestedProvider string) (*models.Project, error) {
	unlock := o.locks.Lock(projectID)
	defer unlock()

	p, err := o.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if p.Status == models.StatusGenerating || o.supervising(projectID) {
		return nil, &PreconditionError{Status: p.Status, Err: ErrJobAlreadyActive}
	}
	if p.Status != models.StatusPlanned && p.Status != models.StatusFailed {
		return nil, &PreconditionError{Status: p.Status, Err: fmt.Errorf("project is not ready to generate")}
	}
	if p.Plan == nil {
		return nil, &PreconditionError{Status: p.Status, Err: ErrNoPlanAvailable}
	}

	adapter, err := o.registry.Select(requestedProvider)
	if err != nil {
		return nil, &PreconditionError{Status: p.Status, Err: err}
	}

	snapshot := p.Plan.Clone()
	adapter, handle, err := o.submitWithFallback(ctx, adapter, snapshot)
	if err != nil {
		return nil, err
	}

	now := o.clock.Now()
	next, err := lifecycle.Transition(*p, lifecycle.EventGenerationStarted, lifecycle.Payload{
		Job: &models.ActiveJob{
			Provider:     adapter.ID(),
			JobID:        handle.JobID,
			SubmittedAt:  now,
			LastChangeAt: now,
			Attempt:      1,
		},
		Now: now,
	})
	if err != nil {
		return nil, err
	}
	if err := o.store.Save(ctx, &next); err != nil {
		return nil, err
	}

	o.superviseAsync(projectID, adapter, snapshot)
	return &next, nil
}

// submitWithFallback tries the selected adapter, then the configured
// fallbacks, skipping unavailable backends. A SubmissionError is fatal and
// stops the walk: resubmitting rejected input elsewhere is caller policy,
// not an automatic retry.
func (o *Orchestrator) submitWithFallback(ctx context.Context, first providers.Adapter, plan *models.GenerationPlan) (providers.Adapter, providers.JobHandle, error) {
	candidates := append([]providers.Adapter{first}, o.registry.Fallbacks(first.ID())...)
	var lastErr error
	for _, adapter := range candidates {
		handle, err := adapter.Submit(ctx, plan)
		if err == nil {
			return adapter, handle, nil
		}
		var subErr *providers.SubmissionError
		if errors.As(err, &subErr) {
			return nil, providers.JobHandle{}, err
		}
		o.logger.Warn("provider submit failed, trying next",
			"provider", adapter.ID(), "error", err)
		lastErr = err
	}
	return nil, providers.JobHandle{}, fmt.Errorf("all providers failed to accept the job: %w", lastErr)
}

// Reattach rebuilds supervision for projects left generating by a previous
// process. Polling resumes from the persisted job descriptor; the remote
// job id is the source of truth, so an uninterrupted and a resumed run
// reach the same terminal state.
func (o *Orchestrator) Reattach(ctx context.Context) error {
	stuck, err := o.store.ListByStatus(ctx, models.StatusGenerating)
	if err != nil {
		return fmt.Errorf("list generating projects: %w", err)
	}
	for i := range stuck {
		p := stuck[i]
		if p.ActiveJob == nil {
			o.failProject(ctx, p.ID, ErrKindFatal, "generating project has no job descriptor")
			continue
		}
		adapter, ok := o.registry.Get(p.ActiveJob.Provider)
		if !ok || !adapter.Available() {
			o.failProject(ctx, p.ID, ErrKindFatal,
				fmt.Sprintf("provider %s no longer available", p.ActiveJob.Provider))
			continue
		}
		o.logger.Info("re-attaching generation supervision",
			"project", p.ID, "provider", p.ActiveJob.Provider, "job", p.ActiveJob.JobID)
		o.superviseAsync(p.ID, adapter, p.Plan.Clone())
	}
	return nil
}

// Poke wakes the supervisor for a project so the next poll happens now
// instead of after the current backoff interval. Used by the provider
// webhook; polling remains the source of truth.
func (o *Orchestrator) Poke(projectID uuid.UUID) {
	o.mu.Lock()
	s, ok := o.jobs[projectID]
	o.mu.Unlock()
	if !ok {
		return
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stop cancels all supervision loops and waits for them to drain. Jobs
// stay generating in the store and are picked up by Reattach on restart.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	for _, s := range o.jobs {
		s.cancel()
	}
	o.mu.Unlock()
	o.wg.Wait()
}

func (o *Orchestrator) supervising(projectID uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.jobs[projectID]
	return ok
}

func (o *Orchestrator) superviseAsync(projectID uuid.UUID, adapter providers.Adapter, snapshot *models.GenerationPlan) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &supervision{cancel: cancel, wake: make(chan struct{}, 1), done: make(chan struct{})}

	o.mu.Lock()
	o.jobs[projectID] = s
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer close(s.done)
		defer func() {
			o.mu.Lock()
			delete(o.jobs, projectID)
			o.mu.Unlock()
		}()
		o.supervise(ctx, projectID, adapter, snapshot, s.wake)
	}()
}

// supervise is the per-job polling loop. It is the single writer for its
// project record while the job runs.
func (o *Orchestrator) supervise(ctx context.Context, projectID uuid.UUID, adapter providers.Adapter, snapshot *models.GenerationPlan, wake <-chan struct{}) {
	log := o.logger.With("project", projectID, "provider", adapter.ID())
	interval := o.cfg.Backoff.Initial
	retriesLeft := o.cfg.MaxTransientRetries

	for {
		select {
		case <-ctx.Done():
			log.Info("supervision cancelled")
			return
		case <-wake:
		case <-o.clock.After(interval):
		}

		p, err := o.store.Get(ctx, projectID)
		if err != nil {
			log.Error("load project", "error", err)
			return
		}
		if p.Status != models.StatusGenerating || p.ActiveJob == nil {
			return
		}
		job := p.ActiveJob
		now := o.clock.Now()

		if o.cfg.MaxJobStall > 0 && now.Sub(job.LastChangeAt) > o.cfg.MaxJobStall {
			log.Warn("job stalled past deadline", "job", job.JobID, "last_change", job.LastChangeAt)
			o.cancelRemote(adapter, *job)
			o.failProject(ctx, projectID, ErrKindTimeout,
				fmt.Sprintf("no provider state change within %s", o.cfg.MaxJobStall))
			return
		}

		handle := providers.JobHandle{Provider: job.Provider, JobID: job.JobID}
		result, err := adapter.Poll(ctx, handle)
		if err != nil {
			var trErr *providers.TransientError
			transient := errors.As(err, &trErr)
			if transient && retriesLeft > 0 {
				retriesLeft--
				interval = o.cfg.Backoff.Next(interval)
				log.Warn("poll failed, will retry", "error", err, "retries_left", retriesLeft)
				continue
			}
			kind := ErrKindFatal
			if transient {
				kind = ErrKindTransient
			}
			o.failProject(ctx, projectID, kind, fmt.Sprintf("polling failed: %v", err))
			return
		}

		switch result.State {
		case providers.StatePending:
			frac, eta := progress.Estimate(now.Sub(job.SubmittedAt), adapter.Kind(), result.ProgressHint, p.Progress)
			next, err := lifecycle.Transition(*p, lifecycle.EventProgressUpdated, lifecycle.Payload{
				Progress:    frac,
				Eta:         eta,
				RemoteState: result.RemoteStatus,
				Now:         now,
			})
			if err != nil {
				log.Error("progress transition", "error", err)
				return
			}
			if err := o.store.Save(ctx, &next); err != nil {
				log.Error("persist progress", "error", err)
			}
			interval = o.cfg.Backoff.Next(interval)

		case providers.StateSucceeded:
			ref := result.OutputURL
			if o.ingestor != nil {
				key := storage.ObjectKey(p.UserID, p.ID, "output", "final.mp4")
				stored, err := o.ingestor.IngestURL(ctx, result.OutputURL, key)
				if err != nil {
					log.Error("artifact ingestion failed, keeping provider url", "error", err)
				} else {
					ref = stored
				}
			}
			next, err := lifecycle.Transition(*p, lifecycle.EventGenerationCompleted, lifecycle.Payload{
				ArtifactRef: ref,
				Now:         now,
			})
			if err != nil {
				log.Error("completion transition", "error", err)
				return
			}
			if err := o.store.Save(ctx, &next); err != nil {
				log.Error("persist completion", "error", err)
				return
			}
			log.Info("generation completed", "job", job.JobID, "artifact", ref)
			return

		case providers.StateFailed:
			if result.Transient && retriesLeft > 0 {
				retriesLeft--
				nextAdapter, ok := o.resubmit(ctx, p, adapter, snapshot, job.Attempt+1)
				if ok {
					adapter = nextAdapter
					log = o.logger.With("project", projectID, "provider", adapter.ID())
					interval = o.cfg.Backoff.Initial
					continue
				}
			}
			kind := ErrKindFatal
			if result.Transient {
				kind = ErrKindTransient
			}
			o.failProject(ctx, projectID, kind, result.FailureReason)
			return
		}
	}
}

// resubmit starts a fresh job attempt after a transient provider failure,
// preferring the same adapter and falling through the configured order.
// Returns false when no backend accepted the job.
func (o *Orchestrator) resubmit(ctx context.Context, p *models.Project, current providers.Adapter, snapshot *models.GenerationPlan, attempt int) (providers.Adapter, bool) {
	adapter, handle, err := o.submitWithFallback(ctx, current, snapshot)
	if err != nil {
		o.logger.Warn("resubmission failed", "project", p.ID, "error", err)
		return nil, false
	}
	now := o.clock.Now()
	next, err := lifecycle.Transition(*p, lifecycle.EventJobResubmitted, lifecycle.Payload{
		Job: &models.ActiveJob{
			Provider:     adapter.ID(),
			JobID:        handle.JobID,
			SubmittedAt:  now,
			LastChangeAt: now,
			Attempt:      attempt,
		},
		Now: now,
	})
	if err != nil {
		o.logger.Error("resubmission transition", "project", p.ID, "error", err)
		return nil, false
	}
	if err := o.store.Save(ctx, &next); err != nil {
		o.logger.Error("persist resubmission", "project", p.ID, "error", err)
		return nil, false
	}
	o.logger.Info("job resubmitted", "project", p.ID, "provider", adapter.ID(), "attempt", attempt)
	return adapter, true
}

func (o *Orchestrator) failProject(ctx context.Context, projectID uuid.UUID, kind, message string) {
	p, err := o.store.Get(ctx, projectID)
	if err != nil {
		o.logger.Error("load project for failure", "project", projectID, "error", err)
		return
	}
	next, err := lifecycle.Transition(*p, lifecycle.EventGenerationFailed, lifecycle.Payload{
		Error: &models.ErrorInfo{Kind: kind, Message: message},
		Now:   o.clock.Now(),
	})
	if err != nil {
		o.logger.Error("failure transition", "project", projectID, "error", err)
		return
	}
	if err := o.store.Save(ctx, &next); err != nil {
		o.logger.Error("persist failure", "project", projectID, "error", err)
	}
	o.logger.Warn("generation failed", "project", projectID, "kind", kind, "message", message)
}

func (o *Orchestrator) cancelRemote(adapter providers.Adapter, job models.ActiveJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := adapter.Cancel(ctx, providers.JobHandle{Provider: job.Provider, JobID: job.JobID}); err != nil {
		o.logger.Warn("remote cancel failed", "job", job.JobID, "error", err)
	}
}
