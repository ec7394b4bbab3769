package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelforge-backend/internal/models"
	"reelforge-backend/internal/orchestrator"
	"reelforge-backend/internal/providers"
	"reelforge-backend/internal/store"
)

// fakeAdapter replays a scripted sequence of poll results. The last entry
// repeats once the script is exhausted.
type fakeAdapter struct {
	id        string
	available bool
	submitErr []error

	mu       sync.Mutex
	script   []providers.PollResult
	pollIdx  int
	submits  int
	cancels  int
	lastJob  string
}

func (f *fakeAdapter) ID() string      { return f.id }
func (f *fakeAdapter) Kind() string    { return "runway" }
func (f *fakeAdapter) Available() bool { return f.available }

func (f *fakeAdapter) Submit(_ context.Context, _ *models.GenerationPlan) (providers.JobHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if len(f.submitErr) > 0 {
		err := f.submitErr[0]
		f.submitErr = f.submitErr[1:]
		if err != nil {
			return providers.JobHandle{}, err
		}
	}
	f.lastJob = fmt.Sprintf("%s-job-%d", f.id, f.submits)
	return providers.JobHandle{Provider: f.id, JobID: f.lastJob}, nil
}

func (f *fakeAdapter) Poll(_ context.Context, _ providers.JobHandle) (providers.PollResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.script) == 0 {
		return providers.PollResult{State: providers.StatePending, RemoteStatus: "RUNNING"}, nil
	}
	r := f.script[f.pollIdx]
	if f.pollIdx < len(f.script)-1 {
		f.pollIdx++
	}
	return r, nil
}

func (f *fakeAdapter) Cancel(context.Context, providers.JobHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return nil
}

func (f *fakeAdapter) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

func testConfig() orchestrator.Config {
	return orchestrator.Config{
		Backoff:             orchestrator.BackoffPolicy{Initial: time.Millisecond, Multiplier: 2, Cap: 5 * time.Millisecond},
		MaxTransientRetries: 3,
		MaxJobStall:         time.Minute,
	}
}

func plannedProject(t *testing.T, st store.ProjectStore) *models.Project {
	t.Helper()
	p := &models.Project{
		ID:     uuid.New(),
		UserID: uuid.New(),
		Status: models.StatusPlanned,
		Plan: &models.GenerationPlan{
			Version:     models.PlanVersion,
			Description: "rooftop timelapse at dusk",
			DurationSec: 10,
			AspectRatio: "9:16",
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.Create(context.Background(), p))
	return p
}

func newOrchestrator(t *testing.T, st store.ProjectStore, adapters []providers.Adapter, order []string) *orchestrator.Orchestrator {
	t.Helper()
	reg, err := providers.NewRegistry(adapters, order)
	require.NoError(t, err)
	o := orchestrator.New(st, reg, testConfig(), nil, slog.Default(), nil)
	t.Cleanup(o.Stop)
	return o
}

func waitForStatus(t *testing.T, st store.ProjectStore, id uuid.UUID, want models.Status) *models.Project {
	t.Helper()
	var got *models.Project
	require.Eventually(t, func() bool {
		p, err := st.Get(context.Background(), id)
		if err != nil {
			return false
		}
		got = p
		return p.Status == want
	}, 5*time.Second, 2*time.Millisecond, "waiting for status %s", want)
	return got
}

func TestGenerationRunsToCompletion(t *testing.T) {
	st := store.NewMemoryStore()
	pending := providers.PollResult{State: providers.StatePending, RemoteStatus: "RUNNING"}
	adapter := &fakeAdapter{id: "runway-gen4", available: true, script: []providers.PollResult{
		pending,
		pending,
		{State: providers.StateSucceeded, OutputURL: "https://cdn.test/out.mp4", RemoteStatus: "SUCCEEDED"},
	}}
	o := newOrchestrator(t, st, []providers.Adapter{adapter}, []string{"runway-gen4"})

	p := plannedProject(t, st)
	started, err := o.StartGeneration(context.Background(), p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusGenerating, started.Status)
	require.NotNil(t, started.ActiveJob)
	assert.Equal(t, "runway-gen4-job-1", started.ActiveJob.JobID)

	final := waitForStatus(t, st, p.ID, models.StatusCompleted)
	assert.Equal(t, "https://cdn.test/out.mp4", final.ArtifactRef)
	assert.Nil(t, final.ActiveJob)
	assert.Equal(t, 1.0, final.Progress)
	assert.Equal(t, p.Plan.Description, final.Plan.Description, "plan survives generation")
}

func TestSecondStartIsRejectedWhileJobActive(t *testing.T) {
	st := store.NewMemoryStore()
	adapter := &fakeAdapter{id: "runway-gen4", available: true}
	o := newOrchestrator(t, st, []providers.Adapter{adapter}, []string{"runway-gen4"})

	p := plannedProject(t, st)
	started, err := o.StartGeneration(context.Background(), p.ID, "")
	require.NoError(t, err)
	firstJob := started.ActiveJob.JobID

	_, err = o.StartGeneration(context.Background(), p.ID, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, orchestrator.ErrJobAlreadyActive))

	current, err := st.Get(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, current.ActiveJob)
	assert.Equal(t, firstJob, current.ActiveJob.JobID, "active job untouched by the rejected call")
}

func TestTransientFailuresExhaustBudget(t *testing.T) {
	st := store.NewMemoryStore()
	transientFail := providers.PollResult{
		State: providers.StateFailed, FailureReason: "rate limited", Transient: true,
	}
	// Every attempt fails transiently; budget is 3, so 4 job attempts run
	// before the project fails.
	adapter := &fakeAdapter{id: "runway-gen4", available: true, script: []providers.PollResult{transientFail}}
	o := newOrchestrator(t, st, []providers.Adapter{adapter}, []string{"runway-gen4"})

	p := plannedProject(t, st)
	planBefore := p.Plan.Clone()
	_, err := o.StartGeneration(context.Background(), p.ID, "")
	require.NoError(t, err)

	final := waitForStatus(t, st, p.ID, models.StatusFailed)
	require.NotNil(t, final.Error)
	assert.Equal(t, orchestrator.ErrKindTransient, final.Error.Kind)
	assert.Equal(t, planBefore.Description, final.Plan.Description, "plan equals pre-attempt snapshot")
	assert.Nil(t, final.ActiveJob)
	assert.Equal(t, 4, adapter.submitCount())
}

func TestFatalProviderFailureDoesNotRetry(t *testing.T) {
	st := store.NewMemoryStore()
	adapter := &fakeAdapter{id: "runway-gen4", available: true, script: []providers.PollResult{
		{State: providers.StateFailed, FailureReason: "prompt rejected", Transient: false},
	}}
	o := newOrchestrator(t, st, []providers.Adapter{adapter}, []string{"runway-gen4"})

	p := plannedProject(t, st)
	_, err := o.StartGeneration(context.Background(), p.ID, "")
	require.NoError(t, err)

	final := waitForStatus(t, st, p.ID, models.StatusFailed)
	assert.Equal(t, orchestrator.ErrKindFatal, final.Error.Kind)
	assert.Equal(t, 1, adapter.submitCount())
}

func TestSubmitFallsToNextProvider(t *testing.T) {
	st := store.NewMemoryStore()
	primary := &fakeAdapter{id: "runway-gen4", available: true,
		submitErr: []error{&providers.TransientError{Provider: "runway-gen4", Err: errors.New("overloaded")}}}
	secondary := &fakeAdapter{id: "veo-3", available: true, script: []providers.PollResult{
		{State: providers.StateSucceeded, OutputURL: "https://cdn.test/veo.mp4"},
	}}
	o := newOrchestrator(t, st, []providers.Adapter{primary, secondary}, []string{"runway-gen4", "veo-3"})

	p := plannedProject(t, st)
	started, err := o.StartGeneration(context.Background(), p.ID, "runway-gen4")
	require.NoError(t, err)
	assert.Equal(t, "veo-3", started.ActiveJob.Provider)

	waitForStatus(t, st, p.ID, models.StatusCompleted)
}

func TestSubmissionRejectionIsFatalAndImmediate(t *testing.T) {
	st := store.NewMemoryStore()
	primary := &fakeAdapter{id: "runway-gen4", available: true,
		submitErr: []error{&providers.SubmissionError{Provider: "runway-gen4", Reason: "bad ratio"}}}
	secondary := &fakeAdapter{id: "veo-3", available: true}
	o := newOrchestrator(t, st, []providers.Adapter{primary, secondary}, []string{"runway-gen4", "veo-3"})

	p := plannedProject(t, st)
	_, err := o.StartGeneration(context.Background(), p.ID, "runway-gen4")
	require.Error(t, err)

	var subErr *providers.SubmissionError
	assert.True(t, errors.As(err, &subErr))
	assert.Equal(t, 0, secondary.submitCount(), "rejected input is not walked through fallbacks")

	current, err := st.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPlanned, current.Status, "project state unchanged on submit rejection")
}

func TestStartGenerationPreconditions(t *testing.T) {
	st := store.NewMemoryStore()
	adapter := &fakeAdapter{id: "runway-gen4", available: true}
	o := newOrchestrator(t, st, []providers.Adapter{adapter}, []string{"runway-gen4"})

	t.Run("wrong status", func(t *testing.T) {
		p := plannedProject(t, st)
		p.Status = models.StatusAnalyzing
		require.NoError(t, st.Save(context.Background(), p))

		_, err := o.StartGeneration(context.Background(), p.ID, "")
		var preErr *orchestrator.PreconditionError
		require.True(t, errors.As(err, &preErr))
		assert.Equal(t, models.StatusAnalyzing, preErr.Status)
	})

	t.Run("no plan", func(t *testing.T) {
		p := plannedProject(t, st)
		p.Plan = nil
		require.NoError(t, st.Save(context.Background(), p))

		_, err := o.StartGeneration(context.Background(), p.ID, "")
		require.True(t, errors.Is(err, orchestrator.ErrNoPlanAvailable))
	})
}

func TestRetryFromFailedStartsFreshAttempt(t *testing.T) {
	st := store.NewMemoryStore()
	adapter := &fakeAdapter{id: "runway-gen4", available: true, script: []providers.PollResult{
		{State: providers.StateFailed, FailureReason: "bad prompt", Transient: false},
	}}
	o := newOrchestrator(t, st, []providers.Adapter{adapter}, []string{"runway-gen4"})

	p := plannedProject(t, st)
	_, err := o.StartGeneration(context.Background(), p.ID, "")
	require.NoError(t, err)
	waitForStatus(t, st, p.ID, models.StatusFailed)

	// Re-queue: swap the script to a success and start again from failed.
	adapter.mu.Lock()
	adapter.script = []providers.PollResult{{State: providers.StateSucceeded, OutputURL: "https://cdn.test/retry.mp4"}}
	adapter.pollIdx = 0
	adapter.mu.Unlock()

	started, err := o.StartGeneration(context.Background(), p.ID, "")
	require.NoError(t, err)
	assert.Nil(t, started.Error, "error cleared when a new attempt starts")
	assert.Zero(t, started.Progress)

	final := waitForStatus(t, st, p.ID, models.StatusCompleted)
	assert.Equal(t, "https://cdn.test/retry.mp4", final.ArtifactRef)
}

func TestStallTimeoutForcesFailure(t *testing.T) {
	st := store.NewMemoryStore()
	adapter := &fakeAdapter{id: "runway-gen4", available: true} // always pending
	reg, err := providers.NewRegistry([]providers.Adapter{adapter}, []string{"runway-gen4"})
	require.NoError(t, err)

	cfg := testConfig()
	cfg.MaxJobStall = 30 * time.Millisecond
	o := orchestrator.New(st, reg, cfg, nil, slog.Default(), nil)
	t.Cleanup(o.Stop)

	p := plannedProject(t, st)
	_, err = o.StartGeneration(context.Background(), p.ID, "")
	require.NoError(t, err)

	final := waitForStatus(t, st, p.ID, models.StatusFailed)
	assert.Equal(t, orchestrator.ErrKindTimeout, final.Error.Kind)
}

func TestReattachResumesFromJobDescriptor(t *testing.T) {
	st := store.NewMemoryStore()
	adapter := &fakeAdapter{id: "runway-gen4", available: true, script: []providers.PollResult{
		{State: providers.StatePending, RemoteStatus: "RUNNING"},
		{State: providers.StateSucceeded, OutputURL: "https://cdn.test/resumed.mp4"},
	}}

	// A previous process submitted the job and died: the store holds a
	// generating project with an active job descriptor, but no local
	// supervision exists.
	p := plannedProject(t, st)
	p.Status = models.StatusGenerating
	p.ActiveJob = &models.ActiveJob{
		Provider:     "runway-gen4",
		JobID:        "runway-gen4-job-1",
		SubmittedAt:  time.Now().UTC().Add(-10 * time.Second),
		LastChangeAt: time.Now().UTC(),
		Attempt:      1,
	}
	require.NoError(t, st.Save(context.Background(), p))

	o := newOrchestrator(t, st, []providers.Adapter{adapter}, []string{"runway-gen4"})
	require.NoError(t, o.Reattach(context.Background()))

	final := waitForStatus(t, st, p.ID, models.StatusCompleted)
	assert.Equal(t, "https://cdn.test/resumed.mp4", final.ArtifactRef)
	assert.Equal(t, 0, adapter.submitCount(), "re-attachment polls the existing remote job")
}

func TestReattachFailsProjectWhenProviderGone(t *testing.T) {
	st := store.NewMemoryStore()
	gone := &fakeAdapter{id: "runway-gen4", available: false}

	p := plannedProject(t, st)
	p.Status = models.StatusGenerating
	p.ActiveJob = &models.ActiveJob{Provider: "runway-gen4", JobID: "j", LastChangeAt: time.Now().UTC()}
	require.NoError(t, st.Save(context.Background(), p))

	o := newOrchestrator(t, st, []providers.Adapter{gone}, []string{"runway-gen4"})
	require.NoError(t, o.Reattach(context.Background()))

	final := waitForStatus(t, st, p.ID, models.StatusFailed)
	assert.Equal(t, orchestrator.ErrKindFatal, final.Error.Kind)
}

func TestPokeWakesSupervisorEarly(t *testing.T) {
	st := store.NewMemoryStore()
	adapter := &fakeAdapter{id: "runway-gen4", available: true, script: []providers.PollResult{
		{State: providers.StateSucceeded, OutputURL: "https://cdn.test/poked.mp4"},
	}}
	reg, err := providers.NewRegistry([]providers.Adapter{adapter}, []string{"runway-gen4"})
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Backoff = orchestrator.BackoffPolicy{Initial: time.Hour, Multiplier: 2, Cap: time.Hour}
	o := orchestrator.New(st, reg, cfg, nil, slog.Default(), nil)
	t.Cleanup(o.Stop)

	p := plannedProject(t, st)
	_, err = o.StartGeneration(context.Background(), p.ID, "")
	require.NoError(t, err)

	// Without the poke the first poll would be an hour away.
	o.Poke(p.ID)
	waitForStatus(t, st, p.ID, models.StatusCompleted)
}
