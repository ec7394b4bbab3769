package lifecycle_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelforge-backend/internal/lifecycle"
	"reelforge-backend/internal/models"
)

func validPlan() *models.GenerationPlan {
	return &models.GenerationPlan{
		Version:     models.PlanVersion,
		Description: "fast-cut product showcase with neon lighting",
		DurationSec: 10,
		AspectRatio: "9:16",
	}
}

func newProject(status models.Status) models.Project {
	p := models.Project{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	if status == models.StatusPlanned || status == models.StatusGenerating || status == models.StatusFailed {
		p.Plan = validPlan()
	}
	if status == models.StatusGenerating {
		p.ActiveJob = &models.ActiveJob{Provider: "runway-gen4", JobID: "job-1", SubmittedAt: time.Now().UTC(), Attempt: 1}
	}
	return p
}

func TestHappyPathProgression(t *testing.T) {
	p := newProject(models.StatusCreated)

	p, err := lifecycle.Transition(p, lifecycle.EventUploadStarted, lifecycle.Payload{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploading, p.Status)

	p, err = lifecycle.Transition(p, lifecycle.EventAnalysisStarted, lifecycle.Payload{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAnalyzing, p.Status)

	p, err = lifecycle.Transition(p, lifecycle.EventAnalysisCompleted, lifecycle.Payload{
		Analysis: &models.AnalysisResult{Summary: "upbeat demo clip"},
		Plan:     validPlan(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPlanned, p.Status)
	require.NotNil(t, p.Plan)

	job := &models.ActiveJob{Provider: "runway-gen4", JobID: "job-9", SubmittedAt: time.Now().UTC(), Attempt: 1}
	p, err = lifecycle.Transition(p, lifecycle.EventGenerationStarted, lifecycle.Payload{Job: job})
	require.NoError(t, err)
	assert.Equal(t, models.StatusGenerating, p.Status)
	require.NotNil(t, p.ActiveJob)
	assert.Equal(t, "job-9", p.ActiveJob.JobID)
	assert.Zero(t, p.Progress)

	p, err = lifecycle.Transition(p, lifecycle.EventGenerationCompleted, lifecycle.Payload{ArtifactRef: "users/u/projects/p/output/final.mp4"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, p.Status)
	assert.Nil(t, p.ActiveJob)
	assert.Equal(t, 1.0, p.Progress)
}

func TestIllegalEdgesLeaveProjectUnchanged(t *testing.T) {
	cases := []struct {
		name   string
		status models.Status
		event  lifecycle.Event
	}{
		{"generate from created", models.StatusCreated, lifecycle.EventGenerationStarted},
		{"generate from analyzing", models.StatusAnalyzing, lifecycle.EventGenerationStarted},
		{"generate while generating", models.StatusGenerating, lifecycle.EventGenerationStarted},
		{"chat edit while generating", models.StatusGenerating, lifecycle.EventPlanEdited},
		{"chat edit from created", models.StatusCreated, lifecycle.EventPlanEdited},
		{"complete from planned", models.StatusPlanned, lifecycle.EventGenerationCompleted},
		{"fail from planned", models.StatusPlanned, lifecycle.EventGenerationFailed},
		{"analyze from completed", models.StatusCompleted, lifecycle.EventAnalysisStarted},
		{"upload after analysis", models.StatusPlanned, lifecycle.EventUploadStarted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := newProject(tc.status)
			after, err := lifecycle.Transition(before, tc.event, lifecycle.Payload{
				Plan:        validPlan(),
				Job:         &models.ActiveJob{Provider: "runway-gen4", JobID: "x"},
				ArtifactRef: "ref",
				Error:       &models.ErrorInfo{Kind: "fatal", Message: "boom"},
			})
			require.Error(t, err)

			var ite *lifecycle.InvalidTransitionError
			require.True(t, errors.As(err, &ite))
			assert.Equal(t, tc.status, ite.From)
			assert.Equal(t, tc.event, ite.Event)
			assert.Equal(t, before.Status, after.Status)
			assert.Equal(t, before.Progress, after.Progress)
		})
	}
}

func TestArtifactRefOnlyOnCompleted(t *testing.T) {
	p := newProject(models.StatusGenerating)

	_, err := lifecycle.Transition(p, lifecycle.EventGenerationCompleted, lifecycle.Payload{})
	require.Error(t, err, "completion without an artifact ref must be rejected")

	done, err := lifecycle.Transition(p, lifecycle.EventGenerationCompleted, lifecycle.Payload{ArtifactRef: "ref-1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, "ref-1", done.ArtifactRef)

	failed, err := lifecycle.Transition(p, lifecycle.EventGenerationFailed, lifecycle.Payload{Error: &models.ErrorInfo{Kind: "timeout", Message: "gave up"}})
	require.NoError(t, err)
	assert.Empty(t, failed.ArtifactRef)
}

func TestRetryFromFailedClearsError(t *testing.T) {
	p := newProject(models.StatusGenerating)
	p, err := lifecycle.Transition(p, lifecycle.EventGenerationFailed, lifecycle.Payload{
		Error: &models.ErrorInfo{Kind: "transient", Message: "rate limited"},
	})
	require.NoError(t, err)
	require.NotNil(t, p.Error)
	assert.Nil(t, p.ActiveJob)

	p, err = lifecycle.Transition(p, lifecycle.EventGenerationStarted, lifecycle.Payload{
		Job: &models.ActiveJob{Provider: "runway-gen3", JobID: "job-2", Attempt: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusGenerating, p.Status)
	assert.Nil(t, p.Error)
	assert.Zero(t, p.Progress)
	assert.NotNil(t, p.Plan, "plan survives a failed attempt")
}

func TestChatEditRecordsTurnEvenWhenNotApplied(t *testing.T) {
	p := newProject(models.StatusPlanned)

	p, err := lifecycle.Transition(p, lifecycle.EventPlanEdited, lifecycle.Payload{
		ChatTurn: &models.ChatTurn{Message: "make it shorter", Response: "done", Applied: true},
		Plan: &models.GenerationPlan{
			Version:     models.PlanVersion,
			Description: "shorter neon showcase",
			DurationSec: 6,
			AspectRatio: "9:16",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPlanned, p.Status)
	assert.Len(t, p.ChatLog, 1)
	assert.Equal(t, 6.0, p.Plan.DurationSec)

	// No-op response: turn appended, plan untouched.
	p, err = lifecycle.Transition(p, lifecycle.EventPlanEdited, lifecycle.Payload{
		ChatTurn: &models.ChatTurn{Message: "do nothing", Response: "no change needed", Applied: false},
	})
	require.NoError(t, err)
	assert.Len(t, p.ChatLog, 2)
	assert.Equal(t, 6.0, p.Plan.DurationSec)
}

func TestChatEditRejectsInvalidPlan(t *testing.T) {
	p := newProject(models.StatusPlanned)
	before := p.Plan.Clone()

	_, err := lifecycle.Transition(p, lifecycle.EventPlanEdited, lifecycle.Payload{
		ChatTurn: &models.ChatTurn{Message: "stretch to five minutes", Response: "ok"},
		Plan: &models.GenerationPlan{
			Version:     models.PlanVersion,
			Description: "way too long",
			DurationSec: 300,
			AspectRatio: "9:16",
		},
	})
	require.Error(t, err)
	assert.Equal(t, before.DurationSec, p.Plan.DurationSec)
}

func TestProgressMonotonicWithinAttempt(t *testing.T) {
	p := newProject(models.StatusGenerating)

	updates := []float64{0.1, 0.05, 0.3, 0.2, 0.3, 0.85, 0.4}
	last := 0.0
	for _, u := range updates {
		var err error
		p, err = lifecycle.Transition(p, lifecycle.EventProgressUpdated, lifecycle.Payload{Progress: u})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p.Progress, last)
		last = p.Progress
	}
	assert.Equal(t, 0.85, p.Progress)
	assert.Equal(t, len(updates), p.ActiveJob.PollAttempts)
}

func TestGenerationStartedRequiresPlan(t *testing.T) {
	p := newProject(models.StatusPlanned)
	p.Plan = nil

	_, err := lifecycle.Transition(p, lifecycle.EventGenerationStarted, lifecycle.Payload{
		Job: &models.ActiveJob{Provider: "runway-gen4", JobID: "j"},
	})
	require.Error(t, err)
}

func TestUploadMergesInputRefs(t *testing.T) {
	p := newProject(models.StatusCreated)

	p, err := lifecycle.Transition(p, lifecycle.EventUploadStarted, lifecycle.Payload{
		Inputs: &models.InputRefs{SampleRef: "sample-v1"},
	})
	require.NoError(t, err)

	p, err = lifecycle.Transition(p, lifecycle.EventUploadStarted, lifecycle.Payload{
		Inputs: &models.InputRefs{AudioRef: "audio-v1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sample-v1", p.Inputs.SampleRef)
	assert.Equal(t, "audio-v1", p.Inputs.AudioRef)

	// Re-uploading a kind replaces the earlier ref.
	p, err = lifecycle.Transition(p, lifecycle.EventUploadStarted, lifecycle.Payload{
		Inputs: &models.InputRefs{SampleRef: "sample-v2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sample-v2", p.Inputs.SampleRef)
	assert.Equal(t, "audio-v1", p.Inputs.AudioRef)
}

func TestAnalysisRetrySelfEdge(t *testing.T) {
	p := newProject(models.StatusAnalyzing)
	p, err := lifecycle.Transition(p, lifecycle.EventAnalysisStarted, lifecycle.Payload{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAnalyzing, p.Status)
}
