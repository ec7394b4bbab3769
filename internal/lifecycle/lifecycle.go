// Package lifecycle implements the project state machine. Transition is a
// pure function over project values: it performs no I/O, so every allowed
// and forbidden edge can be exercised deterministically in tests. All
// project mutation in the service goes through it.
package lifecycle

import (
	"fmt"
	"time"

	"reelforge-backend/internal/models"
)

// Event identifies a requested state change.
type Event string

const (
	EventUploadStarted       Event = "upload_started"
	EventAnalysisStarted     Event = "analysis_started"
	EventAnalysisCompleted   Event = "analysis_completed"
	EventPlanEdited          Event = "plan_edited"
	EventGenerationStarted   Event = "generation_started"
	EventJobResubmitted      Event = "job_resubmitted"
	EventProgressUpdated     Event = "progress_updated"
	EventGenerationCompleted Event = "generation_completed"
	EventGenerationFailed    Event = "generation_failed"
)

// InvalidTransitionError reports an event submitted against a project whose
// current status does not permit it. The project is left unchanged.
type InvalidTransitionError struct {
	From  models.Status
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: event %q not allowed from status %q", e.Event, e.From)
}

// allowedSources lists, per event, the statuses the event may fire from.
var allowedSources = map[Event][]models.Status{
	EventUploadStarted:     {models.StatusCreated, models.StatusUploading},
	EventAnalysisStarted:   {models.StatusUploading, models.StatusAnalyzing},
	EventAnalysisCompleted: {models.StatusAnalyzing},
	EventPlanEdited:        {models.StatusPlanned},
	EventGenerationStarted: {models.StatusPlanned, models.StatusFailed},
	EventJobResubmitted:    {models.StatusGenerating},
	EventProgressUpdated:   {models.StatusGenerating},
	EventGenerationCompleted: {models.StatusGenerating},
	EventGenerationFailed:    {models.StatusGenerating},
}

func allowed(event Event, from models.Status) bool {
	for _, s := range allowedSources[event] {
		if s == from {
			return true
		}
	}
	return false
}

// Payload carries the event-specific data applied during a transition.
// Only the fields relevant to the event are consulted.
type Payload struct {
	Inputs   *models.InputRefs
	Analysis *models.AnalysisResult
	Plan     *models.GenerationPlan
	ChatTurn *models.ChatTurn
	Job      *models.ActiveJob
	Progress float64
	Eta      int
	RemoteState string
	ArtifactRef string
	Error    *models.ErrorInfo
	Now      time.Time
}

// Transition validates event against the project's current status and
// returns the post-state. On error the input project is returned unchanged;
// callers must persist the returned value to make the transition effective.
func Transition(p models.Project, event Event, payload Payload) (models.Project, error) {
	if !allowed(event, p.Status) {
		return p, &InvalidTransitionError{From: p.Status, Event: event}
	}

	now := payload.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	next := p.Clone()
	switch event {
	case EventUploadStarted:
		next.Status = models.StatusUploading
		if payload.Inputs != nil {
			if payload.Inputs.SampleRef != "" {
				next.Inputs.SampleRef = payload.Inputs.SampleRef
			}
			if payload.Inputs.CharacterRef != "" {
				next.Inputs.CharacterRef = payload.Inputs.CharacterRef
			}
			if payload.Inputs.AudioRef != "" {
				next.Inputs.AudioRef = payload.Inputs.AudioRef
			}
		}

	case EventAnalysisStarted:
		next.Status = models.StatusAnalyzing

	case EventAnalysisCompleted:
		if payload.Plan == nil {
			return p, fmt.Errorf("analysis completed without a plan")
		}
		if err := payload.Plan.Validate(); err != nil {
			return p, fmt.Errorf("analysis produced invalid plan: %w", err)
		}
		next.Status = models.StatusPlanned
		next.Analysis = payload.Analysis
		next.Plan = payload.Plan.Clone()

	case EventPlanEdited:
		// Status stays planned; the chat turn is recorded whether or not
		// the edit was applied, and the plan only changes on a valid edit.
		if payload.ChatTurn != nil {
			turn := *payload.ChatTurn
			if turn.CreatedAt.IsZero() {
				turn.CreatedAt = now
			}
			next.ChatLog = append(next.ChatLog, turn)
		}
		if payload.Plan != nil {
			if err := payload.Plan.Validate(); err != nil {
				return p, fmt.Errorf("edited plan rejected: %w", err)
			}
			next.Plan = payload.Plan.Clone()
		}

	case EventGenerationStarted:
		if next.Plan == nil {
			return p, fmt.Errorf("generation started without a plan")
		}
		if payload.Job == nil {
			return p, fmt.Errorf("generation started without a job descriptor")
		}
		job := *payload.Job
		next.Status = models.StatusGenerating
		next.ActiveJob = &job
		next.Progress = 0
		next.EtaSeconds = 0
		next.Error = nil

	case EventJobResubmitted:
		// Transient-failure recovery: the status stays generating but a
		// fresh job attempt replaces the descriptor and progress resets.
		if payload.Job == nil {
			return p, fmt.Errorf("resubmission without a job descriptor")
		}
		job := *payload.Job
		next.ActiveJob = &job
		next.Progress = 0
		next.EtaSeconds = 0

	case EventProgressUpdated:
		// Monotonic within a job attempt: never move progress backwards.
		if payload.Progress > next.Progress {
			next.Progress = payload.Progress
		}
		next.EtaSeconds = payload.Eta
		if next.ActiveJob != nil {
			next.ActiveJob.PollAttempts++
			if payload.RemoteState != "" && payload.RemoteState != next.ActiveJob.LastRemoteState {
				next.ActiveJob.LastRemoteState = payload.RemoteState
				next.ActiveJob.LastChangeAt = now
			}
		}

	case EventGenerationCompleted:
		if payload.ArtifactRef == "" {
			return p, fmt.Errorf("generation completed without an artifact reference")
		}
		next.Status = models.StatusCompleted
		next.ArtifactRef = payload.ArtifactRef
		next.Progress = 1
		next.EtaSeconds = 0
		next.ActiveJob = nil

	case EventGenerationFailed:
		if payload.Error == nil {
			return p, fmt.Errorf("generation failed without an error descriptor")
		}
		err := *payload.Error
		next.Status = models.StatusFailed
		next.Error = &err
		next.EtaSeconds = 0
		next.ActiveJob = nil

	default:
		return p, fmt.Errorf("unknown event %q", event)
	}

	next.UpdatedAt = now
	return next, nil
}
