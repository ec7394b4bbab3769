package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a project. Transitions between statuses
// are validated by the lifecycle package; nothing else should assign them.
type Status string

const (
	StatusCreated    Status = "created"
	StatusUploading  Status = "uploading"
	StatusAnalyzing  Status = "analyzing"
	StatusPlanned    Status = "planned"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further automatic transitions happen from s.
// A failed project can still be re-queued by an explicit generate call.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// InputRefs holds opaque storage references to the uploaded source assets.
// The sample video is required before analysis; character image and audio
// are optional. Refs are bucket keys, never raw bytes.
type InputRefs struct {
	SampleRef    string `json:"sample_ref,omitempty"`
	CharacterRef string `json:"character_ref,omitempty"`
	AudioRef     string `json:"audio_ref,omitempty"`
}

// ChatTurn is one (message, response) pair from the plan refinement chat.
type ChatTurn struct {
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Applied   bool      `json:"applied"`
	CreatedAt time.Time `json:"created_at"`
}

// ActiveJob describes the single outstanding generation job for a project.
// The remote job id, not local state, is the source of truth for completion,
// so a restarted process can resume supervision from this descriptor alone.
type ActiveJob struct {
	Provider        string    `json:"provider"`
	JobID           string    `json:"job_id"`
	SubmittedAt     time.Time `json:"submitted_at"`
	PollAttempts    int       `json:"poll_attempts"`
	LastRemoteState string    `json:"last_remote_state,omitempty"`
	LastChangeAt    time.Time `json:"last_change_at"`
	Attempt         int       `json:"attempt"`
}

// ErrorInfo is the last classified failure recorded on a project.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Project is the aggregate root. Fields are mutated exclusively through
// lifecycle.Transition; handlers and the orchestrator persist the returned
// copy, never a hand-edited one.
type Project struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Status      Status
	Inputs      InputRefs
	Analysis    *AnalysisResult
	Plan        *GenerationPlan
	ChatLog     []ChatTurn
	ActiveJob   *ActiveJob
	Progress    float64
	EtaSeconds  int
	ArtifactRef string
	Error       *ErrorInfo
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clone returns a deep copy so the state machine can stay a pure function
// over project values.
func (p Project) Clone() Project {
	out := p
	if p.Analysis != nil {
		a := *p.Analysis
		out.Analysis = &a
	}
	if p.Plan != nil {
		out.Plan = p.Plan.Clone()
	}
	if p.ActiveJob != nil {
		j := *p.ActiveJob
		out.ActiveJob = &j
	}
	if p.Error != nil {
		e := *p.Error
		out.Error = &e
	}
	if p.ChatLog != nil {
		out.ChatLog = make([]ChatTurn, len(p.ChatLog))
		copy(out.ChatLog, p.ChatLog)
	}
	return out
}
