package models

import "time"

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type ProjectResponse struct {
	ID          string          `json:"project_id"`
	Status      Status          `json:"status"`
	Inputs      InputRefs       `json:"inputs"`
	Analysis    *AnalysisResult `json:"analysis,omitempty"`
	Plan        *GenerationPlan `json:"plan,omitempty"`
	ChatLog     []ChatTurn      `json:"chat_log,omitempty"`
	Progress    float64         `json:"progress"`
	EtaSeconds  int             `json:"eta_seconds"`
	ArtifactRef string          `json:"artifact_ref,omitempty"`
	Error       *ErrorInfo      `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ProjectListResponse struct {
	Projects []ProjectSummary `json:"projects"`
}

type ProjectSummary struct {
	ID        string    `json:"project_id"`
	Status    Status    `json:"status"`
	Progress  float64   `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type UploadResponse struct {
	ProjectID string `json:"project_id"`
	Ref       string `json:"ref"`
	Size      int64  `json:"size"`
	Status    Status `json:"status"`
}

type AnalyzeResponse struct {
	ProjectID string          `json:"project_id"`
	Status    Status          `json:"status"`
	Analysis  *AnalysisResult `json:"analysis"`
	Plan      *GenerationPlan `json:"plan"`
}

type ChatResponse struct {
	ProjectID string          `json:"project_id"`
	Applied   bool            `json:"applied"`
	Response  string          `json:"response"`
	Plan      *GenerationPlan `json:"plan"`
}

type GenerateResponse struct {
	ProjectID string `json:"project_id"`
	Status    Status `json:"status"`
	Provider  string `json:"provider"`
	JobID     string `json:"job_id"`
}

type StatusResponse struct {
	ProjectID  string     `json:"project_id"`
	Status     Status     `json:"status"`
	Progress   float64    `json:"progress"`
	EtaSeconds int        `json:"eta_seconds"`
	Error      *ErrorInfo `json:"error,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type DownloadResponse struct {
	ProjectID   string `json:"project_id"`
	ArtifactRef string `json:"artifact_ref"`
	DownloadURL string `json:"download_url"`
	ExpiresIn   int    `json:"expires_in_seconds"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
