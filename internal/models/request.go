package models

type CreateProjectRequest struct {
	// Optional display name stored with the project metadata.
	Name string `json:"name,omitempty"`
}

type ChatRequest struct {
	// Natural-language edit instruction applied to the current plan.
	Message string `json:"message" binding:"required"`
}

type GenerateRequest struct {
	// Provider id, e.g. "runway-gen4". Empty means the configured
	// fallback order picks the first available provider.
	Provider string `json:"provider,omitempty"`
}
