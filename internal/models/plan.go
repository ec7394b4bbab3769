package models

import (
	"fmt"
	"strings"
)

// PlanVersion is the only schema version currently produced or accepted.
const PlanVersion = 1

var validAspectRatios = map[string]struct{}{
	"9:16": {},
	"16:9": {},
	"1:1":  {},
	"4:5":  {},
}

// Scene is one segment of the planned clip.
type Scene struct {
	Index       int     `json:"index"`
	Description string  `json:"description"`
	DurationSec float64 `json:"duration_sec"`
}

// GenerationPlan is the structured instruction document handed to a video
// provider. It is produced by the analysis adapter, edited only through the
// plan mutator, and frozen into a snapshot when generation starts. A plan
// that fails Validate is never persisted.
type GenerationPlan struct {
	Version        int     `json:"version"`
	Description    string  `json:"description"`
	Style          string  `json:"style,omitempty"`
	DurationSec    float64 `json:"duration_sec"`
	AspectRatio    string  `json:"aspect_ratio"`
	Scenes         []Scene `json:"scenes,omitempty"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
}

// Validate checks the plan against the schema used at creation time.
func (p *GenerationPlan) Validate() error {
	if p == nil {
		return fmt.Errorf("plan is nil")
	}
	if p.Version != PlanVersion {
		return fmt.Errorf("unsupported plan version %d", p.Version)
	}
	if strings.TrimSpace(p.Description) == "" {
		return fmt.Errorf("plan description is required")
	}
	if p.DurationSec <= 0 || p.DurationSec > 60 {
		return fmt.Errorf("plan duration %.1fs out of range (0, 60]", p.DurationSec)
	}
	if _, ok := validAspectRatios[p.AspectRatio]; !ok {
		return fmt.Errorf("unsupported aspect ratio %q", p.AspectRatio)
	}
	for i, scene := range p.Scenes {
		if strings.TrimSpace(scene.Description) == "" {
			return fmt.Errorf("scene %d has no description", i)
		}
		if scene.DurationSec <= 0 {
			return fmt.Errorf("scene %d duration must be positive", i)
		}
	}
	return nil
}

// Clone returns a deep copy of the plan.
func (p *GenerationPlan) Clone() *GenerationPlan {
	if p == nil {
		return nil
	}
	out := *p
	if p.Scenes != nil {
		out.Scenes = make([]Scene, len(p.Scenes))
		copy(out.Scenes, p.Scenes)
	}
	return &out
}

// AnalysisResult is the structured description of the uploaded sample,
// produced exactly once per project by the analysis adapter.
type AnalysisResult struct {
	Summary     string   `json:"summary"`
	DurationSec float64  `json:"duration_sec,omitempty"`
	AspectRatio string   `json:"aspect_ratio,omitempty"`
	Mood        string   `json:"mood,omitempty"`
	KeyMoments  []string `json:"key_moments,omitempty"`
	HasAudio    bool     `json:"has_audio"`
}
