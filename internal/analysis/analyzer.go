// Package analysis turns an uploaded sample into a structured analysis and
// an initial generation plan with a single model call. The adapter does not
// retry: a failure surfaces to the caller, the project stays in analyzing,
// and the user can trigger the same action again.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"reelforge-backend/internal/llm"
	"reelforge-backend/internal/models"
)

const analysisPrompt = `You are a short-form video production assistant. Given storage
references to a sample video and optional character image and audio track, describe the
sample and draft a generation plan for producing a similar clip.

Reply with a single JSON object of the form:
{
  "analysis": {
    "summary": string,
    "duration_sec": number,
    "aspect_ratio": "9:16" | "16:9" | "1:1" | "4:5",
    "mood": string,
    "key_moments": [string],
    "has_audio": bool
  },
  "plan": {
    "version": 1,
    "description": string,
    "style": string,
    "duration_sec": number (at most 60),
    "aspect_ratio": "9:16" | "16:9" | "1:1" | "4:5",
    "scenes": [{"index": number, "description": string, "duration_sec": number}],
    "negative_prompt": string
  }
}`

// Analyzer is the analysis adapter.
type Analyzer struct {
	gen llm.Generator
}

func New(gen llm.Generator) *Analyzer {
	return &Analyzer{gen: gen}
}

type analysisInput struct {
	SampleRef    string `json:"sample_ref"`
	CharacterRef string `json:"character_ref,omitempty"`
	AudioRef     string `json:"audio_ref,omitempty"`
}

type analysisOutput struct {
	Analysis *models.AnalysisResult `json:"analysis"`
	Plan     *models.GenerationPlan `json:"plan"`
}

// Analyze produces the analysis result and initial plan for the inputs.
func (a *Analyzer) Analyze(ctx context.Context, inputs models.InputRefs) (*models.AnalysisResult, *models.GenerationPlan, error) {
	if inputs.SampleRef == "" {
		return nil, nil, fmt.Errorf("analysis requires a sample upload")
	}

	raw, err := a.gen.GenerateJSON(ctx, analysisPrompt, analysisInput{
		SampleRef:    inputs.SampleRef,
		CharacterRef: inputs.CharacterRef,
		AudioRef:     inputs.AudioRef,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("analysis call failed: %w", err)
	}

	var out analysisOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, nil, fmt.Errorf("analysis returned malformed document: %w", err)
	}
	if out.Analysis == nil || out.Plan == nil {
		return nil, nil, fmt.Errorf("analysis returned incomplete document")
	}
	if err := out.Plan.Validate(); err != nil {
		return nil, nil, fmt.Errorf("analysis produced invalid plan: %w", err)
	}
	return out.Analysis, out.Plan, nil
}
