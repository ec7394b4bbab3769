package providers

import (
	"context"
	"fmt"

	genai "google.golang.org/genai"

	"reelforge-backend/internal/models"
)

// VeoClient generates video through the Gemini API's long-running Veo
// operations. One instance serves a single model id (veo-3.0, veo-2.0).
type VeoClient struct {
	id        string
	modelName string
	cli       *genai.Client
}

// NewVeoClient builds a veo adapter. A nil genai client (no API key
// configured) leaves the adapter registered but unavailable, matching how
// selection skips backends that cannot serve traffic.
func NewVeoClient(id, modelName string, cli *genai.Client) *VeoClient {
	return &VeoClient{id: id, modelName: modelName, cli: cli}
}

func (c *VeoClient) ID() string      { return c.id }
func (c *VeoClient) Kind() string    { return "veo" }
func (c *VeoClient) Available() bool { return c.cli != nil }

func (c *VeoClient) Submit(ctx context.Context, plan *models.GenerationPlan) (JobHandle, error) {
	if c.cli == nil {
		return JobHandle{}, &SubmissionError{Provider: c.id, Reason: "provider not configured"}
	}
	cfg := &genai.GenerateVideosConfig{
		AspectRatio:    plan.AspectRatio,
		NegativePrompt: plan.NegativePrompt,
	}
	op, err := c.cli.Models.GenerateVideos(ctx, c.modelName, planPrompt(plan), nil, cfg)
	if err != nil {
		return JobHandle{}, &TransientError{Provider: c.id, Err: err}
	}
	if op == nil || op.Name == "" {
		return JobHandle{}, &SubmissionError{Provider: c.id, Reason: "no operation name returned"}
	}
	return JobHandle{Provider: c.id, JobID: op.Name}, nil
}

func (c *VeoClient) Poll(ctx context.Context, handle JobHandle) (PollResult, error) {
	if c.cli == nil {
		return PollResult{}, fmt.Errorf("provider %s not configured", c.id)
	}
	// The operation is rebuilt from its persisted name so polling works
	// across process restarts.
	op := &genai.GenerateVideosOperation{Name: handle.JobID}
	op, err := c.cli.Operations.GetVideosOperation(ctx, op, nil)
	if err != nil {
		return PollResult{}, &TransientError{Provider: c.id, Err: err}
	}

	if !op.Done {
		return PollResult{State: StatePending, RemoteStatus: "RUNNING"}, nil
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 ||
		op.Response.GeneratedVideos[0].Video == nil ||
		op.Response.GeneratedVideos[0].Video.URI == "" {
		return PollResult{
			State:         StateFailed,
			RemoteStatus:  "DONE",
			FailureReason: "operation finished without generated video",
		}, nil
	}
	return PollResult{
		State:        StateSucceeded,
		RemoteStatus: "DONE",
		OutputURL:    op.Response.GeneratedVideos[0].Video.URI,
	}, nil
}

// Cancel is a no-op: the Veo operations API exposes no cancellation.
func (c *VeoClient) Cancel(ctx context.Context, handle JobHandle) error {
	return nil
}
