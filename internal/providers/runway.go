package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelforge-backend/internal/models"
)

// RunwayClient drives the RunwayML generation API. One instance serves a
// single model variant (gen4-turbo, gen3-alpha) so each variant registers
// as its own provider id.
type RunwayClient struct {
	id         string
	modelName  string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type runwayGenerationRequest struct {
	Model     string  `json:"model"`
	Prompt    string  `json:"prompt"`
	Duration  float64 `json:"duration"`
	Ratio     string  `json:"ratio"`
	Seed      int     `json:"seed,omitempty"`
	Watermark bool    `json:"watermark"`
}

type runwayGenerationResponse struct {
	ID string `json:"id"`
}

type runwayTaskResponse struct {
	ID            string   `json:"id"`
	Status        string   `json:"status"` // PENDING, THROTTLED, RUNNING, SUCCEEDED, FAILED
	Progress      *float64 `json:"progress,omitempty"`
	Output        []string `json:"output,omitempty"`
	Failure       string   `json:"failure,omitempty"`
	FailureCode   string   `json:"failureCode,omitempty"`
}

// NewRunwayClient builds a runway adapter. An empty apiKey leaves the
// adapter registered but unavailable.
func NewRunwayClient(id, modelName, baseURL, apiKey string) *RunwayClient {
	return &RunwayClient{
		id:        id,
		modelName: modelName,
		baseURL:   baseURL,
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *RunwayClient) ID() string      { return c.id }
func (c *RunwayClient) Kind() string    { return "runway" }
func (c *RunwayClient) Available() bool { return c.apiKey != "" }

func (c *RunwayClient) Submit(ctx context.Context, plan *models.GenerationPlan) (JobHandle, error) {
	body := runwayGenerationRequest{
		Model:     c.modelName,
		Prompt:    planPrompt(plan),
		Duration:  plan.DurationSec,
		Ratio:     plan.AspectRatio,
		Watermark: false,
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return JobHandle{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimSuffix(c.baseURL, "/") + "/generations"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return JobHandle{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return JobHandle{}, &TransientError{Provider: c.id, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return JobHandle{}, &TransientError{Provider: c.id, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		// fall through to decode
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return JobHandle{}, &TransientError{Provider: c.id, Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))}
	default:
		return JobHandle{}, &SubmissionError{Provider: c.id, Reason: fmt.Sprintf("status %d: %s", resp.StatusCode, string(respBody))}
	}

	var result runwayGenerationResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return JobHandle{}, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	if result.ID == "" {
		return JobHandle{}, &SubmissionError{Provider: c.id, Reason: "no generation id in response"}
	}

	return JobHandle{Provider: c.id, JobID: result.ID}, nil
}

func (c *RunwayClient) Poll(ctx context.Context, handle JobHandle) (PollResult, error) {
	url := strings.TrimSuffix(c.baseURL, "/") + "/tasks/" + handle.JobID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return PollResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PollResult{}, &TransientError{Provider: c.id, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		body, _ := io.ReadAll(resp.Body)
		return PollResult{}, &TransientError{Provider: c.id, Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return PollResult{}, fmt.Errorf("failed to poll task: status %d, body: %s", resp.StatusCode, string(body))
	}

	var task runwayTaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return PollResult{}, fmt.Errorf("failed to decode response: %w", err)
	}

	out := PollResult{RemoteStatus: task.Status, ProgressHint: task.Progress}
	switch task.Status {
	case "SUCCEEDED":
		if len(task.Output) == 0 {
			return PollResult{}, fmt.Errorf("task succeeded but returned no output")
		}
		out.State = StateSucceeded
		out.OutputURL = task.Output[0]
	case "FAILED":
		out.State = StateFailed
		out.FailureReason = task.Failure
		if out.FailureReason == "" {
			out.FailureReason = "generation failed"
		}
		out.Transient = isTransientFailureCode(task.FailureCode)
	default:
		// PENDING, THROTTLED, RUNNING all mean keep waiting.
		out.State = StatePending
	}
	return out, nil
}

// Cancel asks runway to abort the task. Best effort: a 404 means the task
// already finished and is not an error.
func (c *RunwayClient) Cancel(ctx context.Context, handle JobHandle) error {
	url := strings.TrimSuffix(c.baseURL, "/") + "/tasks/" + handle.JobID
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to cancel task: status %d, body: %s", resp.StatusCode, string(body))
	}
	return nil
}

func isTransientFailureCode(code string) bool {
	switch {
	case strings.Contains(code, "THROTTLE"), strings.Contains(code, "RATE_LIMIT"),
		strings.Contains(code, "TIMEOUT"), strings.Contains(code, "INTERNAL"):
		return true
	}
	return false
}

// planPrompt flattens the plan document into the text prompt providers
// consume. Scene descriptions are appended in order after the overall
// description and style.
func planPrompt(plan *models.GenerationPlan) string {
	var b strings.Builder
	b.WriteString(plan.Description)
	if plan.Style != "" {
		b.WriteString(". Style: ")
		b.WriteString(plan.Style)
	}
	for _, scene := range plan.Scenes {
		b.WriteString(fmt.Sprintf(". Scene %d: %s", scene.Index+1, scene.Description))
	}
	if plan.NegativePrompt != "" {
		b.WriteString(". Avoid: ")
		b.WriteString(plan.NegativePrompt)
	}
	return b.String()
}
