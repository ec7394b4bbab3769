// Package planchat applies conversational edit instructions to a
// generation plan. The mutator is stateless beyond its arguments: it either
// returns a new validated plan or reports that no change was applied, and
// the caller persists the chat turn in both cases.
package planchat

import (
	"context"
	"encoding/json"
	"fmt"

	"reelforge-backend/internal/llm"
	"reelforge-backend/internal/models"
)

const mutatePrompt = `You are editing the generation plan for a short-form video. Apply
the user's instruction to the current plan. If the instruction asks for nothing the plan
schema can express, leave the plan unchanged and explain why in the reply.

The plan schema: version must stay 1, description is required, duration_sec must be in
(0, 60], aspect_ratio must be one of "9:16", "16:9", "1:1", "4:5".

Reply with a single JSON object:
{
  "plan": { ...the full updated plan... },
  "reply": string,
  "changed": bool
}`

// MutationError means the model reply could not be turned into a valid
// plan. The existing plan is kept as-is.
type MutationError struct {
	Reason string
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("plan mutation rejected: %s", e.Reason)
}

// Result is the outcome of one edit instruction.
type Result struct {
	// Plan is the post-edit plan; equal to the input plan when the edit
	// was a no-op.
	Plan *models.GenerationPlan
	// Reply is the assistant's user-facing response.
	Reply string
	// Applied reports whether the plan actually changed.
	Applied bool
}

type Mutator struct {
	gen llm.Generator
}

func New(gen llm.Generator) *Mutator {
	return &Mutator{gen: gen}
}

type mutateInput struct {
	Plan        *models.GenerationPlan `json:"plan"`
	Instruction string                 `json:"instruction"`
	History     []models.ChatTurn      `json:"history,omitempty"`
}

type mutateOutput struct {
	Plan    *models.GenerationPlan `json:"plan"`
	Reply   string                 `json:"reply"`
	Changed bool                   `json:"changed"`
}

// Mutate applies instruction to plan. The returned plan is always valid
// against the plan schema; a reply that fails validation is rejected with
// MutationError rather than persisted.
func (m *Mutator) Mutate(ctx context.Context, plan *models.GenerationPlan, instruction string, history []models.ChatTurn) (*Result, error) {
	if plan == nil {
		return nil, fmt.Errorf("no plan to edit")
	}

	raw, err := m.gen.GenerateJSON(ctx, mutatePrompt, mutateInput{
		Plan:        plan,
		Instruction: instruction,
		History:     history,
	})
	if err != nil {
		return nil, fmt.Errorf("mutation call failed: %w", err)
	}

	var out mutateOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &MutationError{Reason: fmt.Sprintf("malformed reply: %v", err)}
	}
	if !out.Changed {
		return &Result{Plan: plan, Reply: out.Reply, Applied: false}, nil
	}
	if out.Plan == nil {
		return nil, &MutationError{Reason: "reply claims a change but carries no plan"}
	}
	if err := out.Plan.Validate(); err != nil {
		return nil, &MutationError{Reason: err.Error()}
	}
	return &Result{Plan: out.Plan, Reply: out.Reply, Applied: true}, nil
}
