package analysis_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelforge-backend/internal/analysis"
	"reelforge-backend/internal/models"
)

type fakeGenerator struct {
	reply json.RawMessage
	err   error
	calls int
}

func (f *fakeGenerator) GenerateJSON(_ context.Context, _ string, _ any) (json.RawMessage, error) {
	f.calls++
	return f.reply, f.err
}

func TestAnalyzeReturnsAnalysisAndValidPlan(t *testing.T) {
	gen := &fakeGenerator{reply: json.RawMessage(`{
		"analysis": {"summary": "upbeat sneaker ad", "duration_sec": 12, "aspect_ratio": "9:16", "has_audio": true},
		"plan": {"version": 1, "description": "sneaker showcase with quick cuts", "style": "energetic",
			"duration_sec": 12, "aspect_ratio": "9:16",
			"scenes": [{"index": 0, "description": "close-up on laces", "duration_sec": 4}]}
	}`)}

	a := analysis.New(gen)
	result, plan, err := a.Analyze(context.Background(), models.InputRefs{SampleRef: "users/u/projects/p/sample/in.mp4"})
	require.NoError(t, err)
	assert.Equal(t, "upbeat sneaker ad", result.Summary)
	assert.Equal(t, 12.0, plan.DurationSec)
	assert.Equal(t, 1, gen.calls, "exactly one external call, no internal retries")
}

func TestAnalyzeRequiresSample(t *testing.T) {
	a := analysis.New(&fakeGenerator{})
	_, _, err := a.Analyze(context.Background(), models.InputRefs{})
	require.Error(t, err)
}

func TestAnalyzeSurfacesCallFailure(t *testing.T) {
	gen := &fakeGenerator{err: assert.AnError}
	a := analysis.New(gen)
	_, _, err := a.Analyze(context.Background(), models.InputRefs{SampleRef: "s"})
	require.Error(t, err)
	assert.Equal(t, 1, gen.calls)
}

func TestAnalyzeRejectsInvalidPlan(t *testing.T) {
	gen := &fakeGenerator{reply: json.RawMessage(`{
		"analysis": {"summary": "ok"},
		"plan": {"version": 1, "description": "too long", "duration_sec": 900, "aspect_ratio": "9:16"}
	}`)}
	a := analysis.New(gen)
	_, _, err := a.Analyze(context.Background(), models.InputRefs{SampleRef: "s"})
	require.Error(t, err)
}

func TestAnalyzeRejectsIncompleteDocument(t *testing.T) {
	gen := &fakeGenerator{reply: json.RawMessage(`{"analysis": {"summary": "ok"}}`)}
	a := analysis.New(gen)
	_, _, err := a.Analyze(context.Background(), models.InputRefs{SampleRef: "s"})
	require.Error(t, err)
}
