package improve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-agent/backend/internal/answer"
	"github.com/civic-agent/backend/internal/configstore"
	"github.com/civic-agent/backend/internal/evaluation"
	"github.com/civic-agent/backend/internal/llm"
	"github.com/civic-agent/backend/internal/retrieval"
	"github.com/civic-agent/backend/pkg/config"
)

func testStore(t *testing.T, maxRounds int) *configstore.Store {
	t.Helper()
	return configstore.New(config.PipelineConfig{
		RelevanceThreshold:            0.70,
		ToneThreshold:                 0.60,
		CompletenessThreshold:         0.70,
		PolicyComplianceThreshold:     0.80,
		SimilarityThreshold:           0.65,
		MaxResultsPerSearch:           5,
		MaxImprovementRounds:          maxRounds,
		RegressionSimilarityThreshold: 0.70,
	}, nil)
}

func passingVerdict() *evaluation.Verdict {
	return &evaluation.Verdict{
		Scores: map[evaluation.Dimension]float64{
			evaluation.DimensionRelevance:        0.9,
			evaluation.DimensionTone:             0.9,
			evaluation.DimensionCompleteness:     0.9,
			evaluation.DimensionPolicyCompliance: 0.9,
		},
		Passed:      true,
		Suggestions: map[evaluation.Dimension]string{},
	}
}

func failingVerdict() *evaluation.Verdict {
	return &evaluation.Verdict{
		Scores: map[evaluation.Dimension]float64{
			evaluation.DimensionRelevance:        0.4,
			evaluation.DimensionTone:             0.9,
			evaluation.DimensionCompleteness:     0.5,
			evaluation.DimensionPolicyCompliance: 0.9,
		},
		Passed:           false,
		FailedDimensions: []evaluation.Dimension{evaluation.DimensionRelevance, evaluation.DimensionCompleteness},
		Suggestions:      map[evaluation.Dimension]string{evaluation.DimensionRelevance: "answer the actual question"},
	}
}

const passingJudgeJSON = `{
	"relevance": 0.9, "tone": 0.9, "completeness": 0.9, "policy_compliance": 0.9,
	"hallucination_detected": false, "ungrounded_claims": [], "suggestions": {}
}`

const failingJudgeJSON = `{
	"relevance": 0.4, "tone": 0.9, "completeness": 0.5, "policy_compliance": 0.9,
	"hallucination_detected": false, "ungrounded_claims": [], "suggestions": {}
}`

func TestPassingVerdictMakesZeroGenerationCalls(t *testing.T) {
	store := testStore(t, 2)
	mock := &llm.MockCompleter{}
	im := NewImprover(mock, evaluation.NewEvaluator(mock, store), store)

	draft := &answer.Draft{Text: "original answer"}
	result := im.Run(context.Background(), "q", draft, passingVerdict(), retrieval.Context{})

	assert.Equal(t, StateNotNeeded, result.State)
	assert.Equal(t, "original answer", result.Answer)
	assert.Equal(t, "original answer", result.OriginalAnswer)
	assert.Empty(t, mock.Calls, "no generation call may happen when round 0 passed")
	assert.Len(t, result.History, 1)
	assert.False(t, result.Improved())
}

func TestZeroRoundBudgetReturnsExhaustedImmediately(t *testing.T) {
	store := testStore(t, 0)
	mock := &llm.MockCompleter{}
	im := NewImprover(mock, evaluation.NewEvaluator(mock, store), store)

	draft := &answer.Draft{Text: "original answer"}
	result := im.Run(context.Background(), "q", draft, failingVerdict(), retrieval.Context{})

	assert.Equal(t, StateExhausted, result.State)
	assert.Equal(t, "original answer", result.Answer)
	assert.Len(t, result.History, 1)
	assert.Empty(t, mock.Calls)
}

func TestConvergesWhenRewritePasses(t *testing.T) {
	store := testStore(t, 2)
	// Call 1: rewrite. Call 2: judge verdict that passes.
	mock := &llm.MockCompleter{Responses: []string{"better answer", passingJudgeJSON}}
	im := NewImprover(mock, evaluation.NewEvaluator(mock, store), store)

	draft := &answer.Draft{Text: "weak answer"}
	result := im.Run(context.Background(), "q", draft, failingVerdict(), retrieval.Context{})

	assert.Equal(t, StateConverged, result.State)
	assert.Equal(t, "better answer", result.Answer)
	assert.Equal(t, "weak answer", result.OriginalAnswer)
	assert.Equal(t, 1, result.RoundsUsed)
	require.Len(t, result.History, 2)
	assert.True(t, result.History[1].Passed)
	assert.Equal(t, []string{"relevance", "completeness"}, result.ImprovementsApplied)
}

func TestExhaustsBudgetAndKeepsLastRewrite(t *testing.T) {
	store := testStore(t, 2)
	// Round 1: rewrite + failing judge. Round 2: rewrite, no re-eval at the
	// final round, so the loop exits EXHAUSTED with the last text.
	mock := &llm.MockCompleter{Responses: []string{"rewrite one", failingJudgeJSON, "rewrite two"}}
	im := NewImprover(mock, evaluation.NewEvaluator(mock, store), store)

	draft := &answer.Draft{Text: "weak answer"}
	result := im.Run(context.Background(), "q", draft, failingVerdict(), retrieval.Context{})

	assert.Equal(t, StateExhausted, result.State)
	assert.Equal(t, "rewrite two", result.Answer)
	assert.Equal(t, 2, result.RoundsUsed)
	assert.Len(t, result.History, 2)
	assert.Len(t, mock.Calls, 3)
}

func TestTerminatesWithinBudgetRegardlessOfVerdicts(t *testing.T) {
	for maxRounds := 0; maxRounds <= 5; maxRounds++ {
		store := testStore(t, maxRounds)
		mock := &llm.MockCompleter{Responses: []string{failingJudgeJSON}}
		im := NewImprover(mock, evaluation.NewEvaluator(mock, store), store)

		draft := &answer.Draft{Text: "weak answer"}
		result := im.Run(context.Background(), "q", draft, failingVerdict(), retrieval.Context{})

		assert.LessOrEqual(t, result.RoundsUsed, maxRounds)
		assert.LessOrEqual(t, len(result.History), maxRounds+1)
		assert.Equal(t, StateExhausted, result.State)
	}
}

func TestGenerationFailureKeepsLastGoodAnswer(t *testing.T) {
	store := testStore(t, 3)
	mock := &llm.MockCompleter{Err: llm.ErrGenerationUnavailable}
	im := NewImprover(mock, evaluation.NewEvaluator(mock, store), store)

	draft := &answer.Draft{Text: "original answer"}
	result := im.Run(context.Background(), "q", draft, failingVerdict(), retrieval.Context{})

	assert.Equal(t, StateExhausted, result.State)
	assert.Equal(t, "original answer", result.Answer)
	assert.Equal(t, 0, result.RoundsUsed)
}

func TestHallucinationAloneKeepsLoopRunning(t *testing.T) {
	store := testStore(t, 1)
	mock := &llm.MockCompleter{Responses: []string{"grounded rewrite"}}
	im := NewImprover(mock, evaluation.NewEvaluator(mock, store), store)

	verdict := passingVerdict()
	verdict.Passed = false
	verdict.HallucinationDetected = true

	draft := &answer.Draft{Text: "hallucinated answer"}
	result := im.Run(context.Background(), "q", draft, verdict, retrieval.Context{})

	assert.Equal(t, "grounded rewrite", result.Answer)
	assert.Equal(t, 1, result.RoundsUsed)
}
