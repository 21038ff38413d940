package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/civic-agent/backend/internal/configstore"
	"github.com/civic-agent/backend/internal/llm"
	"github.com/civic-agent/backend/internal/retrieval"
	"github.com/civic-agent/backend/pkg/logger"
)

// Evaluator scores a candidate answer with a second model call and applies
// the currently resolved thresholds. A judge failure of any kind degrades
// to a documented default verdict; it never crashes the pipeline.
type Evaluator struct {
	completer llm.Completer
	config    *configstore.Store
}

func NewEvaluator(completer llm.Completer, config *configstore.Store) *Evaluator {
	return &Evaluator{
		completer: completer,
		config:    config,
	}
}

const judgeSystemPrompt = `You are a strict quality reviewer for answers given to citizens by a public-sector assistant.

Score the candidate answer on four dimensions, each between 0.0 and 1.0:
1. relevance: does it answer the question asked?
2. tone: is it clear, respectful and appropriate for a citizen?
3. completeness: does it cover the necessary steps and conditions?
4. policy_compliance: does it stay within the provided documents and official policy?

Also decide whether the answer contains claims not grounded in the supporting documents.

Return ONLY a JSON object with this exact shape:
{
  "relevance": 0.0,
  "tone": 0.0,
  "completeness": 0.0,
  "policy_compliance": 0.0,
  "hallucination_detected": false,
  "ungrounded_claims": [],
  "suggestions": {"relevance": "", "tone": "", "completeness": "", "policy_compliance": ""}
}`

// Evaluate runs one judge call and returns the thresholded verdict.
func (e *Evaluator) Evaluate(ctx context.Context, question, answer string, docs retrieval.Context) *Verdict {
	start := time.Now()
	thresholds := e.config.Thresholds()

	userPrompt := fmt.Sprintf(`Question: %s

Candidate answer:
%s

%s

Evaluate the candidate answer.`, question, answer, docs.FormatForPrompt())

	resp, err := e.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: judgeSystemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.1,
		MaxTokens:    600,
	})
	if err != nil {
		logger.Warn("Judge call failed, applying default verdict", zap.Error(err))
		return defaultVerdict(time.Since(start))
	}

	parsed, ok := parseJudgeOutput(resp.Content)
	if !ok {
		logger.Warn("Judge output unparsable, applying default verdict",
			zap.Int("output_length", len(resp.Content)),
		)
		return defaultVerdict(time.Since(start))
	}

	verdict := applyThresholds(parsed, thresholds)
	verdict.LatencyMS = time.Since(start).Milliseconds()

	logger.Debug("Answer evaluated",
		zap.Float64("overall_score", verdict.OverallScore()),
		zap.Bool("passed", verdict.Passed),
		zap.Bool("hallucination", verdict.HallucinationDetected),
	)

	return verdict
}

type judgeOutput struct {
	Relevance             *float64          `json:"relevance"`
	Tone                  *float64          `json:"tone"`
	Completeness          *float64          `json:"completeness"`
	PolicyCompliance      *float64          `json:"policy_compliance"`
	HallucinationDetected bool              `json:"hallucination_detected"`
	UngroundedClaims      []string          `json:"ungrounded_claims"`
	Suggestions           map[string]string `json:"suggestions"`
}

// parseJudgeOutput strips code-fence markers and parses the verdict JSON.
// All four scores must be present for the output to count as well-formed.
func parseJudgeOutput(content string) (*judgeOutput, bool) {
	cleaned := stripCodeFences(content)

	var out judgeOutput
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, false
	}

	if out.Relevance == nil || out.Tone == nil || out.Completeness == nil || out.PolicyCompliance == nil {
		return nil, false
	}

	return &out, true
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		return strings.TrimSpace(trimmed)
	}

	return trimmed
}

func applyThresholds(out *judgeOutput, thresholds configstore.Thresholds) *Verdict {
	scores := map[Dimension]float64{
		DimensionRelevance:        clampScore(*out.Relevance),
		DimensionTone:             clampScore(*out.Tone),
		DimensionCompleteness:     clampScore(*out.Completeness),
		DimensionPolicyCompliance: clampScore(*out.PolicyCompliance),
	}

	floors := map[Dimension]float64{
		DimensionRelevance:        thresholds.Relevance,
		DimensionTone:             thresholds.Tone,
		DimensionCompleteness:     thresholds.Completeness,
		DimensionPolicyCompliance: thresholds.PolicyCompliance,
	}

	var failed []Dimension
	for _, d := range AllDimensions {
		if scores[d] < floors[d] {
			failed = append(failed, d)
		}
	}

	suggestions := make(map[Dimension]string)
	for _, d := range AllDimensions {
		if text, ok := out.Suggestions[string(d)]; ok && text != "" {
			suggestions[d] = text
		}
	}

	return &Verdict{
		Scores:                scores,
		Passed:                len(failed) == 0 && !out.HallucinationDetected,
		FailedDimensions:      failed,
		HallucinationDetected: out.HallucinationDetected,
		UngroundedClaims:      out.UngroundedClaims,
		Suggestions:           suggestions,
	}
}

// defaultVerdict is the documented fallback for a judge failure: moderate
// scores, not passed, relevance and completeness marked for improvement.
func defaultVerdict(elapsed time.Duration) *Verdict {
	return &Verdict{
		Scores: map[Dimension]float64{
			DimensionRelevance:        0.5,
			DimensionTone:             0.7,
			DimensionCompleteness:     0.5,
			DimensionPolicyCompliance: 0.5,
		},
		Passed:           false,
		FailedDimensions: []Dimension{DimensionRelevance, DimensionCompleteness},
		Suggestions:      map[Dimension]string{},
		LatencyMS:        elapsed.Milliseconds(),
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
