// Package regression replays a curated golden answer set through the full
// answering path and compares the fresh answers against the references.
package regression

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/civic-agent/backend/internal/configstore"
	"github.com/civic-agent/backend/pkg/logger"
)

// AnswerFunc produces a fresh answer for a question, typically backed by
// the full pipeline.
type AnswerFunc func(ctx context.Context, question string) (string, error)

type CaseResult struct {
	GoldenID   string  `json:"golden_id"`
	Question   string  `json:"question"`
	Similarity float64 `json:"similarity"`
	Passed     bool    `json:"passed"`
	Error      string  `json:"error,omitempty"`
}

type RunResult struct {
	TotalCases int          `json:"total_cases"`
	Passed     int          `json:"passed"`
	Failed     int          `json:"failed"`
	PassRate   float64      `json:"pass_rate"`
	Cases      []CaseResult `json:"cases"`
	DurationMS int64        `json:"duration_ms"`
	StartedAt  time.Time    `json:"started_at"`
}

// Harness runs the golden set sequentially and keeps the most recent
// result for inspection.
type Harness struct {
	goldens *Goldens
	run     AnswerFunc
	config  *configstore.Store

	mu   sync.Mutex
	last *RunResult
}

func NewHarness(goldens *Goldens, run AnswerFunc, config *configstore.Store) *Harness {
	return &Harness{goldens: goldens, run: run, config: config}
}

// Run replays every active golden answer. A per-case pipeline failure is
// recorded as a failed case, never aborts the run. An empty golden set
// yields a pass rate of 1.0.
func (h *Harness) Run(ctx context.Context) (*RunResult, error) {
	goldens, err := h.goldens.List(true)
	if err != nil {
		return nil, err
	}

	threshold := h.config.RegressionSimilarityThreshold()
	start := time.Now()

	result := &RunResult{
		TotalCases: len(goldens),
		Cases:      make([]CaseResult, 0, len(goldens)),
		StartedAt:  start,
	}

	for _, golden := range goldens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		caseResult := CaseResult{GoldenID: golden.ID, Question: golden.Question}

		fresh, err := h.run(ctx, golden.Question)
		if err != nil {
			caseResult.Error = err.Error()
			logger.Warn("Regression case failed to produce an answer",
				zap.String("golden_id", golden.ID),
				zap.Error(err),
			)
		} else {
			caseResult.Similarity = Similarity(fresh, golden.ReferenceAnswer)
			caseResult.Passed = caseResult.Similarity >= threshold
		}

		if caseResult.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, caseResult)
	}

	if result.TotalCases == 0 {
		result.PassRate = 1.0
	} else {
		result.PassRate = float64(result.Passed) / float64(result.TotalCases)
	}
	result.DurationMS = time.Since(start).Milliseconds()

	logger.Info("Regression run finished",
		zap.Int("total", result.TotalCases),
		zap.Int("passed", result.Passed),
		zap.Float64("pass_rate", result.PassRate),
	)

	h.mu.Lock()
	h.last = result
	h.mu.Unlock()

	return result, nil
}

// LastResult returns the most recent run, or nil when none has finished.
func (h *Harness) LastResult() *RunResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}
