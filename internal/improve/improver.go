// Package improve implements the iterative rewrite loop: a failed verdict
// drives a rewrite prompt, the rewrite is re-scored, and the loop continues
// until the verdict passes or the round budget runs out. The last rewrite
// is always returned best-effort, never discarded.
package improve

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/civic-agent/backend/internal/answer"
	"github.com/civic-agent/backend/internal/configstore"
	"github.com/civic-agent/backend/internal/evaluation"
	"github.com/civic-agent/backend/internal/llm"
	"github.com/civic-agent/backend/internal/retrieval"
	"github.com/civic-agent/backend/pkg/logger"
)

type State string

const (
	StateNotNeeded State = "NOT_NEEDED"
	StateImproving State = "IMPROVING"
	StateConverged State = "CONVERGED"
	StateExhausted State = "EXHAUSTED"
)

// IterationRecord is one entry of the append-only iteration ledger.
type IterationRecord struct {
	Round        int
	OverallScore float64
	PerDimension map[evaluation.Dimension]float64
	Passed       bool
}

// Result carries the loop outcome. Answer is the best-effort final text;
// OriginalAnswer is preserved verbatim for before/after comparison.
type Result struct {
	State               State
	Answer              string
	OriginalAnswer      string
	RoundsUsed          int
	History             []IterationRecord
	ImprovementsApplied []string
	FinalVerdict        *evaluation.Verdict
}

// Improved reports whether at least one rewrite was produced.
func (r *Result) Improved() bool {
	return r.RoundsUsed > 0
}

type Improver struct {
	completer llm.Completer
	evaluator *evaluation.Evaluator
	config    *configstore.Store
}

func NewImprover(completer llm.Completer, evaluator *evaluation.Evaluator, config *configstore.Store) *Improver {
	return &Improver{
		completer: completer,
		evaluator: evaluator,
		config:    config,
	}
}

const rewriteSystemPrompt = `You rewrite answers given to citizens by a public-sector assistant so that they pass quality review.

Rules:
1. Keep every factual statement grounded in the supporting documents
2. Fix ONLY the problems listed; keep everything that already works
3. Keep citations in [source_id] notation
4. Return only the rewritten answer, no commentary`

// Run executes the loop starting from an already-computed round-0 verdict.
// When the verdict already passes, no generation call is made and the
// original draft is returned unchanged.
func (im *Improver) Run(ctx context.Context, question string, draft *answer.Draft, verdict *evaluation.Verdict, docs retrieval.Context) *Result {
	return im.RunWithProgress(ctx, question, draft, verdict, docs, nil)
}

// RunWithProgress is Run with a per-round notification hook, invoked as
// each rewrite round starts. The hook may be nil.
func (im *Improver) RunWithProgress(ctx context.Context, question string, draft *answer.Draft, verdict *evaluation.Verdict, docs retrieval.Context, onRound func(round int)) *Result {
	result := &Result{
		State:          StateImproving,
		Answer:         draft.Text,
		OriginalAnswer: draft.Text,
		FinalVerdict:   verdict,
		History:        []IterationRecord{recordFor(0, verdict)},
	}

	if verdict.Passed {
		result.State = StateNotNeeded
		return result
	}

	maxRounds := im.config.MaxImprovementRounds()
	applied := make(map[string]bool)
	current := verdict
	round := 0

	for round < maxRounds && (!current.Passed || current.HallucinationDetected) {
		round++
		result.RoundsUsed = round
		if onRound != nil {
			onRound(round)
		}

		for _, d := range current.FailedDimensions {
			applied[string(d)] = true
		}

		rewritten, err := im.rewrite(ctx, question, result.Answer, current, docs)
		if err != nil {
			// Transient generation failure: keep the last good answer and
			// stop trying, the pipeline continues with what it has.
			logger.Warn("Rewrite failed, keeping previous answer",
				zap.Int("round", round),
				zap.Error(err),
			)
			result.RoundsUsed = round - 1
			break
		}

		result.Answer = rewritten

		if round < maxRounds {
			current = im.evaluator.Evaluate(ctx, question, rewritten, docs)
			result.FinalVerdict = current
			result.History = append(result.History, recordFor(round, current))

			if current.Passed {
				result.State = StateConverged
				break
			}
		}
	}

	if result.State == StateImproving {
		result.State = StateExhausted
	}

	result.ImprovementsApplied = sortedKeys(applied)

	logger.Info("Improvement loop finished",
		zap.String("state", string(result.State)),
		zap.Int("rounds_used", result.RoundsUsed),
		zap.Float64("final_score", result.FinalVerdict.OverallScore()),
	)

	return result
}

func (im *Improver) rewrite(ctx context.Context, question, current string, verdict *evaluation.Verdict, docs retrieval.Context) (string, error) {
	resp, err := im.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: rewriteSystemPrompt,
		UserPrompt:   buildRewritePrompt(question, current, verdict, docs),
		Temperature:  0.3,
		MaxTokens:    2048,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func buildRewritePrompt(question, current string, verdict *evaluation.Verdict, docs retrieval.Context) string {
	var problems strings.Builder
	for _, d := range verdict.FailedDimensions {
		problems.WriteString(fmt.Sprintf("- %s scored %.2f", d, verdict.Scores[d]))
		if suggestion, ok := verdict.Suggestions[d]; ok {
			problems.WriteString(": " + suggestion)
		}
		problems.WriteString("\n")
	}

	if verdict.HallucinationDetected {
		problems.WriteString("- contains claims not grounded in the documents")
		if len(verdict.UngroundedClaims) > 0 {
			problems.WriteString(": " + strings.Join(verdict.UngroundedClaims, "; "))
		}
		problems.WriteString("\n")
	}

	return fmt.Sprintf(`Question from a citizen: %s

Current answer:
%s

Problems found by quality review:
%s
%s

Rewrite the answer.`, question, current, problems.String(), docs.FormatForPrompt())
}

func recordFor(round int, verdict *evaluation.Verdict) IterationRecord {
	perDimension := make(map[evaluation.Dimension]float64, len(verdict.Scores))
	for d, s := range verdict.Scores {
		perDimension[d] = s
	}

	return IterationRecord{
		Round:        round,
		OverallScore: verdict.OverallScore(),
		PerDimension: perDimension,
		Passed:       verdict.Passed,
	}
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}

	var keys []string
	for _, d := range evaluation.AllDimensions {
		if set[string(d)] {
			keys = append(keys, string(d))
		}
	}
	return keys
}
