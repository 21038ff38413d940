// Package escalation routes low-confidence or unverifiable exchanges to a
// human review queue and manages the one-way review lifecycle.
package escalation

import (
	"github.com/civic-agent/backend/internal/answer"
	"github.com/civic-agent/backend/internal/configstore"
	"github.com/civic-agent/backend/internal/evaluation"
	"github.com/civic-agent/backend/internal/storage/models"
)

// Gate decides whether a finished exchange needs human review. The
// priority order of the reasons is fixed.
type Gate struct {
	config *configstore.Store
}

func NewGate(config *configstore.Store) *Gate {
	return &Gate{config: config}
}

// Decide inspects the final verdict, the draft metadata and the reported
// confidence. The second return is false when no review is needed.
func (g *Gate) Decide(verdict *evaluation.Verdict, draft *answer.Draft, confidence answer.Confidence) (models.FlagReason, bool) {
	if verdict.HallucinationDetected {
		return models.FlagHallucination, true
	}

	if confidence == answer.ConfidenceLow {
		return models.FlagLowConfidence, true
	}

	if draft.NeedsHumanExpert {
		return models.FlagExpertRequired, true
	}

	minAcceptable := g.config.Thresholds().Mean()
	if verdict.OverallScore() < minAcceptable {
		return models.FlagLowConfidence, true
	}

	return "", false
}
