package regression

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/civic-agent/backend/internal/storage/models"
)

var (
	ErrGoldenNotFound = errors.New("golden answer not found")
	ErrNotPromotable  = errors.New("review item cannot be promoted")
)

// GoldenStore is the persistence contract for the golden answer set.
type GoldenStore interface {
	InsertGoldenAnswer(golden *models.GoldenAnswer) error
	GetGoldenAnswer(id string) (*models.GoldenAnswer, error)
	ListGoldenAnswers(activeOnly bool) ([]models.GoldenAnswer, error)
	SetGoldenAnswerActive(id string, active bool) error
	CountGoldenAnswersBySource() (map[models.GoldenSource]int, error)
}

// Goldens manages the regression reference set. Golden answers are
// deactivated rather than deleted so past regression runs stay
// reproducible.
type Goldens struct {
	store GoldenStore
}

func NewGoldens(store GoldenStore) *Goldens {
	return &Goldens{store: store}
}

func (g *Goldens) AddManual(question, referenceAnswer, category string) (*models.GoldenAnswer, error) {
	if question == "" || referenceAnswer == "" {
		return nil, fmt.Errorf("question and reference answer are required")
	}

	golden := &models.GoldenAnswer{
		ID:              uuid.New().String(),
		Question:        question,
		ReferenceAnswer: referenceAnswer,
		Category:        category,
		Source:          models.GoldenSourceManual,
		IsActive:        true,
		CreatedAt:       time.Now(),
	}

	if err := g.store.InsertGoldenAnswer(golden); err != nil {
		return nil, err
	}
	return golden, nil
}

// PromoteFromReview turns an APPROVED or CORRECTED review item into a
// golden answer. The corrected text wins when present.
func (g *Goldens) PromoteFromReview(item *models.ReviewItem) (*models.GoldenAnswer, error) {
	var reference string
	switch item.Status {
	case models.ReviewStatusApproved:
		reference = item.Answer
	case models.ReviewStatusCorrected:
		reference = item.CorrectedAnswer
	default:
		return nil, fmt.Errorf("%w: status is %s", ErrNotPromotable, item.Status)
	}

	golden := &models.GoldenAnswer{
		ID:              uuid.New().String(),
		Question:        item.Question,
		ReferenceAnswer: reference,
		Source:          models.GoldenSourceFromReview,
		IsActive:        true,
		SourceReviewID:  item.ID,
		CreatedAt:       time.Now(),
	}

	if err := g.store.InsertGoldenAnswer(golden); err != nil {
		return nil, err
	}
	return golden, nil
}

func (g *Goldens) List(activeOnly bool) ([]models.GoldenAnswer, error) {
	return g.store.ListGoldenAnswers(activeOnly)
}

// Deactivate soft-deletes a golden answer.
func (g *Goldens) Deactivate(id string) error {
	golden, err := g.store.GetGoldenAnswer(id)
	if err != nil {
		return err
	}
	if golden == nil {
		return ErrGoldenNotFound
	}

	return g.store.SetGoldenAnswerActive(id, false)
}

func (g *Goldens) CountBySource() (map[models.GoldenSource]int, error) {
	return g.store.CountGoldenAnswersBySource()
}
