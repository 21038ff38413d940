package escalation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civic-agent/backend/internal/evaluation"
	"github.com/civic-agent/backend/internal/storage/models"
	"github.com/civic-agent/backend/pkg/logger"
)

var (
	ErrReviewNotFound  = errors.New("review item not found")
	ErrAlreadyReviewed = errors.New("review item already resolved")
	ErrEmptyCorrection = errors.New("corrected answer must not be empty")
)

// ReviewStore is the persistence contract the queue needs.
type ReviewStore interface {
	InsertReviewItem(item *models.ReviewItem) error
	GetReviewItem(id string) (*models.ReviewItem, error)
	ListReviewItems(status models.ReviewStatus) ([]models.ReviewItem, error)
	UpdateReviewItem(item *models.ReviewItem) error
	CountReviewItemsByStatus() (map[models.ReviewStatus]int, error)
}

type Queue struct {
	store ReviewStore
}

func NewQueue(store ReviewStore) *Queue {
	return &Queue{store: store}
}

// Enqueue flags an exchange for review. It is best-effort: a storage
// failure is logged and swallowed so the primary response path never fails
// because of the queue.
func (q *Queue) Enqueue(question, answerText string, verdict *evaluation.Verdict, reason models.FlagReason) *models.ReviewItem {
	item := &models.ReviewItem{
		ID:       uuid.New().String(),
		Status:   models.ReviewStatusPending,
		Question: question,
		Answer:   answerText,
		Verdict: models.VerdictSnapshot{
			Scores:                verdict.ScoreMap(),
			OverallScore:          verdict.OverallScore(),
			Passed:                verdict.Passed,
			HallucinationDetected: verdict.HallucinationDetected,
		},
		FlagReason: reason,
		CreatedAt:  time.Now(),
	}

	if err := q.store.InsertReviewItem(item); err != nil {
		logger.Warn("Failed to enqueue review item",
			zap.String("reason", string(reason)),
			zap.Error(err),
		)
		return nil
	}

	logger.Info("Exchange flagged for human review",
		zap.String("review_id", item.ID),
		zap.String("reason", string(reason)),
	)
	return item
}

func (q *Queue) ListPending() ([]models.ReviewItem, error) {
	return q.store.ListReviewItems(models.ReviewStatusPending)
}

func (q *Queue) Get(id string) (*models.ReviewItem, error) {
	item, err := q.store.GetReviewItem(id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrReviewNotFound
	}
	return item, nil
}

func (q *Queue) Approve(id, reviewer, notes string) (*models.ReviewItem, error) {
	return q.resolve(id, reviewer, notes, models.ReviewStatusApproved, "")
}

func (q *Queue) Reject(id, reviewer, notes string) (*models.ReviewItem, error) {
	return q.resolve(id, reviewer, notes, models.ReviewStatusRejected, "")
}

func (q *Queue) Correct(id, reviewer, notes, correctedAnswer string) (*models.ReviewItem, error) {
	if correctedAnswer == "" {
		return nil, ErrEmptyCorrection
	}
	return q.resolve(id, reviewer, notes, models.ReviewStatusCorrected, correctedAnswer)
}

// resolve performs the one-way PENDING -> terminal transition.
func (q *Queue) resolve(id, reviewer, notes string, status models.ReviewStatus, correctedAnswer string) (*models.ReviewItem, error) {
	item, err := q.Get(id)
	if err != nil {
		return nil, err
	}

	if item.Status != models.ReviewStatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyReviewed, id, item.Status)
	}

	now := time.Now()
	item.Status = status
	item.ReviewerNotes = notes
	item.CorrectedAnswer = correctedAnswer
	item.ReviewedBy = &reviewer
	item.ReviewedAt = &now

	if err := q.store.UpdateReviewItem(item); err != nil {
		return nil, err
	}

	return item, nil
}

func (q *Queue) CountByStatus() (map[models.ReviewStatus]int, error) {
	return q.store.CountReviewItemsByStatus()
}
