package escalation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-agent/backend/internal/answer"
	"github.com/civic-agent/backend/internal/configstore"
	"github.com/civic-agent/backend/internal/evaluation"
	"github.com/civic-agent/backend/internal/storage/models"
	"github.com/civic-agent/backend/pkg/config"
)

func testStore(t *testing.T) *configstore.Store {
	t.Helper()
	return configstore.New(config.PipelineConfig{
		RelevanceThreshold:            0.70,
		ToneThreshold:                 0.60,
		CompletenessThreshold:         0.70,
		PolicyComplianceThreshold:     0.80,
		SimilarityThreshold:           0.65,
		MaxResultsPerSearch:           5,
		MaxImprovementRounds:          2,
		RegressionSimilarityThreshold: 0.70,
	}, nil)
}

func verdictWithScores(score float64, hallucination bool) *evaluation.Verdict {
	return &evaluation.Verdict{
		Scores: map[evaluation.Dimension]float64{
			evaluation.DimensionRelevance:        score,
			evaluation.DimensionTone:             score,
			evaluation.DimensionCompleteness:     score,
			evaluation.DimensionPolicyCompliance: score,
		},
		Passed:                !hallucination,
		HallucinationDetected: hallucination,
	}
}

func TestHallucinationOutranksLowConfidence(t *testing.T) {
	gate := NewGate(testStore(t))

	reason, flagged := gate.Decide(verdictWithScores(0.9, true), &answer.Draft{}, answer.ConfidenceLow)

	require.True(t, flagged)
	assert.Equal(t, models.FlagHallucination, reason)
}

func TestLowConfidenceOutranksExpertRequired(t *testing.T) {
	gate := NewGate(testStore(t))

	reason, flagged := gate.Decide(verdictWithScores(0.9, false), &answer.Draft{NeedsHumanExpert: true}, answer.ConfidenceLow)

	require.True(t, flagged)
	assert.Equal(t, models.FlagLowConfidence, reason)
}

func TestExpertRequiredFlag(t *testing.T) {
	gate := NewGate(testStore(t))

	reason, flagged := gate.Decide(verdictWithScores(0.9, false), &answer.Draft{NeedsHumanExpert: true}, answer.ConfidenceHigh)

	require.True(t, flagged)
	assert.Equal(t, models.FlagExpertRequired, reason)
}

func TestScoreBelowMeanThresholdFlagsLowConfidence(t *testing.T) {
	gate := NewGate(testStore(t))

	// Mean threshold is (0.70+0.60+0.70+0.80)/4 = 0.70.
	reason, flagged := gate.Decide(verdictWithScores(0.65, false), &answer.Draft{}, answer.ConfidenceHigh)

	require.True(t, flagged)
	assert.Equal(t, models.FlagLowConfidence, reason)
}

func TestHealthyExchangeIsNotFlagged(t *testing.T) {
	gate := NewGate(testStore(t))

	_, flagged := gate.Decide(verdictWithScores(0.9, false), &answer.Draft{}, answer.ConfidenceHigh)

	assert.False(t, flagged)
}

// memoryReviewStore is an in-memory ReviewStore for queue tests.
type memoryReviewStore struct {
	items     map[string]*models.ReviewItem
	insertErr error
}

func newMemoryReviewStore() *memoryReviewStore {
	return &memoryReviewStore{items: make(map[string]*models.ReviewItem)}
}

func (s *memoryReviewStore) InsertReviewItem(item *models.ReviewItem) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	copied := *item
	s.items[item.ID] = &copied
	return nil
}

func (s *memoryReviewStore) GetReviewItem(id string) (*models.ReviewItem, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (s *memoryReviewStore) ListReviewItems(status models.ReviewStatus) ([]models.ReviewItem, error) {
	var out []models.ReviewItem
	for _, item := range s.items {
		if item.Status == status {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (s *memoryReviewStore) UpdateReviewItem(item *models.ReviewItem) error {
	copied := *item
	s.items[item.ID] = &copied
	return nil
}

func (s *memoryReviewStore) CountReviewItemsByStatus() (map[models.ReviewStatus]int, error) {
	counts := make(map[models.ReviewStatus]int)
	for _, item := range s.items {
		counts[item.Status]++
	}
	return counts, nil
}

func TestEnqueueAndApprove(t *testing.T) {
	store := newMemoryReviewStore()
	queue := NewQueue(store)

	item := queue.Enqueue("q", "a", verdictWithScores(0.5, false), models.FlagLowConfidence)
	require.NotNil(t, item)
	assert.Equal(t, models.ReviewStatusPending, item.Status)

	pending, err := queue.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	resolved, err := queue.Approve(item.ID, "reviewer@agency", "looks right")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusApproved, resolved.Status)
	require.NotNil(t, resolved.ReviewedBy)
	assert.Equal(t, "reviewer@agency", *resolved.ReviewedBy)
	assert.NotNil(t, resolved.ReviewedAt)
}

func TestResolveIsOneWay(t *testing.T) {
	store := newMemoryReviewStore()
	queue := NewQueue(store)

	item := queue.Enqueue("q", "a", verdictWithScores(0.5, false), models.FlagLowConfidence)
	_, err := queue.Reject(item.ID, "reviewer", "wrong")
	require.NoError(t, err)

	_, err = queue.Approve(item.ID, "reviewer", "changed my mind")
	assert.ErrorIs(t, err, ErrAlreadyReviewed)
}

func TestCorrectRequiresAnswer(t *testing.T) {
	store := newMemoryReviewStore()
	queue := NewQueue(store)

	item := queue.Enqueue("q", "a", verdictWithScores(0.5, false), models.FlagLowConfidence)

	_, err := queue.Correct(item.ID, "reviewer", "notes", "")
	assert.ErrorIs(t, err, ErrEmptyCorrection)

	resolved, err := queue.Correct(item.ID, "reviewer", "notes", "the corrected answer")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusCorrected, resolved.Status)
	assert.Equal(t, "the corrected answer", resolved.CorrectedAnswer)
}

func TestUnknownReviewID(t *testing.T) {
	queue := NewQueue(newMemoryReviewStore())

	_, err := queue.Approve("missing", "reviewer", "")
	assert.ErrorIs(t, err, ErrReviewNotFound)
}

func TestEnqueueFailureIsSwallowed(t *testing.T) {
	store := newMemoryReviewStore()
	store.insertErr = assert.AnError
	queue := NewQueue(store)

	item := queue.Enqueue("q", "a", verdictWithScores(0.5, false), models.FlagHallucination)
	assert.Nil(t, item)
}
