package regression

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-agent/backend/internal/configstore"
	"github.com/civic-agent/backend/internal/storage/models"
	"github.com/civic-agent/backend/pkg/config"
)

func TestSimilarityIdenticalTexts(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("apply online via the portal", "apply online via the portal"))
}

func TestSimilarityIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("Apply ONLINE", "apply online"))
}

func TestSimilarityIsSymmetric(t *testing.T) {
	a := "submit the permit application form"
	b := "the permit office reviews each form"
	assert.Equal(t, Similarity(a, b), Similarity(b, a))
}

func TestSimilarityDisjointTexts(t *testing.T) {
	assert.Equal(t, 0.0, Similarity("alpha beta", "gamma delta"))
}

func TestSimilarityPartialOverlap(t *testing.T) {
	// Sets {a,b,c} and {b,c,d}: intersection 2, union 4.
	assert.InDelta(t, 0.5, Similarity("a b c", "b c d"), 1e-9)
}

func TestSimilarityEmptyTexts(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("", "   "))
	assert.Equal(t, 0.0, Similarity("", "something"))
}

// memoryGoldenStore is an in-memory GoldenStore for harness tests.
type memoryGoldenStore struct {
	goldens map[string]*models.GoldenAnswer
}

func newMemoryGoldenStore() *memoryGoldenStore {
	return &memoryGoldenStore{goldens: make(map[string]*models.GoldenAnswer)}
}

func (s *memoryGoldenStore) InsertGoldenAnswer(golden *models.GoldenAnswer) error {
	copied := *golden
	s.goldens[golden.ID] = &copied
	return nil
}

func (s *memoryGoldenStore) GetGoldenAnswer(id string) (*models.GoldenAnswer, error) {
	golden, ok := s.goldens[id]
	if !ok {
		return nil, nil
	}
	copied := *golden
	return &copied, nil
}

func (s *memoryGoldenStore) ListGoldenAnswers(activeOnly bool) ([]models.GoldenAnswer, error) {
	var out []models.GoldenAnswer
	for _, golden := range s.goldens {
		if activeOnly && !golden.IsActive {
			continue
		}
		out = append(out, *golden)
	}
	return out, nil
}

func (s *memoryGoldenStore) SetGoldenAnswerActive(id string, active bool) error {
	golden, ok := s.goldens[id]
	if !ok {
		return errors.New("no such golden")
	}
	golden.IsActive = active
	return nil
}

func (s *memoryGoldenStore) CountGoldenAnswersBySource() (map[models.GoldenSource]int, error) {
	counts := make(map[models.GoldenSource]int)
	for _, golden := range s.goldens {
		if golden.IsActive {
			counts[golden.Source]++
		}
	}
	return counts, nil
}

func testConfig(t *testing.T) *configstore.Store {
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

func TestHarnessEmptyGoldenSetPasses(t *testing.T) {
	goldens := NewGoldens(newMemoryGoldenStore())
	harness := NewHarness(goldens, func(ctx context.Context, q string) (string, error) {
		t.Fatal("answer func must not be called for an empty set")
		return "", nil
	}, testConfig(t))

	result, err := harness.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalCases)
	assert.Equal(t, 1.0, result.PassRate)
}

func TestHarnessComparesAgainstReferences(t *testing.T) {
	store := newMemoryGoldenStore()
	goldens := NewGoldens(store)

	_, err := goldens.AddManual("how do I renew my permit", "submit the renewal form on the portal", "permits")
	require.NoError(t, err)
	_, err = goldens.AddManual("what are the office hours", "the office is open weekdays nine to five", "general")
	require.NoError(t, err)

	answers := map[string]string{
		"how do I renew my permit":  "submit the renewal form on the portal",
		"what are the office hours": "completely unrelated text about fishing",
	}
	harness := NewHarness(goldens, func(ctx context.Context, q string) (string, error) {
		return answers[q], nil
	}, testConfig(t))

	result, err := harness.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalCases)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 1, result.Failed)
	assert.InDelta(t, 0.5, result.PassRate, 1e-9)
	assert.Equal(t, result, harness.LastResult())
}

func TestHarnessPipelineErrorFailsCase(t *testing.T) {
	goldens := NewGoldens(newMemoryGoldenStore())
	_, err := goldens.AddManual("q", "reference answer", "")
	require.NoError(t, err)

	harness := NewHarness(goldens, func(ctx context.Context, q string) (string, error) {
		return "", errors.New("model unavailable")
	}, testConfig(t))

	result, err := harness.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Cases, 1)
	assert.False(t, result.Cases[0].Passed)
	assert.Equal(t, 0.0, result.Cases[0].Similarity)
	assert.Contains(t, result.Cases[0].Error, "model unavailable")
}

func TestHarnessSkipsInactiveGoldens(t *testing.T) {
	store := newMemoryGoldenStore()
	goldens := NewGoldens(store)

	golden, err := goldens.AddManual("q", "reference", "")
	require.NoError(t, err)
	require.NoError(t, goldens.Deactivate(golden.ID))

	harness := NewHarness(goldens, func(ctx context.Context, q string) (string, error) {
		return "reference", nil
	}, testConfig(t))

	result, err := harness.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalCases)
	assert.Equal(t, 1.0, result.PassRate)
}

func TestPromoteApprovedReview(t *testing.T) {
	goldens := NewGoldens(newMemoryGoldenStore())

	item := &models.ReviewItem{
		ID:       "rev-1",
		Status:   models.ReviewStatusApproved,
		Question: "how do I register",
		Answer:   "register through the national portal",
	}

	golden, err := goldens.PromoteFromReview(item)
	require.NoError(t, err)
	assert.Equal(t, models.GoldenSourceFromReview, golden.Source)
	assert.Equal(t, "register through the national portal", golden.ReferenceAnswer)
	assert.Equal(t, "rev-1", golden.SourceReviewID)
	assert.True(t, golden.IsActive)
}

func TestPromoteCorrectedReviewUsesCorrection(t *testing.T) {
	goldens := NewGoldens(newMemoryGoldenStore())

	item := &models.ReviewItem{
		ID:              "rev-2",
		Status:          models.ReviewStatusCorrected,
		Question:        "q",
		Answer:          "the flawed original",
		CorrectedAnswer: "the reviewer's corrected text",
	}

	golden, err := goldens.PromoteFromReview(item)
	require.NoError(t, err)
	assert.Equal(t, "the reviewer's corrected text", golden.ReferenceAnswer)
}

func TestPromoteRejectsPendingAndRejected(t *testing.T) {
	goldens := NewGoldens(newMemoryGoldenStore())

	for _, status := range []models.ReviewStatus{models.ReviewStatusPending, models.ReviewStatusRejected} {
		_, err := goldens.PromoteFromReview(&models.ReviewItem{ID: "r", Status: status})
		assert.ErrorIs(t, err, ErrNotPromotable)
	}
}

func TestDeactivateUnknownGolden(t *testing.T) {
	goldens := NewGoldens(newMemoryGoldenStore())
	assert.ErrorIs(t, goldens.Deactivate("missing"), ErrGoldenNotFound)
}
