package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-agent/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.InitSchema())
	return client
}

func sampleReviewItem(id string) *models.ReviewItem {
	return &models.ReviewItem{
		ID:       id,
		Status:   models.ReviewStatusPending,
		Question: "How do I renew my permit?",
		Answer:   "Renew online via the portal.",
		Verdict: models.VerdictSnapshot{
			Scores:       map[string]float64{"relevance": 0.5, "tone": 0.9},
			OverallScore: 0.7,
			Passed:       false,
		},
		FlagReason: models.FlagLowConfidence,
		CreatedAt:  time.Now().Truncate(time.Second),
	}
}

func TestReviewItemRoundTrip(t *testing.T) {
	client := newTestClient(t)

	item := sampleReviewItem("rev-1")
	require.NoError(t, client.InsertReviewItem(item))

	loaded, err := client.GetReviewItem("rev-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, item.Question, loaded.Question)
	assert.Equal(t, models.ReviewStatusPending, loaded.Status)
	assert.Equal(t, models.FlagLowConfidence, loaded.FlagReason)
	assert.Equal(t, 0.5, loaded.Verdict.Scores["relevance"])
	assert.Nil(t, loaded.ReviewedBy)
}

func TestGetReviewItemMissing(t *testing.T) {
	client := newTestClient(t)

	loaded, err := client.GetReviewItem("missing")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestUpdateReviewItem(t *testing.T) {
	client := newTestClient(t)

	item := sampleReviewItem("rev-1")
	require.NoError(t, client.InsertReviewItem(item))

	now := time.Now().Truncate(time.Second)
	reviewer := "reviewer@agency"
	item.Status = models.ReviewStatusCorrected
	item.CorrectedAnswer = "Use the renewal form instead."
	item.ReviewerNotes = "wrong form referenced"
	item.ReviewedBy = &reviewer
	item.ReviewedAt = &now
	require.NoError(t, client.UpdateReviewItem(item))

	loaded, err := client.GetReviewItem("rev-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusCorrected, loaded.Status)
	assert.Equal(t, "Use the renewal form instead.", loaded.CorrectedAnswer)
	require.NotNil(t, loaded.ReviewedBy)
	assert.Equal(t, reviewer, *loaded.ReviewedBy)

	counts, err := client.CountReviewItemsByStatus()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.ReviewStatusCorrected])
}

func TestListReviewItemsByStatus(t *testing.T) {
	client := newTestClient(t)

	require.NoError(t, client.InsertReviewItem(sampleReviewItem("rev-1")))
	require.NoError(t, client.InsertReviewItem(sampleReviewItem("rev-2")))

	pending, err := client.ListReviewItems(models.ReviewStatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	approved, err := client.ListReviewItems(models.ReviewStatusApproved)
	require.NoError(t, err)
	assert.Empty(t, approved)
}

func TestGoldenAnswerLifecycle(t *testing.T) {
	client := newTestClient(t)

	golden := &models.GoldenAnswer{
		ID:              "gold-1",
		Question:        "What are the office hours?",
		ReferenceAnswer: "Weekdays nine to five.",
		Category:        "general",
		Source:          models.GoldenSourceManual,
		IsActive:        true,
		CreatedAt:       time.Now().Truncate(time.Second),
	}
	require.NoError(t, client.InsertGoldenAnswer(golden))

	active, err := client.ListGoldenAnswers(true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "gold-1", active[0].ID)

	require.NoError(t, client.SetGoldenAnswerActive("gold-1", false))

	active, err = client.ListGoldenAnswers(true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := client.ListGoldenAnswers(false)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	counts, err := client.CountGoldenAnswersBySource()
	require.NoError(t, err)
	assert.Equal(t, 0, counts[models.GoldenSourceManual])
}

func TestAuditEntriesNewestFirstWithLimit(t *testing.T) {
	client := newTestClient(t)

	base := time.Now().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		err := client.InsertAuditEntry(&models.AuditEntry{
			Key:       "relevance_threshold",
			OldValue:  0.70,
			NewValue:  0.70 + float64(i)*0.01,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	entries, err := client.ListAuditEntries(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.InDelta(t, 0.72, entries[0].NewValue, 1e-9)
}

func TestInsertExchangeRecord(t *testing.T) {
	client := newTestClient(t)

	err := client.InsertExchangeRecord(&models.ExchangeRecord{
		ID:           "ex-1",
		Question:     "q",
		Answer:       "a",
		Profile:      "GENERAL",
		OverallScore: 0.9,
		Passed:       true,
		RoundsUsed:   1,
		LatencyMS:    1200,
		CreatedAt:    time.Now(),
	})
	require.NoError(t, err)
}
