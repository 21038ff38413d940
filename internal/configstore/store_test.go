package configstore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-agent/backend/internal/storage/models"
	"github.com/civic-agent/backend/pkg/config"
)

func testDefaults() config.PipelineConfig {
	return config.PipelineConfig{
		RelevanceThreshold:            0.70,
		ToneThreshold:                 0.60,
		CompletenessThreshold:         0.70,
		PolicyComplianceThreshold:     0.80,
		SimilarityThreshold:           0.65,
		MaxResultsPerSearch:           5,
		MaxImprovementRounds:          2,
		RegressionSimilarityThreshold: 0.70,
	}
}

func TestGetResolvesDefault(t *testing.T) {
	store := New(testDefaults(), nil)

	v, err := store.Get(KeyRelevanceThreshold)
	require.NoError(t, err)
	assert.Equal(t, 0.70, v)
}

func TestSetGetResetRoundTrip(t *testing.T) {
	store := New(testDefaults(), nil)

	require.NoError(t, store.Set(KeyRelevanceThreshold, 0.85))
	v, err := store.Get(KeyRelevanceThreshold)
	require.NoError(t, err)
	assert.Equal(t, 0.85, v)

	require.NoError(t, store.Reset(KeyRelevanceThreshold))
	v, err = store.Get(KeyRelevanceThreshold)
	require.NoError(t, err)
	assert.Equal(t, 0.70, v, "reset must restore the default")
}

func TestSetRejectsOutOfRangeScore(t *testing.T) {
	store := New(testDefaults(), nil)

	err := store.Set(KeyToneThreshold, 1.5)
	assert.ErrorIs(t, err, ErrInvalidConfigValue)

	// Previous value unchanged after a rejected write.
	v, _ := store.Get(KeyToneThreshold)
	assert.Equal(t, 0.60, v)
}

func TestSetRejectsNonIntegralRounds(t *testing.T) {
	store := New(testDefaults(), nil)

	assert.ErrorIs(t, store.Set(KeyMaxImprovementRounds, 2.5), ErrInvalidConfigValue)
	assert.ErrorIs(t, store.Set(KeyMaxImprovementRounds, 6), ErrInvalidConfigValue)
	assert.NoError(t, store.Set(KeyMaxImprovementRounds, 0))
	assert.Equal(t, 0, store.MaxImprovementRounds())
}

func TestSetRejectsResultCountRange(t *testing.T) {
	store := New(testDefaults(), nil)

	assert.ErrorIs(t, store.Set(KeyMaxResultsPerSearch, 0), ErrInvalidConfigValue)
	assert.ErrorIs(t, store.Set(KeyMaxResultsPerSearch, 21), ErrInvalidConfigValue)
	assert.NoError(t, store.Set(KeyMaxResultsPerSearch, 20))
}

func TestUnknownKey(t *testing.T) {
	store := New(testDefaults(), nil)

	_, err := store.Get("no_such_key")
	assert.ErrorIs(t, err, ErrUnknownKey)
	assert.ErrorIs(t, store.Set("no_such_key", 0.5), ErrUnknownKey)
	assert.ErrorIs(t, store.Reset("no_such_key"), ErrUnknownKey)
}

func TestAuditTrailRecordsEveryMutation(t *testing.T) {
	store := New(testDefaults(), nil)

	require.NoError(t, store.Set(KeyRelevanceThreshold, 0.9))
	require.NoError(t, store.Reset(KeyRelevanceThreshold))

	trail := store.AuditLog()
	require.Len(t, trail, 2)

	assert.Equal(t, KeyRelevanceThreshold, trail[0].Key)
	assert.Equal(t, 0.70, trail[0].OldValue)
	assert.Equal(t, 0.9, trail[0].NewValue)

	assert.Equal(t, 0.9, trail[1].OldValue)
	assert.Equal(t, 0.70, trail[1].NewValue)
}

func TestResetWithoutOverrideIsNoAudit(t *testing.T) {
	store := New(testDefaults(), nil)

	require.NoError(t, store.Reset(KeyToneThreshold))
	assert.Empty(t, store.AuditLog())
}

func TestResetAllClearsOverrides(t *testing.T) {
	store := New(testDefaults(), nil)

	require.NoError(t, store.Set(KeyRelevanceThreshold, 0.9))
	require.NoError(t, store.Set(KeyToneThreshold, 0.5))

	store.ResetAll()

	v, _ := store.Get(KeyRelevanceThreshold)
	assert.Equal(t, 0.70, v)
	v, _ = store.Get(KeyToneThreshold)
	assert.Equal(t, 0.60, v)
	assert.Len(t, store.AuditLog(), 4)
}

func TestThresholdsMean(t *testing.T) {
	store := New(testDefaults(), nil)

	thresholds := store.Thresholds()
	assert.InDelta(t, (0.70+0.60+0.70+0.80)/4, thresholds.Mean(), 1e-9)
}

type failingSink struct{}

func (failingSink) InsertAuditEntry(entry *models.AuditEntry) error {
	return assert.AnError
}

func TestAuditPersistFailureIsSwallowed(t *testing.T) {
	store := New(testDefaults(), failingSink{})

	require.NoError(t, store.Set(KeyRelevanceThreshold, 0.9))
	assert.Len(t, store.AuditLog(), 1)
}

func TestConcurrentReadersWithWriter(t *testing.T) {
	store := New(testDefaults(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				th := store.Thresholds()
				assert.GreaterOrEqual(t, th.Relevance, 0.0)
				assert.LessOrEqual(t, th.Relevance, 1.0)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			_ = store.Set(KeyRelevanceThreshold, 0.5)
			_ = store.Reset(KeyRelevanceThreshold)
		}
	}()

	wg.Wait()
}
