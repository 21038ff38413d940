// Package configstore holds the runtime-tunable quality thresholds and
// limits. Defaults are loaded once at startup; admin overrides are layered
// on top and every change is appended to an audit trail.
package configstore

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/civic-agent/backend/internal/storage/models"
	"github.com/civic-agent/backend/pkg/config"
	"github.com/civic-agent/backend/pkg/logger"
)

const (
	KeyRelevanceThreshold            = "relevance_threshold"
	KeyToneThreshold                 = "tone_threshold"
	KeyCompletenessThreshold         = "completeness_threshold"
	KeyPolicyComplianceThreshold     = "policy_compliance_threshold"
	KeySimilarityThreshold           = "similarity_threshold"
	KeyMaxResultsPerSearch           = "max_results_per_search"
	KeyMaxImprovementRounds          = "max_improvement_rounds"
	KeyRegressionSimilarityThreshold = "regression_similarity_threshold"
)

var (
	ErrInvalidConfigValue = errors.New("invalid config value")
	ErrUnknownKey         = errors.New("unknown config key")
)

// Thresholds is the resolved set of per-dimension score floors a single
// stage reads in one shot.
type Thresholds struct {
	Relevance        float64
	Tone             float64
	Completeness     float64
	PolicyCompliance float64
}

// Mean is the aggregate floor the escalation gate compares against.
func (t Thresholds) Mean() float64 {
	return (t.Relevance + t.Tone + t.Completeness + t.PolicyCompliance) / 4
}

// AuditSink persists audit entries. Persistence is best-effort; the
// in-memory trail is the authoritative ledger.
type AuditSink interface {
	InsertAuditEntry(entry *models.AuditEntry) error
}

type Store struct {
	mu        sync.RWMutex
	defaults  map[string]float64
	overrides map[string]float64
	audit     []models.AuditEntry
	sink      AuditSink
}

func New(defaults config.PipelineConfig, sink AuditSink) *Store {
	return &Store{
		defaults: map[string]float64{
			KeyRelevanceThreshold:            defaults.RelevanceThreshold,
			KeyToneThreshold:                 defaults.ToneThreshold,
			KeyCompletenessThreshold:         defaults.CompletenessThreshold,
			KeyPolicyComplianceThreshold:     defaults.PolicyComplianceThreshold,
			KeySimilarityThreshold:           defaults.SimilarityThreshold,
			KeyMaxResultsPerSearch:           float64(defaults.MaxResultsPerSearch),
			KeyMaxImprovementRounds:          float64(defaults.MaxImprovementRounds),
			KeyRegressionSimilarityThreshold: defaults.RegressionSimilarityThreshold,
		},
		overrides: make(map[string]float64),
		sink:      sink,
	}
}

// Get resolves override-then-default for a known key.
func (s *Store) Get(key string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.resolveLocked(key)
}

func (s *Store) resolveLocked(key string) (float64, error) {
	if v, ok := s.overrides[key]; ok {
		return v, nil
	}
	if v, ok := s.defaults[key]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownKey, key)
}

// Set validates the value against the key's allowed range and records an
// audit entry before returning.
func (s *Store) Set(key string, value float64) error {
	if err := validate(key, value); err != nil {
		return err
	}

	s.mu.Lock()
	old, err := s.resolveLocked(key)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.overrides[key] = value
	entry := s.appendAuditLocked(key, old, value)
	s.mu.Unlock()

	s.persistAudit(entry)

	logger.Info("Config override set",
		zap.String("key", key),
		zap.Float64("old_value", old),
		zap.Float64("new_value", value),
	)
	return nil
}

// Reset removes an override so the key inherits its default again.
func (s *Store) Reset(key string) error {
	s.mu.Lock()
	def, ok := s.defaults[key]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	old, hadOverride := s.overrides[key]
	if !hadOverride {
		s.mu.Unlock()
		return nil
	}

	delete(s.overrides, key)
	entry := s.appendAuditLocked(key, old, def)
	s.mu.Unlock()

	s.persistAudit(entry)

	logger.Info("Config override reset", zap.String("key", key))
	return nil
}

// ResetAll clears every override, auditing each removal.
func (s *Store) ResetAll() {
	s.mu.Lock()
	var entries []models.AuditEntry
	for key, old := range s.overrides {
		entries = append(entries, s.appendAuditLocked(key, old, s.defaults[key]))
	}
	s.overrides = make(map[string]float64)
	s.mu.Unlock()

	for i := range entries {
		s.persistAudit(entries[i])
	}

	logger.Info("All config overrides reset", zap.Int("cleared", len(entries)))
}

// Thresholds returns a consistent snapshot of the four dimension floors.
func (s *Store) Thresholds() Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()

	relevance, _ := s.resolveLocked(KeyRelevanceThreshold)
	tone, _ := s.resolveLocked(KeyToneThreshold)
	completeness, _ := s.resolveLocked(KeyCompletenessThreshold)
	policy, _ := s.resolveLocked(KeyPolicyComplianceThreshold)

	return Thresholds{
		Relevance:        relevance,
		Tone:             tone,
		Completeness:     completeness,
		PolicyCompliance: policy,
	}
}

func (s *Store) MaxImprovementRounds() int {
	v, _ := s.Get(KeyMaxImprovementRounds)
	return int(v)
}

func (s *Store) MaxResultsPerSearch() int {
	v, _ := s.Get(KeyMaxResultsPerSearch)
	return int(v)
}

func (s *Store) SimilarityThreshold() float64 {
	v, _ := s.Get(KeySimilarityThreshold)
	return v
}

func (s *Store) RegressionSimilarityThreshold() float64 {
	v, _ := s.Get(KeyRegressionSimilarityThreshold)
	return v
}

// Snapshot returns every key resolved against the override layer.
func (s *Store) Snapshot() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resolved := make(map[string]float64, len(s.defaults))
	for key := range s.defaults {
		resolved[key], _ = s.resolveLocked(key)
	}
	return resolved
}

// AuditLog returns a copy of the in-memory audit trail, newest last.
func (s *Store) AuditLog() []models.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

func (s *Store) appendAuditLocked(key string, old, new float64) models.AuditEntry {
	entry := models.AuditEntry{
		Key:       key,
		OldValue:  old,
		NewValue:  new,
		Timestamp: time.Now(),
	}
	s.audit = append(s.audit, entry)
	return entry
}

func (s *Store) persistAudit(entry models.AuditEntry) {
	if s.sink == nil {
		return
	}
	if err := s.sink.InsertAuditEntry(&entry); err != nil {
		logger.Warn("Failed to persist audit entry",
			zap.String("key", entry.Key),
			zap.Error(err),
		)
	}
}

func validate(key string, value float64) error {
	switch key {
	case KeyRelevanceThreshold, KeyToneThreshold, KeyCompletenessThreshold,
		KeyPolicyComplianceThreshold, KeySimilarityThreshold,
		KeyRegressionSimilarityThreshold:
		if value < 0 || value > 1 {
			return fmt.Errorf("%w: %s must be in [0,1], got %v", ErrInvalidConfigValue, key, value)
		}
	case KeyMaxImprovementRounds:
		if value != math.Trunc(value) || value < 0 || value > 5 {
			return fmt.Errorf("%w: %s must be an integer in [0,5], got %v", ErrInvalidConfigValue, key, value)
		}
	case KeyMaxResultsPerSearch:
		if value != math.Trunc(value) || value < 1 || value > 20 {
			return fmt.Errorf("%w: %s must be an integer in [1,20], got %v", ErrInvalidConfigValue, key, value)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return nil
}
