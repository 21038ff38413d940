package models

import "time"

type ReviewStatus string

const (
	ReviewStatusPending   ReviewStatus = "PENDING"
	ReviewStatusApproved  ReviewStatus = "APPROVED"
	ReviewStatusRejected  ReviewStatus = "REJECTED"
	ReviewStatusCorrected ReviewStatus = "CORRECTED"
)

type FlagReason string

const (
	FlagHallucination  FlagReason = "HALLUCINATION"
	FlagLowConfidence  FlagReason = "LOW_CONFIDENCE"
	FlagExpertRequired FlagReason = "EXPERT_REQUIRED"
)

// VerdictSnapshot is the persisted view of a quality verdict, frozen at the
// moment an exchange was flagged for review.
type VerdictSnapshot struct {
	Scores                map[string]float64 `json:"scores"`
	OverallScore          float64            `json:"overall_score"`
	Passed                bool               `json:"passed"`
	HallucinationDetected bool               `json:"hallucination_detected"`
}

type ReviewItem struct {
	ID              string
	Status          ReviewStatus
	Question        string
	Answer          string
	Verdict         VerdictSnapshot
	FlagReason      FlagReason
	ReviewerNotes   string
	CorrectedAnswer string
	ReviewedBy      *string
	ReviewedAt      *time.Time
	CreatedAt       time.Time
}

type GoldenSource string

const (
	GoldenSourceManual       GoldenSource = "MANUAL"
	GoldenSourceFromReview   GoldenSource = "FROM_REVIEW"
	GoldenSourceFromFeedback GoldenSource = "FROM_FEEDBACK"
)

type GoldenAnswer struct {
	ID              string
	Question        string
	ReferenceAnswer string
	Category        string
	Source          GoldenSource
	IsActive        bool
	SourceReviewID  string
	CreatedAt       time.Time
}

type AuditEntry struct {
	ID        int
	Key       string
	OldValue  float64
	NewValue  float64
	Timestamp time.Time
}

// ExchangeRecord is one row of the pipeline history ledger.
type ExchangeRecord struct {
	ID           string
	Question     string
	Answer       string
	Profile      string
	OverallScore float64
	Passed       bool
	Escalated    bool
	RoundsUsed   int
	LatencyMS    int
	CreatedAt    time.Time
}
