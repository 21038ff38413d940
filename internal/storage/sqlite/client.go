package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/civic-agent/backend/internal/storage/models"
	"github.com/civic-agent/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS review_items (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		verdict TEXT NOT NULL,
		flag_reason TEXT NOT NULL,
		reviewer_notes TEXT,
		corrected_answer TEXT,
		reviewed_by TEXT,
		reviewed_at INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_review_status ON review_items(status);
	CREATE INDEX IF NOT EXISTS idx_review_created ON review_items(created_at);

	CREATE TABLE IF NOT EXISTS golden_answers (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		reference_answer TEXT NOT NULL,
		category TEXT,
		source TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		source_review_id TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_golden_active ON golden_answers(is_active);
	CREATE INDEX IF NOT EXISTS idx_golden_source ON golden_answers(source);

	CREATE TABLE IF NOT EXISTS config_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL,
		old_value REAL NOT NULL,
		new_value REAL NOT NULL,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_key ON config_audit(key);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON config_audit(timestamp);

	CREATE TABLE IF NOT EXISTS exchange_history (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		answer TEXT,
		profile TEXT,
		overall_score REAL,
		passed INTEGER,
		escalated INTEGER,
		rounds_used INTEGER,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exchange_created ON exchange_history(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertReviewItem(item *models.ReviewItem) error {
	verdictJSON, _ := json.Marshal(item.Verdict)

	query := `
		INSERT INTO review_items (id, status, question, answer, verdict, flag_reason,
			reviewer_notes, corrected_answer, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		item.ID,
		string(item.Status),
		item.Question,
		item.Answer,
		string(verdictJSON),
		string(item.FlagReason),
		item.ReviewerNotes,
		item.CorrectedAnswer,
		item.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert review item: %w", err)
	}

	logger.Debug("Review item inserted",
		zap.String("review_id", item.ID),
		zap.String("reason", string(item.FlagReason)),
	)
	return nil
}

func (c *Client) GetReviewItem(id string) (*models.ReviewItem, error) {
	query := `
		SELECT id, status, question, answer, verdict, flag_reason,
			reviewer_notes, corrected_answer, reviewed_by, reviewed_at, created_at
		FROM review_items WHERE id = ?
	`

	row := c.db.QueryRow(query, id)
	item, err := scanReviewItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review item: %w", err)
	}

	return item, nil
}

func (c *Client) ListReviewItems(status models.ReviewStatus) ([]models.ReviewItem, error) {
	query := `
		SELECT id, status, question, answer, verdict, flag_reason,
			reviewer_notes, corrected_answer, reviewed_by, reviewed_at, created_at
		FROM review_items
		WHERE status = ?
		ORDER BY created_at ASC
	`

	rows, err := c.db.Query(query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list review items: %w", err)
	}
	defer rows.Close()

	var items []models.ReviewItem
	for rows.Next() {
		item, err := scanReviewItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		items = append(items, *item)
	}

	return items, nil
}

func (c *Client) UpdateReviewItem(item *models.ReviewItem) error {
	var reviewedAt interface{}
	if item.ReviewedAt != nil {
		reviewedAt = item.ReviewedAt.Unix()
	}

	query := `
		UPDATE review_items
		SET status = ?, reviewer_notes = ?, corrected_answer = ?, reviewed_by = ?, reviewed_at = ?
		WHERE id = ?
	`

	_, err := c.db.Exec(
		query,
		string(item.Status),
		item.ReviewerNotes,
		item.CorrectedAnswer,
		item.ReviewedBy,
		reviewedAt,
		item.ID,
	)

	if err != nil {
		return fmt.Errorf("failed to update review item: %w", err)
	}

	logger.Info("Review item updated",
		zap.String("review_id", item.ID),
		zap.String("status", string(item.Status)),
	)
	return nil
}

func (c *Client) CountReviewItemsByStatus() (map[models.ReviewStatus]int, error) {
	rows, err := c.db.Query(`SELECT status, COUNT(*) FROM review_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count review items: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ReviewStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		counts[models.ReviewStatus(status)] = count
	}

	return counts, nil
}

func (c *Client) InsertGoldenAnswer(golden *models.GoldenAnswer) error {
	isActive := 0
	if golden.IsActive {
		isActive = 1
	}

	query := `
		INSERT INTO golden_answers (id, question, reference_answer, category, source,
			is_active, source_review_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		golden.ID,
		golden.Question,
		golden.ReferenceAnswer,
		golden.Category,
		string(golden.Source),
		isActive,
		golden.SourceReviewID,
		golden.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert golden answer: %w", err)
	}

	logger.Info("Golden answer stored",
		zap.String("golden_id", golden.ID),
		zap.String("source", string(golden.Source)),
	)
	return nil
}

func (c *Client) GetGoldenAnswer(id string) (*models.GoldenAnswer, error) {
	query := `
		SELECT id, question, reference_answer, category, source, is_active, source_review_id, created_at
		FROM golden_answers WHERE id = ?
	`

	var g models.GoldenAnswer
	var isActive int
	var createdAt int64

	err := c.db.QueryRow(query, id).Scan(
		&g.ID,
		&g.Question,
		&g.ReferenceAnswer,
		&g.Category,
		(*string)(&g.Source),
		&isActive,
		&g.SourceReviewID,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get golden answer: %w", err)
	}

	g.IsActive = isActive == 1
	g.CreatedAt = time.Unix(createdAt, 0)

	return &g, nil
}

func (c *Client) ListGoldenAnswers(activeOnly bool) ([]models.GoldenAnswer, error) {
	query := `
		SELECT id, question, reference_answer, category, source, is_active, source_review_id, created_at
		FROM golden_answers
	`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list golden answers: %w", err)
	}
	defer rows.Close()

	var answers []models.GoldenAnswer
	for rows.Next() {
		var g models.GoldenAnswer
		var isActive int
		var createdAt int64

		err := rows.Scan(
			&g.ID,
			&g.Question,
			&g.ReferenceAnswer,
			&g.Category,
			(*string)(&g.Source),
			&isActive,
			&g.SourceReviewID,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		g.IsActive = isActive == 1
		g.CreatedAt = time.Unix(createdAt, 0)
		answers = append(answers, g)
	}

	return answers, nil
}

func (c *Client) SetGoldenAnswerActive(id string, active bool) error {
	isActive := 0
	if active {
		isActive = 1
	}

	result, err := c.db.Exec(`UPDATE golden_answers SET is_active = ? WHERE id = ?`, isActive, id)
	if err != nil {
		return fmt.Errorf("failed to update golden answer: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (c *Client) CountGoldenAnswersBySource() (map[models.GoldenSource]int, error) {
	rows, err := c.db.Query(`SELECT source, COUNT(*) FROM golden_answers WHERE is_active = 1 GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("failed to count golden answers: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.GoldenSource]int)
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		counts[models.GoldenSource(source)] = count
	}

	return counts, nil
}

func (c *Client) InsertAuditEntry(entry *models.AuditEntry) error {
	query := `INSERT INTO config_audit (key, old_value, new_value, timestamp) VALUES (?, ?, ?, ?)`

	_, err := c.db.Exec(query, entry.Key, entry.OldValue, entry.NewValue, entry.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}

func (c *Client) ListAuditEntries(limit int) ([]models.AuditEntry, error) {
	query := `
		SELECT id, key, old_value, new_value, timestamp
		FROM config_audit
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var timestamp int64

		if err := rows.Scan(&e.ID, &e.Key, &e.OldValue, &e.NewValue, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		e.Timestamp = time.Unix(timestamp, 0)
		entries = append(entries, e)
	}

	return entries, nil
}

func (c *Client) InsertExchangeRecord(record *models.ExchangeRecord) error {
	passed := 0
	if record.Passed {
		passed = 1
	}
	escalated := 0
	if record.Escalated {
		escalated = 1
	}

	query := `
		INSERT INTO exchange_history (id, question, answer, profile, overall_score,
			passed, escalated, rounds_used, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		record.ID,
		record.Question,
		record.Answer,
		record.Profile,
		record.OverallScore,
		passed,
		escalated,
		record.RoundsUsed,
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert exchange record: %w", err)
	}

	logger.Info("Exchange recorded",
		zap.String("exchange_id", record.ID),
		zap.Float64("overall_score", record.OverallScore),
		zap.Bool("escalated", record.Escalated),
	)
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReviewItem(row rowScanner) (*models.ReviewItem, error) {
	var item models.ReviewItem
	var verdictJSON string
	var reviewerNotes, correctedAnswer sql.NullString
	var reviewedBy sql.NullString
	var reviewedAt sql.NullInt64
	var createdAt int64

	err := row.Scan(
		&item.ID,
		(*string)(&item.Status),
		&item.Question,
		&item.Answer,
		&verdictJSON,
		(*string)(&item.FlagReason),
		&reviewerNotes,
		&correctedAnswer,
		&reviewedBy,
		&reviewedAt,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(verdictJSON), &item.Verdict)
	item.ReviewerNotes = reviewerNotes.String
	item.CorrectedAnswer = correctedAnswer.String
	if reviewedBy.Valid {
		item.ReviewedBy = &reviewedBy.String
	}
	if reviewedAt.Valid {
		t := time.Unix(reviewedAt.Int64, 0)
		item.ReviewedAt = &t
	}
	item.CreatedAt = time.Unix(createdAt, 0)

	return &item, nil
}
