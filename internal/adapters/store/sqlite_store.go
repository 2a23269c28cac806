package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/inboxkit/email-enricher/internal/core"
)

// SQLiteStore is a SQLite implementation of the EnrichmentStore and
// TaskStore interfaces.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// One record per (user_email, email_id); the primary key enforces it.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS enrichment_cache (
			email_id TEXT NOT NULL,
			user_email TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			requires_reply BOOLEAN NOT NULL DEFAULT 0,
			draft_reply TEXT NOT NULL DEFAULT '',
			applied_labels TEXT NOT NULL DEFAULT '[]',
			tasks_extracted BOOLEAN NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_email, email_id)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create enrichment_cache table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			user_email TEXT NOT NULL,
			email_id TEXT NOT NULL,
			title TEXT NOT NULL,
			due_date TEXT NOT NULL,
			is_urgent BOOLEAN NOT NULL DEFAULT 0,
			is_past_due BOOLEAN NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tasks table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_email)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger,
	}, nil
}

// GetBatch retrieves the records for the given ids under userEmail
func (s *SQLiteStore) GetBatch(ctx context.Context, userEmail string, emailIDs []string) (map[string]*core.EnrichmentRecord, error) {
	result := make(map[string]*core.EnrichmentRecord)
	if len(emailIDs) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(emailIDs)), ",")
	args := make([]interface{}, 0, len(emailIDs)+1)
	args = append(args, userEmail)
	for _, id := range emailIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT email_id, category, summary, requires_reply, draft_reply, applied_labels, tasks_extracted, updated_at
		FROM enrichment_cache
		WHERE user_email = ? AND email_id IN (%s)
	`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrichment cache: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec := &core.EnrichmentRecord{UserEmail: userEmail}
		var category, labelsJSON, updatedAt string
		if err := rows.Scan(&rec.EmailID, &category, &rec.Summary, &rec.RequiresReply,
			&rec.DraftReply, &labelsJSON, &rec.TasksExtracted, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan enrichment record: %w", err)
		}
		rec.Category = core.Category(category)
		labels, err := unmarshalLabels(labelsJSON)
		if err != nil {
			return nil, err
		}
		rec.AppliedLabels = labels
		if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			rec.UpdatedAt = ts
		}
		result[rec.EmailID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate enrichment records: %w", err)
	}

	return result, nil
}

// UpsertClassifications creates or updates one record per entry inside a
// single transaction, unioning labels and preserving the tasksExtracted
// flag so the operation is idempotent.
func (s *SQLiteStore) UpsertClassifications(ctx context.Context, userEmail string, records []*core.EnrichmentRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		var existingLabels string
		var tasksExtracted bool
		labels := rec.AppliedLabels

		err := tx.QueryRowContext(ctx, `
			SELECT applied_labels, tasks_extracted FROM enrichment_cache
			WHERE user_email = ? AND email_id = ?
		`, userEmail, rec.EmailID).Scan(&existingLabels, &tasksExtracted)
		switch {
		case err == sql.ErrNoRows:
			// First classification for this email.
		case err != nil:
			return fmt.Errorf("failed to read existing record: %w", err)
		default:
			existing, err := unmarshalLabels(existingLabels)
			if err != nil {
				return err
			}
			labels = unionLabels(existing, rec.AppliedLabels)
		}

		labelsJSON, err := marshalLabels(labels)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO enrichment_cache
				(email_id, user_email, category, summary, requires_reply, draft_reply, applied_labels, tasks_extracted, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.EmailID, userEmail, string(rec.Category), rec.Summary, rec.RequiresReply,
			rec.DraftReply, labelsJSON, tasksExtracted, rec.UpdatedAt.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to upsert enrichment record: %w", err)
		}
	}

	return tx.Commit()
}

// ApplyExtraction atomically unions labels and flips the tasksExtracted
// flag inside one transaction, reporting whether this call flipped it.
func (s *SQLiteStore) ApplyExtraction(ctx context.Context, userEmail, emailID string, labels []string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existingLabels string
	var tasksExtracted bool
	now := time.Now().Format(time.RFC3339)

	err = tx.QueryRowContext(ctx, `
		SELECT applied_labels, tasks_extracted FROM enrichment_cache
		WHERE user_email = ? AND email_id = ?
	`, userEmail, emailID).Scan(&existingLabels, &tasksExtracted)

	if err == sql.ErrNoRows {
		labelsJSON, err := marshalLabels(unionLabels(nil, labels))
		if err != nil {
			return false, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO enrichment_cache
				(email_id, user_email, category, summary, requires_reply, draft_reply, applied_labels, tasks_extracted, updated_at)
			VALUES (?, ?, '', '', 0, '', ?, 1, ?)
		`, emailID, userEmail, labelsJSON, now)
		if err != nil {
			return false, fmt.Errorf("failed to insert extraction record: %w", err)
		}
		return true, tx.Commit()
	}
	if err != nil {
		return false, fmt.Errorf("failed to read existing record: %w", err)
	}

	existing, err := unmarshalLabels(existingLabels)
	if err != nil {
		return false, err
	}
	labelsJSON, err := marshalLabels(unionLabels(existing, labels))
	if err != nil {
		return false, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE enrichment_cache
		SET applied_labels = ?, tasks_extracted = 1, updated_at = ?
		WHERE user_email = ? AND email_id = ?
	`, labelsJSON, now, userEmail, emailID)
	if err != nil {
		return false, fmt.Errorf("failed to update extraction record: %w", err)
	}

	return !tasksExtracted, tx.Commit()
}

// ListByUser returns every task in the user's list
func (s *SQLiteStore) ListByUser(ctx context.Context, userEmail string) ([]*core.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email_id, title, due_date, is_urgent, is_past_due, status, created_at
		FROM tasks
		WHERE user_email = ?
	`, userEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*core.Task
	for rows.Next() {
		task := &core.Task{}
		var status, createdAt string
		if err := rows.Scan(&task.ID, &task.EmailID, &task.Title, &task.Date,
			&task.IsUrgent, &task.IsPastDue, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		task.Status = core.TaskStatus(status)
		if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
			task.CreatedAt = ts
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	return tasks, nil
}

// AppendBatch appends new tasks in one transaction
func (s *SQLiteStore) AppendBatch(ctx context.Context, userEmail string, tasks []*core.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, task := range tasks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (id, user_email, email_id, title, due_date, is_urgent, is_past_due, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, task.ID, userEmail, task.EmailID, task.Title, task.Date,
			task.IsUrgent, task.IsPastDue, string(task.Status), task.CreatedAt.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to insert task: %w", err)
		}
	}

	return tx.Commit()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
