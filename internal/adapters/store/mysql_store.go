package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/inboxkit/email-enricher/internal/core"
)

// MySQLStore is a MySQL implementation of the EnrichmentStore and
// TaskStore interfaces.
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLStore creates a new MySQL store
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS enrichment_cache (
			email_id VARCHAR(255) NOT NULL,
			user_email VARCHAR(255) NOT NULL,
			category VARCHAR(32) NOT NULL DEFAULT '',
			summary TEXT NOT NULL,
			requires_reply BOOLEAN NOT NULL DEFAULT FALSE,
			draft_reply TEXT NOT NULL,
			applied_labels TEXT NOT NULL,
			tasks_extracted BOOLEAN NOT NULL DEFAULT FALSE,
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
			id VARCHAR(36) NOT NULL,
			user_email VARCHAR(255) NOT NULL,
			email_id VARCHAR(255) NOT NULL,
			title TEXT NOT NULL,
			due_date VARCHAR(255) NOT NULL,
			is_urgent BOOLEAN NOT NULL DEFAULT FALSE,
			is_past_due BOOLEAN NOT NULL DEFAULT FALSE,
			status VARCHAR(16) NOT NULL DEFAULT 'active',
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (id),
			INDEX idx_tasks_user (user_email)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tasks table: %w", err)
	}

	return &MySQLStore{
		db:     db,
		logger: logger,
	}, nil
}

// GetBatch retrieves the records for the given ids under userEmail
func (s *MySQLStore) GetBatch(ctx context.Context, userEmail string, emailIDs []string) (map[string]*core.EnrichmentRecord, error) {
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
		var category, labelsJSON string
		if err := rows.Scan(&rec.EmailID, &category, &rec.Summary, &rec.RequiresReply,
			&rec.DraftReply, &labelsJSON, &rec.TasksExtracted, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan enrichment record: %w", err)
		}
		rec.Category = core.Category(category)
		labels, err := unmarshalLabels(labelsJSON)
		if err != nil {
			return nil, err
		}
		rec.AppliedLabels = labels
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
func (s *MySQLStore) UpsertClassifications(ctx context.Context, userEmail string, records []*core.EnrichmentRecord) error {
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
			FOR UPDATE
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
			INSERT INTO enrichment_cache
				(email_id, user_email, category, summary, requires_reply, draft_reply, applied_labels, tasks_extracted, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				category = VALUES(category),
				summary = VALUES(summary),
				requires_reply = VALUES(requires_reply),
				draft_reply = VALUES(draft_reply),
				applied_labels = VALUES(applied_labels),
				updated_at = VALUES(updated_at)
		`, rec.EmailID, userEmail, string(rec.Category), rec.Summary, rec.RequiresReply,
			rec.DraftReply, labelsJSON, tasksExtracted, rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert enrichment record: %w", err)
		}
	}

	return tx.Commit()
}

// ApplyExtraction atomically unions labels and flips the tasksExtracted
// flag inside one transaction, reporting whether this call flipped it.
// The row is locked for the duration so two concurrent extraction calls
// cannot both claim the same email.
func (s *MySQLStore) ApplyExtraction(ctx context.Context, userEmail, emailID string, labels []string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existingLabels string
	var tasksExtracted bool
	now := time.Now()

	err = tx.QueryRowContext(ctx, `
		SELECT applied_labels, tasks_extracted FROM enrichment_cache
		WHERE user_email = ? AND email_id = ?
		FOR UPDATE
	`, userEmail, emailID).Scan(&existingLabels, &tasksExtracted)

	if err == sql.ErrNoRows {
		labelsJSON, err := marshalLabels(unionLabels(nil, labels))
		if err != nil {
			return false, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO enrichment_cache
				(email_id, user_email, category, summary, requires_reply, draft_reply, applied_labels, tasks_extracted, updated_at)
			VALUES (?, ?, '', '', FALSE, '', ?, TRUE, ?)
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
		SET applied_labels = ?, tasks_extracted = TRUE, updated_at = ?
		WHERE user_email = ? AND email_id = ?
	`, labelsJSON, now, userEmail, emailID)
	if err != nil {
		return false, fmt.Errorf("failed to update extraction record: %w", err)
	}

	return !tasksExtracted, tx.Commit()
}

// ListByUser returns every task in the user's list
func (s *MySQLStore) ListByUser(ctx context.Context, userEmail string) ([]*core.Task, error) {
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
		var status string
		if err := rows.Scan(&task.ID, &task.EmailID, &task.Title, &task.Date,
			&task.IsUrgent, &task.IsPastDue, &status, &task.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		task.Status = core.TaskStatus(status)
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	return tasks, nil
}

// AppendBatch appends new tasks in one transaction
func (s *MySQLStore) AppendBatch(ctx context.Context, userEmail string, tasks []*core.Task) error {
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
			task.IsUrgent, task.IsPastDue, string(task.Status), task.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert task: %w", err)
		}
	}

	return tx.Commit()
}

// Close closes the database connection
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
