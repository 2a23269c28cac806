package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/inboxkit/email-enricher/internal/core"
)

// MemoryStore is an in-memory implementation of the EnrichmentStore and
// TaskStore interfaces, used in tests and single-node deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]*core.EnrichmentRecord // userEmail -> emailID -> record
	tasks   map[string][]*core.Task                      // userEmail -> tasks
	logger  *zap.Logger
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]map[string]*core.EnrichmentRecord),
		tasks:   make(map[string][]*core.Task),
		logger:  logger,
	}
}

// GetBatch retrieves the records for the given ids under userEmail
func (s *MemoryStore) GetBatch(ctx context.Context, userEmail string, emailIDs []string) (map[string]*core.EnrichmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*core.EnrichmentRecord)
	userRecords, ok := s.records[userEmail]
	if !ok {
		return result, nil
	}
	for _, id := range emailIDs {
		if rec, ok := userRecords[id]; ok {
			result[id] = cloneRecord(rec)
		}
	}
	return result, nil
}

// UpsertClassifications creates or updates one record per entry. Labels
// are unioned with any existing set and the tasksExtracted flag is
// preserved, so the operation is idempotent.
func (s *MemoryStore) UpsertClassifications(ctx context.Context, userEmail string, records []*core.EnrichmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userRecords, ok := s.records[userEmail]
	if !ok {
		userRecords = make(map[string]*core.EnrichmentRecord)
		s.records[userEmail] = userRecords
	}

	for _, rec := range records {
		stored := cloneRecord(rec)
		stored.UserEmail = userEmail
		if existing, ok := userRecords[rec.EmailID]; ok {
			stored.AppliedLabels = unionLabels(existing.AppliedLabels, rec.AppliedLabels)
			stored.TasksExtracted = existing.TasksExtracted
		}
		userRecords[rec.EmailID] = stored
	}
	return nil
}

// ApplyExtraction atomically unions labels and flips the tasksExtracted
// flag, reporting whether this call flipped it.
func (s *MemoryStore) ApplyExtraction(ctx context.Context, userEmail, emailID string, labels []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userRecords, ok := s.records[userEmail]
	if !ok {
		userRecords = make(map[string]*core.EnrichmentRecord)
		s.records[userEmail] = userRecords
	}

	existing, ok := userRecords[emailID]
	if !ok {
		// Extraction can run before classification; the record starts
		// with empty classification fields and classify fills them later.
		userRecords[emailID] = &core.EnrichmentRecord{
			EmailID:        emailID,
			UserEmail:      userEmail,
			AppliedLabels:  unionLabels(nil, labels),
			TasksExtracted: true,
			UpdatedAt:      time.Now(),
		}
		return true, nil
	}

	claimed := !existing.TasksExtracted
	existing.AppliedLabels = unionLabels(existing.AppliedLabels, labels)
	existing.TasksExtracted = true
	existing.UpdatedAt = time.Now()
	return claimed, nil
}

// ListByUser returns every task in the user's list
func (s *MemoryStore) ListByUser(ctx context.Context, userEmail string) ([]*core.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := s.tasks[userEmail]
	result := make([]*core.Task, 0, len(tasks))
	for _, task := range tasks {
		copied := *task
		result = append(result, &copied)
	}
	return result, nil
}

// AppendBatch appends new tasks in one operation
func (s *MemoryStore) AppendBatch(ctx context.Context, userEmail string, tasks []*core.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range tasks {
		copied := *task
		s.tasks[userEmail] = append(s.tasks[userEmail], &copied)
	}
	return nil
}

func cloneRecord(rec *core.EnrichmentRecord) *core.EnrichmentRecord {
	copied := *rec
	copied.AppliedLabels = append([]string(nil), rec.AppliedLabels...)
	return &copied
}
