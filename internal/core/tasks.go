package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// taskEntry and extractionEntry are the wire shapes the model must return
// per email in an extraction pass.
type taskEntry struct {
	Title     string `json:"title"`
	Date      string `json:"date"`
	IsUrgent  bool   `json:"isUrgent"`
	IsPastDue bool   `json:"isPastDue"`
}

type extractionEntry struct {
	ID            string      `json:"id"`
	Tasks         []taskEntry `json:"tasks"`
	AppliedLabels []string    `json:"appliedLabels"`
}

// TaskExtractionService orchestrates one extract-tasks-and-labels pass
// over a batch. Unlike the classify pass it deduplicates on the
// tasksExtracted flag rather than record existence: an email may already
// carry a classification record and still need task extraction.
type TaskExtractionService struct {
	llm       LLMClient
	store     EnrichmentStore
	tasks     TaskStore
	sanitizer *ContentSanitizer
	logger    *zap.Logger
	now       func() time.Time
}

// NewTaskExtractionService creates a new task extraction service.
func NewTaskExtractionService(
	llm LLMClient,
	store EnrichmentStore,
	tasks TaskStore,
	sanitizer *ContentSanitizer,
	logger *zap.Logger,
) *TaskExtractionService {
	return &TaskExtractionService{
		llm:       llm,
		store:     store,
		tasks:     tasks,
		sanitizer: sanitizer,
		logger:    logger,
		now:       time.Now,
	}
}

// ExtractBatch extracts action items and applies custom labels for every
// email not yet task-processed. Tasks are persisted server-side; the
// result only carries each email's applied label set.
//
// Task duplication is guarded twice: the atomic flag claim in the store
// (only the call that flips tasksExtracted appends tasks) and a scan of
// the user's task list loaded once at the start of the call.
func (s *TaskExtractionService) ExtractBatch(ctx context.Context, req BatchRequest) (*ExtractionResult, error) {
	if strings.TrimSpace(req.Credential) == "" {
		return nil, ErrUnauthorized
	}
	if len(req.Emails) == 0 {
		return &ExtractionResult{Freshness: FreshnessFresh}, nil
	}

	ids := make([]string, 0, len(req.Emails))
	for _, email := range req.Emails {
		ids = append(ids, email.ID)
	}

	records, err := s.store.GetBatch(ctx, req.UserEmail, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to read enrichment cache: %w", err)
	}

	doneResults := make([]LabelResult, 0, len(records))
	var toProcess []EmailMessage
	for _, email := range req.Emails {
		if rec, ok := records[email.ID]; ok && rec.TasksExtracted {
			doneResults = append(doneResults, LabelResult{
				EmailID:       email.ID,
				AppliedLabels: rec.AppliedLabels,
			})
			continue
		}
		toProcess = append(toProcess, email)
	}

	if len(toProcess) == 0 {
		s.logger.Debug("Extraction batch already fully processed",
			zap.String("user", req.UserEmail),
			zap.Int("emails", len(req.Emails)))
		return &ExtractionResult{Results: doneResults, Freshness: FreshnessFresh}, nil
	}

	// Loaded once up front; the second, independent guard against task
	// duplication besides the atomic flag claim.
	existing, err := s.tasks.ListByUser(ctx, req.UserEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to load task list: %w", err)
	}
	hasTasks := make(map[string]bool, len(existing))
	for _, task := range existing {
		hasTasks[task.EmailID] = true
	}

	sanitized := make(map[string]string, len(toProcess))
	for _, email := range toProcess {
		sanitized[email.ID] = s.sanitizer.Sanitize(email.Content)
	}

	prompt := buildExtractionPrompt(toProcess, sanitized, req.CustomLabels, s.now())

	raw, err := s.llm.Generate(ctx, GenerateRequest{
		Prompt:       prompt,
		Credential:   req.Credential,
		JSONResponse: true,
	})
	if err != nil {
		return nil, err
	}

	var entries []extractionEntry
	if err := DecodeArray(raw, &entries); err != nil {
		// Fail open: unprocessed emails stay retryable, the caller keeps
		// whatever label state was already known.
		s.logger.Warn("Model response unparseable, returning already-processed labels only",
			zap.String("user", req.UserEmail),
			zap.Error(err))
		return &ExtractionResult{Results: doneResults, Freshness: FreshnessCacheFallback}, nil
	}

	requested := make(map[string]bool, len(toProcess))
	for _, email := range toProcess {
		requested[email.ID] = true
	}

	results := doneResults
	var newTasks []*Task
	for _, entry := range entries {
		if !requested[entry.ID] {
			s.logger.Debug("Dropping entry with unmatched id", zap.String("id", entry.ID))
			continue
		}

		claimed, err := s.store.ApplyExtraction(ctx, req.UserEmail, entry.ID, entry.AppliedLabels)
		if err != nil {
			s.logger.Error("Failed to apply extraction result",
				zap.String("email_id", entry.ID),
				zap.Error(err))
			continue
		}

		if claimed && len(entry.Tasks) > 0 && !hasTasks[entry.ID] {
			for _, t := range entry.Tasks {
				newTasks = append(newTasks, s.newTask(entry.ID, t))
			}
		}

		labels := entry.AppliedLabels
		if rec, ok := records[entry.ID]; ok {
			labels = unionLabels(rec.AppliedLabels, entry.AppliedLabels)
		}
		results = append(results, LabelResult{EmailID: entry.ID, AppliedLabels: labels})
	}

	if len(newTasks) > 0 {
		if err := s.tasks.AppendBatch(ctx, req.UserEmail, newTasks); err != nil {
			return nil, fmt.Errorf("failed to persist tasks: %w", err)
		}
	}

	s.logger.Info("Extracted tasks for email batch",
		zap.String("user", req.UserEmail),
		zap.Int("already_done", len(doneResults)),
		zap.Int("processed", len(results)-len(doneResults)),
		zap.Int("tasks_created", len(newTasks)))

	return &ExtractionResult{
		Results:      results,
		Freshness:    FreshnessFresh,
		TasksCreated: len(newTasks),
	}, nil
}

func (s *TaskExtractionService) newTask(emailID string, entry taskEntry) *Task {
	date := entry.Date
	if strings.TrimSpace(date) == "" {
		date = NoDueDate
	}
	return &Task{
		ID:        uuid.NewString(),
		EmailID:   emailID,
		Title:     entry.Title,
		Date:      date,
		IsUrgent:  entry.IsUrgent,
		IsPastDue: entry.IsPastDue,
		Status:    TaskStatusActive,
		CreatedAt: s.now(),
	}
}

// unionLabels merges two label sets preserving first-seen order.
func unionLabels(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, group := range [][]string{existing, incoming} {
		for _, label := range group {
			if label == "" || seen[label] {
				continue
			}
			seen[label] = true
			merged = append(merged, label)
		}
	}
	return merged
}
