package core

import (
	"time"
)

// Category is the closed set of classifications an email can receive.
type Category string

const (
	CategoryImportant  Category = "Important"
	CategoryPromotions Category = "Promotions"
	CategorySocial     Category = "Social"
	CategorySpam       Category = "Spam"
	CategoryGeneral    Category = "General"
)

// NormalizeCategory maps arbitrary model output onto the closed category
// set, falling back to General for anything unrecognized.
func NormalizeCategory(raw string) Category {
	switch Category(raw) {
	case CategoryImportant, CategoryPromotions, CategorySocial, CategorySpam, CategoryGeneral:
		return Category(raw)
	default:
		return CategoryGeneral
	}
}

// TaskStatus is the lifecycle state of an extracted task.
type TaskStatus string

const (
	TaskStatusActive TaskStatus = "active"
	TaskStatusDone   TaskStatus = "done"
)

// NoDueDate is stored verbatim when the model extracts no due date.
const NoDueDate = "No due date"

// EmailMessage is an inbound email as delivered by the mail-retrieval
// collaborator. The pipeline never mutates it.
type EmailMessage struct {
	ID      string `json:"id"`
	Sender  string `json:"sender"`
	Subject string `json:"subject,omitempty"`
	Content string `json:"content"`
}

// CustomLabel is a user-defined natural-language labeling rule evaluated
// by the model against each email.
type CustomLabel struct {
	Name               string `json:"name"`
	Prompt             string `json:"prompt"`
	Color              string `json:"color,omitempty"`
	ApplyRetroactively bool   `json:"applyRetroactively,omitempty"`
}

// EnrichmentRecord is the durable per-user, per-email enrichment state.
// Exactly one record exists per (EmailID, UserEmail) pair. AppliedLabels
// only ever grows across passes.
type EnrichmentRecord struct {
	EmailID        string
	UserEmail      string
	Category       Category
	Summary        string
	RequiresReply  bool
	DraftReply     string
	AppliedLabels  []string
	TasksExtracted bool
	UpdatedAt      time.Time
}

// Task is a single action item extracted from an email. Created once by
// the pipeline and never mutated by it afterwards.
type Task struct {
	ID        string     `json:"id"`
	EmailID   string     `json:"emailId"`
	Title     string     `json:"title"`
	Date      string     `json:"date"`
	IsUrgent  bool       `json:"isUrgent"`
	IsPastDue bool       `json:"isPastDue"`
	Status    TaskStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
}

// BatchRequest is one enrichment pass over a batch of emails for one user.
// The credential is threaded explicitly through every call; nothing is
// read from ambient process state.
type BatchRequest struct {
	Emails       []EmailMessage `json:"emails"`
	Credential   string         `json:"credential"`
	UserEmail    string         `json:"userEmail"`
	CustomLabels []CustomLabel  `json:"customLabels,omitempty"`
}

// EnrichmentResult is the classification outcome for a single email.
type EnrichmentResult struct {
	EmailID       string   `json:"id"`
	Category      Category `json:"category"`
	Summary       string   `json:"summary"`
	RequiresReply bool     `json:"requiresReply"`
	DraftReply    string   `json:"draftReply"`
	AppliedLabels []string `json:"appliedLabels,omitempty"`
}

// LabelResult is the label outcome of a task-extraction pass for a single
// email; extracted tasks are persisted server-side, not returned.
type LabelResult struct {
	EmailID       string   `json:"id"`
	AppliedLabels []string `json:"appliedLabels"`
}

// Freshness distinguishes fully fresh results from a cached fallback
// returned after the provider's output could not be used.
type Freshness string

const (
	FreshnessFresh         Freshness = "fresh"
	FreshnessCacheFallback Freshness = "cache_fallback"
)

// BatchResult is the outcome of one classify pass.
type BatchResult struct {
	Results   []EnrichmentResult
	Freshness Freshness
}

// ExtractionResult is the outcome of one task-extraction pass.
type ExtractionResult struct {
	Results      []LabelResult
	Freshness    Freshness
	TasksCreated int
}
