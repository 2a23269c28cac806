package core

import (
	"context"
)

// GenerateRequest is a single prompt-in, text-out call to a generative AI
// provider. The credential rides on the request so a caller-supplied key
// overrides whatever the adapter was configured with; the deadline rides
// on the context.
type GenerateRequest struct {
	Prompt       string
	Credential   string
	JSONResponse bool
}

// LLMClient is the uniform contract over generative AI providers. Errors
// map onto the pipeline taxonomy: ErrProviderTimeout, ErrRateLimited, or
// *ProviderError for anything else.
type LLMClient interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// EnrichmentStore is the durable per-user enrichment cache, keyed by
// (emailID, userEmail).
type EnrichmentStore interface {
	// GetBatch returns the records for the given ids under userEmail,
	// keyed by email id. Ids with no record are simply absent.
	GetBatch(ctx context.Context, userEmail string, emailIDs []string) (map[string]*EnrichmentRecord, error)

	// UpsertClassifications creates or updates one record per entry,
	// setting the classification fields. Existing applied labels are
	// unioned with the incoming ones and the tasksExtracted flag is
	// preserved, so re-running the same batch is idempotent.
	UpsertClassifications(ctx context.Context, userEmail string, records []*EnrichmentRecord) error

	// ApplyExtraction atomically unions labels into the record's applied
	// set and flips tasksExtracted to true, creating the record if it
	// does not exist yet. It reports whether this call was the one that
	// flipped the flag; callers append tasks only when it was.
	ApplyExtraction(ctx context.Context, userEmail, emailID string, labels []string) (claimed bool, err error)
}

// TaskStore is the per-user append-only task collection.
type TaskStore interface {
	// ListByUser returns every task in the user's list.
	ListByUser(ctx context.Context, userEmail string) ([]*Task, error)

	// AppendBatch appends new tasks in one operation.
	AppendBatch(ctx context.Context, userEmail string, tasks []*Task) error
}
