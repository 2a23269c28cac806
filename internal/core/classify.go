package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultClassifyTimeout bounds a single classify provider call.
const DefaultClassifyTimeout = 20 * time.Second

// classifyEntry is the wire shape the model must return per email in a
// classify pass.
type classifyEntry struct {
	ID            string   `json:"id"`
	Category      string   `json:"category"`
	Summary       string   `json:"summary"`
	RequiresReply bool     `json:"requiresReply"`
	DraftReply    string   `json:"draftReply"`
	AppliedLabels []string `json:"appliedLabels"`
}

// EnrichmentService orchestrates one classify pass over a batch:
// cache-split, sanitize, prompt, validate, persist, merge.
type EnrichmentService struct {
	llm             LLMClient
	store           EnrichmentStore
	sanitizer       *ContentSanitizer
	logger          *zap.Logger
	classifyTimeout time.Duration
}

// NewEnrichmentService creates a new enrichment service. A non-positive
// classifyTimeout falls back to DefaultClassifyTimeout.
func NewEnrichmentService(
	llm LLMClient,
	store EnrichmentStore,
	sanitizer *ContentSanitizer,
	logger *zap.Logger,
	classifyTimeout time.Duration,
) *EnrichmentService {
	if classifyTimeout <= 0 {
		classifyTimeout = DefaultClassifyTimeout
	}
	return &EnrichmentService{
		llm:             llm,
		store:           store,
		sanitizer:       sanitizer,
		logger:          logger,
		classifyTimeout: classifyTimeout,
	}
}

// ClassifyBatch enriches every email in the batch with category, summary,
// reply suggestion and applied labels, calling the provider only for
// emails with no cached record. Re-running the same batch with identical
// provider output yields identical stored state.
func (s *EnrichmentService) ClassifyBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if strings.TrimSpace(req.Credential) == "" {
		return nil, ErrUnauthorized
	}
	if len(req.Emails) == 0 {
		return &BatchResult{Freshness: FreshnessFresh}, nil
	}

	ids := make([]string, 0, len(req.Emails))
	for _, email := range req.Emails {
		ids = append(ids, email.ID)
	}

	cached, err := s.store.GetBatch(ctx, req.UserEmail, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to read enrichment cache: %w", err)
	}

	cachedResults := make([]EnrichmentResult, 0, len(cached))
	var uncached []EmailMessage
	for _, email := range req.Emails {
		if rec, ok := cached[email.ID]; ok {
			cachedResults = append(cachedResults, recordToResult(rec))
			continue
		}
		uncached = append(uncached, email)
	}

	if len(uncached) == 0 {
		s.logger.Debug("Classify batch fully served from cache",
			zap.String("user", req.UserEmail),
			zap.Int("emails", len(req.Emails)))
		return &BatchResult{Results: cachedResults, Freshness: FreshnessFresh}, nil
	}

	sanitized := make(map[string]string, len(uncached))
	for _, email := range uncached {
		sanitized[email.ID] = s.sanitizer.Sanitize(email.Content)
	}

	prompt := buildClassifyPrompt(uncached, sanitized, req.CustomLabels)

	callCtx, cancel := context.WithTimeout(ctx, s.classifyTimeout)
	defer cancel()

	raw, err := s.llm.Generate(callCtx, GenerateRequest{
		Prompt:       prompt,
		Credential:   req.Credential,
		JSONResponse: true,
	})
	if err != nil {
		return nil, err
	}

	var entries []classifyEntry
	if err := DecodeArray(raw, &entries); err != nil {
		// Fail open: stale-but-available beats blanking the caller's
		// state, as long as there is something cached to fall back on.
		if len(cachedResults) > 0 {
			s.logger.Warn("Model response unparseable, returning cached results only",
				zap.String("user", req.UserEmail),
				zap.Error(err))
			return &BatchResult{Results: cachedResults, Freshness: FreshnessCacheFallback}, nil
		}
		return nil, err
	}

	if len(entries) != len(uncached) {
		s.logger.Warn("Model returned unexpected entry count",
			zap.Int("expected", len(uncached)),
			zap.Int("got", len(entries)))
	}

	requested := make(map[string]bool, len(uncached))
	for _, email := range uncached {
		requested[email.ID] = true
	}

	now := time.Now()
	records := make([]*EnrichmentRecord, 0, len(entries))
	results := cachedResults
	for _, entry := range entries {
		if !requested[entry.ID] {
			s.logger.Debug("Dropping entry with unmatched id", zap.String("id", entry.ID))
			continue
		}
		rec := &EnrichmentRecord{
			EmailID:       entry.ID,
			UserEmail:     req.UserEmail,
			Category:      NormalizeCategory(entry.Category),
			Summary:       entry.Summary,
			RequiresReply: entry.RequiresReply,
			DraftReply:    entry.DraftReply,
			AppliedLabels: entry.AppliedLabels,
			UpdatedAt:     now,
		}
		records = append(records, rec)
		results = append(results, recordToResult(rec))
	}

	if len(records) > 0 {
		if err := s.store.UpsertClassifications(ctx, req.UserEmail, records); err != nil {
			return nil, fmt.Errorf("failed to persist enrichment records: %w", err)
		}
	}

	s.logger.Info("Classified email batch",
		zap.String("user", req.UserEmail),
		zap.Int("cached", len(cachedResults)),
		zap.Int("classified", len(records)))

	return &BatchResult{Results: results, Freshness: FreshnessFresh}, nil
}

func recordToResult(rec *EnrichmentRecord) EnrichmentResult {
	return EnrichmentResult{
		EmailID:       rec.EmailID,
		Category:      rec.Category,
		Summary:       rec.Summary,
		RequiresReply: rec.RequiresReply,
		DraftReply:    rec.DraftReply,
		AppliedLabels: rec.AppliedLabels,
	}
}
