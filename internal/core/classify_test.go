package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newClassifyService(llm LLMClient, store EnrichmentStore) *EnrichmentService {
	return NewEnrichmentService(llm, store, newTestSanitizer(0), zap.NewNop(), time.Second)
}

func classifyRequest(emails ...EmailMessage) BatchRequest {
	return BatchRequest{
		Emails:     emails,
		Credential: "test-key",
		UserEmail:  "user@example.com",
	}
}

func TestClassifyRejectsMissingCredential(t *testing.T) {
	svc := newClassifyService(&fakeLLM{}, newFakeStore())

	_, err := svc.ClassifyBatch(context.Background(), BatchRequest{
		Emails:    []EmailMessage{{ID: "a"}},
		UserEmail: "user@example.com",
	})

	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestClassifyEmptyBatchShortCircuits(t *testing.T) {
	llm := &fakeLLM{}
	svc := newClassifyService(llm, newFakeStore())

	result, err := svc.ClassifyBatch(context.Background(), classifyRequest())

	require.NoError(t, err)
	assert.Empty(t, result.Results)
	assert.Equal(t, FreshnessFresh, result.Freshness)
	assert.Zero(t, llm.calls)
}

func TestClassifyEndToEndThenCacheHit(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`[{"id":"a","category":"Important","summary":"Greeting","requiresReply":false,"draftReply":""}]`,
	}}
	store := newFakeStore()
	svc := newClassifyService(llm, store)

	req := classifyRequest(EmailMessage{ID: "a", Sender: "bob@x.com", Content: "<script>x</script>Hello"})

	result, err := svc.ClassifyBatch(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, CategoryImportant, result.Results[0].Category)
	assert.Equal(t, "Greeting", result.Results[0].Summary)

	// The sanitized content, not the raw markup, must reach the prompt.
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "Hello")
	assert.NotContains(t, llm.prompts[0], "script")

	// Second identical call is served from cache without a provider call.
	again, err := svc.ClassifyBatch(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, again.Results, 1)
	assert.Equal(t, result.Results[0], again.Results[0])
	assert.Equal(t, 1, llm.calls)
}

func TestClassifyIsIdempotent(t *testing.T) {
	response := `[{"id":"a","category":"Social","summary":"s","requiresReply":true,"draftReply":"Sure. Works for me.","appliedLabels":["Travel"]}]`
	store := newFakeStore()

	svc := newClassifyService(&fakeLLM{responses: []string{response}}, store)
	_, err := svc.ClassifyBatch(context.Background(), classifyRequest(EmailMessage{ID: "a", Content: "c"}))
	require.NoError(t, err)
	first := *store.records["a"]

	// Re-running the same batch with identical provider output changes
	// nothing: the cache hit bypasses the provider entirely.
	svc = newClassifyService(&fakeLLM{responses: []string{response}}, store)
	_, err = svc.ClassifyBatch(context.Background(), classifyRequest(EmailMessage{ID: "a", Content: "c"}))
	require.NoError(t, err)

	require.Len(t, store.records, 1)
	assert.Equal(t, first.AppliedLabels, store.records["a"].AppliedLabels)
	assert.Equal(t, 1, store.upsertCalls)
}

func TestClassifyOnlyUncachedGoToProvider(t *testing.T) {
	store := newFakeStore()
	store.records["a"] = &EnrichmentRecord{EmailID: "a", Category: CategorySpam, Summary: "old"}
	llm := &fakeLLM{responses: []string{
		`[{"id":"b","category":"General","summary":"new","requiresReply":false,"draftReply":""}]`,
	}}
	svc := newClassifyService(llm, store)

	result, err := svc.ClassifyBatch(context.Background(),
		classifyRequest(EmailMessage{ID: "a", Content: "x"}, EmailMessage{ID: "b", Content: "y"}))

	require.NoError(t, err)
	require.Len(t, result.Results, 2)
	assert.Contains(t, llm.prompts[0], "id: b")
	assert.NotContains(t, llm.prompts[0], "id: a")
}

func TestClassifyParseErrorFallsBackToCache(t *testing.T) {
	store := newFakeStore()
	store.records["a"] = &EnrichmentRecord{EmailID: "a", Category: CategoryImportant, Summary: "cached"}
	llm := &fakeLLM{responses: []string{"```json\nnot json at all"}}
	svc := newClassifyService(llm, store)

	result, err := svc.ClassifyBatch(context.Background(),
		classifyRequest(EmailMessage{ID: "a", Content: "x"}, EmailMessage{ID: "b", Content: "y"}))

	require.NoError(t, err)
	assert.Equal(t, FreshnessCacheFallback, result.Freshness)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "a", result.Results[0].EmailID)
	// No partial state was written for the failed entries.
	assert.Zero(t, store.upsertCalls)
}

func TestClassifyParseErrorWithoutCacheSurfaces(t *testing.T) {
	llm := &fakeLLM{responses: []string{"garbage"}}
	svc := newClassifyService(llm, newFakeStore())

	_, err := svc.ClassifyBatch(context.Background(), classifyRequest(EmailMessage{ID: "a", Content: "x"}))

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
}

func TestClassifyPropagatesProviderErrors(t *testing.T) {
	svc := newClassifyService(&fakeLLM{err: ErrRateLimited}, newFakeStore())

	_, err := svc.ClassifyBatch(context.Background(), classifyRequest(EmailMessage{ID: "a", Content: "x"}))
	assert.ErrorIs(t, err, ErrRateLimited)

	svc = newClassifyService(&fakeLLM{err: ErrProviderTimeout}, newFakeStore())
	_, err = svc.ClassifyBatch(context.Background(), classifyRequest(EmailMessage{ID: "a", Content: "x"}))
	assert.ErrorIs(t, err, ErrProviderTimeout)
}

func TestClassifyIgnoresUnmatchedIDs(t *testing.T) {
	store := newFakeStore()
	llm := &fakeLLM{responses: []string{
		`[{"id":"zz","category":"General","summary":"?","requiresReply":false,"draftReply":""}]`,
	}}
	svc := newClassifyService(llm, store)

	result, err := svc.ClassifyBatch(context.Background(), classifyRequest(EmailMessage{ID: "a", Content: "x"}))

	require.NoError(t, err)
	// The unmatched entry is dropped and the requested email stays
	// un-enriched, retryable on a later pass.
	assert.Empty(t, result.Results)
	assert.Empty(t, store.records)
}

func TestClassifyNormalizesUnknownCategory(t *testing.T) {
	store := newFakeStore()
	llm := &fakeLLM{responses: []string{
		`[{"id":"a","category":"Newsletterish","summary":"s","requiresReply":false,"draftReply":""}]`,
	}}
	svc := newClassifyService(llm, store)

	result, err := svc.ClassifyBatch(context.Background(), classifyRequest(EmailMessage{ID: "a", Content: "x"}))

	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, CategoryGeneral, result.Results[0].Category)
}

func TestClassifyPromptMentionsCustomLabels(t *testing.T) {
	llm := &fakeLLM{responses: []string{`[]`}}
	svc := newClassifyService(llm, newFakeStore())

	req := classifyRequest(EmailMessage{ID: "a", Content: "x"})
	req.CustomLabels = []CustomLabel{{Name: "Travel", Prompt: "emails about trips or bookings"}}
	_, err := svc.ClassifyBatch(context.Background(), req)

	require.NoError(t, err)
	assert.Contains(t, llm.prompts[0], "Travel")
	assert.Contains(t, llm.prompts[0], "emails about trips or bookings")
}
