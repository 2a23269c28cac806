package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inboxkit/email-enricher/internal/core"
)

const testUser = "user@example.com"

func record(id string, labels ...string) *core.EnrichmentRecord {
	return &core.EnrichmentRecord{
		EmailID:       id,
		Category:      core.CategoryGeneral,
		Summary:       "summary of " + id,
		AppliedLabels: labels,
	}
}

func TestMemoryStoreGetBatchMissingUser(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())

	got, err := s.GetBatch(context.Background(), testUser, []string{"a"})

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStoreUpsertAndGetBatch(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.UpsertClassifications(ctx, testUser, []*core.EnrichmentRecord{
		record("a", "Work"),
		record("b"),
	}))

	got, err := s.GetBatch(ctx, testUser, []string{"a", "b", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"Work"}, got["a"].AppliedLabels)
	assert.Equal(t, testUser, got["a"].UserEmail)
}

func TestMemoryStoreUpsertUnionsLabelsAndPreservesFlag(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.UpsertClassifications(ctx, testUser, []*core.EnrichmentRecord{record("a", "Work")}))
	claimed, err := s.ApplyExtraction(ctx, testUser, "a", nil)
	require.NoError(t, err)
	require.True(t, claimed)

	// Re-classifying must not shrink the label set or reset the flag.
	require.NoError(t, s.UpsertClassifications(ctx, testUser, []*core.EnrichmentRecord{record("a", "Travel")}))

	got, err := s.GetBatch(ctx, testUser, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Work", "Travel"}, got["a"].AppliedLabels)
	assert.True(t, got["a"].TasksExtracted)
}

func TestMemoryStoreApplyExtractionClaimsOnce(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.UpsertClassifications(ctx, testUser, []*core.EnrichmentRecord{record("a")}))

	first, err := s.ApplyExtraction(ctx, testUser, "a", []string{"Work"})
	require.NoError(t, err)
	second, err := s.ApplyExtraction(ctx, testUser, "a", []string{"Travel"})
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)

	// The losing call still contributes its labels.
	got, err := s.GetBatch(ctx, testUser, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Work", "Travel"}, got["a"].AppliedLabels)
}

func TestMemoryStoreApplyExtractionBeforeClassification(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	claimed, err := s.ApplyExtraction(ctx, testUser, "a", []string{"Work"})
	require.NoError(t, err)
	assert.True(t, claimed)

	got, err := s.GetBatch(ctx, testUser, []string{"a"})
	require.NoError(t, err)
	require.Contains(t, got, "a")
	assert.True(t, got["a"].TasksExtracted)
	assert.Empty(t, got["a"].Summary)
}

func TestMemoryStoreGetBatchReturnsCopies(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.UpsertClassifications(ctx, testUser, []*core.EnrichmentRecord{record("a", "Work")}))

	got, err := s.GetBatch(ctx, testUser, []string{"a"})
	require.NoError(t, err)
	got["a"].AppliedLabels[0] = "mutated"
	got["a"].Summary = "mutated"

	again, err := s.GetBatch(ctx, testUser, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Work"}, again["a"].AppliedLabels)
	assert.Equal(t, "summary of a", again["a"].Summary)
}

func TestMemoryStoreTasksPerUserIsolation(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.AppendBatch(ctx, testUser, []*core.Task{
		{ID: "t1", EmailID: "a", Title: "Send report", Status: core.TaskStatusActive},
	}))
	require.NoError(t, s.AppendBatch(ctx, "other@example.com", []*core.Task{
		{ID: "t2", EmailID: "b", Title: "Pay invoice", Status: core.TaskStatusActive},
	}))

	mine, err := s.ListByUser(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "t1", mine[0].ID)

	theirs, err := s.ListByUser(ctx, "other@example.com")
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, "t2", theirs[0].ID)
}

func TestMemoryStoreAppendBatchKeepsOrder(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.AppendBatch(ctx, testUser, []*core.Task{
		{ID: "t1"}, {ID: "t2"},
	}))
	require.NoError(t, s.AppendBatch(ctx, testUser, []*core.Task{{ID: "t3"}}))

	tasks, err := s.ListByUser(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "t1", tasks[0].ID)
	assert.Equal(t, "t3", tasks[2].ID)
}

func TestMarshalLabelsRoundTrip(t *testing.T) {
	encoded, err := marshalLabels(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", encoded)

	encoded, err = marshalLabels([]string{"Work", "Travel"})
	require.NoError(t, err)
	decoded, err := unmarshalLabels(encoded)
	require.NoError(t, err)
	assert.Equal(t, []string{"Work", "Travel"}, decoded)

	decoded, err = unmarshalLabels("")
	require.NoError(t, err)
	assert.Nil(t, decoded)
}
