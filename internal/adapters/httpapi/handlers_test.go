package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inboxkit/email-enricher/internal/adapters/store"
	"github.com/inboxkit/email-enricher/internal/config"
	"github.com/inboxkit/email-enricher/internal/core"
	"github.com/inboxkit/email-enricher/internal/utils"
)

// scriptedLLM returns a fixed response or error for every call.
type scriptedLLM struct {
	response string
	err      error
}

func (l *scriptedLLM) Generate(ctx context.Context, req core.GenerateRequest) (string, error) {
	if l.err != nil {
		return "", l.err
	}
	return l.response, nil
}

func newTestServer(t *testing.T, llm core.LLMClient) (*Server, *store.MemoryStore) {
	t.Helper()
	logger := zap.NewNop()
	mem := store.NewMemoryStore(logger)
	sanitizer := core.NewContentSanitizer(0, utils.NewTextProcessor(logger))
	enrichment := core.NewEnrichmentService(llm, mem, sanitizer, logger, time.Second)
	extraction := core.NewTaskExtractionService(llm, mem, mem, sanitizer, logger)
	srv := NewServer(config.ServerConfig{ListenAddress: "127.0.0.1:0", ShutdownTimeout: time.Second},
		enrichment, extraction, mem, logger)
	return srv, mem
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedLLM{response: "[]"})

	rec := doRequest(srv, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClassifyEndpointReturnsResults(t *testing.T) {
	llm := &scriptedLLM{response: `[{"id":"a","category":"Important","summary":"Budget review","requiresReply":true,"draftReply":"Thanks. I will review it today."}]`}
	srv, _ := newTestServer(t, llm)

	body := `{"emails":[{"id":"a","sender":"boss@x.com","content":"please review"}],"credential":"key","userEmail":"u@x.com"}`
	rec := doRequest(srv, http.MethodPost, "/v1/enrich/classify", body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Enrichment-Freshness"))

	var results []core.EnrichmentResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, core.CategoryImportant, results[0].Category)
	assert.True(t, results[0].RequiresReply)
}

func TestClassifyEndpointMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedLLM{response: "[]"})

	rec := doRequest(srv, http.MethodPost, "/v1/enrich/classify", "{not json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClassifyEndpointMissingCredential(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedLLM{response: "[]"})

	body := `{"emails":[{"id":"a","sender":"x","content":"y"}],"userEmail":"u@x.com"}`
	rec := doRequest(srv, http.MethodPost, "/v1/enrich/classify", body)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestClassifyEndpointRateLimited(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedLLM{err: core.ErrRateLimited})

	body := `{"emails":[{"id":"a","sender":"x","content":"y"}],"credential":"key","userEmail":"u@x.com"}`
	rec := doRequest(srv, http.MethodPost, "/v1/enrich/classify", body)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestClassifyEndpointProviderTimeout(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedLLM{err: core.ErrProviderTimeout})

	body := `{"emails":[{"id":"a","sender":"x","content":"y"}],"credential":"key","userEmail":"u@x.com"}`
	rec := doRequest(srv, http.MethodPost, "/v1/enrich/classify", body)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestClassifyEndpointCacheFallbackHeader(t *testing.T) {
	llm := &scriptedLLM{response: "this is not JSON"}
	srv, mem := newTestServer(t, llm)

	// Seed a cached record so the unparseable response falls back instead
	// of failing the request.
	require.NoError(t, mem.UpsertClassifications(context.Background(), "u@x.com", []*core.EnrichmentRecord{
		{EmailID: "a", Category: core.CategoryGeneral, Summary: "cached"},
	}))

	body := `{"emails":[{"id":"a","sender":"x","content":"y"},{"id":"b","sender":"x","content":"z"}],"credential":"key","userEmail":"u@x.com"}`
	rec := doRequest(srv, http.MethodPost, "/v1/enrich/classify", body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(core.FreshnessCacheFallback), rec.Header().Get("X-Enrichment-Freshness"))

	var results []core.EnrichmentResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "cached", results[0].Summary)
}

func TestExtractTasksEndpointPersistsTasks(t *testing.T) {
	llm := &scriptedLLM{response: `[{"id":"a","tasks":[{"title":"Send report","date":"No due date","isUrgent":false,"isPastDue":false}],"appliedLabels":["Work"]}]`}
	srv, mem := newTestServer(t, llm)

	body := `{"emails":[{"id":"a","sender":"x","content":"send the report"}],"credential":"key","userEmail":"u@x.com"}`
	rec := doRequest(srv, http.MethodPost, "/v1/enrich/tasks", body)

	require.Equal(t, http.StatusOK, rec.Code)

	var results []core.LabelResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, []string{"Work"}, results[0].AppliedLabels)

	tasks, err := mem.ListByUser(context.Background(), "u@x.com")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Send report", tasks[0].Title)
}

func TestListTasksEndpoint(t *testing.T) {
	srv, mem := newTestServer(t, &scriptedLLM{response: "[]"})
	require.NoError(t, mem.AppendBatch(context.Background(), "u@x.com", []*core.Task{
		{ID: "t1", EmailID: "a", Title: "Send report", Status: core.TaskStatusActive},
	}))

	rec := doRequest(srv, http.MethodGet, "/v1/tasks?userEmail=u%40x.com", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var tasks []core.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "t1", tasks[0].ID)
}

func TestListTasksEndpointRequiresUser(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedLLM{response: "[]"})

	rec := doRequest(srv, http.MethodGet, "/v1/tasks", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTasksEndpointEmptyListIsArray(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedLLM{response: "[]"})

	rec := doRequest(srv, http.MethodGet, "/v1/tasks?userEmail=u%40x.com", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}
