package core

import (
	"context"
	"errors"
)

// fakeLLM replays scripted responses and records the prompts it was
// handed.
type fakeLLM struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (f *fakeLLM) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, req.Prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("fakeLLM: no scripted response left")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

// fakeStore is a minimal single-process EnrichmentStore with call
// counters, keyed by emailID only since tests use a single user.
type fakeStore struct {
	records      map[string]*EnrichmentRecord
	upsertCalls  int
	applyCalls   int
	claimResults map[string]bool // forced ApplyExtraction outcomes per id
	getErr       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*EnrichmentRecord)}
}

func (f *fakeStore) GetBatch(ctx context.Context, userEmail string, emailIDs []string) (map[string]*EnrichmentRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	result := make(map[string]*EnrichmentRecord)
	for _, id := range emailIDs {
		if rec, ok := f.records[id]; ok {
			copied := *rec
			copied.AppliedLabels = append([]string(nil), rec.AppliedLabels...)
			result[id] = &copied
		}
	}
	return result, nil
}

func (f *fakeStore) UpsertClassifications(ctx context.Context, userEmail string, records []*EnrichmentRecord) error {
	f.upsertCalls++
	for _, rec := range records {
		stored := *rec
		stored.AppliedLabels = append([]string(nil), rec.AppliedLabels...)
		if existing, ok := f.records[rec.EmailID]; ok {
			stored.AppliedLabels = unionLabels(existing.AppliedLabels, rec.AppliedLabels)
			stored.TasksExtracted = existing.TasksExtracted
		}
		f.records[rec.EmailID] = &stored
	}
	return nil
}

func (f *fakeStore) ApplyExtraction(ctx context.Context, userEmail, emailID string, labels []string) (bool, error) {
	f.applyCalls++
	if forced, ok := f.claimResults[emailID]; ok {
		return forced, nil
	}
	existing, ok := f.records[emailID]
	if !ok {
		f.records[emailID] = &EnrichmentRecord{
			EmailID:        emailID,
			UserEmail:      userEmail,
			AppliedLabels:  unionLabels(nil, labels),
			TasksExtracted: true,
		}
		return true, nil
	}
	claimed := !existing.TasksExtracted
	existing.AppliedLabels = unionLabels(existing.AppliedLabels, labels)
	existing.TasksExtracted = true
	return claimed, nil
}

// fakeTaskStore is a minimal in-memory TaskStore.
type fakeTaskStore struct {
	tasks       []*Task
	appendCalls int
}

func (f *fakeTaskStore) ListByUser(ctx context.Context, userEmail string) ([]*Task, error) {
	return append([]*Task(nil), f.tasks...), nil
}

func (f *fakeTaskStore) AppendBatch(ctx context.Context, userEmail string, tasks []*Task) error {
	f.appendCalls++
	f.tasks = append(f.tasks, tasks...)
	return nil
}
