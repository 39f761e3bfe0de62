package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"teslabox/internal/queue"
)

// JobStore is the subset of queue.Store the journal needs.
type JobStore interface {
	SaveJob(ctx context.Context, rec queue.JobRecord) error
	DeleteJob(ctx context.Context, pipeline, id string) error
	ListJobs(ctx context.Context, pipeline string) ([]queue.JobRecord, error)
}

// StoreJournal persists descriptors as JSON rows in the shared state database.
type StoreJournal[J Job] struct {
	store    JobStore
	pipeline string
}

// NewStoreJournal binds a journal to one pipeline's rows.
func NewStoreJournal[J Job](store JobStore, pipeline string) *StoreJournal[J] {
	return &StoreJournal[J]{store: store, pipeline: pipeline}
}

// Load decodes every journaled job in arrival order. Rows that no longer
// decode are skipped and reported in the returned error.
func (j *StoreJournal[J]) Load(ctx context.Context) ([]J, error) {
	records, err := j.store.ListJobs(ctx, j.pipeline)
	if err != nil {
		return nil, err
	}
	jobs := make([]J, 0, len(records))
	var bad []string
	for _, rec := range records {
		var job J
		if err := json.Unmarshal(rec.State, &job); err != nil {
			bad = append(bad, rec.ID)
			continue
		}
		jobs = append(jobs, job)
	}
	if len(bad) > 0 {
		return jobs, fmt.Errorf("decode journaled jobs %v", bad)
	}
	return jobs, nil
}

// Save writes the job's current state.
func (j *StoreJournal[J]) Save(ctx context.Context, job J, attempts int, lastErr string) error {
	state, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.JobID(), err)
	}
	return j.store.SaveJob(ctx, queue.JobRecord{
		Pipeline:  j.pipeline,
		ID:        job.JobID(),
		Step:      job.CurrentStep(),
		Attempts:  attempts,
		State:     state,
		LastError: lastErr,
	})
}

// Delete removes the job's row.
func (j *StoreJournal[J]) Delete(ctx context.Context, id string) error {
	return j.store.DeleteJob(ctx, j.pipeline, id)
}
