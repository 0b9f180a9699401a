// Package memstore provides in-memory queue.JobStorageProvider and
// queue.EventStorageProvider implementations, for local development
// and tests where a Postgres instance isn't worth standing up.
// Grounded on the teacher's internal/repo/memory in-memory repos,
// generalized to the job/event record shapes in queue.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/jobqueue/internal/queue"
)

// JobsProvider is a mutex-protected map keyed by tracking id. It is
// safe for concurrent use by multiple queue instances; records are
// kept apart by queue id, so several instances may share one
// JobsProvider, as commands.NewInstances does with its provider.
type JobsProvider struct {
	mu      sync.Mutex
	records map[string]queue.JobRecord
}

var _ queue.JobStorageProvider = (*JobsProvider)(nil)

func NewJobsProvider() *JobsProvider {
	return &JobsProvider{records: make(map[string]queue.JobRecord)}
}

func (p *JobsProvider) StoreJob(ctx context.Context, record queue.JobRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[record.TrackingID] = record
	return nil
}

func (p *JobsProvider) GetNextBatch(ctx context.Context, params queue.BatchParams) ([]queue.JobRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	out := make([]queue.JobRecord, 0, params.Limit)

	for _, r := range p.records {
		if r.QueueID != params.QueueID || r.IsComplete {
			continue
		}
		if now.Before(r.ExecuteAfter) || now.After(r.ExpireOn) {
			continue
		}
		out = append(out, r)
		if len(out) >= params.Limit {
			break
		}
	}
	return out, nil
}

func (p *JobsProvider) MarkJobAsComplete(ctx context.Context, record queue.JobRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.records[record.TrackingID]; ok {
		r.IsComplete = true
		p.records[record.TrackingID] = r
	}
	return nil
}

func (p *JobsProvider) CancelJob(ctx context.Context, trackingID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.records[trackingID]; ok {
		r.IsComplete = true
		p.records[trackingID] = r
	}
	return nil
}

func (p *JobsProvider) OnHandlerExecutionFailure(ctx context.Context, record queue.JobRecord, execErr error) error {
	// No dead-letter or reschedule policy for the in-memory backend:
	// the failure was already reported (the handler's own error), and
	// nothing further needs to change in the record for development
	// use.
	return nil
}
