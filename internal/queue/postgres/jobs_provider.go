// Package postgres implements the job queue's storage providers on top
// of pgx/pgxpool. Grounded on the teacher's internal/repo/postgres
// (JobsRepo), generalized from one jobs table with a type column to
// one row shape shared by every command type, keyed by queue_id.
package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/jobqueue/internal/observability"
	"github.com/geocoder89/jobqueue/internal/queue"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrJobNotFound is returned by CancelJob when trackingID does not
// name a record that is still incomplete (unknown, already completed,
// or already cancelled).
var ErrJobNotFound = errors.New("postgres: job not found")

// JobsProvider implements queue.JobStorageProvider against a
// queue_jobs table shaped after queue.JobRecord.
type JobsProvider struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

var _ queue.JobStorageProvider = (*JobsProvider)(nil)

// NewJobsProvider constructs a JobsProvider. prom may be nil.
func NewJobsProvider(pool *pgxpool.Pool, prom *observability.Prom) *JobsProvider {
	return &JobsProvider{pool: pool, prom: prom}
}

func (p *JobsProvider) observe(op string, fn func() error) error {
	if p.prom != nil {
		return p.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (p *JobsProvider) StoreJob(ctx context.Context, record queue.JobRecord) error {
	return p.observe("queue.jobs.store", func() error {
		_, err := p.pool.Exec(ctx, `
			INSERT INTO queue_jobs (tracking_id, queue_id, command, execute_after, expire_on, is_complete)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, record.TrackingID, record.QueueID, record.Command, record.ExecuteAfter, record.ExpireOn, record.IsComplete)
		return err
	})
}

func (p *JobsProvider) GetNextBatch(ctx context.Context, params queue.BatchParams) ([]queue.JobRecord, error) {
	var out []queue.JobRecord

	err := p.observe("queue.jobs.get_next_batch", func() error {
		rows, err := p.pool.Query(ctx, `
			SELECT tracking_id, queue_id, command, execute_after, expire_on, is_complete
			FROM queue_jobs
			WHERE queue_id = $1
			  AND NOT is_complete
			  AND execute_after <= NOW()
			  AND expire_on >= NOW()
			LIMIT $2
		`, params.QueueID, params.Limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var r queue.JobRecord
			if err := rows.Scan(&r.TrackingID, &r.QueueID, &r.Command, &r.ExecuteAfter, &r.ExpireOn, &r.IsComplete); err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *JobsProvider) MarkJobAsComplete(ctx context.Context, record queue.JobRecord) error {
	return p.observe("queue.jobs.mark_complete", func() error {
		_, err := p.pool.Exec(ctx, `
			UPDATE queue_jobs SET is_complete = true WHERE tracking_id = $1
		`, record.TrackingID)
		return err
	})
}

func (p *JobsProvider) CancelJob(ctx context.Context, trackingID string) error {
	return p.observe("queue.jobs.cancel", func() error {
		tag, err := p.pool.Exec(ctx, `
			UPDATE queue_jobs SET is_complete = true WHERE tracking_id = $1 AND NOT is_complete
		`, trackingID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrJobNotFound
		}
		return nil
	})
}

func (p *JobsProvider) OnHandlerExecutionFailure(ctx context.Context, record queue.JobRecord, execErr error) error {
	return p.observe("queue.jobs.on_handler_failure", func() error {
		_, err := p.pool.Exec(ctx, `
			UPDATE queue_jobs SET last_error = $2 WHERE tracking_id = $1
		`, record.TrackingID, execErr.Error())
		return err
	})
}
