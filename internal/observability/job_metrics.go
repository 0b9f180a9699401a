package observability

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/geocoder89/jobqueue/internal/queue"
)

// counters is the atomic per-queue-id bucket the teacher originally
// kept as a single process-wide JobMetrics. Generalized here to one
// bucket per queue id, since a process now hosts several command
// types side by side.
type counters struct {
	claimed atomic.Uint64
	done    atomic.Uint64
	failed  atomic.Uint64
	retried atomic.Uint64

	durationCount atomic.Uint64
	durationTotal atomic.Int64
	durationMax   atomic.Int64
}

func (c *counters) observeDuration(d time.Duration) {
	ns := d.Nanoseconds()
	c.durationCount.Add(1)
	c.durationTotal.Add(ns)

	for {
		curr := c.durationMax.Load()
		if ns <= curr {
			return
		}
		if c.durationMax.CompareAndSwap(curr, ns) {
			return
		}
	}
}

// QueueMetricsSnapshot is the point-in-time view of one queue id's
// counters, as returned by QueueMetrics.Snapshot.
type QueueMetricsSnapshot struct {
	QueueID         uint64
	Claimed         uint64
	Done            uint64
	Failed          uint64
	Retried         uint64
	DurationCount   uint64
	AverageDuration time.Duration
	MaxDuration     time.Duration
}

// QueueMetrics implements queue.MetricsSink, keeping an in-process,
// per-queue-id atomic snapshot (readable through Snapshot; no HTTP
// route in this module renders it) and, when prom is non-nil, mirroring the same counts into the
// Prometheus vectors scraped for dashboards/alerting. Grounded on the
// teacher's JobMetrics in internal/observability/job_metrics.go,
// generalized from one process-wide bucket to one bucket per queue id.
type QueueMetrics struct {
	prom *Prom

	mu      sync.RWMutex
	buckets map[uint64]*counters
}

var _ queue.MetricsSink = (*QueueMetrics)(nil)

// NewQueueMetrics constructs a QueueMetrics. prom may be nil, in which
// case only the in-process snapshot is kept.
func NewQueueMetrics(prom *Prom) *QueueMetrics {
	return &QueueMetrics{prom: prom, buckets: make(map[uint64]*counters)}
}

func (q *QueueMetrics) bucket(queueID uint64) *counters {
	q.mu.RLock()
	c, ok := q.buckets[queueID]
	q.mu.RUnlock()
	if ok {
		return c
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if c, ok := q.buckets[queueID]; ok {
		return c
	}
	c = &counters{}
	q.buckets[queueID] = c
	return c
}

func (q *QueueMetrics) IncClaimed(queueID uint64) {
	q.bucket(queueID).claimed.Add(1)
	if q.prom != nil {
		q.prom.JobResults.WithLabelValues(label(queueID), "claimed").Inc()
		q.prom.JobsInFlight.Inc()
	}
}

func (q *QueueMetrics) IncDone(queueID uint64) {
	q.bucket(queueID).done.Add(1)
	if q.prom != nil {
		q.prom.JobResults.WithLabelValues(label(queueID), "done").Inc()
		q.prom.JobsInFlight.Dec()
	}
}

func (q *QueueMetrics) IncFailed(queueID uint64) {
	q.bucket(queueID).failed.Add(1)
	if q.prom != nil {
		q.prom.JobResults.WithLabelValues(label(queueID), "failed").Inc()
		q.prom.JobsInFlight.Dec()
	}
}

func (q *QueueMetrics) IncRetried(queueID uint64) {
	q.bucket(queueID).retried.Add(1)
	if q.prom != nil {
		q.prom.JobResults.WithLabelValues(label(queueID), "retried").Inc()
	}
}

func (q *QueueMetrics) ObserveDuration(queueID uint64, result string, d time.Duration) {
	q.bucket(queueID).observeDuration(d)
	if q.prom != nil {
		q.prom.JobDuration.WithLabelValues(label(queueID), result).Observe(d.Seconds())
	}
}

// Snapshot returns a point-in-time view of every queue id seen so far.
func (q *QueueMetrics) Snapshot() []QueueMetricsSnapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]QueueMetricsSnapshot, 0, len(q.buckets))
	for id, c := range q.buckets {
		count := c.durationCount.Load()
		total := c.durationTotal.Load()

		var avg time.Duration
		if count > 0 {
			avg = time.Duration(total / int64(count))
		}

		out = append(out, QueueMetricsSnapshot{
			QueueID:         id,
			Claimed:         c.claimed.Load(),
			Done:            c.done.Load(),
			Failed:          c.failed.Load(),
			Retried:         c.retried.Load(),
			DurationCount:   count,
			AverageDuration: avg,
			MaxDuration:     time.Duration(c.durationMax.Load()),
		})
	}
	return out
}

func label(queueID uint64) string {
	return strconv.FormatUint(queueID, 10)
}
