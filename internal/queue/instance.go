package queue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultSemWaitLimit = 60 * time.Second

// storageRetryBackoff/storageRetrievalBackoff are vars rather than
// consts so tests can shrink them instead of waiting out the real
// 5-second cadence from spec §4.1.
var (
	storageRetryBackoff     = 5 * time.Second
	storageRetrievalBackoff = 5 * time.Second
)

// SetStorageBackoff overrides the retry/retrieval backoff used when a
// storage provider call fails. It applies process-wide and is meant to
// be called once at startup from config (QUEUE_STORAGE_BACKOFF), not
// per-instance — every Instance in a process shares the same backoff.
func SetStorageBackoff(d time.Duration) {
	if d <= 0 {
		return
	}
	storageRetryBackoff = d
	storageRetrievalBackoff = d
}

var tracer = otel.Tracer("jobqueue")

// Config holds the limits set once, before the first drain, per spec
// §4.2. Setting it (via Instance.SetLimits) also starts the drain
// task — it must never start earlier.
type Config struct {
	// ConcurrencyLimit bounds how many executions run at once within
	// this instance.
	ConcurrencyLimit int
	// ExecutionTimeLimit is the per-item deadline. Zero means infinite.
	ExecutionTimeLimit time.Duration
	// SemWaitLimit bounds how long the drain task idles on an empty
	// batch once the queue has ever been used. Zero defaults to 60s.
	SemWaitLimit time.Duration
}

// MetricsSink is the small seam the observability package's queue
// metrics implement; Instance never imports observability directly so
// the core stays free of the ambient stack's dependencies.
type MetricsSink interface {
	IncClaimed(queueID uint64)
	IncDone(queueID uint64)
	IncFailed(queueID uint64)
	IncRetried(queueID uint64)
	ObserveDuration(queueID uint64, result string, d time.Duration)
}

// Instance is the job queue instance from spec §4.2: one per command
// type, owning a storage handle, a readiness semaphore, a concurrency
// limit, an execution time limit, and a background drain task.
//
// Grounded on the teacher's Worker.Run/runWorker/execute/handleFailure
// in internal/queue/worker/worker.go, generalized from a job-type
// switch to a generic Command dispatched through its own Execute
// method.
type Instance[T Command] struct {
	queueID        uint64
	provider       JobStorageProvider
	codec          Codec[T]
	cancelRegistry *CancellationRegistry
	appStop        context.Context

	cfg       Config
	isInUse   atomic.Bool
	ready     chan struct{}
	startOnce sync.Once

	metrics MetricsSink
	logger  *slog.Logger
}

// New constructs a queue instance for command type T, identified by
// queueName (hashed into a stable queue id per spec §6). Construction
// alone does not start the drain task; call SetLimits to configure and
// start it. appStop is the process-stop cancellation handle captured
// at construction, per spec §4.2 step "captures a process-stop
// cancellation handle".
func New[T Command](queueName string, provider JobStorageProvider, codec Codec[T], cancelRegistry *CancellationRegistry, appStop context.Context) *Instance[T] {
	return &Instance[T]{
		queueID:        HashID(queueName),
		provider:       provider,
		codec:          codec,
		cancelRegistry: cancelRegistry,
		appStop:        appStop,
		ready:          make(chan struct{}, 1),
		logger:         slog.Default(),
	}
}

// QueueID returns the stable hash partitioning this instance's records.
func (inst *Instance[T]) QueueID() uint64 { return inst.queueID }

// InstanceInfo is a read-only snapshot of one queue instance's
// configuration and activity, used by the admin introspection
// endpoint (GET /queues — spec_full §12, no teacher equivalent).
type InstanceInfo struct {
	CommandType        string        `json:"commandType"`
	QueueID            uint64        `json:"queueId"`
	ConcurrencyLimit   int           `json:"concurrencyLimit"`
	ExecutionTimeLimit time.Duration `json:"executionTimeLimit"`
	SemWaitLimit       time.Duration `json:"semWaitLimit"`
	IsInUse            bool          `json:"isInUse"`
}

// Inspect snapshots this instance's current configuration and
// activity. CommandType is left blank here; the Registry fills it in
// since only the registry knows the type key an instance was stored
// under.
func (inst *Instance[T]) Inspect() InstanceInfo {
	return InstanceInfo{
		QueueID:            inst.queueID,
		ConcurrencyLimit:   inst.cfg.ConcurrencyLimit,
		ExecutionTimeLimit: inst.cfg.ExecutionTimeLimit,
		SemWaitLimit:       inst.cfg.SemWaitLimit,
		IsInUse:            inst.isInUse.Load(),
	}
}

// SetLogger overrides the default logger (slog.Default()).
func (inst *Instance[T]) SetLogger(l *slog.Logger) { inst.logger = l }

// SetMetrics wires a metrics sink. Nil is a valid no-op sink.
func (inst *Instance[T]) SetMetrics(m MetricsSink) { inst.metrics = m }

// SetLimits configures concurrency/timeouts and starts the drain task
// exactly once. Calling it more than once only updates the limits —
// the drain task itself is started only on the first call, per
// design note §9 ("fire-and-forget drain task...started by SetLimits
// and never awaited").
func (inst *Instance[T]) SetLimits(cfg Config) {
	if cfg.SemWaitLimit <= 0 {
		cfg.SemWaitLimit = defaultSemWaitLimit
	}
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = 1
	}
	inst.cfg = cfg

	inst.startOnce.Do(func() {
		go inst.drain()
	})
}

// StoreJob persists a newly-minted record and wakes the drain task.
// Per spec §4.2: sets the sticky is_in_use flag, builds the record
// with defaults, stores it (propagating failure to the caller, not
// retried here), releases one readiness permit, and returns the
// tracking id.
func (inst *Instance[T]) StoreJob(ctx context.Context, cmd T, executeAfter, expireOn time.Time) (string, error) {
	inst.isInUse.Store(true)

	raw, err := inst.codec.Encode(cmd)
	if err != nil {
		return "", err
	}

	record := NewJobRecord(inst.queueID, raw, executeAfter, expireOn)

	if err := inst.provider.StoreJob(ctx, record); err != nil {
		return "", err
	}

	inst.wake()

	return record.TrackingID, nil
}

// wake releases one permit on the readiness semaphore without
// blocking and without losing a permit when nobody is waiting — the
// channel already holds a pending signal in that case, and a second
// send would simply be redundant, so it's dropped.
func (inst *Instance[T]) wake() {
	select {
	case inst.ready <- struct{}{}:
	default:
	}
}

// CancelJob marks the record cancelled in storage, then best-effort
// signals the in-memory cancellation handle for trackingID regardless
// of whether the storage call succeeded — per spec §4.2/§9, the
// in-memory signal matters most when the provider itself is failing
// but the handler is still running locally.
func (inst *Instance[T]) CancelJob(ctx context.Context, trackingID string) error {
	err := inst.provider.CancelJob(ctx, trackingID)

	inst.cancelRegistry.Signal(trackingID)

	return err
}

// drain is the single long-running loop per queue instance (spec
// §4.2's pseudocode).
func (inst *Instance[T]) drain() {
	batchSize := inst.cfg.ConcurrencyLimit * 2

	for {
		if inst.appStop.Err() != nil {
			return
		}

		records, err := inst.provider.GetNextBatch(inst.appStop, BatchParams{
			QueueID: inst.queueID,
			Limit:   batchSize,
		})
		if err != nil {
			inst.logger.ErrorContext(inst.appStop, "queue.drain.fetch_failed",
				"queue_id", inst.queueID, "err", err)

			if !sleepOrStop(inst.appStop, storageRetrievalBackoff) {
				return
			}
			continue
		}

		if len(records) == 0 {
			if !inst.waitForWork() {
				return
			}
			continue
		}

		inst.executeBatch(records)
	}
}

// waitForWork blocks until the next readiness permit, or — once the
// queue has ever been used — until sem_wait_limit elapses, whichever
// first. This is the idle-wake property from spec §8: before any job
// has ever been enqueued the wait is unbounded, since there is nothing
// to rescan for; afterward the periodic rescan is required to catch
// records whose execute_after became current while idle, or records
// rescheduled by the backend out from under the core. Returns false
// only on process shutdown.
func (inst *Instance[T]) waitForWork() bool {
	if inst.isInUse.Load() {
		timer := time.NewTimer(inst.cfg.SemWaitLimit)
		defer timer.Stop()

		select {
		case <-inst.ready:
			return true
		case <-timer.C:
			return true
		case <-inst.appStop.Done():
			return false
		}
	}

	select {
	case <-inst.ready:
		return true
	case <-inst.appStop.Done():
		return false
	}
}

// executeBatch runs up to cfg.ConcurrencyLimit records concurrently
// and blocks until the whole batch finishes before returning, per
// spec §5 ("drain task awaits completion of the entire current batch
// before fetching again").
func (inst *Instance[T]) executeBatch(records []JobRecord) {
	slots := make(chan struct{}, inst.cfg.ConcurrencyLimit)
	var wg sync.WaitGroup

	for _, record := range records {
		if inst.appStop.Err() != nil {
			break
		}

		slots <- struct{}{}
		wg.Add(1)

		go func(r JobRecord) {
			defer wg.Done()
			defer func() { <-slots }()

			inst.executeOne(r)
		}(record)
	}

	wg.Wait()
}

// executeOne is ExecuteOne from spec §4.2: registers a per-execution
// cancellation token, dispatches to the decoded command, and reports
// the outcome back to storage with infinite retry.
func (inst *Instance[T]) executeOne(record JobRecord) {
	start := time.Now()

	if inst.metrics != nil {
		inst.metrics.IncClaimed(inst.queueID)
	}

	execCtx, cancel := inst.executionContext()
	inst.cancelRegistry.register(record.TrackingID, cancel)
	// Drop the registry entry as soon as the execution context ends
	// (deadline or explicit cancel), even if the handler keeps running.
	context.AfterFunc(execCtx, func() { inst.cancelRegistry.remove(record.TrackingID) })

	execCtx, span := tracer.Start(execCtx, "job.run", trace.WithAttributes(
		attribute.Int64("job.queue_id", int64(inst.queueID)),
		attribute.String("job.tracking_id", record.TrackingID),
	))
	defer span.End()

	cmd, err := inst.codec.Decode(record.Command)
	if err == nil {
		err = cmd.Execute(execCtx)
	}

	inst.cancelRegistry.remove(record.TrackingID)
	cancel()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		inst.logger.ErrorContext(inst.appStop, "queue.job.failed",
			"queue_id", inst.queueID, "tracking_id", record.TrackingID, "err", err)

		inst.reportFailure(record, err)

		if inst.metrics != nil {
			inst.metrics.IncFailed(inst.queueID)
			inst.metrics.ObserveDuration(inst.queueID, "error", time.Since(start))
		}
		return
	}

	inst.markComplete(record)

	if inst.metrics != nil {
		inst.metrics.IncDone(inst.queueID)
		inst.metrics.ObserveDuration(inst.queueID, "ok", time.Since(start))
	}
}

// executionContext derives the per-execution cancellation token: a
// deadline of ExecutionTimeLimit (if set) linked with an explicit
// Cancel(trackingID) call — but NOT linked to app-wide shutdown, by
// design (spec §5), so in-flight handlers may finish within their own
// deadline during a graceful shutdown.
func (inst *Instance[T]) executionContext() (context.Context, context.CancelFunc) {
	if inst.cfg.ExecutionTimeLimit > 0 {
		return context.WithTimeout(context.Background(), inst.cfg.ExecutionTimeLimit)
	}
	return context.WithCancel(context.Background())
}

// markComplete retries MarkJobAsComplete with a 5-second backoff until
// it succeeds or the process stops (spec §4.2 step 4).
func (inst *Instance[T]) markComplete(record JobRecord) {
	for {
		if err := inst.provider.MarkJobAsComplete(inst.appStop, record); err == nil {
			return
		} else {
			inst.logger.ErrorContext(inst.appStop, "queue.mark_complete_failed",
				"queue_id", inst.queueID, "tracking_id", record.TrackingID, "err", err)
		}

		if !sleepOrStop(inst.appStop, storageRetryBackoff) {
			return
		}
	}
}

// reportFailure retries OnHandlerExecutionFailure with a 5-second
// backoff until it succeeds or the process stops (spec §4.2 step 5);
// the record is never marked complete on this path.
func (inst *Instance[T]) reportFailure(record JobRecord, execErr error) {
	for {
		if err := inst.provider.OnHandlerExecutionFailure(inst.appStop, record, execErr); err == nil {
			if inst.metrics != nil {
				inst.metrics.IncRetried(inst.queueID)
			}
			return
		} else {
			inst.logger.ErrorContext(inst.appStop, "queue.report_failure_failed",
				"queue_id", inst.queueID, "tracking_id", record.TrackingID, "err", err)
		}

		if !sleepOrStop(inst.appStop, storageRetryBackoff) {
			return
		}
	}
}

// sleepOrStop sleeps for d, returning false early (without completing
// the sleep) if appStop is cancelled first.
func sleepOrStop(appStop context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-appStop.Done():
		return false
	}
}
