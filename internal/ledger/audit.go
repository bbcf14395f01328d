package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carehub/ledger/internal/platform/metrics"
	"github.com/carehub/ledger/internal/platform/remote"
)

// AuditTask is a best-effort side effect of a committed mutation.
type AuditTask struct {
	Entity   string
	EntityID string
	Name     string
	Run      func(ctx context.Context) error
}

// AuditQueue runs audit tasks on a background worker, decoupled from the
// result of the mutation that produced them.
type AuditQueue struct {
	tasks   chan AuditTask
	timeout time.Duration
	logger  zerolog.Logger
	metrics *metrics.Ledger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewAuditQueue(size int, timeout time.Duration, logger zerolog.Logger, m *metrics.Ledger) *AuditQueue {
	if size <= 0 {
		size = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AuditQueue{
		tasks:   make(chan AuditTask, size),
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

// Start launches the worker. It exits once Close has drained the queue.
func (q *AuditQueue) Start() {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for task := range q.tasks {
			q.run(task)
		}
	}()
}

// Enqueue never blocks. A full or closed queue drops the task and reports false.
func (q *AuditQueue) Enqueue(task AuditTask) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.drop(task, "queue closed")
		return false
	}
	select {
	case q.tasks <- task:
		return true
	default:
		q.drop(task, "queue full")
		return false
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (q *AuditQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *AuditQueue) run(task AuditTask) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	if err := task.Run(ctx); err != nil {
		werr := &AuditWriteError{Entity: task.Entity, ID: task.EntityID, Task: task.Name, Err: err}
		q.metrics.ObserveAuditFailure(task.Entity)
		q.logger.Warn().Err(werr).
			Str("entity", task.Entity).
			Str("entity_id", task.EntityID).
			Str("task", task.Name).
			Msg("audit write failed")
	}
}

func (q *AuditQueue) drop(task AuditTask, reason string) {
	q.metrics.ObserveAuditDropped()
	q.logger.Warn().
		Err(&AuditWriteError{Entity: task.Entity, ID: task.EntityID, Task: task.Name, Err: errors.New(reason)}).
		Str("entity", task.Entity).
		Str("entity_id", task.EntityID).
		Msg("audit task dropped")
}

const auditTable = "ledger_audit"

// TrailEntry is one append-only audit record.
type TrailEntry struct {
	Entity     string
	EntityID   string
	NewStatus  string
	Message    string
	Actor      string
	RecordedAt time.Time
}

// TrailTask returns a task appending e to the ledger audit table.
func TrailTask(store remote.Store, e TrailEntry) AuditTask {
	return AuditTask{
		Entity:   e.Entity,
		EntityID: e.EntityID,
		Name:     "trail",
		Run: func(ctx context.Context) error {
			return store.Insert(ctx, auditTable, map[string]any{
				"id":          uuid.NewString(),
				"entity":      e.Entity,
				"entity_id":   e.EntityID,
				"new_status":  e.NewStatus,
				"message":     e.Message,
				"actor":       e.Actor,
				"recorded_at": e.RecordedAt.UTC(),
			})
		},
	}
}
