// Package queue implements the execution core's Job Queue (spec §4.2): a
// durable FIFO of job tickets backed by a single JSON file, rewritten
// atomically on every mutation. Grounded on server/services/work_queue's
// durable FIFO semantics, generalized from a SQL-backed queue to a flat
// JSON file per spec §6.
package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/buildbeaver/workflow-engine/internal/gerror"
	"github.com/buildbeaver/workflow-engine/internal/logger"
	"github.com/buildbeaver/workflow-engine/internal/models"
)

// DefaultMaxRedeliveries bounds how many times a single ticket may be
// re-enqueued by the worker's dependency gate before it is dead-lettered
// (spec §9 Open Questions; resolved in SPEC_FULL.md).
const DefaultMaxRedeliveries = 50

// ErrQueueFull is returned by Add when MaxQueueSize is exceeded (spec §5 Backpressure).
var ErrQueueFull = gerror.NewErrUnavailable("job queue is full")

// Queue is the Job Queue contract (spec §4.2).
type Queue interface {
	Add(ticket models.JobTicket) error
	Next() (models.JobTicket, bool, error)
	Size() int
	Snapshot() []models.JobTicket
	Contains(workflowID models.WorkflowID, stepID models.StepID) bool
}

// FileQueue is a Queue backed by a single JSON array file, guarded by a
// process-wide mutex (spec §5: "Access is guarded by a process-wide mutex").
type FileQueue struct {
	path         string
	maxQueueSize int // 0 means unbounded

	mu      sync.Mutex
	tickets []models.JobTicket
	log     logger.Log
}

type Option func(*FileQueue)

// WithMaxQueueSize caps the number of tickets the queue will hold;
// Add returns ErrQueueFull once the cap is reached (spec §5 Backpressure).
func WithMaxQueueSize(n int) Option {
	return func(q *FileQueue) { q.maxQueueSize = n }
}

func NewFileQueue(path string, logFactory logger.LogFactory, opts ...Option) (*FileQueue, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "error creating queue state directory")
	}
	q := &FileQueue{path: path, log: logFactory("JobQueue")}
	for _, opt := range opts {
		opt(q)
	}
	if err := q.load(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *FileQueue) load() error {
	data, err := os.ReadFile(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			q.tickets = nil
			return nil
		}
		return errors.Wrap(err, "error reading queue state file")
	}
	if len(data) == 0 {
		q.tickets = nil
		return nil
	}
	var tickets []models.JobTicket
	if err := json.Unmarshal(data, &tickets); err != nil {
		return errors.Wrap(err, "error parsing queue state file")
	}
	q.tickets = tickets
	return nil
}

// persist rewrites the whole queue file atomically. Caller must hold q.mu.
func (q *FileQueue) persist() error {
	data, err := json.MarshalIndent(q.tickets, "", "  ")
	if err != nil {
		return errors.Wrap(err, "error marshalling queue state")
	}
	dir := filepath.Dir(q.path)
	tmp, err := os.CreateTemp(dir, "queue-*.json.tmp")
	if err != nil {
		return errors.Wrap(err, "error creating temp queue file")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "error writing temp queue file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "error syncing temp queue file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "error closing temp queue file")
	}
	if err := os.Rename(tmpPath, q.path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "error renaming temp queue file into place")
	}
	return nil
}

// Add appends a ticket and durably persists the queue (spec §4.2: "Every
// mutation is followed by a durable write of the whole queue").
func (q *FileQueue) Add(ticket models.JobTicket) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxQueueSize > 0 && len(q.tickets) >= q.maxQueueSize {
		return ErrQueueFull
	}
	q.tickets = append(q.tickets, ticket)
	if err := q.persist(); err != nil {
		// Roll back the in-memory append so a failed write can't be
		// observed as having succeeded by a later Snapshot/Size call.
		q.tickets = q.tickets[:len(q.tickets)-1]
		return err
	}
	return nil
}

// Next dequeues the oldest ticket, or returns ok=false if the queue is empty.
func (q *FileQueue) Next() (models.JobTicket, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tickets) == 0 {
		return models.JobTicket{}, false, nil
	}
	ticket := q.tickets[0]
	remaining := q.tickets[1:]
	q.tickets = append([]models.JobTicket(nil), remaining...)
	if err := q.persist(); err != nil {
		// Put it back; the caller observes no dequeue happened.
		q.tickets = append([]models.JobTicket{ticket}, q.tickets...)
		return models.JobTicket{}, false, err
	}
	return ticket, true, nil
}

func (q *FileQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tickets)
}

// Snapshot returns an ordered copy of all pending tickets, for inspection
// and best-effort duplicate suppression by producers (spec §4.2).
func (q *FileQueue) Snapshot() []models.JobTicket {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.JobTicket, len(q.tickets))
	copy(out, q.tickets)
	return out
}

// Contains reports whether a ticket for this (workflow, step) pair is
// already queued, ignoring RedeliveryCount.
func (q *FileQueue) Contains(workflowID models.WorkflowID, stepID models.StepID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.tickets {
		if t.WorkflowID == workflowID && t.StepID == stepID {
			return true
		}
	}
	return false
}
