// Package queue implements the delayed job queue (spec.md §4.3): at-least-
// once delivery of start-auction and close-round jobs, deduplicated by job
// id, with retries and exponential backoff. Memory is an in-process
// min-heap implementation for embedded deployments and tests; the
// PostgreSQL-backed implementation lives in postgres.go.
package queue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"auctionhouse/internal/apierrors"
	"auctionhouse/internal/metrics"
)

// Kind identifies a job's payload shape.
type Kind string

const (
	KindStartAuction Kind = "start-auction"
	KindCloseRound   Kind = "close-round"
)

// MaxAttempts per kind, per spec.md §4.3 ("close-round: >= 10; start-auction: >= 3").
const (
	MaxAttemptsCloseRound   = 10
	MaxAttemptsStartAuction = 3
)

func maxAttemptsFor(kind Kind) int {
	if kind == KindCloseRound {
		return MaxAttemptsCloseRound
	}
	return MaxAttemptsStartAuction
}

// StartAuctionJobID is the deterministic job id for starting auctionID.
func StartAuctionJobID(auctionID string) string { return "auction-" + auctionID }

// CloseRoundJobID is the deterministic job id for closing roundID.
func CloseRoundJobID(roundID string) string { return "round-" + roundID }

// Job is one scheduled unit of work.
type Job struct {
	ID       string
	Kind     Kind
	Payload  map[string]string
	RunAt    time.Time
	Attempts int
	Status   JobStatus
}

// JobStatus is the job's lifecycle state, retained bounded for
// observability after it settles (spec.md §4.3).
type JobStatus string

const (
	JobScheduled JobStatus = "scheduled"
	JobRunning   JobStatus = "running"
	JobDone      JobStatus = "done"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Handler processes one job. Returning an error causes a retry with
// exponential backoff, up to the kind's max attempts.
type Handler func(ctx context.Context, job Job) error

// Queue is the delayed job queue contract.
type Queue interface {
	Schedule(ctx context.Context, id string, kind Kind, payload map[string]string, runAt time.Time) error
	Reschedule(ctx context.Context, id string, newRunAt time.Time) error
	Cancel(ctx context.Context, id string) error
	// Run processes due jobs with handler until ctx is cancelled. It is
	// the caller's background worker loop.
	Run(ctx context.Context, handler Handler)
}

// heapItem is one entry in the min-heap, ordered by RunAt.
type heapItem struct {
	job   *Job
	index int
}

type jobHeap []*heapItem

func (h jobHeap) Len() int           { return len(h) }
func (h jobHeap) Less(i, j int) bool { return h[i].job.RunAt.Before(h[j].job.RunAt) }
func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *jobHeap) Push(x any) {
	item := x.(*heapItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Memory is an in-process, min-heap-backed Queue. A single mutex guards
// the heap and the by-id index so Schedule/Reschedule/Cancel/Run never
// race.
type Memory struct {
	mu       sync.Mutex
	heap     jobHeap
	byID     map[string]*heapItem
	retained map[string]*Job // terminal jobs kept bounded for observability
	wake     chan struct{}
	backoff  time.Duration
}

// NewMemory creates an empty in-process queue. baseBackoff is the initial
// retry delay; each retry doubles it (capped implicitly by MaxAttempts).
func NewMemory(baseBackoff time.Duration) *Memory {
	return &Memory{
		byID:     make(map[string]*heapItem),
		retained: make(map[string]*Job),
		wake:     make(chan struct{}, 1),
		backoff:  baseBackoff,
	}
}

// Len returns the number of jobs currently scheduled (not yet run).
func (q *Memory) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

func (q *Memory) nudge() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Schedule inserts a new job, or is a no-op if id already exists —
// dedup by job id (spec.md §4.3).
func (q *Memory) Schedule(ctx context.Context, id string, kind Kind, payload map[string]string, runAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.byID[id]; exists {
		return nil
	}
	job := &Job{ID: id, Kind: kind, Payload: payload, RunAt: runAt, Status: JobScheduled}
	item := &heapItem{job: job}
	heap.Push(&q.heap, item)
	q.byID[id] = item
	q.nudge()
	return nil
}

// Reschedule moves the scheduled job with this id to newRunAt, in place.
// It returns apierrors.ErrNotFound when no job with that id is scheduled.
// If newRunAt is in the past, the job fires as soon as Run next polls.
func (q *Memory) Reschedule(ctx context.Context, id string, newRunAt time.Time) error {
	q.mu.Lock()
	item, exists := q.byID[id]
	if !exists {
		q.mu.Unlock()
		return fmt.Errorf("queue: reschedule %s: %w", id, apierrors.ErrNotFound)
	}
	item.job.RunAt = newRunAt
	heap.Fix(&q.heap, item.index)
	q.mu.Unlock()
	q.nudge()
	return nil
}

// Cancel removes a pending job. Jobs already running are not interrupted.
func (q *Memory) Cancel(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, exists := q.byID[id]
	if !exists {
		return nil
	}
	heap.Remove(&q.heap, item.index)
	delete(q.byID, id)
	item.job.Status = JobCancelled
	q.retain(item.job)
	return nil
}

func (q *Memory) retain(job *Job) {
	cp := *job
	q.retained[job.ID] = &cp
	if len(q.retained) > 1000 {
		for k := range q.retained {
			delete(q.retained, k)
			break
		}
	}
}

// Run processes due jobs with handler until ctx is cancelled.
func (q *Memory) Run(ctx context.Context, handler Handler) {
	for {
		q.mu.Lock()
		var wait time.Duration
		if q.heap.Len() == 0 {
			wait = time.Hour
		} else {
			next := q.heap[0].job.RunAt
			wait = time.Until(next)
			if wait < 0 {
				wait = 0
			}
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-q.wake:
			continue
		case <-time.After(wait):
		}

		q.drainDue(ctx, handler)
	}
}

func (q *Memory) drainDue(ctx context.Context, handler Handler) {
	for {
		q.mu.Lock()
		if q.heap.Len() == 0 || q.heap[0].job.RunAt.After(time.Now()) {
			q.mu.Unlock()
			return
		}
		item := heap.Pop(&q.heap).(*heapItem)
		delete(q.byID, item.job.ID)
		job := item.job
		job.Status = JobRunning
		job.Attempts++
		q.mu.Unlock()

		err := handler(ctx, *job)

		q.mu.Lock()
		if err != nil {
			if job.Attempts >= maxAttemptsFor(job.Kind) {
				job.Status = JobFailed
				q.retain(job)
			} else {
				job.Status = JobScheduled
				delay := q.backoff * (1 << uint(job.Attempts-1))
				job.RunAt = time.Now().Add(delay)
				newItem := &heapItem{job: job}
				heap.Push(&q.heap, newItem)
				q.byID[job.ID] = newItem
				metrics.JobRetries.WithLabelValues(string(job.Kind)).Inc()
			}
		} else {
			job.Status = JobDone
			q.retain(job)
		}
		q.mu.Unlock()
	}
}
