package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"studykit-backend/internal/jobs"
	"studykit-backend/internal/shared/telemetry"
)

// DefaultConcurrency is the per-kind limit used when none is configured.
const DefaultConcurrency = 2

var (
	ErrClosed      = errors.New("queue closed")
	ErrUnknownKind = errors.New("unknown document kind")
)

// Processor handles one job. Returned errors and panics are logged; the job's slot is
// released either way.
type Processor func(ctx context.Context, job jobs.Job) error

// Stats is a snapshot of one channel's state.
type Stats struct {
	Kind    jobs.Kind `json:"kind"`
	Active  int       `json:"active"`
	Pending int       `json:"pending"`
	Limit   int       `json:"limit"`
}

type pending struct {
	ctx context.Context
	job jobs.Job
}

type channel struct {
	kind      jobs.Kind
	limit     int
	active    int
	waiting   []pending
	processor Processor
}

// Queue runs jobs on independent per-kind channels, each with its own concurrency cap.
// Jobs within a channel start in FIFO order.
type Queue struct {
	mu       sync.Mutex
	channels map[jobs.Kind]*channel
	closed   bool
	wg       sync.WaitGroup
}

// New builds a queue with one channel per known kind. Missing or non-positive limits
// fall back to DefaultConcurrency.
func New(limits map[jobs.Kind]int) *Queue {
	q := &Queue{channels: make(map[jobs.Kind]*channel, len(jobs.Kinds))}
	for _, kind := range jobs.Kinds {
		limit := limits[kind]
		if limit <= 0 {
			limit = DefaultConcurrency
		}
		q.channels[kind] = &channel{kind: kind, limit: limit}
	}
	return q
}

// RegisterProcessor installs fn for kind, replacing any previous processor.
func (q *Queue) RegisterProcessor(kind jobs.Kind, fn Processor) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.channels[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	ch.processor = fn
	q.pumpLocked(ch)
	return nil
}

// Enqueue appends job to its kind's channel. The job keeps the values of ctx but is
// not cancelled with it, so a finished HTTP request does not abort processing.
func (q *Queue) Enqueue(ctx context.Context, job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	ch, ok := q.channels[job.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, job.Kind)
	}
	ch.waiting = append(ch.waiting, pending{ctx: context.WithoutCancel(ctx), job: job})
	q.pumpLocked(ch)
	return nil
}

// Stats returns a snapshot for kind.
func (q *Queue) Stats(kind jobs.Kind) Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.channels[kind]
	if !ok {
		return Stats{Kind: kind}
	}
	return Stats{Kind: kind, Active: ch.active, Pending: len(ch.waiting), Limit: ch.limit}
}

// Close stops accepting new jobs. Jobs already queued still run.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Wait blocks until every started and queued job has finished or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) pumpLocked(ch *channel) {
	if ch.processor == nil {
		return
	}
	for ch.active < ch.limit && len(ch.waiting) > 0 {
		next := ch.waiting[0]
		ch.waiting[0] = pending{}
		ch.waiting = ch.waiting[1:]
		ch.active++
		q.wg.Add(1)
		go q.run(ch, ch.processor, next)
	}
}

func (q *Queue) run(ch *channel, fn Processor, p pending) {
	defer q.wg.Done()
	defer func() {
		q.mu.Lock()
		ch.active--
		q.pumpLocked(ch)
		q.mu.Unlock()
	}()
	defer func() {
		if rec := recover(); rec != nil {
			telemetry.Error("queue.processor.panic", map[string]any{
				"job_id": p.job.ID,
				"kind":   string(ch.kind),
				"panic":  fmt.Sprint(rec),
			})
		}
	}()

	if err := fn(p.ctx, p.job); err != nil {
		telemetry.Warn("queue.processor.error", map[string]any{
			"job_id": p.job.ID,
			"kind":   string(ch.kind),
			"error":  err,
		})
	}
}
