// Package pipeline runs uploaded documents through the ephemeral processing pipeline:
// admission, encrypted buffering, per-kind queueing, extraction and publishing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"studykit-backend/internal/arena"
	"studykit-backend/internal/extract"
	"studykit-backend/internal/history"
	"studykit-backend/internal/jobs"
	"studykit-backend/internal/keystore"
	"studykit-backend/internal/queue"
	"studykit-backend/internal/shared/config"
	"studykit-backend/internal/shared/metrics"
	"studykit-backend/internal/shared/telemetry"
	"studykit-backend/internal/shared/util"
)

const notifyTimeout = 5 * time.Second

// Upload is one file submitted for processing.
type Upload struct {
	OwnerID     string
	Filename    string
	ContentType string
	Data        []byte
}

// Receipt acknowledges an accepted upload.
type Receipt struct {
	JobID     string     `json:"jobId"`
	Phase     jobs.Phase `json:"phase"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Options wires a Service. Arena, Keys and Queue are required; the rest have defaults.
type Options struct {
	Arena      *arena.Arena
	Keys       *keystore.Store
	Queue      *queue.Queue
	Extractors extract.Registry
	Limits     config.Limits
	History    history.Repo
	Notifier   queue.Client
	Hub        *Hub
	Content    *ContentStore
	BufferTTL  time.Duration
	Now        func() time.Time
	NewID      func() string
}

// Service coordinates the job lifecycle.
type Service struct {
	arena      *arena.Arena
	keys       *keystore.Store
	queue      *queue.Queue
	extractors extract.Registry
	limits     config.Limits
	history    history.Repo
	notifier   queue.Client
	hub        *Hub
	content    *ContentStore
	bufferTTL  time.Duration
	now        func() time.Time
	newID      func() string
}

// NewService builds a Service and registers its processor for every kind.
func NewService(opts Options) (*Service, error) {
	if opts.Arena == nil || opts.Keys == nil || opts.Queue == nil {
		return nil, errors.New("pipeline: arena, key store and queue are required")
	}
	if opts.Extractors == nil {
		opts.Extractors = extract.DefaultRegistry()
	}
	if opts.Limits == (config.Limits{}) {
		opts.Limits = config.DefaultLimits()
	}
	if opts.History == nil {
		opts.History = history.NewMemoryRepo()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Hub == nil {
		opts.Hub = NewHub(0)
	}
	if opts.Content == nil {
		opts.Content = NewContentStore(DefaultContentTTL, opts.Now)
	}
	if opts.BufferTTL <= 0 {
		opts.BufferTTL = opts.Keys.JobTTL()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	s := &Service{
		arena:      opts.Arena,
		keys:       opts.Keys,
		queue:      opts.Queue,
		extractors: opts.Extractors,
		limits:     opts.Limits,
		history:    opts.History,
		notifier:   opts.Notifier,
		hub:        opts.Hub,
		content:    opts.Content,
		bufferTTL:  opts.BufferTTL,
		now:        opts.Now,
		newID:      opts.NewID,
	}
	for _, kind := range jobs.Kinds {
		if err := s.queue.RegisterProcessor(kind, s.Process); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Hub returns the progress hub.
func (s *Service) Hub() *Hub { return s.hub }

// Limits returns the active limits.
func (s *Service) Limits() config.Limits { return s.limits }

// Accept validates an upload, encrypts it into the arena and enqueues the job. Type and
// size problems are reported before any state is created.
func (s *Service) Accept(ctx context.Context, up Upload) (Receipt, error) {
	kind, err := jobs.ResolveKind(up.ContentType, up.Filename)
	if err != nil {
		metrics.IncJobsRejected()
		return Receipt{}, err
	}
	if len(up.Data) == 0 {
		metrics.IncJobsRejected()
		return Receipt{}, fmt.Errorf("%w: file is empty", ErrInvalidUpload)
	}
	if limit := s.limits.For(kind).MaxBytes; limit > 0 && int64(len(up.Data)) > limit {
		metrics.IncJobsRejected()
		return Receipt{}, fmt.Errorf("%w: %s is larger than the %s limit for %s files",
			jobs.ErrTooLarge, humanize.IBytes(uint64(len(up.Data))), humanize.IBytes(uint64(limit)), kind)
	}
	filename, err := util.SanitizeFileName(up.Filename)
	if err != nil {
		metrics.IncJobsRejected()
		return Receipt{}, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}

	jobID := s.newID()
	key, err := s.keys.CreateKey(jobID)
	if err != nil {
		return Receipt{}, fmt.Errorf("create key: %w", err)
	}
	defer util.Zero(key)

	if err := s.arena.Store(jobID, up.Data, key, s.bufferTTL); err != nil {
		s.keys.RemoveKey(jobID)
		return Receipt{}, fmt.Errorf("store buffer: %w", err)
	}

	job, err := s.keys.RegisterJob(jobs.Job{
		ID:        jobID,
		OwnerID:   up.OwnerID,
		Kind:      kind,
		Filename:  filename,
		ByteSize:  int64(len(up.Data)),
		Phase:     jobs.PhaseReceived,
		CreatedAt: s.now(),
	})
	if err != nil {
		s.discard(jobID)
		return Receipt{}, fmt.Errorf("register job: %w", err)
	}
	s.publish(job, "upload received", "")

	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.arena.Purge(jobID)
		s.keys.Purge(jobID)
		return Receipt{}, fmt.Errorf("enqueue job: %w", err)
	}

	metrics.IncJobsAccepted()
	telemetry.Info("pipeline.job.accepted", map[string]any{
		"job_id":     job.ID,
		"kind":       string(job.Kind),
		"byte_size":  job.ByteSize,
		"owner_key":  util.HashUserKey(job.OwnerID),
		"request_id": telemetry.RequestID(ctx),
	})
	return Receipt{JobID: job.ID, Phase: job.Phase, CreatedAt: job.CreatedAt}, nil
}

// Process runs one job to a terminal phase. The arena record and key are purged on
// every exit path.
func (s *Service) Process(ctx context.Context, job jobs.Job) (err error) {
	start := s.now()
	run := &jobRun{svc: s, job: job, start: start}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrInternal, rec)
		}
		s.discard(job.ID)
		if err != nil {
			run.fail(err)
		}
		s.finish(ctx, run, err)
	}()

	key, err := s.keys.GetKey(job.ID)
	if err != nil {
		return fmt.Errorf("%w %s", ErrKeyExpired, job.ID)
	}
	defer util.Zero(key)

	data, err := s.arena.Read(job.ID, key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBufferUnavailable, err)
	}
	defer util.Zero(data)

	if err := run.advance(jobs.PhaseValidating, "checking file signature"); err != nil {
		return err
	}
	if err := sniff(job, data); err != nil {
		return err
	}

	if err := run.advance(jobs.PhaseExtracting, "extracting "+string(job.Kind)+" content"); err != nil {
		return err
	}
	lim := s.limits.For(job.Kind)
	content, err := s.extractors.Extract(extract.WithBounds(ctx, extract.Bounds{
		MaxPages:      lim.MaxPages,
		MaxSlides:     lim.MaxSlides,
		MaxWorksheets: lim.MaxWorksheets,
		MaxCells:      lim.MaxCells,
	}), job.Kind, data)
	util.Zero(data)
	if err != nil && !errors.Is(err, extract.ErrOverLimit) {
		return fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if serr := checkStructure(job.Kind, content.Metadata, lim); serr != nil {
		return serr
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStructuralLimit, err)
	}

	if err := run.advance(jobs.PhaseStructuring, "formatting content"); err != nil {
		return err
	}
	text := extract.Format(content)

	if err := run.advance(jobs.PhaseAnalyzing, "computing document statistics"); err != nil {
		return err
	}
	stats := extract.Analyze(content)

	if err := run.advance(jobs.PhasePublishing, "publishing content"); err != nil {
		return err
	}
	published := s.content.Put(Content{
		JobID:    job.ID,
		OwnerID:  job.OwnerID,
		Kind:     job.Kind,
		Filename: job.Filename,
		Text:     text,
		Metadata: content.Metadata,
		Stats:    stats,
	})
	s.notify(ctx, job, published.ReadyAt)

	detail := fmt.Sprintf("%d words, %d tables, %d equations", stats.Words, stats.Tables, stats.Equations)
	return run.advance(jobs.PhaseCompleted, detail)
}

// Status returns the job record for its owner.
func (s *Service) Status(ctx context.Context, jobID, ownerID string) (jobs.Job, error) {
	if err := ctx.Err(); err != nil {
		return jobs.Job{}, err
	}
	job, err := s.keys.GetJob(jobID)
	if err != nil {
		return jobs.Job{}, ErrNotFound
	}
	if job.OwnerID != ownerID {
		return jobs.Job{}, ErrForbidden
	}
	return job, nil
}

// Content returns published output. Jobs still in flight report ErrNotReady.
func (s *Service) Content(ctx context.Context, jobID, ownerID string) (Content, error) {
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}
	c, err := s.content.Get(jobID, ownerID)
	if !errors.Is(err, ErrNotFound) {
		return c, err
	}
	job, jerr := s.keys.GetJob(jobID)
	if jerr != nil {
		return Content{}, ErrNotFound
	}
	if job.OwnerID != ownerID {
		return Content{}, ErrForbidden
	}
	if !job.Phase.Terminal() {
		return Content{}, ErrNotReady
	}
	return Content{}, ErrNotFound
}

// History lists finished jobs for an owner.
func (s *Service) History(ctx context.Context, ownerID string, limit, offset int) ([]history.Entry, error) {
	return s.history.ListByOwner(ctx, ownerID, limit, offset)
}

// SweepResult counts what one sweep removed.
type SweepResult struct {
	Buffers int `json:"buffers"`
	Keys    int `json:"keys"`
	Content int `json:"content"`
	Events  int `json:"events"`
}

func (r SweepResult) Total() int { return r.Buffers + r.Keys + r.Content + r.Events }

// PurgeExpired sweeps every ephemeral store once.
func (s *Service) PurgeExpired() SweepResult {
	res := SweepResult{
		Buffers: s.arena.PurgeExpired(),
		Keys:    s.keys.PurgeExpired(),
		Content: s.content.PurgeExpired(),
		Events:  s.hub.ForgetBefore(s.now().Add(-s.keys.JobTTL())),
	}
	metrics.AddSweepEvicted(res.Buffers + res.Keys + res.Content)
	if res.Total() > 0 {
		telemetry.Info("pipeline.sweep", map[string]any{
			"buffers": res.Buffers,
			"keys":    res.Keys,
			"content": res.Content,
			"events":  res.Events,
		})
	}
	return res
}

// RunSweeper calls PurgeExpired every interval until ctx is cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = config.DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.PurgeExpired()
		}
	}
}

// Shutdown stops admission, waits for in-flight jobs and wipes all ephemeral state.
func (s *Service) Shutdown(ctx context.Context) error {
	s.queue.Close()
	err := s.queue.Wait(ctx)
	s.arena.Close()
	s.keys.Close()
	s.content.Clear()
	return err
}

func (s *Service) discard(jobID string) {
	s.arena.Purge(jobID)
	s.keys.RemoveKey(jobID)
}

func (s *Service) finish(ctx context.Context, run *jobRun, err error) {
	elapsed := s.now().Sub(run.start)
	metrics.ObserveJobDurationMs(float64(elapsed.Milliseconds()))

	fields := map[string]any{
		"job_id":      run.job.ID,
		"kind":        string(run.job.Kind),
		"owner_key":   util.HashUserKey(run.job.OwnerID),
		"phase":       string(run.job.Phase),
		"duration_ms": elapsed.Milliseconds(),
		"request_id":  telemetry.RequestID(ctx),
	}
	if err != nil {
		metrics.IncJobsFailed()
		fields["error"] = err
		fields["reached"] = string(run.reached)
		telemetry.Warn("pipeline.job.failed", fields)
	} else {
		metrics.IncJobsCompleted()
		telemetry.Info("pipeline.job.completed", fields)
	}

	if herr := s.history.Record(ctx, history.FromJob(run.job, s.now())); herr != nil {
		telemetry.Error("pipeline.history.record_failed", map[string]any{"job_id": run.job.ID, "error": herr})
	}
}

func (s *Service) notify(ctx context.Context, job jobs.Job, readyAt time.Time) {
	if s.notifier == nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	msg := queue.Message{
		JobID:     job.ID,
		OwnerKey:  util.HashUserKey(job.OwnerID),
		Kind:      string(job.Kind),
		RequestID: telemetry.RequestID(ctx),
		ReadyAt:   readyAt.UTC().Format(time.RFC3339),
		Version:   queue.MessageVersion,
	}
	if err := s.notifier.Send(sendCtx, msg); err != nil {
		telemetry.Warn("pipeline.notify.failed", map[string]any{"job_id": job.ID, "error": err})
	}
}

func (s *Service) publish(job jobs.Job, detail, errText string) {
	s.hub.Publish(Event{
		JobID:    job.ID,
		OwnerID:  job.OwnerID,
		Phase:    job.Phase,
		Detail:   detail,
		Progress: job.Phase.Progress(),
		Error:    errText,
		At:       s.now(),
	})
}
