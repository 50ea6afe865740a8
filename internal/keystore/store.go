// Package keystore holds per-job symmetric keys and per-job metadata records, each with
// its own expiry.
package keystore

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"studykit-backend/internal/arena"
	"studykit-backend/internal/jobs"
	"studykit-backend/internal/shared/util"
)

var (
	ErrKeyExpired = errors.New("ephemeral key expired")
	ErrNotFound   = errors.New("job not found")
	ErrExists     = errors.New("job already registered")
)

const (
	DefaultKeyTTL = 3 * time.Minute
	DefaultJobTTL = 5 * time.Minute
)

type keyEntry struct {
	key       []byte
	createdAt time.Time
	expiresAt time.Time
	timer     *time.Timer
}

func (e *keyEntry) wipe() {
	if e.timer != nil {
		e.timer.Stop()
	}
	util.Zero(e.key)
}

// JobUpdate carries the fields of a Job that may change after registration.
// Identity fields (ID, OwnerID, Kind) are deliberately absent.
type JobUpdate struct {
	Phase *jobs.Phase
	Error *string
}

// Options configures a Store.
type Options struct {
	KeyTTL time.Duration
	JobTTL time.Duration
	Now    func() time.Time
	Rand   io.Reader
}

// Store keeps keys and job records in separate maps guarded by one mutex.
type Store struct {
	mu     sync.Mutex
	keys   map[string]*keyEntry
	jobs   map[string]jobs.Job
	keyTTL time.Duration
	jobTTL time.Duration
	now    func() time.Time
	rand   io.Reader
}

// New constructs a Store. A key TTL longer than the job TTL is clamped so keys never
// outlive their job.
func New(opts Options) *Store {
	if opts.KeyTTL <= 0 {
		opts.KeyTTL = DefaultKeyTTL
	}
	if opts.JobTTL <= 0 {
		opts.JobTTL = DefaultJobTTL
	}
	if opts.KeyTTL > opts.JobTTL {
		opts.KeyTTL = opts.JobTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.Reader
	}
	return &Store{
		keys:   make(map[string]*keyEntry),
		jobs:   make(map[string]jobs.Job),
		keyTTL: opts.KeyTTL,
		jobTTL: opts.JobTTL,
		now:    opts.Now,
		rand:   opts.Rand,
	}
}

// KeyTTL returns the configured key lifetime.
func (s *Store) KeyTTL() time.Duration { return s.keyTTL }

// JobTTL returns the configured job record lifetime.
func (s *Store) JobTTL() time.Duration { return s.jobTTL }

// CreateKey generates a random 256-bit key for jobID, replacing any previous key.
// The returned slice is a copy owned by the caller.
func (s *Store) CreateKey(jobID string) ([]byte, error) {
	if jobID == "" {
		return nil, errors.New("job id is required")
	}
	key := make([]byte, arena.KeySize)
	if _, err := io.ReadFull(s.rand, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	now := s.now()
	entry := &keyEntry{
		key:       key,
		createdAt: now,
		expiresAt: now.Add(s.keyTTL),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.keys[jobID]; ok {
		prev.wipe()
	}
	entry.timer = time.AfterFunc(s.keyTTL, func() { s.expireKey(jobID, entry) })
	s.keys[jobID] = entry
	return append([]byte(nil), key...), nil
}

// GetKey returns a copy of the key for jobID. Missing or expired keys yield
// ErrKeyExpired; expired keys are evicted.
func (s *Store) GetKey(jobID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.keys[jobID]
	if !ok {
		return nil, ErrKeyExpired
	}
	if s.now().After(entry.expiresAt) {
		delete(s.keys, jobID)
		entry.wipe()
		return nil, ErrKeyExpired
	}
	return append([]byte(nil), entry.key...), nil
}

// RemoveKey deletes and zeroes the key for jobID. It is idempotent.
func (s *Store) RemoveKey(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeKeyLocked(jobID)
}

func (s *Store) removeKeyLocked(jobID string) {
	if entry, ok := s.keys[jobID]; ok {
		delete(s.keys, jobID)
		entry.wipe()
	}
}

// RegisterJob stores job, stamping its timestamps and expiry.
func (s *Store) RegisterJob(job jobs.Job) (jobs.Job, error) {
	if job.ID == "" {
		return jobs.Job{}, errors.New("job id is required")
	}
	now := s.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	job.ExpiresAt = job.CreatedAt.Add(s.jobTTL)
	if job.Phase == "" {
		job.Phase = jobs.PhaseReceived
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.jobs[job.ID]; ok && !existing.Expired(now) {
		return jobs.Job{}, fmt.Errorf("%w: %s", ErrExists, job.ID)
	}
	s.jobs[job.ID] = job
	return job, nil
}

// UpdateJob applies upd to the job and refreshes UpdatedAt. Phase changes must be legal
// forward transitions.
func (s *Store) UpdateJob(jobID string, upd JobUpdate) (jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	job, ok := s.jobs[jobID]
	if !ok {
		return jobs.Job{}, ErrNotFound
	}
	if job.Expired(now) {
		delete(s.jobs, jobID)
		return jobs.Job{}, ErrNotFound
	}
	if upd.Phase != nil && *upd.Phase != job.Phase {
		if !job.Phase.CanAdvanceTo(*upd.Phase) {
			return jobs.Job{}, fmt.Errorf("illegal phase transition %s -> %s", job.Phase, *upd.Phase)
		}
		job.Phase = *upd.Phase
	}
	if upd.Error != nil {
		job.Error = *upd.Error
	}
	job.UpdatedAt = now
	s.jobs[jobID] = job
	return job, nil
}

// GetJob returns the job record for jobID, evicting it when expired.
func (s *Store) GetJob(jobID string) (jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return jobs.Job{}, ErrNotFound
	}
	if job.Expired(s.now()) {
		delete(s.jobs, jobID)
		return jobs.Job{}, ErrNotFound
	}
	return job, nil
}

// Purge removes both the job record and the key for jobID.
func (s *Store) Purge(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	s.removeKeyLocked(jobID)
}

// PurgeExpired sweeps expired keys and jobs and returns how many entries were removed.
func (s *Store) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, entry := range s.keys {
		if now.After(entry.expiresAt) {
			delete(s.keys, id)
			entry.wipe()
			removed++
		}
	}
	for id, job := range s.jobs {
		if job.Expired(now) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// Counts returns the number of live keys and job records.
func (s *Store) Counts() (keys, jobRecords int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys), len(s.jobs)
}

// Close wipes every key and job record.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.keys {
		s.removeKeyLocked(id)
	}
	for id := range s.jobs {
		delete(s.jobs, id)
	}
}

func (s *Store) expireKey(jobID string, entry *keyEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.keys[jobID]
	if !ok || cur != entry || s.now().Before(entry.expiresAt) {
		return
	}
	delete(s.keys, jobID)
	entry.wipe()
}
