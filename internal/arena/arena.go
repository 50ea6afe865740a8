// Package arena holds one encrypted copy of each job's raw bytes, keyed by job id,
// and enforces each record's expiry.
package arena

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"studykit-backend/internal/shared/metrics"
	"studykit-backend/internal/shared/telemetry"
	"studykit-backend/internal/shared/util"
)

var (
	ErrNotFound   = errors.New("buffer not found")
	ErrDecrypt    = errors.New("buffer failed authentication")
	ErrInvalidKey = errors.New("invalid buffer key")
	ErrClosed     = errors.New("arena closed")
)

const defaultGrace = 5 * time.Second

// Record is one encrypted buffer. Records are immutable once stored.
type Record struct {
	IV         []byte
	AuthTag    []byte
	Ciphertext []byte
	CreatedAt  time.Time
	TTL        time.Duration

	timer *time.Timer
}

func (r *Record) expired(now time.Time) bool {
	return now.Sub(r.CreatedAt) > r.TTL
}

func (r *Record) wipe() {
	if r.timer != nil {
		r.timer.Stop()
	}
	util.Zero(r.Ciphertext)
	util.Zero(r.AuthTag)
}

// Options configures an Arena.
type Options struct {
	Suite Suite
	// Grace is added to a record's TTL before its deletion timer fires.
	Grace time.Duration
	Now   func() time.Time
	Rand  io.Reader
}

// Arena stores encrypted buffers. It is safe for concurrent use.
type Arena struct {
	mu      sync.Mutex
	records map[string]*Record
	suite   Suite
	grace   time.Duration
	now     func() time.Time
	rand    io.Reader
	closed  bool
}

// New constructs an empty Arena.
func New(opts Options) *Arena {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.Reader
	}
	if opts.Grace < 0 {
		opts.Grace = 0
	} else if opts.Grace == 0 {
		opts.Grace = defaultGrace
	}
	if opts.Suite == "" {
		opts.Suite = SuiteAESGCM
	}
	return &Arena{
		records: make(map[string]*Record),
		suite:   opts.Suite,
		grace:   opts.Grace,
		now:     opts.Now,
		rand:    opts.Rand,
	}
}

// Store encrypts raw under key with a fresh nonce and keeps the result for ttl.
// An existing record for jobID is replaced. Store does not retain raw.
func (a *Arena) Store(jobID string, raw, key []byte, ttl time.Duration) error {
	if jobID == "" {
		return errors.New("job id is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", ttl)
	}
	aead, err := a.suite.aead(key)
	if err != nil {
		return err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(a.rand, nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, raw, []byte(jobID))
	split := len(sealed) - TagSize

	rec := &Record{
		IV:         nonce,
		AuthTag:    append([]byte(nil), sealed[split:]...),
		Ciphertext: sealed[:split:split],
		CreatedAt:  a.now(),
		TTL:        ttl,
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		rec.wipe()
		return ErrClosed
	}
	if prev, ok := a.records[jobID]; ok {
		prev.wipe()
	}
	rec.timer = time.AfterFunc(ttl+a.grace, func() { a.expire(jobID, rec) })
	a.records[jobID] = rec
	return nil
}

// Read decrypts the record for jobID. It returns ErrNotFound when the record is absent
// or past its TTL (evicting it), and ErrDecrypt when authentication fails.
func (a *Arena) Read(jobID string, key []byte) ([]byte, error) {
	// Expiry check and copy happen under one lock so a concurrent sweep or purge
	// cannot invalidate a read that has already passed the check.
	a.mu.Lock()
	rec, ok := a.records[jobID]
	if ok && rec.expired(a.now()) {
		delete(a.records, jobID)
		rec.wipe()
		ok = false
	}
	var sealed, nonce []byte
	if ok {
		sealed = make([]byte, 0, len(rec.Ciphertext)+len(rec.AuthTag))
		sealed = append(sealed, rec.Ciphertext...)
		sealed = append(sealed, rec.AuthTag...)
		nonce = append([]byte(nil), rec.IV...)
	}
	a.mu.Unlock()

	if !ok {
		telemetry.Info("arena.read.not_found", map[string]any{"job_id": jobID})
		return nil, ErrNotFound
	}

	aead, err := a.suite.aead(key)
	if err != nil {
		telemetry.Warn("arena.read.auth_failed", map[string]any{"job_id": jobID, "error": err})
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	plain, err := aead.Open(nil, nonce, sealed, []byte(jobID))
	util.Zero(sealed)
	if err != nil {
		telemetry.Warn("arena.read.auth_failed", map[string]any{"job_id": jobID, "error": err})
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plain, nil
}

// Purge removes the record for jobID. It is idempotent.
func (a *Arena) Purge(jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rec, ok := a.records[jobID]; ok {
		delete(a.records, jobID)
		rec.wipe()
		metrics.IncArenaPurges()
	}
}

// PurgeExpired removes every record whose TTL has elapsed and returns how many were removed.
func (a *Arena) PurgeExpired() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	removed := 0
	for id, rec := range a.records {
		if rec.expired(now) {
			delete(a.records, id)
			rec.wipe()
			removed++
		}
	}
	return removed
}

// Len returns the number of records currently held.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// Close wipes all records and rejects further stores.
func (a *Arena) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, rec := range a.records {
		delete(a.records, id)
		rec.wipe()
	}
	a.closed = true
}

// expire runs from a record's deletion timer. It only removes the same record it was
// scheduled for, and only once that record is actually past its TTL.
func (a *Arena) expire(jobID string, rec *Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cur, ok := a.records[jobID]
	if !ok || cur != rec || a.now().Sub(rec.CreatedAt) < rec.TTL {
		return
	}
	delete(a.records, jobID)
	rec.wipe()
}
