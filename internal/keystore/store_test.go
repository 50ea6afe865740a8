package keystore

import (
	"errors"
	"sync"
	"testing"
	"time"

	"studykit-backend/internal/jobs"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore() (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)}
	return New(Options{KeyTTL: 3 * time.Minute, JobTTL: 5 * time.Minute, Now: clock.Now}), clock
}

func phasePtr(p jobs.Phase) *jobs.Phase { return &p }

func TestCreateKeyAndGet(t *testing.T) {
	s, _ := newTestStore()
	defer s.Close()

	key, err := s.CreateKey("job-1")
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("expected 32-byte key, got %d", len(key))
	}

	got, err := s.GetKey("job-1")
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if string(got) != string(key) {
		t.Fatal("GetKey returned a different key")
	}

	got[0] ^= 0xff
	again, _ := s.GetKey("job-1")
	if string(again) != string(key) {
		t.Fatal("mutating a returned key must not affect the stored key")
	}
}

func TestKeyExpiresBeforeJob(t *testing.T) {
	s, clock := newTestStore()
	defer s.Close()

	if _, err := s.RegisterJob(jobs.Job{ID: "job-1", OwnerID: "owner", Kind: jobs.KindPDF}); err != nil {
		t.Fatalf("RegisterJob: %v", err)
	}
	if _, err := s.CreateKey("job-1"); err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	clock.Advance(3*time.Minute + time.Second)

	if _, err := s.GetKey("job-1"); !errors.Is(err, ErrKeyExpired) {
		t.Fatalf("expected ErrKeyExpired, got %v", err)
	}
	if _, err := s.GetJob("job-1"); err != nil {
		t.Fatalf("job should outlive its key: %v", err)
	}
	keys, _ := s.Counts()
	if keys != 0 {
		t.Fatalf("expected expired key evicted on access, got %d keys", keys)
	}

	clock.Advance(2 * time.Minute)
	if _, err := s.GetJob("job-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected job expired, got %v", err)
	}
}

func TestKeyTTLClampedToJobTTL(t *testing.T) {
	s := New(Options{KeyTTL: 10 * time.Minute, JobTTL: 5 * time.Minute})
	defer s.Close()
	if s.KeyTTL() != 5*time.Minute {
		t.Fatalf("expected key ttl clamped to 5m, got %s", s.KeyTTL())
	}
}

func TestUpdateJobRefreshesUpdatedAtAndKeepsIdentity(t *testing.T) {
	s, clock := newTestStore()
	defer s.Close()

	registered, err := s.RegisterJob(jobs.Job{ID: "job-1", OwnerID: "owner-1", Kind: jobs.KindSpreadsheet, Filename: "grades.xlsx"})
	if err != nil {
		t.Fatalf("RegisterJob: %v", err)
	}
	if registered.Phase != jobs.PhaseReceived {
		t.Fatalf("expected phase received, got %s", registered.Phase)
	}

	clock.Advance(10 * time.Second)
	updated, err := s.UpdateJob("job-1", JobUpdate{Phase: phasePtr(jobs.PhaseValidating)})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if !updated.UpdatedAt.After(registered.UpdatedAt) {
		t.Fatalf("expected UpdatedAt refreshed: before=%s after=%s", registered.UpdatedAt, updated.UpdatedAt)
	}
	if updated.ID != "job-1" || updated.OwnerID != "owner-1" || updated.Kind != jobs.KindSpreadsheet {
		t.Fatalf("identity fields changed: %+v", updated)
	}

	clock.Advance(time.Second)
	again, err := s.UpdateJob("job-1", JobUpdate{})
	if err != nil {
		t.Fatalf("empty UpdateJob: %v", err)
	}
	if !again.UpdatedAt.After(updated.UpdatedAt) {
		t.Fatal("expected empty update to refresh UpdatedAt")
	}
}

func TestUpdateJobRejectsBackwardTransition(t *testing.T) {
	s, _ := newTestStore()
	defer s.Close()

	if _, err := s.RegisterJob(jobs.Job{ID: "job-1", OwnerID: "o", Kind: jobs.KindPDF}); err != nil {
		t.Fatalf("RegisterJob: %v", err)
	}
	if _, err := s.UpdateJob("job-1", JobUpdate{Phase: phasePtr(jobs.PhaseExtracting)}); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := s.UpdateJob("job-1", JobUpdate{Phase: phasePtr(jobs.PhaseValidating)}); err == nil {
		t.Fatal("expected backward transition to be rejected")
	}
	if _, err := s.UpdateJob("missing", JobUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegisterJobRejectsDuplicate(t *testing.T) {
	s, _ := newTestStore()
	defer s.Close()

	if _, err := s.RegisterJob(jobs.Job{ID: "job-1"}); err != nil {
		t.Fatalf("RegisterJob: %v", err)
	}
	if _, err := s.RegisterJob(jobs.Job{ID: "job-1"}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestPurgeRemovesJobAndKey(t *testing.T) {
	s, _ := newTestStore()
	defer s.Close()

	if _, err := s.RegisterJob(jobs.Job{ID: "job-1"}); err != nil {
		t.Fatalf("RegisterJob: %v", err)
	}
	if _, err := s.CreateKey("job-1"); err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	s.Purge("job-1")
	s.Purge("job-1")

	if _, err := s.GetKey("job-1"); !errors.Is(err, ErrKeyExpired) {
		t.Fatalf("expected key gone, got %v", err)
	}
	if _, err := s.GetJob("job-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected job gone, got %v", err)
	}
}

func TestPurgeExpiredSweepsBothMaps(t *testing.T) {
	s, clock := newTestStore()
	defer s.Close()

	for _, id := range []string{"a", "b"} {
		if _, err := s.RegisterJob(jobs.Job{ID: id}); err != nil {
			t.Fatalf("RegisterJob %s: %v", id, err)
		}
		if _, err := s.CreateKey(id); err != nil {
			t.Fatalf("CreateKey %s: %v", id, err)
		}
	}

	clock.Advance(4 * time.Minute)
	if removed := s.PurgeExpired(); removed != 2 {
		t.Fatalf("expected 2 keys swept, got %d", removed)
	}
	keys, jobRecords := s.Counts()
	if keys != 0 || jobRecords != 2 {
		t.Fatalf("expected 0 keys and 2 jobs, got %d keys %d jobs", keys, jobRecords)
	}

	clock.Advance(2 * time.Minute)
	if removed := s.PurgeExpired(); removed != 2 {
		t.Fatalf("expected 2 jobs swept, got %d", removed)
	}
	keys, jobRecords = s.Counts()
	if keys != 0 || jobRecords != 0 {
		t.Fatalf("expected empty store, got %d keys %d jobs", keys, jobRecords)
	}
}
