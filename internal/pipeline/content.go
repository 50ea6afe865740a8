package pipeline

import (
	"sync"
	"time"

	"studykit-backend/internal/extract"
	"studykit-backend/internal/jobs"
)

// DefaultContentTTL is how long formatted output stays retrievable after completion.
const DefaultContentTTL = 30 * time.Minute

// Content is the published result of a completed job.
type Content struct {
	JobID     string           `json:"jobId"`
	OwnerID   string           `json:"-"`
	Kind      jobs.Kind        `json:"kind"`
	Filename  string           `json:"filename"`
	Text      string           `json:"text"`
	Metadata  extract.Metadata `json:"metadata"`
	Stats     extract.Stats    `json:"stats"`
	ReadyAt   time.Time        `json:"readyAt"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

type contentEntry struct {
	content Content
	// expired entries keep only ownership so lookups can answer "expired" instead of
	// "not found" for one more window.
	expired bool
}

// ContentStore keeps published output for a fixed window after completion.
type ContentStore struct {
	mu    sync.Mutex
	items map[string]*contentEntry
	ttl   time.Duration
	now   func() time.Time
}

// NewContentStore builds a store with the given availability window.
func NewContentStore(ttl time.Duration, now func() time.Time) *ContentStore {
	if ttl <= 0 {
		ttl = DefaultContentTTL
	}
	if now == nil {
		now = time.Now
	}
	return &ContentStore{items: make(map[string]*contentEntry), ttl: ttl, now: now}
}

// Put publishes c, stamping ReadyAt and ExpiresAt.
func (s *ContentStore) Put(c Content) Content {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ReadyAt = s.now()
	c.ExpiresAt = c.ReadyAt.Add(s.ttl)
	s.items[c.JobID] = &contentEntry{content: c}
	return c
}

// Get returns the content for jobID if ownerID owns it and the window is still open.
func (s *ContentStore) Get(jobID, ownerID string) (Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[jobID]
	if !ok {
		return Content{}, ErrNotFound
	}
	if entry.content.OwnerID != ownerID {
		return Content{}, ErrForbidden
	}
	if entry.expired {
		return Content{}, ErrExpired
	}
	if s.now().After(entry.content.ExpiresAt) {
		s.expireLocked(entry)
		return Content{}, ErrExpired
	}
	return entry.content, nil
}

// PurgeExpired drops the text of expired entries and forgets entries that expired more
// than one window ago. It returns how many entries changed.
func (s *ContentStore) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, entry := range s.items {
		switch {
		case now.After(entry.content.ExpiresAt.Add(s.ttl)):
			delete(s.items, id)
			n++
		case !entry.expired && now.After(entry.content.ExpiresAt):
			s.expireLocked(entry)
			n++
		}
	}
	return n
}

// Len reports entries whose text is still retrievable.
func (s *ContentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, entry := range s.items {
		if !entry.expired {
			n++
		}
	}
	return n
}

// Clear drops everything.
func (s *ContentStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*contentEntry)
}

func (s *ContentStore) expireLocked(entry *contentEntry) {
	entry.expired = true
	entry.content.Text = ""
	entry.content.Metadata = extract.Metadata{}
}
