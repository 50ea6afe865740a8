package history

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]map[string]Entry // ownerID -> jobID -> entry
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string]map[string]Entry),
	}
}

// Record inserts or replaces the entry for a job.
func (r *MemoryRepo) Record(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	owned, ok := r.data[entry.OwnerID]
	if !ok {
		owned = make(map[string]Entry)
		r.data[entry.OwnerID] = owned
	}
	owned[entry.JobID] = entry
	return nil
}

// ListByOwner returns entries for an owner, newest first, honoring limit/offset.
func (r *MemoryRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}

	r.mu.RLock()
	entries := make([]Entry, 0, len(r.data[ownerID]))
	for _, e := range r.data[ownerID] {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	if offset >= len(entries) {
		return []Entry{}, nil
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	end := len(entries)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return entries[offset:end], nil
}
