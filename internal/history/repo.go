package history

import "context"

// Repo persists job history entries.
type Repo interface {
	Record(ctx context.Context, entry Entry) error
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Entry, error)
}
