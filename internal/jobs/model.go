package jobs

import "time"

// Job identifies one upload tracked through the processing phases.
type Job struct {
	ID        string    `json:"jobId"`
	OwnerID   string    `json:"ownerId"`
	Kind      Kind      `json:"kind"`
	Filename  string    `json:"filename"`
	ByteSize  int64     `json:"byteSize"`
	Phase     Phase     `json:"phase"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the job record is past its deadline at now.
func (j Job) Expired(now time.Time) bool {
	return !j.ExpiresAt.IsZero() && now.After(j.ExpiresAt)
}
