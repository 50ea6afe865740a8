// Package history keeps a metadata-only audit trail of finished jobs. Document bytes and
// extracted text are never recorded here.
package history

import (
	"errors"
	"time"

	"studykit-backend/internal/jobs"
)

var ErrNotFound = errors.New("not found")

// Entry summarises one finished job.
type Entry struct {
	JobID      string     `json:"jobId"`
	OwnerID    string     `json:"-"`
	Kind       jobs.Kind  `json:"kind"`
	Filename   string     `json:"filename"`
	ByteSize   int64      `json:"byteSize"`
	Phase      jobs.Phase `json:"phase"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt time.Time  `json:"finishedAt"`
}

// FromJob builds an entry from a job's final state.
func FromJob(job jobs.Job, finishedAt time.Time) Entry {
	return Entry{
		JobID:      job.ID,
		OwnerID:    job.OwnerID,
		Kind:       job.Kind,
		Filename:   job.Filename,
		ByteSize:   job.ByteSize,
		Phase:      job.Phase,
		Error:      job.Error,
		CreatedAt:  job.CreatedAt,
		FinishedAt: finishedAt,
	}
}
