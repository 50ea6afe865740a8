package documents

import (
	"time"

	"studykit-backend/internal/extract"
	"studykit-backend/internal/history"
	"studykit-backend/internal/jobs"
	"studykit-backend/internal/pipeline"
)

// JobResponse is the outward-facing representation of a job's status.
type JobResponse struct {
	JobID     string     `json:"jobId"`
	Kind      jobs.Kind  `json:"kind"`
	FileName  string     `json:"fileName"`
	SizeBytes int64      `json:"sizeBytes"`
	Phase     jobs.Phase `json:"phase"`
	Progress  int        `json:"progress"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// ContentResponse carries a completed job's formatted output.
type ContentResponse struct {
	JobID     string           `json:"jobId"`
	Kind      jobs.Kind        `json:"kind"`
	FileName  string           `json:"fileName"`
	Text      string           `json:"text"`
	Metadata  extract.Metadata `json:"metadata"`
	Stats     extract.Stats    `json:"stats"`
	ReadyAt   time.Time        `json:"readyAt"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

// HistoryItem is one row of an owner's job history.
type HistoryItem struct {
	JobID      string     `json:"jobId"`
	Kind       jobs.Kind  `json:"kind"`
	FileName   string     `json:"fileName"`
	SizeBytes  int64      `json:"sizeBytes"`
	Phase      jobs.Phase `json:"phase"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt time.Time  `json:"finishedAt"`
}

func toJobResponse(job jobs.Job) JobResponse {
	return JobResponse{
		JobID:     job.ID,
		Kind:      job.Kind,
		FileName:  job.Filename,
		SizeBytes: job.ByteSize,
		Phase:     job.Phase,
		Progress:  job.Phase.Progress(),
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
		ExpiresAt: job.ExpiresAt,
	}
}

func toContentResponse(c pipeline.Content) ContentResponse {
	return ContentResponse{
		JobID:     c.JobID,
		Kind:      c.Kind,
		FileName:  c.Filename,
		Text:      c.Text,
		Metadata:  c.Metadata,
		Stats:     c.Stats,
		ReadyAt:   c.ReadyAt,
		ExpiresAt: c.ExpiresAt,
	}
}

func toHistoryItems(entries []history.Entry) []HistoryItem {
	items := make([]HistoryItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, HistoryItem{
			JobID:      e.JobID,
			Kind:       e.Kind,
			FileName:   e.Filename,
			SizeBytes:  e.ByteSize,
			Phase:      e.Phase,
			Error:      e.Error,
			CreatedAt:  e.CreatedAt,
			FinishedAt: e.FinishedAt,
		})
	}
	return items
}
