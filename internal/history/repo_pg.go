package history

import (
	"context"
	"database/sql"
	"fmt"

	"studykit-backend/internal/jobs"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Record upserts the entry keyed by job id.
func (r *PGRepo) Record(ctx context.Context, entry Entry) error {
	const query = `
INSERT INTO job_history (
    job_id,
    owner_id,
    kind,
    filename,
    byte_size,
    phase,
    error,
    created_at,
    finished_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (job_id) DO UPDATE SET
    phase = EXCLUDED.phase,
    error = EXCLUDED.error,
    finished_at = EXCLUDED.finished_at`

	var errText sql.NullString
	if entry.Error != "" {
		errText = sql.NullString{String: entry.Error, Valid: true}
	}

	_, err := r.DB.ExecContext(
		ctx,
		query,
		entry.JobID,
		entry.OwnerID,
		string(entry.Kind),
		entry.Filename,
		entry.ByteSize,
		string(entry.Phase),
		errText,
		entry.CreatedAt,
		entry.FinishedAt,
	)
	return err
}

// ListByOwner returns entries for an owner, newest first.
func (r *PGRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT job_id, owner_id, kind, filename, byte_size, phase, error, created_at, finished_at
FROM job_history
WHERE owner_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e       Entry
			kind    string
			phase   string
			errText sql.NullString
		)
		if err := rows.Scan(
			&e.JobID,
			&e.OwnerID,
			&kind,
			&e.Filename,
			&e.ByteSize,
			&phase,
			&errText,
			&e.CreatedAt,
			&e.FinishedAt,
		); err != nil {
			return nil, err
		}
		if e.Kind, err = jobs.ParseKind(kind); err != nil {
			return nil, fmt.Errorf("job_history %s: %w", e.JobID, err)
		}
		if e.Phase = jobs.Phase(phase); !e.Phase.Valid() {
			return nil, fmt.Errorf("job_history %s: unknown phase %q", e.JobID, phase)
		}
		e.Error = errText.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
