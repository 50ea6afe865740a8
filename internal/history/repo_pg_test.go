package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"studykit-backend/internal/jobs"
)

func TestPGRepoRecordUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	created := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	entry := Entry{
		JobID:      "job-1",
		OwnerID:    "guest:abc",
		Kind:       jobs.KindPDF,
		Filename:   "lecture.pdf",
		ByteSize:   2048,
		Phase:      jobs.PhaseFailed,
		Error:      "page limit exceeded",
		CreatedAt:  created,
		FinishedAt: created.Add(4 * time.Second),
	}

	mock.ExpectExec("INSERT INTO job_history").
		WithArgs(
			entry.JobID,
			entry.OwnerID,
			"pdf",
			entry.Filename,
			entry.ByteSize,
			"failed",
			sqlmock.AnyArg(), // error
			entry.CreatedAt,
			entry.FinishedAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Record(context.Background(), entry); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoListByOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	created := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"job_id", "owner_id", "kind", "filename", "byte_size", "phase", "error", "created_at", "finished_at"}).
		AddRow("job-2", "user-1", "spreadsheet", "grades.xlsx", int64(900), "completed", nil, created.Add(time.Minute), created.Add(time.Minute+time.Second)).
		AddRow("job-1", "user-1", "pdf", "notes.pdf", int64(100), "failed", "buffer unavailable, re-upload required", created, created.Add(time.Second))

	mock.ExpectQuery("SELECT job_id, owner_id, kind").
		WithArgs("user-1", 10, 0).
		WillReturnRows(rows)

	repo := &PGRepo{DB: db}
	entries, err := repo.ListByOwner(context.Background(), "user-1", 10, 0)
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Kind != jobs.KindSpreadsheet || entries[0].Error != "" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Phase != jobs.PhaseFailed || entries[1].Error == "" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoListByOwnerRejectsUnknownKind(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"job_id", "owner_id", "kind", "filename", "byte_size", "phase", "error", "created_at", "finished_at"}).
		AddRow("job-9", "user-1", "docx", "essay.docx", int64(10), "completed", nil, now, now)
	mock.ExpectQuery("SELECT job_id, owner_id, kind").
		WithArgs("user-1", 50, 0).
		WillReturnRows(rows)

	repo := &PGRepo{DB: db}
	if _, err := repo.ListByOwner(context.Background(), "user-1", 0, 0); !errors.Is(err, jobs.ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}
