package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"studykit-backend/internal/jobs"
)

func waitDrained(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Wait(ctx); err != nil {
		t.Fatalf("queue did not drain: %v", err)
	}
}

func TestConcurrencyNeverExceedsLimit(t *testing.T) {
	for _, limit := range []int{1, 2, 4} {
		limit := limit
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			t.Parallel()
			q := New(map[jobs.Kind]int{jobs.KindPDF: limit})

			var active, peak, done int32
			err := q.RegisterProcessor(jobs.KindPDF, func(ctx context.Context, job jobs.Job) error {
				cur := atomic.AddInt32(&active, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				atomic.AddInt32(&done, 1)
				return nil
			})
			if err != nil {
				t.Fatalf("register: %v", err)
			}

			total := 3 * limit
			for i := 0; i < total; i++ {
				if err := q.Enqueue(context.Background(), jobs.Job{ID: fmt.Sprintf("job-%d", i), Kind: jobs.KindPDF}); err != nil {
					t.Fatalf("enqueue: %v", err)
				}
			}
			waitDrained(t, q)

			if got := atomic.LoadInt32(&peak); got > int32(limit) {
				t.Fatalf("peak concurrency %d exceeds limit %d", got, limit)
			}
			if got := atomic.LoadInt32(&done); got != int32(total) {
				t.Fatalf("expected %d jobs processed, got %d", total, got)
			}
		})
	}
}

func TestFIFOAdmissionWithinKind(t *testing.T) {
	q := New(map[jobs.Kind]int{jobs.KindSlideDeck: 1})

	var mu sync.Mutex
	var order []string
	if err := q.RegisterProcessor(jobs.KindSlideDeck, func(ctx context.Context, job jobs.Job) error {
		mu.Lock()
		order = append(order, job.ID)
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	want := []string{"a", "b", "c", "d"}
	for _, id := range want {
		if err := q.Enqueue(context.Background(), jobs.Job{ID: id, Kind: jobs.KindSlideDeck}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	waitDrained(t, q)

	mu.Lock()
	defer mu.Unlock()
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Fatalf("expected order %v, got %v", want, order)
	}
}

func TestProcessorFailureReleasesSlot(t *testing.T) {
	q := New(map[jobs.Kind]int{jobs.KindSpreadsheet: 1})

	var processed int32
	if err := q.RegisterProcessor(jobs.KindSpreadsheet, func(ctx context.Context, job jobs.Job) error {
		atomic.AddInt32(&processed, 1)
		switch job.ID {
		case "panics":
			panic("extractor exploded")
		case "errors":
			return errors.New("boom")
		}
		return nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	for _, id := range []string{"panics", "errors", "ok"} {
		if err := q.Enqueue(context.Background(), jobs.Job{ID: id, Kind: jobs.KindSpreadsheet}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	waitDrained(t, q)

	if got := atomic.LoadInt32(&processed); got != 3 {
		t.Fatalf("expected 3 jobs processed, got %d", got)
	}
	if stats := q.Stats(jobs.KindSpreadsheet); stats.Active != 0 || stats.Pending != 0 {
		t.Fatalf("expected idle channel, got %+v", stats)
	}
}

func TestKindsAreIndependent(t *testing.T) {
	q := New(map[jobs.Kind]int{jobs.KindPDF: 1, jobs.KindSpreadsheet: 1})

	release := make(chan struct{})
	pdfStarted := make(chan struct{})
	if err := q.RegisterProcessor(jobs.KindPDF, func(ctx context.Context, job jobs.Job) error {
		close(pdfStarted)
		<-release
		return nil
	}); err != nil {
		t.Fatalf("register pdf: %v", err)
	}
	sheetDone := make(chan struct{})
	if err := q.RegisterProcessor(jobs.KindSpreadsheet, func(ctx context.Context, job jobs.Job) error {
		close(sheetDone)
		return nil
	}); err != nil {
		t.Fatalf("register spreadsheet: %v", err)
	}

	if err := q.Enqueue(context.Background(), jobs.Job{ID: "pdf-1", Kind: jobs.KindPDF}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	<-pdfStarted
	if err := q.Enqueue(context.Background(), jobs.Job{ID: "sheet-1", Kind: jobs.KindSpreadsheet}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case <-sheetDone:
	case <-time.After(2 * time.Second):
		t.Fatal("spreadsheet job blocked behind a busy pdf channel")
	}
	close(release)
	waitDrained(t, q)
}

func TestJobsWaitForProcessorRegistration(t *testing.T) {
	q := New(nil)

	if err := q.Enqueue(context.Background(), jobs.Job{ID: "early", Kind: jobs.KindPDF}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if stats := q.Stats(jobs.KindPDF); stats.Pending != 1 || stats.Limit != DefaultConcurrency {
		t.Fatalf("unexpected stats before registration: %+v", stats)
	}

	ran := make(chan string, 1)
	if err := q.RegisterProcessor(jobs.KindPDF, func(ctx context.Context, job jobs.Job) error {
		ran <- job.ID
		return nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	select {
	case id := <-ran:
		if id != "early" {
			t.Fatalf("expected early job, got %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued job never ran after registration")
	}
	waitDrained(t, q)
}

func TestReRegisterReplacesProcessor(t *testing.T) {
	q := New(nil)

	var first, second int32
	_ = q.RegisterProcessor(jobs.KindPDF, func(ctx context.Context, job jobs.Job) error {
		atomic.AddInt32(&first, 1)
		return nil
	})
	_ = q.RegisterProcessor(jobs.KindPDF, func(ctx context.Context, job jobs.Job) error {
		atomic.AddInt32(&second, 1)
		return nil
	})

	if err := q.Enqueue(context.Background(), jobs.Job{ID: "x", Kind: jobs.KindPDF}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitDrained(t, q)

	if first != 0 || second != 1 {
		t.Fatalf("expected only the replacement to run, first=%d second=%d", first, second)
	}
}

func TestEnqueueDetachesCancellation(t *testing.T) {
	q := New(nil)

	type ctxKey struct{}
	got := make(chan error, 1)
	_ = q.RegisterProcessor(jobs.KindPDF, func(ctx context.Context, job jobs.Job) error {
		if ctx.Value(ctxKey{}) != "req-1" {
			got <- errors.New("request value lost")
			return nil
		}
		got <- ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "req-1"))
	cancel()
	if err := q.Enqueue(ctx, jobs.Job{ID: "x", Kind: jobs.KindPDF}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitDrained(t, q)

	if err := <-got; err != nil {
		t.Fatalf("processor saw %v", err)
	}
}

func TestClosedQueueRejectsEnqueue(t *testing.T) {
	q := New(nil)
	q.Close()
	if err := q.Enqueue(context.Background(), jobs.Job{ID: "x", Kind: jobs.KindPDF}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := q.Enqueue(context.Background(), jobs.Job{ID: "x", Kind: "docx"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestUnknownKind(t *testing.T) {
	q := New(nil)
	if err := q.Enqueue(context.Background(), jobs.Job{ID: "x", Kind: "docx"}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if err := q.RegisterProcessor("docx", nil); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}
