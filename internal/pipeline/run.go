package pipeline

import (
	"bytes"
	"fmt"
	"time"
	"unicode/utf8"

	"studykit-backend/internal/extract"
	"studykit-backend/internal/jobs"
	"studykit-backend/internal/keystore"
	"studykit-backend/internal/shared/config"
)

// jobRun tracks one Process invocation.
type jobRun struct {
	svc     *Service
	job     jobs.Job
	start   time.Time
	reached jobs.Phase
}

func (r *jobRun) advance(phase jobs.Phase, detail string) error {
	updated, err := r.svc.keys.UpdateJob(r.job.ID, keystore.JobUpdate{Phase: &phase})
	if err != nil {
		return fmt.Errorf("%w: job record unavailable: %v", ErrBufferUnavailable, err)
	}
	r.job = updated
	r.reached = phase

	ev := Event{
		JobID:      updated.ID,
		OwnerID:    updated.OwnerID,
		Phase:      phase,
		Detail:     detail,
		Progress:   phase.Progress(),
		EtaSeconds: r.eta(phase.Progress()),
		At:         r.svc.now(),
	}
	r.svc.hub.Publish(ev)
	return nil
}

// eta extrapolates remaining seconds from elapsed time and progress so far.
func (r *jobRun) eta(progress int) int {
	if progress <= 0 || progress >= 100 {
		return 0
	}
	elapsed := r.svc.now().Sub(r.start).Seconds()
	remaining := elapsed * float64(100-progress) / float64(progress)
	if remaining < 1 {
		return 0
	}
	return int(remaining + 0.5)
}

func (r *jobRun) fail(cause error) {
	msg := cause.Error()
	failed := jobs.PhaseFailed
	if updated, err := r.svc.keys.UpdateJob(r.job.ID, keystore.JobUpdate{Phase: &failed, Error: &msg}); err == nil {
		r.job = updated
	} else {
		r.job.Phase = failed
		r.job.Error = msg
	}
	r.svc.hub.Publish(Event{
		JobID:    r.job.ID,
		OwnerID:  r.job.OwnerID,
		Phase:    jobs.PhaseFailed,
		Detail:   "processing stopped",
		Progress: jobs.PhaseFailed.Progress(),
		Error:    msg,
		At:       r.svc.now(),
	})
}

var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
)

// sniff checks that the decrypted bytes look like the kind the upload was admitted as.
func sniff(job jobs.Job, data []byte) error {
	var ok bool
	switch job.Kind {
	case jobs.KindPDF:
		// Some producers emit a few bytes of junk before the header.
		head := data
		if len(head) > 1024 {
			head = head[:1024]
		}
		ok = bytes.Contains(head, pdfMagic)
	case jobs.KindSlideDeck:
		ok = bytes.HasPrefix(data, zipMagic)
	case jobs.KindSpreadsheet:
		if jobs.IsCSV(job.Filename) {
			ok = utf8.Valid(data)
		} else {
			ok = bytes.HasPrefix(data, zipMagic)
		}
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrContentMismatch, job.Kind)
	}
	return nil
}

// checkStructure enforces the per-kind structural ceilings against extractor metadata.
func checkStructure(kind jobs.Kind, md extract.Metadata, lim config.KindLimits) error {
	exceeded := func(what string, got, ceiling int) error {
		return fmt.Errorf("%w: %s limit exceeded (%d %ss, max %d)", ErrStructuralLimit, what, got, what, ceiling)
	}
	switch kind {
	case jobs.KindPDF:
		if lim.MaxPages > 0 && md.PageCount > lim.MaxPages {
			return exceeded("page", md.PageCount, lim.MaxPages)
		}
	case jobs.KindSlideDeck:
		if lim.MaxSlides > 0 && md.SlideCount > lim.MaxSlides {
			return exceeded("slide", md.SlideCount, lim.MaxSlides)
		}
	case jobs.KindSpreadsheet:
		if lim.MaxWorksheets > 0 && md.WorksheetCount > lim.MaxWorksheets {
			return exceeded("worksheet", md.WorksheetCount, lim.MaxWorksheets)
		}
		if lim.MaxCells > 0 && md.CellCount > lim.MaxCells {
			return exceeded("cell", md.CellCount, lim.MaxCells)
		}
	}
	return nil
}
