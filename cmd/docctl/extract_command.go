package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"studykit-backend/internal/arena"
	"studykit-backend/internal/jobs"
	"studykit-backend/internal/keystore"
	"studykit-backend/internal/pipeline"
	"studykit-backend/internal/queue"
	"studykit-backend/internal/shared/util"
)

const cliOwner = "docctl"

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var (
		contentType string
		markdown    bool
		asJSON      bool
		timeout     time.Duration
		cipher      string
	)

	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Run one file through the full pipeline and print a summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limits, err := ctx.limits()
			if err != nil {
				return err
			}
			suite, err := arena.ParseSuite(cipher)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			defer util.Zero(data)

			q := queue.New(nil)
			svc, err := pipeline.NewService(pipeline.Options{
				Arena:    arena.New(arena.Options{Suite: suite}),
				Keys:     keystore.New(keystore.Options{}),
				Queue:    q,
				Limits:   limits,
				Notifier: queue.NopClient{},
			})
			if err != nil {
				return err
			}

			runCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			defer func() {
				shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
				defer stop()
				_ = svc.Shutdown(shutdownCtx)
			}()

			events, unsubscribe := svc.Hub().Subscribe(func(ev pipeline.Event) bool { return ev.OwnerID == cliOwner })
			defer unsubscribe()

			receipt, err := svc.Accept(runCtx, pipeline.Upload{
				OwnerID:     cliOwner,
				Filename:    filepath.Base(args[0]),
				ContentType: contentType,
				Data:        data,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			final, err := followProgress(runCtx, out, events, !asJSON && !markdown)
			if err != nil {
				return err
			}
			if final.Phase == jobs.PhaseFailed {
				return fmt.Errorf("job %s failed: %s", receipt.JobID, final.Error)
			}

			content, err := svc.Content(runCtx, receipt.JobID, cliOwner)
			if err != nil {
				return err
			}

			switch {
			case asJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(content)
			case markdown:
				_, err := io.WriteString(out, content.Text)
				return err
			default:
				fmt.Fprintln(out, summaryTable(content, int64(len(data))))
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&contentType, "content-type", "", "Declared content type (defaults to the extension)")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "Print the formatted text instead of a summary")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the published content as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Maximum time to wait for the job")
	cmd.Flags().StringVar(&cipher, "cipher", string(arena.SuiteAESGCM), "Arena cipher suite")

	return cmd
}

// followProgress prints events until the job reaches a terminal phase.
func followProgress(ctx context.Context, w io.Writer, events <-chan pipeline.Event, verbose bool) (pipeline.Event, error) {
	for {
		select {
		case <-ctx.Done():
			return pipeline.Event{}, ctx.Err()
		case ev := <-events:
			if verbose {
				line := fmt.Sprintf("%3d%%  %-11s %s", ev.Progress, ev.Phase, ev.Detail)
				if ev.Error != "" {
					line += "  error: " + ev.Error
				}
				fmt.Fprintln(w, line)
			}
			if ev.Phase.Terminal() {
				return ev, nil
			}
		}
	}
}

func summaryTable(c pipeline.Content, size int64) string {
	rows := [][]string{
		{"File", c.Filename},
		{"Kind", string(c.Kind)},
		{"Size", humanize.IBytes(uint64(size))},
	}
	if c.Metadata.Title != "" {
		rows = append(rows, []string{"Title", c.Metadata.Title})
	}
	if c.Metadata.Author != "" {
		rows = append(rows, []string{"Author", c.Metadata.Author})
	}
	switch c.Kind {
	case jobs.KindPDF:
		rows = append(rows, []string{"Pages", itoa(c.Metadata.PageCount)})
	case jobs.KindSlideDeck:
		rows = append(rows, []string{"Slides", itoa(c.Metadata.SlideCount)})
	case jobs.KindSpreadsheet:
		rows = append(rows,
			[]string{"Worksheets", itoa(c.Metadata.WorksheetCount)},
			[]string{"Cells", humanize.Comma(int64(c.Metadata.CellCount))},
		)
	}
	rows = append(rows,
		[]string{"Words", humanize.Comma(int64(c.Stats.Words))},
		[]string{"Tables", itoa(c.Stats.Tables)},
		[]string{"Equations", itoa(c.Stats.Equations)},
		[]string{"Reading time", itoa(c.Stats.ReadingMinutes) + " min"},
		[]string{"Available until", humanize.Time(c.ExpiresAt)},
	)
	return renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft})
}
