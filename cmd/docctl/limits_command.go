package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"studykit-backend/internal/jobs"
)

func newLimitsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "limits",
		Short: "Print the effective per-kind limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limits, err := ctx.limits()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(jobs.Kinds))
			for _, kind := range jobs.Kinds {
				l := limits.For(kind)
				rows = append(rows, []string{
					string(kind),
					humanize.IBytes(uint64(l.MaxBytes)),
					countOrDash(l.MaxPages),
					countOrDash(l.MaxSlides),
					countOrDash(l.MaxWorksheets),
					countOrDash(l.MaxCells),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Kind", "Max size", "Pages", "Slides", "Worksheets", "Cells"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}

func countOrDash(n int) string {
	if n <= 0 {
		return "-"
	}
	return humanize.Comma(int64(n))
}

func itoa(n int) string { return strconv.Itoa(n) }
