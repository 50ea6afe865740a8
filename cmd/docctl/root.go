package main

import (
	"github.com/spf13/cobra"

	"studykit-backend/internal/shared/config"
)

type commandContext struct {
	limitsFile string
}

func (c *commandContext) limits() (config.Limits, error) {
	return config.LoadLimits(c.limitsFile)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "docctl",
		Short:         "Run documents through the processing pipeline locally",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.limitsFile, "limits", "", "Path to a TOML limits file")

	rootCmd.AddCommand(newExtractCommand(ctx))
	rootCmd.AddCommand(newLimitsCommand(ctx))

	return rootCmd
}
