package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CyberForge275/traderunner-sub002/internal/compare"
)

func newCompareCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "compare <run-dir-a> <run-dir-b>",
		Short: "Diff two run directories on aligned intents, fills, and trades",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := compare.Compare(args[0], args[1])
			if err != nil {
				return err
			}
			if outDir == "" {
				fmt.Fprint(cmd.OutOrStdout(), report.Markdown())
				return nil
			}
			if err := report.WriteArtifacts(outDir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "report written to %s (common: %d, divergent: %d)\n",
				outDir, len(report.Common), report.DivergedCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", "", "write compare_report.md and compare_common.csv here")
	return cmd
}
