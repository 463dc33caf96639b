package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/CyberForge275/traderunner-sub002/internal/paper"
)

func newPaperCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "paper",
		Short: "Submit order intents to the paper-trading service",
	}
	cmd.AddCommand(newPaperSubmitCmd())
	cmd.AddCommand(newPaperKeyCmd())
	return cmd
}

func newPaperSubmitCmd() *cobra.Command {
	var (
		serviceURL  string
		signalsPath string
		timeoutSec  int
		showResults bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Send a JSON signals file through the idempotent adapter",
		Long: `Read a JSON array of signals and submit each one with its derived
idempotency key. Re-running the same file is safe: the service answers
409 for keys it has seen and those count as duplicates, not errors.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(signalsPath)
			if err != nil {
				return err
			}
			var signals []paper.Signal
			if err := json.Unmarshal(data, &signals); err != nil {
				return fmt.Errorf("parse %s: %w", signalsPath, err)
			}
			if len(signals) == 0 {
				return fmt.Errorf("%s holds no signals", signalsPath)
			}

			adapter := paper.New(serviceURL, time.Duration(timeoutSec)*time.Second)
			results, sum := adapter.SubmitBatch(cmd.Context(), signals)

			if showResults {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created: %d  duplicates: %d  skipped: %d  errors: %d\n",
				sum.Created, sum.Duplicates, sum.Skipped, sum.Errors)
			if sum.Errors > 0 {
				return fmt.Errorf("%d submission(s) errored", sum.Errors)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&serviceURL, "service-url", "http://127.0.0.1:8085", "paper-trading service base URL")
	cmd.Flags().StringVar(&signalsPath, "signals", "", "JSON signals file")
	cmd.Flags().IntVar(&timeoutSec, "timeout-sec", 30, "per-request timeout")
	cmd.Flags().BoolVar(&showResults, "show-results", false, "print per-signal results as JSON")
	cmd.MarkFlagRequired("signals")
	return cmd
}

// newPaperKeyCmd prints the keys a signals file would submit with, without
// touching the network. Useful when auditing the service's dedupe log.
func newPaperKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys <signals.json>",
		Short: "Print the idempotency key for each signal in a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var signals []paper.Signal
			if err := json.Unmarshal(data, &signals); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			for _, s := range signals {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s %s @%s\n",
					paper.IdempotencyKey(s), s.Symbol, s.Side, s.Timestamp.UTC().Format(time.RFC3339))
			}
			return nil
		},
	}
	return cmd
}
