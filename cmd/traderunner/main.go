// Command traderunner is the headless entry point for the deterministic
// backtesting and pre-paper pipeline.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/CyberForge275/traderunner-sub002/internal/strategy"
	"github.com/CyberForge275/traderunner-sub002/internal/strategy/insidebar"
)

// Build identity, settable via -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stdout.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = log.Output(os.Stderr)
	}

	// Missing .env is fine; present one seeds the field env vars.
	_ = godotenv.Load()

	// Strategy plugins are wired here, never imported by the framework.
	strategy.MustRegister(insidebar.New())

	root := &cobra.Command{
		Use:           "traderunner",
		Short:         "Deterministic strategy backtesting and pre-paper pipeline",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	var logLevel string
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace|debug|info|warn|error)")
	root.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		lvl, err := zerolog.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("log level %q: %w", logLevel, err)
		}
		zerolog.SetGlobalLevel(lvl)
		return nil
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newCompareCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newPaperCmd())
	root.AddCommand(newMonitorCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version, commit, and build date",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "traderunner %s", version)
			if commit != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (%s)", commit)
			}
			if date != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " built %s", date)
			}
			fmt.Fprintln(cmd.OutOrStdout())
		},
	}
}
