package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/CyberForge275/traderunner-sub002/internal/config"
	"github.com/CyberForge275/traderunner-sub002/internal/history"
	"github.com/CyberForge275/traderunner-sub002/internal/producer"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage the pre-paper runtime history cache",
	}
	cmd.AddCommand(newHistoryEnsureCmd())
	cmd.AddCommand(newHistoryBackfillCmd())
	cmd.AddCommand(newHistoryStreamCmd())
	return cmd
}

// openHistoryStore resolves the cache location and applies the parquet
// tree guard.
func openHistoryStore(dbPath string) (*history.Store, *config.Config, error) {
	cfg, err := config.Get()
	if err != nil {
		return nil, nil, err
	}
	if dbPath == "" {
		if cfg.Paths.TradingArtifactsRoot == "" {
			return nil, nil, fmt.Errorf("no history path: pass --db or configure paths.trading_artifacts_root")
		}
		dbPath = filepath.Join(cfg.Paths.TradingArtifactsRoot, "runtime_history", "history.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, nil, err
	}
	store, err := history.Open(dbPath, cfg.Paths.MarketdataDataRoot)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func newHistoryEnsureCmd() *cobra.Command {
	var (
		dbPath, symbol, tf string
		fromArg, toArg     string
		autoBackfill       bool
	)
	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Check (and optionally backfill) history coverage for a window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, cfg, err := openHistoryStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			start, err := parseInstant(fromArg)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end, err := parseInstant(toArg)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}

			var provider history.BackfillProvider
			if autoBackfill {
				var ensurer history.Ensurer
				if cfg.Services.MarketdataStreamURL != "" {
					ensurer = producer.New(cfg.Services.MarketdataStreamURL, config.StreamTimeout())
				}
				provider = history.NewParquetBackfill(cfg.Paths.MarketdataDataRoot, ensurer)
			}
			report, err := history.EnsureHistory(cmd.Context(), store, symbol, tf, start, end, autoBackfill, provider)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "state=%s rows=%d", report.State, report.CachedRows)
			if report.Gap != nil {
				fmt.Fprintf(cmd.OutOrStdout(), " gap=[%s, %s]",
					report.Gap.Start.Format(time.RFC3339), report.Gap.End.Format(time.RFC3339))
			}
			if report.Reason != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " reason=%q", report.Reason)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			if report.State == history.StateDegraded {
				return fmt.Errorf("history degraded for %s %s", symbol, tf)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "history database path")
	cmd.Flags().StringVar(&symbol, "symbol", "", "instrument symbol")
	cmd.Flags().StringVar(&tf, "timeframe", "M1", "bar timeframe")
	cmd.Flags().StringVar(&fromArg, "from", "", "required window start")
	cmd.Flags().StringVar(&toArg, "to", "", "required window end")
	cmd.Flags().BoolVar(&autoBackfill, "auto-backfill", false, "attempt a backfill when gaps exist")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func newHistoryBackfillCmd() *cobra.Command {
	var (
		dbPath, symbol, tf string
		fromArg, toArg     string
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Copy producer bars into the runtime cache as source=backfill",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, cfg, err := openHistoryStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			start, err := parseInstant(fromArg)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end, err := parseInstant(toArg)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			var ensurer history.Ensurer
			if cfg.Services.MarketdataStreamURL != "" {
				ensurer = producer.New(cfg.Services.MarketdataStreamURL, config.StreamTimeout())
			}
			bars, err := history.NewParquetBackfill(cfg.Paths.MarketdataDataRoot, ensurer).
				FetchBars(cmd.Context(), symbol, tf, start, end)
			if err != nil {
				return err
			}
			if len(bars) == 0 {
				return fmt.Errorf("no producer bars for %s %s in window", symbol, tf)
			}
			if err := store.UpsertBars(symbol, tf, history.SourceBackfill, bars); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backfilled %d bars into %s\n", len(bars), store.Path())
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "history database path")
	cmd.Flags().StringVar(&symbol, "symbol", "", "instrument symbol")
	cmd.Flags().StringVar(&tf, "timeframe", "M1", "bar timeframe")
	cmd.Flags().StringVar(&fromArg, "from", "", "window start")
	cmd.Flags().StringVar(&toArg, "to", "", "window end")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func newHistoryStreamCmd() *cobra.Command {
	var dbPath, symbol, tf string
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Consume the producer bar stream into the runtime cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, cfg, err := openHistoryStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()
			if cfg.Services.MarketdataStreamURL == "" {
				return fmt.Errorf("no stream url: configure services.marketdata_stream_url")
			}
			consumer := history.NewStreamConsumer(cfg.Services.MarketdataStreamURL, store)
			log.Info().Str("symbol", symbol).Str("tf", tf).Msg("stream consumer starting")
			return consumer.Run(cmd.Context(), symbol, tf)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "history database path")
	cmd.Flags().StringVar(&symbol, "symbol", "", "instrument symbol")
	cmd.Flags().StringVar(&tf, "timeframe", "M1", "bar timeframe")
	cmd.MarkFlagRequired("symbol")
	return cmd
}
