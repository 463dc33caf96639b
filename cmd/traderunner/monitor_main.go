package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CyberForge275/traderunner-sub002/internal/config"
	"github.com/CyberForge275/traderunner-sub002/internal/httpserv"
)

func newMonitorCmd() *cobra.Command {
	var addr, artifactsRoot string
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Serve health, metrics, and run artifacts over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root := artifactsRoot
			if root == "" {
				cfg, err := config.Get()
				if err != nil {
					return err
				}
				root = cfg.Paths.TradingArtifactsRoot
			}
			if root == "" {
				return fmt.Errorf("no artifacts root: pass --artifacts-root or configure paths.trading_artifacts_root")
			}
			return httpserv.New(addr, root, version).Listen(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", httpserv.DefaultAddr, "listen address")
	cmd.Flags().StringVar(&artifactsRoot, "artifacts-root", "", "artifacts root to serve runs from")
	return cmd
}
