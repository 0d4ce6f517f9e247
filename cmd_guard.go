package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"signal-engine/config"
	"signal-engine/internal/timeguard"
)

var guardCmd = &cobra.Command{
	Use:     "guard",
	Short:   "Show the news/time guard status for a symbol",
	Example: `  signal-engine guard --symbol EURUSD --at 2025-03-07T13:45:00Z`,
	RunE:    runGuard,
}

var guardOpts struct {
	symbol string
	at     string
}

var sampleConfigCmd = &cobra.Command{
	Use:   "sample-config [file]",
	Short: "Write a sample configuration file (.yaml or .json)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := "config.sample.yaml"
		if len(args) == 1 {
			out = args[0]
		}
		if err := config.GenerateSampleConfig(out); err != nil {
			return err
		}
		fmt.Println("Sample configuration written to", out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(guardCmd, sampleConfigCmd)
	guardCmd.Flags().StringVarP(&guardOpts.symbol, "symbol", "s", "", "Instrument symbol (required)")
	guardCmd.Flags().StringVar(&guardOpts.at, "at", "", "Time to check (RFC3339, default now)")
	guardCmd.MarkFlagRequired("symbol")
}

func runGuard(cmd *cobra.Command, args []string) error {
	at := time.Now().UTC()
	if guardOpts.at != "" {
		t, err := time.Parse(time.RFC3339, guardOpts.at)
		if err != nil {
			return fmt.Errorf("invalid --at %q: %w", guardOpts.at, err)
		}
		at = t.UTC()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, true)

	var feed timeguard.EventFeed
	if cfg.Guard.FeedURL != "" {
		feed = timeguard.NewFeedClient(cfg.Guard.FeedURL, cfg.Guard.FeedTimeout, cfg.Guard.FeedTTL)
	}
	guard, err := timeguard.NewGuard(cfg.Guard, feed, logger)
	if err != nil {
		return err
	}

	symbol := strings.ToUpper(guardOpts.symbol)
	status := guard.Check(cmd.Context(), at, symbol)
	return printJSON(map[string]interface{}{
		"symbol":       symbol,
		"at":           at,
		"status":       status.Level,
		"reason":       status.Reason,
		"next_safe_at": status.NextSafeAt,
	})
}
