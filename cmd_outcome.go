package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"signal-engine/internal/engine"
	"signal-engine/internal/signal"
)

var outcomeCmd = &cobra.Command{
	Use:     "outcome",
	Short:   "Record how an emitted proposal closed and print the updated weights",
	Example: `  signal-engine outcome --id 6f1c0e52-... --result WIN --pnl 36.2`,
	RunE:    runOutcome,
}

var outcomeOpts struct {
	id       string
	result   string
	pnl      float64
	closedAt string
}

func init() {
	rootCmd.AddCommand(outcomeCmd)
	f := outcomeCmd.Flags()
	f.StringVar(&outcomeOpts.id, "id", "", "Proposal id (required)")
	f.StringVarP(&outcomeOpts.result, "result", "r", "", "WIN, LOSS or BREAKEVEN (required)")
	f.Float64Var(&outcomeOpts.pnl, "pnl", 0, "Realized result in pips")
	f.StringVar(&outcomeOpts.closedAt, "closed-at", "", "Close time (RFC3339, default now)")
	outcomeCmd.MarkFlagRequired("id")
	outcomeCmd.MarkFlagRequired("result")
}

func runOutcome(cmd *cobra.Command, args []string) error {
	req := engine.OutcomeRequest{
		ProposalID: outcomeOpts.id,
		Result:     signal.OutcomeResult(outcomeOpts.result),
		PnLPips:    outcomeOpts.pnl,
	}
	if outcomeOpts.closedAt != "" {
		t, err := time.Parse(time.RFC3339, outcomeOpts.closedAt)
		if err != nil {
			return fmt.Errorf("invalid --closed-at %q: %w", outcomeOpts.closedAt, err)
		}
		req.ClosedAt = &t
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cmd.Context(), cfg, runtimeOptions{Quiet: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	resp, err := rt.engine.RecordOutcome(cmd.Context(), req)
	if err != nil {
		return err
	}
	if !resp.Applied {
		rt.logger.Warn("Outcome already recorded", "proposal_id", resp.ProposalID)
	}
	return printJSON(resp)
}
