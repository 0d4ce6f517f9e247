package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"signal-engine/internal/engine"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one signal and print the response as JSON",
	Long: `Run the full pipeline once for a symbol.

Market data comes from the configured provider or, with --data, from a JSON file
of frames. The exit status is 0 for a proposal, 1 for a HOLD or rejection and
2 when the request deadline expired.`,
	Example: `  signal-engine generate --symbol XAUUSD --data frames.json --timeframes 1h,4h
  signal-engine generate --symbol BTCUSDT --as-of 2025-03-11T10:00:00Z --context "ETF inflows"`,
	RunE: runGenerate,
}

var generateOpts struct {
	symbol        string
	dataFile      string
	timeframes    []string
	timeframe     string
	asOf          string
	price         float64
	maxStopPips   float64
	noMaxStop     bool
	minAgents     int
	minConfidence float64
	contextText   string
}

func init() {
	rootCmd.AddCommand(generateCmd)
	f := generateCmd.Flags()
	f.StringVarP(&generateOpts.symbol, "symbol", "s", "", "Instrument symbol, e.g. XAUUSD (required)")
	f.StringVarP(&generateOpts.dataFile, "data", "d", "", "JSON file of frames to use instead of the configured provider")
	f.StringSliceVarP(&generateOpts.timeframes, "timeframes", "t", nil, "Timeframes to analyze (default from configuration)")
	f.StringVar(&generateOpts.timeframe, "timeframe", "", "Primary timeframe")
	f.StringVar(&generateOpts.asOf, "as-of", "", "Evaluation time (RFC3339, default now)")
	f.Float64Var(&generateOpts.price, "price", 0, "Current price (default last close)")
	f.Float64Var(&generateOpts.maxStopPips, "max-stop-pips", 0, "Maximum stop distance in pips (0 uses the asset class default)")
	f.BoolVar(&generateOpts.noMaxStop, "no-max-stop", false, "Do not enforce the maximum stop distance")
	f.IntVar(&generateOpts.minAgents, "min-agents", 0, "Minimum agreeing analyzers (default from configuration)")
	f.Float64Var(&generateOpts.minConfidence, "min-confidence", -1, "Minimum final confidence (default from configuration)")
	f.StringVar(&generateOpts.contextText, "context", "", "Free text read by the sentiment provider")
	generateCmd.MarkFlagRequired("symbol")
}

// buildRequest turns the flags into an engine request
func buildRequest() (engine.Request, error) {
	o := generateOpts
	req := engine.Request{
		Symbol:      o.symbol,
		Timeframes:  o.timeframes,
		Timeframe:   o.timeframe,
		MaxStopPips: o.maxStopPips,
		MinAgents:   o.minAgents,
		ContextText: o.contextText,
	}
	if o.asOf != "" {
		t, err := time.Parse(time.RFC3339, o.asOf)
		if err != nil {
			return req, fmt.Errorf("invalid --as-of %q: %w", o.asOf, err)
		}
		req.AsOf = &t
	}
	if o.price > 0 {
		p := o.price
		req.CurrentPrice = &p
	}
	if o.noMaxStop {
		enforce := false
		req.EnforceMaxStop = &enforce
	}
	if o.minConfidence >= 0 {
		mc := o.minConfidence
		req.MinConfidence = &mc
	}
	return req, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	req, err := buildRequest()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rt, err := newRuntime(cmd.Context(), cfg, runtimeOptions{DataFile: generateOpts.dataFile, Quiet: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	resp := rt.engine.Generate(cmd.Context(), req)
	if err := printJSON(resp); err != nil {
		return err
	}
	if !resp.Success {
		fmt.Fprintf(os.Stderr, "%s (%s at %s): %s\n", resp.Direction, resp.Kind, resp.Layer, resp.Reason)
	}
	exitCode = engine.ExitCode(resp)
	return nil
}
