package main

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/spf13/cobra"

	"signal-engine/internal/signal"
	"signal-engine/internal/weights"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Rebuild the weights from the outcome journal",
	Long: `Replay every journaled outcome in order through a fresh estimator and compare
the result with the stored weights document. With --reset the stored document
is dropped; with --write the rebuilt document replaces it.`,
	RunE: runReplay,
}

var (
	replayWrite bool
	replayReset bool
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVarP(&replayWrite, "write", "w", false, "Persist the rebuilt weights")
	replayCmd.Flags().BoolVar(&replayReset, "reset", false, "Drop the stored weights document (and its history) first")
}

// replayTolerance bounds the accepted drift between stored and rebuilt values
const replayTolerance = 1e-9

type replayReport struct {
	Outcomes int                           `json:"outcomes"`
	Weights  map[signal.AnalyzerID]float64 `json:"weights"`
	Stored   map[signal.AnalyzerID]float64 `json:"stored,omitempty"`
	Drift    map[signal.AnalyzerID]float64 `json:"drift,omitempty"`
	Matches  bool                          `json:"matches"`
	Reset    bool                          `json:"reset"`
	Written  bool                          `json:"written"`
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cmd.Context(), cfg, runtimeOptions{Quiet: true})
	if err != nil {
		return err
	}
	defer rt.Close()
	ctx := cmd.Context()

	journal, err := rt.store.ReadJournal(ctx)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	rebuilt := weights.Replay(journal, cfg.Weights)

	report := replayReport{
		Outcomes: rebuilt.Outcomes,
		Weights:  rebuilt.Layer1(),
		Matches:  true,
	}

	doc, err := rt.store.LoadWeights(ctx)
	switch {
	case errors.Is(err, weights.ErrNotFound):
		report.Matches = len(journal) == 0
	case err != nil:
		return fmt.Errorf("failed to load stored weights: %w", err)
	default:
		stored := weights.FromDocument(doc, cfg.Weights)
		report.Stored = stored.Layer1()
		report.Drift = make(map[signal.AnalyzerID]float64)
		for id, w := range report.Weights {
			d := math.Abs(w - report.Stored[id])
			if d > replayTolerance {
				report.Drift[id] = d
				report.Matches = false
			}
		}
		if stored.Outcomes != rebuilt.Outcomes {
			report.Matches = false
		}
	}

	if !report.Matches {
		ids := make([]string, 0, len(report.Drift))
		for id := range report.Drift {
			ids = append(ids, string(id))
		}
		sort.Strings(ids)
		rt.logger.Warn("Stored weights differ from the journal replay", "drifted", ids, "outcomes", rebuilt.Outcomes)
	}

	if replayReset {
		if err := rt.store.DeleteWeights(ctx); err != nil {
			return fmt.Errorf("failed to drop stored weights: %w", err)
		}
		report.Reset = true
	}
	if replayWrite {
		if err := rt.store.SaveWeights(ctx, rebuilt.Document()); err != nil {
			return fmt.Errorf("failed to save rebuilt weights: %w", err)
		}
		report.Written = true
	}
	return printJSON(report)
}
