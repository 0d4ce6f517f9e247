// Command weights-audit reads the outcome journal, prints per-analyzer hit
// rates, precision and weights, and checks that replaying the journal
// reproduces the stored weights document.
package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"signal-engine/config"
	"signal-engine/internal/database"
	"signal-engine/internal/logging"
	"signal-engine/internal/signal"
	"signal-engine/internal/weights"
)

var (
	configPath string
	storeKind  string
	dataDir    string
	tolerance  float64
)

var rootCmd = &cobra.Command{
	Use:          "weights-audit",
	Short:        "Audit the adaptive analyzer weights against the outcome journal",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&configPath, "config", "c", "config.yaml", "Configuration file")
	f.StringVar(&storeKind, "store", "", "Journal store: file or postgres (default from configuration)")
	f.StringVar(&dataDir, "dir", "", "Directory of the file store (default from configuration)")
	f.Float64Var(&tolerance, "tolerance", 1e-9, "Accepted drift between stored and replayed weights")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// AnalyzerStats is the audit line for one analyzer
type AnalyzerStats struct {
	Analyzer     signal.AnalyzerID
	Samples      int
	Correct      int
	HitRate      float64
	Precision    float64
	Weight       float64
	StoredWeight float64
	Drift        float64
}

// Report is the full audit result
type Report struct {
	Outcomes      int
	Duplicates    int
	Wins          int
	Losses        int
	Breakevens    int
	Warm          bool
	Deterministic bool
	HasStored     bool
	Matches       bool
	Analyzers     []AnalyzerStats
}

// Audit replays the journal twice, compares the result with the stored
// document (nil when none exists) and tallies raw hit rates per analyzer
func Audit(journal []signal.Outcome, stored *weights.Document, cfg weights.Config, tol float64) Report {
	first := weights.Replay(journal, cfg)
	second := weights.Replay(journal, cfg)

	r := Report{
		Outcomes:      first.Outcomes,
		Duplicates:    len(journal) - first.Outcomes,
		Warm:          first.Warm(cfg),
		Deterministic: sameSnapshot(first, second, 0),
		HasStored:     stored != nil,
		Matches:       true,
	}

	var storedSnap *weights.Snapshot
	if stored != nil {
		storedSnap = weights.FromDocument(stored, cfg)
		r.Matches = sameSnapshot(first, storedSnap, tol)
	}

	samples := make(map[signal.AnalyzerID]int)
	correct := make(map[signal.AnalyzerID]int)
	seen := make(map[string]struct{}, len(journal))
	for _, o := range journal {
		if _, dup := seen[o.ProposalID]; dup {
			continue
		}
		seen[o.ProposalID] = struct{}{}
		switch o.Result {
		case signal.ResultWin:
			r.Wins++
		case signal.ResultLoss:
			r.Losses++
		default:
			r.Breakevens++
		}
		for _, s := range weights.Label(o) {
			samples[s.Analyzer]++
			if s.Correct {
				correct[s.Analyzer]++
			}
		}
	}

	for _, id := range signal.AllAnalyzers {
		st := AnalyzerStats{
			Analyzer:  id,
			Samples:   samples[id],
			Correct:   correct[id],
			Precision: first.Precision[id],
			Weight:    first.Weights[id],
		}
		if st.Samples > 0 {
			st.HitRate = float64(st.Correct) / float64(st.Samples)
		}
		if storedSnap != nil {
			st.StoredWeight = storedSnap.Weights[id]
			st.Drift = math.Abs(st.Weight - st.StoredWeight)
		}
		r.Analyzers = append(r.Analyzers, st)
	}
	return r
}

func sameSnapshot(a, b *weights.Snapshot, tol float64) bool {
	if a.Outcomes != b.Outcomes {
		return false
	}
	for _, id := range signal.AllAnalyzers {
		if math.Abs(a.Weights[id]-b.Weights[id]) > tol ||
			math.Abs(a.Precision[id]-b.Precision[id]) > tol ||
			a.SampleCounts[id] != b.SampleCounts[id] {
			return false
		}
	}
	return true
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if storeKind != "" {
		cfg.Weights.Store = storeKind
	}
	if dataDir != "" {
		cfg.Weights.DataDir = dataDir
	}
	logger := logging.New(&logging.Config{Level: "WARN", Output: "stderr", JSONFormat: false, Component: "weights-audit"})

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	journal, err := store.ReadJournal(ctx)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	doc, err := store.LoadWeights(ctx)
	if err != nil && !errors.Is(err, weights.ErrNotFound) {
		return fmt.Errorf("failed to load stored weights: %w", err)
	}

	report := Audit(journal, doc, cfg.Weights, tolerance)
	printReport(report, cfg.Weights.Store)
	if !report.Deterministic || !report.Matches {
		return errors.New("stored weights do not match the journal replay")
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (weights.Store, func(), error) {
	switch cfg.Weights.Store {
	case "postgres":
		db, err := database.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return weights.NewPostgresStore(database.NewRepository(db)), db.Close, nil
	case "file":
		fs, err := weights.NewFileStore(cfg.Weights.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("store %q has no journal to audit", cfg.Weights.Store)
	}
}

func printReport(r Report, store string) {
	line := strings.Repeat("=", 80)
	fmt.Println(line)
	fmt.Println("ANALYZER WEIGHTS AUDIT")
	fmt.Println(line)
	fmt.Printf("Store: %s\n", store)
	fmt.Printf("Outcomes: %d (WIN %d / LOSS %d / BREAKEVEN %d, %d duplicates skipped)\n",
		r.Outcomes, r.Wins, r.Losses, r.Breakevens, r.Duplicates)
	fmt.Printf("Warm: %v\n\n", r.Warm)

	fmt.Printf("%-12s %8s %8s %9s %10s %8s %8s %8s\n",
		"ANALYZER", "SAMPLES", "CORRECT", "HIT RATE", "PRECISION", "WEIGHT", "STORED", "DRIFT")
	fmt.Println(strings.Repeat("-", 80))
	for _, a := range r.Analyzers {
		stored, drift := "-", "-"
		if r.HasStored {
			stored = fmt.Sprintf("%.4f", a.StoredWeight)
			drift = fmt.Sprintf("%.2e", a.Drift)
		}
		fmt.Printf("%-12s %8d %8d %8.1f%% %10.4f %8.4f %8s %8s\n",
			a.Analyzer, a.Samples, a.Correct, a.HitRate*100, a.Precision, a.Weight, stored, drift)
	}
	fmt.Println()

	switch {
	case !r.Deterministic:
		fmt.Println("FAIL: replaying the journal twice gave different weights")
	case !r.HasStored:
		fmt.Println("OK: replay is deterministic (no stored weights to compare)")
	case r.Matches:
		fmt.Println("OK: stored weights match the journal replay")
	default:
		fmt.Println("FAIL: stored weights differ from the journal replay")
	}
}
