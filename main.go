package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const appName = "signal-engine"

var (
	configPath string
	logLevel   string

	// exitCode is set by commands that report a result through the process status
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Two-layer confluence trading signal engine",
	Long: `signal-engine turns OHLCV history into trade proposals.

Five Layer-1 analyzers vote on direction, adaptive weights fold the votes into a
confluence score, and the Layer-2 validators gate the result before entry,
stop, targets and size are built. Realized outcomes feed back into the weights.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Configuration file (.yaml, .yml or .json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

// printJSON writes v to stdout, indented when stdout is a terminal and one
// document per line otherwise
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	if term.IsTerminal(int(os.Stdout.Fd())) {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
