package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"signal-engine/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and websocket event stream",
	RunE:  runServe,
}

var servePort int

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides configuration)")
}

// healthFunc adapts a plain check function to api.HealthChecker
type healthFunc func(ctx context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	rt, err := newRuntime(cmd.Context(), cfg, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger

	snap := rt.weights.Current()
	logger.Info("Signal engine initialized",
		"outcomes", snap.Outcomes,
		"warm", snap.Warm(cfg.Weights),
		"market_provider", cfg.Market.Provider,
		"sentiment", cfg.Sentiment.Enabled,
	)

	server := api.NewServer(cfg.Server, rt.engine, rt.guard, rt.bus, rt.metrics, logger)
	if rt.db != nil {
		server.AddHealthCheck("database", rt.db)
	}
	if rt.repo != nil {
		server.SetEventHistory(rt.repo)
	}
	if rt.cache != nil {
		server.AddHealthCheck("redis", healthFunc(rt.cache.Ping))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("HTTP server failed")
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server shutdown error")
		return err
	}
	logger.Info("Signal engine stopped")
	return nil
}
