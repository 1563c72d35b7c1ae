package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blockhost/blockwatch/config"
	"github.com/blockhost/blockwatch/internal/server"
	"github.com/blockhost/blockwatch/internal/store"
	"github.com/blockhost/blockwatch/internal/synth"
)

// mockCmd runs the mock hosting backend.
var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Run the mock hosting backend",
	Long: `Start the mock hosting backend server.

The server will:
  - Serve a status endpoint with a block identifier that rotates on a
    randomized 20-60s schedule
  - Serve a deployments API backed by a flat JSON file (or memory when
    no data_file is configured)
  - Stream deployment changes via Server-Sent Events at /api/events

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  blockwatch mock -c config.yaml`,
	RunE: runMock,
}

func init() {
	rootCmd.AddCommand(mockCmd)

	mockCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = mockCmd.MarkFlagRequired("config")
}

func runMock(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	st, err := store.NewFileStore(cfg.DataFile)
	if err != nil {
		return fmt.Errorf("failed to open deployment store: %w", err)
	}

	logger.Info("starting mock backend",
		"port", cfg.Port,
		"data_file", cfg.DataFile,
		"deployments", len(st.List()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(st, synth.New(), cfg.Port, logger)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start mock backend: %w", err)
	}
	logger.Info("mock backend available", "url", fmt.Sprintf("http://localhost:%d/api/status", cfg.Port))

	<-ctx.Done()
	logger.Info("shutdown complete")
	return nil
}
