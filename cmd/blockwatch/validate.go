package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blockhost/blockwatch/config"
)

// validateCmd validates a config file without starting anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a blockwatch configuration file without starting the poller
or the mock backend.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  blockwatch validate -c config.yaml
  blockwatch validate --config /etc/blockwatch/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Endpoint:      %s\n", cfg.Endpoint)
	fmt.Printf("  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Printf("  Timeout:       %s\n", cfg.Timeout.Duration())
	fmt.Printf("  Fallback:      %t\n", cfg.FallbackEnabled())
	fmt.Printf("  Port:          %d\n", cfg.Port)
	if cfg.DataFile != "" {
		fmt.Printf("  Data file:     %s\n", cfg.DataFile)
	}

	return nil
}
