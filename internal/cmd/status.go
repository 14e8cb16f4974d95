package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe the agent CLI and print its version",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		version, err := a.bridge.HealthCheck(cmd.Context())
		if err != nil {
			return fmt.Errorf("agent unavailable: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "agent: %s\nbackend: %s\n", version, a.cfg.Agent.Backend)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
