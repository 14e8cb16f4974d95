// Package cmd defines the agentrelay command tree.
package cmd

import "github.com/spf13/cobra"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "agentrelay",
	Short: "Conversational relay to a coding-agent CLI",
	Long: `Agentrelay bridges a chat surface to a coding-agent CLI (claude or
codex): it batches messages, keeps per-user named sessions with
resumable conversations, and gates risky commands behind confirmation.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.config/agentrelay/config.yaml)")
}
