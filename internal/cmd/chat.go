package cmd

import (
	"github.com/spf13/cobra"

	"github.com/agentrelay/agentrelay/internal/tui"
)

var chatVerbose bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the local chat client",
	Long: `Chat opens an interactive terminal client wired to the full relay
path: batching, sessions, risk gating, and the agent bridge.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		sender := tui.NewProgramSender()
		h, err := a.buildHandler(sender, chatVerbose)
		if err != nil {
			return err
		}

		return tui.Run(h, sender)
	},
}

func init() {
	chatCmd.Flags().BoolVarP(&chatVerbose, "verbose", "v", false, "stream the agent's progress lines as they arrive")
	rootCmd.AddCommand(chatCmd)
}
