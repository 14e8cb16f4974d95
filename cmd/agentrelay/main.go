package main

import (
	"os"

	"github.com/agentrelay/agentrelay/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
