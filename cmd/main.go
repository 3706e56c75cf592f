package main

// Entry point of battery-chart
// Executes the Cobra command tree and reports command errors

import (
	"fmt"
	"os"

	"battery-chart/cmd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
