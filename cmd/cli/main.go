// Package main is the entry point for the car-edition CLI.
package main

import (
	"os"

	"car-edition/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
