// Package main provides the entry point for the onechelp CLI.
package main

import (
	"os"

	"github.com/onec-help/onechelp/cmd/onechelp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
