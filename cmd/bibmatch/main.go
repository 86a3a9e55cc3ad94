// Package main provides the entry point for the bibmatch CLI.
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/cmd/bibmatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
