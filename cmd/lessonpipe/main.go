// Package main provides the entry point for the lessonpipe CLI.
package main

import (
	"fmt"
	"os"

	"github.com/etiennegwiavander/linguaspark-sub009/cmd/lessonpipe/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
