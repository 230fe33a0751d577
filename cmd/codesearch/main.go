// Package main provides the entry point for the codesearch CLI.
package main

import (
	"fmt"
	"os"

	"github.com/codesearch/codesearch/cmd/codesearch/cmd"
)

func main() {
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(cmd.ExitCode(err))
}
