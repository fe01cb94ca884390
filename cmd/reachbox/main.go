// Package main provides the entry point for the reachbox CLI and server.
package main

import (
	"fmt"
	"os"

	"github.com/raphaelgruber/reachbox/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
