package main

// ============================================================================
// 1. CLI entry point
// 2. Build and execute the command tree
// 3. Top-level error reporting and panic recovery
// ============================================================================

import (
	"fmt"
	"os"

	"github.com/ChuLiYu/parabola/internal/cli"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", r)
			os.Exit(1)
		}
	}()

	if err := cli.BuildCLI().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
