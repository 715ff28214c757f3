// Command foreman inspects a system scheduling manifest: it derives the
// dependency graph from declared resource access and prints the resulting
// wavefronts or a graph export.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
