// Command spool is a serverless, git-backed distributed record store for
// issue-tracking data. Records live as files on a dedicated branch and
// independent clones converge through fetch/merge/push cycles.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
