package main

import (
	"fmt"
	"os"

	"github.com/csic-platform/forensic-evidence-platform/cmd/evidence-platform/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
