package main

import (
	"os"

	"github.com/casefolio/casefolio/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
