package main

import (
	"os"

	"github.com/joseph-ayodele/w2-reporter/cmd/w2ctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
