package main

import (
	"os"

	"bookgate/cmd/bookfile-cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
