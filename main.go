package main

import (
	"os"

	"github.com/mathmate/tmjlink/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
