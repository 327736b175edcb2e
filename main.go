package main

import (
	"os"

	"github.com/VanDung-dev/HieraChain-Simulator/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
