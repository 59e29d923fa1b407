package main

import (
	"os"

	"github.com/sanonone/irishnsw/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
