package main

import (
	"os"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
