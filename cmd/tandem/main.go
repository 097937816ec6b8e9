package main

import (
	"os"

	"github.com/dshills/tandem/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
