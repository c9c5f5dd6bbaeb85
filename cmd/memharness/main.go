package main

import (
	"os"

	"MemHarness/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
