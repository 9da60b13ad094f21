package main

import (
	"os"

	"github.com/roach88/modplan/internal/cli"
)

var version = "dev"

func main() {
	cli.SetVersion(version)
	os.Exit(cli.Execute())
}
