package main

import (
	"os"

	"github.com/sho7650/content-rotation/internal/cli"
)

var Version = "dev"

func main() {
	if err := cli.Execute(Version); err != nil {
		os.Exit(1)
	}
}
