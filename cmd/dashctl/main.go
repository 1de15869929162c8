package main

import (
	"fmt"
	"os"

	"github.com/blenvi/blenvi/internal/cli"
)

var buildVersion = "dev"

func main() {
	cli.Version = buildVersion
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
