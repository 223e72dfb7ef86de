package main

import (
	"os"

	"github.com/neatbudget/nbuild/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
