package main

import (
	"os"

	"github.com/nbakr/marko/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
