package main

import (
	"os"

	"github.com/alfredlabs/alfred/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
