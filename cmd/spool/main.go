package main

import (
	"os"

	"github.com/bnema/sessionpool/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
