package main

import (
	"os"

	"github.com/xentbench/xent-runtime/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
