package main

import (
	"os"

	"github.com/zpkg/registry/registry"
)

func main() {
	if err := registry.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
