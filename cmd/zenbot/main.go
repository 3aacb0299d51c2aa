package main

import (
	"os"

	"github.com/thirayume/thai-asset-zen-sub000/cmd/zenbot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
