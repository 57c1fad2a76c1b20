package main

import (
	"os"

	"github.com/ForensicRS/frnsc-prefetch/cmd/frnsc-prefetch/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.PrintErr("%v", err)
		os.Exit(1)
	}
}
