package main

import (
	"os"

	"github.com/ftpkit/ftpkit/cmd/ftpkitd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
