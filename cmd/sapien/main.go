// Command sapien is the entry point for the sapien chat memory client.
// It provides a CLI interface (via Cobra) and an optional HTTP server that
// exposes the memory API over REST.
package main

import (
	"fmt"
	"os"

	"github.com/sapien-ai/sapien-go/cmd/sapien/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
