// Command vivoassist is the entry point for the VivoAssist manual assistant.
// It provides a CLI interface (via Cobra) and an optional HTTP server for
// interactive use.
package main

import (
	"fmt"
	"os"

	"github.com/vivoassist/vivoassist-go/cmd/vivoassist/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
