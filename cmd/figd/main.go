// Command figd is the shell prediction daemon and its control client.
// The serve subcommand runs the daemon; the remaining subcommands talk to
// it over its Unix domain socket.
package main

import (
	"fmt"
	"os"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "figd:", err)
		os.Exit(1)
	}
}
