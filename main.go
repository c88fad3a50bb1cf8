// sshmcp - an MCP tool server exposing persistent interactive SSH shells.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sshmcp/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "sshmcp: %v\n", err)
		os.Exit(1)
	}
}
