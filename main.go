// ABOUTME: Entry point for the resonate-engine command
// ABOUTME: Wires OS signals into the command context
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/resonate-engine/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cmd.Execute(ctx)
	stop()
	os.Exit(code)
}
