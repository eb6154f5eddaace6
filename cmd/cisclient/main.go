package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := newApp(os.Stdout, os.Stderr)
	err := newRootCommand(a).ExecuteContext(ctx)
	cancel()
	if err != nil {
		a.fatal(err)
		os.Exit(1)
	}
}
