// Package main is the parlando voice agent entrypoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rbright/parlando/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A second signal kills the process while the current cycle drains.
	go func() {
		<-ctx.Done()
		stop()
	}()

	os.Exit(app.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr))
}
