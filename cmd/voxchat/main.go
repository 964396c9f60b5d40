// Package main is the voxchat command.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rbright/voxchat/internal/app"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes one command. The first interrupt cancels the command; once it
// has, signal handling is released so a second interrupt kills the process
// even while a submission is still finishing.
func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()
	context.AfterFunc(ctx, stop)

	return app.Execute(ctx, args, os.Stdout, os.Stderr)
}
