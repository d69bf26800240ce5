// Package main is the entry point for the winprov CLI, the bare-metal
// Windows disk provisioning tool: it partitions disk slots, restores a
// system image and writes UEFI boot files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/deploykit/winprov/cmd/winprov/commands"
	"github.com/deploykit/winprov/cmd/winprov/config"
	"github.com/deploykit/winprov/lib/logger"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.AddToContext(ctx, log)

	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root(cfg).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
