package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/espfleet/espfleet/cmd/espfleet/commands"
	"github.com/espfleet/espfleet/pkg/engine"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

const (
	exitOK          = 0
	exitError       = 1
	exitInterrupted = 130
)

func main() {
	// Optional .env for local development; absence is fine.
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Warn().Msg("interrupt received, finishing current step and flushing progress")
		cancel()
	}()

	err := commands.Execute(ctx, Version, Commit, BuildDate)
	switch {
	case err == nil:
		os.Exit(exitOK)
	case engine.IsInterrupted(err):
		os.Exit(exitInterrupted)
	default:
		log.Error().Err(err).Msg("command failed")
		os.Exit(exitError)
	}
}
