package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"revstats/internal/app"
	"revstats/internal/logging"
)

// main runs one report job with the command-line arguments.
// SIGINT and SIGTERM cancel the run; the ledger and metrics are still recorded.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := app.NewAppRunner()

	err := runner.Run(ctx, os.Args[1:])
	if err != nil {
		log.Printf("[ERROR] Report run failed: %v", err)
		if errors.Is(err, app.ErrUsage) || errors.Is(err, app.ErrConfigNotFound) {
			fmt.Fprintln(os.Stderr, "")
			runner.Usage(os.Stderr)
		}
		logging.Sync()
		stop()
		os.Exit(1)
	}

	logging.Logf(logging.Debug, "Application completed successfully.")
	logging.Sync()
}
