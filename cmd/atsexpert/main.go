package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"atsexpert/internal/cli"
	"atsexpert/internal/errors"

	"github.com/joho/godotenv"
)

func main() {
	// A .env file is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Failed to load .env file: %v\n", err)
		os.Exit(1)
	}

	// Create a context that is canceled on interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		msg := errors.UserMessage(err)
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
		if detail := err.Error(); detail != msg {
			fmt.Fprintf(os.Stderr, "Details: %s\n", detail)
		}
		stop()
		os.Exit(1)
	}
}
