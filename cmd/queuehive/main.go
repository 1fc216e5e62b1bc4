package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"queuehive/internal/apiclient"
	"queuehive/internal/config"
	"queuehive/internal/logger"
	"queuehive/internal/telemetry"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "queuehive: %v\n", err)
		return 1
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	shutdownTelemetry := telemetry.Setup("queuehive")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg)
	defer a.close()

	if err := rootCommand(a).Execute(ctx, args); err != nil {
		fmt.Fprintf(os.Stderr, "queuehive: %s\n", describe(err))
		log.Debug().Err(err).Msg("command failed")
		return 1
	}
	return 0
}

// describe renders err the way the user should see it. Backend failures
// show the normalized message with field details.
func describe(err error) string {
	var validation apiclient.ValidationErrors
	if errors.As(err, &validation) {
		return validation.Error()
	}
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return err.Error()
}
