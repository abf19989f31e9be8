// Command vectord runs the named-vector storage daemon: it loads
// configuration, opens the four intake queues, and serves Create/Set/Get/
// Destroy requests until told to stop.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/vectord/internal/config"
	"github.com/adred-codev/vectord/internal/logging"
	"github.com/adred-codev/vectord/internal/server"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides VECTORD_LOG_LEVEL)")
	flag.Parse()

	startupLog := log.New(os.Stdout, "[vectord] ", log.LstdFlags)

	cfg, err := config.Load(nil)
	if err != nil {
		startupLog.Fatalf("failed to load configuration: %v", err)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	cfg.LogFields(logger)

	srv, err := server.New(cfg, logger)
	if err != nil {
		startupLog.Fatalf("failed to create server: %v", err)
	}

	stdinDone := make(chan struct{})
	go func() {
		defer close(stdinDone)
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("server exited with error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutdown signal received")
	case <-stdinDone:
		logger.Info().Msg("'q' received on stdin, shutting down")
	}

	if err := srv.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
		os.Exit(server.ExitInitFailure)
	}
	os.Exit(server.ExitShutdownClean)
}
