// Package main is the entry point for the mediation host
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/thenexusengine/tne_mediation/pkg/logger"
)

func main() {
	// Parse configuration from flags and environment
	cfg := ParseConfig()

	// Initialize structured logger
	logger.Init(logger.DefaultConfig())
	log := logger.Log

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := NewServer(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	if err := server.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Server error")
		stop()
		os.Exit(1)
	}
	log.Info().Msg("Server stopped gracefully")
}
