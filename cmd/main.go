// Package main provides the entry point for the go-powerdash server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/resident-x/go-powerdash/internal/api"
	"github.com/resident-x/go-powerdash/internal/config"
	"github.com/resident-x/go-powerdash/internal/conn"
	"github.com/resident-x/go-powerdash/internal/domain"
	"github.com/resident-x/go-powerdash/internal/notify"
	"github.com/resident-x/go-powerdash/internal/prefs"
	"github.com/resident-x/go-powerdash/internal/store"
	"github.com/resident-x/go-powerdash/internal/transport/mqtt"
	"github.com/resident-x/go-powerdash/internal/transport/ws"
)

var (
	Version = "unknown" // Default version, can be overridden by build flags
)

func main() {
	code := run() // run() returns an int
	os.Exit(code) // os.Exit is called after deferred functions in run() execute
}

func run() int {
	// Parse command line flags
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Show version if requested
	if *showVersion {
		fmt.Printf("go-powerdash server %s\n", Version)
		return 0
	}

	// Initialize context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		return 1
	}

	// Initialize logger with the configured log level
	initLogger(cfg.LogLevel)

	log.Info().Str("version", Version).Msg("Starting go-powerdash server")
	cfg.Print()

	// Load persisted preferences; errors fall back to defaults
	prefStore := prefs.NewStore(cfg.Prefs.Path)
	theme := prefStore.LoadTheme()

	// Create state store and notification feed
	st := store.New(&store.Options{
		LogCapacity:  cfg.Buffers.LogCapacity,
		InitialTheme: &theme,
	})
	router := notify.NewRouter(cfg.Buffers.NotificationCapacity, notify.NewLogSink())

	// Select transport
	var transport domain.Transport
	switch cfg.Transport.Kind {
	case "mqtt":
		transport = mqtt.NewTransport(cfg.Transport.Topic)
	default:
		transport = ws.NewTransport()
	}

	// Create connection manager
	policy := conn.BackoffPolicy{
		InitialDelay: cfg.Reconnect.InitialDelay,
		MaxDelay:     cfg.Reconnect.MaxDelay,
		MaxAttempts:  cfg.Reconnect.MaxAttempts,
	}
	manager := conn.NewManager(transport, st, router, policy)

	if err := manager.Connect(ctx, cfg.Transport.Address); err != nil {
		// Malformed address: already surfaced as a failed session plus a
		// notification; nothing to retry.
		log.Error().Err(err).Msg("Failed to start connection manager")
		return 1
	}
	defer func() {
		if err := manager.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing connection manager")
		}
	}()

	// Start HTTP API server if enabled
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg, st, router, manager, prefStore)
		if err := apiServer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to start API server")
			return 1
		}
	}

	log.Info().
		Str("transport", cfg.Transport.Kind).
		Str("address", cfg.Transport.Address).
		Msg("go-powerdash started successfully")

	// Handle graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-signalChan
	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	// Create context with timeout for graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if apiServer != nil {
		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping API server")
			return 1
		}
	}

	log.Info().Msg("Server stopped")
	return 0
}

// initLogger configures the global zerolog logger.
func initLogger(level string) {
	// Set up pretty console logging for development
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	// Parse the log level
	logLevel, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		fmt.Printf("Invalid log level '%s', defaulting to 'info'\n", level)
		logLevel = zerolog.InfoLevel
	}

	// Configure global logger
	zerolog.SetGlobalLevel(logLevel)
	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}
