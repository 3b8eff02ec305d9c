// Package main provides the ldgraph binary entry point.
// ldgraph is a linked-data resource server: graph documents exposed
// through resource-oriented verbs over a MongoDB document store, with
// container virtualization, access control, versioning, and change
// tracking.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360studio/ldgraph/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "ldgraph"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "ldgraph",
		Short: "Linked-data resource server",
		Long: `ldgraph serves graph-structured documents (subject/predicate/value
triples) through resource-oriented verbs backed by MongoDB.

It provides:
- Document create/fetch/patch/delete/query with optimistic concurrency
- Virtual container resources computed from membership queries
- Per-resource access control and historical versioning
- Change-event publication over NATS`,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the resource server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func run(configPath, logLevel string) error {
	// Configure logging
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app := NewApp(cfg, logger)

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		return err
	}

	logger.Info("ldgraph ready",
		"version", Version,
		"addr", cfg.ListenAddr(),
		"database", cfg.Mongo.Database,
		"tenant", cfg.Server.Tenant)

	// Block until shutdown signal
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()
	<-signalCtx.Done()
	logger.Info("Received shutdown signal")

	app.Shutdown(cfg.Server.ShutdownTimeout)
	logger.Info("ldgraph shutdown complete")
	return nil
}

func loadConfig(configPath string, logger *slog.Logger) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.NewLoader(logger).Load()
}
