// fakehub serves an in-memory IssueHub backend for local development.
// Data lives only as long as the process.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/iammorganparry/issuehub/internal/fakehub"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	var (
		addr     string
		seed     bool
		secret   string
		tokenTTL time.Duration
	)
	flagSet := pflag.NewFlagSet("fakehub", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "addr", envOr("FAKEHUB_ADDR", ":8000"), "listen address")
	flagSet.BoolVar(&seed, "seed", true, "load the demo users, projects and issues")
	flagSet.StringVar(&secret, "secret", os.Getenv("FAKEHUB_SECRET"), "token signing secret (hex); random when empty")
	flagSet.DurationVar(&tokenTTL, "token-ttl", 30*time.Minute, "lifetime of issued tokens")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	// Logger
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	var secretBytes []byte
	if secret != "" {
		decoded, err := hex.DecodeString(secret)
		if err != nil {
			return fmt.Errorf("--secret must be hex: %w", err)
		}
		secretBytes = decoded
	}

	hub := fakehub.New(fakehub.Options{Secret: secretBytes, TokenTTL: tokenTTL, Logger: logger})
	if seed {
		if err := hub.Seed(); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		logger.Info("seeded demo data",
			"users", []string{"alice@example.com", "bob@example.com", "charlie@example.com"},
			"password", fakehub.DemoPassword,
		)
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      hub,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("fakehub starting", "addr", addr, "api", "/api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-done:
	}
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
