// Command mockrpc serves randomly generated lightning strikes over the same
// JSON-RPC contract as the real strike backend, for local development.
//
// Usage:
//
//	go run ./cmd/mockrpc -addr :8090 -rate 120 -wrap
//
// Then point the service at it with RPC_URL=http://localhost:8090/.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/storm-lightning-service/internal/mockrpc"
)

func main() {
	if err := run(); err != nil {
		slog.Error("mockrpc failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", sharedcfg.EnvOrDefault("MOCK_RPC_ADDR", ":8090"), "listen address")
	rate := flag.Float64("rate", 120, "strikes generated per minute")
	cells := flag.Int("cells", 8, "number of drifting storm cells")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	wrap := flag.Bool("wrap", false, "wrap every response object in a single-element array")
	logLevel := flag.String("log-level", sharedcfg.EnvOrDefault("LOG_LEVEL", "debug"), "log level")
	logFormat := flag.String("log-format", sharedcfg.EnvOrDefault("LOG_FORMAT", "text"), "log format (text or json)")
	flag.Parse()

	if *rate <= 0 || *cells <= 0 {
		return errors.New("-rate and -cells must be positive")
	}

	logger := sharedobs.NewLogger(*logLevel, *logFormat)
	gen := mockrpc.NewGenerator(nil, *seed, *rate, *cells)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      mockrpc.NewServer(gen, *wrap, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mock rpc listening", "addr", *addr, "rate", *rate, "cells", *cells, "wrap", *wrap)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
