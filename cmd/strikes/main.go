package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/storm-lightning-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-lightning-service/internal/adapter/kafka"
	"github.com/couchcryptid/storm-lightning-service/internal/adapter/rpc"
	"github.com/couchcryptid/storm-lightning-service/internal/config"
	"github.com/couchcryptid/storm-lightning-service/internal/observability"
	"github.com/couchcryptid/storm-lightning-service/internal/pipeline"
	"github.com/couchcryptid/storm-lightning-service/internal/source"
	"github.com/couchcryptid/storm-lightning-service/internal/window"
)

func main() {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	client := rpc.NewClient(cfg.RPCURL, cfg.RPCContentType, cfg.RPCTimeout, logger, metrics)
	src := newSource(cfg, client, logger, metrics)

	store := window.New(clock, cfg.WindowMaxStrikes)
	hub := httpadapter.NewHub(logger, metrics)
	publishers := []pipeline.Publisher{hub}

	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled() {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publishers = append(publishers, writer)
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaStrikeTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	poller := pipeline.New(src, store, publishers, clock, cfg.PollInterval, logger, metrics)
	srv := httpadapter.NewServer(cfg.HTTPAddr, poller, store, poller, hub, clock, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	logger.Info("strike poller configured",
		"mode", cfg.FetchMode,
		"rpc_url", cfg.RPCURL,
		"interval", cfg.PollInterval,
		"window_max_strikes", cfg.WindowMaxStrikes,
	)
	poller.Start(ctx)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	poller.Stop()
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func newSource(cfg *config.Config, client *rpc.Client, logger *slog.Logger, metrics *observability.Metrics) pipeline.Source {
	params := source.GridParams{
		IntervalMinutes: cfg.StrikeIntervalMinutes,
		GridSize:        cfg.GridSize,
		Offset:          cfg.StrikeOffset,
		CountThreshold:  cfg.GridCountThreshold,
	}

	switch cfg.FetchMode {
	case config.FetchModeGrid:
		return source.NewGrid(client, cfg.GridRegion, params)
	case config.FetchModeRegions:
		var fallback source.Caller
		if cfg.RPCHTTPSFallback {
			if u, ok := rpc.HTTPSFallback(cfg.RPCURL); ok {
				fallback = client.WithBaseURL(u)
			}
		}
		return source.NewRegions(client, fallback, cfg.GridRegions, params, cfg.FanoutConcurrency, logger, metrics)
	default:
		return source.NewPoints(client, cfg.StrikeIntervalMinutes, cfg.StrikeOffset)
	}
}
