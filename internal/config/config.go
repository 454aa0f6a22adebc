package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/storm-lightning-service/internal/domain"
)

// Fetch modes select the RPC strategy used by the poller.
const (
	FetchModePoints  = "points"
	FetchModeGrid    = "grid"
	FetchModeRegions = "regions"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// JSON-RPC backend.
	RPCURL           string
	RPCTimeout       time.Duration
	RPCContentType   string
	RPCHTTPSFallback bool

	// Polling and fetch parameters.
	FetchMode             string
	PollInterval          time.Duration
	StrikeIntervalMinutes int
	StrikeOffset          int
	GridSize              int
	GridRegion            domain.Region
	GridRegions           []domain.Region
	GridCountThreshold    int
	FanoutConcurrency     int
	WindowMaxStrikes      int

	// Kafka publishing; disabled when no brokers are configured.
	KafkaBrokers     []string
	KafkaStrikeTopic string
}

// KafkaEnabled reports whether newly added strikes are published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	rpcTimeout, err := parsePositiveDuration("RPC_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	pollInterval, err := parsePositiveDuration("POLL_INTERVAL", "5s")
	if err != nil {
		return nil, err
	}

	intervalMinutes, err := parseInt("STRIKE_INTERVAL_MINUTES", 60)
	if err != nil {
		return nil, err
	}
	offset, err := parseInt("STRIKE_OFFSET", 0)
	if err != nil {
		return nil, err
	}
	gridSize, err := parseInt("GRID_SIZE", 10000)
	if err != nil {
		return nil, err
	}
	region, err := parseInt("GRID_REGION", int(domain.RegionGlobal))
	if err != nil {
		return nil, err
	}
	countThreshold, err := parseInt("GRID_COUNT_THRESHOLD", 0)
	if err != nil {
		return nil, err
	}
	concurrency, err := parseInt("FANOUT_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	maxStrikes, err := parseInt("WINDOW_MAX_STRIKES", 5000)
	if err != nil {
		return nil, err
	}

	httpsFallback, err := parseBool("RPC_HTTPS_FALLBACK", true)
	if err != nil {
		return nil, err
	}

	regions, err := domain.ParseRegions(sharedcfg.EnvOrDefault("GRID_REGIONS", "1,2,3,4,5,6"))
	if err != nil {
		return nil, fmt.Errorf("invalid GRID_REGIONS: %w", err)
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		RPCURL:           sharedcfg.EnvOrDefault("RPC_URL", "http://bo-service.tryb.de/"),
		RPCTimeout:       rpcTimeout,
		RPCContentType:   sharedcfg.EnvOrDefault("RPC_CONTENT_TYPE", "application/json"),
		RPCHTTPSFallback: httpsFallback,

		FetchMode:             strings.ToLower(sharedcfg.EnvOrDefault("FETCH_MODE", FetchModePoints)),
		PollInterval:          pollInterval,
		StrikeIntervalMinutes: intervalMinutes,
		StrikeOffset:          offset,
		GridSize:              gridSize,
		GridRegion:            domain.Region(region),
		GridRegions:           regions,
		GridCountThreshold:    countThreshold,
		FanoutConcurrency:     concurrency,
		WindowMaxStrikes:      maxStrikes,

		KafkaBrokers:     parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaStrikeTopic: sharedcfg.EnvOrDefault("KAFKA_STRIKE_TOPIC", "lightning-strikes"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.RPCURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("RPC_URL must be an absolute http(s) URL")
	}
	if c.RPCContentType != "application/json" && c.RPCContentType != "text/json" {
		return errors.New("RPC_CONTENT_TYPE must be application/json or text/json")
	}
	switch c.FetchMode {
	case FetchModePoints, FetchModeGrid, FetchModeRegions:
	default:
		return fmt.Errorf("invalid FETCH_MODE %q", c.FetchMode)
	}
	if c.StrikeIntervalMinutes <= 0 {
		return errors.New("STRIKE_INTERVAL_MINUTES must be positive")
	}
	if c.StrikeOffset > 0 {
		return errors.New("STRIKE_OFFSET must be zero or negative")
	}
	if c.GridSize <= 0 {
		return errors.New("GRID_SIZE must be positive")
	}
	if !c.GridRegion.Valid() {
		return fmt.Errorf("invalid GRID_REGION %d", c.GridRegion)
	}
	if c.GridCountThreshold < 0 {
		return errors.New("GRID_COUNT_THRESHOLD must not be negative")
	}
	if c.FanoutConcurrency <= 0 {
		return errors.New("FANOUT_CONCURRENCY must be positive")
	}
	if c.WindowMaxStrikes < 0 {
		return errors.New("WINDOW_MAX_STRIKES must not be negative")
	}
	if c.KafkaEnabled() && c.KafkaStrikeTopic == "" {
		return errors.New("KAFKA_STRIKE_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

// parseBrokers leaves publishing disabled when KAFKA_BROKERS is unset.
func parseBrokers(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return sharedcfg.ParseBrokers(s)
}
