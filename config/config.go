package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Marketsync MarketsyncConfig `yaml:"marketsync"`
	Stream     StreamConfig     `yaml:"stream"`
	Rest       RestConfig       `yaml:"rest"`
	Market     MarketConfig     `yaml:"market"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Recorder   RecorderConfig   `yaml:"recorder"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type MarketsyncConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// StreamConfig controls the websocket transport and its reconnect policy.
type StreamConfig struct {
	URL          string        `yaml:"url"`
	PingInterval time.Duration `yaml:"ping_interval"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	Backoff      BackoffConfig `yaml:"backoff"`
}

type BackoffConfig struct {
	Min    time.Duration `yaml:"min"`
	Max    time.Duration `yaml:"max"`
	Factor float64       `yaml:"factor"`
}

// RestConfig controls the snapshot fetcher HTTP client.
type RestConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Timeout        time.Duration        `yaml:"timeout"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// MarketConfig bounds the normalized store and names the symbols the service
// keeps live on startup.
type MarketConfig struct {
	Symbols       []string `yaml:"symbols"`
	Intervals     []string `yaml:"intervals"`
	DepthLimit    int      `yaml:"depth_limit"`
	TradeCapacity int      `yaml:"trade_capacity"`
	KlineLimit    int      `yaml:"kline_limit"`
	ResyncBuffer  int      `yaml:"resync_buffer"`
}

type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	S3            S3Config      `yaml:"s3"`
}

type S3Config struct {
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type MetricsConfig struct {
	CloudWatch bool   `yaml:"cloudwatch"`
	Namespace  string `yaml:"namespace"`
	Region     string `yaml:"region"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// LoadConfig reads and validates the yaml configuration at path. Environment
// variables override the websocket URL, REST base URL and S3 credentials so
// deployments never need secrets on disk.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if v := os.Getenv("MARKET_WS_URL"); v != "" {
		config.Stream.URL = strings.TrimSpace(v)
	}
	if v := os.Getenv("MARKET_REST_URL"); v != "" {
		config.Rest.BaseURL = strings.TrimSpace(v)
	}

	if config.Recorder.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Recorder.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Recorder.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Recorder.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Recorder.S3.Bucket = strings.TrimSpace(v)
		}
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func defaultConfig() Config {
	return Config{
		Stream: StreamConfig{
			URL:          "ws://localhost:5000/ws",
			PingInterval: 20 * time.Second,
			WriteTimeout: 5 * time.Second,
			Backoff: BackoffConfig{
				Min:    time.Second,
				Max:    30 * time.Second,
				Factor: 2,
			},
		},
		Rest: RestConfig{
			BaseURL: "http://localhost:5000",
			Timeout: 10 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 10,
				BurstSize:         20,
			},
		},
		Market: MarketConfig{
			Intervals:     []string{"1m"},
			DepthLimit:    100,
			TradeCapacity: 100,
			KlineLimit:    500,
			ResyncBuffer:  64,
		},
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Marketsync.Name == "" {
		return fmt.Errorf("marketsync.name is required")
	}

	if cfg.Marketsync.Version == "" {
		return fmt.Errorf("marketsync.version is required")
	}

	if cfg.Stream.URL == "" {
		return fmt.Errorf("stream.url is required")
	}

	if cfg.Stream.Backoff.Min <= 0 || cfg.Stream.Backoff.Max < cfg.Stream.Backoff.Min {
		return fmt.Errorf("stream.backoff min/max are invalid")
	}

	if cfg.Rest.BaseURL == "" {
		return fmt.Errorf("rest.base_url is required")
	}

	if cfg.Market.DepthLimit <= 0 {
		return fmt.Errorf("market.depth_limit must be greater than 0")
	}

	if cfg.Market.TradeCapacity <= 0 {
		return fmt.Errorf("market.trade_capacity must be greater than 0")
	}

	if cfg.Market.ResyncBuffer <= 0 {
		return fmt.Errorf("market.resync_buffer must be greater than 0")
	}

	for _, iv := range cfg.Market.Intervals {
		if _, err := ParseInterval(iv); err != nil {
			return err
		}
	}

	if cfg.Recorder.Enabled {
		if cfg.Recorder.S3.Bucket == "" {
			return fmt.Errorf("recorder.s3.bucket is required when the recorder is enabled")
		}
		if cfg.Recorder.FlushInterval <= 0 {
			cfg.Recorder.FlushInterval = time.Minute
		}
	}

	if cfg.Dashboard.Enabled && cfg.Dashboard.Address == "" {
		cfg.Dashboard.Address = ":8080"
	}

	return nil
}

// ParseInterval converts a chart interval token ("1m", "15m", "4h", "1d")
// into a duration.
func ParseInterval(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	unit := s[len(s)-1]
	var n int
	if _, err := fmt.Sscanf(s[:len(s)-1], "%d", &n); err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	switch unit {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid interval unit in %q", s)
	}
}
