package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
marketsync:
  name: marketsync
  version: test
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Stream.URL != "ws://localhost:5000/ws" {
		t.Fatalf("unexpected default stream url: %s", cfg.Stream.URL)
	}
	if cfg.Stream.Backoff.Min != time.Second || cfg.Stream.Backoff.Max != 30*time.Second {
		t.Fatalf("unexpected default backoff: %+v", cfg.Stream.Backoff)
	}
	if cfg.Market.TradeCapacity != 100 {
		t.Fatalf("unexpected default trade capacity: %d", cfg.Market.TradeCapacity)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("MARKET_WS_URL", "ws://stream.example.com/ws")
	t.Setenv("MARKET_REST_URL", "https://api.example.com")

	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Stream.URL != "ws://stream.example.com/ws" {
		t.Fatalf("env override ignored for stream url: %s", cfg.Stream.URL)
	}
	if cfg.Rest.BaseURL != "https://api.example.com" {
		t.Fatalf("env override ignored for rest base url: %s", cfg.Rest.BaseURL)
	}
}

func TestLoadConfigRejectsMissingName(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "marketsync:\n  version: test\n")); err == nil {
		t.Fatal("expected validation error for missing name")
	}
}

func TestLoadConfigRejectsBadInterval(t *testing.T) {
	body := minimalConfig + `
market:
  intervals: ["7x"]
`
	if _, err := LoadConfig(writeConfig(t, body)); err == nil {
		t.Fatal("expected validation error for bad interval")
	}
}

func TestLoadConfigRecorderRequiresBucket(t *testing.T) {
	body := minimalConfig + `
recorder:
  enabled: true
`
	if _, err := LoadConfig(writeConfig(t, body)); err == nil {
		t.Fatal("expected validation error for missing bucket")
	}
}

func TestParseInterval(t *testing.T) {
	cases := map[string]time.Duration{
		"30s": 30 * time.Second,
		"1m":  time.Minute,
		"15m": 15 * time.Minute,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
	}
	for in, want := range cases {
		got, err := ParseInterval(in)
		if err != nil {
			t.Fatalf("ParseInterval(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseInterval(%q) = %v, want %v", in, got, want)
		}
	}
	for _, bad := range []string{"", "m", "0m", "-1m", "5y"} {
		if _, err := ParseInterval(bad); err == nil {
			t.Fatalf("ParseInterval(%q): expected error", bad)
		}
	}
}
