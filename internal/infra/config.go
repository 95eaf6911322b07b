// Package infra provides configuration, logging, and the resilience
// primitives (retry policy, circuit breaker, rate limiter, websocket worker)
// used by the broker gateway and the execution coordinator.
package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration. Secrets may be placed in
// the file for development but environment variables always win.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode         string   `yaml:"mode"`          // "paper" or "live"
		Symbols      []string `yaml:"symbols"`       // symbols to track on the price stream
		SessionClose string   `yaml:"session_close"` // HH:MM local, day-order expiry sweep
	} `yaml:"trading"`

	AlgoLab struct {
		BaseURL    string `yaml:"base_url"`
		WSURL      string `yaml:"ws_url"`
		APIKey     string `yaml:"api_key"`
		Username   string `yaml:"username"`
		Password   string `yaml:"password"`
		SubAccount string `yaml:"sub_account"`

		HeartbeatIntervalSec int `yaml:"heartbeat_interval_sec"`
		SessionTTLMin        int `yaml:"session_ttl_min"`
		RequestTimeoutSec    int `yaml:"request_timeout_sec"`
		OrderIntervalMS      int `yaml:"order_interval_ms"` // broker-enforced spacing between order calls
	} `yaml:"algolab"`

	Retry struct {
		MaxAttempts  int `yaml:"max_attempts"`
		BaseDelayMS  int `yaml:"base_delay_ms"`
		MaxDelayMS   int `yaml:"max_delay_ms"`
		MaxElapsedMS int `yaml:"max_elapsed_ms"`
	} `yaml:"retry"`

	Risk struct {
		PriceCollarPct int `yaml:"price_collar_pct"` // limit-price deviation from last trade, 0 disables
	} `yaml:"risk"`

	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the YAML configuration file, applies
// environment overrides, fills defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Trading.Mode == "" {
		c.Trading.Mode = "paper"
	}
	if c.Trading.SessionClose == "" {
		c.Trading.SessionClose = "18:10" // BIST equity close plus settlement margin
	}
	if c.AlgoLab.HeartbeatIntervalSec == 0 {
		c.AlgoLab.HeartbeatIntervalSec = 60
	}
	if c.AlgoLab.SessionTTLMin == 0 {
		c.AlgoLab.SessionTTLMin = 1440 // AlgoLab sessions last a trading day
	}
	if c.AlgoLab.RequestTimeoutSec == 0 {
		c.AlgoLab.RequestTimeoutSec = 10
	}
	if c.AlgoLab.OrderIntervalMS == 0 {
		c.AlgoLab.OrderIntervalMS = 5000
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelayMS == 0 {
		c.Retry.BaseDelayMS = 500
	}
	if c.Retry.MaxDelayMS == 0 {
		c.Retry.MaxDelayMS = 10_000
	}
	if c.Retry.MaxElapsedMS == 0 {
		c.Retry.MaxElapsedMS = 30_000
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "data/orders.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks configuration consistency before anything is wired.
func (c *Config) Validate() error {
	mode := strings.ToLower(c.Trading.Mode)
	if mode != "paper" && mode != "live" {
		return fmt.Errorf("trading mode must be 'paper' or 'live', got %q", c.Trading.Mode)
	}

	if mode == "live" {
		if !strings.HasPrefix(c.AlgoLab.BaseURL, "https://") {
			return fmt.Errorf("invalid AlgoLab base URL: %q", c.AlgoLab.BaseURL)
		}
		if c.AlgoLab.WSURL != "" &&
			!strings.HasPrefix(c.AlgoLab.WSURL, "ws://") && !strings.HasPrefix(c.AlgoLab.WSURL, "wss://") {
			return fmt.Errorf("invalid AlgoLab WS URL: %q", c.AlgoLab.WSURL)
		}
		if c.AlgoLab.APIKey == "" || c.AlgoLab.Username == "" {
			return fmt.Errorf("live mode requires AlgoLab credentials")
		}
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be at least 1")
	}
	if _, err := time.Parse("15:04", c.Trading.SessionClose); err != nil {
		return fmt.Errorf("invalid session_close %q: %w", c.Trading.SessionClose, err)
	}
	if c.Risk.PriceCollarPct < 0 || c.Risk.PriceCollarPct > 100 {
		return fmt.Errorf("price_collar_pct must be within [0,100]")
	}

	return nil
}

// RequestTimeout returns the per-call broker timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.AlgoLab.RequestTimeoutSec) * time.Second
}

// SessionTTL returns the broker session lifetime as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.AlgoLab.SessionTTLMin) * time.Minute
}

// overrideWithEnv applies environment variables over file values. Secrets
// should live in the environment, not in the config file.
func overrideWithEnv(cfg *Config) {
	if cfg.AlgoLab.APIKey != "" || cfg.AlgoLab.Password != "" {
		fmt.Fprintln(os.Stderr, "WARNING: AlgoLab credentials found in config file.")
		fmt.Fprintln(os.Stderr, "         Prefer BIST_ALGOLAB_KEY / BIST_ALGOLAB_USERNAME / BIST_ALGOLAB_PASSWORD.")
	}

	if v := os.Getenv("BIST_ALGOLAB_KEY"); v != "" {
		cfg.AlgoLab.APIKey = v
	}
	if v := os.Getenv("BIST_ALGOLAB_USERNAME"); v != "" {
		cfg.AlgoLab.Username = v
	}
	if v := os.Getenv("BIST_ALGOLAB_PASSWORD"); v != "" {
		cfg.AlgoLab.Password = v
	}
	if v := os.Getenv("BIST_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("BIST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
