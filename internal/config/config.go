package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
)

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.DiagLogSize == 0 {
		cfg.DiagLogSize = DefaultDiagLogSize
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if len(cfg.Feeds) == 0 {
		return errors.New("at least one feed is required")
	}

	feedNames := make(map[string]bool)
	for i, feed := range cfg.Feeds {
		if feed.Name == "" {
			return fmt.Errorf("feed[%d]: name is required", i)
		}

		if feedNames[feed.Name] {
			return fmt.Errorf("feed[%d]: duplicate feed name '%s'", i, feed.Name)
		}
		feedNames[feed.Name] = true

		if feed.SocketURL == "" {
			return fmt.Errorf("feed '%s': socketUrl is required", feed.Name)
		}
		if err := validateHTTPURL(feed.SocketURL); err != nil {
			return fmt.Errorf("feed '%s': invalid socketUrl: %w", feed.Name, err)
		}
		if feed.PollingURL != "" {
			if err := validateHTTPURL(feed.PollingURL); err != nil {
				return fmt.Errorf("feed '%s': invalid pollingUrl: %w", feed.Name, err)
			}
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must be non-negative")
	}

	if cfg.PollInterval < 0 {
		return fmt.Errorf("pollInterval must be non-negative")
	}

	if cfg.ReconnectDelay < 0 {
		return fmt.Errorf("reconnectDelay must be non-negative")
	}

	if cfg.DiagLogSize < 0 {
		return fmt.Errorf("diagLogSize must be non-negative")
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got '%s'", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}
