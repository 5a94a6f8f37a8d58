package cliconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/retransmit/internal/domain"
)

// Supported transports.
const (
	TransportHTTP = "http"
	TransportNATS = "nats"
)

// Supported log formats.
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Default connection settings.
const (
	DefaultNATSURL = "nats://127.0.0.1:4222"
	DefaultSubject = "cluster.messages"
)

// Config holds CLI configuration for retransmit.
type Config struct {
	NodeID    string
	Transport string

	Peers   []string
	NATSURL string
	Subject string
	AuthKey string

	MaxRetryCount   int
	RetryDelay      time.Duration
	RPC             bool
	HTTPTimeout     time.Duration
	MaxInFlight     int
	ShutdownTimeout time.Duration

	LogFormat string
	LogLevel  string
	Watch     bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		NodeID:          defaultNodeID(),
		Transport:       TransportHTTP,
		NATSURL:         DefaultNATSURL,
		Subject:         DefaultSubject,
		AuthKey:         os.Getenv("RETRANSMIT_AUTH_KEY"),
		MaxRetryCount:   3,
		RetryDelay:      2 * time.Second,
		RPC:             true,
		HTTPTimeout:     15 * time.Second,
		MaxInFlight:     64,
		ShutdownTimeout: 30 * time.Second,
		LogFormat:       LogFormatConsole,
		LogLevel:        "info",
	}
}

func defaultNodeID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "default"
}

// Validate checks the configuration for errors and normalizes values.
// All returned errors wrap domain.ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return invalid("node-id is required")
	}

	c.Transport = strings.ToLower(c.Transport)
	switch c.Transport {
	case TransportHTTP:
		peers := make([]string, 0, len(c.Peers))
		for _, p := range c.Peers {
			p = strings.TrimRight(strings.TrimSpace(p), "/")
			if p != "" {
				peers = append(peers, p)
			}
		}
		c.Peers = peers
		if len(c.Peers) == 0 {
			return invalid("at least one peer is required for the http transport")
		}
	case TransportNATS:
		if c.NATSURL == "" {
			return invalid("nats-url is required for the nats transport")
		}
		if c.Subject == "" {
			c.Subject = DefaultSubject
		}
	default:
		return invalid(fmt.Sprintf("unknown transport %q", c.Transport))
	}

	if c.MaxRetryCount <= 0 {
		return invalid("max retry count must be positive")
	}
	if c.RetryDelay <= 0 {
		return invalid("retry delay must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return invalid("timeout must be positive")
	}
	if c.MaxInFlight <= 0 {
		return invalid("max in-flight must be positive")
	}

	c.LogFormat = strings.ToLower(c.LogFormat)
	if c.LogFormat != LogFormatConsole && c.LogFormat != LogFormatJSON {
		return invalid(fmt.Sprintf("unknown log format %q", c.LogFormat))
	}

	c.LogLevel = strings.ToLower(c.LogLevel)
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return invalid(fmt.Sprintf("unknown log level %q", c.LogLevel))
	}

	return nil
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, reason)
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setStrings sets a string slice if not empty and flag not changed.
func (s *configSetter) setStrings(flag string, value []string, dst *[]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = append([]string(nil), value...)
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}

// setStringsFromList splits a comma-separated list and sets the destination.
func (s *configSetter) setStringsFromList(flag, value string, dst *[]string) {
	if value == "" || s.changed[flag] {
		return
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	s.setStrings(flag, out, dst)
}
