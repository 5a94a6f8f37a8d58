package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	NodeID          string   `toml:"node_id"`
	Transport       string   `toml:"transport"`
	Peers           []string `toml:"peers"`
	NATSURL         string   `toml:"nats_url"`
	Subject         string   `toml:"subject"`
	AuthKey         string   `toml:"auth_key"`
	MaxRetryCount   int      `toml:"max_retry_count"`
	RetryDelay      string   `toml:"retry_delay"`
	RPC             *bool    `toml:"rpc"`
	HTTPTimeout     string   `toml:"http_timeout"`
	MaxInFlight     int      `toml:"max_in_flight"`
	ShutdownTimeout string   `toml:"shutdown_timeout"`
	LogFormat       string   `toml:"log_format"`
	LogLevel        string   `toml:"log_level"`
	Watch           *bool    `toml:"watch"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.retransmit/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".retransmit", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("node-id", fc.NodeID, &cfg.NodeID)
	s.setString("transport", fc.Transport, &cfg.Transport)
	s.setStrings("peer", fc.Peers, &cfg.Peers)
	s.setString("nats-url", fc.NATSURL, &cfg.NATSURL)
	s.setString("subject", fc.Subject, &cfg.Subject)
	s.setString("auth-key", fc.AuthKey, &cfg.AuthKey)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("retry-delay", fc.RetryDelay, &cfg.RetryDelay); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout); err != nil {
		return err
	}

	s.setInt("max-retries", fc.MaxRetryCount, &cfg.MaxRetryCount)
	s.setInt("max-in-flight", fc.MaxInFlight, &cfg.MaxInFlight)

	s.setBool("rpc", fc.RPC, &cfg.RPC)
	s.setBool("watch", fc.Watch, &cfg.Watch)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
