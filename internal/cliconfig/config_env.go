package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (RETRANSMIT_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("node-id", os.Getenv("RETRANSMIT_NODE_ID"), &cfg.NodeID)
	s.setString("transport", os.Getenv("RETRANSMIT_TRANSPORT"), &cfg.Transport)
	s.setStringsFromList("peer", os.Getenv("RETRANSMIT_PEERS"), &cfg.Peers)
	s.setString("nats-url", os.Getenv("RETRANSMIT_NATS_URL"), &cfg.NATSURL)
	s.setString("subject", os.Getenv("RETRANSMIT_SUBJECT"), &cfg.Subject)
	s.setString("auth-key", os.Getenv("RETRANSMIT_AUTH_KEY"), &cfg.AuthKey)
	s.setString("log-format", os.Getenv("RETRANSMIT_LOG_FORMAT"), &cfg.LogFormat)
	s.setString("log-level", os.Getenv("RETRANSMIT_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("retry-delay", os.Getenv("RETRANSMIT_RETRY_DELAY"), &cfg.RetryDelay); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("RETRANSMIT_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", os.Getenv("RETRANSMIT_SHUTDOWN_TIMEOUT"), &cfg.ShutdownTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("max-retries", os.Getenv("RETRANSMIT_MAX_RETRY_COUNT"), &cfg.MaxRetryCount); err != nil {
		return err
	}
	if err := s.setIntFromString("max-in-flight", os.Getenv("RETRANSMIT_MAX_IN_FLIGHT"), &cfg.MaxInFlight); err != nil {
		return err
	}

	s.setBoolFromString("rpc", os.Getenv("RETRANSMIT_RPC"), &cfg.RPC)
	s.setBoolFromString("watch", os.Getenv("RETRANSMIT_WATCH"), &cfg.Watch)

	return nil
}
