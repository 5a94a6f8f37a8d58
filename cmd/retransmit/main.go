package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	httpAdapter "github.com/bft-labs/retransmit/internal/adapters/http"
	logAdapter "github.com/bft-labs/retransmit/internal/adapters/log"
	natsAdapter "github.com/bft-labs/retransmit/internal/adapters/nats"
	"github.com/bft-labs/retransmit/internal/app"
	"github.com/bft-labs/retransmit/internal/cliconfig"
	"github.com/bft-labs/retransmit/internal/domain"
	"github.com/bft-labs/retransmit/internal/ports"
)

const helpDescription = `
Deliver a clustering control message to peer nodes, retrying on failure.

The message is sent once. If that fails it is retransmitted in the background
up to --max-retries times, waiting --retry-delay between attempts. The command
exits when the message is delivered, retries are exhausted, or it receives
SIGINT/SIGTERM.

Configure via file ($HOME/.retransmit/config.toml), RETRANSMIT_* env, or flags.
`

var exampleUsage = strings.TrimSpace(`
  retransmit --peer http://node-2:8080 --kind session-invalidation --payload sid-42
  echo -n sid-42 | retransmit --transport nats --nats-url nats://127.0.0.1:4222
  retransmit --config /etc/retransmit.toml --watch --retry-delay 500ms
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var (
		cfgPath string
		kind    string
		payload string
	)

	root := &cobra.Command{
		Use:           "retransmit",
		Short:         "Deliver a clustering message to peer nodes with bounded retries",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, flush, err := setupLogger(cfg.LogFormat, cfg.LogLevel)
			if err != nil {
				return err
			}
			defer flush()

			logCfg := cfg
			if len(logCfg.AuthKey) > 0 {
				logCfg.AuthKey = "*****"
			}
			logger.Info("configuration", ports.Any("config", logCfg))

			body, err := readPayload(cmd, payload)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			transport, closeTransport, err := buildTransport(ctx, cfg, cfgFile, logger)
			if err != nil {
				return err
			}
			defer closeTransport()

			d := app.NewDispatcher(transport, logger, app.DispatcherConfig{
				Policy: app.Policy{
					MaxRetryCount: cfg.MaxRetryCount,
					RetryDelay:    cfg.RetryDelay,
					Mode:          domain.ModeFromRPC(cfg.RPC),
				},
				MaxInFlight: int64(cfg.MaxInFlight),
			})

			msg := domain.NewMessage(kind, body)
			logger.Info("sending cluster message",
				ports.String("cluster_message", msg.String()),
				ports.Int("payload_bytes", len(body)),
			)

			if err := d.Send(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("send: %w", err)
			}

			if err := d.Drain(ctx); err != nil {
				logger.Info("received signal, stopping...")
			}

			if err := d.Close(cfg.ShutdownTimeout); err != nil {
				return err
			}

			stats := d.Stats()
			if stats.Failed > 0 {
				return fmt.Errorf("message %s not delivered: %w", msg, domain.ErrRetryExhausted)
			}
			if stats.Sent == 0 {
				return fmt.Errorf("message %s not delivered: %w", msg, context.Canceled)
			}
			return nil
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.retransmit/config.toml)")
	root.Flags().StringVar(&cfg.NodeID, "node-id", cfg.NodeID, "identifier of this node sent with every message")
	root.Flags().StringVar(&cfg.Transport, "transport", cfg.Transport, "transport to peers: http or nats")
	root.Flags().StringSliceVar(&cfg.Peers, "peer", cfg.Peers, "peer base URL for the http transport (repeatable)")
	root.Flags().StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "NATS server URL for the nats transport")
	root.Flags().StringVar(&cfg.Subject, "subject", cfg.Subject, "NATS subject cluster messages are published on")
	root.Flags().StringVar(&cfg.AuthKey, "auth-key", cfg.AuthKey, "bearer token for peers (NATS token for the nats transport)")

	root.Flags().IntVar(&cfg.MaxRetryCount, "max-retries", cfg.MaxRetryCount, "maximum retransmission attempts")
	root.Flags().DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "delay between retransmission attempts")
	root.Flags().BoolVar(&cfg.RPC, "rpc", cfg.RPC, "wait for peers to acknowledge (false: fire and forget)")
	root.Flags().DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "per-request timeout")
	root.Flags().IntVar(&cfg.MaxInFlight, "max-in-flight", cfg.MaxInFlight, "maximum concurrent retransmissions")
	root.Flags().DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "time to wait for retransmissions on shutdown")
	if err := root.Flags().MarkHidden("max-in-flight"); err != nil {
		fmt.Fprintln(os.Stderr, "failed to hide max-in-flight flag:", err)
	}

	root.Flags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: console or json")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	root.Flags().BoolVar(&cfg.Watch, "watch", cfg.Watch, "reload peers when the config file changes")

	root.Flags().StringVar(&kind, "kind", domain.KindSessionInvalidation, "message kind")
	root.Flags().StringVar(&payload, "payload", "", "message payload (default: read from stdin)")

	if err := root.Execute(); err != nil {
		log := logAdapter.NewZerologAdapter(zerolog.InfoLevel)
		log.Error("retransmit", ports.Err(err))
		os.Exit(1)
	}
}

// readPayload returns the --payload value, or stdin when the flag is unset.
func readPayload(cmd *cobra.Command, payload string) ([]byte, error) {
	if cmd.Flags().Changed("payload") {
		return []byte(payload), nil
	}
	if f, ok := cmd.InOrStdin().(*os.File); ok {
		if st, err := f.Stat(); err == nil && st.Mode()&os.ModeCharDevice != 0 {
			return nil, nil
		}
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return b, nil
}

// buildTransport creates the configured transport and, for http with --watch,
// starts reloading peers from the config file.
func buildTransport(ctx context.Context, cfg cliconfig.Config, cfgFile string, logger ports.Logger) (ports.Transport, func(), error) {
	switch cfg.Transport {
	case cliconfig.TransportNATS:
		nc, err := natsAdapter.Dial(cfg.NATSURL, cfg.NodeID, cfg.AuthKey, cfg.HTTPTimeout)
		if err != nil {
			return nil, nil, err
		}
		t := natsAdapter.NewTransport(nc, logger, cfg.NodeID, cfg.Subject, cfg.HTTPTimeout)
		return t, func() { nc.Close() }, nil

	default:
		client := &http.Client{Timeout: cfg.HTTPTimeout}
		t := httpAdapter.NewTransport(client, logger, cfg.NodeID, cfg.AuthKey, cfg.Peers)

		if cfg.Watch {
			if cfgFile == "" || !cliconfig.FileExists(cfgFile) {
				logger.Warn("watch requested but no config file found", ports.String("path", cfgFile))
			} else {
				w := cliconfig.NewWatcher(cfgFile, logger, t.SetPeers)
				go func() {
					if err := w.Run(ctx); err != nil {
						logger.Error("config watcher stopped", ports.Err(err))
					}
				}()
			}
		}
		return t, func() {}, nil
	}
}
