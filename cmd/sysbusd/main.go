// Command sysbusd runs a system bus instance connected to remote peers over
// NATS or Redis, with a console to emit events.
//
// Configuration comes from flags, each falling back to an environment
// variable that may be set in a .env file:
//
//	-id            SYSBUS_ID         identity of this instance
//	-peers         SYSBUS_PEERS      comma separated identities of the peers
//	-transport     SYSBUS_TRANSPORT  nats or redis
//	-events        SYSBUS_EVENTS     comma separated events to print
//	-push-timeout  SYSBUS_PUSH_TIMEOUT
//	-peer-mode     SYSBUS_PEER_MODE  forked or remote, as reported to the bus
//
// NATS_URL and REDIS_URL select the servers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/casualjim/sysbus"
	"github.com/casualjim/sysbus/internal/console"
	"github.com/casualjim/sysbus/pkg/natsx"
	"github.com/casualjim/sysbus/pkg/slogx"
	"github.com/casualjim/sysbus/pkg/uuidx"
	"github.com/casualjim/sysbus/transport"
	"github.com/phsym/zeroslog"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log = zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slog.LevelInfo}),
	))
}

type config struct {
	id          string
	peers       []string
	transport   string
	events      []string
	pushTimeout time.Duration
	peerMode    sysbus.Mode
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", slogx.Error(err))
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("sysbusd failed", slogx.Error(err))
		os.Exit(1)
	}
}

func parseConfig(args []string) (config, error) {
	fs := flag.NewFlagSet("sysbusd", flag.ContinueOnError)
	id := fs.String("id", env("SYSBUS_ID", uuidx.Prefixed("sysbusd")), "identity of this instance")
	peers := fs.String("peers", os.Getenv("SYSBUS_PEERS"), "comma separated peer identities")
	tr := fs.String("transport", env("SYSBUS_TRANSPORT", "nats"), "nats or redis")
	events := fs.String("events", os.Getenv("SYSBUS_EVENTS"), "comma separated events to print")
	timeout := fs.String("push-timeout", env("SYSBUS_PUSH_TIMEOUT", "5s"), "timeout of a single push")

	var defaultMode, peerMode sysbus.Mode
	if err := defaultMode.UnmarshalText([]byte(env("SYSBUS_PEER_MODE", "remote"))); err != nil {
		return config{}, fmt.Errorf("invalid SYSBUS_PEER_MODE: %w", err)
	}
	fs.TextVar(&peerMode, "peer-mode", defaultMode, "mode the peers report: forked or remote")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	pushTimeout, err := time.ParseDuration(*timeout)
	if err != nil {
		return config{}, fmt.Errorf("invalid push timeout: %w", err)
	}
	if *tr != "nats" && *tr != "redis" {
		return config{}, fmt.Errorf("unknown transport %q", *tr)
	}
	if !peerMode.Eligible() {
		return config{}, fmt.Errorf("peer mode %s can't be broadcast to", peerMode)
	}

	return config{
		id:          *id,
		peers:       splitList(*peers),
		transport:   *tr,
		events:      splitList(*events),
		pushTimeout: pushTimeout,
		peerMode:    peerMode,
	}, nil
}

func run(ctx context.Context, cfg config) error {
	bus := sysbus.New(sysbus.WithID(cfg.id))
	relay := transport.NewRelay(bus, nil)
	out := console.NewWriter(os.Stdout)

	for _, event := range cfg.events {
		if _, err := bus.Subscribe(event, console.Printer(out, event)); err != nil {
			return err
		}
	}

	stop, err := connect(ctx, cfg, bus, relay)
	if err != nil {
		return err
	}
	defer stop()

	slog.Info(
		"sysbusd ready",
		slog.String("id", bus.ID()),
		slog.String("transport", cfg.transport),
		slogx.Strings("peers", cfg.peers),
		slogx.Stringer("push_timeout", cfg.pushTimeout),
		slogx.Stringer("peer_mode", cfg.peerMode),
	)
	return console.Run(ctx, bus, os.Stdin, out)
}

func connect(ctx context.Context, cfg config, bus *sysbus.Bus, relay *transport.Relay) (func(), error) {
	timeout := transport.WithPushTimeout(cfg.pushTimeout)
	mode := transport.WithMode(cfg.peerMode)

	switch cfg.transport {
	case "redis":
		opts, err := redis.ParseURL(env("REDIS_URL", "redis://localhost:6379/0"))
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		listener, err := transport.ListenRedis(ctx, client, relay)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		for _, id := range cfg.peers {
			bus.AddPeer(transport.NewRedisPeer(client, id, timeout, mode))
		}
		return func() {
			_ = listener.Close()
			_ = client.Close()
		}, nil

	default:
		nc, err := natsx.NewClient()
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		sub, err := transport.ListenNATS(ctx, nc, relay)
		if err != nil {
			nc.Close()
			return nil, err
		}
		for _, id := range cfg.peers {
			bus.AddPeer(transport.NewNATSPeer(nc, id, timeout, mode))
		}
		return func() {
			_ = sub.Unsubscribe()
			nc.Close()
		}, nil
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
