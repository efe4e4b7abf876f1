// Package app wires configuration, logging, transport, the simulation
// hub and the diagnostics API into a running server process.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	server "driftisle/server"
	"driftisle/server/internal/journal"
	"driftisle/server/internal/net/httpapi"
	"driftisle/server/internal/net/proto"
	"driftisle/server/internal/net/transport"
	"driftisle/server/internal/net/ws"
	"driftisle/server/internal/telemetry"
	"driftisle/server/logging"
	loggingsinks "driftisle/server/logging/sinks"
)

// Config carries the process-level knobs. Defaults come from
// DefaultConfig; LoadConfig layers DRIFTISLE_* environment overrides on
// top and cmd/server applies flags last.
type Config struct {
	// Addr is the UDP endpoint game traffic binds.
	Addr string
	// HTTPAddr is the diagnostics API endpoint.
	HTTPAddr string
	// RootSeed feeds the deterministic shard layout RNGs.
	RootSeed string
	// LogLevel is the minimum severity rendered: debug, info, warn or
	// error.
	LogLevel string
	// LogJSONPath enables the NDJSON sink when non-empty.
	LogJSONPath string
	// KeyframeEvery is the tick cadence of journal keyframes.
	KeyframeEvery int

	// Logger receives process lifecycle lines. Nil uses the stdlib
	// default logger.
	Logger telemetry.Logger
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Addr:     server.DefaultAddr,
		HTTPAddr: "127.0.0.1:8080",
		LogLevel: "info",
	}
}

// LoadConfig applies environment overrides to the defaults. Invalid
// values are reported and skipped rather than aborting startup.
func LoadConfig() Config {
	cfg := DefaultConfig()
	logger := telemetry.WrapLogger(log.Default())

	if raw := os.Getenv("DRIFTISLE_ADDR"); raw != "" {
		cfg.Addr = raw
	}
	if raw := os.Getenv("DRIFTISLE_HTTP_ADDR"); raw != "" {
		cfg.HTTPAddr = raw
	}
	if raw := os.Getenv("DRIFTISLE_ROOT_SEED"); raw != "" {
		cfg.RootSeed = raw
	}
	if raw := os.Getenv("DRIFTISLE_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("DRIFTISLE_LOG_JSON"); raw != "" {
		cfg.LogJSONPath = raw
	}
	if raw := os.Getenv("DRIFTISLE_KEYFRAME_EVERY"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.KeyframeEvery = value
		} else {
			logger.Printf("invalid DRIFTISLE_KEYFRAME_EVERY=%q: %v", raw, err)
		}
	}
	return cfg
}

// severityFromName maps a config string to a router severity. Unknown
// names fall back to info.
func severityFromName(name string) logging.Severity {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return logging.SeverityDebug
	case "warn", "warning":
		return logging.SeverityWarn
	case "error":
		return logging.SeverityError
	default:
		return logging.SeverityInfo
	}
}

// Run starts the server and blocks until ctx is cancelled or the HTTP
// listener fails. Socket-bind failures are the only fatal startup
// condition; everything after that degrades and logs.
func Run(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}

	logCfg := logging.DefaultConfig()
	logCfg.MinimumSeverity = severityFromName(cfg.LogLevel)
	namedSinks := []logging.NamedSink{
		{Name: "console", Sink: loggingsinks.NewConsoleSink(os.Stdout, logCfg.Console)},
	}
	var jsonFile *os.File
	if cfg.LogJSONPath != "" {
		file, err := os.OpenFile(cfg.LogJSONPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.Printf("opening json log %q failed, sink disabled: %v", cfg.LogJSONPath, err)
		} else {
			jsonFile = file
			namedSinks = append(namedSinks, logging.NamedSink{
				Name: "json",
				Sink: loggingsinks.NewJSON(file, logCfg.JSON.FlushInterval),
			})
		}
	}
	router, err := logging.NewRouter(logging.SystemClock{}, logCfg, namedSinks)
	if err != nil {
		return fmt.Errorf("construct logging router: %w", err)
	}
	defer func() {
		if cerr := router.Close(context.Background()); cerr != nil {
			logger.Printf("closing logging router: %v", cerr)
		}
		if jsonFile != nil {
			jsonFile.Close()
		}
	}()

	metrics := &logging.Metrics{}
	listener, err := transport.Listen(cfg.Addr, transport.Config{
		Table:     proto.ChannelTable(),
		Publisher: router,
		Metrics:   telemetry.WrapMetrics(metrics),
	})
	if err != nil {
		return fmt.Errorf("bind game socket: %w", err)
	}
	defer listener.Close()

	feed := ws.NewFeed(router)
	defer feed.Close()

	hubCfg := server.DefaultConfig()
	if cfg.RootSeed != "" {
		hubCfg.RootSeed = cfg.RootSeed
	}
	if cfg.KeyframeEvery > 0 {
		hubCfg.KeyframeEvery = cfg.KeyframeEvery
	}
	hub := server.NewHub(hubCfg, server.HubDeps{
		Acceptor:  listener,
		Feed:      feed,
		Publisher: router,
		Metrics:   metrics,
	})
	feed.SetSnapshots(func() []journal.Keyframe {
		return hub.Journal().Keyframes()
	})

	stop := make(chan struct{})
	defer close(stop)
	go listener.Run(stop)
	go hub.RunSimulation(stop)

	api := httpapi.NewRouter(hub, feed)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: api}
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- srv.ListenAndServe()
	}()

	logger.Printf("game traffic on udp %s, diagnostics on http %s", listener.LocalAddr(), cfg.HTTPAddr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("http shutdown: %v", err)
		}
		return nil
	case err := <-httpErr:
		return fmt.Errorf("diagnostics server: %w", err)
	}
}
