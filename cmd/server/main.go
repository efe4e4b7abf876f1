package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"driftisle/server/internal/app"
)

func main() {
	cfg := app.LoadConfig()
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "UDP address for game traffic")
	flag.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "address for the diagnostics HTTP API")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "minimum log severity: debug, info, warn or error")
	flag.StringVar(&cfg.RootSeed, "seed", cfg.RootSeed, "root seed for deterministic shard layouts")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}
