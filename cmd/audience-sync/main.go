package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/audience-sync/internal/config"
	"github.com/ignite/audience-sync/internal/pkg/logger"
	"github.com/ignite/audience-sync/internal/sync"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	log.Println("Starting audience sync...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Credential pre-flight: refuse to start any I/O without them.
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		logger.SetLevel(logger.DEBUG)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	if err := sync.NewRunner(cfg).Run(ctx); err != nil {
		log.Fatalf("Sync failed: %v", err)
	}
	log.Printf("Sync completed in %s", time.Since(start).Round(time.Second))
}
