package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/taskmgr818/rehab-client/internal/client"
	"github.com/taskmgr818/rehab-client/internal/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Starting rehabilitation evaluation client")
	log.Printf("Connecting to server: %s", cfg.Server.WSURL)
	if cfg.Dashboard.Enabled {
		log.Printf("Dashboard enabled on %s", cfg.Dashboard.Address)
	}

	// Create client
	c, err := client.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	// Start client
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		log.Fatalf("Failed to start client: %v", err)
	}

	log.Printf("Client started successfully")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Printf("Shutting down...")

	cancel()
	if err := c.Stop(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Printf("Client stopped")
}
