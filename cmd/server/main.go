package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/PorticoEstate/matrikkel-sub000/internal/app"
	"github.com/PorticoEstate/matrikkel-sub000/internal/config"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	log := app.NewLogger(cfg)
	log.Info("Starting Matrikkel ops server", map[string]interface{}{
		"version":     app.Version,
		"environment": cfg.Server.Env,
		"port":        cfg.Server.Port,
		"registry":    cfg.Registry.URL,
	})

	// Wait for interrupt signal (SIGINT or SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize", err, map[string]interface{}{
			"host": cfg.Database.Host,
			"port": cfg.Database.Port,
			"name": cfg.Database.Name,
		})
	}
	defer a.Close()

	if err := a.Serve(ctx); err != nil {
		log.Error("Server stopped with error", err, nil)
		a.Close()
		os.Exit(1)
	}
}
