package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/salio-edge/gateway/internal/config"
	"github.com/salio-edge/gateway/internal/monitoring"
	"github.com/salio-edge/gateway/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to the YAML config file")
	listen      = flag.String("listen", "", "Listen address (overrides server.listen)")
	devMode     = flag.Bool("dev", false, "Run with simulated devices")
	lidarPort   = flag.String("lidar-port", "", "Rangefinder serial port (overrides lidar.port)")
	rfidDevice  = flag.String("rfid-device", "", "Tag reader serial device (overrides rfid.device)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// Main
func main() {
	flag.Parse()

	if *showVersion {
		v := version.Current()
		fmt.Printf("salio-gateway %s (%s, built %s)\n", v.Version, v.GitSHA, v.BuildTime)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logFile, err := monitoring.TeeToFile(cfg.Log.File)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Printf("gateway stopped with error: %v", err)
		os.Exit(1)
	}
	log.Printf("Graceful shutdown complete")
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist, then applies command-line overrides.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: %v; using default configuration", err)
	} else if err != nil {
		return nil, err
	}

	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *lidarPort != "" {
		cfg.Lidar.Port = *lidarPort
	}
	if *rfidDevice != "" {
		cfg.RFID.Device = *rfidDevice
	}
	if *devMode {
		cfg.UseSimulatedDevices()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// run serves the gateway until ctx is cancelled, then disconnects the
// devices, closes every subscriber and stops the HTTP server.
func run(ctx context.Context, cfg *config.Config) error {
	gw, err := newGateway(cfg, nil)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: gw.handler,
	}

	g, gctx := errgroup.WithContext(ctx)

	// drain device readings into the broadcaster
	g.Go(func() error {
		if err := gw.manager.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		log.Print("session loop terminated")
		return nil
	})

	g.Go(func() error {
		log.Printf("Starting SALIO gateway %s on %s (api %s)", version.Version, cfg.Server.Listen, cfg.Server.APIEndpoint)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")

		if err := gw.manager.Shutdown(); err != nil {
			log.Printf("device shutdown error: %v", err)
		}
		gw.broadcaster.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
		return nil
	})

	return g.Wait()
}
