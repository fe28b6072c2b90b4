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

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/hannes/gliner-gate/config"
	"github.com/hannes/gliner-gate/detection"
	"github.com/hannes/gliner-gate/detectors"
	"github.com/hannes/gliner-gate/server"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file from current directory")
	}

	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		if err := config.LoadFromFile(*configPath, cfg); err != nil {
			log.Fatalf("Failed to load config file: %v", err)
		}
	}
	config.ApplyEnv(cfg)
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			log.Fatalf("Failed to initialize sentry: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Detectors load once at startup; the registry never changes afterwards.
	registry, err := buildRegistry(cfg)
	if err != nil {
		log.Fatalf("Failed to build detector registry: %v", err)
	}
	defer func() {
		if err := registry.Close(); err != nil {
			log.Printf("Failed to close detector registry: %v", err)
		}
	}()

	srv := server.NewServer(cfg, registry)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-sigCh:
		log.Printf("Received %v, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}
}

// buildRegistry constructs every configured detector. On failure, detectors
// built so far are released before returning.
func buildRegistry(cfg *config.Config) (*detection.Registry, error) {
	entries := make(map[string]detection.Registered, len(cfg.Detectors))

	cleanup := func() {
		for _, entry := range entries {
			if err := entry.Detector.Close(); err != nil {
				log.Printf("Failed to close detector during cleanup: %v", err)
			}
		}
	}

	for name, dc := range cfg.Detectors {
		var (
			det detection.Detector
			err error
		)
		switch dc.Type {
		case "onnx":
			det, err = detectors.NewONNXDetector(name, dc.ModelPath, dc.TokenizerPath, dc.LabelMapPath)
		case "remote":
			det = detectors.NewRemoteDetector(name, dc.URL, time.Duration(dc.TimeoutSeconds)*time.Second)
		case "regex":
			det, err = detectors.NewRegexDetector(name, dc.Patterns)
		default:
			err = fmt.Errorf("unsupported detector type: %s", dc.Type)
		}
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("build detector %s: %w", name, err)
		}
		log.Printf("Registered detector %s (type %s, %d default labels)", name, dc.Type, len(dc.DefaultEntities))
		entries[name] = detection.Registered{
			Detector:         det,
			DefaultLabels:    dc.DefaultEntities,
			DefaultThreshold: dc.DefaultThreshold,
		}
	}
	return detection.NewRegistry(entries), nil
}
