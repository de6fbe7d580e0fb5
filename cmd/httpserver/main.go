package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/Brownie44l1/statichttp/internal/config"
	"github.com/Brownie44l1/statichttp/internal/server"
	"github.com/Brownie44l1/statichttp/internal/static"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "httpserver: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", config.DefaultPath, "config file (plain tokens, or YAML for .yaml/.yml)")
	host := flag.String("host", "", "listen host")
	port := flag.Int("port", 0, "listen port")
	threads := flag.Int("threads", 0, "number of worker goroutines")
	root := flag.String("root", "", "document root")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// explicitly set flags win over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = *host
		case "port":
			cfg.Port = *port
		case "threads":
			cfg.ThreadLimit = *threads
		case "root":
			cfg.DocumentRoot = *root
		}
	})

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := server.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	docRoot, err := os.OpenRoot(cfg.DocumentRoot)
	if err != nil {
		return fmt.Errorf("open document root: %w", err)
	}
	defer docRoot.Close()

	srv := server.New(cfg, static.NewHandler(docRoot.FS()), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("document_root", cfg.DocumentRoot).
		Str("config", *configPath).
		Msg("starting")

	if err := srv.ListenAndServe(ctx); err != nil {
		return err
	}

	logStats(logger, srv.Stats())
	return nil
}

func logStats(logger zerolog.Logger, stats server.MetricsSnapshot) {
	logger.Info().
		Int64("connections", stats.ConnectionsAccepted).
		Int64("requests", stats.RequestsTotal).
		Int64("responses_2xx", stats.Responses2xx).
		Int64("errors_4xx", stats.Errors4xx).
		Int64("errors_5xx", stats.Errors5xx).
		Int64("bytes_sent", stats.BytesSent).
		Dur("avg_latency", stats.AverageLatency).
		Msg("server stopped")
}
