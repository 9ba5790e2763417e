// ABOUTME: Entry point for the micstream live audio ingest server
// ABOUTME: Loads configuration, applies CLI overrides and runs until signalled
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Deploy-u/Audio-Recording-System/internal/config"
	"github.com/Deploy-u/Audio-Recording-System/internal/logging"
	"github.com/Deploy-u/Audio-Recording-System/internal/metrics"
	"github.com/Deploy-u/Audio-Recording-System/internal/notify"
	"github.com/Deploy-u/Audio-Recording-System/internal/server"
	"github.com/Deploy-u/Audio-Recording-System/internal/version"
	"golang.org/x/sync/errgroup"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file")
	port       = flag.Int("port", 3000, "HTTP and WebSocket port")
	name       = flag.String("name", "", "Server friendly name (default: hostname-micstream-server)")
	streamsDir = flag.String("streams", "streams", "Directory for live stream recordings")
	recDir     = flag.String("recordings", "recordings", "Directory for uploaded recordings")
	publicDir  = flag.String("public", "public", "Directory with dashboard static files")
	logFile    = flag.String("log-file", "micstream-server.log", "Log file path")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	noMDNS     = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	useTUI     = flag.Bool("tui", false, "Show the terminal dashboard")
	redisURL   = flag.String("redis", "", "Redis URL for relaying stream events")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("%s %s\n", version.Product, version.Version)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "micstream-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Server.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		cfg.Server.Name = fmt.Sprintf("%s-%s", hostname, version.Product)
	}

	logger, closer, err := logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: !cfg.Server.UseTUI,
		JSON:    cfg.Logging.JSON,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	logger.Info().
		Str("name", cfg.Server.Name).
		Int("port", cfg.Server.Port).
		Str("version", version.Version).
		Str("log_file", cfg.Logging.File).
		Msg("starting micstream server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := server.Options{
		Logger:  logger,
		Metrics: metrics.New(),
	}
	if cfg.Redis.URL != "" {
		relay, err := notify.NewRedisRelay(ctx, cfg.Redis.URL, cfg.Redis.Channel)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer relay.Close()
		opts.Relay = relay
		logger.Info().Str("channel", relay.Channel()).Msg("relaying stream events to redis")
	}

	srv, err := server.New(serverConfig(cfg), opts)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// A TUI quit ends Start without a signal
		defer stop()
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down gracefully")
		srv.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// applyFlags overrides config values with flags given on the command line
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *port
		case "name":
			cfg.Server.Name = *name
		case "streams":
			cfg.Storage.StreamsDir = *streamsDir
		case "recordings":
			cfg.Storage.RecordingsDir = *recDir
		case "public":
			cfg.Storage.PublicDir = *publicDir
		case "log-file":
			cfg.Logging.File = *logFile
		case "debug":
			if *debug {
				cfg.Logging.Level = "debug"
			}
		case "no-mdns":
			cfg.Server.EnableMDNS = !*noMDNS
		case "tui":
			cfg.Server.UseTUI = *useTUI
		case "redis":
			cfg.Redis.URL = *redisURL
		}
	})
}

func serverConfig(cfg *config.Config) server.Config {
	return server.Config{
		Port:            cfg.Server.Port,
		Name:            cfg.Server.Name,
		EnableMDNS:      cfg.Server.EnableMDNS,
		UseTUI:          cfg.Server.UseTUI,
		Format:          cfg.Audio,
		StreamsDir:      cfg.Storage.StreamsDir,
		RecordingsDir:   cfg.Storage.RecordingsDir,
		PublicDir:       cfg.Storage.PublicDir,
		SendBuffer:      cfg.WebSocket.SendBuffer,
		WriteTimeout:    cfg.WebSocket.WriteTimeout,
		PingInterval:    cfg.WebSocket.PingInterval,
		ReadTimeout:     cfg.WebSocket.ReadTimeout,
		MaxMessageBytes: cfg.WebSocket.MaxMessageBytes,
		AllowedOrigins:  cfg.WebSocket.AllowedOrigins,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
	}
}
