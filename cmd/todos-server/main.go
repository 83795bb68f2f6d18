package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/marcus/todos/internal/api"
	"github.com/marcus/todos/internal/realtime"
	"github.com/marcus/todos/internal/serverdb"
	"github.com/spf13/pflag"
)

func main() {
	// Route to admin subcommands if present
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		os.Exit(runAdmin(os.Args[2:]))
	}

	cfg, err := api.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	fs := pflag.NewFlagSet("todos-server", pflag.ContinueOnError)
	fs.StringVarP(&cfg.ListenAddr, "addr", "a", cfg.ListenAddr, "listen address (TODOS_LISTEN_ADDR)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite database path (TODOS_DB_PATH)")
	fs.StringVar(&cfg.DBDriver, "driver", cfg.DBDriver, "sqlite driver: sqlite or sqlite3 (TODOS_DB_DRIVER)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error (TODOS_LOG_LEVEL)")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	slog.SetDefault(newLogger(cfg))

	if err := run(cfg); err != nil {
		slog.Error("todos-server", "err", err)
		os.Exit(1)
	}
}

func run(cfg api.Config) error {
	store, err := serverdb.OpenWithDriver(cfg.DBDriver, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open server db: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub()
	if cfg.RedisURL != "" {
		relay, err := realtime.NewRedisRelay(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer relay.Close()
		hub.SetRelay(relay)
		go func() {
			if err := relay.Run(ctx, hub); err != nil {
				slog.Error("redis relay stopped", "err", err)
			}
		}()
	}

	srv, err := api.NewServer(cfg, store, hub)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	slog.Info("server started", "addr", srv.Addr(), "driver", store.Driver(), "relay", cfg.RedisURL != "")

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
	return nil
}

func newLogger(cfg api.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.LogFormat) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
