package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"message-store/server/internal/api"
	"message-store/server/internal/config"
	"message-store/server/internal/message"
	"message-store/server/internal/stream"
)

type flags struct {
	ConfigPath string
	Addr       string
	LogLevel   string
}

func main() {
	f := &flags{}

	app := &cli.Command{
		Name:  "msgstore",
		Usage: "Serve an in-memory, index-addressed message store over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to yaml config file (optional)",
				Sources:     cli.EnvVars("MSGSTORE_CONFIG"),
				Destination: &f.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address host:port, overrides config",
				Sources:     cli.EnvVars("MSGSTORE_ADDR"),
				Destination: &f.Addr,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error), overrides config",
				Destination: &f.LogLevel,
			},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			return run(ctx, f)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "msgstore: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f *flags) error {
	cfg, err := config.Resolve(f.ConfigPath, config.Overrides{Addr: f.Addr, LogLevel: f.LogLevel})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := setupLogger(cfg.Logging, os.Stderr); err != nil {
		return err
	}

	// 进程级单实例，重启即丢数据
	store := message.NewInMemoryStore()
	hub := stream.NewHub(cfg.Stream.BufferSize, log.With().Str("component", "stream").Logger())

	server := api.NewServer(store, hub, log.With().Str("component", "api").Logger(),
		api.WithStreamConfig(stream.ConnConfig{
			PingInterval: cfg.Stream.PingInterval,
			WriteTimeout: cfg.Stream.WriteTimeout,
		}),
		api.WithBaseContext(ctx),
	)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("message store listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	// Shutdown 不会关闭已劫持的 WebSocket 连接，先结束订阅
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func setupLogger(cfg config.LoggingConfig, out io.Writer) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	output := out
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: out}
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger().Level(level)
	return nil
}
