package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	botflow "github.com/stackmint/botflow"
	"github.com/stackmint/botflow/internal/logging"
	"github.com/stackmint/botflow/pkg/adapters/memory"
	redisadapter "github.com/stackmint/botflow/pkg/adapters/redis"
)

const shutdownGrace = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the conversation engine HTTP server",
	Long: `Starts the botflow engine, exposing chat ingress (SSE egress),
health and metrics endpoints. Flows and tools are seeded from the configured
flows file; sessions and the tool response cache live in Redis when a Redis
address is configured, in memory otherwise.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// .env is a developer convenience; absence is fine.
		_ = godotenv.Load()

		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		logger := logging.New(parseLevel(cfg.LogLevel))

		flows := memory.NewFlowStore()
		if cfg.FlowsFile != "" {
			if err := loadFlows(cfg.FlowsFile, flows); err != nil {
				return err
			}
		}

		opts := []botflow.Option{
			botflow.WithLogger(logger),
			botflow.WithFlowStore(flows),
			botflow.WithToolStore(flows.Tools()),
		}

		if cfg.CacheTTL != "" {
			ttl, err := time.ParseDuration(cfg.CacheTTL)
			if err != nil {
				return fmt.Errorf("invalid cache_ttl %q: %w", cfg.CacheTTL, err)
			}
			opts = append(opts, botflow.WithCacheTTL(ttl))
		}

		if cfg.Redis.Addr != "" {
			client := backend.NewClient(&backend.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if err := client.Ping(cmd.Context()).Err(); err != nil {
				return fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
			}
			opts = append(opts,
				botflow.WithSessionStore(redisadapter.NewSessionStore(client)),
				botflow.WithToolResponseCache(redisadapter.NewToolResponseCache(client)),
				botflow.WithLocker(redisadapter.NewLocker(client, "botflow:")),
			)
			logger.Info("using redis backend", "addr", cfg.Redis.Addr)
		}

		engine, err := botflow.New(opts...)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:    cfg.Addr,
			Handler: engine.Handler(),
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("server listening", "addr", cfg.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())

			ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("graceful shutdown incomplete, closing", "err", err)
				return srv.Close()
			}
			logger.Info("server stopped")
			return nil
		}
	},
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
