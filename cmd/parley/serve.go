package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/engine"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/model"
	anthropicmodel "github.com/parleyhq/parley/model/anthropic"
	openaimodel "github.com/parleyhq/parley/model/openai"
	"github.com/parleyhq/parley/store/memory"
	"github.com/parleyhq/parley/store/postgres"
	"github.com/parleyhq/parley/store/sqlite"
	"github.com/parleyhq/parley/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the conversation server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().String("store", "memory", "store driver: memory, sqlite or postgres")
	serveCmd.Flags().String("sqlite-path", "parley.db", "database path for the sqlite store")
	serveCmd.Flags().String("postgres-url", "", "connection string for the postgres store")
	serveCmd.Flags().String("log-level", "info", "log level: debug, info, warn or error")
	serveCmd.Flags().String("log-format", "json", "log format: json or text")
	serveCmd.Flags().Float64("min-balance", engine.DefaultConfig.MinCreditBalance, "admission threshold in credits")
	serveCmd.Flags().Int("max-auto-turns", engine.DefaultConfig.MaxAutoTurns, "auto-reply turns after the initial turn")
	_ = viper.BindPFlags(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := buildLogger()

	store, closeStore, err := buildStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	cfg := engine.DefaultConfig
	cfg.MinCreditBalance = viper.GetFloat64("min-balance")
	cfg.MaxAutoTurns = viper.GetInt("max-auto-turns")

	eng := engine.New(func(o *engine.Options) {
		o.Config = cfg
		o.Store = store
		o.Resolver = buildResolver()
		o.Logger = logger
	})

	handler := transport.NewHandler(eng, func(o *transport.HandlerOptions) {
		o.Logger = logger
	})

	addr := viper.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           transport.NewServeMux(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server.listening", "addr", addr, "store", viper.GetString("store"))
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("server.shutdown", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func buildLogger() logging.Logger {
	var level slog.Level
	switch viper.GetString("log-level") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return logging.New(&logging.Config{
		Level:  level,
		Format: viper.GetString("log-format"),
		Output: os.Stderr,
	})
}

func buildStore(ctx context.Context) (core.Store, func(), error) {
	switch driver := viper.GetString("store"); driver {
	case "memory":
		return memory.NewStore(), func() {}, nil
	case "sqlite":
		s, err := sqlite.NewStore(viper.GetString("sqlite-path"))
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		url := viper.GetString("postgres-url")
		if url == "" {
			return nil, nil, fmt.Errorf("postgres store requires --postgres-url")
		}
		s, err := postgres.NewStore(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// buildResolver routes model names by prefix: claude-* to Anthropic,
// everything else to OpenAI. Both adapters read their API keys from the
// environment.
func buildResolver() model.Resolver {
	anthropicM := anthropicmodel.NewModel()
	openaiM := openaimodel.NewModel()
	return model.ResolverFunc(func(modelName string) (model.Model, error) {
		if len(modelName) >= 7 && modelName[:7] == "claude-" {
			return anthropicM, nil
		}
		return openaiM, nil
	})
}
