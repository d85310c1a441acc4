package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-convo/internal/api"
	"github.com/npezzotti/go-convo/internal/chat"
	"github.com/npezzotti/go-convo/internal/config"
	"github.com/npezzotti/go-convo/internal/database"
	"github.com/npezzotti/go-convo/internal/server"
	"github.com/npezzotti/go-convo/internal/stats"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dbDriver       string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
	redisAddr      string
	logLevel       string
	logFormat      string
)

func newRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

func main() {
	loaded, dotEnvErr := config.LoadDotEnv("")

	flag.StringVar(&addr, "addr", config.Getenv("CONVO_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dbDriver, "db-driver", config.Getenv("CONVO_DB_DRIVER", database.DriverPostgres), "database driver (postgres or sqlite3)")
	flag.StringVar(&dsn, "dsn", config.Getenv("CONVO_DSN", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "database connection string")
	flag.StringVar(&signingKey, "signing-key", config.Getenv("CONVO_SIGNING_KEY", defaultSigningKey), "base64 encoded token signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&redisAddr, "redis-addr", config.Getenv("CONVO_REDIS_ADDR", ""), "redis address for multi-instance fan-out, empty to disable")
	flag.StringVar(&logLevel, "log-level", config.Getenv("CONVO_LOG_LEVEL", "info"), "log level")
	flag.StringVar(&logFormat, "log-format", config.Getenv("CONVO_LOG_FORMAT", "json"), "log format (json or console)")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		if v := os.Getenv("CONVO_ALLOWED_ORIGINS"); v != "" {
			allowedOrigins.Set(v)
		}
	}

	logger, err := config.NewLogger(os.Stderr, logLevel, logFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	zerolog.DefaultContextLogger = &logger

	if dotEnvErr != nil {
		logger.Fatal().Err(dotEnvErr).Msg("load env files")
	}
	if len(loaded) > 0 {
		logger.Info().Strs("files", loaded).Msg("loaded env files")
	}

	cfg, err := config.NewConfig(addr, dbDriver, dsn, signingKey, allowedOrigins, redisAddr)
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}

	store, err := database.NewSQLStore(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("db open")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("db close")
		}
	}()

	if err := store.Migrate(); err != nil {
		logger.Fatal().Err(err).Msg("db migrate")
	}

	svc := chat.NewService(logger, store, nil)

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	opts := []server.Option{}
	if cfg.RedisAddr != "" {
		rdb, err := newRedisClient(context.Background(), cfg.RedisAddr)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer rdb.Close()
		opts = append(opts, server.WithRedis(rdb))
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")
	}

	chatServer, err := server.NewChatServer(logger, svc, statsUpdater, opts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("new chat server")
	}
	svc.SetNotifier(chatServer)

	srv := api.NewChatApp(mux, logger, svc, chatServer, store, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info().Str("signal", sig.String()).Msg("received signal")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server")
		}
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown")
	}

	logger.Info().Msg("shutting down chat server")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Error().Err(err).Msg("chat server shutdown")
	}

	logger.Info().Msg("shutdown complete")
}
