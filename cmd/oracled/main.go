package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/famedly/matrix-oracle/internal/dnsx"
	"github.com/famedly/matrix-oracle/internal/oracle"
	"github.com/famedly/matrix-oracle/pkg/client"
	"github.com/famedly/matrix-oracle/pkg/server"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("oracled exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	viper.SetConfigName("oracled")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("oracled.port", 8470)
	viper.SetDefault("oracled.cache_ttl_seconds", 300)
	viper.SetDefault("oracled.eviction_interval_seconds", 60)
	viper.SetDefault("oracled.http_timeout_seconds", 10)
	viper.SetDefault("oracled.rate_limit_rps", 20)
	viper.SetDefault("oracled.rate_limit_burst", 40)
	viper.SetDefault("oracled.dns_nameserver", "")
	viper.SetDefault("oracled.allowed_origins", []string{})

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	port := viper.GetInt("oracled.port")
	cacheTTL := time.Duration(viper.GetInt("oracled.cache_ttl_seconds")) * time.Second
	evictionInterval := time.Duration(viper.GetInt("oracled.eviction_interval_seconds")) * time.Second
	httpTimeout := time.Duration(viper.GetInt("oracled.http_timeout_seconds")) * time.Second
	nameserver := viper.GetString("oracled.dns_nameserver")

	httpClient := &http.Client{Timeout: httpTimeout}

	serverOpts := []server.Option{
		server.WithHTTPClient(httpClient),
		server.WithLogger(logger.Named("server")),
	}
	if nameserver != "" {
		serverOpts = append(serverOpts, server.WithDNS(&dnsx.Resolver{NameServer: nameserver}))
	}
	serverResolver := server.New(serverOpts...)

	clientResolver := client.New(
		client.WithHTTPClient(httpClient),
		client.WithLogger(logger.Named("client")),
	)

	svc := oracle.NewService(serverResolver, clientResolver, oracle.Config{
		CacheTTL: cacheTTL,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartCacheEviction(ctx, evictionInterval)

	handler := oracle.NewHandler(svc, logger)
	router := oracle.NewRouter(handler, oracle.RouterConfig{
		AllowedOrigins: viper.GetStringSlice("oracled.allowed_origins"),
		RateLimitRPS:   viper.GetInt("oracled.rate_limit_rps"),
		RateLimitBurst: viper.GetInt("oracled.rate_limit_burst"),
	}, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("oracled listening",
			zap.Int("port", port),
			zap.Duration("cache_ttl", cacheTTL),
			zap.String("dns_nameserver", nameserver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP serve error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down oracled...")
	cancel() // stop cache eviction

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown", zap.Error(err))
	}

	logger.Info("oracled stopped")
	return nil
}
