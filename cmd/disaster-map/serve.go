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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mr1hm/go-disaster-map/internal/api"
	"github.com/mr1hm/go-disaster-map/internal/assistant"
	"github.com/mr1hm/go-disaster-map/internal/broadcast"
	"github.com/mr1hm/go-disaster-map/internal/logging"
	"github.com/mr1hm/go-disaster-map/internal/observability"
	"github.com/mr1hm/go-disaster-map/internal/publish"
	"github.com/mr1hm/go-disaster-map/internal/refresher"
	"github.com/mr1hm/go-disaster-map/internal/repository"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the refresh loop and the HTTP/WebSocket API (default)",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("server starting", "host", cfg.Server.Host, "port", cfg.Server.Port, "interval", cfg.Refresh.Interval)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	metrics := observability.NewMetrics()
	broadcaster := broadcast.NewBroadcaster(broadcast.DefaultBuffer)
	prometheus.MustRegister(observability.DroppedSnapshots(broadcaster.Dropped))

	opts := aggregatorOptions(cfg)
	logSources(opts)

	refOpts := []refresher.Option{
		refresher.WithNotifier(broadcaster),
		refresher.WithStore(db),
		refresher.WithMetrics(metrics),
	}
	if cfg.Kafka.Enabled() {
		sink := publish.NewKafkaPublisher(cfg.Kafka, slog.Default())
		defer sink.Close()
		refOpts = append(refOpts, refresher.WithSink(sink))
		slog.Info("kafka publishing enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	var generator assistant.Generator
	if cfg.Assistant.GeminiAPIKey != "" {
		gen, err := assistant.NewGeminiGenerator(ctx, cfg.Assistant.GeminiAPIKey, cfg.Assistant.GeminiModel)
		if err != nil {
			slog.Warn("gemini unavailable, assistant uses built-in responses", "error", err)
		} else {
			generator = gen
			slog.Info("assistant using gemini", "model", cfg.Assistant.GeminiModel)
		}
	}

	ref := refresher.New(newAggregator(cfg), opts, cfg.Refresh.Interval, refOpts...)
	ref.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS))

	handler := api.NewHandler(ref, db, assistant.New(generator, metrics), broadcaster, metrics)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	slog.Info("shutting down...")

	cancel()
	ref.Stop()
	broadcaster.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
