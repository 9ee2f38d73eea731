package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aaj441/aaronos-core/internal/browser"
	"github.com/aaj441/aaronos-core/internal/events"
	"github.com/aaj441/aaronos-core/internal/llm"
	"github.com/aaj441/aaronos-core/internal/pipeline"
	"github.com/aaj441/aaronos-core/internal/postgres"
	redisstore "github.com/aaj441/aaronos-core/internal/redis"
	"github.com/aaj441/aaronos-core/internal/runner"
	"github.com/aaj441/aaronos-core/pkg/telemetry"
	"github.com/aaj441/aaronos-core/services/api/config"
	"github.com/aaj441/aaronos-core/services/api/handler"
	"github.com/aaj441/aaronos-core/services/api/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST server and job runner",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("http-port", "8080", "HTTP server port")
	serveCmd.Flags().String("metrics-addr", ":9095", "Prometheus metrics server address")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address (host:port)")
	serveCmd.Flags().String("kafka-brokers", "", "comma-separated Kafka broker addresses; empty disables event publishing")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")
	serveCmd.Flags().String("openai-key", "", "OpenAI API key")
	serveCmd.Flags().String("openai-model", llm.DefaultModel, "chat model for generation calls")
	serveCmd.Flags().String("source-endpoint", "", "HTTP endpoint for research source gathering; empty uses generated fallbacks")
	serveCmd.Flags().String("export-dir", "./exports", "directory for generated book files")
	serveCmd.Flags().Int64("max-concurrent", 5, "maximum jobs executing at once")
	serveCmd.Flags().Int("rate-limit", 10, "submissions allowed per owner per window")
	serveCmd.Flags().Duration("rate-limit-window", time.Minute, "rate limit window")

	bindFlag("http_port", serveCmd.Flags(), "http-port")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("redis_addr", serveCmd.Flags(), "redis-addr")
	bindFlag("kafka_brokers", serveCmd.Flags(), "kafka-brokers")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	bindFlag("openai_key", serveCmd.Flags(), "openai-key")
	bindFlag("openai_model", serveCmd.Flags(), "openai-model")
	bindFlag("source_endpoint", serveCmd.Flags(), "source-endpoint")
	bindFlag("export_dir", serveCmd.Flags(), "export-dir")
	bindFlag("max_concurrent", serveCmd.Flags(), "max-concurrent")
	bindFlag("rate_limit", serveCmd.Flags(), "rate-limit")
	bindFlag("rate_limit_window", serveCmd.Flags(), "rate-limit-window")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = viper.BindEnv("openai_key", "OPENAI_API_KEY")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "api")

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "api", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	redisClient := redisstore.NewClient(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()
	store := redisstore.NewStateStore(redisClient)
	limiter := redisstore.NewRateLimiter(redisClient, cfg.RateLimit, cfg.RateLimitWindow)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	works := postgres.NewWorkRepository(pool)
	schedules := postgres.NewScheduleRepository(pool)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.KafkaBrokers != "" {
		kp := events.NewKafkaPublisher(strings.Split(cfg.KafkaBrokers, ","))
		defer func() { _ = kp.Close() }()
		publisher = kp
	}

	gen, err := llm.NewClient(cfg.OpenAIKey, llm.WithModel(cfg.OpenAIModel))
	if err != nil {
		return fmt.Errorf("generation client: %w", err)
	}

	sources := pipeline.NewGeneratedSourceProvider(gen)
	if cfg.SourceEndpoint != "" {
		sources = pipeline.NewHTTPSourceProvider(cfg.SourceEndpoint)
	}

	newBrowser := func() (browser.Browser, error) {
		return browser.NewChrome(context.Background()), nil
	}

	jobs := runner.New(works, store,
		runner.WithLogger(logger),
		runner.WithConcurrency(int(cfg.MaxConcurrent)),
		runner.WithPublisher(publisher),
	)

	research := pipeline.NewResearch(gen, sources, logger)
	books := pipeline.NewBook(gen, cfg.ExportDir, logger)
	scans := pipeline.NewScan(newBrowser, logger)

	restHandler := handler.NewREST(works, schedules, store, limiter, jobs, research, books, scans, logger)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1MB limit
	restHandler.Routes(r)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, "api", logger)

	go func() {
		logger.Info("api HTTP starting", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("shutting down...")
	runCancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", slog.String("error", err.Error()))
	}

	// Let in-flight jobs reach a terminal state before the process exits.
	jobs.Wait()
	logger.Info("stopped")
	return nil
}
