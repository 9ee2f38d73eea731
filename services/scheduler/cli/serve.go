package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aaj441/aaronos-core/internal/browser"
	"github.com/aaj441/aaronos-core/internal/llm"
	"github.com/aaj441/aaronos-core/internal/maintenance"
	"github.com/aaj441/aaronos-core/internal/postgres"
	"github.com/aaj441/aaronos-core/pkg/telemetry"
	"github.com/aaj441/aaronos-core/services/scheduler"
	"github.com/aaj441/aaronos-core/services/scheduler/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("metrics-addr", ":9093", "Prometheus metrics server address")
	serveCmd.Flags().String("backup-dir", "./backups", "directory for pg_dump archives")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")
	serveCmd.Flags().String("openai-key", "", "OpenAI API key, used by the health probe")
	serveCmd.Flags().String("openai-model", llm.DefaultModel, "chat model for the health probe")

	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("backup_dir", serveCmd.Flags(), "backup-dir")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	bindFlag("openai_key", serveCmd.Flags(), "openai-key")
	bindFlag("openai_model", serveCmd.Flags(), "openai-model")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = viper.BindEnv("openai_key", "OPENAI_API_KEY")
	_ = viper.BindEnv("postgres_dsn", "POSTGRES_DSN")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "scheduler")

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "scheduler", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	platform := postgres.NewPlatformRepository(pool)
	schedules := postgres.NewScheduleRepository(pool)
	works := postgres.NewWorkRepository(pool)

	gen, err := llm.NewClient(cfg.OpenAIKey, llm.WithModel(cfg.OpenAIModel))
	if err != nil {
		return fmt.Errorf("generation client: %w", err)
	}
	newBrowser := func() (browser.Browser, error) {
		return browser.NewChrome(context.Background()), nil
	}

	tasks := maintenance.New(platform, schedules, works, gen, newBrowser, cfg.BackupDir, cfg.PostgresDSN, logger)

	sched := scheduler.New(schedules, logger)
	regCtx, regCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer regCancel()
	for _, def := range tasks.Definitions() {
		if err := sched.Register(regCtx, def.Name, def.Cron, def.Handler); err != nil {
			return fmt.Errorf("register %s: %w", def.Name, err)
		}
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, "scheduler", logger)

	sched.Start()
	logger.Info("scheduler running", slog.Int("tasks", len(tasks.Definitions())))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logger.Info("shutting down...")
	runCancel()
	sched.Stop()
	logger.Info("stopped")
	return nil
}
