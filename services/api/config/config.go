package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the api service.
type Config struct {
	LogLevel         string
	HTTPPort         string
	MetricsAddr      string
	PostgresDSN      string
	RedisAddr        string
	KafkaBrokers     string
	OTelEndpoint     string
	OpenAIKey        string
	OpenAIModel      string
	SourceEndpoint   string
	ExportDir        string
	MaxConcurrent    int64
	RateLimit        int
	RateLimitWindow  time.Duration
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:        v.GetString("log_level"),
		HTTPPort:        v.GetString("http_port"),
		MetricsAddr:     v.GetString("metrics_addr"),
		PostgresDSN:     v.GetString("postgres_dsn"),
		RedisAddr:       v.GetString("redis_addr"),
		KafkaBrokers:    v.GetString("kafka_brokers"),
		OTelEndpoint:    v.GetString("otel_endpoint"),
		OpenAIKey:       v.GetString("openai_key"),
		OpenAIModel:     v.GetString("openai_model"),
		SourceEndpoint:  v.GetString("source_endpoint"),
		ExportDir:       v.GetString("export_dir"),
		MaxConcurrent:   v.GetInt64("max_concurrent"),
		RateLimit:       v.GetInt("rate_limit"),
		RateLimitWindow: v.GetDuration("rate_limit_window"),
	}
}
