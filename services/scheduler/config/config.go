package config

import "github.com/spf13/viper"

// Config holds typed configuration for the scheduler service.
type Config struct {
	LogLevel     string
	PostgresDSN  string
	MetricsAddr  string
	OTelEndpoint string
	OpenAIKey    string
	OpenAIModel  string
	BackupDir    string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:     v.GetString("log_level"),
		PostgresDSN:  v.GetString("postgres_dsn"),
		MetricsAddr:  v.GetString("metrics_addr"),
		OTelEndpoint: v.GetString("otel_endpoint"),
		OpenAIKey:    v.GetString("openai_key"),
		OpenAIModel:  v.GetString("openai_model"),
		BackupDir:    v.GetString("backup_dir"),
	}
}
