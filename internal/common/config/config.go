package config

import (
	"os"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/remoteview/broker/pkg/helper"
)

type (
	// BrokerConfig represents the session broker configuration.
	BrokerConfig struct {
		Port    int           `yaml:"port"`
		Logger  LoggerConfig  `yaml:"logger"`
		Metrics MetricsConfig `yaml:"metrics"`
		Tracing TracingConfig `yaml:"tracing"`
		History HistoryConfig `yaml:"history"`
	}

	// LoggerConfig represents the logger configuration.
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
		TimeZone   string `yaml:"time_zone"`   // time zone for log timestamps
		TimeFormat string `yaml:"time_format"` // time format for log timestamps
	}

	// MetricsConfig represents the Prometheus metrics configuration.
	MetricsConfig struct {
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}

	// TracingConfig represents the OpenTelemetry tracing configuration.
	TracingConfig struct {
		Enabled     bool              `yaml:"enabled"`
		ServiceName string            `yaml:"service_name"`
		Endpoint    string            `yaml:"endpoint"` // e.g. localhost:4317 or http://localhost:4318
		Protocol    string            `yaml:"protocol"` // grpc or http
		Insecure    bool              `yaml:"insecure"`
		SamplerRate float64           `yaml:"sampler_rate"` // 0.0~1.0
		Environment string            `yaml:"environment"`
		Headers     map[string]string `yaml:"headers"`
	}

	// HistoryConfig represents the chat history buffer configuration.
	HistoryConfig struct {
		Capacity int `yaml:"capacity"`
	}
)

// DefaultPort is used when neither the config file nor the PORT environment
// variable names a port.
const DefaultPort = 8080

// LoadConfig loads configuration from a YAML file with environment variable
// support.
func LoadConfig(filename string) (*BrokerConfig, string, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfgPath := helper.GetCfgPath(filename)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	// Resolve environment variables
	data = resolveEnv(data)
	var cfg BrokerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, cfgPath, err
	}

	cfg.setDefaults()
	return &cfg, cfgPath, nil
}

func (c *BrokerConfig) setDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "broker"
	}
}

// resolveEnv replaces environment variable placeholders in YAML content.
func resolveEnv(content []byte) []byte {
	regex := regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

	return regex.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := regex.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
