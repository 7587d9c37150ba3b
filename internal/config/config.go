package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Tools    ToolsConfig
	Download DownloadConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Events   EventsConfig
	Webhook  WebhookConfig
	Metrics  MetricsConfig
	Tracing  TracingConfig
	Logging  LoggingConfig
	Settings SettingsConfig
}

// ServerConfig holds the local control API configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
	AnalyzeRPS      int
	AnalyzeBurst    int
	AuthSecret      string
}

// ToolsConfig controls how yt-dlp and ffmpeg are located
type ToolsConfig struct {
	InstallDir   string
	YtDlpPath    string
	FFmpegPath   string
	ProbeTimeout time.Duration
}

// DownloadConfig holds download defaults
type DownloadConfig struct {
	OutputDir       string
	MergeFormat     string
	MaxFilenameLen  int
	ArchiveFinished bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled     bool
	Host        string
	Port        int
	Password    string
	DB          int
	MetadataTTL time.Duration
	LockTTL     time.Duration
}

// StorageConfig holds object storage configuration for archived downloads
type StorageConfig struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
	Prefix          string
}

// EventsConfig holds the AMQP job event publisher configuration
type EventsConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
	Exchange string
}

// WebhookConfig lists endpoints that receive job events by HTTP POST
type WebhookConfig struct {
	URLs    []string
	Secret  string
	Events  []string
	Timeout time.Duration
}

// MetricsConfig holds Prometheus exporter configuration
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// TracingConfig holds Jaeger configuration
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// SettingsConfig controls where appearance settings are persisted
type SettingsConfig struct {
	Backend string // file or redis
	Path    string
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return unmarshal(v)
}

// LoadOrDefault behaves like Load but falls back to defaults when the
// file does not exist.
func LoadOrDefault(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("HDMSP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8765)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.readTimeout", "30s")
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("server.analyzeRPS", 2)
	v.SetDefault("server.analyzeBurst", 4)
	v.SetDefault("server.authSecret", "")

	// Tools defaults
	v.SetDefault("tools.installDir", "")
	v.SetDefault("tools.ytdlpPath", "")
	v.SetDefault("tools.ffmpegPath", "")
	v.SetDefault("tools.probeTimeout", "4s")

	// Download defaults
	v.SetDefault("download.outputDir", "")
	v.SetDefault("download.mergeFormat", "mp4")
	v.SetDefault("download.maxFilenameLen", 120)
	v.SetDefault("download.archiveFinished", false)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.metadataTTL", "10m")
	v.SetDefault("redis.lockTTL", "6h")

	// Storage defaults
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.accessKeyID", "minioadmin")
	v.SetDefault("storage.secretAccessKey", "minioadmin")
	v.SetDefault("storage.bucketName", "downloads")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.useSSL", false)
	v.SetDefault("storage.prefix", "hdmsp")

	// Events defaults
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.host", "localhost")
	v.SetDefault("events.port", 5672)
	v.SetDefault("events.user", "guest")
	v.SetDefault("events.password", "guest")
	v.SetDefault("events.vhost", "/")
	v.SetDefault("events.exchange", "hdmsp.events")

	// Webhook defaults
	v.SetDefault("webhook.urls", []string{})
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.events", []string{"completed", "failed"})
	v.SetDefault("webhook.timeout", "10s")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9765)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.serviceName", "hdmsp")
	v.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")

	// Settings defaults
	v.SetDefault("settings.backend", "file")
	v.SetDefault("settings.path", "")
}
