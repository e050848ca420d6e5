package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Bot         BotConfig         `mapstructure:"bot"`
	Storage     StorageConfig     `mapstructure:"storage"`
	PhraseCache PhraseCacheConfig `mapstructure:"phrase_cache"`
	Classifier  ClassifierConfig  `mapstructure:"classifier"`
	Normalizer  NormalizerConfig  `mapstructure:"normalizer"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	I18n        I18nConfig        `mapstructure:"i18n"`
}

type BotConfig struct {
	Token         string        `mapstructure:"token"`
	CommandPrefix string        `mapstructure:"command_prefix"`
	UpdateTimeout int           `mapstructure:"update_timeout"`
	Workers       int           `mapstructure:"workers"`
	QueueSize     int           `mapstructure:"queue_size"`
	Webhook       WebhookConfig `mapstructure:"webhook"`
}

type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Port    int    `mapstructure:"port"`
}

type StorageConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

type PhraseCacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type ClassifierConfig struct {
	Type              string                `mapstructure:"type"`
	Timeout           time.Duration         `mapstructure:"timeout"`
	Language          string                `mapstructure:"language"`
	// UseClientLanguage sends the sender's Telegram language instead of Language
	UseClientLanguage bool                  `mapstructure:"use_client_language"`
	MinConfidence     float64               `mapstructure:"min_confidence"`
	HTTP              HTTPClassifierConfig  `mapstructure:"http"`
	Dialogflow        DialogflowConfig      `mapstructure:"dialogflow"`
	Cache             ClassifierCacheConfig `mapstructure:"cache"`
}

type HTTPClassifierConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	APIKey     string `mapstructure:"api_key"`
	MaxRetries int    `mapstructure:"max_retries"`
}

type DialogflowConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
	Endpoint        string `mapstructure:"endpoint"`
}

type ClassifierCacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Type    string        `mapstructure:"type"`
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NormalizerConfig struct {
	Language string `mapstructure:"language"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
	// Fields are attached to every log entry
	Fields map[string]string `mapstructure:"fields"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
}

// Classifier backends
const (
	ClassifierNone       = "none"
	ClassifierHTTP       = "http"
	ClassifierDialogflow = "dialogflow"
)

// Storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.command_prefix", "/")
	v.SetDefault("bot.update_timeout", 60)
	v.SetDefault("bot.workers", 8)
	v.SetDefault("bot.queue_size", 100)

	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.dsn", "data/lbot.sqlite3")
	v.SetDefault("storage.max_open_conns", 5)
	v.SetDefault("storage.log_level", "silent")

	v.SetDefault("phrase_cache.enabled", true)
	v.SetDefault("phrase_cache.ttl", 10*time.Minute)

	v.SetDefault("classifier.type", ClassifierNone)
	v.SetDefault("classifier.timeout", 3*time.Second)
	v.SetDefault("classifier.language", "en")
	v.SetDefault("classifier.use_client_language", false)
	v.SetDefault("classifier.http.max_retries", 2)
	v.SetDefault("classifier.cache.type", "memory")
	v.SetDefault("classifier.cache.ttl", time.Hour)

	v.SetDefault("normalizer.language", "und")

	v.SetDefault("rate_limit.requests_per_minute", 30)
	v.SetDefault("rate_limit.burst", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.fields", map[string]string{"service": "lbot"})

	v.SetDefault("monitoring.metrics.port", 9090)
	v.SetDefault("monitoring.metrics.path", "/metrics")

	v.SetDefault("i18n.default_language", "en")
	v.SetDefault("i18n.languages", []string{"en", "zh"})
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// SECTION_KEY overrides section.key
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.BindEnv("bot.token", "BOT_TOKEN")
	v.BindEnv("storage.dsn", "DATABASE_DSN")
	v.BindEnv("classifier.cache.redis.addr", "REDIS_ADDR")
	v.BindEnv("classifier.cache.redis.password", "REDIS_PASSWORD")
	v.BindEnv("classifier.http.endpoint", "CLASSIFIER_ENDPOINT")
	v.BindEnv("classifier.http.api_key", "CLASSIFIER_API_KEY")
	v.BindEnv("classifier.dialogflow.project_id", "DIALOGFLOW_PROJECT_ID", "GOOGLE_CLOUD_PROJECT")
	v.BindEnv("classifier.dialogflow.credentials_file", "GOOGLE_APPLICATION_CREDENTIALS")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Bot.Token == "" {
		return fmt.Errorf("bot token is required")
	}
	if cfg.Bot.CommandPrefix == "" {
		return fmt.Errorf("command prefix must not be empty")
	}
	if cfg.Bot.Workers < 1 {
		return fmt.Errorf("at least one worker is required")
	}

	switch cfg.Storage.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
	if cfg.Storage.DSN == "" {
		return fmt.Errorf("storage dsn is required")
	}

	switch cfg.Classifier.Type {
	case ClassifierNone:
	case ClassifierHTTP:
		if cfg.Classifier.HTTP.Endpoint == "" {
			return fmt.Errorf("http classifier requires an endpoint")
		}
	case ClassifierDialogflow:
		if cfg.Classifier.Dialogflow.ProjectID == "" {
			return fmt.Errorf("dialogflow classifier requires a project id")
		}
	default:
		return fmt.Errorf("unsupported classifier type: %s", cfg.Classifier.Type)
	}
	if cfg.Classifier.Type != ClassifierNone && cfg.Classifier.Timeout <= 0 {
		return fmt.Errorf("classifier timeout must be positive")
	}

	return nil
}
