// Package config loads platform configuration via viper, following the
// pattern used elsewhere in the source organization's compliance service
// (viper.New + mapstructure + env overrides) rather than hand-rolled
// os.Getenv parsing.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Store       StoreConfig       `mapstructure:"store"`
	AI          AIConfig          `mapstructure:"ai"`
	Correlation CorrelationConfig `mapstructure:"correlation"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	S3          S3Config          `mapstructure:"s3"`
	Log         LogConfig         `mapstructure:"log"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type StoreConfig struct {
	RootPath string `mapstructure:"root_path"`
}

type AIConfig struct {
	Provider      string        `mapstructure:"provider"`
	APIKeyEnv     string        `mapstructure:"api_key_env"`
	Model         string        `mapstructure:"model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	Concurrency   int           `mapstructure:"concurrency"`
	ChunkSize     int           `mapstructure:"chunk_size"`
	SummaryMaxItems int         `mapstructure:"summary_max_items"`
}

type CorrelationConfig struct {
	TemporalWindowHours  int `mapstructure:"temporal_window_hours"`
	GapThresholdHours    int `mapstructure:"gap_threshold_hours"`
	AIResolveMaxPairs    int `mapstructure:"ai_resolve_max_pairs"`
	PatternTopEntities   int `mapstructure:"pattern_top_entities"`
	PatternRecentEvents  int `mapstructure:"pattern_recent_events"`
	PatternSummaryCount  int `mapstructure:"pattern_summary_count"`
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	DB      int    `mapstructure:"db"`
}

type PostgresConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic_prefix"`
}

type S3Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from ./config.yaml (or EVP_-prefixed env vars), applying
// defaults for anything unset. A missing config file is not an error.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/evidence-platform/")
	}

	v.SetEnvPrefix("EVP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, cfg.Validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "evidence-platform")
	v.SetDefault("app.env", "development")
	v.SetDefault("store.root_path", "./evidence-store")
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("ai.model", "gpt-4o")
	v.SetDefault("ai.timeout", 120*time.Second)
	v.SetDefault("ai.max_retries", 3)
	v.SetDefault("ai.concurrency", 5)
	v.SetDefault("ai.chunk_size", 30)
	v.SetDefault("ai.summary_max_items", 50)
	v.SetDefault("correlation.temporal_window_hours", 72)
	v.SetDefault("correlation.gap_threshold_hours", 168)
	v.SetDefault("correlation.ai_resolve_max_pairs", 50)
	v.SetDefault("correlation.pattern_top_entities", 20)
	v.SetDefault("correlation.pattern_recent_events", 30)
	v.SetDefault("correlation.pattern_summary_count", 10)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("postgres.enabled", false)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic_prefix", "evidence-platform")
	v.SetDefault("s3.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// applyDefaults catches zero-values viper's Unmarshal can leave behind when
// a partial config file overrides only some keys in a nested struct.
func (c *Config) applyDefaults() {
	if c.Store.RootPath == "" {
		c.Store.RootPath = "./evidence-store"
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = 120 * time.Second
	}
	if c.AI.MaxRetries == 0 {
		c.AI.MaxRetries = 3
	}
	if c.AI.Concurrency == 0 {
		c.AI.Concurrency = 5
	}
	if c.AI.ChunkSize == 0 {
		c.AI.ChunkSize = 30
	}
	if c.AI.SummaryMaxItems == 0 {
		c.AI.SummaryMaxItems = 50
	}
	if c.Correlation.TemporalWindowHours == 0 {
		c.Correlation.TemporalWindowHours = 72
	}
	if c.Correlation.GapThresholdHours == 0 {
		c.Correlation.GapThresholdHours = 168
	}
	if c.Correlation.AIResolveMaxPairs == 0 {
		c.Correlation.AIResolveMaxPairs = 50
	}
	if c.Correlation.PatternTopEntities == 0 {
		c.Correlation.PatternTopEntities = 20
	}
	if c.Correlation.PatternRecentEvents == 0 {
		c.Correlation.PatternRecentEvents = 30
	}
	if c.Correlation.PatternSummaryCount == 0 {
		c.Correlation.PatternSummaryCount = 10
	}
}

func (c *Config) Validate() error {
	if c.Store.RootPath == "" {
		return fmt.Errorf("store.root_path must not be empty")
	}
	if c.AI.Concurrency < 1 {
		return fmt.Errorf("ai.concurrency must be >= 1")
	}
	return nil
}
