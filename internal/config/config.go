package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Reddit    RedditConfig    `mapstructure:"reddit"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Data      DataConfig      `mapstructure:"data"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type RedditConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	UserAgent    string `mapstructure:"user_agent"`
	Subreddits   string `mapstructure:"subreddits"`
}

type QdrantConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
	UseTLS bool   `mapstructure:"use_tls"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type EmbeddingConfig struct {
	Model        string `mapstructure:"model"`
	OpenAIAPIKey string `mapstructure:"openai_api_key"`
	JinaAPIKey   string `mapstructure:"jina_api_key"`
	LocalURL     string `mapstructure:"local_url"`
	BatchSize    int    `mapstructure:"batch_size"`
}

type LLMConfig struct {
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type DataConfig struct {
	CSVDir string `mapstructure:"csv_dir"`
	NPYDir string `mapstructure:"npy_dir"`
}

type PipelineConfig struct {
	Workers      int `mapstructure:"workers"`
	QueueSize    int `mapstructure:"queue_size"`
	DefaultLimit int `mapstructure:"default_limit"`
	DefaultTopK  int `mapstructure:"default_top_k"`
}

type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

// DSNString returns the connection string for the configured driver.
func (c *DatabaseConfig) DSNString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return c.Path
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("reddit.user_agent", "stocklens/1.0")
	v.SetDefault("reddit.subreddits", "stocks+investing+wallstreetbets")
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/stocklens.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("embedding.model", "all-MiniLM-L6-v2")
	v.SetDefault("embedding.local_url", "http://localhost:8081/v1")
	v.SetDefault("embedding.batch_size", 32)
	v.SetDefault("llm.model", "gpt-4")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("data.csv_dir", "./data/processed/csv")
	v.SetDefault("data.npy_dir", "./data/processed/npy")
	v.SetDefault("pipeline.workers", 2)
	v.SetDefault("pipeline.queue_size", 16)
	v.SetDefault("pipeline.default_limit", 50)
	v.SetDefault("pipeline.default_top_k", 5)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.use_ssl", false)
	v.SetDefault("archive.bucket", "stocklens-datasets")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("reddit.client_id", "REDDIT_CLIENT_ID")
	v.BindEnv("reddit.client_secret", "REDDIT_CLIENT_SECRET")
	v.BindEnv("reddit.user_agent", "REDDIT_USER_AGENT")
	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("embedding.openai_api_key", "OPENAI_API_KEY")
	v.BindEnv("embedding.jina_api_key", "JINA_API_KEY")
	v.BindEnv("llm.api_key", "OPENAI_API_KEY")
	v.BindEnv("llm.base_url", "OPENAI_BASE_URL")
	v.BindEnv("archive.endpoint", "ARCHIVE_ENDPOINT")
	v.BindEnv("archive.access_key", "ARCHIVE_ACCESS_KEY")
	v.BindEnv("archive.secret_key", "ARCHIVE_SECRET_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
