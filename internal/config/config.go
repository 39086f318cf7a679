package config

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Database  DatabaseConfig  `json:"database" mapstructure:"database"`
	Inference InferenceConfig `json:"inference" mapstructure:"inference"`
	Chat      ChatConfig      `json:"chat" mapstructure:"chat"`
}

type ServerConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	ChannelToken string `json:"channel_token" mapstructure:"channel_token"`
}

type DatabaseConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	User     string `json:"user" mapstructure:"user"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
	SSLMode  string `json:"sslmode" mapstructure:"sslmode"`
}

type InferenceConfig struct {
	APIKey          string  `json:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL         string  `json:"base_url,omitempty" mapstructure:"base_url"`
	CompletionModel string  `json:"completion_model" mapstructure:"completion_model"`
	EmbeddingModel  string  `json:"embedding_model" mapstructure:"embedding_model"`
	EmbeddingDims   int     `json:"embedding_dims" mapstructure:"embedding_dims"`
	MaxTokens       int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature     float32 `json:"temperature" mapstructure:"temperature"`
	MaxRetries      int     `json:"max_retries" mapstructure:"max_retries"`
}

// ChatConfig holds the tuning knobs of the conversation core. All knobs are
// global, not per-user.
type ChatConfig struct {
	ContextWindow       int           `json:"context_window" mapstructure:"context_window"`
	SimilarityThreshold float64       `json:"similarity_threshold" mapstructure:"similarity_threshold"`
	IntentThreshold     float64       `json:"intent_threshold" mapstructure:"intent_threshold"`
	SlotCacheMaxAge     time.Duration `json:"slot_cache_max_age" mapstructure:"slot_cache_max_age"`
	MaxMessageLength    int           `json:"max_message_length" mapstructure:"max_message_length"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "bookline")
	viper.SetDefault("database.database", "bookline")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("inference.completion_model", "gpt-4o-mini")
	viper.SetDefault("inference.embedding_model", "text-embedding-3-small")
	viper.SetDefault("inference.embedding_dims", 1024)
	viper.SetDefault("inference.max_tokens", 1024)
	viper.SetDefault("inference.temperature", 0.2)
	viper.SetDefault("inference.max_retries", 5)
	viper.SetDefault("chat.context_window", 3)
	viper.SetDefault("chat.similarity_threshold", 0.8)
	viper.SetDefault("chat.intent_threshold", 0.6)
	viper.SetDefault("chat.slot_cache_max_age", "300s")
	viper.SetDefault("chat.max_message_length", 2000)

	// Read config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// No config file is fine; defaults plus env overrides cover everything.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvOverrides(&cfg)

	return &cfg, nil
}

func loadEnvOverrides(cfg *Config) {
	if port := os.Getenv("BOOKLINE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if host := os.Getenv("BOOKLINE_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if token := os.Getenv("BOOKLINE_CHANNEL_TOKEN"); token != "" {
		cfg.Server.ChannelToken = token
	}

	// Database overrides
	if dbHost := os.Getenv("POSTGRES_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("POSTGRES_PORT"); dbPort != "" {
		if port, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = port
		}
	}
	if dbUser := os.Getenv("POSTGRES_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPass := os.Getenv("POSTGRES_PASSWORD"); dbPass != "" {
		cfg.Database.Password = dbPass
	}
	if dbName := os.Getenv("POSTGRES_DB"); dbName != "" {
		cfg.Database.Database = dbName
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.Inference.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.Inference.BaseURL = baseURL
	}
}
