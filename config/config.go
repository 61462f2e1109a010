package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath = "config.yaml"

	envConfigPath    = "CONFIG_PATH"
	envOpenAIAPIKey  = "OPENAI_API_KEY"
	envOpenAIBaseURL = "OPENAI_BASE_URL"
)

// Cfg 全局配置，由 Init 加载
var Cfg *Config

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Model     ModelConfig     `yaml:"model"`
	Document  DocumentConfig  `yaml:"document"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Session   SessionConfig   `yaml:"session"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowOrigins   []string      `yaml:"allow_origins"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

type ModelConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	ChatModel      string        `yaml:"chat_model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	Timeout        time.Duration `yaml:"timeout"`
}

type DocumentConfig struct {
	ChunkSize          int  `yaml:"chunk_size"`
	ChunkOverlap       int  `yaml:"chunk_overlap"`
	EmbeddingBatchSize int  `yaml:"embedding_batch_size"`
	EmbedAttempts      uint `yaml:"embed_attempts"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// SessionConfig TTL 为 0 时会话永不过期
type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Init 加载 .env 与配置文件，结果写入 Cfg
func Init(path string) error {
	// .env 不存在时忽略
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv(envConfigPath)
	}
	if path == "" {
		path = DefaultPath
	}

	cfg, err := Load(path)
	if err != nil {
		return err
	}
	Cfg = cfg
	return nil
}

// Load 读取配置文件；文件不存在时返回默认配置。环境变量优先于文件中的模型凭证。
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file %s: %v", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %v", path, err)
		}
	}

	if key := os.Getenv(envOpenAIAPIKey); key != "" {
		cfg.Model.APIKey = key
	}
	if baseURL := os.Getenv(envOpenAIBaseURL); baseURL != "" {
		cfg.Model.BaseURL = baseURL
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 60 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 300 * time.Second
	}
	if len(cfg.Server.AllowOrigins) == 0 {
		cfg.Server.AllowOrigins = []string{"*"}
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 32 << 20
	}

	if cfg.Model.BaseURL == "" {
		cfg.Model.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model.ChatModel == "" {
		cfg.Model.ChatModel = "gpt-4o-mini"
	}
	if cfg.Model.EmbeddingModel == "" {
		cfg.Model.EmbeddingModel = "text-embedding-3-large"
	}
	if cfg.Model.Timeout == 0 {
		cfg.Model.Timeout = 120 * time.Second
	}

	if cfg.Document.ChunkSize == 0 {
		cfg.Document.ChunkSize = 1000
	}
	if cfg.Document.ChunkOverlap == 0 {
		cfg.Document.ChunkOverlap = 200
	}
	if cfg.Document.EmbeddingBatchSize == 0 {
		cfg.Document.EmbeddingBatchSize = 64
	}
	if cfg.Document.EmbedAttempts == 0 {
		cfg.Document.EmbedAttempts = 3
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
