package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
)

const (
	DefaultBaseURL        = "http://127.0.0.1:8000/api"
	DefaultTimeoutSeconds = 300
	DefaultListLimit      = 100
	DefaultClearDelayMS   = 3000
	DefaultRefreshSpec    = "@every 15s"
)

type Config struct {
	API       APIConfig        `json:"api"`
	KVStore   StoreConfig      `json:"kv_store"`
	Upload    UploadConfig     `json:"upload"`
	Chat      ChatConfig       `json:"chat"`
	Export    StoreConfig      `json:"export"`
	Watch     WatchConfig      `json:"watch"`
	LogConfig logger.LogConfig `json:"log_config"`
}

type APIConfig struct {
	BaseURL        string `json:"base_url" validate:"required,url"`
	TimeoutSeconds int    `json:"timeout_seconds" validate:"gte=0"`
	ListLimit      int    `json:"list_limit" validate:"gte=1,lte=1000"`
}

// StoreConfig selects a pluggable backend by name; Data is decoded by the
// backend's own factory.
type StoreConfig struct {
	Type string                 `json:"type" validate:"required"`
	Data map[string]interface{} `json:"data"`
}

type UploadConfig struct {
	ClearDelayMS int  `json:"clear_delay_ms" validate:"gte=0"`
	Concurrency  int  `json:"concurrency" validate:"gte=1,lte=16"`
	ValidatePDF  bool `json:"validate_pdf"`
}

type ChatConfig struct {
	TrackConversations     bool `json:"track_conversations"`
	ConversationCacheSize  int  `json:"conversation_cache_size" validate:"gte=1"`
	ConversationTTLMinutes int  `json:"conversation_ttl_minutes" validate:"gte=1"`
}

type WatchConfig struct {
	Extensions  []string `json:"extensions" validate:"min=1,dive,startswith=."`
	RefreshSpec string   `json:"refresh_spec" validate:"required"`
}

// Load reads path (optional), applies .env and DOCUQUERY_* overrides, fills
// defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	_ = godotenv.Load()
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	switch cfg.KVStore.Type {
	case "memory", "file", "postgres":
	default:
		return nil, fmt.Errorf("kv_store.type must be memory, file or postgres")
	}
	switch cfg.Export.Type {
	case "local", "s3":
	default:
		return nil, fmt.Errorf("export.type must be local or s3")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DOCUQUERY_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("DOCUQUERY_API_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("DOCUQUERY_KV_TYPE"); v != "" {
		cfg.KVStore.Type = v
	}
	if v := os.Getenv("DOCUQUERY_KV_DIR"); v != "" {
		if cfg.KVStore.Data == nil {
			cfg.KVStore.Data = map[string]interface{}{}
		}
		cfg.KVStore.Data["dir"] = v
	}
	if v := os.Getenv("DOCUQUERY_LOG_LEVEL"); v != "" {
		cfg.LogConfig.Level = v
	}
}

func applyDefaults(cfg *Config) {
	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.API.BaseURL), "/")
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultBaseURL
	}
	if cfg.API.TimeoutSeconds == 0 {
		cfg.API.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if cfg.API.TimeoutSeconds < 0 {
		// negative disables the timeout
		cfg.API.TimeoutSeconds = 0
	}
	if cfg.API.ListLimit == 0 {
		cfg.API.ListLimit = DefaultListLimit
	}
	if cfg.KVStore.Type == "" {
		cfg.KVStore.Type = "file"
	}
	if cfg.KVStore.Type == "file" {
		if cfg.KVStore.Data == nil {
			cfg.KVStore.Data = map[string]interface{}{}
		}
		if _, ok := cfg.KVStore.Data["dir"]; !ok {
			cfg.KVStore.Data["dir"] = defaultDataDir()
		}
	}
	if cfg.Upload.ClearDelayMS == 0 {
		cfg.Upload.ClearDelayMS = DefaultClearDelayMS
	}
	if cfg.Upload.ClearDelayMS < 0 {
		cfg.Upload.ClearDelayMS = 0
	}
	if cfg.Upload.Concurrency == 0 {
		cfg.Upload.Concurrency = 1
	}
	if cfg.Chat.ConversationCacheSize == 0 {
		cfg.Chat.ConversationCacheSize = 256
	}
	if cfg.Chat.ConversationTTLMinutes == 0 {
		cfg.Chat.ConversationTTLMinutes = 720
	}
	if cfg.Export.Type == "" {
		cfg.Export.Type = "local"
	}
	if cfg.Export.Type == "local" {
		if cfg.Export.Data == nil {
			cfg.Export.Data = map[string]interface{}{}
		}
		if _, ok := cfg.Export.Data["dir"]; !ok {
			cfg.Export.Data["dir"] = "exports"
		}
	}
	if len(cfg.Watch.Extensions) == 0 {
		cfg.Watch.Extensions = []string{".pdf"}
	}
	if cfg.Watch.RefreshSpec == "" {
		cfg.Watch.RefreshSpec = DefaultRefreshSpec
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.LogConfig.File == "" {
		cfg.LogConfig.Console = true
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return dir + string(os.PathSeparator) + "docuquery"
	}
	return ".docuquery"
}
