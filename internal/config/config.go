// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type ProvidersConfig struct {
	OpenAIKey     string `yaml:"openai_key"`
	StabilityKey  string `yaml:"stability_key"`
	ElevenKey     string `yaml:"elevenlabs_key"`
	GeminiKey     string `yaml:"gemini_key"`
	GeminiBaseURL string `yaml:"gemini_base_url"`
	VeoModel      string `yaml:"veo_model"`

	// Fixed priority order per feature; the first entry is the primary
	// path, later entries are pure fallbacks.
	ImageOrder []string `yaml:"image_order"`
	VoiceOrder []string `yaml:"voice_order"`
	VideoOrder []string `yaml:"video_order"`
	EditOrder  []string `yaml:"edit_order"`

	ConcurrentLimit int           `yaml:"concurrent_limit"` // max concurrent calls per provider
	ImageTimeout    time.Duration `yaml:"image_timeout"`
	VoiceTimeout    time.Duration `yaml:"voice_timeout"`
	VideoTimeout    time.Duration `yaml:"video_timeout"`
}

type ModerationConfig struct {
	OpenAIKey string `yaml:"openai_key"`
	Model     string `yaml:"model"`
}

type StorageConfig struct {
	Backend  string `yaml:"backend"` // filesystem | supabase
	BasePath string `yaml:"base_path"`
	BaseURL  string `yaml:"base_url"`

	SupabaseURL    string `yaml:"supabase_url"`
	SupabaseKey    string `yaml:"supabase_key"`
	SupabaseBucket string `yaml:"supabase_bucket"`
}

type CacheConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	MaxTotalBytes   int64         `yaml:"max_total_bytes"`
	EvictFraction   float64       `yaml:"evict_fraction"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
	HotEntryTTL     time.Duration `yaml:"hot_entry_ttl"`
}

type QueueConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxPending   int           `yaml:"max_pending"` // admission ceiling for queued jobs
}

type DispatchConfig struct {
	VoiceDeferChars     int `yaml:"voice_defer_chars"`     // text longer than this goes to the queue
	ImageDeferPixels    int `yaml:"image_defer_pixels"`    // width*height above this goes to the queue
	BurstLimitPerMinute int `yaml:"burst_limit_per_minute"`
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Moderation ModerationConfig `yaml:"moderation"`
	Storage    StorageConfig    `yaml:"storage"`
	Cache      CacheConfig      `yaml:"cache"`
	Queue      QueueConfig      `yaml:"queue"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Providers.ConcurrentLimit <= 0 {
		cfg.Providers.ConcurrentLimit = 16
	}
	if cfg.Providers.ImageTimeout <= 0 {
		cfg.Providers.ImageTimeout = 45 * time.Second
	}
	if cfg.Providers.VoiceTimeout <= 0 {
		cfg.Providers.VoiceTimeout = 30 * time.Second
	}
	if cfg.Providers.VideoTimeout <= 0 {
		cfg.Providers.VideoTimeout = 5 * time.Minute
	}
	if cfg.Providers.VeoModel == "" {
		cfg.Providers.VeoModel = "veo-2.0-generate-001"
	}
	if cfg.Moderation.Model == "" {
		cfg.Moderation.Model = "omni-moderation-latest"
	}
	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = 24 * time.Hour
	}
	if cfg.Cache.MaxTotalBytes <= 0 {
		cfg.Cache.MaxTotalBytes = 10 << 30 // 10 GiB
	}
	if cfg.Cache.EvictFraction <= 0 || cfg.Cache.EvictFraction >= 1 {
		cfg.Cache.EvictFraction = 0.10
	}
	if cfg.Cache.JanitorInterval <= 0 {
		cfg.Cache.JanitorInterval = 15 * time.Minute
	}
	if cfg.Cache.HotEntryTTL <= 0 {
		cfg.Cache.HotEntryTTL = 5 * time.Minute
	}
	if cfg.Queue.Workers <= 0 {
		cfg.Queue.Workers = 3
	}
	if cfg.Queue.PollInterval <= 0 {
		cfg.Queue.PollInterval = 500 * time.Millisecond
	}
	if cfg.Queue.MaxPending <= 0 {
		cfg.Queue.MaxPending = 256
	}
	if cfg.Dispatch.VoiceDeferChars <= 0 {
		cfg.Dispatch.VoiceDeferChars = 500
	}
	if cfg.Dispatch.ImageDeferPixels <= 0 {
		cfg.Dispatch.ImageDeferPixels = 1024 * 1024
	}
	if cfg.Dispatch.BurstLimitPerMinute <= 0 {
		cfg.Dispatch.BurstLimitPerMinute = 10
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "filesystem"
	}
	if len(cfg.Providers.ImageOrder) == 0 {
		cfg.Providers.ImageOrder = []string{"openai-image", "stability-image"}
	}
	if len(cfg.Providers.VoiceOrder) == 0 {
		cfg.Providers.VoiceOrder = []string{"elevenlabs", "openai-voice"}
	}
	if len(cfg.Providers.VideoOrder) == 0 {
		cfg.Providers.VideoOrder = []string{"veo"}
	}
	if len(cfg.Providers.EditOrder) == 0 {
		cfg.Providers.EditOrder = []string{"stability-edit"}
	}
	if cfg.Storage.BasePath == "" {
		cfg.Storage.BasePath = "./data/artifacts"
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Storage.Backend == "supabase" && (cfg.Storage.SupabaseURL == "" || cfg.Storage.SupabaseKey == "") {
		return nil, errors.New("storage.supabase_url and storage.supabase_key are required for the supabase backend")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
