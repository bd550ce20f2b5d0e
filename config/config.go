package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Database      DatabaseConfig      `yaml:"database"`
	Account       AccountConfig       `yaml:"account"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Sync          SyncConfig          `yaml:"sync"`
	Security      SecurityConfig      `yaml:"security"`
	Speech        SpeechConfig        `yaml:"speech"`
	Audio         AudioConfig         `yaml:"audio"`
	OpenAI        OpenAIConfig        `yaml:"openai"`
	Tuya          TuyaConfig          `yaml:"tuya"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Pushover      PushoverConfig      `yaml:"pushover"`
	Log           LogConfig           `yaml:"log"`
}

type HTTPConfig struct {
	Addr      string  `yaml:"addr"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
	CacheTTL  string  `yaml:"cache_ttl"`
}

type DatabaseConfig struct {
	// DSN selects the driver: postgres:// and postgresql:// URLs use
	// postgres, anything else is a sqlite file path or URI.
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
}

type AccountConfig struct {
	ID string `yaml:"id"`
}

type CatalogConfig struct {
	Path string `yaml:"path"`
}

type SyncConfig struct {
	// Backend is "sql" (canonical records in the database), "tuya" or
	// "homeassistant".
	Backend  string `yaml:"backend"`
	Cooldown string `yaml:"cooldown"`
	MaxRuns  int    `yaml:"max_runs"`
	Window   string `yaml:"window"`
	Interval string `yaml:"interval"`
}

type SecurityConfig struct {
	AutoShutdown bool     `yaml:"auto_shutdown"`
	Countdown    string   `yaml:"countdown"`
	Exceptions   []string `yaml:"exceptions"`
}

type SpeechConfig struct {
	ListenTimeout   string `yaml:"listen_timeout"`
	FallbackRetries int    `yaml:"fallback_retries"`
	FallbackCommand string `yaml:"fallback_command"`
	FallbackVoice   string `yaml:"fallback_voice"`
}

type AudioConfig struct {
	// Source is "none", "file" or "microphone".
	Source     string `yaml:"source"`
	FileDir    string `yaml:"file_dir"`
	WakeWord   string `yaml:"wake_word"`
	SampleRate int    `yaml:"sample_rate"`
}

type OpenAIConfig struct {
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Language string `yaml:"language"`
	TTSModel string `yaml:"tts_model"`
	TTSVoice string `yaml:"tts_voice"`
}

type TuyaConfig struct {
	ClientID string `yaml:"client_id"`
	Secret   string `yaml:"secret"`
	Region   string `yaml:"region"`
}

type HomeAssistantConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

type PushoverConfig struct {
	Token     string `yaml:"token"`
	UserKey   string `yaml:"user_key"`
	Enabled   bool   `yaml:"enabled"`
	Workers   int    `yaml:"workers"`
	QueueSize int    `yaml:"queue_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

// Default is the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

func (c *Config) setDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.RateLimit == 0 {
		c.HTTP.RateLimit = 10
	}
	if c.HTTP.RateBurst == 0 {
		c.HTTP.RateBurst = 5
	}
	if c.HTTP.CacheTTL == "" {
		c.HTTP.CacheTTL = "30s"
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "solarcore.db"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == "" {
		c.Database.ConnMaxLifetime = "30m"
	}
	if c.Account.ID == "" {
		c.Account.ID = "default"
	}
	if c.Sync.Backend == "" {
		c.Sync.Backend = "sql"
	}
	if c.Sync.Cooldown == "" {
		c.Sync.Cooldown = "5s"
	}
	if c.Sync.MaxRuns == 0 {
		c.Sync.MaxRuns = 10
	}
	if c.Sync.Window == "" {
		c.Sync.Window = "1m"
	}
	if c.Sync.Interval == "" {
		c.Sync.Interval = "5m"
	}
	if c.Security.Countdown == "" {
		c.Security.Countdown = "10m"
	}
	if c.Speech.ListenTimeout == "" {
		c.Speech.ListenTimeout = "8s"
	}
	if c.Speech.FallbackRetries == 0 {
		c.Speech.FallbackRetries = 2
	}
	if c.Speech.FallbackCommand == "" {
		c.Speech.FallbackCommand = "espeak-ng"
	}
	if c.Audio.Source == "" {
		c.Audio.Source = "none"
	}
	if c.Audio.FileDir == "" {
		c.Audio.FileDir = "./audio"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.OpenAI.Language == "" {
		c.OpenAI.Language = "en"
	}
	if c.OpenAI.TTSModel == "" {
		c.OpenAI.TTSModel = "tts-1"
	}
	if c.OpenAI.TTSVoice == "" {
		c.OpenAI.TTSVoice = "alloy"
	}
	if c.Tuya.Region == "" {
		c.Tuya.Region = "us"
	}
	if c.HomeAssistant.URL == "" {
		c.HomeAssistant.URL = "http://homeassistant.local:8123"
	}
	if c.Pushover.Workers == 0 {
		c.Pushover.Workers = 2
	}
	if c.Pushover.QueueSize == 0 {
		c.Pushover.QueueSize = 32
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Duration parses a duration setting. An invalid value is logged and the
// fallback used instead.
func Duration(logger *slog.Logger, name, value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn("invalid duration, using default", "setting", name, "value", value, "default", fallback, "error", err)
		return fallback
	}
	return d
}
