package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName        string `mapstructure:"app_name"`
	Env            string `mapstructure:"app_env"`
	LogLevel       string `mapstructure:"log_level"`
	ChannelsFile   string `mapstructure:"channels_file"`
	PublishersFile string `mapstructure:"publishers_file"`
	MetricsAddr    string `mapstructure:"metrics_addr"`

	StorageType           string        `mapstructure:"storage_type"`
	BBoltPath             string        `mapstructure:"bbolt_path"`
	SQLitePath            string        `mapstructure:"sqlite_path"`
	LedgerRetentionSecs   int64         `mapstructure:"ledger_retention_seconds"`
	LedgerCleanupSecs     int64         `mapstructure:"ledger_cleanup_interval_seconds"`
	LedgerRetention       time.Duration `mapstructure:"-"`
	LedgerCleanupInterval time.Duration `mapstructure:"-"`

	FlushWindowSecs   int64         `mapstructure:"flush_window_seconds"`
	StaleGroupSecs    int64         `mapstructure:"stale_group_seconds"`
	SweepIntervalSecs int64         `mapstructure:"sweep_interval_seconds"`
	FlushWindow       time.Duration `mapstructure:"-"`
	StaleGroupAfter   time.Duration `mapstructure:"-"`
	SweepInterval     time.Duration `mapstructure:"-"`

	MarkupPercent      float64       `mapstructure:"markup_percent"`
	PublishAttempts    int           `mapstructure:"publish_attempts"`
	PublishBackoffMs   int64         `mapstructure:"publish_backoff_ms"`
	PublishBackoff     time.Duration `mapstructure:"-"`
	DefaultCaption     string        `mapstructure:"default_caption"`
	AttributionEnabled bool          `mapstructure:"attribution_enabled"`

	TelegramBotToken    string        `mapstructure:"telegram_bot_token"`
	DestinationChatID   int64         `mapstructure:"destination_chat_id"`
	SendRatePerMinute   int           `mapstructure:"telegram_send_rate_per_minute"`
	MediaMaxBytes       int64         `mapstructure:"media_max_bytes"`
	DownloadTimeoutSecs int64         `mapstructure:"download_timeout_seconds"`
	DownloadTimeout     time.Duration `mapstructure:"-"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "channel-relay")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("channels_file", "./configs/channels.yaml")
	v.SetDefault("publishers_file", "")
	v.SetDefault("metrics_addr", "")

	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/ledger.db")
	v.SetDefault("sqlite_path", "./data/ledger.sqlite")
	v.SetDefault("ledger_retention_seconds", int64((30*24*time.Hour)/time.Second))
	v.SetDefault("ledger_cleanup_interval_seconds", int64((12*time.Hour)/time.Second))

	v.SetDefault("flush_window_seconds", 15)
	v.SetDefault("stale_group_seconds", 300)
	v.SetDefault("sweep_interval_seconds", 60)

	v.SetDefault("markup_percent", 17.0)
	v.SetDefault("publish_attempts", 3)
	v.SetDefault("publish_backoff_ms", 1000)
	v.SetDefault("default_caption", "New product available")
	v.SetDefault("attribution_enabled", false)

	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("destination_chat_id", 0)
	v.SetDefault("telegram_send_rate_per_minute", 20)
	v.SetDefault("media_max_bytes", int64(20*1024*1024))
	v.SetDefault("download_timeout_seconds", 60)
}

// finalize validates raw values and derives durations.
func (cfg *Config) finalize() error {
	if strings.TrimSpace(cfg.TelegramBotToken) == "" {
		return fmt.Errorf("telegram_bot_token is required")
	}
	if cfg.DestinationChatID == 0 {
		return fmt.Errorf("destination_chat_id is required")
	}

	if cfg.LedgerRetentionSecs <= 0 {
		return fmt.Errorf("invalid ledger_retention_seconds (must be positive seconds)")
	}
	if cfg.LedgerCleanupSecs <= 0 {
		return fmt.Errorf("invalid ledger_cleanup_interval_seconds (must be positive seconds)")
	}
	cfg.LedgerRetention = time.Duration(cfg.LedgerRetentionSecs) * time.Second
	cfg.LedgerCleanupInterval = time.Duration(cfg.LedgerCleanupSecs) * time.Second

	if cfg.FlushWindowSecs <= 0 {
		return fmt.Errorf("invalid flush_window_seconds (must be positive seconds)")
	}
	if cfg.StaleGroupSecs <= cfg.FlushWindowSecs {
		return fmt.Errorf("invalid stale_group_seconds (must exceed flush_window_seconds)")
	}
	if cfg.SweepIntervalSecs <= 0 {
		return fmt.Errorf("invalid sweep_interval_seconds (must be positive seconds)")
	}
	cfg.FlushWindow = time.Duration(cfg.FlushWindowSecs) * time.Second
	cfg.StaleGroupAfter = time.Duration(cfg.StaleGroupSecs) * time.Second
	cfg.SweepInterval = time.Duration(cfg.SweepIntervalSecs) * time.Second

	if cfg.MarkupPercent < 0 {
		return fmt.Errorf("invalid markup_percent (must not be negative)")
	}
	if cfg.PublishAttempts <= 0 {
		return fmt.Errorf("invalid publish_attempts (must be positive)")
	}
	if cfg.PublishBackoffMs < 0 {
		return fmt.Errorf("invalid publish_backoff_ms (must not be negative)")
	}
	cfg.PublishBackoff = time.Duration(cfg.PublishBackoffMs) * time.Millisecond

	if cfg.SendRatePerMinute <= 0 {
		return fmt.Errorf("invalid telegram_send_rate_per_minute (must be positive)")
	}
	if cfg.MediaMaxBytes <= 0 {
		return fmt.Errorf("invalid media_max_bytes (must be positive)")
	}
	if cfg.DownloadTimeoutSecs <= 0 {
		return fmt.Errorf("invalid download_timeout_seconds (must be positive seconds)")
	}
	cfg.DownloadTimeout = time.Duration(cfg.DownloadTimeoutSecs) * time.Second

	return nil
}
