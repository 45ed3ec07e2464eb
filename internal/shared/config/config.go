package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/reshetovitsme/notify-relay/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

type Config struct {
	TelegramBotToken string  `koanf:"telegram_bot_token"`
	TelegramAPIURL   string  `koanf:"telegram_api_url"`
	StoragePath      string  `koanf:"storage_path"`
	HTTPPort         string  `koanf:"http_port"`
	PublishPath      string  `koanf:"publish_path"`
	WebhookPath      string  `koanf:"webhook_path"`
	WebhookURL       string  `koanf:"webhook_url"`
	WebhookSecret    string  `koanf:"webhook_secret"`
	SendRate         float64 `koanf:"send_rate"`
	FeedSize         int     `koanf:"feed_size"`
	SaveSchedule     string  `koanf:"save_schedule"`
	LogLevel         string  `koanf:"log_level"`
	AppEnv           AppEnv  `koanf:"app_env"`
}

// DefaultFiles are probed in order; the first one that exists is loaded.
var DefaultFiles = []string{
	"config.yaml",
	"config.yml",
	"config.json",
	"config.toml",
}

func Load() (*Config, error) {
	return LoadFrom(DefaultFiles...)
}

// LoadFrom reads the first existing file of configFiles, overlays environment
// variables and fills defaults. The bot token is not checked here so that
// offline commands can run without it; see RequireBotToken.
func LoadFrom(configFiles ...string) (*Config, error) {
	k := koanf.New(".")

	configFile, found := lo.Find(configFiles, func(file string) bool {
		_, err := os.Stat(file)
		return err == nil
	})

	if found {
		var parser koanf.Parser
		ext := filepath.Ext(configFile)

		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		case ".toml":
			parser = toml.Parser()
		default:
			return nil, oops.Errorf("unsupported config file extension: %s", ext)
		}

		if err := k.Load(file.Provider(configFile), parser); err != nil {
			return nil, oops.With("config_file", configFile).Wrap(err)
		}
	}

	// Environment variables override file values: TELEGRAM_BOT_TOKEN -> telegram_bot_token
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(s)
	}), nil); err != nil {
		return nil, oops.With("context", "loading environment variables").Wrap(err)
	}

	defaults := map[string]any{
		"telegram_api_url": "https://api.telegram.org",
		"storage_path":     "./data",
		"http_port":        "8080",
		"publish_path":     "/bot/api/publish",
		"webhook_path":     "/bot/api/telegram",
		"send_rate":        25,
		"feed_size":        50,
		"save_schedule":    "@every 10m",
		"app_env":          "production",
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.With("context", "unmarshaling config").Wrap(err)
	}

	if appEnv, err := ParseAppEnv(k.String("app_env")); err == nil {
		cfg.AppEnv = appEnv
	} else {
		slog.Warn("Unknown app_env, falling back to production", "app_env", k.String("app_env"))
		cfg.AppEnv = AppEnvProduction
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	port, err := strconv.Atoi(c.HTTPPort)
	if err != nil {
		return oops.With("http_port", c.HTTPPort).Wrap(errors.Configuration(fmt.Errorf("http_port is not an integer")))
	}
	if port < 0 || port > 65535 {
		return oops.With("http_port", port).Wrap(errors.Configuration(fmt.Errorf("http_port is out of bounds [0, 65535]")))
	}
	if !strings.HasPrefix(c.PublishPath, "/") || !strings.HasPrefix(c.WebhookPath, "/") {
		return errors.Configuration(fmt.Errorf("publish_path and webhook_path must start with /"))
	}
	if c.SendRate <= 0 {
		return oops.With("send_rate", c.SendRate).Wrap(errors.Configuration(fmt.Errorf("send_rate must be positive")))
	}
	if c.FeedSize < 0 {
		return oops.With("feed_size", c.FeedSize).Wrap(errors.Configuration(fmt.Errorf("feed_size must not be negative")))
	}
	return nil
}

// RequireBotToken reports ErrMissingBotToken when the bot cannot be started.
func (c *Config) RequireBotToken() error {
	if c.TelegramBotToken == "" {
		return errors.ErrMissingBotToken
	}
	return nil
}

// ChannelsPath is the folder holding one record file per channel.
func (c *Config) ChannelsPath() string {
	return filepath.Join(c.StoragePath, "channels")
}

// SlogLevel maps log_level to a slog level. Without an explicit level,
// local and development environments log at debug.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if c.AppEnv == AppEnvDevelopment || c.AppEnv == AppEnvLocal {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// MessagesPath is the folder holding the publish history of every channel.
func (c *Config) MessagesPath() string {
	return filepath.Join(c.StoragePath, "messages")
}
