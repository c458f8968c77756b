package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	DataSource struct {
		Provider  string `yaml:"provider"` // yahoo, rest or mock
		BaseURL   string `yaml:"base_url"`
		APIKey    string `yaml:"api_key"`
		Symbol    string `yaml:"symbol"`
		MockPrice string `yaml:"mock_price"`
	} `yaml:"data_source"`
	Schedule struct {
		Period        time.Duration `yaml:"period"`
		CooldownTicks int           `yaml:"cooldown_ticks"`
		FetchTimeout  time.Duration `yaml:"fetch_timeout"`
		RunOnStart    *bool         `yaml:"run_on_start"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PRICEWATCH_SYMBOL"); v != "" {
		c.DataSource.Symbol = v
	}
	if v := os.Getenv("PRICEWATCH_PROVIDER"); v != "" {
		c.DataSource.Provider = v
	}
	if v := os.Getenv("QUOTE_BASE_URL"); v != "" {
		c.DataSource.BaseURL = v
	}
	if v := os.Getenv("QUOTE_API_KEY"); v != "" {
		c.DataSource.APIKey = v
	}
	if v := os.Getenv("PRICEWATCH_PERIOD"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PRICEWATCH_PERIOD: %w", err)
		}
		c.Schedule.Period = d
	}
	if v := os.Getenv("PRICEWATCH_COOLDOWN_TICKS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PRICEWATCH_COOLDOWN_TICKS: %w", err)
		}
		c.Schedule.CooldownTicks = n
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DataSource.Provider == "" {
		if c.DataSource.BaseURL != "" {
			c.DataSource.Provider = "rest"
		} else {
			c.DataSource.Provider = "yahoo"
		}
	}
	if c.DataSource.Symbol == "" {
		c.DataSource.Symbol = "^DJI"
	}
	if c.DataSource.MockPrice == "" {
		c.DataSource.MockPrice = "100"
	}
	if c.Schedule.Period == 0 {
		c.Schedule.Period = 60 * time.Second
	}
	if c.Schedule.CooldownTicks == 0 {
		c.Schedule.CooldownTicks = 5
	}
	if c.Schedule.FetchTimeout == 0 {
		c.Schedule.FetchTimeout = 30 * time.Second
	}
	if c.Schedule.RunOnStart == nil {
		on := true
		c.Schedule.RunOnStart = &on
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
}

// TelegramEnabled reports whether both Telegram credentials are set.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	switch c.DataSource.Provider {
	case "yahoo", "mock":
	case "rest":
		if c.DataSource.BaseURL == "" {
			return fmt.Errorf("data_source.base_url is required for the rest provider")
		}
	default:
		return fmt.Errorf("data_source.provider %q is not one of yahoo, rest, mock", c.DataSource.Provider)
	}
	if c.Schedule.Period < time.Second {
		return fmt.Errorf("schedule.period must be at least 1s, got %s", c.Schedule.Period)
	}
	if c.Schedule.CooldownTicks < 0 {
		return fmt.Errorf("schedule.cooldown_ticks must not be negative")
	}
	if c.Schedule.FetchTimeout <= 0 {
		return fmt.Errorf("schedule.fetch_timeout must be positive")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}
