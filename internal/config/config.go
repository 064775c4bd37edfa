package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

// ChatProvider names the chat service the bot connects to.
type ChatProvider string

const (
	ProviderSlack    ChatProvider = "slack"
	ProviderTelegram ChatProvider = "telegram"
)

// SearchBackend names the index implementation.
type SearchBackend string

const (
	BackendElasticsearch SearchBackend = "elasticsearch"
	BackendSQLite        SearchBackend = "sqlite"
)

// Config is the process configuration read from the environment.
type Config struct {
	// Chat transport
	ChatProvider     ChatProvider `env:"CHAT_PROVIDER" envDefault:"slack"`
	SlackToken       string       `env:"SLACK_TOKEN"`
	SlackAPIURL      string       `env:"SLACK_API_URL" envDefault:"https://slack.com/api/"`
	TelegramBotToken string       `env:"TELEGRAM_BOT_TOKEN"`

	// Reconnect and posting
	ReconnectDelay time.Duration `env:"RECONNECT_DELAY" envDefault:"1s"`
	PostRate       float64       `env:"POST_RATE" envDefault:"1"`
	PostBurst      int           `env:"POST_BURST" envDefault:"3"`

	// Search backend
	SearchBackend SearchBackend `env:"SEARCH_BACKEND" envDefault:"elasticsearch"`
	ESURL         string        `env:"ES_URL" envDefault:"http://localhost:9200"`
	ESIndex       string        `env:"ES_INDEX" envDefault:"slack"`
	ESType        string        `env:"ES_TYPE" envDefault:"log"`
	SQLitePath    string        `env:"SQLITE_PATH" envDefault:"data/index.db"`
	SearchTimeout time.Duration `env:"SEARCH_TIMEOUT" envDefault:"30s"`

	// Commands
	PageSize    int `env:"PAGE_SIZE" envDefault:"10"`
	MaxPageSize int `env:"MAX_PAGE_SIZE" envDefault:"100"`

	// Storage
	LogFilePath string `env:"LOG_FILE_PATH" envDefault:"logs/slack-log"`
	Timezone    string `env:"TIMEZONE" envDefault:"Local"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSearch parses the environment for tools that only query the index.
func LoadSearch() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.ValidateSearch(); err != nil {
		return nil, err
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// New is Load for process startup: any error is fatal.
func New() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

func (c *Config) Validate() error {
	switch c.ChatProvider {
	case ProviderSlack:
		if c.SlackToken == "" {
			return fmt.Errorf("SLACK_TOKEN is required for chat provider %q", c.ChatProvider)
		}
	case ProviderTelegram:
		if c.TelegramBotToken == "" {
			return fmt.Errorf("TELEGRAM_BOT_TOKEN is required for chat provider %q", c.ChatProvider)
		}
	default:
		return fmt.Errorf("unknown chat provider: %s", c.ChatProvider)
	}
	if err := c.ValidateSearch(); err != nil {
		return err
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be positive, got %d", c.PageSize)
	}
	if c.MaxPageSize < c.PageSize {
		return fmt.Errorf("MAX_PAGE_SIZE (%d) must not be below PAGE_SIZE (%d)", c.MaxPageSize, c.PageSize)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// ValidateSearch checks only the search settings. The search CLI and the MCP
// server need no chat credentials.
func (c *Config) ValidateSearch() error {
	switch c.SearchBackend {
	case BackendElasticsearch, BackendSQLite:
		return nil
	default:
		return fmt.Errorf("unknown search backend: %s", c.SearchBackend)
	}
}

// Location resolves Timezone; "Local" and "" mean the process zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
