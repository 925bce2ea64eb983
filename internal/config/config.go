package config

import (
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/tw20th/kangaroo-post-sub000/pkg/logger"
)

const (
	defaultTimezone    = "Asia/Tokyo"
	fallbackTimezone   = "UTC"
	configPathEnv      = "KANGAROO_CONFIG"
	databaseDriverEnv  = "DATABASE_DRIVER"
	databaseDSNEnv     = "DATABASE_DSN"
	chatGPTAPIKeyEnv   = "CHATGPT_API_KEY"
	chatGPTModelEnv    = "CHATGPT_MODEL"
	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv  = "TELEGRAM_CHAT_ID"
	telemetryAPIKeyEnv = "TELEMETRY_API_KEY"
	logLevelEnv        = "LOG_LEVEL"

	defaultConcurrency      = 2
	defaultMaxAttempts      = 3
	defaultAvoidWindowHours = 24
)

var log = logger.New("config")

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Selection     SelectionConfig    `yaml:"selection"`
	Telemetry     TelemetryConfig    `yaml:"telemetry"`
	Notifications NotificationConfig `yaml:"notifications"`
	ChatGPT       ChatGPTConfig      `yaml:"chatgpt"`
	Logging       LoggingConfig      `yaml:"logging"`
	Sites         []SiteConfig       `yaml:"sites"`
}

// DatabaseConfig selects the record store ("postgres" or "sqlite").
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// SchedulerConfig defines when and how the batch cycle runs.
type SchedulerConfig struct {
	CronExpression string `yaml:"cronExpression"`
	Timezone       string `yaml:"timezone"`

	// Daemon keeps the process alive and runs the cycle on CronExpression.
	Daemon bool `yaml:"daemon"`

	// Concurrency bounds how many sites are processed in parallel.
	Concurrency int `yaml:"concurrency"`

	// MaxAttempts bounds picks per scope when content generation fails.
	MaxAttempts int `yaml:"maxAttempts"`

	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	return time.UTC
}

// SelectionConfig tunes the topic scheduler. Zero values mean "keep the
// default": a zero avoid window or exploit probability cannot be configured.
// Use a negative AvoidWindowHours to disable the cooldown.
type SelectionConfig struct {
	// AvoidWindowHours is the cooldown; negative disables it.
	AvoidWindowHours int `yaml:"avoidWindowHours"`

	TopN                int             `yaml:"topN"`
	ExploitProbabilityB float64         `yaml:"exploitProbabilityB"`
	ExploitProbabilityC float64         `yaml:"exploitProbabilityC"`
	Thresholds          ThresholdConfig `yaml:"thresholds"`
}

// AvoidWindow converts the configured hours to a duration.
func (s SelectionConfig) AvoidWindow() time.Duration {
	if s.AvoidWindowHours < 0 {
		return -1
	}
	return time.Duration(s.AvoidWindowHours) * time.Hour
}

// ThresholdConfig carries maturity and phase tuning; zero keeps the default.
type ThresholdConfig struct {
	SufficientImpressions float64 `yaml:"sufficientImpressions"`
	SufficientClicks      float64 `yaml:"sufficientClicks"`
	MatureImpressions     float64 `yaml:"matureImpressions"`
	MatureClicks          float64 `yaml:"matureClicks"`
	SufficientRatio       float64 `yaml:"sufficientRatio"`
	MatureCount           int     `yaml:"matureCount"`
}

// TelemetryConfig points at the search analytics feed.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// ChatGPTConfig defines how to contact the ChatGPT API.
type ChatGPTConfig struct {
	Endpoint          string `yaml:"endpoint"`
	Model             string `yaml:"model"`
	APIKey            string `yaml:"apiKey"`
	SystemPrompt      string `yaml:"systemPrompt"`
	RequestsPerMinute int    `yaml:"requestsPerMinute"`
}

// LoggingConfig selects the slog level and handler format ("text" or "json").
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SiteConfig describes one tenant site and the intents it publishes.
type SiteConfig struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Intents []string `yaml:"intents"`

	// GroupKeyPrefixes restricts an intent's pool to group keys with these prefixes.
	GroupKeyPrefixes map[string][]string `yaml:"groupKeyPrefixes"`

	// Themes maps a theme keyword to child group keys for guide/discover content.
	Themes map[string][]string `yaml:"themes"`

	// Seeds are upserted into the candidate store before each cycle.
	Seeds []SeedConfig `yaml:"seeds"`
}

// SeedConfig lists candidate keywords of one intent and provenance.
type SeedConfig struct {
	Intent   string   `yaml:"intent"`
	Source   string   `yaml:"source"`
	GroupKey string   `yaml:"groupKey"`
	Keywords []string `yaml:"keywords"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if fileCfg, err := readFile(path); err != nil {
			log.Printf("cannot load %s: %v (falling back to defaults)", path, err)
		} else {
			cfg = mergeConfig(cfg, fileCfg)
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()
	cfg.bindTimezone()

	if len(cfg.Sites) == 0 {
		cfg.Sites = defaultConfig().Sites
	}

	return cfg
}

func readFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return Config{}, err
	}
	return fileCfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(chatGPTAPIKeyEnv); v != "" {
		c.ChatGPT.APIKey = v
	}

	if v := os.Getenv(chatGPTModelEnv); v != "" {
		c.ChatGPT.Model = v
	}

	if v := os.Getenv(telemetryAPIKeyEnv); v != "" {
		c.Telemetry.APIKey = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) normalize() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Scheduler.Concurrency <= 0 {
		c.Scheduler.Concurrency = defaultConcurrency
	}
	if c.Scheduler.MaxAttempts <= 0 {
		c.Scheduler.MaxAttempts = defaultMaxAttempts
	}
	if c.ChatGPT.RequestsPerMinute < 0 {
		c.ChatGPT.RequestsPerMinute = 0
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("unknown timezone %s, reverting to %s", tz, fallbackTimezone)
		loc = time.UTC
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Database.Driver != "" {
		base.Database.Driver = override.Database.Driver
	}
	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}
	if override.Scheduler.Daemon {
		base.Scheduler.Daemon = true
	}
	if override.Scheduler.Concurrency != 0 {
		base.Scheduler.Concurrency = override.Scheduler.Concurrency
	}
	if override.Scheduler.MaxAttempts != 0 {
		base.Scheduler.MaxAttempts = override.Scheduler.MaxAttempts
	}

	base.Selection = mergeSelection(base.Selection, override.Selection)

	if override.Telemetry.Endpoint != "" {
		base.Telemetry.Endpoint = override.Telemetry.Endpoint
	}
	if override.Telemetry.APIKey != "" {
		base.Telemetry.APIKey = override.Telemetry.APIKey
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.ChatGPT.Endpoint != "" {
		base.ChatGPT.Endpoint = override.ChatGPT.Endpoint
	}
	if override.ChatGPT.Model != "" {
		base.ChatGPT.Model = override.ChatGPT.Model
	}
	if override.ChatGPT.APIKey != "" {
		base.ChatGPT.APIKey = override.ChatGPT.APIKey
	}
	if override.ChatGPT.SystemPrompt != "" {
		base.ChatGPT.SystemPrompt = override.ChatGPT.SystemPrompt
	}
	if override.ChatGPT.RequestsPerMinute != 0 {
		base.ChatGPT.RequestsPerMinute = override.ChatGPT.RequestsPerMinute
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if len(override.Sites) > 0 {
		base.Sites = override.Sites
	}

	return base
}

func mergeSelection(base, override SelectionConfig) SelectionConfig {
	if override.AvoidWindowHours != 0 {
		base.AvoidWindowHours = override.AvoidWindowHours
	}
	if override.TopN != 0 {
		base.TopN = override.TopN
	}
	if override.ExploitProbabilityB != 0 {
		base.ExploitProbabilityB = override.ExploitProbabilityB
	}
	if override.ExploitProbabilityC != 0 {
		base.ExploitProbabilityC = override.ExploitProbabilityC
	}

	th := override.Thresholds
	if th.SufficientImpressions != 0 {
		base.Thresholds.SufficientImpressions = th.SufficientImpressions
	}
	if th.SufficientClicks != 0 {
		base.Thresholds.SufficientClicks = th.SufficientClicks
	}
	if th.MatureImpressions != 0 {
		base.Thresholds.MatureImpressions = th.MatureImpressions
	}
	if th.MatureClicks != 0 {
		base.Thresholds.MatureClicks = th.MatureClicks
	}
	if th.SufficientRatio != 0 {
		base.Thresholds.SufficientRatio = th.SufficientRatio
	}
	if th.MatureCount != 0 {
		base.Thresholds.MatureCount = th.MatureCount
	}
	return base
}

func defaultConfig() Config {
	return Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "kangaroo.db"},
		Scheduler: SchedulerConfig{
			CronExpression: "0 6 * * *",
			Timezone:       defaultTimezone,
			Concurrency:    defaultConcurrency,
			MaxAttempts:    defaultMaxAttempts,
		},
		Selection: SelectionConfig{
			AvoidWindowHours:    defaultAvoidWindowHours,
			TopN:                5,
			ExploitProbabilityB: 0.5,
			ExploitProbabilityC: 0.8,
			Thresholds: ThresholdConfig{
				SufficientImpressions: 50,
				SufficientClicks:      5,
				MatureImpressions:     300,
				MatureClicks:          20,
				SufficientRatio:       0.5,
				MatureCount:           3,
			},
		},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{BotToken: "", ChatID: ""},
		},
		ChatGPT: ChatGPTConfig{
			Endpoint:          "https://api.openai.com/v1/chat/completions",
			Model:             "gpt-4o-mini",
			APIKey:            "",
			SystemPrompt:      "You are an editor writing helpful, accurate articles for a comparison blog.",
			RequestsPerMinute: 20,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Sites: []SiteConfig{
			{
				ID:      "kangaroo-rental",
				Name:    "Kangaroo Rental",
				Intents: []string{"service", "compare", "guide", "discover"},
			},
		},
	}
}
