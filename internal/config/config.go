// Package config provides configuration loading, validation, and management
// for moderabot. It reads a YAML file through viper, applies MODERABOT_*
// environment overrides, and validates the result with struct tags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. MODERABOT_DATABASE_PATH.
const EnvPrefix = "MODERABOT"

// ErrConfiguration wraps every loading and validation failure.
var ErrConfiguration = errors.New("configuration error")

// Config holds the complete application configuration.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Classifier  ClassifierConfig  `mapstructure:"classifier"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Messages    MessagesConfig    `mapstructure:"messages"`
	Quiz        QuizConfig        `mapstructure:"quiz"`
	Leaderboard LeaderboardConfig `mapstructure:"leaderboard"`
	Seed        SeedConfig        `mapstructure:"seed"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// TelegramConfig holds the Bot API transport settings shared by all bots.
type TelegramConfig struct {
	APIURL         string        `mapstructure:"api_url"         validate:"required,url"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"    validate:"min=0,max=50s"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"required,gtfield=PollTimeout"`
	UpdatesLimit   int           `mapstructure:"updates_limit"   validate:"min=1,max=100"`
}

// ClassifierConfig selects and tunes the toxicity classifier. The API key is per bot.
type ClassifierConfig struct {
	Provider    string        `mapstructure:"provider"    validate:"oneof=deepseek gemini"`
	BaseURL     string        `mapstructure:"base_url"    validate:"omitempty,url"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"     validate:"min=1s,max=5m"`
	Instruction string        `mapstructure:"instruction" validate:"required"`
}

// SchedulerConfig holds the tick and fan-out settings and the scheduled task table.
type SchedulerConfig struct {
	MaxParallelBots  int                   `mapstructure:"max_parallel_bots"  validate:"min=1"`
	MaxParallelChats int                   `mapstructure:"max_parallel_chats" validate:"min=1"`
	Tasks            map[string]TaskConfig `mapstructure:"tasks"              validate:"dive"`
}

// TaskConfig schedules one registered task. Interval jobs take precedence over cron schedules.
type TaskConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval" validate:"omitempty,min=1s"`
	Schedule string        `mapstructure:"schedule"`
}

// MessagesConfig holds every text the bots send back to chats.
type MessagesConfig struct {
	MenuLabel          string `mapstructure:"menu_label"           validate:"required"`
	TargetNotFound     string `mapstructure:"target_not_found"     validate:"required"`
	WindowExpired      string `mapstructure:"window_expired"       validate:"required"`
	AlreadyChecked     string `mapstructure:"already_checked"      validate:"required"`
	CannotReportBot    string `mapstructure:"cannot_report_bot"    validate:"required"`
	CannotSelfReport   string `mapstructure:"cannot_self_report"   validate:"required"`
	NothingToCheck     string `mapstructure:"nothing_to_check"     validate:"required"`
	ReportCredited     string `mapstructure:"report_credited"      validate:"required"`
	ReportPenalized    string `mapstructure:"report_penalized"     validate:"required"`
	CheckFailed        string `mapstructure:"check_failed"         validate:"required"`
	ToxicHeader        string `mapstructure:"toxic_header"         validate:"required"`
	KPIHeader          string `mapstructure:"kpi_header"           validate:"required"`
	NoToxicEntries     string `mapstructure:"no_toxic_entries"     validate:"required"`
	NoKPIEntries       string `mapstructure:"no_kpi_entries"       validate:"required"`
	UnknownUserDisplay string `mapstructure:"unknown_user_display" validate:"required"`
}

// QuizConfig is the poll sent by Quiz handlers.
type QuizConfig struct {
	Question     string   `mapstructure:"question"      validate:"required,max=300"`
	Options      []string `mapstructure:"options"       validate:"min=2,max=10,dive,required"`
	CorrectIndex int      `mapstructure:"correct_index" validate:"min=0"`
}

// LeaderboardConfig maps inline keyboard callback data to leaderboards.
type LeaderboardConfig struct {
	ToxicCallback string `mapstructure:"toxic_callback" validate:"required"`
	KPICallback   string `mapstructure:"kpi_callback"   validate:"required,nefield=ToxicCallback"`
}

// SeedConfig lists the bots and handlers upserted at startup.
type SeedConfig struct {
	Bots []SeedBot `mapstructure:"bots" validate:"dive"`
}

// SeedBot is one bot definition. Bots are matched by name.
type SeedBot struct {
	Name                 string        `mapstructure:"name"                   validate:"required"`
	Token                string        `mapstructure:"token"                  validate:"required"`
	Active               bool          `mapstructure:"active"`
	UsePolling           *bool         `mapstructure:"use_polling"`
	WebhookURL           string        `mapstructure:"webhook_url"            validate:"omitempty,url"`
	ClassifierAPIKey     string        `mapstructure:"classifier_api_key"`
	ToxicityCheckEnabled bool          `mapstructure:"toxicity_check_enabled"`
	Handlers             []SeedHandler `mapstructure:"handlers"               validate:"dive"`
}

// SeedHandler is one handler definition. Handlers are matched by (trigger, bot).
type SeedHandler struct {
	Trigger string `mapstructure:"trigger" validate:"required,excludesall=/"`
	Name    string `mapstructure:"name"`
	Type    string `mapstructure:"type"    validate:"oneof=Menu CheckingAMessageForToxicity Quiz"`
	Code    string `mapstructure:"code"    validate:"required_if=Type Menu,omitempty,json"`
	Text    string `mapstructure:"text"`
	Active  bool   `mapstructure:"active"`
}

// Polling reports whether the bot receives updates by long polling. Unset means yes.
func (b SeedBot) Polling() bool {
	return b.UsePolling == nil || *b.UsePolling
}

// LoadConfig reads configuration from the given YAML file, applies defaults for
// optional fields and environment overrides, and validates the result. A missing
// file is not an error; defaults and environment are used instead.
func LoadConfig(path string) (*Config, error) {
	startTime := time.Now()
	slog.Info("Loading configuration", "path", path)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: failed to read %s: %w", ErrConfiguration, path, err)
			}
			slog.Info("Configuration file not found, using defaults", "path", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse configuration: %w", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	slog.Info("Configuration loaded successfully",
		"log_level", cfg.Logger.Level,
		"db_path", cfg.Database.Path,
		"classifier", cfg.Classifier.Provider,
		"seed_bots", len(cfg.Seed.Bots),
		"duration_ms", time.Since(startTime).Milliseconds())

	return cfg, nil
}

// Validate checks struct tags and the constraints tags cannot express.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return err
	}
	return c.validateCrossField()
}
