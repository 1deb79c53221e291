package dstranslator

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	DefaultEnvPrefix    = "DST"
	DefaultDatabaseType = "sqlite"
	DefaultDatabase     = "ds-translator.sqlite3"
	DefaultLogLevel     = slog.LevelInfo

	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	DefaultCommandPrefix      = "!"
	DefaultTranslatorRoleName = "Translator"

	DefaultTranslatorModel                = "gpt-4o-mini"
	DefaultTranslatorRequestTimeout       = 30 * time.Second
	DefaultTranslatorMaxRequestsPerSecond = 1
	DefaultTargetLanguage                 = "English"

	DefaultSchedulerCheckInterval = 30 * time.Second

	DefaultDatabaseSlowThreshold = 200 * time.Millisecond
	DefaultDatabaseLogLevel      = slog.LevelInfo
	DefaultDiscordLogLevel       = slog.LevelWarn
	DefaultDiscordgoLogLevel     = slog.LevelWarn
	DefaultTranslatorLogLevel    = slog.LevelInfo
	DefaultSchedulerLogLevel     = slog.LevelInfo

	// DefaultDiscordGatewayIntent covers guild metadata, guild messages and
	// message content - everything the dispatcher classifies on.
	DefaultDiscordGatewayIntent = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	discordMaxMessageLength = 2000
)

// Config is the top-level bot configuration, loaded via viper/env
// (see cmd/root.go).
//
//nolint:lll // struct tags can't be split
type Config struct {
	// Database connection string, or SQLite file path
	Database string `yaml:"database" mapstructure:"database" json:"database"`

	// DatabaseType specifies the type of database, either 'sqlite' or 'postgres'
	DatabaseType string `yaml:"database_type" mapstructure:"database_type" json:"database_type"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the duration threshold for identifying slow database queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	// CommandPrefix is the sigil explicit commands must start with
	CommandPrefix string `yaml:"command_prefix" mapstructure:"command_prefix" json:"command_prefix"`

	// TranslatorRole is the name of the Discord role whose members get
	// automatic translation of their messages
	TranslatorRole string `yaml:"translator_role" mapstructure:"translator_role" json:"translator_role"`

	// Discord configures the Discord bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// Translator configures the external translation provider
	Translator *TranslatorConfig `yaml:"translator" mapstructure:"translator" json:"translator"`

	// Scheduler configures the scheduled event due-check loop
	Scheduler *SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler" json:"scheduler"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout sets a limit on the amount of time the bot has to
	// initialize. If this is passed, the bot will abort startup.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown. After this
	// elapses, the bot will force close all connections and exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	HTTPClient *http.Client `log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DiscordConfig configures the discord bot itself.
//
//nolint:lll // can't break tags
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]"`

	// GuildID optionally restricts role lookups to a single guild. Leave
	// empty to serve every guild the bot is a member of.
	GuildID string `yaml:"guild_id" mapstructure:"guild_id" json:"guild_id"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// Discord gateway intents. See: https://discord.com/developers/docs/topics/gateway#gateway-intents
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	httpClient *http.Client
}

// TranslatorConfig configures the translation provider integration.
//
//nolint:lll // can't break tags
type TranslatorConfig struct {
	// Provider API token
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]"`

	// BaseURL overrides the provider endpoint. Any OpenAI-compatible chat
	// completion endpoint works here (including Gemini's compatibility URL).
	BaseURL string `yaml:"base_url" mapstructure:"base_url" json:"base_url"`

	// Model is the model name sent with each completion request
	Model string `yaml:"model" mapstructure:"model" json:"model"`

	// RequestTimeout bounds each provider call. Expiry surfaces to the
	// user as a generic translation failure.
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" json:"request_timeout"`

	// MaxRequestsPerSecond caps outbound provider calls
	MaxRequestsPerSecond int `yaml:"max_requests_per_second" mapstructure:"max_requests_per_second" json:"max_requests_per_second"`

	// Translator base log level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

// SchedulerConfig configures the scheduled event due-check loop.
//
//nolint:lll // can't break tags
type SchedulerConfig struct {
	// CheckInterval is the period between due-check passes. Scheduling
	// input has minute resolution, so anything between 30-60s is sensible.
	CheckInterval time.Duration `yaml:"check_interval" mapstructure:"check_interval" json:"check_interval"`

	// Scheduler base log level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	dbLogLevel := &slog.LevelVar{}
	discordLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}
	translatorLogLevel := &slog.LevelVar{}
	schedulerLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	dbLogLevel.Set(DefaultDatabaseLogLevel)
	discordLogLevel.Set(DefaultDiscordLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)
	translatorLogLevel.Set(DefaultTranslatorLogLevel)
	schedulerLogLevel.Set(DefaultSchedulerLogLevel)

	return &Config{
		DatabaseType:          DefaultDatabaseType,
		Database:              DefaultDatabase,
		DatabaseLogLevel:      dbLogLevel,
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		CommandPrefix:         DefaultCommandPrefix,
		TranslatorRole:        DefaultTranslatorRoleName,
		LogLevel:              mainLogLevel,
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		Discord: &DiscordConfig{
			GatewayIntents:    DefaultDiscordGatewayIntent,
			LogLevel:          discordLogLevel,
			DiscordGoLogLevel: discordgoLogLevel,
		},
		Translator: &TranslatorConfig{
			Model:                DefaultTranslatorModel,
			RequestTimeout:       DefaultTranslatorRequestTimeout,
			MaxRequestsPerSecond: DefaultTranslatorMaxRequestsPerSecond,
			LogLevel:             translatorLogLevel,
		},
		Scheduler: &SchedulerConfig{
			CheckInterval: DefaultSchedulerCheckInterval,
			LogLevel:      schedulerLogLevel,
		},
	}
}
