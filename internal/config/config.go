package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot.
type Config struct {
	App          AppConfig
	Discord      DiscordConfig
	Tickets      TicketsConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Notification NotificationConfig
}

// AppConfig controls the health server and process identity.
type AppConfig struct {
	Name    string
	Env     string
	Host    string
	Port    string
	Version string
}

// DiscordConfig holds platform credentials and fixed identifiers. None of
// these affect lifecycle logic, only bootstrapping.
type DiscordConfig struct {
	Token               string
	AppID               string
	GuildID             string
	StaffRoleID         string
	CustomerRoleID      string
	TranscriptChannelID string
}

// TicketsConfig controls lifecycle policy flags.
type TicketsConfig struct {
	// PanelFile points at the YAML panel/category definition. Empty means
	// built-in defaults.
	PanelFile string
	// Dedup enables the one-open-ticket-per-(opener,category) check.
	Dedup bool
	// EphemeralClearSeconds is the self-clear delay for ephemeral
	// acknowledgments. Zero disables clearing.
	EphemeralClearSeconds int
	// IndexBackend selects ticket lookup: "topic" scans channel metadata,
	// "redis" uses the key-value index.
	IndexBackend string
}

// RedisConfig holds Redis connection values for the optional ticket index.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// NotificationConfig holds the optional webhook notification endpoint.
type NotificationConfig struct {
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults
// where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	token := os.Getenv("DISCORD_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is required")
	}
	appID := os.Getenv("DISCORD_APP_ID")
	if appID == "" {
		return nil, fmt.Errorf("DISCORD_APP_ID is required")
	}
	guildID := os.Getenv("DISCORD_GUILD_ID")
	if guildID == "" {
		return nil, fmt.Errorf("DISCORD_GUILD_ID is required")
	}
	staffRole := os.Getenv("STAFF_ROLE_ID")
	if staffRole == "" {
		return nil, fmt.Errorf("STAFF_ROLE_ID is required")
	}
	transcriptChannel := os.Getenv("TRANSCRIPT_CHANNEL_ID")
	if transcriptChannel == "" {
		return nil, fmt.Errorf("TRANSCRIPT_CHANNEL_ID is required")
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	indexBackend := getEnv("TICKETS_INDEX", "topic")
	if indexBackend != "topic" && indexBackend != "redis" {
		return nil, fmt.Errorf("invalid TICKETS_INDEX %q: want topic or redis", indexBackend)
	}

	cfg := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "support-ticket-bot"),
			Env:     getEnv("APP_ENV", "development"),
			Host:    getEnv("APP_HOST", "0.0.0.0"),
			Port:    getEnv("APP_PORT", getEnv("PORT", "3000")),
			Version: getEnv("APP_VERSION", "dev"),
		},
		Discord: DiscordConfig{
			Token:               token,
			AppID:               appID,
			GuildID:             guildID,
			StaffRoleID:         staffRole,
			CustomerRoleID:      os.Getenv("CUSTOMER_ROLE_ID"),
			TranscriptChannelID: transcriptChannel,
		},
		Tickets: TicketsConfig{
			PanelFile:             os.Getenv("TICKETS_CONFIG_FILE"),
			Dedup:                 getEnvAsBool("TICKETS_DEDUP", true),
			EphemeralClearSeconds: getEnvAsInt("TICKETS_EPHEMERAL_CLEAR_SECONDS", 20),
			IndexBackend:          indexBackend,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Notification: NotificationConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address for the health server.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// EphemeralClearDelay returns the self-clear delay duration.
func (t TicketsConfig) EphemeralClearDelay() time.Duration {
	if t.EphemeralClearSeconds <= 0 {
		return 0
	}
	return time.Duration(t.EphemeralClearSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
