package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	APIID    int    `envconfig:"API_ID" required:"true"`
	APIHash  string `envconfig:"API_HASH" required:"true"`
	BotToken string `envconfig:"BOT_TOKEN" required:"true"`

	DBPath     string `envconfig:"DB_PATH" default:"users.db"`
	StagingDir string `envconfig:"STAGING_DIR" default:"staging"`

	// Optional shared operator session used when the login system is off.
	StringSession string `envconfig:"STRING_SESSION"`

	// Named session-layer driver, registered via telegram.RegisterDialer.
	SessionDriver string `envconfig:"SESSION_DRIVER" default:"mtproto"`

	BotAPIURL string `envconfig:"BOT_API_URL" default:"https://api.telegram.org"`

	// Optional relay channel; when set, every batch delivery goes there
	// instead of the requester's chat.
	ChannelID int64  `envconfig:"CHANNEL_ID"`
	Admins    string `envconfig:"ADMINS"`

	LoginSystem  bool `envconfig:"LOGIN_SYSTEM" default:"true"`
	ErrorMessage bool `envconfig:"ERROR_MESSAGE" default:"true"`

	WaitingTime      time.Duration `envconfig:"WAITING_TIME" default:"2s"`
	ProgressInterval time.Duration `envconfig:"PROGRESS_INTERVAL" default:"10s"`
	PromptTimeout    time.Duration `envconfig:"PROMPT_TIMEOUT" default:"5m"`
	CodeTimeout      time.Duration `envconfig:"CODE_TIMEOUT" default:"10m"`

	SessionMinLength int `envconfig:"SESSION_MIN_LENGTH" default:"351"`

	StagingRetention time.Duration `envconfig:"STAGING_RETENTION" default:"1h"`
	CleanupInterval  time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`

	LogLevel      string `envconfig:"LOG_LEVEL" default:"INFO"`
	OpsWebhookURL string `envconfig:"OPS_WEBHOOK_URL"`

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:8080"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks constraints envconfig tags cannot express. Failures here
// abort startup.
func (c *Config) Validate() error {
	if c.APIID <= 0 {
		return fmt.Errorf("API_ID must be a positive integer")
	}

	if !c.LoginSystem && c.StringSession == "" {
		return fmt.Errorf("STRING_SESSION is required when LOGIN_SYSTEM is disabled")
	}

	return nil
}

// AdminIDs parses the space-separated ADMINS list, skipping non-numeric entries.
func (c *Config) AdminIDs() []int64 {
	fields := strings.Fields(c.Admins)
	ids := make([]int64, 0, len(fields))

	for _, f := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			continue
		}

		ids = append(ids, id)
	}

	return ids
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
