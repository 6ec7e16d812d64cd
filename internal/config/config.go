package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Record store kinds
const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds the application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Logging configuration
	Log LogConfig

	// GitHub API configuration used for diff retrieval
	GitHub GitHubConfig

	// Pipeline configuration
	Pipeline PipelineConfig

	// Record store configuration
	Store StoreConfig

	// Security configuration
	Security SecurityConfig

	// Notification channels
	NATS     NATSConfig
	WhatsApp WhatsAppConfig

	// Bot working copy
	Bot BotConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string // "json" or "text"
}

// GitHubConfig holds GitHub API configuration
type GitHubConfig struct {
	Token       string
	APIURL      string // empty means api.github.com
	HTTPTimeout time.Duration
}

// PipelineConfig holds commit classification settings
type PipelineConfig struct {
	BotName     string
	SeedPrompts []string
	// Maximum concurrent diff requests per push delivery
	FetchConcurrency int
}

// StoreConfig selects where fine-tune records are appended
type StoreConfig struct {
	Kind string // file, sqlite or postgres
	File string
	DSN  string
}

// SecurityConfig holds security-specific configuration
type SecurityConfig struct {
	// Optional API keys guarding the prompt endpoints
	APIKeys            []string
	AllowedOrigins     []string
	RateLimitPerMinute int
}

// NATSConfig configures the optional NATS notifier
type NATSConfig struct {
	URL     string
	Token   string
	Subject string
}

// Enabled reports whether a NATS URL is configured
func (n NATSConfig) Enabled() bool {
	return n.URL != ""
}

// WhatsAppConfig configures the optional WhatsApp notifier
type WhatsAppConfig struct {
	Recipient  string // JID receiving record notifications
	DBDriver   string
	DBDSN      string
	DeviceName string
	LogLevel   string
}

// Enabled reports whether a WhatsApp recipient is configured
func (w WhatsAppConfig) Enabled() bool {
	return w.Recipient != ""
}

// BotConfig configures the optional local working copy the bot commits prompts to
type BotConfig struct {
	RepoPath    string
	Email       string
	PromptsFile string
	Push        bool
}

// Enabled reports whether a bot working copy is configured
func (b BotConfig) Enabled() bool {
	return b.RepoPath != ""
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	// Try to load .env file (ignore errors - it's optional)
	_ = godotenv.Load(".env")

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", ""),
			Port:            getEnvAsInt("SERVER_PORT", 5001),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		GitHub: GitHubConfig{
			Token:       getEnv("GITHUB_HOOK_TOKEN", ""),
			APIURL:      getEnv("GITHUB_API_URL", ""),
			HTTPTimeout: getEnvAsDuration("GITHUB_HTTP_TIMEOUT", 30*time.Second),
		},
		Pipeline: PipelineConfig{
			BotName:          getEnv("BOT_NAME", "lovable-bot"),
			SeedPrompts:      getEnvAsSlice("SEED_PROMPTS", []string{}),
			FetchConcurrency: getEnvAsInt("DIFF_FETCH_CONCURRENCY", 8),
		},
		Store: StoreConfig{
			Kind: getEnv("RECORD_STORE", StoreFile),
			File: getEnv("RECORD_FILE", "fine_tune_data.json"),
			DSN:  getEnv("RECORD_DSN", ""),
		},
		Security: SecurityConfig{
			APIKeys:            getEnvAsSlice("API_KEYS", []string{}),
			AllowedOrigins:     getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
			RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),
		},
		NATS: NATSConfig{
			URL:     getEnv("NATS_URL", ""),
			Token:   getEnv("NATS_TOKEN", ""),
			Subject: getEnv("NATS_SUBJECT", "finetune.record.created"),
		},
		WhatsApp: WhatsAppConfig{
			Recipient:  getEnv("WHATSAPP_RECIPIENT", ""),
			DBDriver:   getEnv("WHATSAPP_DB_DRIVER", "sqlite3"),
			DBDSN:      getEnv("WHATSAPP_DB_DSN", "file:whatsapp.db?_foreign_keys=on"),
			DeviceName: getEnv("WHATSAPP_DEVICE_NAME", "finetune-relay"),
			LogLevel:   getEnv("WHATSAPP_LOG_LEVEL", "WARN"),
		},
		Bot: BotConfig{
			RepoPath:    getEnv("BOT_REPO_PATH", ""),
			Email:       getEnv("BOT_EMAIL", "bot@lovable.dev"),
			PromptsFile: getEnv("BOT_PROMPTS_FILE", "prompts.txt"),
			Push:        getEnvAsBool("BOT_PUSH", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.GitHub.Token == "" {
		return fmt.Errorf("GITHUB_HOOK_TOKEN is required")
	}

	if strings.TrimSpace(c.Pipeline.BotName) == "" {
		return fmt.Errorf("bot name is required")
	}

	if c.Pipeline.FetchConcurrency < 1 || c.Pipeline.FetchConcurrency > 100 {
		return fmt.Errorf("DIFF_FETCH_CONCURRENCY must be between 1 and 100, got %d", c.Pipeline.FetchConcurrency)
	}

	switch c.Store.Kind {
	case StoreFile:
		if c.Store.File == "" {
			return fmt.Errorf("record file path is required for the file store")
		}
	case StoreSQLite, StorePostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("RECORD_DSN is required for the %s store", c.Store.Kind)
		}
	default:
		return fmt.Errorf("unknown record store: %q", c.Store.Kind)
	}

	if c.Security.RateLimitPerMinute < 1 {
		return fmt.Errorf("invalid rate limit: %d", c.Security.RateLimitPerMinute)
	}

	for _, key := range c.Security.APIKeys {
		if len(key) < 8 {
			return fmt.Errorf("insecure API key detected: keys must be at least 8 characters")
		}
	}

	if c.NATS.Enabled() && c.NATS.Subject == "" {
		return fmt.Errorf("NATS_SUBJECT is required when NATS_URL is set")
	}

	return nil
}

// Address returns the server address in the format host:port
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Helper functions to get environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	values := make([]string, 0)
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}

	return values
}
