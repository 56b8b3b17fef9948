// ABOUTME: Configuration loading and parsing for lex-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete lex-gateway configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Auth         AuthConfig         `yaml:"auth"`
	Conversation ConversationConfig `yaml:"conversation"`
	Backends     BackendsConfig     `yaml:"backends"`
	Aggregation  AggregationConfig  `yaml:"aggregation"`
	RateLimit    RateLimitConfig    `yaml:"ratelimit"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds access gate configuration.
// Either Passphrase (compared in constant time) or PassphraseHash (bcrypt)
// may be set; the hash takes precedence when both are present.
type AuthConfig struct {
	Passphrase     string `yaml:"passphrase"`
	PassphraseHash string `yaml:"passphrase_hash"`
	JWTSecret      string `yaml:"jwt_secret"`
}

// ConversationConfig holds conversation lifecycle configuration
type ConversationConfig struct {
	TTL time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TTLRaw string `yaml:"ttl"`
}

// BackendsConfig holds retrieval and synthesis backend configuration
type BackendsConfig struct {
	Timeout time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`

	OpenAI  OpenAIConfig            `yaml:"openai"`
	Qdrant  QdrantConfig            `yaml:"qdrant"`
	Sources map[string]SourceConfig `yaml:"sources"`
}

// OpenAIConfig holds the synthesis model configuration
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// QdrantConfig holds the vector search endpoint configuration
type QdrantConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// SourceConfig holds per-corpus configuration keyed by source name
type SourceConfig struct {
	Collection string `yaml:"collection"`
}

// AggregationConfig holds result merging configuration
type AggregationConfig struct {
	MaxCitations int `yaml:"max_citations"`
}

// RateLimitConfig holds ask endpoint rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// LoggingConfig holds logging configuration.
// When File is set, output is rotated via lumberjack.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Default values applied when the config file leaves fields unset.
const (
	DefaultConversationTTL = 30 * time.Minute
	DefaultBackendTimeout  = 45 * time.Second
	DefaultMaxCitations    = 5
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in defaults for optional fields
func (c *Config) applyDefaults() {
	if c.Conversation.TTL == 0 {
		c.Conversation.TTL = DefaultConversationTTL
	}
	if c.Backends.Timeout == 0 {
		c.Backends.Timeout = DefaultBackendTimeout
	}
	if c.Aggregation.MaxCitations == 0 {
		c.Aggregation.MaxCitations = DefaultMaxCitations
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.Passphrase == "" && c.Auth.PassphraseHash == "" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth requires a passphrase, passphrase_hash, or jwt_secret")
	}

	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		return fmt.Errorf("ratelimit.rps must be positive when ratelimit is enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Conversation.TTLRaw != "" {
		cfg.Conversation.TTL, err = time.ParseDuration(cfg.Conversation.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing conversation.ttl %q: %w", cfg.Conversation.TTLRaw, err)
		}
	}

	if cfg.Backends.TimeoutRaw != "" {
		cfg.Backends.Timeout, err = time.ParseDuration(cfg.Backends.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing backends.timeout %q: %w", cfg.Backends.TimeoutRaw, err)
		}
	}

	return nil
}
