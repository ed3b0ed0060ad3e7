package common

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/joseph-ayodele/w2-reporter/constants"
)

// Config holds all application configuration. It is read once at startup
// and never mutated afterwards.
type Config struct {
	Server  ServerConfig
	Remote  RemoteConfig
	Extract ExtractConfig
	Ledger  LedgerConfig
	Log     LogConfig
}

// ServerConfig holds inbound boundary configuration
type ServerConfig struct {
	HTTPAddr       string
	GRPCAddr       string // empty disables the gRPC health listener
	MaxUploadBytes int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Workers        int           // concurrent documents
	QueueSize      int           // documents waiting for a worker
	ProcessTimeout time.Duration // per document, excluding queue wait
}

// RemoteConfig holds the reporting service client configuration
type RemoteConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	RateLimit  float64 // requests per second, 0 = unlimited
}

// ExtractConfig holds text extraction and validation configuration
type ExtractConfig struct {
	Pdftotext           string
	ReservedEINPrefixes []string
}

// LedgerConfig holds submission ledger configuration
type LedgerConfig struct {
	DSN string // empty disables the ledger
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string // text | json
}

// fileConfig mirrors Config for TOML decoding; durations are strings so
// "30s" style values work in the file.
type fileConfig struct {
	Server struct {
		HTTPAddr       string `toml:"http_addr"`
		GRPCAddr       string `toml:"grpc_addr"`
		MaxUploadBytes int64  `toml:"max_upload_bytes"`
		ReadTimeout    string `toml:"read_timeout"`
		WriteTimeout   string `toml:"write_timeout"`
		Workers        int    `toml:"workers"`
		QueueSize      int    `toml:"queue_size"`
		ProcessTimeout string `toml:"process_timeout"`
	} `toml:"server"`
	Remote struct {
		BaseURL    string  `toml:"base_url"`
		APIKey     string  `toml:"api_key"`
		Timeout    string  `toml:"timeout"`
		MaxRetries *int    `toml:"max_retries"`
		RetryDelay string  `toml:"retry_delay"`
		RateLimit  float64 `toml:"rate_limit"`
	} `toml:"remote"`
	Extract struct {
		Pdftotext           string   `toml:"pdftotext"`
		ReservedEINPrefixes []string `toml:"reserved_ein_prefixes"`
	} `toml:"extract"`
	Ledger struct {
		DSN string `toml:"dsn"`
	} `toml:"ledger"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:       ":8000",
			MaxUploadBytes: constants.MaxUploadBytes,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   5 * time.Minute,
			Workers:        4,
			QueueSize:      64,
			ProcessTimeout: 3 * time.Minute,
		},
		Remote: RemoteConfig{
			BaseURL:    "http://localhost:8001/mock-api",
			APIKey:     "FinPro-Secret-Key",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			RetryDelay: time.Second,
		},
		Extract: ExtractConfig{
			Pdftotext:           "pdftotext",
			ReservedEINPrefixes: []string{"9"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional TOML file
// named by W2_CONFIG_FILE, and environment variables, in that order of
// increasing precedence.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if path := os.Getenv("W2_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return NewAppError("CONFIG_ERROR", "read config file", err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(b, &fc); err != nil {
		return NewAppError("CONFIG_ERROR", "decode config file "+path, err)
	}

	setStr(&c.Server.HTTPAddr, fc.Server.HTTPAddr)
	setStr(&c.Server.GRPCAddr, fc.Server.GRPCAddr)
	if fc.Server.MaxUploadBytes > 0 {
		c.Server.MaxUploadBytes = fc.Server.MaxUploadBytes
	}
	if fc.Server.Workers > 0 {
		c.Server.Workers = fc.Server.Workers
	}
	if fc.Server.QueueSize > 0 {
		c.Server.QueueSize = fc.Server.QueueSize
	}
	setStr(&c.Remote.BaseURL, fc.Remote.BaseURL)
	setStr(&c.Remote.APIKey, fc.Remote.APIKey)
	if fc.Remote.MaxRetries != nil {
		c.Remote.MaxRetries = *fc.Remote.MaxRetries
	}
	if fc.Remote.RateLimit > 0 {
		c.Remote.RateLimit = fc.Remote.RateLimit
	}
	setStr(&c.Extract.Pdftotext, fc.Extract.Pdftotext)
	if len(fc.Extract.ReservedEINPrefixes) > 0 {
		c.Extract.ReservedEINPrefixes = fc.Extract.ReservedEINPrefixes
	}
	setStr(&c.Ledger.DSN, fc.Ledger.DSN)
	setStr(&c.Log.Level, fc.Log.Level)
	setStr(&c.Log.Format, fc.Log.Format)

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"server.read_timeout", fc.Server.ReadTimeout, &c.Server.ReadTimeout},
		{"server.write_timeout", fc.Server.WriteTimeout, &c.Server.WriteTimeout},
		{"server.process_timeout", fc.Server.ProcessTimeout, &c.Server.ProcessTimeout},
		{"remote.timeout", fc.Remote.Timeout, &c.Remote.Timeout},
		{"remote.retry_delay", fc.Remote.RetryDelay, &c.Remote.RetryDelay},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return NewAppError("CONFIG_ERROR", fmt.Sprintf("%s: invalid duration %q", d.key, d.raw), err)
		}
		*d.dst = v
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.MaxUploadBytes = getEnvAsInt64("MAX_UPLOAD_BYTES", c.Server.MaxUploadBytes)
	c.Server.ReadTimeout = getEnvAsDuration("HTTP_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvAsDuration("HTTP_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.Workers = getEnvAsInt("PROCESS_WORKERS", c.Server.Workers)
	c.Server.QueueSize = getEnvAsInt("PROCESS_QUEUE_SIZE", c.Server.QueueSize)
	c.Server.ProcessTimeout = getEnvAsDuration("PROCESS_TIMEOUT", c.Server.ProcessTimeout)

	c.Remote.BaseURL = getEnv("REMOTE_BASE_URL", c.Remote.BaseURL)
	c.Remote.APIKey = getEnv("REMOTE_API_KEY", c.Remote.APIKey)
	c.Remote.Timeout = getEnvAsDuration("REMOTE_TIMEOUT", c.Remote.Timeout)
	c.Remote.MaxRetries = getEnvAsInt("REMOTE_MAX_RETRIES", c.Remote.MaxRetries)
	c.Remote.RetryDelay = getEnvAsDuration("REMOTE_RETRY_DELAY", c.Remote.RetryDelay)
	c.Remote.RateLimit = getEnvAsFloat("REMOTE_RATE_LIMIT", c.Remote.RateLimit)

	c.Extract.Pdftotext = getEnv("PDFTOTEXT_BIN", c.Extract.Pdftotext)
	if v := os.Getenv("RESERVED_EIN_PREFIXES"); v != "" {
		c.Extract.ReservedEINPrefixes = splitList(v)
	}

	c.Ledger.DSN = getEnv("LEDGER_DSN", c.Ledger.DSN)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MaxRemoteRetries bounds REMOTE_MAX_RETRIES.
const MaxRemoteRetries = 10

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return NewAppError("CONFIG_ERROR", "REMOTE_BASE_URL is required", ErrConfig)
	}
	if u, err := url.Parse(c.Remote.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return NewAppError("CONFIG_ERROR",
			fmt.Sprintf("REMOTE_BASE_URL %q must be an absolute http(s) URL", c.Remote.BaseURL), ErrConfig)
	}
	if c.Remote.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "REMOTE_API_KEY is required", ErrConfig)
	}
	if c.Remote.Timeout <= 0 {
		return NewAppError("CONFIG_ERROR", "REMOTE_TIMEOUT must be positive", ErrConfig)
	}
	if c.Remote.MaxRetries < 0 {
		return NewAppError("CONFIG_ERROR", "REMOTE_MAX_RETRIES must not be negative", ErrConfig)
	}
	if c.Remote.MaxRetries > MaxRemoteRetries {
		return NewAppError("CONFIG_ERROR",
			fmt.Sprintf("REMOTE_MAX_RETRIES must be at most %d", MaxRemoteRetries), ErrConfig)
	}
	if c.Remote.RetryDelay < 0 {
		return NewAppError("CONFIG_ERROR", "REMOTE_RETRY_DELAY must not be negative", ErrConfig)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrConfig)
	}
	if c.Server.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "PROCESS_WORKERS must be positive", ErrConfig)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return NewAppError("CONFIG_ERROR", "MAX_UPLOAD_BYTES must be positive", ErrConfig)
	}
	for _, p := range c.Extract.ReservedEINPrefixes {
		if p == "" {
			return NewAppError("CONFIG_ERROR", "reserved EIN prefix must not be empty", ErrConfig)
		}
		if strings.Trim(p, "0123456789") != "" {
			return NewAppError("CONFIG_ERROR", fmt.Sprintf("reserved EIN prefix %q is not numeric", p), ErrConfig)
		}
	}
	return nil
}
