package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// LocalePlaceholder is substituted with the locale code in per-locale DSN templates.
const LocalePlaceholder = "{locale}"

type Config struct {
	// HTTP Server
	Port         string
	QueryTimeout time.Duration

	// Backend selection
	DataBackend   string
	Locales       []string
	DefaultLocale string

	// Stores, one per locale
	SQLiteDBPath  string
	PostgresDSN   string
	MemoryDataDir string

	// AMQP ingestion events, optional
	AMQPURL      string
	AMQPExchange string

	// Response cache
	CacheSize int
	CacheTTL  time.Duration

	// Price listing
	DefaultPriceLimit int
	MaxPriceLimit     int

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// CORSAllowOrigin lets a separately hosted dashboard call the API.
	CORSAllowOrigin string
	// TrustedProxies are extra CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string

	// Logging
	LogLevel string

	// Google Sheets import
	GoogleSpreadsheetID   string
	GoogleSheetRange      string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string
}

func Load() *Config {
	c := &Config{
		Port:         getEnv("PORT", "8081"),
		QueryTimeout: getEnvDuration("QUERY_TIMEOUT", 7*time.Second),

		DataBackend:   getEnv("DATA_BACKEND", "sqlite"),
		Locales:       getEnvList("LOCALES", []string{"en"}),
		DefaultLocale: getEnv("DEFAULT_LOCALE", ""),

		SQLiteDBPath:  getEnv("SQLITE_DB_PATH", "./data/prices_{locale}.db"),
		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		MemoryDataDir: getEnv("MEMORY_DATA_DIR", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "pricedash.ingest"),

		CacheSize: getEnvInt("CACHE_SIZE", 256),
		CacheTTL:  getEnvDuration("CACHE_TTL", 10*time.Minute),

		DefaultPriceLimit: getEnvInt("DEFAULT_PRICE_LIMIT", 100),
		MaxPriceLimit:     getEnvInt("MAX_PRICE_LIMIT", 10000),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),

		CORSAllowOrigin: getEnv("CORS_ALLOW_ORIGIN", ""),
		TrustedProxies:  getEnvList("TRUSTED_PROXIES", nil),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetRange:      getEnv("GOOGLE_SHEET_RANGE", "Prices!A1:J"),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		GoogleCredentialsJSON: getEnv("GOOGLE_CREDENTIALS_JSON", ""),
	}
	if c.DefaultLocale == "" && len(c.Locales) > 0 {
		c.DefaultLocale = c.Locales[0]
	}
	return c
}

// DSNFor expands the store location template of the selected backend for one locale.
func (c *Config) DSNFor(locale string) string {
	switch c.DataBackend {
	case "sqlite":
		return strings.ReplaceAll(c.SQLiteDBPath, LocalePlaceholder, locale)
	case "postgres":
		return strings.ReplaceAll(c.PostgresDSN, LocalePlaceholder, locale)
	case "memory":
		if c.MemoryDataDir == "" {
			return ""
		}
		return filepath.Join(c.MemoryDataDir, locale+".csv")
	}
	return ""
}

// HasLocale reports whether locale is one of the configured locales.
func (c *Config) HasLocale(locale string) bool {
	return slices.Contains(c.Locales, locale)
}

// CacheEnabled reports whether response caching can be used. Cached results
// are only safe when ingestion events can invalidate them.
func (c *Config) CacheEnabled() bool {
	return c.AMQPURL != "" && c.CacheSize > 0
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "postgres", "sqlite"}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if len(c.Locales) == 0 {
		errors = append(errors, "at least one locale must be configured in LOCALES")
	}
	for _, l := range c.Locales {
		if !validLocale(l) {
			errors = append(errors, fmt.Sprintf("invalid locale '%s': only letters, digits, '-' and '_' are allowed", l))
		}
	}

	if c.DefaultLocale != "" && !c.HasLocale(c.DefaultLocale) {
		errors = append(errors, fmt.Sprintf("default locale '%s' is not one of LOCALES %v", c.DefaultLocale, c.Locales))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if len(c.Locales) > 1 && !strings.Contains(c.SQLiteDBPath, LocalePlaceholder) {
			errors = append(errors, fmt.Sprintf("SQLite database path must contain %s when more than one locale is configured", LocalePlaceholder))
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" && !strings.Contains(dir, LocalePlaceholder) {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "postgres":
		if c.PostgresDSN == "" {
			errors = append(errors, "POSTGRES_DSN is required when using postgres backend")
		} else if len(c.Locales) > 1 && !strings.Contains(c.PostgresDSN, LocalePlaceholder) {
			errors = append(errors, fmt.Sprintf("POSTGRES_DSN must contain %s when more than one locale is configured", LocalePlaceholder))
		}
	case "memory":
		if c.MemoryDataDir != "" {
			if info, err := os.Stat(c.MemoryDataDir); err != nil || !info.IsDir() {
				errors = append(errors, fmt.Sprintf("memory data directory '%s' does not exist", c.MemoryDataDir))
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.CacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must not be negative", c.CacheSize))
	}
	if c.CacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	}

	if c.QueryTimeout < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid query timeout %v: must be at least 100ms", c.QueryTimeout))
	} else if c.QueryTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid query timeout %v: must be at most 5 minutes", c.QueryTimeout))
	}

	if c.DefaultPriceLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid default price limit %d: must be at least 1", c.DefaultPriceLimit))
	}
	if c.MaxPriceLimit < c.DefaultPriceLimit {
		errors = append(errors, fmt.Sprintf("invalid max price limit %d: must be at least the default limit %d", c.MaxPriceLimit, c.DefaultPriceLimit))
	}

	if c.RateLimitRPS <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %v: must be positive", c.RateLimitRPS))
	}
	if c.RateLimitBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", cidr))
		}
	}

	if c.GoogleCredentialsFile != "" {
		if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func validLocale(l string) bool {
	if l == "" {
		return false
	}
	for _, r := range l {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
