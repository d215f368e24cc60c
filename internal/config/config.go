package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StrategyDirect = "direct"
	StrategyPoll   = "poll"

	DefaultPlantIDBaseURL = "https://api.plant.id/v3"
)

// Config holds the proxy server configuration.
type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	UpstreamTimeout    time.Duration
	MaxRequestBodySize int64
	MaxImageKB         int64
	LogLevel           string

	PlantIDAPIKey      string
	PlantIDBaseURL     string
	Strategy           string
	PollInterval       time.Duration
	PollAttempts       int
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// ClientConfig holds the settings of the upload pipeline client.
type ClientConfig struct {
	ProxyURL      string
	ClientTimeout time.Duration
	MaxFileBytes  int64
	MaxDimension  int
	JPEGQuality   int
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// HasAPIKey reports whether the upstream credential is present.
func (c *Config) HasAPIKey() bool {
	return strings.TrimSpace(c.PlantIDAPIKey) != ""
}

// LoadDotEnv reads a .env file when one exists. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func LoadFromEnv() (*Config, error) {
	// Set defaults
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		UpstreamTimeout:    parseDurationOrDefault("UPSTREAM_TIMEOUT", 12*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 10*1024*1024), // 10MB
		MaxImageKB:         parseIntOrDefault("MAX_IMAGE_KB", 1024),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),

		PlantIDAPIKey:      strings.TrimSpace(os.Getenv("PLANT_ID_API_KEY")),
		PlantIDBaseURL:     strings.TrimRight(getEnvOrDefault("PLANT_ID_BASE_URL", DefaultPlantIDBaseURL), "/"),
		Strategy:           strings.ToLower(getEnvOrDefault("PLANT_ID_STRATEGY", StrategyDirect)),
		PollInterval:       parseDurationOrDefault("PLANT_ID_POLL_INTERVAL", 2*time.Second),
		PollAttempts:       int(parseIntOrDefault("PLANT_ID_POLL_ATTEMPTS", 3)),
		RateLimitPerSecond: parseFloatOrDefault("RATE_LIMIT_RPS", 0),
		RateLimitBurst:     int(parseIntOrDefault("RATE_LIMIT_BURST", 5)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and the relation between the two timeouts. A missing
// API key is not a load error; requests report it as a configuration error.
func (cfg *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(cfg.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", cfg.Port)
	}
	if cfg.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", cfg.MaxRequestBodySize)
	}
	if cfg.MaxImageKB <= 0 {
		return fmt.Errorf("MAX_IMAGE_KB must be > 0 (got %d)", cfg.MaxImageKB)
	}
	if cfg.RequestTimeout <= 0 || cfg.UpstreamTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, upstream=%s)",
			cfg.RequestTimeout, cfg.UpstreamTimeout)
	}
	// The proxy must answer before its caller gives up.
	if cfg.UpstreamTimeout >= cfg.RequestTimeout {
		return fmt.Errorf("UPSTREAM_TIMEOUT (%s) must be shorter than REQUEST_TIMEOUT (%s)",
			cfg.UpstreamTimeout, cfg.RequestTimeout)
	}
	switch cfg.Strategy {
	case StrategyDirect:
	case StrategyPoll:
		if cfg.PollAttempts <= 0 || cfg.PollInterval <= 0 {
			return fmt.Errorf("poll strategy needs PLANT_ID_POLL_ATTEMPTS > 0 and PLANT_ID_POLL_INTERVAL > 0")
		}
	default:
		return fmt.Errorf("unknown PLANT_ID_STRATEGY: %q", cfg.Strategy)
	}
	if cfg.RateLimitPerSecond < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0 (got %v)", cfg.RateLimitPerSecond)
	}
	return nil
}

// LoadClientFromEnv loads the upload pipeline settings.
func LoadClientFromEnv() (*ClientConfig, error) {
	cfg := &ClientConfig{
		ProxyURL:      getEnvOrDefault("FOLIUM_PROXY_URL", "http://localhost:8080/identify"),
		ClientTimeout: parseDurationOrDefault("FOLIUM_CLIENT_TIMEOUT", 30*time.Second),
		MaxFileBytes:  parseIntOrDefault("FOLIUM_MAX_FILE_BYTES", 5*1024*1024), // 5MiB
		MaxDimension:  int(parseIntOrDefault("FOLIUM_MAX_DIMENSION", 800)),
		JPEGQuality:   int(parseIntOrDefault("FOLIUM_JPEG_QUALITY", 80)),
	}
	if cfg.ClientTimeout <= 0 {
		return nil, fmt.Errorf("FOLIUM_CLIENT_TIMEOUT must be > 0 (got %s)", cfg.ClientTimeout)
	}
	if cfg.MaxFileBytes <= 0 || cfg.MaxDimension <= 0 {
		return nil, fmt.Errorf("FOLIUM_MAX_FILE_BYTES and FOLIUM_MAX_DIMENSION must be > 0")
	}
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		return nil, fmt.Errorf("FOLIUM_JPEG_QUALITY must be within 1..100 (got %d)", cfg.JPEGQuality)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}
