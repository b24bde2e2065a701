package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	Broker        BrokerConfig
	Auth          AuthConfig
	App           AppConfig
	Analytics     AnalyticsConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// TrustedProxies are the peers (IPs or CIDRs) whose X-Forwarded-For is
	// believed when keying rate limits. Empty trusts no one.
	TrustedProxies []string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnLife time.Duration
	MaxConnIdle time.Duration
	AutoMigrate bool
}

// Redis Caching Layer configuration
type CacheConfig struct {
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
	TTL      time.Duration
}

// BrokerConfig holds RabbitMQ settings for click event fan-out.
// An empty URL disables publishing.
type BrokerConfig struct {
	URL   string
	Queue string
}

// AuthConfig holds token and password hashing settings
type AuthConfig struct {
	JWTSecret     string
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	BcryptCost    int
	SecureCookies bool
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment      string // "development", "staging", "production"
	BaseURL          string // Base URL for generating short links
	ShortCodeLen     int
	ShortCodeRetries int
}

// AnalyticsConfig controls click logging on the redirect path
type AnalyticsConfig struct {
	StoreClickEvents bool
	StoreFullIP      bool
	DedupWindow      time.Duration
}

// RateLimitConfig configures the redis token bucket
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	Prefix         string
}

// ObservabilityConfig holds tracing settings
type ObservabilityConfig struct {
	ServiceName  string
	OTLPEndpoint string // e.g., "localhost:4317"; empty means no export
	// TraceSampleRatio applies to root spans; children follow their parent.
	TraceSampleRatio float64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "development")
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			TrustedProxies:  getEnvList("TRUSTED_PROXIES"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "5432"),
			User:        getEnv("DB_USER", "glasslink"),
			Password:    getEnv("DB_PASSWORD", "glasslink_secret"),
			DBName:      getEnv("DB_NAME", "urlshortener"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			MaxConns:    int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns:    int32(getEnvInt("DB_MIN_CONNS", 2)),
			MaxConnLife: getEnvDuration("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxConnIdle: getEnvDuration("DB_MAX_CONN_IDLE", 30*time.Minute),
			AutoMigrate: getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Cache: CacheConfig{
			Enabled:  getEnvBool("RDB_ENABLED", true),
			Host:     getEnv("RDB_HOST", "localhost"),
			Port:     getEnv("RDB_PORT", "6379"),
			User:     getEnv("RDB_USER", ""),
			Password: getEnv("RDB_PASSWORD", ""),
			TTL:      getEnvDuration("CACHE_TTL", 10*time.Minute),
		},
		Broker: BrokerConfig{
			URL:   getEnv("AMQP_URL", ""),
			Queue: getEnv("AMQP_CLICK_QUEUE", "click.recorded"),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", "dev-only-secret-change-me-0123456789abcdef"),
			Issuer:        getEnv("JWT_ISSUER", "glasslink"),
			Audience:      getEnv("JWT_AUDIENCE", "glasslink-web"),
			AccessTTL:     getEnvDuration("ACCESS_TOKEN_TTL", 30*time.Minute),
			RefreshTTL:    getEnvDuration("REFRESH_TOKEN_TTL", 14*24*time.Hour),
			BcryptCost:    getEnvInt("BCRYPT_COST", 12),
			SecureCookies: env != "development",
		},
		App: AppConfig{
			Environment:      env,
			BaseURL:          strings.TrimSuffix(getEnv("BASE_URL", "http://localhost:8080"), "/"),
			ShortCodeLen:     getEnvInt("SHORT_CODE_LENGTH", 8),
			ShortCodeRetries: getEnvInt("SHORT_CODE_MAX_RETRIES", 8),
		},
		Analytics: AnalyticsConfig{
			StoreClickEvents: getEnvBool("ANALYTICS_STORE_CLICK_EVENTS", true),
			StoreFullIP:      getEnvBool("ANALYTICS_STORE_FULL_IP", true),
			DedupWindow:      getEnvDuration("ANALYTICS_DEDUP_WINDOW", 10*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			Capacity:       getEnvInt("RATE_LIMIT_CAPACITY", 60),
			RefillTokens:   getEnvInt("RATE_LIMIT_REFILL_TOKENS", 1),
			RefillInterval: getEnvDuration("RATE_LIMIT_REFILL_INTERVAL", time.Second),
			TTL:            getEnvDuration("RATE_LIMIT_TTL", 10*time.Minute),
			Prefix:         getEnv("RATE_LIMIT_PREFIX", "rl"),
		},
		Observability: ObservabilityConfig{
			ServiceName:      getEnv("OTEL_SERVICE_NAME", "glasslink"),
			OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			TraceSampleRatio: getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at runtime
func (c *Config) Validate() error {
	var errs []error
	if c.App.ShortCodeLen < 4 || c.App.ShortCodeLen > 32 {
		errs = append(errs, fmt.Errorf("SHORT_CODE_LENGTH must be within [4,32], got %d", c.App.ShortCodeLen))
	}
	if c.App.ShortCodeRetries < 1 {
		errs = append(errs, fmt.Errorf("SHORT_CODE_MAX_RETRIES must be at least 1, got %d", c.App.ShortCodeRetries))
	}
	if c.App.Environment == "production" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes in production"))
	}
	if c.Analytics.DedupWindow < 0 {
		errs = append(errs, errors.New("ANALYTICS_DEDUP_WINDOW must not be negative"))
	}
	for _, p := range c.Server.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				errs = append(errs, fmt.Errorf("TRUSTED_PROXIES entry %q is not an IP or CIDR", p))
			}
		}
	}
	if c.Observability.TraceSampleRatio < 0 || c.Observability.TraceSampleRatio > 1 {
		errs = append(errs, fmt.Errorf("OTEL_TRACES_SAMPLER_ARG must be within [0,1], got %g", c.Observability.TraceSampleRatio))
	}
	if c.RateLimit.Capacity < 1 {
		c.RateLimit.Capacity = 1
	}
	if c.RateLimit.RefillTokens < 1 {
		c.RateLimit.RefillTokens = 1
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = time.Second
	}
	return errors.Join(errs...)
}

type ConnectionInterface interface {
	ConnectionString() string
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	connectionString := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
	return connectionString
}

func (c *CacheConfig) ConnectionString() string {
	connectionString := fmt.Sprintf("redis://%s:%s@%s:%s/0", c.User, c.Password, c.Host, c.Port)
	return connectionString
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// getEnvList splits a comma-separated variable, dropping blank items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
