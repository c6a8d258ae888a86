// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/orochi-attribution/utils"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database    DatabaseConfig    `json:"database"`
	Server      ServerConfig      `json:"server"`
	Security    SecurityConfig    `json:"security"`
	JWT         JWTConfig         `json:"jwt"`
	Logging     LoggingConfig     `json:"logging"`
	Metrics     MetricsConfig     `json:"metrics"`
	Cache       CacheConfig       `json:"cache"`
	Deployment  DeploymentConfig  `json:"deployment"`
	Attribution AttributionConfig `json:"attribution"`
	OrderFeed   OrderFeedConfig   `json:"order_feed"`
	Scheduler   SchedulerConfig   `json:"scheduler"`
	Events      EventsConfig      `json:"events"`
	Bot         BotConfig         `json:"bot"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
	AutoMigrate     bool          `json:"auto_migrate"`
}

// DSN returns the postgres connection string for this configuration
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit"`
	TrustedProxies  []string      `json:"trusted_proxies"`
	ProxyHeader     string        `json:"proxy_header"`
}

type SecurityConfig struct {
	AllowedOrigins  []string      `json:"allowed_origins"`
	GlobalRateLimit int           `json:"global_rate_limit"` // requests per minute
	AuthRateLimit   int           `json:"auth_rate_limit"`   // requests per minute
	RateLimitWindow time.Duration `json:"rate_limit_window"`
	BcryptCost      int           `json:"bcrypt_cost"`
}

type JWTConfig struct {
	SecretKey       string        `json:"secret_key"`
	PrivateKey      string        `json:"private_key"`  // RSA private key in PEM format
	PublicKey       string        `json:"public_key"`   // RSA public key in PEM format
	UseRSAKeys      bool          `json:"use_rsa_keys"` // Whether to use RSA keys instead of secret key
	AccessTokenTTL  time.Duration `json:"access_token_ttl"`
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl"`
	Issuer          string        `json:"issuer"`
	Audience        string        `json:"audience"`
}

type LoggingConfig struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Output     string `json:"output"` // stdout, file, both
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`

	SchedulerLogPath string `json:"scheduler_log_path"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled         bool          `json:"enabled"`
	Provider        string        `json:"provider"` // redis, memory
	RedisURL        string        `json:"redis_url"`
	RedisDB         int           `json:"redis_db"`
	RedisPrefix     string        `json:"redis_prefix"`
	DefaultTTL      time.Duration `json:"default_ttl"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

type DeploymentConfig struct {
	Domain      string `json:"domain"`
	APIDomain   string `json:"api_domain"`
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
	BuildTime   string `json:"build_time"`
}

// AttributionConfig controls click tracking and the correlation pass
type AttributionConfig struct {
	ShortLinkDomain     string        `json:"short_link_domain"`
	RedirectFallbackURL string        `json:"redirect_fallback_url"`
	ItemIDPattern       string        `json:"item_id_pattern"`
	ClickIDNode         int64         `json:"click_id_node"`
	Window              time.Duration `json:"window"`
	DefaultLookback     time.Duration `json:"default_lookback"`
	DefaultOrderLimit   int           `json:"default_order_limit"`
	MaxOrderLimit       int           `json:"max_order_limit"`
	PageSize            int           `json:"page_size"`
	MaxOffset           int           `json:"max_offset"`
	PageDelay           time.Duration `json:"page_delay"`
	RunLockTTL          time.Duration `json:"run_lock_ttl"`
	RunTimeout          time.Duration `json:"run_timeout"`
}

// OrderFeedConfig selects and configures the marketplace order source
type OrderFeedConfig struct {
	Provider    string        `json:"provider"` // mock, http
	BaseURL     string        `json:"base_url"`
	AccessToken string        `json:"access_token"`
	Timeout     time.Duration `json:"timeout"`
}

// SchedulerConfig controls periodic correlation passes
type SchedulerConfig struct {
	CorrelationEnabled  bool          `json:"correlation_enabled"`
	CorrelationInterval time.Duration `json:"correlation_interval"`
	SellerIDs           []string      `json:"seller_ids"`
	LookbackHours       int           `json:"lookback_hours"`
}

// EventsConfig configures conversion event publishing
type EventsConfig struct {
	Enabled      bool          `json:"enabled"`
	Brokers      []string      `json:"brokers"`
	Topic        string        `json:"topic"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// BotConfig seeds the machine account allowed to call the bot API
type BotConfig struct {
	Username string `json:"username"`
	Password string `json:"-"`
}

// LoadProductionConfig loads configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "attribution"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", false),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 5*time.Minute),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 1*1024*1024), // 1MB
			TrustedProxies:  getEnvStringSlice("SERVER_TRUSTED_PROXIES", []string{"127.0.0.1"}),
			ProxyHeader:     getEnvString("SERVER_PROXY_HEADER", "X-Real-IP"),
		},
		Security: SecurityConfig{
			AllowedOrigins:  getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"https://attribution.example.com"}),
			GlobalRateLimit: getEnvInt("GLOBAL_RATE_LIMIT", 2000),
			AuthRateLimit:   getEnvInt("AUTH_RATE_LIMIT", 20),
			RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
			BcryptCost:      getEnvInt("BCRYPT_COST", 12),
		},
		JWT: JWTConfig{
			SecretKey:       getEnvString("JWT_SECRET_KEY", ""),
			PrivateKey:      getEnvString("JWT_PRIVATE_KEY", ""),
			PublicKey:       getEnvString("JWT_PUBLIC_KEY", ""),
			UseRSAKeys:      getEnvBool("JWT_USE_RSA_KEYS", false),
			AccessTokenTTL:  getEnvDuration("JWT_ACCESS_TOKEN_TTL", utils.AccessTokenTTL),
			RefreshTokenTTL: getEnvDuration("JWT_REFRESH_TOKEN_TTL", utils.RefreshTokenTTL),
			Issuer:          getEnvString("JWT_ISSUER", "orochi-attribution"),
			Audience:        getEnvString("JWT_AUDIENCE", "orochi-attribution-api"),
		},
		Logging: LoggingConfig{
			Level:            getEnvString("LOG_LEVEL", "info"),
			Output:           getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:         getEnvString("LOG_FILE_PATH", "data/app.log"),
			MaxSize:          getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups:       getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAge:           getEnvInt("LOG_MAX_AGE", 30),
			Compress:         getEnvBool("LOG_COMPRESS", true),
			SchedulerLogPath: getEnvString("LOG_SCHEDULER_PATH", "data/scheduler.log"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:         getEnvBool("CACHE_ENABLED", false),
			Provider:        getEnvString("CACHE_PROVIDER", "redis"),
			RedisURL:        getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:         getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix:     getEnvString("CACHE_REDIS_PREFIX", "attribution:"),
			DefaultTTL:      getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
			CleanupInterval: getEnvDuration("CACHE_CLEANUP_INTERVAL", 30*time.Second),
		},
		Deployment: DeploymentConfig{
			Domain:      getEnvString("DOMAIN", "attribution.example.com"),
			APIDomain:   getEnvString("API_DOMAIN", "api.attribution.example.com"),
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("APP_VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", "unknown"),
			BuildTime:   getEnvString("BUILD_TIME", "unknown"),
		},
		Attribution: AttributionConfig{
			ShortLinkDomain:     getEnvString("SHORT_LINK_DOMAIN", "https://go.attribution.example.com"),
			RedirectFallbackURL: getEnvString("REDIRECT_FALLBACK_URL", "https://www.mercadolibre.com.mx"),
			ItemIDPattern:       getEnvString("ITEM_ID_PATTERN", utils.DefaultItemIDPattern),
			ClickIDNode:         int64(getEnvInt("CLICK_ID_NODE", 1)),
			Window:              getEnvDuration("ATTRIBUTION_WINDOW", utils.AttributionWindow),
			DefaultLookback:     getEnvDuration("CORRELATION_DEFAULT_LOOKBACK", 7*24*time.Hour),
			DefaultOrderLimit:   getEnvInt("CORRELATION_DEFAULT_ORDER_LIMIT", utils.DefaultOrderLimit),
			MaxOrderLimit:       getEnvInt("CORRELATION_MAX_ORDER_LIMIT", 5000),
			PageSize:            getEnvInt("ORDER_FEED_PAGE_SIZE", utils.DefaultOrderPageSize),
			MaxOffset:           getEnvInt("ORDER_FEED_MAX_OFFSET", utils.DefaultOrderMaxOffset),
			PageDelay:           getEnvDuration("ORDER_FEED_PAGE_DELAY", 250*time.Millisecond),
			RunLockTTL:          getEnvDuration("CORRELATION_LOCK_TTL", 15*time.Minute),
			RunTimeout:          getEnvDuration("CORRELATION_RUN_TIMEOUT", 10*time.Minute),
		},
		OrderFeed: OrderFeedConfig{
			Provider:    getEnvString("ORDER_FEED_PROVIDER", "mock"),
			BaseURL:     getEnvString("ORDER_FEED_BASE_URL", ""),
			AccessToken: getEnvString("ORDER_FEED_ACCESS_TOKEN", ""),
			Timeout:     getEnvDuration("ORDER_FEED_TIMEOUT", 15*time.Second),
		},
		Scheduler: SchedulerConfig{
			CorrelationEnabled:  getEnvBool("CORRELATION_SCHEDULER_ENABLED", false),
			CorrelationInterval: getEnvDuration("CORRELATION_SCHEDULER_INTERVAL", 1*time.Hour),
			SellerIDs:           getEnvStringSlice("CORRELATION_SELLER_IDS", []string{}),
			LookbackHours:       getEnvInt("CORRELATION_SCHEDULER_LOOKBACK_HOURS", 48),
		},
		Events: EventsConfig{
			Enabled:      getEnvBool("EVENTS_ENABLED", false),
			Brokers:      getEnvStringSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:        getEnvString("KAFKA_CONVERSIONS_TOPIC", "attribution.conversions"),
			WriteTimeout: getEnvDuration("KAFKA_WRITE_TIMEOUT", 10*time.Second),
		},
		Bot: BotConfig{
			Username: getEnvString("BOT_USERNAME", ""),
			Password: getEnvString("BOT_PASSWORD", ""),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return nil
	}

	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		// Remove quotes if present
		if len(value) >= 2 &&
			((strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
				(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`))) {
			value = value[1 : len(value)-1]
		}

		// Set environment variable if not already set
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}
	if cfg.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD is required")
	}

	// Validate JWT configuration
	if !cfg.JWT.UseRSAKeys && len(cfg.JWT.SecretKey) < 32 {
		errors = append(errors, "JWT_SECRET_KEY must be at least 32 characters long")
	}
	if cfg.JWT.AccessTokenTTL <= 0 {
		errors = append(errors, "JWT_ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.JWT.RefreshTokenTTL <= 0 {
		errors = append(errors, "JWT_REFRESH_TOKEN_TTL must be positive")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}

	// Validate logging configuration
	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errors = append(errors, "LOG_LEVEL must be one of: [debug info warn error]")
	}
	switch cfg.Logging.Output {
	case "", "stdout", "file", "both":
	default:
		errors = append(errors, "LOG_OUTPUT must be one of: [stdout file both]")
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled && cfg.Cache.Provider == "redis" && cfg.Cache.RedisURL == "" {
		errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled with redis provider")
	}

	errors = append(errors, validateAttribution(cfg.Attribution)...)

	// Validate order feed configuration
	switch cfg.OrderFeed.Provider {
	case "mock":
	case "http":
		if _, err := url.ParseRequestURI(cfg.OrderFeed.BaseURL); err != nil {
			errors = append(errors, "ORDER_FEED_BASE_URL must be a valid URL when ORDER_FEED_PROVIDER=http")
		}
	default:
		errors = append(errors, "ORDER_FEED_PROVIDER must be one of: [mock http]")
	}

	if cfg.Scheduler.CorrelationEnabled {
		if len(cfg.Scheduler.SellerIDs) == 0 {
			errors = append(errors, "CORRELATION_SELLER_IDS is required when the correlation scheduler is enabled")
		}
		if cfg.Scheduler.CorrelationInterval <= 0 {
			errors = append(errors, "CORRELATION_SCHEDULER_INTERVAL must be positive")
		}
	}

	if cfg.Events.Enabled {
		if len(cfg.Events.Brokers) == 0 {
			errors = append(errors, "KAFKA_BROKERS is required when events are enabled")
		}
		if cfg.Events.Topic == "" {
			errors = append(errors, "KAFKA_CONVERSIONS_TOPIC is required when events are enabled")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

func validateAttribution(cfg AttributionConfig) []string {
	var errors []string

	if u, err := url.Parse(cfg.ShortLinkDomain); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, "SHORT_LINK_DOMAIN must be an absolute URL")
	}
	if u, err := url.Parse(cfg.RedirectFallbackURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, "REDIRECT_FALLBACK_URL must be an absolute URL")
	}
	if _, err := regexp.Compile(cfg.ItemIDPattern); err != nil {
		errors = append(errors, fmt.Sprintf("ITEM_ID_PATTERN is not a valid expression: %v", err))
	}
	if cfg.ClickIDNode < 0 || cfg.ClickIDNode > 1023 {
		errors = append(errors, "CLICK_ID_NODE must be between 0 and 1023")
	}
	if cfg.Window <= 0 {
		errors = append(errors, "ATTRIBUTION_WINDOW must be positive")
	}
	if cfg.DefaultLookback <= 0 {
		errors = append(errors, "CORRELATION_DEFAULT_LOOKBACK must be positive")
	}
	if cfg.DefaultOrderLimit <= 0 || cfg.DefaultOrderLimit > cfg.MaxOrderLimit {
		errors = append(errors, "CORRELATION_DEFAULT_ORDER_LIMIT must be between 1 and CORRELATION_MAX_ORDER_LIMIT")
	}
	if cfg.PageSize <= 0 {
		errors = append(errors, "ORDER_FEED_PAGE_SIZE must be positive")
	}
	if cfg.MaxOffset < cfg.PageSize {
		errors = append(errors, "ORDER_FEED_MAX_OFFSET must be at least ORDER_FEED_PAGE_SIZE")
	}
	if cfg.PageDelay < 0 {
		errors = append(errors, "ORDER_FEED_PAGE_DELAY must not be negative")
	}
	if cfg.RunLockTTL <= 0 {
		errors = append(errors, "CORRELATION_LOCK_TTL must be positive")
	}
	if cfg.RunTimeout <= 0 {
		errors = append(errors, "CORRELATION_RUN_TIMEOUT must be positive")
	} else if cfg.RunLockTTL > 0 && cfg.RunTimeout >= cfg.RunLockTTL {
		errors = append(errors, "CORRELATION_RUN_TIMEOUT must be shorter than CORRELATION_LOCK_TTL")
	}

	return errors
}
