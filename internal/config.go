package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	TrustProxyHeaders bool          `mapstructure:"trust_proxy_headers"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	JWTSecret                  string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	AccessTokenExpireMinutes   int           `mapstructure:"access_token_expire_minutes"`
	RefreshTokenDuration       time.Duration `mapstructure:"refresh_token_duration"`
	PasswordResetTokenDuration time.Duration `mapstructure:"password_reset_token_duration"`
	TokenLeeway                time.Duration `mapstructure:"token_leeway"`
	BCryptCost                 int           `mapstructure:"bcrypt_cost" validate:"min=4,max=31"`
	MaxConcurrentHashes        int           `mapstructure:"max_concurrent_hashes"`
	AdminRoles                 []string      `mapstructure:"admin_roles"`
	SingleUseResetTokens       bool          `mapstructure:"single_use_reset_tokens"`
	LoginRatePerSecond         float64       `mapstructure:"login_rate_per_second"`
	LoginBurst                 int           `mapstructure:"login_burst"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

const (
	DefaultAccessTokenExpireMinutes   = 120
	DefaultRefreshTokenDuration       = 7 * 24 * time.Hour
	DefaultPasswordResetTokenDuration = time.Hour
	DefaultBCryptCost                 = 12
	minSecretLength                   = 32
)

// DefaultAdminRoles are the role names that bypass explicit permission checks.
var DefaultAdminRoles = []string{"admin", "administrator", "系统管理员"}

// ApplyDefaults fills zero values with the documented defaults.
func (c *Config) ApplyDefaults() {
	s := &c.Security
	if s.AccessTokenExpireMinutes == 0 {
		s.AccessTokenExpireMinutes = DefaultAccessTokenExpireMinutes
	}
	if s.RefreshTokenDuration == 0 {
		s.RefreshTokenDuration = DefaultRefreshTokenDuration
	}
	if s.PasswordResetTokenDuration == 0 {
		s.PasswordResetTokenDuration = DefaultPasswordResetTokenDuration
	}
	if s.BCryptCost == 0 {
		s.BCryptCost = DefaultBCryptCost
	}
	if len(s.AdminRoles) == 0 {
		s.AdminRoles = append([]string(nil), DefaultAdminRoles...)
	}
	if s.LoginRatePerSecond == 0 {
		s.LoginRatePerSecond = 5
	}
	if s.LoginBurst == 0 {
		s.LoginBurst = 10
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 5 * time.Second
	}
	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = "/metrics"
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "text"
	}
}

// AccessTokenTTL converts the minute-based setting into a duration.
func (c *SecurityConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

// ----------------- ENV LOADING -----------------

// LoadConfigFromEnv builds the configuration for container deployments where
// no config file is mounted.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("BASE_URL", ""),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", ""),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout:    getEnvAsDuration("HTTP_REQUEST_TIMEOUT", 5*time.Second),
			TrustProxyHeaders: getEnvAsBool("HTTP_TRUST_PROXY_HEADERS", false),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_URL", ""),
		},
		Security: SecurityConfig{
			JWTSecret:                  getEnv("JWT_SECRET", ""),
			AccessTokenExpireMinutes:   getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", DefaultAccessTokenExpireMinutes),
			RefreshTokenDuration:       getEnvAsDuration("REFRESH_TOKEN_DURATION", DefaultRefreshTokenDuration),
			PasswordResetTokenDuration: getEnvAsDuration("PASSWORD_RESET_TOKEN_DURATION", DefaultPasswordResetTokenDuration),
			TokenLeeway:                getEnvAsDuration("TOKEN_LEEWAY", 0),
			BCryptCost:                 getEnvAsInt("BCRYPT_COST", DefaultBCryptCost),
			MaxConcurrentHashes:        getEnvAsInt("MAX_CONCURRENT_HASHES", 0),
			AdminRoles:                 getEnvAsList("ADMIN_ROLES", DefaultAdminRoles),
			SingleUseResetTokens:       getEnvAsBool("SINGLE_USE_RESET_TOKENS", true),
			LoginRatePerSecond:         getEnvAsFloat("LOGIN_RATE_PER_SECOND", 5),
			LoginBurst:                 getEnvAsInt("LOGIN_BURST", 10),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: getEnvAsBool("METRICS_ENABLED", true),
				Path:    getEnv("METRICS_PATH", "/metrics"),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultVal...)
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Redis.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("redis config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if len(c.JWTSecret) < minSecretLength {
		return fmt.Errorf("jwt_secret must be at least %d characters", minSecretLength)
	}
	if c.AccessTokenExpireMinutes <= 0 {
		return errors.New("access_token_expire_minutes must be positive")
	}
	if c.RefreshTokenDuration <= 0 {
		return errors.New("refresh_token_duration must be positive")
	}
	if c.PasswordResetTokenDuration <= 0 {
		return errors.New("password_reset_token_duration must be positive")
	}
	if c.TokenLeeway < 0 {
		return errors.New("token_leeway cannot be negative")
	}
	if c.BCryptCost < 4 || c.BCryptCost > 31 {
		return errors.New("bcrypt_cost must be between 4 and 31")
	}
	if c.MaxConcurrentHashes < 0 {
		return errors.New("max_concurrent_hashes cannot be negative")
	}
	if len(c.AdminRoles) == 0 {
		return errors.New("admin_roles cannot be empty")
	}
	return nil
}

func (c *RedisConfig) Validate() error {
	if c.URL == "" {
		return nil
	}
	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}
	return nil
}

// Enabled reports whether a redis-backed token denylist should be used.
func (c *RedisConfig) Enabled() bool {
	return c.URL != ""
}
