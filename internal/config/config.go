package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"atlas-auth/internal/tenant"
)

const minSecretLength = 32

type Config struct {
	ServerPort              string        `env:"SERVER_PORT" envDefault:"8000"`
	ServerReadHeaderTimeout time.Duration `env:"SERVER_READ_HEADER_TIMEOUT" envDefault:"10s"`
	ServerWriteTimeout      time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	ServerIdleTimeout       time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	RequestTimeout          time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	DatabaseURL   string `env:"DATABASE_URL,required"`
	DBMaxConns    int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns    int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	DefaultSchema string `env:"DEFAULT_SCHEMA" envDefault:"public"`

	// Empty disables the durable mail queue; mail is then sent inline.
	RedisURL string `env:"REDIS_URL"`

	JWTSecret           string `env:"JWT_SECRET,required"`
	JWTAccessTTLMinutes int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"30"`
	JWTRefreshTTLDays   int    `env:"JWT_REFRESH_TTL_DAYS" envDefault:"30"`
	BindFingerprint     bool   `env:"BIND_FINGERPRINT" envDefault:"false"`

	ServiceAppCode  string `env:"SERVICE_APP_CODE" envDefault:"ATLAS"`
	AdminRoleLevels []int  `env:"ADMIN_ROLE_LEVELS" envDefault:"100,80" envSeparator:","`
	FrontendURL     string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	Mail Mail `envPrefix:"MAIL_"`

	CORSOrigins        []string      `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
	RateLimitRPM       int           `env:"RATE_LIMIT_RPM" envDefault:"100"`
	AuthRateLimitRPM   int           `env:"AUTH_RATE_LIMIT_RPM" envDefault:"10"`
	TokenSweepInterval time.Duration `env:"TOKEN_SWEEP_INTERVAL" envDefault:"1h"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"pretty"`

	// Empty means a random password is generated and logged once per seeded tenant.
	SeedAdminPassword string `env:"SEED_ADMIN_PASSWORD"`
}

// Mail configures SMTP delivery. An empty Server logs messages instead of
// sending them.
type Mail struct {
	Server   string `env:"SERVER"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM" envDefault:"no-reply@atlas.local"`
	FromName string `env:"FROM_NAME" envDefault:"Atlas"`
	StartTLS bool   `env:"STARTTLS" envDefault:"true"`
	SSL      bool   `env:"SSL" envDefault:"false"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return parse(env.Options{})
}

// LoadFrom parses the given variables only, ignoring the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)
	cfg.DefaultSchema = strings.TrimSpace(cfg.DefaultSchema)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.JWTSecret) < minSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLength)
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS and DB_MAX_CONNS must satisfy 0 <= min <= max, max > 0")
	}

	if _, err := tenant.Parse(c.DefaultSchema, ""); err != nil {
		return fmt.Errorf("DEFAULT_SCHEMA: %w", err)
	}

	if c.JWTAccessTTLMinutes <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL_MINUTES must be positive")
	}

	if c.JWTRefreshTTLDays <= 0 {
		return fmt.Errorf("JWT_REFRESH_TTL_DAYS must be positive")
	}

	if strings.TrimSpace(c.ServiceAppCode) == "" {
		return fmt.Errorf("SERVICE_APP_CODE cannot be empty")
	}

	if len(c.AdminRoleLevels) == 0 {
		return fmt.Errorf("ADMIN_ROLE_LEVELS cannot be empty")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.RateLimitRPM <= 0 || c.AuthRateLimitRPM <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM and AUTH_RATE_LIMIT_RPM must be positive")
	}

	if c.TokenSweepInterval < 0 {
		return fmt.Errorf("TOKEN_SWEEP_INTERVAL cannot be negative")
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.LogLevel) {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}

	if c.LogFormat != "pretty" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be pretty or json")
	}

	if c.Mail.SSL && c.Mail.StartTLS {
		return fmt.Errorf("MAIL_SSL and MAIL_STARTTLS are mutually exclusive")
	}

	return nil
}

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWTRefreshTTLDays) * 24 * time.Hour
}

// DefaultNamespace is only valid after Validate succeeded.
func (c *Config) DefaultNamespace() tenant.Namespace {
	return tenant.MustParse(c.DefaultSchema)
}
