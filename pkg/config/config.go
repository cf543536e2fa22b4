package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hugh/rentwise/pkg/util"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Access    AccessConfig
}

type ServerConfig struct {
	Host     string
	Port     int
	Env      string
	LogLevel string
	Origins  []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

// AccessConfig tunes the access engine and its background jobs.
type AccessConfig struct {
	GracePeriodHours    int
	LookupFailurePolicy string // deny | allow
	SweepCron           string
	SweepConcurrency    int
	SyncConcurrency     int
	NotifyChannel       string
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpiryHours) * time.Hour
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func (a *AccessConfig) GracePeriod() time.Duration {
	return time.Duration(a.GracePeriodHours) * time.Hour
}

// Validate rejects settings the engine cannot run with.
func (a *AccessConfig) Validate() error {
	switch a.LookupFailurePolicy {
	case "deny", "allow":
	default:
		return fmt.Errorf("invalid ACCESS_LOOKUP_FAILURE_POLICY %q (want deny or allow)", a.LookupFailurePolicy)
	}
	if a.GracePeriodHours < 0 {
		return fmt.Errorf("ACCESS_GRACE_PERIOD_HOURS must not be negative")
	}
	if err := util.ValidateCronExpr(a.SweepCron); err != nil {
		return fmt.Errorf("ACCESS_SWEEP_CRON: %w", err)
	}
	return nil
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("SERVER_LOG_LEVEL", "")
	v.SetDefault("SERVER_ALLOWED_ORIGINS", "")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "rentwise")
	v.SetDefault("DATABASE_PASSWORD", "rentwise_secret")
	v.SetDefault("DATABASE_NAME", "rentwise")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_EXPIRY_HOURS", 24)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("ACCESS_GRACE_PERIOD_HOURS", 120)
	v.SetDefault("ACCESS_LOOKUP_FAILURE_POLICY", "deny")
	v.SetDefault("ACCESS_SWEEP_CRON", "0 * * * *")
	v.SetDefault("ACCESS_SWEEP_CONCURRENCY", 4)
	v.SetDefault("ACCESS_SYNC_CONCURRENCY", 8)
	v.SetDefault("ACCESS_NOTIFY_CHANNEL", "subscription-events")

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host:     v.GetString("SERVER_HOST"),
			Port:     v.GetInt("SERVER_PORT"),
			Env:      v.GetString("SERVER_ENV"),
			LogLevel: v.GetString("SERVER_LOG_LEVEL"),
			Origins:  splitList(v.GetString("SERVER_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("JWT_SECRET"),
			ExpiryHours: v.GetInt("JWT_EXPIRY_HOURS"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Access: AccessConfig{
			GracePeriodHours:    v.GetInt("ACCESS_GRACE_PERIOD_HOURS"),
			LookupFailurePolicy: strings.ToLower(v.GetString("ACCESS_LOOKUP_FAILURE_POLICY")),
			SweepCron:           v.GetString("ACCESS_SWEEP_CRON"),
			SweepConcurrency:    v.GetInt("ACCESS_SWEEP_CONCURRENCY"),
			SyncConcurrency:     v.GetInt("ACCESS_SYNC_CONCURRENCY"),
			NotifyChannel:       v.GetString("ACCESS_NOTIFY_CHANNEL"),
		},
	}

	if err := cfg.Access.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
