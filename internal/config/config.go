// Package config loads application configuration from environment
// variables.  A .env file in the working directory is read first when
// present; variables already set in the environment win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.
//
// Fields:
//
//	Env               – application environment (APP_ENV, e.g. dev, prod).
//	Port              – HTTP port to listen on (APP_PORT).
//	DBUser … DBName   – MySQL connection settings (DB_*).
//	JWTSecret         – secret used to verify staff tokens (JWT_SECRET).
//	AccessTTL         – lifetime of issued staff tokens (ACCESS_TOKEN_TTL_MIN).
//	AMQPURL           – RabbitMQ URL for broadcasts; empty disables them.
//	BroadcastExchange – topic exchange broadcasts are published to.
//	PublishTimeout    – upper bound for a single broadcast.
//	LogLevel          – zap level (debug, info, warn, error).
//	MigrateOnStart    – apply embedded schema migrations at startup.
type Config struct {
	Env               string
	Port              string
	DBUser            string
	DBPass            string
	DBHost            string
	DBPort            string
	DBName            string
	JWTSecret         string
	AccessTTL         time.Duration
	AMQPURL           string
	BroadcastExchange string
	PublishTimeout    time.Duration
	LogLevel          string
	MigrateOnStart    bool
}

// IsProduction reports whether the service runs with APP_ENV=prod.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "prod") || strings.EqualFold(c.Env, "production")
}

// Load reads the optional .env file and the environment.  Every missing
// or malformed required variable is reported in the returned error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}

	var r reader
	cfg := Config{
		Env:               envStr("APP_ENV", "dev"),
		Port:              envStr("APP_PORT", "8080"),
		DBUser:            r.must("DB_USER"),
		DBPass:            os.Getenv("DB_PASS"),
		DBHost:            envStr("DB_HOST", "127.0.0.1"),
		DBPort:            envStr("DB_PORT", "3306"),
		DBName:            r.must("DB_NAME"),
		JWTSecret:         r.must("JWT_SECRET"),
		AccessTTL:         time.Duration(r.mustInt("ACCESS_TOKEN_TTL_MIN", 15)) * time.Minute,
		AMQPURL:           envStr("AMQP_URL", os.Getenv("RABBITMQ_URL")),
		BroadcastExchange: envStr("BROADCAST_EXCHANGE", "ticketing.broadcast"),
		PublishTimeout:    envDur("PUBLISH_TIMEOUT", 2*time.Second),
		LogLevel:          envStr("LOG_LEVEL", "info"),
		MigrateOnStart:    envBool("MIGRATE_ON_START", false),
	}
	if err := errors.Join(r.errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// TokenConfig is the subset of Config needed to mint staff tokens.
type TokenConfig struct {
	JWTSecret string
	AccessTTL time.Duration
}

// LoadToken reads only JWT_SECRET and ACCESS_TOKEN_TTL_MIN, so tokens
// can be minted on a host without database settings.
func LoadToken() (TokenConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return TokenConfig{}, fmt.Errorf("read .env: %w", err)
	}
	var r reader
	cfg := TokenConfig{
		JWTSecret: r.must("JWT_SECRET"),
		AccessTTL: time.Duration(r.mustInt("ACCESS_TOKEN_TTL_MIN", 15)) * time.Minute,
	}
	if err := errors.Join(r.errs...); err != nil {
		return TokenConfig{}, err
	}
	return cfg, nil
}

// reader collects configuration errors so all of them are reported at
// once.
type reader struct {
	errs []error
}

// must retrieves the value of a required environment variable.
func (r *reader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		r.errs = append(r.errs, fmt.Errorf("missing required env var: %s", key))
	}
	return v
}

// mustInt converts an optional variable to an int, falling back to def
// when unset.  A value that is set but not a number is an error.
func (r *reader) mustInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid int for %s: %q", key, s))
		return def
	}
	return n
}
