// Package config loads the service configuration from an optional YAML file
// and the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/todos/observe"
	"github.com/jonwraymond/todos/secret"
)

// Key cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Task store drivers.
const (
	StoreDynamoDB = "dynamodb"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the service configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Auth        AuthConfig        `yaml:"auth"`
	Redis       RedisConfig       `yaml:"redis"`
	Store       StoreConfig       `yaml:"store"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	AWS         AWSConfig         `yaml:"aws"`
	Observe     ObserveConfig     `yaml:"observe"`
}

type ServerConfig struct {
	Addr               string   `yaml:"addr"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`

	// ExposeAuthorizer mounts POST /authorize.
	ExposeAuthorizer bool `yaml:"expose_authorizer"`
}

type AuthConfig struct {
	JWKSURL          string         `yaml:"jwks_url"`
	FetchTimeout     time.Duration  `yaml:"fetch_timeout"`
	FetchRetries     int            `yaml:"fetch_retries"`
	RateLimit        float64        `yaml:"rate_limit"`
	RateBurst        int            `yaml:"rate_burst"`
	BreakerThreshold int            `yaml:"breaker_threshold"`
	BreakerReset     time.Duration  `yaml:"breaker_reset"`
	Issuer           string         `yaml:"issuer"`
	Audience         string         `yaml:"audience"`
	Leeway           time.Duration  `yaml:"leeway"`
	KeyCache         KeyCacheConfig `yaml:"key_cache"`
}

type KeyCacheConfig struct {
	Backend string `yaml:"backend"`

	// TTL of zero keeps keys for the life of the backend.
	TTL time.Duration `yaml:"ttl"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type StoreConfig struct {
	Driver  string        `yaml:"driver"`
	Table   string        `yaml:"table"`
	Index   string        `yaml:"index"`
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`

	// MaxConcurrent caps in-flight store calls; zero is uncapped.
	MaxConcurrent int           `yaml:"max_concurrent"`
	MaxWait       time.Duration `yaml:"max_wait"`
}

type AttachmentsConfig struct {
	Bucket string `yaml:"bucket"`

	// URLExpiration is in seconds.
	URLExpiration int `yaml:"url_expiration"`
}

type AWSConfig struct {
	Region string `yaml:"region"`

	// Endpoint overrides the service endpoint, e.g. for a local emulator.
	Endpoint string `yaml:"endpoint"`
}

type ObserveConfig struct {
	ServiceName     string `yaml:"service_name"`
	LogLevel        string `yaml:"log_level"`
	TracesExporter  string `yaml:"traces_exporter"`
	MetricsExporter string `yaml:"metrics_exporter"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080", CORSAllowedOrigins: []string{"*"}},
		Auth: AuthConfig{
			FetchTimeout: 10 * time.Second,
			RateBurst:    1,
			BreakerReset: 30 * time.Second,
			KeyCache:     KeyCacheConfig{Backend: CacheMemory},
		},
		Redis:       RedisConfig{Prefix: "todos:"},
		Store:       StoreConfig{Driver: StoreDynamoDB, Timeout: 5 * time.Second},
		Attachments: AttachmentsConfig{URLExpiration: 300},
		Observe: ObserveConfig{
			ServiceName:     "todos",
			LogLevel:        "info",
			TracesExporter:  "none",
			MetricsExporter: "prometheus",
		},
	}
}

// Load reads path (when non-empty) over the defaults, then applies
// environment overrides. It does not validate.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := c.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return c, nil
}

// ResolveSecrets replaces ${VAR} and secretref: values in the fields that
// may carry credentials.
func (c *Config) ResolveSecrets(ctx context.Context, r *secret.Resolver) error {
	if err := r.ResolveAll(ctx,
		&c.Auth.JWKSURL,
		&c.Redis.Addr,
		&c.Redis.Password,
		&c.Store.DSN,
		&c.Attachments.Bucket,
	); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Validate reports every missing or invalid value.
func (c *Config) Validate() error {
	errs := c.authProblems()
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("config: "+format, args...))
	}

	switch c.Store.Driver {
	case StoreDynamoDB:
		if c.Store.Table == "" {
			add("TODOS_TABLE is required for the dynamodb store")
		}
		if c.Store.Index == "" {
			add("TODOS_CREATED_AT_INDEX is required for the dynamodb store")
		}
	case StorePostgres:
		if c.Store.DSN == "" {
			add("DATABASE_URL is required for the postgres store")
		}
	case StoreMemory:
	default:
		add("unknown TASK_STORE %q", c.Store.Driver)
	}
	if c.Store.Timeout <= 0 {
		add("STORE_TIMEOUT must be positive")
	}
	if c.Store.MaxConcurrent < 0 {
		add("STORE_MAX_CONCURRENT must not be negative")
	}

	if c.Attachments.Bucket == "" {
		add("ATTACHMENT_S3_BUCKET is required")
	}
	if c.Attachments.URLExpiration <= 0 {
		add("SIGNED_URL_EXPIRATION must be positive")
	}

	oc := c.ObserveConfig("")
	if err := oc.Validate(); err != nil {
		add("observe: %w", err)
	}
	return errors.Join(errs...)
}

// ValidateAuth checks only what the authorizer needs, for commands that do
// not touch the task store.
func (c *Config) ValidateAuth() error {
	return errors.Join(c.authProblems()...)
}

func (c *Config) authProblems() []error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("config: "+format, args...))
	}

	if c.Auth.JWKSURL == "" {
		add("JWKS_URL is required")
	}
	if c.Auth.FetchTimeout <= 0 {
		add("JWKS_FETCH_TIMEOUT must be positive")
	}
	if c.Auth.FetchRetries < 0 {
		add("JWKS_FETCH_RETRIES must not be negative")
	}

	switch c.Auth.KeyCache.Backend {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if c.Redis.Addr == "" {
			add("REDIS_ADDR is required for the redis key cache")
		}
	default:
		add("unknown KEY_CACHE_BACKEND %q", c.Auth.KeyCache.Backend)
	}
	return errs
}

// ObserveConfig builds the observer configuration.
func (c *Config) ObserveConfig(version string) observe.Config {
	return observe.Config{
		ServiceName: c.Observe.ServiceName,
		Version:     version,
		Tracing: observe.TracingConfig{
			Enabled:   c.Observe.TracesExporter != "none",
			Exporter:  c.Observe.TracesExporter,
			SamplePct: 1,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.Observe.MetricsExporter != "none",
			Exporter: c.Observe.MetricsExporter,
		},
		Logging: observe.LoggingConfig{Enabled: true, Level: c.Observe.LogLevel},
	}
}

func (c *Config) applyEnvOverrides() error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := getEnvStr(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if s, ok := getEnvStr(key); ok {
			i, err := strconv.Atoi(s)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = i
		}
	}
	dur := func(key string, dst *time.Duration) {
		if s, ok := getEnvStr(key); ok {
			d, err := parseDuration(s)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("HTTP_ADDR", &c.Server.Addr)
	if s, ok := getEnvStr("CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = splitList(s)
	}
	if s, ok := getEnvStr("EXPOSE_AUTHORIZER"); ok {
		b, err := strconv.ParseBool(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: EXPOSE_AUTHORIZER: %w", err))
		} else {
			c.Server.ExposeAuthorizer = b
		}
	}

	str("JWKS_URL", &c.Auth.JWKSURL)
	dur("JWKS_FETCH_TIMEOUT", &c.Auth.FetchTimeout)
	num("JWKS_FETCH_RETRIES", &c.Auth.FetchRetries)
	if s, ok := getEnvStr("JWKS_RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: JWKS_RATE_LIMIT: %w", err))
		} else {
			c.Auth.RateLimit = f
		}
	}
	num("JWKS_RATE_BURST", &c.Auth.RateBurst)
	num("JWKS_BREAKER_THRESHOLD", &c.Auth.BreakerThreshold)
	dur("JWKS_BREAKER_RESET", &c.Auth.BreakerReset)
	str("AUTH_ISSUER", &c.Auth.Issuer)
	str("AUTH_AUDIENCE", &c.Auth.Audience)
	dur("AUTH_LEEWAY", &c.Auth.Leeway)
	str("KEY_CACHE_BACKEND", &c.Auth.KeyCache.Backend)
	dur("KEY_CACHE_TTL", &c.Auth.KeyCache.TTL)

	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	num("REDIS_DB", &c.Redis.DB)

	str("TASK_STORE", &c.Store.Driver)
	str("TODOS_TABLE", &c.Store.Table)
	str("TODOS_CREATED_AT_INDEX", &c.Store.Index)
	str("DATABASE_URL", &c.Store.DSN)
	dur("STORE_TIMEOUT", &c.Store.Timeout)
	num("STORE_MAX_CONCURRENT", &c.Store.MaxConcurrent)
	dur("STORE_MAX_WAIT", &c.Store.MaxWait)

	str("ATTACHMENT_S3_BUCKET", &c.Attachments.Bucket)
	num("SIGNED_URL_EXPIRATION", &c.Attachments.URLExpiration)

	str("AWS_REGION", &c.AWS.Region)
	str("AWS_ENDPOINT_URL", &c.AWS.Endpoint)

	str("LOG_LEVEL", &c.Observe.LogLevel)
	str("OTEL_SERVICE_NAME", &c.Observe.ServiceName)
	str("OTEL_TRACES_EXPORTER", &c.Observe.TracesExporter)
	str("OTEL_METRICS_EXPORTER", &c.Observe.MetricsExporter)

	return errors.Join(errs...)
}

func getEnvStr(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

// parseDuration accepts Go durations and bare seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
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
