package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonwraymond/todos/secret"
)

var envKeys = []string{
	"HTTP_ADDR", "CORS_ALLOWED_ORIGINS", "EXPOSE_AUTHORIZER",
	"JWKS_URL", "JWKS_FETCH_TIMEOUT", "JWKS_FETCH_RETRIES", "JWKS_RATE_LIMIT",
	"JWKS_RATE_BURST", "JWKS_BREAKER_THRESHOLD", "JWKS_BREAKER_RESET",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_LEEWAY", "KEY_CACHE_BACKEND", "KEY_CACHE_TTL",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"TASK_STORE", "TODOS_TABLE", "TODOS_CREATED_AT_INDEX", "DATABASE_URL", "STORE_TIMEOUT",
	"STORE_MAX_CONCURRENT", "STORE_MAX_WAIT",
	"ATTACHMENT_S3_BUCKET", "SIGNED_URL_EXPIRATION", "AWS_REGION", "AWS_ENDPOINT_URL",
	"LOG_LEVEL", "OTEL_SERVICE_NAME", "OTEL_TRACES_EXPORTER", "OTEL_METRICS_EXPORTER",
}

// clearEnv blanks every recognized variable; blank values are ignored.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func validEnv(t *testing.T) {
	t.Helper()
	clearEnv(t)
	t.Setenv("JWKS_URL", "https://idp.example/.well-known/jwks.json")
	t.Setenv("TODOS_TABLE", "Todos-dev")
	t.Setenv("TODOS_CREATED_AT_INDEX", "CreatedAtIndex")
	t.Setenv("ATTACHMENT_S3_BUCKET", "todos-attachments")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q", c.Server.Addr)
	}
	if c.Auth.FetchTimeout != 10*time.Second || c.Auth.FetchRetries != 0 {
		t.Errorf("fetch defaults = %v/%d", c.Auth.FetchTimeout, c.Auth.FetchRetries)
	}
	if c.Auth.KeyCache.Backend != CacheMemory || c.Auth.KeyCache.TTL != 0 {
		t.Errorf("key cache defaults = %+v", c.Auth.KeyCache)
	}
	if c.Store.Driver != StoreDynamoDB || c.Store.Timeout != 5*time.Second {
		t.Errorf("store defaults = %+v", c.Store)
	}
	if c.Attachments.URLExpiration != 300 {
		t.Errorf("URLExpiration = %d", c.Attachments.URLExpiration)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	validEnv(t)
	t.Setenv("JWKS_FETCH_TIMEOUT", "3s")
	t.Setenv("JWKS_FETCH_RETRIES", "2")
	t.Setenv("JWKS_RATE_LIMIT", "0.5")
	t.Setenv("KEY_CACHE_BACKEND", "redis")
	t.Setenv("KEY_CACHE_TTL", "3600")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("SIGNED_URL_EXPIRATION", "60")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("EXPOSE_AUTHORIZER", "true")
	t.Setenv("STORE_MAX_CONCURRENT", "16")
	t.Setenv("STORE_MAX_WAIT", "250ms")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Auth.FetchTimeout != 3*time.Second || c.Auth.FetchRetries != 2 || c.Auth.RateLimit != 0.5 {
		t.Errorf("auth = %+v", c.Auth)
	}
	if c.Auth.KeyCache.TTL != time.Hour {
		t.Errorf("KeyCache.TTL = %v, want 1h", c.Auth.KeyCache.TTL)
	}
	if c.Attachments.URLExpiration != 60 {
		t.Errorf("URLExpiration = %d", c.Attachments.URLExpiration)
	}
	if got := strings.Join(c.Server.CORSAllowedOrigins, "|"); got != "https://a.example|https://b.example" {
		t.Errorf("CORSAllowedOrigins = %q", got)
	}
	if !c.Server.ExposeAuthorizer {
		t.Error("ExposeAuthorizer should be set")
	}
	if c.Store.MaxConcurrent != 16 || c.Store.MaxWait != 250*time.Millisecond {
		t.Errorf("store limits = %d, %v", c.Store.MaxConcurrent, c.Store.MaxWait)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_BadEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWKS_FETCH_RETRIES", "many")
	t.Setenv("STORE_TIMEOUT", "soon")

	_, err := Load("")
	if err == nil {
		t.Fatal("Load() should fail")
	}
	for _, key := range []string{"JWKS_FETCH_RETRIES", "STORE_TIMEOUT"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q should name %s", err, key)
		}
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "todos.yaml")
	yml := `
server:
  addr: ":9090"
auth:
  jwks_url: https://file.example/jwks
  fetch_timeout: 2s
  leeway: 30s
store:
  driver: postgres
  dsn: postgres://localhost/todos
attachments:
  bucket: from-file
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ATTACHMENT_S3_BUCKET", "from-env")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Server.Addr != ":9090" || c.Auth.FetchTimeout != 2*time.Second || c.Auth.Leeway != 30*time.Second {
		t.Errorf("yaml values not applied: %+v", c)
	}
	if c.Attachments.Bucket != "from-env" {
		t.Errorf("env should override file, got %q", c.Attachments.Bucket)
	}
	if c.Store.Timeout != 5*time.Second {
		t.Errorf("unset yaml value should keep default, got %v", c.Store.Timeout)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() should fail for a missing file")
	}
}

func TestValidate_ReportsEverything(t *testing.T) {
	c := Default()
	c.Auth.KeyCache.Backend = CacheRedis

	err := c.Validate()
	if err == nil {
		t.Fatal("Validate() should fail")
	}
	for _, want := range []string{"JWKS_URL", "REDIS_ADDR", "TODOS_TABLE", "TODOS_CREATED_AT_INDEX", "ATTACHMENT_S3_BUCKET"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s:\n%v", want, err)
		}
	}
}

func TestValidate_UnknownValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"cache backend", func(c *Config) { c.Auth.KeyCache.Backend = "memcached" }, "KEY_CACHE_BACKEND"},
		{"store driver", func(c *Config) { c.Store.Driver = "mongo" }, "TASK_STORE"},
		{"postgres dsn", func(c *Config) { c.Store.Driver = StorePostgres }, "DATABASE_URL"},
		{"log level", func(c *Config) { c.Observe.LogLevel = "loud" }, "log level"},
		{"exporter", func(c *Config) { c.Observe.TracesExporter = "zipkin" }, "tracing exporter"},
		{"retries", func(c *Config) { c.Auth.FetchRetries = -1 }, "JWKS_FETCH_RETRIES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.Auth.JWKSURL = "https://idp.example/jwks"
			c.Store.Driver = StoreMemory
			c.Attachments.Bucket = "b"
			tt.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidateAuth_IgnoresStore(t *testing.T) {
	c := Default()
	if err := c.ValidateAuth(); err == nil || !strings.Contains(err.Error(), "JWKS_URL") {
		t.Fatalf("ValidateAuth() = %v, want JWKS_URL error", err)
	}

	c.Auth.JWKSURL = "https://idp.example/jwks"
	if err := c.ValidateAuth(); err != nil {
		t.Errorf("ValidateAuth() = %v; the store and bucket are not its concern", err)
	}
	if err := c.Validate(); err == nil {
		t.Error("Validate() should still require the table and bucket")
	}
}

func TestResolveSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("TODOS_TEST_DB_PASSWORD", "hunter2")
	t.Setenv("TODOS_TEST_REDIS_PASSWORD", "r3dis")

	c := Default()
	c.Store.DSN = "postgres://todos:${TODOS_TEST_DB_PASSWORD}@db/todos"
	c.Redis.Password = "secretref:env:TODOS_TEST_REDIS_PASSWORD"

	r := secret.NewResolver(true, secret.EnvProvider{})
	if err := c.ResolveSecrets(context.Background(), r); err != nil {
		t.Fatalf("ResolveSecrets() error = %v", err)
	}
	if c.Store.DSN != "postgres://todos:hunter2@db/todos" {
		t.Errorf("DSN = %q", c.Store.DSN)
	}
	if c.Redis.Password != "r3dis" {
		t.Errorf("Redis.Password = %q", c.Redis.Password)
	}

	c.Redis.Password = "secretref:env:TODOS_TEST_UNSET_SECRET"
	if err := c.ResolveSecrets(context.Background(), r); !errors.Is(err, secret.ErrSecretNotFound) {
		t.Errorf("ResolveSecrets() error = %v, want ErrSecretNotFound", err)
	}
}
