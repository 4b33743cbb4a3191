package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/todos/auth"
	"github.com/jonwraymond/todos/config"
	"github.com/jonwraymond/todos/httpapi"
	"github.com/jonwraymond/todos/internal/testutil/jwkstest"
	"github.com/jonwraymond/todos/observe"
)

func setAuthEnv(t *testing.T, jwksURL string) {
	t.Helper()
	t.Setenv("JWKS_URL", jwksURL)
	t.Setenv("KEY_CACHE_BACKEND", "memory")
	t.Setenv("OTEL_TRACES_EXPORTER", "none")
	t.Setenv("OTEL_METRICS_EXPORTER", "none")
	t.Setenv("LOG_LEVEL", "error")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAuthorizeCommand(t *testing.T) {
	key := jwkstest.NewKey(t, "abc123")
	srv := jwkstest.NewServer(t, key)
	setAuthEnv(t, srv.JWKSURL())

	out, err := execute(t, "authorize", "--header", "Bearer "+key.Mint(t, jwkstest.Claims("user-42", time.Hour)))
	require.NoError(t, err)
	var allow auth.Decision
	require.NoError(t, json.Unmarshal([]byte(out), &allow))
	assert.Equal(t, "user-42", allow.PrincipalID)
	assert.True(t, allow.Allowed())

	out, err = execute(t, "authorize", "--header", "Bearer not-a-token")
	require.NoError(t, err, "a deny is a decision, not a failure")
	var deny auth.Decision
	require.NoError(t, json.Unmarshal([]byte(out), &deny))
	assert.Equal(t, auth.DenyPrincipal, deny.PrincipalID)
	assert.False(t, deny.Allowed())
}

func TestAuthorizeCommand_Errors(t *testing.T) {
	setAuthEnv(t, "")

	_, err := execute(t, "authorize")
	assert.ErrorContains(t, err, "--header is required")

	_, err = execute(t, "authorize", "--header", "Bearer x")
	assert.ErrorContains(t, err, "JWKS_URL is required")
}

func TestJWKSGetCommand(t *testing.T) {
	key := jwkstest.NewKey(t, "abc123")
	srv := jwkstest.NewServer(t, key)
	setAuthEnv(t, srv.JWKSURL())

	out, err := execute(t, "jwks", "get", "abc123")
	require.NoError(t, err)
	assert.Equal(t, auth.WrapCertificate(key.X5C()), out)

	out, err = execute(t, "jwks", "get", "abc123", "--json")
	require.NoError(t, err)
	var entry auth.KeyEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entry))
	assert.Equal(t, "abc123", entry.KeyID)
	assert.Equal(t, "RS256", entry.Algorithm)

	_, err = execute(t, "jwks", "get", "nope")
	assert.ErrorIs(t, err, auth.ErrKeyNotFound)
}

func TestJWKSGetCommand_JSONFlagDescribesFetch(t *testing.T) {
	get, _, err := newRootCmd().Find([]string{"jwks", "get"})
	require.NoError(t, err)
	flag := get.Flags().Lookup("json")
	require.NotNil(t, flag)
	assert.Equal(t, "print the fetched key entry as JSON", flag.Usage)
	assert.NotContains(t, flag.Usage, "cached", "jwks get always fetches from the key source")
}

func TestEnvFile(t *testing.T) {
	key := jwkstest.NewKey(t, "abc123")
	srv := jwkstest.NewServer(t, key)
	setAuthEnv(t, "")
	require.NoError(t, os.Unsetenv("JWKS_URL"))

	path := filepath.Join(t.TempDir(), "todos.env")
	require.NoError(t, os.WriteFile(path, []byte("JWKS_URL="+srv.JWKSURL()+"\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("JWKS_URL") })

	out, err := execute(t, "--env-file", path, "jwks", "get", "abc123")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "-----BEGIN CERTIFICATE-----"))

	_, err = execute(t, "--env-file", filepath.Join(t.TempDir(), "missing.env"), "jwks", "get", "abc123")
	assert.Error(t, err)
}

func TestSecretReferences(t *testing.T) {
	key := jwkstest.NewKey(t, "abc123")
	srv := jwkstest.NewServer(t, key)
	setAuthEnv(t, "secretref:file:jwks_url")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jwks_url"), []byte(srv.JWKSURL()+"\n"), 0o600))

	out, err := execute(t, "--secrets-dir", dir, "jwks", "get", "abc123")
	require.NoError(t, err)
	assert.Contains(t, out, key.X5C())
}

// TestServeWiring builds the serve components over the memory store and
// drives the API end to end.
func TestServeWiring(t *testing.T) {
	key := jwkstest.NewKey(t, "abc123")
	srv := jwkstest.NewServer(t, key)

	cfg := config.Default()
	cfg.Auth.JWKSURL = srv.JWKSURL()
	cfg.Store.Driver = config.StoreMemory
	cfg.Attachments.Bucket = "todos-attachments"
	cfg.AWS.Region = "us-east-1"
	cfg.Observe.TracesExporter = "none"
	cfg.Observe.LogLevel = "error"
	require.NoError(t, cfg.Validate())

	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDEXAMPLE")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")

	ctx := context.Background()
	c, err := newObservability(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })
	c.buildAuth(cfg)
	require.NoError(t, c.buildTasks(ctx, cfg))
	assert.ElementsMatch(t, []string{"jwks", "store"}, c.health.Names())

	api := httptest.NewServer(httpapi.NewRouter(httpapi.Config{
		Gate:    c.gate,
		Tasks:   c.tasks,
		Health:  c.health,
		Metrics: c.obs.MetricsHandler(),
		Logger:  c.log,
	}))
	t.Cleanup(api.Close)

	req, err := http.NewRequest(http.MethodPost, api.URL+"/todos", strings.NewReader(`{"name":"Write tests"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+key.Mint(t, jwkstest.Claims("user-42", time.Hour)))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		Item struct {
			TodoID        string `json:"todoId"`
			AttachmentURL string `json:"attachmentUrl"`
		} `json:"item"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "https://todos-attachments.s3.amazonaws.com/"+body.Item.TodoID, body.Item.AttachmentURL)

	up, err := http.NewRequest(http.MethodPost, api.URL+"/todos/"+body.Item.TodoID+"/attachment", nil)
	require.NoError(t, err)
	up.Header = req.Header.Clone()
	upResp, err := http.DefaultClient.Do(up)
	require.NoError(t, err)
	defer upResp.Body.Close()
	assert.Equal(t, http.StatusOK, upResp.StatusCode)

	metrics, err := http.Get(api.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)
}

func TestBuildTasks_LogsSignerExpiration(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = config.StoreMemory
	cfg.Attachments.Bucket = "todos-attachments"
	cfg.Attachments.URLExpiration = 120
	cfg.AWS.Region = "us-east-1"
	cfg.Observe.TracesExporter = "none"

	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDEXAMPLE")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")

	ctx := context.Background()
	c, err := newObservability(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })

	var buf bytes.Buffer
	c.log = observe.NewLoggerWithWriter("info", &buf)
	require.NoError(t, c.buildTasks(ctx, cfg))

	assert.Contains(t, buf.String(), "attachment signer ready")
	assert.Contains(t, buf.String(), `"url_expiration":"2m0s"`)
}
