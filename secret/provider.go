package secret

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider resolves secrets by reference string.
//
// Implementations must be safe for concurrent use and must not log secret values.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
	Close() error
}

// ErrSecretNotFound is returned when a provider has no value for a ref.
var ErrSecretNotFound = errors.New("secret: not found")

// EnvProvider reads secrets from environment variables.
type EnvProvider struct{}

func (EnvProvider) Name() string { return "env" }

func (EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := os.LookupEnv(ref)
	if !ok {
		return "", fmt.Errorf("%w: env %s", ErrSecretNotFound, ref)
	}
	return v, nil
}

func (EnvProvider) Close() error { return nil }

// FileProvider reads secrets from files under Dir, as mounted by container
// runtimes at /run/secrets. Trailing newlines are trimmed.
type FileProvider struct {
	Dir string
}

// DefaultSecretsDir is the FileProvider directory when none is configured.
const DefaultSecretsDir = "/run/secrets"

func (p FileProvider) Name() string { return "file" }

func (p FileProvider) Resolve(_ context.Context, ref string) (string, error) {
	dir := p.Dir
	if dir == "" {
		dir = DefaultSecretsDir
	}
	if filepath.IsAbs(ref) || strings.Contains(ref, "..") {
		return "", fmt.Errorf("secret: file ref %q must be relative to %s", ref, dir)
	}
	data, err := os.ReadFile(filepath.Join(dir, ref))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: file %s", ErrSecretNotFound, ref)
	}
	if err != nil {
		return "", fmt.Errorf("secret: read %s: %w", ref, err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func (p FileProvider) Close() error { return nil }
