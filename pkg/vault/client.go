// pkg/vault/client.go

// Package vault reads the source database password from a Vault KV v2
// secret so it never has to live in the credsync config file.
package vault

import (
	"context"
	"fmt"

	cerr "github.com/cockroachdb/errors"
	"github.com/hashicorp/vault/api"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// AuthMethod selects how credsync logs in to Vault.
type AuthMethod string

const (
	AuthToken    AuthMethod = "token"
	AuthAppRole  AuthMethod = "approle"
	AuthUserpass AuthMethod = "userpass"
)

// Options locate the Vault server, the login credentials and the secret.
type Options struct {
	Address string
	CACert  string

	AuthMethod AuthMethod
	AuthMount  string

	// token
	Token string

	// approle
	RoleID       string
	SecretIDFile string

	// userpass
	Username     string
	PasswordFile string

	Mount string
	Path  string
	Key   string
}

// NewClient creates a Vault API client. Environment variables understood by
// the Vault CLI (VAULT_ADDR, VAULT_CACERT, VAULT_TOKEN, ...) apply first and
// explicit options override them.
func NewClient(ctx context.Context, opts Options) (*api.Client, error) {
	log := otelzap.Ctx(ctx)

	cfg := api.DefaultConfig()
	if cfg.Error != nil {
		log.Warn("Unable to read Vault env vars", zap.Error(cfg.Error))
	}
	if opts.Address != "" {
		cfg.Address = opts.Address
	}
	if opts.CACert != "" {
		if err := cfg.ConfigureTLS(&api.TLSConfig{CACert: opts.CACert}); err != nil {
			return nil, cerr.Wrap(err, "vault TLS setup failed")
		}
		log.Debug("TLS config applied", zap.String("ca_cert", opts.CACert))
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, cerr.Wrap(err, "vault client creation failed")
	}

	log.Debug("Vault client created", zap.String("addr", cfg.Address))
	return client, nil
}

// LookupPassword logs in and returns the configured secret key.
func LookupPassword(ctx context.Context, opts Options) (string, error) {
	client, err := NewClient(ctx, opts)
	if err != nil {
		return "", err
	}
	if err := Login(ctx, client, opts); err != nil {
		return "", err
	}
	return ReadKey(ctx, client, opts.Mount, opts.Path, opts.Key)
}

// ReadKey returns one string field of a KV v2 secret.
func ReadKey(ctx context.Context, client *api.Client, mount, path, key string) (string, error) {
	log := otelzap.Ctx(ctx)

	secret, err := client.KVv2(mount).Get(ctx, path)
	if err != nil {
		return "", cerr.Wrapf(err, "failed to read %s/%s", mount, path)
	}

	raw, ok := secret.Data[key]
	if !ok {
		return "", cerr.WithHintf(
			fmt.Errorf("key %q not found in %s/%s", key, mount, path),
			"write it with: vault kv patch -mount=%s %s %s=<password>", mount, path, key)
	}
	value, ok := raw.(string)
	if !ok || value == "" {
		return "", fmt.Errorf("key %q in %s/%s is not a non-empty string", key, mount, path)
	}

	version := 0
	if secret.VersionMetadata != nil {
		version = secret.VersionMetadata.Version
	}
	log.Info("Read source password from Vault",
		zap.String("mount", mount),
		zap.String("path", path),
		zap.String("key", key),
		zap.Int("version", version))
	return value, nil
}
