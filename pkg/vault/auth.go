// pkg/vault/auth.go

package vault

import (
	"context"
	"fmt"

	cerr "github.com/cockroachdb/errors"
	"github.com/hashicorp/vault/api"
	"github.com/hashicorp/vault/api/auth/approle"
	"github.com/hashicorp/vault/api/auth/userpass"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Login authenticates client with the configured method and sets its token.
func Login(ctx context.Context, client *api.Client, opts Options) error {
	log := otelzap.Ctx(ctx)

	method := opts.AuthMethod
	if method == "" {
		method = AuthToken
	}

	var auth api.AuthMethod
	switch method {
	case AuthToken:
		if opts.Token != "" {
			client.SetToken(opts.Token)
		}
		if client.Token() == "" {
			return cerr.WithHint(fmt.Errorf("no vault token available"),
				"set VAULT_TOKEN or vault.token, or use vault.auth_method approle|userpass")
		}
		log.Debug("Using Vault token authentication")
		return nil

	case AuthAppRole:
		mount := opts.AuthMount
		if mount == "" {
			mount = "approle"
		}
		a, err := approle.NewAppRoleAuth(opts.RoleID,
			&approle.SecretID{FromFile: opts.SecretIDFile},
			approle.WithMountPath(mount))
		if err != nil {
			return cerr.Wrap(err, "create approle auth")
		}
		auth = a

	case AuthUserpass:
		mount := opts.AuthMount
		if mount == "" {
			mount = "userpass"
		}
		a, err := userpass.NewUserpassAuth(opts.Username,
			&userpass.Password{FromFile: opts.PasswordFile},
			userpass.WithMountPath(mount))
		if err != nil {
			return cerr.Wrap(err, "create userpass auth")
		}
		auth = a

	default:
		return fmt.Errorf("unsupported vault auth method %q", method)
	}

	secret, err := client.Auth().Login(ctx, auth)
	if err != nil {
		return cerr.Wrapf(err, "%s login failed", method)
	}
	if secret == nil || secret.Auth == nil {
		return cerr.Newf("no auth info returned from Vault %s login", method)
	}

	log.Info("Authenticated with Vault",
		zap.String("method", string(method)),
		zap.String("token_accessor", secret.Auth.Accessor))
	return nil
}
