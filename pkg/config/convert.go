package config

import (
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/catalog"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/vault"
)

func (s SourceConfig) ConnOptions() catalog.ConnOptions {
	return catalog.ConnOptions{
		DSN:            s.DSN,
		Host:           s.Host,
		Port:           s.Port,
		User:           s.User,
		Password:       s.Password,
		Database:       s.Database,
		SSLMode:        s.SSLMode,
		ConnectTimeout: s.ConnectTimeout,
	}
}

func (v VaultConfig) Options() vault.Options {
	return vault.Options{
		Address:      v.Address,
		CACert:       v.CACert,
		AuthMethod:   vault.AuthMethod(v.AuthMethod),
		AuthMount:    v.AuthMount,
		Token:        v.Token,
		RoleID:       v.RoleID,
		SecretIDFile: v.SecretIDFile,
		Username:     v.Username,
		PasswordFile: v.PasswordFile,
		Mount:        v.Mount,
		Path:         v.Path,
		Key:          v.Key,
	}
}

func (l LogConfig) Options() logger.Options {
	return logger.Options{Path: l.Path, Level: l.Level, MaxSizeMB: l.MaxSizeMB}
}
