// pkg/shared/constants.go

package shared

import "time"

const (
	CredsyncID = "credsync"

	CredsyncConfigDir  = "/etc/credsync/"
	CredsyncConfigFile = CredsyncConfigDir + "credsync.yaml"
	CredsyncEnvFile    = CredsyncConfigDir + "credsync.env"

	CredsyncLogDir  = "/var/log/cyberMonkey/"
	CredsyncLogFile = CredsyncLogDir + "credsync.log"

	EnvPrefix = "CREDSYNC"
)

const (
	// Permission modes (in octal)
	FilePermOwnerRWX       = 0700
	FilePermOwnerReadWrite = 0600
)

// PgBouncer defaults on Ubuntu/Debian packaging.
const (
	PgBouncerUnit    = "pgbouncer.service"
	PgBouncerBinary  = "/usr/sbin/pgbouncer"
	PgBouncerIni     = "/etc/pgbouncer/pgbouncer.ini"
	PgBouncerAccount = "postgres"
	// #nosec G101 - path of the auth_file, not a credential
	PgBouncerAuthFile = "/etc/pgbouncer/userlist.txt"

	// PgBouncerMinScramVersion is the first release that accepts SCRAM
	// verifiers in auth_file.
	PgBouncerMinScramVersion = "1.14.0"
)

// PostgreSQL source defaults.
const (
	PostgresHost    = "/var/run/postgresql"
	PostgresPort    = 5432
	PostgresUser    = "postgres"
	PostgresDB      = "postgres"
	PostgresSSLMode = "disable"

	ScramTag = "SCRAM-SHA-256"
)

const (
	DefaultRestartTimeout = 30 * time.Second
	DefaultPollInterval   = time.Second
	DefaultConnectTimeout = 5 * time.Second

	// BackupTimeFormat is appended to <target>.bak.
	BackupTimeFormat = "20060102-150405"
)
