// Package catalog reads login credentials from PostgreSQL's pg_authid.
package catalog

import (
	"context"
	"database/sql"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/credsync/pkg/userlist"
	cerr "github.com/cockroachdb/errors"
	_ "github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Catalog is the read-only view of the source authentication catalog.
type Catalog interface {
	Ping(ctx context.Context) error
	PasswordEncryption(ctx context.Context) (string, error)
	FetchLoginCredentials(ctx context.Context) ([]userlist.Record, error)
	Close() error
}

// ConnOptions describe how to reach the source database. DSN, when set,
// is used verbatim and the other fields are ignored.
type ConnOptions struct {
	DSN            string
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	SSLMode        string
	ConnectTimeout time.Duration
}

// BuildDSN renders opts as a libpq keyword/value connection string.
func BuildDSN(opts ConnOptions) string {
	if opts.DSN != "" {
		return opts.DSN
	}

	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+quoteDSNValue(v))
		}
	}
	add("host", opts.Host)
	if opts.Port > 0 {
		add("port", strconv.Itoa(opts.Port))
	}
	add("user", opts.User)
	add("password", opts.Password)
	add("dbname", opts.Database)
	add("sslmode", opts.SSLMode)
	if opts.ConnectTimeout > 0 {
		secs := int(opts.ConnectTimeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		add("connect_timeout", strconv.Itoa(secs))
	}
	add("application_name", "credsync")
	return strings.Join(parts, " ")
}

func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// RedactDSN hides the password in a DSN for logging. Keyword/value
// strings are scanned with libpq quoting rules so a quoted password
// containing spaces is hidden entirely.
func RedactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && (u.Scheme == "postgres" || u.Scheme == "postgresql") {
		return u.Redacted()
	}

	var b strings.Builder
	i, n := 0, len(dsn)
	for i < n {
		if isDSNSpace(dsn[i]) {
			b.WriteByte(dsn[i])
			i++
			continue
		}

		start := i
		for i < n && dsn[i] != '=' && !isDSNSpace(dsn[i]) {
			i++
		}
		key := dsn[start:i]
		b.WriteString(key)

		for i < n && isDSNSpace(dsn[i]) {
			b.WriteByte(dsn[i])
			i++
		}
		if i >= n || dsn[i] != '=' {
			continue
		}
		b.WriteByte('=')
		i++
		for i < n && isDSNSpace(dsn[i]) {
			b.WriteByte(dsn[i])
			i++
		}

		end := scanDSNValue(dsn, i)
		if key == "password" {
			b.WriteString("xxxxx")
		} else {
			b.WriteString(dsn[i:end])
		}
		i = end
	}
	return b.String()
}

// scanDSNValue returns the end of the value starting at i: a single-quoted
// string with backslash escapes, or a run of non-space bytes.
func scanDSNValue(dsn string, i int) int {
	n := len(dsn)
	if i < n && dsn[i] == '\'' {
		i++
		for i < n {
			switch dsn[i] {
			case '\\':
				i += 2
			case '\'':
				return i + 1
			default:
				i++
			}
		}
		return n
	}
	for i < n && !isDSNSpace(dsn[i]) {
		if dsn[i] == '\\' {
			i++
		}
		i++
	}
	if i > n {
		return n
	}
	return i
}

func isDSNSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// Postgres is a Catalog backed by database/sql (lib/pq) with gorm for
// row scanning.
type Postgres struct {
	db   *sql.DB
	gorm *gorm.DB
}

// Open connects lazily; Ping verifies reachability.
func Open(ctx context.Context, opts ConnOptions) (*Postgres, error) {
	dsn := BuildDSN(opts)
	otelzap.Ctx(ctx).Debug("Opening source database", zap.String("dsn", RedactDSN(dsn)))

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, cerr.Wrap(err, "open source database")
	}
	db.SetMaxOpenConns(1)

	g, err := Gorm(db)
	if err != nil {
		_ = db.Close()
		return nil, cerr.Wrap(err, "initialise gorm")
	}
	return &Postgres{db: db, gorm: g}, nil
}

// Gorm upgrades an existing *sql.DB.
func Gorm(db *sql.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return cerr.Wrap(err, "ping source database")
	}
	return nil
}

func (p *Postgres) PasswordEncryption(ctx context.Context) (string, error) {
	var value string
	if err := p.db.QueryRowContext(ctx, "SHOW password_encryption").Scan(&value); err != nil {
		return "", cerr.Wrap(err, "read password_encryption")
	}
	return strings.ToLower(strings.TrimSpace(value)), nil
}

const loginCredentialsQuery = `
SELECT rolname AS username, rolpassword AS secret
FROM pg_catalog.pg_authid
WHERE rolcanlogin AND rolpassword IS NOT NULL
ORDER BY rolname`

type authRow struct {
	Username string
	Secret   string
}

// FetchLoginCredentials returns every login role that has a password,
// ordered by name. Secrets are returned as stored.
func (p *Postgres) FetchLoginCredentials(ctx context.Context) ([]userlist.Record, error) {
	var rows []authRow
	if err := p.gorm.WithContext(ctx).Raw(loginCredentialsQuery).Scan(&rows).Error; err != nil {
		return nil, cerr.Wrap(err, "query pg_authid")
	}

	records := make([]userlist.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, userlist.Record{Username: r.Username, Secret: r.Secret})
	}

	otelzap.Ctx(ctx).Debug("Fetched login credentials", zap.Int("rows", len(records)))
	return records, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
