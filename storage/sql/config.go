package sql

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Supported dialects.
const (
	DialectMySQL    = "mysql"
	DialectPostgres = "postgres"
)

const (
	DefaultMaxOpenConns    = 4
	DefaultConnMaxLifetime = 5 * time.Minute
	DefaultSessionTimeout  = 10 * time.Minute
	DefaultDialTimeout     = 10 * time.Second

	tlsConfigName = "vectorload"
)

var (
	ErrHostRequired     = errors.New("sql config: Host is required")
	ErrUserRequired     = errors.New("sql config: User is required")
	ErrDatabaseRequired = errors.New("sql config: Database is required")
	ErrUnknownDialect   = errors.New("sql config: unknown dialect")
)

// Config holds connection and pool settings.
type Config struct {
	Dialect  string
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// TLS enables TLS with the system roots. TLSCA implies TLS and adds a
	// custom CA bundle, as TiDB Cloud requires.
	TLS   bool
	TLSCA string

	// SSLMode is passed through for postgres. Defaults to "disable", or
	// "verify-full" when TLSCA is set.
	SSLMode string

	MaxOpenConns int

	// MaxIdleConns defaults to 0 so connections close as soon as an upsert
	// releases them.
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// SessionTimeout is applied to each acquired connection before the
	// upsert runs.
	SessionTimeout time.Duration

	DialTimeout time.Duration
}

// Normalize fills defaults.
func (c *Config) Normalize() {
	c.Dialect = strings.ToLower(strings.TrimSpace(c.Dialect))
	if c.Dialect == "" {
		c.Dialect = DialectMySQL
	}
	if c.Port == 0 {
		switch c.Dialect {
		case DialectPostgres:
			c.Port = 5432
		default:
			c.Port = 4000
		}
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = DefaultMaxOpenConns
	}
	if c.MaxIdleConns < 0 {
		c.MaxIdleConns = 0
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = DefaultConnMaxLifetime
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.TLSCA != "" {
		c.TLS = true
	}
	if c.Dialect == DialectPostgres && c.SSLMode == "" {
		switch {
		case c.TLSCA != "":
			c.SSLMode = "verify-full"
		case c.TLS:
			c.SSLMode = "require"
		default:
			c.SSLMode = "disable"
		}
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	switch c.Dialect {
	case DialectMySQL, DialectPostgres:
	default:
		return fmt.Errorf("%w %q", ErrUnknownDialect, c.Dialect)
	}
	if c.Host == "" {
		return ErrHostRequired
	}
	if c.User == "" {
		return ErrUserRequired
	}
	if c.Database == "" {
		return ErrDatabaseRequired
	}
	return nil
}

// DSN builds the driver connection string. For mysql with a custom CA it
// registers the TLS configuration with the driver first.
func (c *Config) DSN() (string, error) {
	switch c.Dialect {
	case DialectPostgres:
		return c.postgresDSN(), nil
	case DialectMySQL:
		return c.mysqlDSN()
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownDialect, c.Dialect)
	}
}

func (c *Config) mysqlDSN() (string, error) {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	mc.DBName = c.Database
	mc.ParseTime = true
	mc.Timeout = c.DialTimeout
	mc.Params = map[string]string{"charset": "utf8mb4"}

	switch {
	case c.TLSCA != "":
		if err := registerTLS(c.Host, c.TLSCA); err != nil {
			return "", err
		}
		mc.TLSConfig = tlsConfigName
	case c.TLS:
		mc.TLSConfig = "true"
	}
	return mc.FormatDSN(), nil
}

func (c *Config) postgresDSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		c.Host, c.Port, c.User, quoteDSN(c.Password), c.Database, c.SSLMode, int(c.DialTimeout.Seconds()))
	if c.TLSCA != "" {
		dsn += " sslrootcert=" + quoteDSN(c.TLSCA)
	}
	return dsn
}

// quoteDSN quotes a keyword/value DSN value when needed.
func quoteDSN(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

var tlsMu sync.Mutex

func registerTLS(host, caPath string) error {
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return fmt.Errorf("sql config: read tls ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return fmt.Errorf("sql config: no certificates in %s", caPath)
	}

	tlsMu.Lock()
	defer tlsMu.Unlock()
	return mysql.RegisterTLSConfig(tlsConfigName, &tls.Config{
		RootCAs:    pool,
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	})
}
