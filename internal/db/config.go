package db

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Environment variables consulted by ResolveConfig.
const (
	EnvDatabaseURL      = "DATABASE_URL"
	EnvPostgresUser     = "POSTGRES_USER"
	EnvPostgresHost     = "POSTGRES_HOST"
	EnvPostgresPassword = "POSTGRES_PASSWORD"
	EnvPostgresPort     = "PORT_DB"
	EnvPostgresDB       = "POSTGRES_DB"
)

const (
	DefaultHost     = "localhost"
	DefaultUser     = "postgres"
	DefaultPassword = "postgres"
	DefaultPort     = 5432
	DefaultDatabase = "employee_portal"

	// Pool bounds applied by the URL and Docker branches.
	DefaultMaxConns    int32 = 10
	DefaultIdleTimeout       = 30 * time.Second
)

// Source names the environment branch a ConnectionConfig was resolved from.
type Source string

const (
	SourceURL    Source = "url"
	SourceDocker Source = "docker"
	SourceLocal  Source = "local"
)

// ConnectionConfig holds the parameters used to build the shared pool.
// A zero field is left to the driver's default.
type ConnectionConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSL         bool
	MaxConns    int32
	IdleTimeout time.Duration
}

// ConfigError reports an environment that cannot produce a ConnectionConfig.
type ConfigError struct {
	Var string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Var, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// DetectSource reports which branch ResolveConfig takes for env.
func DetectSource(env map[string]string) Source {
	switch {
	case env[EnvDatabaseURL] != "":
		return SourceURL
	case env[EnvPostgresUser] != "":
		return SourceDocker
	default:
		return SourceLocal
	}
}

// ResolveConfig picks the connection parameters from env. The first
// matching branch wins and a failing branch never falls through to the next:
//
//  1. DATABASE_URL (hosted platform): parsed, TLS forced, pool bounded.
//  2. POSTGRES_USER (Docker): discrete variables with per-field defaults, pool bounded.
//  3. otherwise only the database name is set.
func ResolveConfig(env map[string]string) (ConnectionConfig, error) {
	switch DetectSource(env) {
	case SourceURL:
		return fromURL(env[EnvDatabaseURL])
	case SourceDocker:
		return fromDocker(env)
	default:
		return ConnectionConfig{Database: DefaultDatabase}, nil
	}
}

func fromURL(raw string) (ConnectionConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ConnectionConfig{}, &ConfigError{Var: EnvDatabaseURL, Err: err}
	}
	if u.User == nil {
		return ConnectionConfig{}, &ConfigError{Var: EnvDatabaseURL, Err: fmt.Errorf("missing user info")}
	}

	var port int
	if p := u.Port(); p != "" {
		port, err = parsePort(p)
		if err != nil {
			return ConnectionConfig{}, &ConfigError{Var: EnvDatabaseURL, Err: err}
		}
	}

	password, _ := u.User.Password()
	database := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")[0]

	return ConnectionConfig{
		Host:        u.Hostname(),
		Port:        port,
		User:        u.User.Username(),
		Password:    password,
		Database:    database,
		SSL:         true,
		MaxConns:    DefaultMaxConns,
		IdleTimeout: DefaultIdleTimeout,
	}, nil
}

func fromDocker(env map[string]string) (ConnectionConfig, error) {
	port := DefaultPort
	if p := env[EnvPostgresPort]; p != "" {
		n, err := parsePort(p)
		if err != nil {
			return ConnectionConfig{}, &ConfigError{Var: EnvPostgresPort, Err: err}
		}
		port = n
	}

	return ConnectionConfig{
		Host:        valueOr(env, EnvPostgresHost, DefaultHost),
		Port:        port,
		User:        valueOr(env, EnvPostgresUser, DefaultUser),
		Password:    valueOr(env, EnvPostgresPassword, DefaultPassword),
		Database:    valueOr(env, EnvPostgresDB, DefaultDatabase),
		MaxConns:    DefaultMaxConns,
		IdleTimeout: DefaultIdleTimeout,
	}, nil
}

// parsePort accepts a TCP port in 1..65535. Zero is rejected because a
// zero Port means "driver default" downstream.
func parsePort(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad port %q", s)
	}
	if n < 1 || n > 65535 {
		return 0, fmt.Errorf("port %d out of range", n)
	}
	return n, nil
}

func valueOr(env map[string]string, key, def string) string {
	if v := env[key]; v != "" {
		return v
	}
	return def
}

// EnvMap turns an os.Environ style slice into a map. Later entries win.
func EnvMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		m[k] = v
	}
	return m
}

// ConnString renders c as a libpq keyword/value string holding only the
// fields that are set.
func (c ConnectionConfig) ConnString() string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+quoteValue(v))
		}
	}

	add("host", c.Host)
	if c.Port != 0 {
		add("port", strconv.Itoa(c.Port))
	}
	add("user", c.User)
	add("password", c.Password)
	add("dbname", c.Database)
	if c.SSL {
		add("sslmode", "require")
	}
	return strings.Join(parts, " ")
}

func quoteValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Redacted returns the connection string with the password masked, for logs.
func (c ConnectionConfig) Redacted() string {
	if c.Password != "" {
		c.Password = "xxxxx"
	}
	return c.ConnString()
}

// PoolConfig parses c into a pgxpool configuration and applies the pool
// bounds when they are set.
func (c ConnectionConfig) PoolConfig() (*pgxpool.Config, error) {
	pcfg, err := pgxpool.ParseConfig(c.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	if c.MaxConns > 0 {
		pcfg.MaxConns = c.MaxConns
	}
	if c.IdleTimeout > 0 {
		pcfg.MaxConnIdleTime = c.IdleTimeout
	}
	return pcfg, nil
}
