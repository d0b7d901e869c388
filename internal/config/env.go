package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Env is the process environment the service and CLI read.
type Env struct {
	ConfigPath  string `env:"SENTIENT_CONFIG" envDefault:"service.yaml"`
	DevicesPath string `env:"SENTIENT_DEVICES"`
	ExportRoot  string `env:"SENTIENT_EXPORT_ROOT"`
	MQTTURL     string `env:"MQTT_URL"`
	TLSCert     string `env:"SENTIENT_TLS_CERT"`
	TLSKey      string `env:"SENTIENT_TLS_KEY"`
	Postgres    PostgresEnv
}

// PostgresEnv holds the libpq-style connection settings. The password is
// resolved separately so PGPASSWORD_FILE works.
type PostgresEnv struct {
	Host     string `env:"PGHOST"`
	Port     int    `env:"PGPORT" envDefault:"5432"`
	User     string `env:"PGUSER" envDefault:"sentient"`
	Database string `env:"PGDATABASE" envDefault:"sentient"`
	SSLMode  string `env:"PGSSLMODE" envDefault:"disable"`
	Password string
}

// Enabled reports whether a database host is configured.
func (p PostgresEnv) Enabled() bool {
	return p.Host != ""
}

// DSN renders a key=value connection string for lib/pq.
func (p PostgresEnv) DSN() string {
	parts := []string{
		"host=" + quoteDSN(p.Host),
		fmt.Sprintf("port=%d", p.Port),
		"user=" + quoteDSN(p.User),
	}
	if p.Password != "" {
		parts = append(parts, "password="+quoteDSN(p.Password))
	}
	parts = append(parts, "dbname="+quoteDSN(p.Database), "sslmode="+quoteDSN(p.SSLMode))
	return strings.Join(parts, " ")
}

func quoteDSN(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// ParseEnv loads Env from the process environment.
func ParseEnv() (*Env, error) {
	return parseEnv(env.Options{}, ResolveSecret)
}

// ParseEnvFrom loads Env from environ only.
func ParseEnvFrom(environ map[string]string) (*Env, error) {
	return parseEnv(env.Options{Environment: environ}, SecretsFrom(environ))
}

func parseEnv(opts env.Options, secret func(string) (string, error)) (*Env, error) {
	var e Env
	if err := env.ParseWithOptions(&e, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	pw, err := secret("PGPASSWORD")
	if err != nil {
		return nil, err
	}
	e.Postgres.Password = pw
	return &e, nil
}
