// Package bufferstore defines the shared config/record shapes for the
// durable observation buffer backup backends (sqlite3, postgres), the
// BufferStore collaborator the core's resource package depends on as an
// interface (see internal/resource/bufferstore.go).
package bufferstore

import "time"

// Config selects and configures one of the two backends. Exactly one of
// SQLite/Postgres should be set.
type Config struct {
	SQLite   *SQLiteConfig   `cfg:"sqlite"`
	Postgres *PostgresConfig `cfg:"postgres"`

	// EncryptionKey, if set, enables AES-256-GCM encryption of backed-up
	// sample blobs at rest.
	EncryptionKey string `cfg:"encryption_key" log:"-"`
}

type SQLiteConfig struct {
	TablePrefix *string    `cfg:"table_prefix"`
	Datasource  string     `cfg:"datasource"`
	Migrate     MigrateCfg `cfg:"migrate"`
}

type PostgresConfig struct {
	TablePrefix     *string        `cfg:"table_prefix"`
	Datasource      string         `cfg:"datasource" log:"-"`
	Schema          string         `cfg:"schema"`
	ConnMaxLifetime *time.Duration `cfg:"conn_max_lifetime"`
	MaxIdleConns    *int           `cfg:"max_idle_conns"`
	MaxOpenConns    *int           `cfg:"max_open_conns"`
	Migrate         MigrateCfg     `cfg:"migrate"`
}

type MigrateCfg struct {
	Datasource string            `cfg:"datasource" log:"-"`
	Schema     string            `cfg:"schema"`
	Table      string            `cfg:"table"`
	Values     map[string]string `cfg:"values"`
}
