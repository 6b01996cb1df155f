// Package sqlite3 implements the BufferStore collaborator (observation
// ring-buffer backups) on a pure-Go SQLite backend: goqu for query
// building, modernc.org/sqlite as the driver, muz for embedded
// migrations, and the shared crypto package for at-rest encryption of
// the serialized sample blob.
package sqlite3

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/rakunlabs/datahub/internal/bufferstore"
	"github.com/rakunlabs/datahub/internal/crypto"
	"github.com/rakunlabs/datahub/internal/resource"
)

var DefaultTablePrefix = "datahub_"

// Store is a sqlite-backed BufferStore.
type Store struct {
	db   *sql.DB
	goqu *goqu.Database

	tableBuffers exp.IdentifierExpression

	encKey   []byte
	encKeyMu sync.RWMutex
}

func New(ctx context.Context, cfg *bufferstore.SQLiteConfig, encKey []byte) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("sqlite configuration is nil")
	}
	if cfg.Datasource == "" {
		return nil, errors.New("sqlite datasource is required")
	}

	tablePrefix := DefaultTablePrefix
	if cfg.TablePrefix != nil {
		tablePrefix = *cfg.TablePrefix
	}

	migrate := cfg.Migrate
	if migrate.Table == "" {
		migrate.Table = "migrations"
	}
	if migrate.Datasource == "" {
		migrate.Datasource = cfg.Datasource
	}
	migrate.Table = tablePrefix + migrate.Table
	if migrate.Values == nil {
		migrate.Values = make(map[string]string)
	}
	migrate.Values["TABLE_PREFIX"] = tablePrefix

	if err := migrateDB(ctx, &migrate); err != nil {
		return nil, fmt.Errorf("migrate buffer store sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Datasource)
	if err != nil {
		return nil, fmt.Errorf("open sqlite connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// SQLite is single-writer; limit connections accordingly.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	slog.Info("connected to buffer store sqlite")

	return &Store{
		db:           db,
		goqu:         goqu.New("sqlite3", db),
		tableBuffers: goqu.T(tablePrefix + "observation_buffers"),
		encKey:       encKey,
	}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Error("close buffer store sqlite connection", "error", err)
		}
	}
}

// SetEncryptionKey rotates the key used for future reads/writes.
func (s *Store) SetEncryptionKey(key []byte) {
	s.encKeyMu.Lock()
	defer s.encKeyMu.Unlock()
	s.encKey = key
}

func (s *Store) key() []byte {
	s.encKeyMu.RLock()
	defer s.encKeyMu.RUnlock()
	return s.encKey
}

type bufferRow struct {
	ObsPath    string  `db:"obs_path"`
	Samples    []byte  `db:"samples"`
	LastBackup float64 `db:"last_backup"`
}

// Load implements resource.BufferStore.
func (s *Store) Load(path string) ([]resource.BufferSample, float64, error) {
	query, args, err := s.goqu.From(s.tableBuffers).
		Select("obs_path", "samples", "last_backup").
		Where(goqu.C("obs_path").Eq(path)).
		ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build load query: %w", err)
	}

	var row bufferRow
	r := s.db.QueryRow(query, args...)
	if err := r.Scan(&row.ObsPath, &row.Samples, &row.LastBackup); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("load observation buffer %q: %w", path, err)
	}

	plain, err := crypto.DecryptBufferBlob(row.Samples, s.key())
	if err != nil {
		return nil, 0, fmt.Errorf("decrypt observation buffer %q: %w", path, err)
	}

	var samples []resource.BufferSample
	if err := json.Unmarshal(plain, &samples); err != nil {
		return nil, 0, fmt.Errorf("decode observation buffer %q: %w", path, err)
	}

	return samples, row.LastBackup, nil
}

// Save implements resource.BufferStore.
func (s *Store) Save(path string, samples []resource.BufferSample, lastBackup float64) error {
	plain, err := json.Marshal(samples)
	if err != nil {
		return fmt.Errorf("encode observation buffer %q: %w", path, err)
	}

	blob, err := crypto.EncryptBufferBlob(plain, s.key())
	if err != nil {
		return fmt.Errorf("encrypt observation buffer %q: %w", path, err)
	}

	query, args, err := s.goqu.Insert(s.tableBuffers).
		Rows(goqu.Record{"obs_path": path, "samples": blob, "last_backup": lastBackup}).
		OnConflict(goqu.DoUpdate("obs_path", goqu.Record{"samples": blob, "last_backup": lastBackup})).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build save query: %w", err)
	}

	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("save observation buffer %q: %w", path, err)
	}
	return nil
}

// Purge implements resource.BufferStore.
func (s *Store) Purge(path string) error {
	query, args, err := s.goqu.Delete(s.tableBuffers).
		Where(goqu.C("obs_path").Eq(path)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build purge query: %w", err)
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("purge observation buffer %q: %w", path, err)
	}
	return nil
}

// ListPaths implements resource.BufferStore.
func (s *Store) ListPaths() ([]string, error) {
	query, args, err := s.goqu.From(s.tableBuffers).Select("obs_path").ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list paths query: %w", err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list observation buffer paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan observation buffer path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
