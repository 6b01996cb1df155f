package bufferstore

import (
	"context"
	"errors"

	"github.com/rakunlabs/datahub/internal/bufferstore/postgres"
	"github.com/rakunlabs/datahub/internal/bufferstore/sqlite3"
	"github.com/rakunlabs/datahub/internal/crypto"
	"github.com/rakunlabs/datahub/internal/resource"
)

// StorerClose is a resource.BufferStore that also owns a connection to
// close on shutdown.
type StorerClose interface {
	resource.BufferStore
	Close()
}

// New builds the configured backend. Exactly one of cfg.SQLite/cfg.Postgres
// must be set.
func New(ctx context.Context, cfg Config) (StorerClose, error) {
	var encKey []byte
	if cfg.EncryptionKey != "" {
		key, err := crypto.DeriveKey(cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
		encKey = key
	}

	var store StorerClose
	var err error

	switch {
	case cfg.SQLite != nil:
		store, err = sqlite3.New(ctx, cfg.SQLite, encKey)
	case cfg.Postgres != nil:
		store, err = postgres.New(ctx, cfg.Postgres, encKey)
	default:
		return nil, errors.New("no buffer store configured")
	}

	if err != nil {
		return nil, err
	}
	return store, nil
}
