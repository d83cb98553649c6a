// Package sqlite provides a SQLite-backed catalog store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/louisbranch/rengine/internal/catalog"
	"github.com/louisbranch/rengine/internal/catalog/sqlite/migrations"
	"github.com/louisbranch/rengine/internal/platform/storage/sqlitemigrate"
)

// Store persists catalog records in SQLite. Payloads are stored as JSON.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite catalog store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutDefinition upserts one definition record.
func (s *Store) PutDefinition(ctx context.Context, def catalog.Definition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if def.Category == "" || def.ModID == "" || def.Name == "" {
		return fmt.Errorf("definition category, mod id and name are required")
	}
	payload, err := json.Marshal(def.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO definitions (category, mod_id, name, payload)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (category, mod_id, name) DO UPDATE SET payload = excluded.payload`,
		def.Category,
		def.ModID,
		def.Name,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert definition: %w", err)
	}
	return nil
}

// PutPrototype upserts one prototype record.
func (s *Store) PutPrototype(ctx context.Context, proto catalog.Prototype) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if proto.Key == "" {
		return fmt.Errorf("prototype key is required")
	}
	payload, err := json.Marshal(proto.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO prototypes (key, payload)
		 VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET payload = excluded.payload`,
		proto.Key,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert prototype: %w", err)
	}
	return nil
}

// ListDefinitions returns every definition record in key order.
func (s *Store) ListDefinitions(ctx context.Context) ([]catalog.Definition, error) {
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT category, mod_id, name, payload
		 FROM definitions
		 ORDER BY category, mod_id, name`,
	)
	if err != nil {
		return nil, fmt.Errorf("query definitions: %w", err)
	}
	defer rows.Close()

	var defs []catalog.Definition
	for rows.Next() {
		var def catalog.Definition
		var payload string
		if err := rows.Scan(&def.Category, &def.ModID, &def.Name, &payload); err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &def.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate definitions: %w", err)
	}
	return defs, nil
}

// GetPrototype returns one prototype record by key.
func (s *Store) GetPrototype(ctx context.Context, key string) (catalog.Prototype, error) {
	var payload string
	row := s.sqlDB.QueryRowContext(ctx, `SELECT payload FROM prototypes WHERE key = ?`, key)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Prototype{}, fmt.Errorf("prototype %q: %w", key, catalog.ErrNotFound)
		}
		return catalog.Prototype{}, fmt.Errorf("query prototype: %w", err)
	}

	proto := catalog.Prototype{Key: key}
	if err := json.Unmarshal([]byte(payload), &proto.Payload); err != nil {
		return catalog.Prototype{}, fmt.Errorf("decode payload: %w", err)
	}
	return proto, nil
}
