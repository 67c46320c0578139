// Package store provides persistent wallet binding stores.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mahdiidarabi/passkey-wallet/pkg/passkeywallet"
)

const schema = `CREATE TABLE IF NOT EXISTS wallet_bindings (
	network_id    TEXT PRIMARY KEY,
	credential_id TEXT NOT NULL,
	updated_at    INTEGER NOT NULL
)`

// SQLiteStore persists wallet bindings in SQLite.
type SQLiteStore struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// OpenSQLite opens a SQLite binding store at path and creates its table.
// The path ":memory:" opens a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := ":memory:"
	if path != ":memory:" {
		dsn = "file:" + filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// each connection would get its own database
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// GetWallet implements passkeywallet.BindingStore.
func (s *SQLiteStore) GetWallet(ctx context.Context, networkID string) (*passkeywallet.WalletBinding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var cid string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT credential_id FROM wallet_bindings WHERE network_id = ?`, networkID).Scan(&cid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, passkeywallet.ErrNoWallet
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet binding: %w", err)
	}
	return &passkeywallet.WalletBinding{NetworkID: networkID, CredentialID: cid}, nil
}

// SetWallet implements passkeywallet.BindingStore.
func (s *SQLiteStore) SetWallet(ctx context.Context, b passkeywallet.WalletBinding) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(b.NetworkID) == "" {
		return fmt.Errorf("network id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO wallet_bindings (network_id, credential_id, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(network_id) DO UPDATE SET
		   credential_id = excluded.credential_id,
		   updated_at = excluded.updated_at`,
		b.NetworkID, b.CredentialID, s.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("set wallet binding: %w", err)
	}
	return nil
}

// List returns every binding ordered by network id.
func (s *SQLiteStore) List(ctx context.Context) ([]passkeywallet.WalletBinding, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT network_id, credential_id FROM wallet_bindings ORDER BY network_id`)
	if err != nil {
		return nil, fmt.Errorf("list wallet bindings: %w", err)
	}
	defer rows.Close()

	var out []passkeywallet.WalletBinding
	for rows.Next() {
		var b passkeywallet.WalletBinding
		if err := rows.Scan(&b.NetworkID, &b.CredentialID); err != nil {
			return nil, fmt.Errorf("scan wallet binding: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
