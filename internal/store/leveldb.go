package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/mahdiidarabi/passkey-wallet/pkg/passkeywallet"
)

const walletKeySuffix = ":wallet:cid"

// LevelDBStore persists wallet bindings in LevelDB under the key
// "<networkId>:wallet:cid".
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens or creates a LevelDB binding store at path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &LevelDBStore{db: db}, nil
}

// OpenLevelDBMemory opens a LevelDB store that lives in memory.
func OpenLevelDBMemory() (*LevelDBStore, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &LevelDBStore{db: db}, nil
}

// Close closes the database.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

func walletKey(networkID string) []byte {
	return []byte(networkID + walletKeySuffix)
}

// GetWallet implements passkeywallet.BindingStore.
func (s *LevelDBStore) GetWallet(ctx context.Context, networkID string) (*passkeywallet.WalletBinding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := s.db.Get(walletKey(networkID), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, passkeywallet.ErrNoWallet
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet binding: %w", err)
	}
	return &passkeywallet.WalletBinding{NetworkID: networkID, CredentialID: string(v)}, nil
}

// SetWallet implements passkeywallet.BindingStore.
func (s *LevelDBStore) SetWallet(ctx context.Context, b passkeywallet.WalletBinding) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(b.NetworkID) == "" {
		return fmt.Errorf("network id is required")
	}
	if err := s.db.Put(walletKey(b.NetworkID), []byte(b.CredentialID), nil); err != nil {
		return fmt.Errorf("set wallet binding: %w", err)
	}
	return nil
}

// List returns every binding ordered by network id.
func (s *LevelDBStore) List(ctx context.Context) ([]passkeywallet.WalletBinding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	it := s.db.NewIterator(&util.Range{}, nil)
	defer it.Release()

	var out []passkeywallet.WalletBinding
	for it.Next() {
		network, ok := strings.CutSuffix(string(it.Key()), walletKeySuffix)
		if !ok {
			continue
		}
		out = append(out, passkeywallet.WalletBinding{NetworkID: network, CredentialID: string(it.Value())})
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("list wallet bindings: %w", err)
	}
	return out, nil
}
