package store

import (
	"context"
	"fmt"
	"io"

	"github.com/mahdiidarabi/passkey-wallet/pkg/passkeywallet"
)

// Supported store drivers.
const (
	DriverMemory  = "memory"
	DriverSQLite  = "sqlite"
	DriverLevelDB = "leveldb"
)

// Store is a binding store that can list its contents and be closed.
type Store interface {
	passkeywallet.BindingStore
	io.Closer
	List(ctx context.Context) ([]passkeywallet.WalletBinding, error)
}

// Open opens the store named by driver at path.
func Open(driver, path string) (Store, error) {
	switch driver {
	case DriverSQLite:
		return OpenSQLite(path)
	case DriverLevelDB:
		return OpenLevelDB(path)
	case DriverMemory, "":
		return OpenLevelDBMemory()
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
