package passkeywallet

import (
	"context"
	"sync"
)

// BindingStore persists the wallet binding of each network. Implementations
// return ErrNoWallet from GetWallet when the network has no binding.
type BindingStore interface {
	GetWallet(ctx context.Context, networkID string) (*WalletBinding, error)
	SetWallet(ctx context.Context, binding WalletBinding) error
}

// MemoryBindingStore keeps bindings in process memory. The zero value is
// ready to use.
type MemoryBindingStore struct {
	mu       sync.RWMutex
	bindings map[string]string
}

// NewMemoryBindingStore creates an empty in-memory store.
func NewMemoryBindingStore() *MemoryBindingStore {
	return &MemoryBindingStore{bindings: make(map[string]string)}
}

// GetWallet implements BindingStore.
func (s *MemoryBindingStore) GetWallet(ctx context.Context, networkID string) (*WalletBinding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cid, ok := s.bindings[networkID]
	if !ok {
		return nil, ErrNoWallet
	}
	return &WalletBinding{NetworkID: networkID, CredentialID: cid}, nil
}

// SetWallet implements BindingStore. A later binding replaces an earlier one.
func (s *MemoryBindingStore) SetWallet(ctx context.Context, b WalletBinding) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bindings == nil {
		s.bindings = make(map[string]string)
	}
	s.bindings[b.NetworkID] = b.CredentialID
	return nil
}
