package passkeywallet

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/cosmos/go-bip39"
)

// HDWallet is the deterministic key-derivation library the generations are
// built on. Seeds and secret keys cross this boundary only in encrypted form;
// the password is chosen by the caller for every call sequence.
type HDWallet interface {
	// MnemonicToSeed derives the seed of a mnemonic and returns it encrypted
	// under password.
	MnemonicToSeed(password []byte, mnemonic string) ([]byte, error)

	// GenKeypairFromSeed derives the key pair at index from an encrypted seed.
	// It returns the hex public key and the secret key encrypted under password.
	GenKeypairFromSeed(password, encryptedSeed []byte, index uint32) (string, []byte, error)

	// Encrypt encrypts data under password.
	Encrypt(password, data []byte) ([]byte, error)

	// Decrypt reverses Encrypt.
	Decrypt(password, ciphertext []byte) ([]byte, error)
}

// Generation is one deterministic scheme that turns a recovered public key
// into a blockchain key pair. Generations are tried in a fixed order and a
// later one only runs when every candidate of the earlier one missed.
type Generation interface {
	// Name returns a short identifier such as "mnemonic" or "legacy".
	Name() string

	// State returns the pipeline state reported while the generation runs.
	State() State

	// RecoveryIDs returns the recovery identifiers this generation tries.
	RecoveryIDs() []int

	// Derive produces the key pair for one candidate. It must not share
	// password material with any other call.
	Derive(ctx context.Context, candidate RecoveryCandidate) (*KeyMaterial, error)

	// Bind records the wallet binding after this generation matched.
	Bind(ctx context.Context, binding WalletBinding) error
}

// BindFunc persists a wallet binding.
type BindFunc func(ctx context.Context, binding WalletBinding) error

// MatcherConfig configures candidate fan-out.
type MatcherConfig struct {
	// NumWorkers bounds concurrent derivations within a generation (0 = one per candidate)
	NumWorkers int
}

// DefaultMatcherConfig returns the default matcher configuration.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{NumWorkers: 0}
}

// passwordSize is the length of the per-candidate random password.
const passwordSize = 32

func newPassword(r io.Reader) ([]byte, error) {
	if r == nil {
		r = rand.Reader
	}
	pw := make([]byte, passwordSize)
	if _, err := io.ReadFull(r, pw); err != nil {
		return nil, fmt.Errorf("failed to generate password: %w", err)
	}
	return pw, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// MnemonicGeneration is the current derivation scheme.
//
// The SHA-256 digest of the candidate's hex encoding is used as BIP-39
// entropy. The resulting 24-word mnemonic seeds the wallet and the key at
// index 0 is the account key. Only recovery identifiers 0 and 1 are tried.
type MnemonicGeneration struct {
	Wallet HDWallet
	Rand   io.Reader // password source, crypto/rand when nil
	Binder BindFunc
}

// Name returns "mnemonic".
func (g *MnemonicGeneration) Name() string { return "mnemonic" }

// State returns StateMatchingMnemonic.
func (g *MnemonicGeneration) State() State { return StateMatchingMnemonic }

// RecoveryIDs returns {0, 1}.
func (g *MnemonicGeneration) RecoveryIDs() []int { return []int{0, 1} }

// Derive implements Generation.
func (g *MnemonicGeneration) Derive(ctx context.Context, c RecoveryCandidate) (*KeyMaterial, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entropy := sha256.Sum256([]byte(c.Hex()))
	mnemonic, err := bip39.NewMnemonic(entropy[:])
	if err != nil {
		return nil, fmt.Errorf("failed to build mnemonic: %w", err)
	}

	password, err := newPassword(g.Rand)
	if err != nil {
		return nil, err
	}
	defer zero(password)

	seed, err := g.Wallet.MnemonicToSeed(password, mnemonic)
	if err != nil {
		return nil, fmt.Errorf("failed to derive seed: %w", err)
	}
	return deriveAccount(g.Wallet, password, seed, c.RecoveryID, g.Name(), mnemonic)
}

// Bind implements Generation.
func (g *MnemonicGeneration) Bind(ctx context.Context, b WalletBinding) error {
	if g.Binder == nil {
		return nil
	}
	return g.Binder(ctx, b)
}

// LegacyGeneration is the original direct-seed scheme kept for keys
// registered before mnemonics were introduced.
//
// The SHA-512 digest of the candidate's hex encoding is the raw seed. All
// four recovery identifiers are tried.
type LegacyGeneration struct {
	Wallet HDWallet
	Rand   io.Reader
	Binder BindFunc
}

// Name returns "legacy".
func (g *LegacyGeneration) Name() string { return "legacy" }

// State returns StateMatchingLegacy.
func (g *LegacyGeneration) State() State { return StateMatchingLegacy }

// RecoveryIDs returns {0, 1, 2, 3}.
func (g *LegacyGeneration) RecoveryIDs() []int { return []int{0, 1, 2, 3} }

// Derive implements Generation.
func (g *LegacyGeneration) Derive(ctx context.Context, c RecoveryCandidate) (*KeyMaterial, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seed := sha512.Sum512([]byte(c.Hex()))
	defer zero(seed[:])

	password, err := newPassword(g.Rand)
	if err != nil {
		return nil, err
	}
	defer zero(password)

	encSeed, err := g.Wallet.Encrypt(password, seed[:])
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt seed: %w", err)
	}
	return deriveAccount(g.Wallet, password, encSeed, c.RecoveryID, g.Name(), "")
}

// Bind implements Generation.
func (g *LegacyGeneration) Bind(ctx context.Context, b WalletBinding) error {
	if g.Binder == nil {
		return nil
	}
	return g.Binder(ctx, b)
}

func deriveAccount(w HDWallet, password, encSeed []byte, recoveryID int, generation, mnemonic string) (*KeyMaterial, error) {
	publicKey, encSecret, err := w.GenKeypairFromSeed(password, encSeed, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key pair: %w", err)
	}
	secret, err := w.Decrypt(password, encSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secret key: %w", err)
	}
	defer zero(secret)

	return &KeyMaterial{
		PublicKey:  publicKey,
		SecretKey:  hex.EncodeToString(secret),
		Mnemonic:   mnemonic,
		Generation: generation,
		RecoveryID: recoveryID,
	}, nil
}
