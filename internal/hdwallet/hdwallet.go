// Package hdwallet derives Kadena ed25519 account keys from seeds.
//
// Seeds and secret keys never leave the package in plaintext. Every call
// takes a password and returns material encrypted under it with
// PBKDF2-SHA256 + AES-256-GCM. Keys follow SLIP-10 on the hardened path
// m/44'/626'/<index>'.
package hdwallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cosmos/go-bip39"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KadenaCoinType is the SLIP-44 coin type of Kadena.
	KadenaCoinType = 626

	hardenedOffset = 0x80000000
	seedModifier   = "ed25519 seed"

	saltSize         = 16
	keySize          = 32
	DefaultIteration = 1000
)

var (
	// ErrDecrypt is returned when ciphertext cannot be opened with the password.
	ErrDecrypt = errors.New("hdwallet: decryption failed")

	// ErrInvalidMnemonic is returned for a mnemonic that fails its checksum.
	ErrInvalidMnemonic = errors.New("hdwallet: invalid mnemonic")
)

// Wallet implements the key derivation operations.
type Wallet struct {
	iterations int
	rand       io.Reader
}

// New returns a wallet with default parameters.
func New() *Wallet {
	return &Wallet{iterations: DefaultIteration, rand: rand.Reader}
}

// WithIterations sets the PBKDF2 iteration count.
func (w *Wallet) WithIterations(n int) *Wallet {
	if n > 0 {
		w.iterations = n
	}
	return w
}

// WithRand sets the source of salts and nonces.
func (w *Wallet) WithRand(r io.Reader) *Wallet {
	if r != nil {
		w.rand = r
	}
	return w
}

// MnemonicToSeed returns the BIP-39 seed of mnemonic (empty passphrase)
// encrypted under password.
func (w *Wallet) MnemonicToSeed(password []byte, mnemonic string) ([]byte, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMnemonic, err)
	}
	defer wipe(seed)
	return w.Encrypt(password, seed)
}

// GenKeypairFromSeed decrypts encryptedSeed, derives the key at
// m/44'/626'/index' and returns the hex public key with the 32-byte private
// seed encrypted under password.
func (w *Wallet) GenKeypairFromSeed(password, encryptedSeed []byte, index uint32) (string, []byte, error) {
	seed, err := w.Decrypt(password, encryptedSeed)
	if err != nil {
		return "", nil, err
	}
	defer wipe(seed)

	priv, err := DeriveKey(seed, index)
	if err != nil {
		return "", nil, err
	}
	defer wipe(priv)

	pub := ed25519.NewKeyFromSeed(priv).Public().(ed25519.PublicKey)
	encSecret, err := w.Encrypt(password, priv)
	if err != nil {
		return "", nil, err
	}
	return hex.EncodeToString(pub), encSecret, nil
}

// DeriveKey returns the 32-byte ed25519 private seed at m/44'/626'/index'.
func DeriveKey(seed []byte, index uint32) ([]byte, error) {
	if len(seed) == 0 {
		return nil, errors.New("hdwallet: empty seed")
	}
	key, chain := masterKey(seed)
	for _, i := range []uint32{44, KadenaCoinType, index} {
		key, chain = childKey(key, chain, i|hardenedOffset)
	}
	return key, nil
}

func masterKey(seed []byte) (key, chain []byte) {
	mac := hmac.New(sha512.New, []byte(seedModifier))
	mac.Write(seed)
	sum := mac.Sum(nil)
	return sum[:32], sum[32:]
}

// childKey derives a hardened child. ed25519 under SLIP-10 has no
// non-hardened derivation.
func childKey(key, chain []byte, index uint32) ([]byte, []byte) {
	data := make([]byte, 0, 1+32+4)
	data = append(data, 0)
	data = append(data, key...)
	data = binary.BigEndian.AppendUint32(data, index)

	mac := hmac.New(sha512.New, chain)
	mac.Write(data)
	sum := mac.Sum(nil)
	return sum[:32], sum[32:]
}

// Encrypt seals data under password. The result is the base64 encoding of
// "salt.iv.ciphertext", each part base64 encoded.
func (w *Wallet) Encrypt(password, data []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(w.rand, salt); err != nil {
		return nil, fmt.Errorf("failed to read salt: %w", err)
	}
	gcm, err := w.aead(password, salt)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(w.rand, iv); err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}
	ct := gcm.Seal(nil, iv, data, nil)

	enc := base64.StdEncoding
	joined := strings.Join([]string{
		enc.EncodeToString(salt),
		enc.EncodeToString(iv),
		enc.EncodeToString(ct),
	}, ".")
	out := make([]byte, enc.EncodedLen(len(joined)))
	enc.Encode(out, []byte(joined))
	return out, nil
}

// Decrypt opens a value produced by Encrypt.
func (w *Wallet) Decrypt(password, ciphertext []byte) ([]byte, error) {
	enc := base64.StdEncoding
	joined := make([]byte, enc.DecodedLen(len(ciphertext)))
	n, err := enc.Decode(joined, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	parts := strings.Split(string(joined[:n]), ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: malformed envelope", ErrDecrypt)
	}
	var raw [3][]byte
	for i, p := range parts {
		if raw[i], err = enc.DecodeString(p); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
		}
	}
	gcm, err := w.aead(password, raw[0])
	if err != nil {
		return nil, err
	}
	if len(raw[1]) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce length", ErrDecrypt)
	}
	plain, err := gcm.Open(nil, raw[1], raw[2], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}

func (w *Wallet) aead(password, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(password, salt, w.iterations, keySize, sha256.New)
	defer wipe(key)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
