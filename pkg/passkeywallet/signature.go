package passkeywallet

import (
	"encoding/hex"
	"math/big"
)

// Assertion is the signed response of a single WebAuthn get() ceremony.
// It is consumed once by the recovery pipeline.
type Assertion struct {
	CredentialID      string // base64url credential identifier
	Signature         []byte // DER encoded ECDSA signature
	AuthenticatorData []byte
	ClientDataJSON    []byte
}

// SignatureScalars holds the r and s components of an assertion signature.
type SignatureScalars struct {
	R *big.Int
	S *big.Int
}

// RecoveryCandidate is the public key recovered for one recovery identifier.
// X and Y are nil when no curve point exists for the identifier.
type RecoveryCandidate struct {
	RecoveryID int
	X          *big.Int
	Y          *big.Int
	byteLen    int
}

// Valid reports whether the candidate carries a curve point.
func (c RecoveryCandidate) Valid() bool {
	return c.X != nil && c.Y != nil
}

// Uncompressed returns the SEC1 uncompressed encoding 0x04 || X || Y with each
// coordinate left-padded to the curve's field size.
func (c RecoveryCandidate) Uncompressed() []byte {
	if !c.Valid() {
		return nil
	}
	size := c.byteLen
	if size == 0 {
		size = 32
	}
	out := make([]byte, 1+2*size)
	out[0] = 4
	c.X.FillBytes(out[1 : 1+size])
	c.Y.FillBytes(out[1+size:])
	return out
}

// Hex returns the lowercase hex form of Uncompressed. Both derivation
// generations hash this exact string.
func (c RecoveryCandidate) Hex() string {
	return hex.EncodeToString(c.Uncompressed())
}

// RegistryEntry is one on-chain (credentialId, publicKey, domain) binding.
type RegistryEntry struct {
	CredentialID string
	PublicKey    string
	Domain       string
	ChainID      string
}

// KeyMaterial is a blockchain key pair derived from a recovery candidate.
// It lives only for the duration of one recovery or signing call.
type KeyMaterial struct {
	PublicKey  string // hex ed25519 public key
	SecretKey  string // hex ed25519 private key seed
	Mnemonic   string // set by the mnemonic generation only
	Generation string // name of the generation that produced the key
	RecoveryID int
}

// WalletBinding maps a network to the credential that last recovered a key on it.
type WalletBinding struct {
	NetworkID    string `json:"networkId"`
	CredentialID string `json:"credentialId"`
}
