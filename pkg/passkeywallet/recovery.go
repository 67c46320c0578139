package passkeywallet

import (
	"crypto/elliptic"
	"crypto/sha256"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// HashSignedData computes the digest an authenticator signs during an
// assertion: SHA256(authenticatorData || SHA256(clientDataJSON)).
func HashSignedData(authenticatorData, clientDataJSON []byte) []byte {
	clientHash := sha256.Sum256(clientDataJSON)
	h := sha256.New()
	h.Write(authenticatorData)
	h.Write(clientHash[:])
	return h.Sum(nil)
}

// MessageHash returns the signed-data digest of an assertion.
func MessageHash(a *Assertion) []byte {
	return HashSignedData(a.AuthenticatorData, a.ClientDataJSON)
}

// Recoverer recovers candidate public keys from an ECDSA signature.
//
// Recovery is ambiguous: up to four points satisfy one signature. The caller
// chooses which recovery identifiers to try. Identifier bit 0 selects the odd
// y-coordinate of the nonce point, bit 1 selects x = r + n.
type Recoverer interface {
	// Recover returns one candidate per identifier, in the order given.
	// A candidate is invalid when no point exists for its identifier.
	Recover(hash []byte, sig SignatureScalars, recoveryIDs []int) []RecoveryCandidate

	// Order returns the order of the curve's base point.
	Order() *big.Int

	// Name returns the curve name.
	Name() string
}

// P256Recoverer recovers public keys over NIST P-256, the curve used by
// platform authenticators for ES256 credentials.
type P256Recoverer struct{}

// NewP256Recoverer creates a recoverer for P-256.
func NewP256Recoverer() *P256Recoverer {
	return &P256Recoverer{}
}

// Name returns the curve name.
func (p *P256Recoverer) Name() string {
	return "p256"
}

// Order returns the P-256 group order.
func (p *P256Recoverer) Order() *big.Int {
	return elliptic.P256().Params().N
}

// Recover implements Recoverer using SEC 1 section 4.1.6:
// Q = r^-1 (sR - eG) where R is the nonce point selected by the identifier.
func (p *P256Recoverer) Recover(hash []byte, sig SignatureScalars, recoveryIDs []int) []RecoveryCandidate {
	curve := elliptic.P256()
	params := curve.Params()
	out := make([]RecoveryCandidate, 0, len(recoveryIDs))
	for _, id := range recoveryIDs {
		c := RecoveryCandidate{RecoveryID: id, byteLen: (params.BitSize + 7) / 8}
		if x, y, ok := recoverPoint(curve, hash, sig, id); ok {
			c.X, c.Y = x, y
		}
		out = append(out, c)
	}
	return out
}

func recoverPoint(curve elliptic.Curve, hash []byte, sig SignatureScalars, id int) (*big.Int, *big.Int, bool) {
	params := curve.Params()
	n, p := params.N, params.P
	if id < 0 || id > 3 || sig.Check(n) != nil {
		return nil, nil, false
	}

	rx := new(big.Int).Set(sig.R)
	if id&2 != 0 {
		rx.Add(rx, n)
	}
	if rx.Cmp(p) >= 0 {
		return nil, nil, false
	}
	ry := decompressY(params, rx, id&1 == 1)
	if ry == nil || !curve.IsOnCurve(rx, ry) {
		return nil, nil, false
	}

	e := hashToInt(hash, n)
	rInv := new(big.Int).ModInverse(sig.R, n)
	if rInv == nil {
		return nil, nil, false
	}
	// u1 = -e * r^-1, u2 = s * r^-1
	u1 := new(big.Int).Mul(e, rInv)
	u1.Neg(u1).Mod(u1, n)
	u2 := new(big.Int).Mul(sig.S, rInv)
	u2.Mod(u2, n)

	x1, y1 := curve.ScalarBaseMult(scalarBytes(u1, params))
	x2, y2 := curve.ScalarMult(rx, ry, scalarBytes(u2, params))
	qx, qy := curve.Add(x1, y1, x2, y2)
	if qx.Sign() == 0 && qy.Sign() == 0 {
		return nil, nil, false
	}
	return qx, qy, true
}

// decompressY solves y^2 = x^3 - 3x + b for the requested parity.
func decompressY(params *elliptic.CurveParams, x *big.Int, odd bool) *big.Int {
	p := params.P
	y2 := new(big.Int).Exp(x, big.NewInt(3), p)
	threeX := new(big.Int).Lsh(x, 1)
	threeX.Add(threeX, x)
	y2.Sub(y2, threeX)
	y2.Add(y2, params.B)
	y2.Mod(y2, p)

	y := new(big.Int).ModSqrt(y2, p)
	if y == nil {
		return nil
	}
	if (y.Bit(0) == 1) != odd {
		y.Sub(p, y)
	}
	return y
}

// hashToInt converts a digest to an integer modulo n, truncating it to the
// bit length of n as ECDSA does.
func hashToInt(hash []byte, n *big.Int) *big.Int {
	orderBytes := (n.BitLen() + 7) / 8
	if len(hash) > orderBytes {
		hash = hash[:orderBytes]
	}
	e := new(big.Int).SetBytes(hash)
	if excess := len(hash)*8 - n.BitLen(); excess > 0 {
		e.Rsh(e, uint(excess))
	}
	return e.Mod(e, n)
}

func scalarBytes(k *big.Int, params *elliptic.CurveParams) []byte {
	return k.FillBytes(make([]byte, (params.N.BitLen()+7)/8))
}

// Secp256k1Recoverer recovers public keys over secp256k1 for authenticators
// registered with ES256K credentials.
type Secp256k1Recoverer struct{}

// NewSecp256k1Recoverer creates a recoverer for secp256k1.
func NewSecp256k1Recoverer() *Secp256k1Recoverer {
	return &Secp256k1Recoverer{}
}

// Name returns the curve name.
func (k *Secp256k1Recoverer) Name() string {
	return "secp256k1"
}

// Order returns the secp256k1 group order.
func (k *Secp256k1Recoverer) Order() *big.Int {
	return new(big.Int).Set(secp256k1.Params().N)
}

// compactMagicOffset is the base of the recovery code in a compact signature.
const compactMagicOffset = 27

// Recover implements Recoverer on top of the compact signature recovery of
// the secp256k1 package. Identifiers whose nonce point would overflow the
// field yield an invalid candidate.
func (k *Secp256k1Recoverer) Recover(hash []byte, sig SignatureScalars, recoveryIDs []int) []RecoveryCandidate {
	out := make([]RecoveryCandidate, 0, len(recoveryIDs))
	for _, id := range recoveryIDs {
		c := RecoveryCandidate{RecoveryID: id, byteLen: 32}
		if id >= 0 && id <= 3 && sig.Check(k.Order()) == nil {
			r, s := sig.Bytes()
			compact := make([]byte, 0, 65)
			compact = append(compact, byte(compactMagicOffset+id))
			compact = append(compact, r[:]...)
			compact = append(compact, s[:]...)
			if pub, _, err := ecdsa.RecoverCompact(compact, hash); err == nil {
				c.X, c.Y = pub.X(), pub.Y()
			}
		}
		out = append(out, c)
	}
	return out
}

// RecovererFor returns the recoverer for a curve name.
func RecovererFor(curve string) (Recoverer, bool) {
	switch curve {
	case "", "p256", "P-256", "secp256r1":
		return NewP256Recoverer(), true
	case "secp256k1":
		return NewSecp256k1Recoverer(), true
	}
	return nil, false
}
