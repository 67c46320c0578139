package passkeywallet

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"os"

	"github.com/go-webauthn/webauthn/protocol"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// ScalarSize is the byte length of each signature scalar.
const ScalarSize = 32

// DecomposeSignature splits an authenticator signature into its r and s scalars.
//
// The authenticator emits an ASN.1 SEQUENCE of two INTEGERs. An INTEGER whose
// most significant byte is >= 0x80 carries a leading zero byte so it is not read
// as negative; that byte is stripped independently for r and s. Each component
// must then fit in 32 bytes. A bare 64-byte r||s buffer that does not start
// with a SEQUENCE tag is accepted as well.
//
// Returns ErrMalformedSignature when the buffer cannot be decomposed.
func DecomposeSignature(sig []byte) (SignatureScalars, error) {
	var (
		input      = cryptobyte.String(sig)
		inner      cryptobyte.String
		rRaw, sRaw cryptobyte.String
	)
	if !input.ReadASN1(&inner, asn1.SEQUENCE) || !input.Empty() ||
		!inner.ReadASN1(&rRaw, asn1.INTEGER) ||
		!inner.ReadASN1(&sRaw, asn1.INTEGER) ||
		!inner.Empty() {
		if len(sig) == 2*ScalarSize && sig[0] != 0x30 {
			return SignatureScalars{
				R: new(big.Int).SetBytes(sig[:ScalarSize]),
				S: new(big.Int).SetBytes(sig[ScalarSize:]),
			}, nil
		}
		return SignatureScalars{}, NewOpError("decompose signature",
			fmt.Errorf("%w: not a DER sequence of two integers (%d bytes)", ErrMalformedSignature, len(sig)))
	}

	r, err := parseScalar("r", rRaw)
	if err != nil {
		return SignatureScalars{}, err
	}
	s, err := parseScalar("s", sRaw)
	if err != nil {
		return SignatureScalars{}, err
	}
	return SignatureScalars{R: r, S: s}, nil
}

func parseScalar(name string, raw []byte) (*big.Int, error) {
	if len(raw) == 0 {
		return nil, NewOpError("decompose signature", fmt.Errorf("%w: empty %s", ErrMalformedSignature, name))
	}
	if raw[0]&0x80 != 0 {
		return nil, NewOpError("decompose signature", fmt.Errorf("%w: negative %s", ErrMalformedSignature, name))
	}
	for len(raw) > ScalarSize && raw[0] == 0 {
		raw = raw[1:]
	}
	if len(raw) > ScalarSize {
		return nil, NewOpError("decompose signature",
			fmt.Errorf("%w: %s is %d bytes", ErrMalformedSignature, name, len(raw)))
	}
	return new(big.Int).SetBytes(raw), nil
}

// Bytes returns r and s as fixed 32-byte big-endian values.
func (s SignatureScalars) Bytes() (r, sb [ScalarSize]byte) {
	s.R.FillBytes(r[:])
	s.S.FillBytes(sb[:])
	return r, sb
}

// Check verifies that both scalars lie in [1, n-1] for the curve order n.
func (s SignatureScalars) Check(n *big.Int) error {
	if s.R == nil || s.S == nil {
		return NewOpError("check scalars", fmt.Errorf("%w: missing scalar", ErrMalformedSignature))
	}
	if s.R.Sign() <= 0 || s.R.Cmp(n) >= 0 {
		return NewOpError("check scalars", fmt.Errorf("%w: r out of range", ErrMalformedSignature))
	}
	if s.S.Sign() <= 0 || s.S.Cmp(n) >= 0 {
		return NewOpError("check scalars", fmt.Errorf("%w: s out of range", ErrMalformedSignature))
	}
	return nil
}

// AssertionParser defines the interface for decoding assertions from various sources.
type AssertionParser interface {
	// ParseAssertion decodes one assertion.
	ParseAssertion(data []byte) (*Assertion, error)
}

// JSONParser decodes the PublicKeyCredential JSON a browser returns from
// navigator.credentials.get(), with base64url encoded binary fields.
//
// Expected format:
//
//	{
//	  "id": "...", "rawId": "...", "type": "public-key",
//	  "response": {"authenticatorData": "...", "clientDataJSON": "...", "signature": "..."}
//	}
type JSONParser struct{}

// ParseAssertion parses an assertion from its JSON encoding.
func (p *JSONParser) ParseAssertion(data []byte) (*Assertion, error) {
	parsed, err := protocol.ParseCredentialRequestResponseBytes(data)
	if err != nil {
		return nil, NewOpError("parse assertion", fmt.Errorf("%w: %w", ErrInvalidAssertion, err))
	}
	raw := parsed.Raw.AssertionResponse
	return &Assertion{
		CredentialID:      parsed.ID,
		Signature:         []byte(raw.Signature),
		AuthenticatorData: []byte(raw.AuthenticatorData),
		ClientDataJSON:    []byte(raw.ClientDataJSON),
	}, nil
}

// ParseAssertionFile reads and parses an assertion JSON file.
func ParseAssertionFile(path string) (*Assertion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return (&JSONParser{}).ParseAssertion(data)
}

// AssertionDomain returns scheme://hostname of the origin recorded in the
// assertion's client data. It is the domain credentials are registered under.
func AssertionDomain(a *Assertion) (string, error) {
	var client protocol.CollectedClientData
	if err := json.Unmarshal(a.ClientDataJSON, &client); err != nil {
		return "", NewOpError("assertion domain", fmt.Errorf("%w: %w", ErrInvalidAssertion, err))
	}
	origin, err := url.Parse(client.Origin)
	if err != nil || origin.Scheme == "" || origin.Hostname() == "" {
		return "", NewOpError("assertion domain", fmt.Errorf("%w: bad origin %q", ErrInvalidAssertion, client.Origin))
	}
	return origin.Scheme + "://" + origin.Hostname(), nil
}
