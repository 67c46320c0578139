package passkeywallet

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// softAuthenticator signs WebAuthn assertions with an in-memory P-256 key.
type softAuthenticator struct {
	key          *ecdsa.PrivateKey
	credentialID []byte
	rpID         string
	origin       string
	counter      uint32
}

func newSoftAuthenticator(t *testing.T) *softAuthenticator {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	id := make([]byte, 16)
	_, err = rand.Read(id)
	require.NoError(t, err)
	return &softAuthenticator{
		key:          key,
		credentialID: id,
		rpID:         "wallet.example.com",
		origin:       "https://wallet.example.com",
	}
}

func (s *softAuthenticator) cid() string {
	return base64.RawURLEncoding.EncodeToString(s.credentialID)
}

// assert runs a get() ceremony over challenge.
func (s *softAuthenticator) assert(t *testing.T, challenge []byte) *Assertion {
	t.Helper()
	s.counter++
	rpHash := sha256.Sum256([]byte(s.rpID))
	authData := make([]byte, 0, 37)
	authData = append(authData, rpHash[:]...)
	authData = append(authData, 0x05) // user present, user verified
	authData = binary.BigEndian.AppendUint32(authData, s.counter)

	clientData, err := json.Marshal(map[string]string{
		"type":      "webauthn.get",
		"challenge": base64.RawURLEncoding.EncodeToString(challenge),
		"origin":    s.origin,
	})
	require.NoError(t, err)

	sig, err := ecdsa.SignASN1(rand.Reader, s.key, HashSignedData(authData, clientData))
	require.NoError(t, err)
	return &Assertion{
		CredentialID:      s.cid(),
		Signature:         sig,
		AuthenticatorData: authData,
		ClientDataJSON:    clientData,
	}
}

// assertionJSON encodes a as the browser's PublicKeyCredential JSON.
func assertionJSON(t *testing.T, a *Assertion) []byte {
	t.Helper()
	enc := base64.RawURLEncoding.EncodeToString
	data, err := json.Marshal(map[string]any{
		"id":    a.CredentialID,
		"rawId": a.CredentialID,
		"type":  "public-key",
		"response": map[string]string{
			"authenticatorData": enc(a.AuthenticatorData),
			"clientDataJSON":    enc(a.ClientDataJSON),
			"signature":         enc(a.Signature),
		},
	})
	require.NoError(t, err)
	return data
}

// fakeFetcher serves pages in order and records every request.
type fakeFetcher struct {
	mu       sync.Mutex
	pages    []*Page
	err      error
	requests []PageRequest
}

func (f *fakeFetcher) FetchPage(_ context.Context, req PageRequest) (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	i := len(f.requests) - 1
	if i >= len(f.pages) {
		return &Page{}, nil
	}
	return f.pages[i], nil
}

func registryEdge(cursor, cid, publicKey, domain string) Edge {
	params, _ := json.Marshal([]string{cid, publicKey, domain})
	return Edge{Cursor: cursor, ChainID: "8", Parameters: string(params)}
}

// countingStore counts binding writes.
type countingStore struct {
	*MemoryBindingStore
	mu     sync.Mutex
	writes []WalletBinding
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryBindingStore: NewMemoryBindingStore()}
}

func (s *countingStore) SetWallet(ctx context.Context, b WalletBinding) error {
	s.mu.Lock()
	s.writes = append(s.writes, b)
	s.mu.Unlock()
	return s.MemoryBindingStore.SetWallet(ctx, b)
}

// recordingObserver keeps every event in arrival order.
type recordingObserver struct {
	mu         sync.Mutex
	states     []State
	tried      []string
	pages      int
	finished   []string
	finishErrs []error
	batches    []error
}

func (o *recordingObserver) StateChanged(_, to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, to)
}

func (o *recordingObserver) PageFetched(string, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pages++
}

func (o *recordingObserver) CandidateTried(gen string, id int, matched bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tried = append(o.tried, fmt.Sprintf("%s:%d:%t", gen, id, matched))
}

func (o *recordingObserver) RecoveryFinished(gen string, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, gen)
	o.finishErrs = append(o.finishErrs, err)
}

func (o *recordingObserver) BatchFinished(_ int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.batches = append(o.batches, err)
}

// fakeChain answers dry-runs from a status table keyed by command hash.
type fakeChain struct {
	mu       sync.Mutex
	failing  map[string]bool
	locals   []*Transaction
	submits  []*Transaction
	localErr error
}

func (c *fakeChain) Local(_ context.Context, tx *Transaction) (*LocalResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locals = append(c.locals, tx)
	if c.localErr != nil {
		return nil, c.localErr
	}
	status := "success"
	if c.failing[tx.Hash] {
		status = "failure"
	}
	return &LocalResult{RequestKey: tx.Hash, Result: ExecutionResult{Status: status}}, nil
}

func (c *fakeChain) Submit(_ context.Context, tx *Transaction) (*SubmitReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submits = append(c.submits, tx)
	cmd, err := ParseCommand(tx)
	if err != nil {
		return nil, err
	}
	return &SubmitReceipt{RequestKey: tx.Hash, NetworkID: cmd.NetworkID, ChainID: cmd.Meta.ChainID}, nil
}

func newEd25519Key(t *testing.T) *KeyMaterial {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return &KeyMaterial{
		PublicKey: hex.EncodeToString(pub),
		SecretKey: hex.EncodeToString(priv.Seed()),
	}
}

// unsignedTx builds a command listing signers in order.
func unsignedTx(t *testing.T, nonce string, signers ...string) *Transaction {
	t.Helper()
	list := make([]map[string]any, 0, len(signers))
	for _, s := range signers {
		list = append(list, map[string]any{"pubKey": s, "clist": []any{}})
	}
	cmd, err := json.Marshal(map[string]any{
		"networkId": "testnet04",
		"nonce":     nonce,
		"meta":      map[string]any{"chainId": "1", "sender": "k:" + signers[0], "gasLimit": 2500},
		"signers":   list,
		"payload":   map[string]any{"exec": map[string]any{"code": "(+ 1 2)", "data": map[string]any{}}},
	})
	require.NoError(t, err)
	return &Transaction{Cmd: string(cmd), Hash: CommandHash(string(cmd)), Sigs: make([]*SignatureEntry, len(signers))}
}
