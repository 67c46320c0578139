package passkeywallet

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahdiidarabi/passkey-wallet/internal/hdwallet"
)

const testNetwork = "testnet04"

// fixture is one authenticator assertion with the keys both generations
// derive from its recovery candidates.
type fixture struct {
	auth       *softAuthenticator
	assertion  *Assertion
	candidates []RecoveryCandidate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	auth := newSoftAuthenticator(t)
	a := auth.assert(t, []byte("client-fixture-challenge-0000000"))
	sig, err := DecomposeSignature(a.Signature)
	require.NoError(t, err)
	return &fixture{
		auth:       auth,
		assertion:  a,
		candidates: NewP256Recoverer().Recover(MessageHash(a), sig, []int{0, 1, 2, 3}),
	}
}

func (f *fixture) derive(t *testing.T, gen Generation, id int) *KeyMaterial {
	t.Helper()
	key, err := gen.Derive(context.Background(), f.candidates[id])
	require.NoError(t, err)
	return key
}

func TestClient_ConnectWallet_MnemonicRecoveryIDOne(t *testing.T) {
	f := newFixture(t)
	want := f.derive(t, &MnemonicGeneration{Wallet: hdwallet.New()}, 1)

	fetcher := &fakeFetcher{pages: []*Page{{TotalCount: 1, Edges: []Edge{
		registryEdge("c1", f.assertion.CredentialID, want.PublicKey, f.auth.origin),
	}}}}
	store := newCountingStore()
	obs := &recordingObserver{}
	client := NewClient().WithPageFetcher(fetcher).WithBindingStore(store).WithObserver(obs)

	key, err := client.ConnectWallet(context.Background(), f.assertion, testNetwork, "")
	require.NoError(t, err)
	assert.Equal(t, want.PublicKey, key.PublicKey)
	assert.Equal(t, want.SecretKey, key.SecretKey)
	assert.Equal(t, want.Mnemonic, key.Mnemonic)
	assert.Equal(t, 1, key.RecoveryID)
	assert.Equal(t, "mnemonic", key.Generation)

	require.Len(t, store.writes, 1)
	assert.Equal(t, WalletBinding{NetworkID: testNetwork, CredentialID: f.assertion.CredentialID}, store.writes[0])

	for _, e := range obs.tried {
		assert.NotContains(t, e, "legacy", "generation two must not run")
	}
	assert.Equal(t, []State{
		StateAwaitingAssertion,
		StateComputingHash,
		StateRecoveringCandidates,
		StateQueryingRegistry,
		StateMatchingMnemonic,
		StateBound,
	}, obs.states)

	binding, err := client.Wallet(context.Background(), testNetwork)
	require.NoError(t, err)
	assert.Equal(t, f.assertion.CredentialID, binding.CredentialID)
}

func TestClient_ConnectWallet_LegacyFallback(t *testing.T) {
	f := newFixture(t)
	want := f.derive(t, &LegacyGeneration{Wallet: hdwallet.New()}, 0)

	fetcher := &fakeFetcher{pages: []*Page{{Edges: []Edge{
		registryEdge("c1", f.assertion.CredentialID, want.PublicKey, "https://app.example.org"),
	}}}}
	store := newCountingStore()
	obs := &recordingObserver{}
	client := NewClient().WithPageFetcher(fetcher).WithBindingStore(store).WithObserver(obs)

	key, err := client.ConnectWallet(context.Background(), f.assertion, testNetwork, "https://app.example.org")
	require.NoError(t, err)
	assert.Equal(t, "legacy", key.Generation)
	assert.Equal(t, 0, key.RecoveryID)
	assert.Len(t, store.writes, 1)
	assert.Contains(t, obs.states, StateMatchingLegacy)
	assert.Equal(t, StateBound, obs.states[len(obs.states)-1])
}

func TestClient_ConnectWallet_NoRecoverablePublicKey(t *testing.T) {
	f := newFixture(t)
	fetcher := &fakeFetcher{pages: []*Page{{Edges: []Edge{
		registryEdge("c1", f.assertion.CredentialID, "00ff", f.auth.origin),
	}}}}
	store := newCountingStore()
	obs := &recordingObserver{}
	client := NewClient().WithPageFetcher(fetcher).WithBindingStore(store).WithObserver(obs)

	_, err := client.ConnectWallet(context.Background(), f.assertion, testNetwork, "")
	assert.ErrorIs(t, err, ErrNoRecoverablePublicKey)
	assert.Empty(t, store.writes)
	assert.Equal(t, StateFailed, obs.states[len(obs.states)-1])
}

// pointlessRecoverer yields no valid candidate for any identifier.
type pointlessRecoverer struct{ Recoverer }

func (pointlessRecoverer) Recover(_ []byte, _ SignatureScalars, ids []int) []RecoveryCandidate {
	out := make([]RecoveryCandidate, len(ids))
	for i, id := range ids {
		out[i] = RecoveryCandidate{RecoveryID: id}
	}
	return out
}

func TestClient_ConnectWallet_RegistryCheckedBeforeCandidates(t *testing.T) {
	f := newFixture(t)
	recoverer := pointlessRecoverer{NewP256Recoverer()}

	fetcher := &fakeFetcher{}
	_, err := NewClient().WithRecoverer(recoverer).WithPageFetcher(fetcher).
		ConnectWallet(context.Background(), f.assertion, testNetwork, "")
	assert.ErrorIs(t, err, ErrNoCredentialsFound)
	assert.NotEmpty(t, fetcher.requests)

	fetcher = &fakeFetcher{pages: []*Page{{Edges: []Edge{
		registryEdge("c1", f.assertion.CredentialID, "00ff", f.auth.origin),
	}}}}
	_, err = NewClient().WithRecoverer(recoverer).WithPageFetcher(fetcher).
		ConnectWallet(context.Background(), f.assertion, testNetwork, "")
	assert.ErrorIs(t, err, ErrNoRecoverablePublicKey)
}

func TestClient_ConnectWallet_Failures(t *testing.T) {
	f := newFixture(t)

	t.Run("no credentials", func(t *testing.T) {
		client := NewClient().WithPageFetcher(&fakeFetcher{})
		_, err := client.ConnectWallet(context.Background(), f.assertion, testNetwork, "")
		assert.ErrorIs(t, err, ErrNoCredentialsFound)
	})

	t.Run("malformed signature", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		bad := *f.assertion
		bad.Signature = []byte{0x30, 0x01}
		_, err := NewClient().WithPageFetcher(fetcher).ConnectWallet(context.Background(), &bad, testNetwork, "")
		assert.ErrorIs(t, err, ErrMalformedSignature)
		assert.Empty(t, fetcher.requests, "registry must not be queried")
	})

	t.Run("transport", func(t *testing.T) {
		cause := errors.New("graphql unavailable")
		_, err := NewClient().WithPageFetcher(&fakeFetcher{err: cause}).
			ConnectWallet(context.Background(), f.assertion, testNetwork, "")
		assert.True(t, IsTransport(err))
		assert.ErrorIs(t, err, cause)
	})

	t.Run("not configured", func(t *testing.T) {
		_, err := NewClient().ConnectWallet(context.Background(), f.assertion, testNetwork, "")
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("missing assertion", func(t *testing.T) {
		_, err := NewClient().WithPageFetcher(&fakeFetcher{}).ConnectWallet(context.Background(), nil, testNetwork, "")
		assert.ErrorIs(t, err, ErrInvalidAssertion)
	})
}

func TestClient_RequestOptions(t *testing.T) {
	f := newFixture(t)
	client := NewClient().WithRelyingPartyID(f.auth.rpID)
	ctx := context.Background()

	opts, err := client.RequestOptions(ctx, testNetwork)
	require.NoError(t, err)
	assert.Len(t, opts.Challenge, 32)
	assert.Equal(t, 60000, opts.Timeout)
	assert.Equal(t, f.auth.rpID, opts.RelyingPartyID)
	assert.Empty(t, opts.AllowedCredentials)

	require.NoError(t, client.SetWallet(ctx, WalletBinding{NetworkID: testNetwork, CredentialID: f.auth.cid()}))
	opts, err = client.RequestOptions(ctx, testNetwork)
	require.NoError(t, err)
	require.Len(t, opts.AllowedCredentials, 1)
	assert.Equal(t, "public-key", string(opts.AllowedCredentials[0].Type))
	assert.Equal(t, f.auth.credentialID, []byte(opts.AllowedCredentials[0].CredentialID))

	other, err := client.RequestOptions(ctx, "mainnet01")
	require.NoError(t, err)
	assert.Empty(t, other.AllowedCredentials)
}

func TestClient_ParseAssertion(t *testing.T) {
	f := newFixture(t)
	got, err := NewClient().ParseAssertion(assertionJSON(t, f.assertion))
	require.NoError(t, err)
	assert.Equal(t, f.assertion.Signature, got.Signature)
}

func TestClient_SignSubmit(t *testing.T) {
	f := newFixture(t)
	want := f.derive(t, &MnemonicGeneration{Wallet: hdwallet.New()}, 1)
	fetcher := &fakeFetcher{pages: []*Page{{Edges: []Edge{
		registryEdge("c1", f.assertion.CredentialID, want.PublicKey, f.auth.origin),
	}}}}
	chain := &fakeChain{}
	client := NewClient().WithPageFetcher(fetcher).WithChainClient(chain)

	auto := []*Transaction{unsignedTx(t, "auto", want.PublicKey)}
	txs := []*Transaction{unsignedTx(t, "one", want.PublicKey), unsignedTx(t, "two", want.PublicKey)}
	res, err := client.SignSubmit(context.Background(), SignRequest{
		Assertion:        f.assertion,
		NetworkID:        testNetwork,
		AutoTransactions: auto,
		Transactions:     txs,
	})
	require.NoError(t, err)
	assert.Equal(t, want.PublicKey, res.Key.PublicKey)
	require.Len(t, res.AutoReceipts, 1)
	require.Len(t, res.Receipts, 2)
	assert.Equal(t, txs[1].Hash, res.Receipts[1].RequestKey)

	require.Len(t, chain.submits, 3)
	assert.Equal(t, auto[0].Hash, chain.submits[0].Hash, "auto transactions go first")
}

func TestClient_SignSubmit_AutoBatchFailureStopsMain(t *testing.T) {
	f := newFixture(t)
	want := f.derive(t, &MnemonicGeneration{Wallet: hdwallet.New()}, 1)
	fetcher := &fakeFetcher{pages: []*Page{{Edges: []Edge{
		registryEdge("c1", f.assertion.CredentialID, want.PublicKey, f.auth.origin),
	}}}}
	auto := []*Transaction{unsignedTx(t, "auto", want.PublicKey)}
	chain := &fakeChain{failing: map[string]bool{auto[0].Hash: true}}

	_, err := NewClient().WithPageFetcher(fetcher).WithChainClient(chain).SignSubmit(context.Background(), SignRequest{
		Assertion:        f.assertion,
		NetworkID:        testNetwork,
		AutoTransactions: auto,
		Transactions:     []*Transaction{unsignedTx(t, "main", want.PublicKey)},
	})
	assert.ErrorIs(t, err, ErrBatchSigningFailed)
	assert.Len(t, chain.locals, 1)
	assert.Empty(t, chain.submits)
}

// confirmingChain records when Confirm is called relative to submissions.
type confirmingChain struct {
	fakeChain
	confirmErr      error
	confirmed       []*SubmitReceipt
	submitsAtCalled int
}

func (c *confirmingChain) Confirm(_ context.Context, receipts []*SubmitReceipt) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmed = receipts
	c.submitsAtCalled = len(c.submits)
	return c.confirmErr
}

func TestClient_SignSubmit_ConfirmsAutoBatch(t *testing.T) {
	f := newFixture(t)
	want := f.derive(t, &MnemonicGeneration{Wallet: hdwallet.New()}, 1)
	newFetcher := func() *fakeFetcher {
		return &fakeFetcher{pages: []*Page{{Edges: []Edge{
			registryEdge("c1", f.assertion.CredentialID, want.PublicKey, f.auth.origin),
		}}}}
	}
	auto := []*Transaction{unsignedTx(t, "auto", want.PublicKey)}
	txs := []*Transaction{unsignedTx(t, "main", want.PublicKey)}

	chain := &confirmingChain{}
	res, err := NewClient().WithPageFetcher(newFetcher()).WithChainClient(chain).SignSubmit(context.Background(), SignRequest{
		Assertion:        f.assertion,
		NetworkID:        testNetwork,
		AutoTransactions: auto,
		Transactions:     txs,
	})
	require.NoError(t, err)
	assert.Equal(t, res.AutoReceipts, chain.confirmed)
	assert.Equal(t, 1, chain.submitsAtCalled, "confirm runs between the auto and main batches")
	assert.Len(t, chain.submits, 2)

	failing := &confirmingChain{confirmErr: errors.New("listen failed")}
	_, err = NewClient().WithPageFetcher(newFetcher()).WithChainClient(failing).SignSubmit(context.Background(), SignRequest{
		Assertion:        f.assertion,
		NetworkID:        testNetwork,
		AutoTransactions: auto,
		Transactions:     txs,
	})
	assert.ErrorIs(t, err, ErrTransport)
	assert.Len(t, failing.submits, 1, "main batch is not submitted")
}

func TestClient_SignSubmit_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := NewClient().WithChainClient(&fakeChain{}).SignSubmit(context.Background(), SignRequest{Assertion: f.assertion})
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = NewClient().SignSubmit(context.Background(), SignRequest{
		Assertion:    f.assertion,
		Transactions: []*Transaction{{Cmd: "{}"}},
	})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestMemoryBindingStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBindingStore()
	_, err := s.GetWallet(ctx, testNetwork)
	assert.ErrorIs(t, err, ErrNoWallet)

	require.NoError(t, s.SetWallet(ctx, WalletBinding{NetworkID: testNetwork, CredentialID: "a"}))
	require.NoError(t, s.SetWallet(ctx, WalletBinding{NetworkID: testNetwork, CredentialID: "b"}))
	got, err := s.GetWallet(ctx, testNetwork)
	require.NoError(t, err)
	assert.Equal(t, "b", got.CredentialID)
}

func TestMemoryBindingStore_ZeroValue(t *testing.T) {
	ctx := context.Background()
	var s MemoryBindingStore
	_, err := s.GetWallet(ctx, testNetwork)
	assert.ErrorIs(t, err, ErrNoWallet)

	require.NoError(t, s.SetWallet(ctx, WalletBinding{NetworkID: testNetwork, CredentialID: "a"}))
	got, err := s.GetWallet(ctx, testNetwork)
	require.NoError(t, err)
	assert.Equal(t, "a", got.CredentialID)
}
