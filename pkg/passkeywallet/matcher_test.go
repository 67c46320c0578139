package passkeywallet

import (
	"context"
	"crypto/sha256"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cosmos/go-bip39"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahdiidarabi/passkey-wallet/internal/hdwallet"
)

// stubGeneration derives a fixed public key per recovery identifier.
type stubGeneration struct {
	name  string
	ids   []int
	keys  map[int]string
	err   error
	binds atomic.Int32

	mu    sync.Mutex
	calls []int
}

func (g *stubGeneration) Name() string       { return g.name }
func (g *stubGeneration) State() State       { return StateMatchingMnemonic }
func (g *stubGeneration) RecoveryIDs() []int { return g.ids }

func (g *stubGeneration) Derive(_ context.Context, c RecoveryCandidate) (*KeyMaterial, error) {
	g.mu.Lock()
	g.calls = append(g.calls, c.RecoveryID)
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return &KeyMaterial{PublicKey: g.keys[c.RecoveryID], Generation: g.name, RecoveryID: c.RecoveryID}, nil
}

func (g *stubGeneration) Bind(context.Context, WalletBinding) error {
	g.binds.Add(1)
	return nil
}

func fixtureCandidates(t *testing.T) []RecoveryCandidate {
	t.Helper()
	auth := newSoftAuthenticator(t)
	a := auth.assert(t, []byte("matcher-fixture-challenge-000000"))
	sig, err := DecomposeSignature(a.Signature)
	require.NoError(t, err)
	return NewP256Recoverer().Recover(MessageHash(a), sig, []int{0, 1, 2, 3})
}

func TestMatcher_RecoveryIDs(t *testing.T) {
	m := NewMatcher(NewP256Recoverer(), &MnemonicGeneration{}, &LegacyGeneration{})
	assert.Equal(t, []int{0, 1, 2, 3}, m.RecoveryIDs())
}

func TestMatcher_Match_GenerationOrdering(t *testing.T) {
	ctx := context.Background()
	candidates := fixtureCandidates(t)
	wallet := hdwallet.New()

	legacyOnly, err := (&LegacyGeneration{Wallet: wallet}).Derive(ctx, candidates[1])
	require.NoError(t, err)

	var mnemonicBinds, legacyBinds atomic.Int32
	obs := &recordingObserver{}
	m := NewMatcher(NewP256Recoverer(),
		&MnemonicGeneration{Wallet: wallet, Binder: func(context.Context, WalletBinding) error {
			mnemonicBinds.Add(1)
			return nil
		}},
		&LegacyGeneration{Wallet: wallet, Binder: func(context.Context, WalletBinding) error {
			legacyBinds.Add(1)
			return nil
		}},
	).WithObserver(obs)

	key, err := m.Match(ctx, MatchRequest{
		NetworkID:    "testnet04",
		CredentialID: testCID,
		Candidates:   candidates,
		Registered:   []string{legacyOnly.PublicKey},
	})
	require.NoError(t, err)
	assert.Equal(t, "legacy", key.Generation)
	assert.Equal(t, 1, key.RecoveryID)
	assert.Equal(t, legacyOnly.PublicKey, key.PublicKey)
	assert.Empty(t, key.Mnemonic)

	require.GreaterOrEqual(t, len(obs.tried), 3)
	assert.True(t, strings.HasPrefix(obs.tried[0], "mnemonic:"))
	assert.True(t, strings.HasPrefix(obs.tried[1], "mnemonic:"))
	for _, e := range obs.tried[2:] {
		assert.True(t, strings.HasPrefix(e, "legacy:"), "unexpected event %s after generation one", e)
	}
	assert.Equal(t, []string{"mnemonic", "legacy"}, obs.finished)
	assert.Equal(t, int32(0), mnemonicBinds.Load())
	assert.Equal(t, int32(1), legacyBinds.Load())
}

func TestMatcher_Match_LowestRecoveryIDWins(t *testing.T) {
	candidates := fixtureCandidates(t)
	gen := &stubGeneration{name: "stub", ids: []int{1, 0}, keys: map[int]string{0: "aa", 1: "aa"}}

	key, err := NewMatcher(NewP256Recoverer(), gen).Match(context.Background(), MatchRequest{
		Candidates: candidates,
		Registered: []string{"aa"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, key.RecoveryID)
	assert.Equal(t, int32(1), gen.binds.Load())
}

func TestMatcher_Match_SkipsLaterGenerationsOnMatch(t *testing.T) {
	candidates := fixtureCandidates(t)
	first := &stubGeneration{name: "first", ids: []int{0, 1}, keys: map[int]string{0: "k0", 1: "k1"}}
	second := &stubGeneration{name: "second", ids: []int{0, 1, 2, 3}, keys: map[int]string{}}

	key, err := NewMatcher(NewP256Recoverer(), first, second).
		WithConfig(MatcherConfig{NumWorkers: 1}).
		Match(context.Background(), MatchRequest{Candidates: candidates, Registered: []string{"k1"}})
	require.NoError(t, err)
	assert.Equal(t, "first", key.Generation)
	assert.ElementsMatch(t, []int{0, 1}, first.calls)
	assert.Empty(t, second.calls)
	assert.Equal(t, int32(0), second.binds.Load())
}

func TestMatcher_Match_NoMatch(t *testing.T) {
	candidates := fixtureCandidates(t)
	first := &stubGeneration{name: "first", ids: []int{0, 1}, keys: map[int]string{0: "a", 1: "b"}}
	second := &stubGeneration{name: "second", ids: []int{0, 1, 2, 3}, keys: map[int]string{0: "c", 1: "d"}}

	_, err := NewMatcher(NewP256Recoverer(), first, second).
		Match(context.Background(), MatchRequest{Candidates: candidates, Registered: []string{"zz"}})
	assert.ErrorIs(t, err, ErrNoRecoverablePublicKey)
	assert.Len(t, first.calls, 2)
	// invalid candidates are never derived
	for _, id := range second.calls {
		assert.True(t, candidates[id].Valid())
	}
	assert.Equal(t, int32(0), first.binds.Load()+second.binds.Load())
}

func TestMatcher_Match_ReportsMissedGenerations(t *testing.T) {
	candidates := fixtureCandidates(t)
	first := &stubGeneration{name: "first", ids: []int{0, 1}, keys: map[int]string{0: "a", 1: "b"}}
	second := &stubGeneration{name: "second", ids: []int{0, 1}, keys: map[int]string{0: "c", 1: "d"}}
	obs := &recordingObserver{}

	_, err := NewMatcher(NewP256Recoverer(), first, second).WithObserver(obs).
		Match(context.Background(), MatchRequest{Candidates: candidates, Registered: []string{"zz"}})
	assert.ErrorIs(t, err, ErrNoRecoverablePublicKey)
	assert.Equal(t, []string{"first", "second"}, obs.finished)
	require.Len(t, obs.finishErrs, 2)
	for _, e := range obs.finishErrs {
		assert.ErrorIs(t, e, ErrNoRecoverablePublicKey)
	}
}

func TestMatcher_Match_ExactKeyComparison(t *testing.T) {
	gen := &stubGeneration{name: "stub", ids: []int{0, 1}, keys: map[int]string{0: "AB", 1: "ab"}}
	key, err := NewMatcher(NewP256Recoverer(), gen).Match(context.Background(), MatchRequest{
		Candidates: fixtureCandidates(t),
		Registered: []string{"ab"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, key.RecoveryID)

	_, err = NewMatcher(NewP256Recoverer(), &stubGeneration{name: "upper", ids: []int{0}, keys: map[int]string{0: "AB"}}).
		Match(context.Background(), MatchRequest{Candidates: fixtureCandidates(t), Registered: []string{"ab"}})
	assert.ErrorIs(t, err, ErrNoRecoverablePublicKey)
}

func TestMatcher_Match_DeriveError(t *testing.T) {
	boom := errors.New("boom")
	gen := &stubGeneration{name: "broken", ids: []int{0, 1}, err: boom}
	_, err := NewMatcher(NewP256Recoverer(), gen).
		Match(context.Background(), MatchRequest{Candidates: fixtureCandidates(t), Registered: []string{"x"}})
	assert.ErrorIs(t, err, boom)
}

func TestMatcher_MatchSignature(t *testing.T) {
	auth := newSoftAuthenticator(t)
	a := auth.assert(t, []byte("match-signature-challenge-000000"))
	sig, err := DecomposeSignature(a.Signature)
	require.NoError(t, err)

	gen := &stubGeneration{name: "stub", ids: []int{0, 1}, keys: map[int]string{0: "p0", 1: "p1"}}
	key, err := NewMatcher(NewP256Recoverer(), gen).
		MatchSignature(context.Background(), MessageHash(a), sig, MatchRequest{Registered: []string{"p1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, key.RecoveryID)
}

func TestMnemonicGeneration_Derive(t *testing.T) {
	ctx := context.Background()
	c := fixtureCandidates(t)[0]
	gen := &MnemonicGeneration{Wallet: hdwallet.New()}

	first, err := gen.Derive(ctx, c)
	require.NoError(t, err)
	second, err := gen.Derive(ctx, c)
	require.NoError(t, err)

	assert.Equal(t, first.PublicKey, second.PublicKey, "fresh passwords must not change the key")
	assert.Equal(t, first.SecretKey, second.SecretKey)
	assert.Len(t, strings.Fields(first.Mnemonic), 24)
	assert.True(t, bip39.IsMnemonicValid(first.Mnemonic))

	entropy := sha256.Sum256([]byte(c.Hex()))
	want, err := bip39.NewMnemonic(entropy[:])
	require.NoError(t, err)
	assert.Equal(t, want, first.Mnemonic)
	assert.Equal(t, "mnemonic", first.Generation)
}

func TestGenerations_DifferForSameCandidate(t *testing.T) {
	ctx := context.Background()
	c := fixtureCandidates(t)[0]
	wallet := hdwallet.New()

	m, err := (&MnemonicGeneration{Wallet: wallet}).Derive(ctx, c)
	require.NoError(t, err)
	l, err := (&LegacyGeneration{Wallet: wallet}).Derive(ctx, c)
	require.NoError(t, err)
	assert.NotEqual(t, m.PublicKey, l.PublicKey)
	assert.Len(t, l.PublicKey, 64)
}

func TestGeneration_Derive_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := fixtureCandidates(t)[0]
	_, err := (&MnemonicGeneration{Wallet: hdwallet.New()}).Derive(ctx, c)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = (&LegacyGeneration{Wallet: hdwallet.New()}).Derive(ctx, c)
	assert.ErrorIs(t, err, context.Canceled)
}
