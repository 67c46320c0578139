package passkeywallet

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/mahdiidarabi/passkey-wallet/internal/hdwallet"
)

// DefaultCeremonyTimeout is the timeout requested for the WebAuthn get() ceremony.
const DefaultCeremonyTimeout = 60 * time.Second

// Client provides a high-level API for passkey wallet operations.
type Client struct {
	parser    AssertionParser
	recoverer Recoverer
	wallet    HDWallet
	fetcher   PageFetcher
	chain     ChainClient
	store     BindingStore
	observer  Observer
	logger    *slog.Logger
	rand      io.Reader

	relyingPartyID string
	timeout        time.Duration
	pageSize       int
	eventName      string
	matcherConfig  MatcherConfig
}

// NewClient creates a new client with default settings.
//
// The defaults recover over P-256, derive keys with the built-in HD wallet
// and keep bindings in memory. A PageFetcher must be set before
// ConnectWallet and a ChainClient before SignSubmit.
func NewClient() *Client {
	return &Client{
		parser:        &JSONParser{},
		recoverer:     NewP256Recoverer(),
		wallet:        hdwallet.New(),
		store:         NewMemoryBindingStore(),
		observer:      NopObserver{},
		logger:        discardLogger(),
		timeout:       DefaultCeremonyTimeout,
		pageSize:      DefaultPageSize,
		eventName:     DefaultRegisterEvent,
		matcherConfig: DefaultMatcherConfig(),
	}
}

// WithParser sets a custom assertion parser.
func (c *Client) WithParser(parser AssertionParser) *Client {
	c.parser = parser
	return c
}

// WithRecoverer sets the curve recoverer.
func (c *Client) WithRecoverer(r Recoverer) *Client {
	c.recoverer = r
	return c
}

// WithHDWallet sets the key derivation library.
func (c *Client) WithHDWallet(w HDWallet) *Client {
	c.wallet = w
	return c
}

// WithPageFetcher sets the registry page source.
func (c *Client) WithPageFetcher(f PageFetcher) *Client {
	c.fetcher = f
	return c
}

// WithChainClient sets the dry-run and submission client.
func (c *Client) WithChainClient(chain ChainClient) *Client {
	c.chain = chain
	return c
}

// WithBindingStore sets the wallet binding store.
func (c *Client) WithBindingStore(s BindingStore) *Client {
	c.store = s
	return c
}

// WithObserver sets the pipeline observer.
func (c *Client) WithObserver(o Observer) *Client {
	if o != nil {
		c.observer = o
	}
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

// WithRand sets the source of per-candidate passwords.
func (c *Client) WithRand(r io.Reader) *Client {
	c.rand = r
	return c
}

// WithRelyingPartyID sets the rpId placed in request options.
func (c *Client) WithRelyingPartyID(id string) *Client {
	c.relyingPartyID = id
	return c
}

// WithCeremonyTimeout sets the timeout placed in request options.
func (c *Client) WithCeremonyTimeout(d time.Duration) *Client {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// WithRegistry sets the registry page size and event name.
func (c *Client) WithRegistry(pageSize int, eventName string) *Client {
	if pageSize > 0 {
		c.pageSize = pageSize
	}
	if eventName != "" {
		c.eventName = eventName
	}
	return c
}

// WithMatcherConfig sets the matcher configuration.
func (c *Client) WithMatcherConfig(config MatcherConfig) *Client {
	c.matcherConfig = config
	return c
}

// RequestOptions builds the options for a WebAuthn get() ceremony.
//
// When networkID has a wallet binding, allowCredentials is limited to the
// bound credential.
func (c *Client) RequestOptions(ctx context.Context, networkID string) (*protocol.PublicKeyCredentialRequestOptions, error) {
	challenge, err := protocol.CreateChallenge()
	if err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}
	opts := &protocol.PublicKeyCredentialRequestOptions{
		Challenge:      challenge,
		Timeout:        int(c.timeout.Milliseconds()),
		RelyingPartyID: c.relyingPartyID,
	}

	binding, err := c.store.GetWallet(ctx, networkID)
	switch {
	case errors.Is(err, ErrNoWallet):
		return opts, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read wallet binding: %w", err)
	}
	id, err := base64.RawURLEncoding.DecodeString(binding.CredentialID)
	if err != nil {
		return nil, fmt.Errorf("failed to decode credential id: %w", err)
	}
	opts.AllowedCredentials = []protocol.CredentialDescriptor{{
		Type:         protocol.PublicKeyCredentialType,
		CredentialID: id,
	}}
	return opts, nil
}

// ParseAssertion decodes an assertion with the configured parser.
func (c *Client) ParseAssertion(data []byte) (*Assertion, error) {
	return c.parser.ParseAssertion(data)
}

// ConnectWallet recovers the key pair behind an assertion.
//
// Args:
//   - ctx: Context for cancellation.
//   - a: Assertion from a WebAuthn get() ceremony.
//   - networkID: Network whose registry is queried and whose binding is written.
//   - domain: Domain the credential was registered under. When empty it is
//     taken from the assertion's origin.
//
// Returns:
//   - KeyMaterial of the first matching generation, error otherwise.
func (c *Client) ConnectWallet(ctx context.Context, a *Assertion, networkID, domain string) (*KeyMaterial, error) {
	start := time.Now()
	t := newTracker(c.observer)
	t.to(StateAwaitingAssertion)
	if a == nil || a.CredentialID == "" {
		return nil, t.fail(NewOpError("connect wallet", fmt.Errorf("%w: missing credential id", ErrInvalidAssertion)))
	}
	if c.fetcher == nil {
		return nil, t.fail(NewOpError("connect wallet", fmt.Errorf("%w: no page fetcher", ErrNotConfigured)))
	}
	if domain == "" {
		d, err := AssertionDomain(a)
		if err != nil {
			return nil, t.fail(err)
		}
		domain = d
	}

	t.to(StateComputingHash)
	hash := MessageHash(a)
	sig, err := DecomposeSignature(a.Signature)
	if err != nil {
		return nil, t.fail(err)
	}

	t.to(StateRecoveringCandidates)
	matcher := c.matcher()
	candidates := matcher.Candidates(hash, sig)

	t.to(StateQueryingRegistry)
	registry := NewRegistryClient(c.fetcher).
		WithPageSize(c.pageSize).
		WithEventName(c.eventName).
		WithObserver(c.observer).
		WithLogger(c.logger)
	keys, err := registry.PublicKeys(ctx, networkID, a.CredentialID, domain)
	if err != nil {
		return nil, t.fail(err)
	}

	key, err := matcher.Match(ctx, MatchRequest{
		NetworkID:    networkID,
		CredentialID: a.CredentialID,
		Candidates:   candidates,
		Registered:   keys,
		OnGeneration: func(g Generation) { t.to(g.State()) },
	})
	if err != nil {
		return nil, t.fail(err)
	}
	t.to(StateBound)
	c.logger.Debug("wallet connected", "network", networkID, "elapsed", time.Since(start))
	return key, nil
}

// SetWallet records a wallet binding in the store.
func (c *Client) SetWallet(ctx context.Context, binding WalletBinding) error {
	if err := c.store.SetWallet(ctx, binding); err != nil {
		return fmt.Errorf("failed to set wallet: %w", err)
	}
	c.logger.Debug("wallet binding stored", "network", binding.NetworkID)
	return nil
}

// Wallet returns the wallet binding of networkID, or ErrNoWallet.
func (c *Client) Wallet(ctx context.Context, networkID string) (*WalletBinding, error) {
	return c.store.GetWallet(ctx, networkID)
}

// SignRequest is the input of Client.SignSubmit.
type SignRequest struct {
	Assertion *Assertion
	NetworkID string
	Domain    string
	// AutoTransactions are signed and submitted as their own batch before
	// Transactions. When the chain client is a Confirmer they must be mined
	// before Transactions are signed. They may be empty.
	AutoTransactions []*Transaction
	Transactions     []*Transaction
}

// SignResult holds the receipts of both batches.
type SignResult struct {
	Key          *KeyMaterial
	AutoReceipts []*SubmitReceipt
	Receipts     []*SubmitReceipt
}

// SignSubmit recovers the key behind req.Assertion and signs, verifies and
// submits the requested transactions with it.
func (c *Client) SignSubmit(ctx context.Context, req SignRequest) (*SignResult, error) {
	if len(req.Transactions) == 0 {
		return nil, NewOpError("sign submit", ErrEmptyBatch)
	}
	if c.chain == nil {
		return nil, NewOpError("sign submit", fmt.Errorf("%w: no chain client", ErrNotConfigured))
	}
	key, err := c.ConnectWallet(ctx, req.Assertion, req.NetworkID, req.Domain)
	if err != nil {
		return nil, err
	}

	signer := NewSigner(c.chain).WithObserver(c.observer).WithLogger(c.logger)
	result := &SignResult{Key: key}
	if len(req.AutoTransactions) > 0 {
		if result.AutoReceipts, err = signer.SignSubmit(ctx, key, req.AutoTransactions); err != nil {
			return nil, fmt.Errorf("failed to submit auto transactions: %w", err)
		}
		if conf, ok := c.chain.(Confirmer); ok {
			if err := conf.Confirm(ctx, result.AutoReceipts); err != nil {
				return nil, TransportError("confirm auto transactions", err)
			}
		}
	}
	if result.Receipts, err = signer.SignSubmit(ctx, key, req.Transactions); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) matcher() *Matcher {
	return NewMatcher(c.recoverer,
		&MnemonicGeneration{Wallet: c.wallet, Rand: c.rand, Binder: c.store.SetWallet},
		&LegacyGeneration{Wallet: c.wallet, Rand: c.rand, Binder: c.SetWallet},
	).WithConfig(c.matcherConfig).WithObserver(c.observer).WithLogger(c.logger)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
