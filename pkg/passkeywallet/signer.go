package passkeywallet

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"
)

// Transaction is a Pact command with its hash and one signature slot per
// signer listed in the command. An unsigned transaction has nil slots.
type Transaction struct {
	Cmd  string            `json:"cmd"`
	Hash string            `json:"hash"`
	Sigs []*SignatureEntry `json:"sigs"`
}

// SignatureEntry is one filled signature slot.
type SignatureEntry struct {
	Sig    string `json:"sig,omitempty"`
	PubKey string `json:"pubKey,omitempty"`
}

// Command holds the fields of a Pact command payload the signer needs.
type Command struct {
	NetworkID string `json:"networkId"`
	Meta      struct {
		ChainID string `json:"chainId"`
		Sender  string `json:"sender,omitempty"`
	} `json:"meta"`
	Signers []struct {
		PubKey string `json:"pubKey"`
	} `json:"signers"`
}

// ParseCommand decodes the command payload of tx.
func ParseCommand(tx *Transaction) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal([]byte(tx.Cmd), &cmd); err != nil {
		return nil, NewOpError("parse command", fmt.Errorf("%w: %w", ErrInvalidTransaction, err))
	}
	return &cmd, nil
}

// CommandHash returns the base64url BLAKE2b-256 digest of a command payload.
func CommandHash(cmd string) string {
	sum := blake2b.Sum256([]byte(cmd))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// LocalResult is the outcome of a non-committing dry-run.
type LocalResult struct {
	RequestKey string          `json:"reqKey"`
	Result     ExecutionResult `json:"result"`
}

// ExecutionResult is the Pact result of a command.
type ExecutionResult struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// Succeeded reports whether the command executed successfully.
func (r *LocalResult) Succeeded() bool {
	return r != nil && r.Result.Status == "success"
}

// SubmitReceipt identifies a submitted transaction.
type SubmitReceipt struct {
	RequestKey string `json:"requestKey"`
	NetworkID  string `json:"networkId"`
	ChainID    string `json:"chainId"`
}

// ChainClient runs and submits signed transactions.
type ChainClient interface {
	// Local executes tx without committing it.
	Local(ctx context.Context, tx *Transaction) (*LocalResult, error)
	// Submit sends tx to the network.
	Submit(ctx context.Context, tx *Transaction) (*SubmitReceipt, error)
}

// Confirmer waits until submitted transactions are mined. A ChainClient
// that implements it lets Client.SignSubmit hold the main batch until the
// auto transactions have landed.
type Confirmer interface {
	Confirm(ctx context.Context, receipts []*SubmitReceipt) error
}

// keyPair converts key material to an ed25519 private key and checks that
// it produces the recorded public key.
func keyPair(key *KeyMaterial) (ed25519.PrivateKey, error) {
	secret, err := hex.DecodeString(key.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode secret key: %w", err)
	}
	var priv ed25519.PrivateKey
	switch len(secret) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(secret)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(secret)
	default:
		return nil, fmt.Errorf("secret key is %d bytes", len(secret))
	}

	pub, err := hex.DecodeString(key.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: bad public key %q", ErrKeyMismatch, key.PublicKey)
	}
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return nil, fmt.Errorf("%w: public key is not a curve point", ErrKeyMismatch)
	}
	if !priv.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(pub)) {
		return nil, ErrKeyMismatch
	}
	return priv, nil
}

// SignTransaction returns a copy of tx with the slot of key's public key
// filled in. The command must list the key among its signers.
func SignTransaction(key *KeyMaterial, tx *Transaction) (*Transaction, error) {
	priv, err := keyPair(key)
	if err != nil {
		return nil, NewOpError("sign transaction", err)
	}
	return signWith(priv, key.PublicKey, tx)
}

func signWith(priv ed25519.PrivateKey, publicKey string, tx *Transaction) (*Transaction, error) {
	cmd, err := ParseCommand(tx)
	if err != nil {
		return nil, err
	}
	hash := CommandHash(tx.Cmd)
	if tx.Hash != "" && tx.Hash != hash {
		return nil, NewOpError("sign transaction",
			fmt.Errorf("%w: hash %s does not match command", ErrInvalidTransaction, tx.Hash))
	}

	index := -1
	for i, s := range cmd.Signers {
		if strings.EqualFold(s.PubKey, publicKey) {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, NewOpError("sign transaction", ErrSignerNotFound)
	}

	digest, _ := base64.RawURLEncoding.DecodeString(hash)
	signed := &Transaction{
		Cmd:  tx.Cmd,
		Hash: hash,
		Sigs: make([]*SignatureEntry, len(cmd.Signers)),
	}
	copy(signed.Sigs, tx.Sigs)
	signed.Sigs[index] = &SignatureEntry{
		Sig:    hex.EncodeToString(ed25519.Sign(priv, digest)),
		PubKey: publicKey,
	}
	return signed, nil
}

// Signer signs a batch of transactions, dry-runs every one of them and only
// submits when all dry-runs succeeded.
type Signer struct {
	chain    ChainClient
	observer Observer
	logger   *slog.Logger
}

// NewSigner creates a signer that executes through chain.
func NewSigner(chain ChainClient) *Signer {
	return &Signer{chain: chain, observer: NopObserver{}, logger: discardLogger()}
}

// WithObserver sets the event observer.
func (s *Signer) WithObserver(o Observer) *Signer {
	if o != nil {
		s.observer = o
	}
	return s
}

// WithLogger sets the logger.
func (s *Signer) WithLogger(l *slog.Logger) *Signer {
	if l != nil {
		s.logger = l
	}
	return s
}

// SignSubmit signs txs with key and submits them as one batch.
//
// Dry-runs run concurrently. If any of them fails or reports a status other
// than "success", nothing is submitted and ErrBatchSigningFailed is returned.
// Otherwise all transactions are submitted concurrently and the receipts are
// returned in input order.
func (s *Signer) SignSubmit(ctx context.Context, key *KeyMaterial, txs []*Transaction) ([]*SubmitReceipt, error) {
	receipts, err := s.signSubmit(ctx, key, txs)
	s.observer.BatchFinished(len(txs), err)
	return receipts, err
}

func (s *Signer) signSubmit(ctx context.Context, key *KeyMaterial, txs []*Transaction) ([]*SubmitReceipt, error) {
	if len(txs) == 0 {
		return nil, NewOpError("sign batch", ErrEmptyBatch)
	}
	if s.chain == nil {
		return nil, NewOpError("sign batch", fmt.Errorf("%w: no chain client", ErrNotConfigured))
	}
	priv, err := keyPair(key)
	if err != nil {
		return nil, NewOpError("sign batch", err)
	}

	for i, tx := range txs {
		if tx == nil {
			return nil, NewOpError("sign batch", fmt.Errorf("%w: transaction %d is null", ErrInvalidTransaction, i))
		}
	}

	signed := make([]*Transaction, len(txs))
	for i, tx := range txs {
		if signed[i], err = signWith(priv, key.PublicKey, tx); err != nil {
			return nil, err
		}
	}
	s.logger.Info("signing transactions", "count", len(signed), "public_key", key.PublicKey)

	results := make([]*LocalResult, len(signed))
	g, gctx := errgroup.WithContext(ctx)
	for i, tx := range signed {
		g.Go(func() error {
			res, err := s.chain.Local(gctx, tx)
			if err != nil {
				return TransportError("local", err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, res := range results {
		if !res.Succeeded() {
			s.logger.Warn("dry-run failed", "index", i, "hash", signed[i].Hash)
			return nil, NewOpError("sign batch",
				fmt.Errorf("%w: transaction %d did not pass local execution", ErrBatchSigningFailed, i))
		}
	}

	receipts := make([]*SubmitReceipt, len(signed))
	g, gctx = errgroup.WithContext(ctx)
	for i, tx := range signed {
		g.Go(func() error {
			r, err := s.chain.Submit(gctx, tx)
			if err != nil {
				return TransportError("submit", err)
			}
			receipts[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.logger.Info("submitted transactions", "count", len(receipts))
	return receipts, nil
}
