// Package pact talks to the Pact API of a Chainweb node and builds Pact
// commands.
package pact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mahdiidarabi/passkey-wallet/internal/transport"
	"github.com/mahdiidarabi/passkey-wallet/pkg/passkeywallet"
)

// Default node base URLs per network.
const (
	DevelopmentURL = "http://localhost:8080"
	TestnetURL     = "https://api.testnet.chainweb.com"
	MainnetURL     = "https://api.chainweb.com"
)

// ErrTransactionFailed is returned by Confirm when a mined transaction did
// not succeed.
var ErrTransactionFailed = errors.New("transaction failed")

// Config configures a Client.
type Config struct {
	// Endpoints overrides the node base URL of individual networks.
	Endpoints map[string]string
	// RetryMax applies to local and poll requests. Send is never retried.
	RetryMax     int
	Timeout      time.Duration
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Client implements passkeywallet.ChainClient and passkeywallet.Confirmer.
type Client struct {
	endpoints    map[string]string
	query        *transport.Client
	send         *transport.Client
	pollInterval time.Duration
	logger       *slog.Logger
}

// New creates a Chainweb client.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Client{
		endpoints:    cfg.Endpoints,
		query:        transport.New(transport.Options{RetryMax: cfg.RetryMax, Timeout: cfg.Timeout, Logger: cfg.Logger}),
		send:         transport.New(transport.Options{RetryMax: 0, Timeout: cfg.Timeout, Logger: cfg.Logger}),
		pollInterval: interval,
		logger:       logger,
	}
}

// BaseURL returns the node base URL for networkID.
func (c *Client) BaseURL(networkID string) string {
	if u, ok := c.endpoints[networkID]; ok && u != "" {
		return strings.TrimSuffix(u, "/")
	}
	switch networkID {
	case "development":
		return DevelopmentURL
	case "testnet04":
		return TestnetURL
	default:
		return MainnetURL
	}
}

// APIURL returns the Pact API URL of one chain.
func (c *Client) APIURL(networkID, chainID, path string) string {
	return fmt.Sprintf("%s/chainweb/0.0/%s/chain/%s/pact/api/v1/%s", c.BaseURL(networkID), networkID, chainID, path)
}

func target(tx *passkeywallet.Transaction) (string, string, error) {
	cmd, err := passkeywallet.ParseCommand(tx)
	if err != nil {
		return "", "", err
	}
	if cmd.NetworkID == "" || cmd.Meta.ChainID == "" {
		return "", "", fmt.Errorf("%w: command has no networkId or chainId", passkeywallet.ErrInvalidTransaction)
	}
	return cmd.NetworkID, cmd.Meta.ChainID, nil
}

// Local runs tx on its chain with preflight and signature verification.
func (c *Client) Local(ctx context.Context, tx *passkeywallet.Transaction) (*passkeywallet.LocalResult, error) {
	network, chain, err := target(tx)
	if err != nil {
		return nil, err
	}
	url := c.APIURL(network, chain, "local") + "?preflight=true&signatureVerification=true"

	var raw json.RawMessage
	if err := c.query.PostJSON(ctx, url, tx, &raw); err != nil {
		return nil, fmt.Errorf("failed to run local: %w", err)
	}
	return decodeLocal(raw)
}

// decodeLocal accepts both the preflight envelope and a bare command result.
func decodeLocal(raw []byte) (*passkeywallet.LocalResult, error) {
	var envelope struct {
		PreflightResult *passkeywallet.LocalResult `json:"preflightResult"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse local response: %w", err)
	}
	if envelope.PreflightResult != nil {
		return envelope.PreflightResult, nil
	}
	var res passkeywallet.LocalResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("failed to parse local response: %w", err)
	}
	return &res, nil
}

// Submit sends tx to its chain.
func (c *Client) Submit(ctx context.Context, tx *passkeywallet.Transaction) (*passkeywallet.SubmitReceipt, error) {
	network, chain, err := target(tx)
	if err != nil {
		return nil, err
	}
	var resp struct {
		RequestKeys []string `json:"requestKeys"`
	}
	body := map[string]any{"cmds": []*passkeywallet.Transaction{tx}}
	if err := c.send.PostJSON(ctx, c.APIURL(network, chain, "send"), body, &resp); err != nil {
		return nil, fmt.Errorf("failed to send: %w", err)
	}
	if len(resp.RequestKeys) != 1 {
		return nil, fmt.Errorf("send returned %d request keys", len(resp.RequestKeys))
	}
	c.logger.Debug("transaction sent", "network", network, "chain", chain, "request_key", resp.RequestKeys[0])
	return &passkeywallet.SubmitReceipt{RequestKey: resp.RequestKeys[0], NetworkID: network, ChainID: chain}, nil
}

// Poll returns the results of the receipts that have been mined, keyed by
// request key. Receipts still pending are absent.
func (c *Client) Poll(ctx context.Context, receipts []*passkeywallet.SubmitReceipt) (map[string]*passkeywallet.LocalResult, error) {
	type chainKey struct{ network, chain string }
	groups := map[chainKey][]string{}
	for _, r := range receipts {
		k := chainKey{r.NetworkID, r.ChainID}
		groups[k] = append(groups[k], r.RequestKey)
	}

	out := make(map[string]*passkeywallet.LocalResult, len(receipts))
	for k, keys := range groups {
		var resp map[string]*passkeywallet.LocalResult
		body := map[string]any{"requestKeys": keys}
		if err := c.query.PostJSON(ctx, c.APIURL(k.network, k.chain, "poll"), body, &resp); err != nil {
			return nil, fmt.Errorf("failed to poll: %w", err)
		}
		for key, res := range resp {
			out[key] = res
		}
	}
	return out, nil
}

// Confirm polls until every receipt is mined. It fails with
// ErrTransactionFailed when any of them did not succeed.
func (c *Client) Confirm(ctx context.Context, receipts []*passkeywallet.SubmitReceipt) error {
	pending := receipts
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		results, err := c.Poll(ctx, pending)
		if err != nil {
			return err
		}
		var next []*passkeywallet.SubmitReceipt
		for _, r := range pending {
			res, ok := results[r.RequestKey]
			if !ok {
				next = append(next, r)
				continue
			}
			if !res.Succeeded() {
				return fmt.Errorf("%w: %s", ErrTransactionFailed, r.RequestKey)
			}
		}
		if len(next) == 0 {
			return nil
		}
		pending = next

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
