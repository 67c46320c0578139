package pact

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mahdiidarabi/passkey-wallet/pkg/passkeywallet"
)

// Capability is a signer capability such as (coin.GAS).
type Capability struct {
	Name string `json:"name"`
	Args []any  `json:"args"`
}

// Signer lists a key that must sign the command.
type Signer struct {
	PubKey string       `json:"pubKey"`
	Scheme string       `json:"scheme,omitempty"`
	Clist  []Capability `json:"clist,omitempty"`
}

// ExecCommand describes an exec payload.
type ExecCommand struct {
	Code      string
	Data      map[string]any
	NetworkID string
	ChainID   string
	Sender    string
	GasLimit  int
	GasPrice  float64
	TTL       int
	Nonce     string
	Signers   []Signer
}

type meta struct {
	ChainID      string  `json:"chainId"`
	CreationTime int64   `json:"creationTime"`
	GasLimit     int     `json:"gasLimit"`
	GasPrice     float64 `json:"gasPrice"`
	Sender       string  `json:"sender"`
	TTL          int     `json:"ttl"`
}

type payload struct {
	Exec struct {
		Code string         `json:"code"`
		Data map[string]any `json:"data"`
	} `json:"exec"`
}

type command struct {
	Payload   payload  `json:"payload"`
	Meta      meta     `json:"meta"`
	Signers   []Signer `json:"signers"`
	NetworkID string   `json:"networkId"`
	Nonce     string   `json:"nonce"`
}

// Build serializes the command and returns it as an unsigned transaction
// with one empty signature slot per signer.
func (e ExecCommand) Build(now time.Time) (*passkeywallet.Transaction, error) {
	if e.Code == "" {
		return nil, fmt.Errorf("%w: empty code", passkeywallet.ErrInvalidTransaction)
	}
	if len(e.Signers) == 0 {
		return nil, fmt.Errorf("%w: no signers", passkeywallet.ErrInvalidTransaction)
	}
	c := command{
		Meta: meta{
			ChainID:      e.ChainID,
			CreationTime: now.Unix(),
			GasLimit:     orDefault(e.GasLimit, 2500),
			GasPrice:     e.GasPrice,
			Sender:       e.Sender,
			TTL:          orDefault(e.TTL, 28800),
		},
		Signers:   e.Signers,
		NetworkID: e.NetworkID,
		Nonce:     e.Nonce,
	}
	if c.Meta.GasPrice == 0 {
		c.Meta.GasPrice = 1e-8
	}
	if c.Nonce == "" {
		c.Nonce = "kjs:nonce:" + strconv.FormatInt(now.UnixMilli(), 10)
	}
	c.Payload.Exec.Code = e.Code
	c.Payload.Exec.Data = e.Data
	if c.Payload.Exec.Data == nil {
		c.Payload.Exec.Data = map[string]any{}
	}

	cmd, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command: %w", err)
	}
	return &passkeywallet.Transaction{
		Cmd:  string(cmd),
		Hash: passkeywallet.CommandHash(string(cmd)),
		Sigs: make([]*passkeywallet.SignatureEntry, len(e.Signers)),
	}, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
