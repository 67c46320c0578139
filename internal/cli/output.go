package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/mahdiidarabi/passkey-wallet/pkg/passkeywallet"
)

// OutputFormat selects how results are printed.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// Printer writes command results.
type Printer struct {
	format OutputFormat
	writer io.Writer
}

func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{format: OutputFormat(format), writer: writer}
}

func (p *Printer) printJSON(v any) error {
	enc := json.NewEncoder(p.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *Printer) unknown() error {
	return fmt.Errorf("unknown output format: %s", p.format)
}

// PrintOptions always prints JSON; the options are meant for a browser.
func (p *Printer) PrintOptions(opts *protocol.PublicKeyCredentialRequestOptions) error {
	return p.printJSON(map[string]any{"publicKey": opts})
}

// PrintKey prints recovered key material. The secret key is only printed
// when showSecret is set.
func (p *Printer) PrintKey(key *passkeywallet.KeyMaterial, showSecret bool) error {
	secret := ""
	if showSecret {
		secret = key.SecretKey
	}
	switch p.format {
	case OutputFormatJSON:
		out := map[string]any{
			"publicKey":  key.PublicKey,
			"account":    "k:" + key.PublicKey,
			"generation": key.Generation,
			"recoveryId": key.RecoveryID,
		}
		if secret != "" {
			out["secretKey"] = secret
		}
		return p.printJSON(out)
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Public key:  %s\n", key.PublicKey)
		fmt.Fprintf(p.writer, "Account:     k:%s\n", key.PublicKey)
		fmt.Fprintf(p.writer, "Generation:  %s\n", key.Generation)
		fmt.Fprintf(p.writer, "Recovery id: %d\n", key.RecoveryID)
		if secret != "" {
			fmt.Fprintf(p.writer, "Secret key:  %s\n", secret)
		}
		return nil
	default:
		return p.unknown()
	}
}

// PrintSignResult prints the receipts of a signed submission.
func (p *Printer) PrintSignResult(res *passkeywallet.SignResult) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]any{
			"publicKey":    res.Key.PublicKey,
			"autoReceipts": res.AutoReceipts,
			"receipts":     res.Receipts,
		})
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Signed with %s\n", res.Key.PublicKey)
		for _, r := range res.AutoReceipts {
			fmt.Fprintf(p.writer, "  auto  %s  %s/%s\n", r.RequestKey, r.NetworkID, r.ChainID)
		}
		for _, r := range res.Receipts {
			fmt.Fprintf(p.writer, "  sent  %s  %s/%s\n", r.RequestKey, r.NetworkID, r.ChainID)
		}
		return nil
	default:
		return p.unknown()
	}
}

// PrintTransaction prints a transaction as JSON in every format.
func (p *Printer) PrintTransaction(tx *passkeywallet.Transaction) error {
	return p.printJSON(tx)
}

// PrintBindings prints wallet bindings.
func (p *Printer) PrintBindings(bindings []passkeywallet.WalletBinding) error {
	switch p.format {
	case OutputFormatJSON:
		if bindings == nil {
			bindings = []passkeywallet.WalletBinding{}
		}
		return p.printJSON(bindings)
	case OutputFormatText:
		if len(bindings) == 0 {
			fmt.Fprintln(p.writer, "No wallet bindings")
			return nil
		}
		for _, b := range bindings {
			fmt.Fprintf(p.writer, "%-12s %s\n", b.NetworkID, b.CredentialID)
		}
		return nil
	default:
		return p.unknown()
	}
}
