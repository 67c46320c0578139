package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mahdiidarabi/passkey-wallet/pkg/passkeywallet"
)

func newOptionsCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "Print WebAuthn request options for the selected network",
		Long: `Prints the options for navigator.credentials.get(). When the network has a
wallet binding, allowCredentials is limited to the bound credential.`,
		Args: cobra.NoArgs,
		RunE: withApp(g, func(cmd *cobra.Command, a *app, _ []string) error {
			opts, err := a.client.RequestOptions(cmd.Context(), a.cfg.NetworkID)
			if err != nil {
				return err
			}
			return a.printer.PrintOptions(opts)
		}),
	}
}

func newConnectCommand(g *globalFlags) *cobra.Command {
	var (
		assertionPath string
		showSecret    bool
	)
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Recover the key pair behind a passkey assertion",
		Args:  cobra.NoArgs,
		RunE: withApp(g, func(cmd *cobra.Command, a *app, _ []string) error {
			assertion, err := readAssertion(cmd.InOrStdin(), a, assertionPath)
			if err != nil {
				return err
			}
			key, err := a.client.ConnectWallet(cmd.Context(), assertion, a.cfg.NetworkID, a.cfg.Domain)
			if err != nil {
				return err
			}
			return a.printer.PrintKey(key, showSecret)
		}),
	}
	cmd.Flags().StringVarP(&assertionPath, "assertion", "a", "-", "assertion JSON file, - for stdin")
	cmd.Flags().BoolVar(&showSecret, "show-secret", false, "print the recovered secret key")
	return cmd
}

func newSignCommand(g *globalFlags) *cobra.Command {
	var (
		assertionPath string
		txPath        string
		autoTxPath    string
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Recover the key pair and sign, dry-run and submit transactions",
		Long: `Recovers the key pair behind the assertion, signs every transaction with it,
runs all of them locally and submits them only if every local run succeeded.
Auto transactions are submitted first as their own batch and must be mined
before the main batch is signed.`,
		Args: cobra.NoArgs,
		RunE: withApp(g, func(cmd *cobra.Command, a *app, _ []string) error {
			if txPath == "" {
				return fmt.Errorf("--tx is required")
			}
			assertion, err := readAssertion(cmd.InOrStdin(), a, assertionPath)
			if err != nil {
				return err
			}
			txs, err := readTransactions(txPath)
			if err != nil {
				return err
			}
			var auto []*passkeywallet.Transaction
			if autoTxPath != "" {
				if auto, err = readTransactions(autoTxPath); err != nil {
					return err
				}
			}
			res, err := a.client.SignSubmit(cmd.Context(), passkeywallet.SignRequest{
				Assertion:        assertion,
				NetworkID:        a.cfg.NetworkID,
				Domain:           a.cfg.Domain,
				AutoTransactions: auto,
				Transactions:     txs,
			})
			if err != nil {
				return err
			}
			return a.printer.PrintSignResult(res)
		}),
	}
	cmd.Flags().StringVarP(&assertionPath, "assertion", "a", "-", "assertion JSON file, - for stdin")
	cmd.Flags().StringVar(&txPath, "tx", "", "transactions JSON file (one transaction or an array)")
	cmd.Flags().StringVar(&autoTxPath, "auto-tx", "", "auto transactions JSON file submitted first")
	return cmd
}

func readAssertion(stdin io.Reader, a *app, path string) (*passkeywallet.Assertion, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read assertion: %w", err)
		}
		return a.client.ParseAssertion(data)
	}
	return passkeywallet.ParseAssertionFile(path)
}

// readTransactions accepts a single transaction object or an array.
func readTransactions(path string) ([]*passkeywallet.Transaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var txs []*passkeywallet.Transaction
		if err := json.Unmarshal(data, &txs); err != nil {
			return nil, fmt.Errorf("failed to parse transactions: %w", err)
		}
		return txs, nil
	}
	var tx passkeywallet.Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}
	return []*passkeywallet.Transaction{&tx}, nil
}
