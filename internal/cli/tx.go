package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mahdiidarabi/passkey-wallet/internal/pact"
)

func newTxCommand(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Build and inspect Pact transactions",
	}
	cmd.AddCommand(newTxBuildCommand(g), newTxLocalCommand(g))
	return cmd
}

func newTxBuildCommand(g *globalFlags) *cobra.Command {
	var (
		exec    pact.ExecCommand
		data    string
		signers []string
		gasCap  bool
		nowFlag int64
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build an unsigned exec transaction",
		Args:  cobra.NoArgs,
		RunE: withApp(g, func(cmd *cobra.Command, a *app, _ []string) error {
			exec.NetworkID = a.cfg.NetworkID
			if data != "" {
				if err := json.Unmarshal([]byte(data), &exec.Data); err != nil {
					return fmt.Errorf("invalid --data: %w", err)
				}
			}
			for _, pk := range signers {
				s := pact.Signer{PubKey: pk, Scheme: "ED25519"}
				if gasCap {
					s.Clist = []pact.Capability{{Name: "coin.GAS", Args: []any{}}}
				}
				exec.Signers = append(exec.Signers, s)
			}
			if exec.Sender == "" && len(signers) > 0 {
				exec.Sender = "k:" + signers[0]
			}
			now := time.Now()
			if nowFlag > 0 {
				now = time.Unix(nowFlag, 0)
			}
			tx, err := exec.Build(now)
			if err != nil {
				return err
			}
			return a.printer.PrintTransaction(tx)
		}),
	}
	f := cmd.Flags()
	f.StringVar(&exec.Code, "code", "", "Pact code to execute")
	f.StringVar(&data, "data", "", "JSON object passed as env data")
	f.StringVar(&exec.ChainID, "chain-id", "0", "chain id")
	f.StringVar(&exec.Sender, "sender", "", "gas payer account (default: k:<first signer>)")
	f.IntVar(&exec.GasLimit, "gas-limit", 0, "gas limit (default 2500)")
	f.Float64Var(&exec.GasPrice, "gas-price", 0, "gas price (default 1e-8)")
	f.IntVar(&exec.TTL, "ttl", 0, "time to live in seconds (default 28800)")
	f.StringVar(&exec.Nonce, "nonce", "", "nonce (default derived from the creation time)")
	f.StringSliceVar(&signers, "signer", nil, "signer public key, repeatable")
	f.BoolVar(&gasCap, "gas-cap", true, "grant coin.GAS to every signer")
	f.Int64Var(&nowFlag, "creation-time", 0, "creation time as unix seconds (default now)")
	return cmd
}

func newTxLocalCommand(g *globalFlags) *cobra.Command {
	var txPath string
	cmd := &cobra.Command{
		Use:   "local",
		Short: "Run transactions locally without submitting them",
		Args:  cobra.NoArgs,
		RunE: withApp(g, func(cmd *cobra.Command, a *app, _ []string) error {
			txs, err := readTransactions(txPath)
			if err != nil {
				return err
			}
			for i, tx := range txs {
				res, err := a.chain.Local(cmd.Context(), tx)
				if err != nil {
					return fmt.Errorf("transaction %d: %w", i, err)
				}
				if err := a.printer.printJSON(res); err != nil {
					return err
				}
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&txPath, "tx", "", "transactions JSON file (one transaction or an array)")
	_ = cmd.MarkFlagRequired("tx")
	return cmd
}
