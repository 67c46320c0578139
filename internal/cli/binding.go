package cli

import (
	"github.com/spf13/cobra"

	"github.com/mahdiidarabi/passkey-wallet/pkg/passkeywallet"
)

func newBindingCommand(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "binding",
		Short: "Manage wallet bindings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the wallet binding of the selected network",
		Args:  cobra.NoArgs,
		RunE: withApp(g, func(cmd *cobra.Command, a *app, _ []string) error {
			b, err := a.client.Wallet(cmd.Context(), a.cfg.NetworkID)
			if err != nil {
				return err
			}
			return a.printer.PrintBindings([]passkeywallet.WalletBinding{*b})
		}),
	}

	set := &cobra.Command{
		Use:   "set CREDENTIAL_ID",
		Short: "Bind a credential to the selected network",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(g, func(cmd *cobra.Command, a *app, args []string) error {
			b := passkeywallet.WalletBinding{NetworkID: a.cfg.NetworkID, CredentialID: args[0]}
			if err := a.client.SetWallet(cmd.Context(), b); err != nil {
				return err
			}
			return a.printer.PrintBindings([]passkeywallet.WalletBinding{b})
		}),
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the wallet bindings of every network",
		Args:  cobra.NoArgs,
		RunE: withApp(g, func(cmd *cobra.Command, a *app, _ []string) error {
			bindings, err := a.store.List(cmd.Context())
			if err != nil {
				return err
			}
			return a.printer.PrintBindings(bindings)
		}),
	}

	cmd.AddCommand(show, set, list)
	return cmd
}
