// Package cli implements the passkey-wallet command line.
package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configFile string
	output     string
}

// NewRootCommand builds the command tree writing to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "passkey-wallet",
		Short: "Recover a Kadena key pair from a passkey assertion and sign with it",
		Long: `passkey-wallet recovers the ed25519 key pair of a passkey-backed Kadena
account from a WebAuthn assertion. It recovers the ECDSA public key candidates
behind the assertion, matches the keys derived from them against the
credential registry on chain and signs Pact transactions with the match.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(os.Stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&g.configFile, "config", "", "config file (yaml, json or toml)")
	pf.StringVarP(&g.output, "output", "o", "text", "output format (text, json)")
	pf.String("network-id", "", "network id, e.g. mainnet01, testnet04, development")
	pf.String("rp-id", "", "relying party id placed in request options")
	pf.String("domain", "", "domain the credential was registered under (default: assertion origin)")
	pf.String("curve", "", "passkey curve (p256, secp256k1)")
	pf.String("store", "", "binding store driver (sqlite, leveldb, memory)")
	pf.String("store-path", "", "binding store path")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (text, json)")
	pf.Int("workers", 0, "concurrent derivations per generation (0 = one per candidate)")
	pf.Bool("metrics", false, "print Prometheus metrics to stderr on exit")
	pf.String("graphql-url", "", "GraphQL endpoint for the selected network")
	pf.String("chainweb-url", "", "Chainweb node base URL for the selected network")

	root.AddCommand(
		newOptionsCommand(g),
		newConnectCommand(g),
		newSignCommand(g),
		newTxCommand(g),
		newBindingCommand(g),
	)
	return root
}

// Execute runs the command line.
func Execute() error {
	return NewRootCommand(os.Stdout).Execute()
}
