// Package passkeywallet recovers a Kadena account key from a single passkey
// (WebAuthn) assertion and signs transactions with it.
//
// No private key is stored. Each time, the public key of the passkey is
// recovered from the assertion's ECDSA signature. It is turned into an
// ed25519 account key by a deterministic derivation, and that key is checked
// against the credentials registered on chain.
//
// # Pipeline
//
//  1. The signed data hash SHA256(authenticatorData || SHA256(clientDataJSON))
//     is rebuilt and the DER signature is split into r and s.
//  2. Up to four candidate public keys are recovered, one per recovery
//     identifier.
//  3. The registry is queried for the keys registered under the exact
//     (credential id, domain) pair.
//  4. The mnemonic generation (identifiers 0 and 1) is tried, then the legacy
//     generation (identifiers 0 to 3). The first match is bound to the
//     network and returned.
//
// # Quick Start
//
//	import "github.com/mahdiidarabi/passkey-wallet/pkg/passkeywallet"
//
//	client := passkeywallet.NewClient().
//	    WithRelyingPartyID("wallet.example.com").
//	    WithPageFetcher(graphqlClient).
//	    WithChainClient(chainwebClient)
//
//	// options for navigator.credentials.get()
//	opts, err := client.RequestOptions(ctx, "testnet04")
//
//	assertion, err := client.ParseAssertion(browserResponse)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	key, err := client.ConnectWallet(ctx, assertion, "testnet04", "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Recovered key: %s\n", key.PublicKey)
//
// # Signing
//
// SignSubmit repeats the recovery for a fresh assertion and signs a batch.
// Every transaction is dry-run first; the batch is only submitted when all
// dry-runs succeed:
//
//	res, err := client.SignSubmit(ctx, passkeywallet.SignRequest{
//	    Assertion:    assertion,
//	    NetworkID:    "testnet04",
//	    Transactions: txs,
//	})
//
// # Custom Generations
//
// Matcher accepts any Generation. Implement the interface to try additional
// derivation schemes:
//
//	m := passkeywallet.NewMatcher(passkeywallet.NewP256Recoverer(),
//	    &passkeywallet.MnemonicGeneration{Wallet: w},
//	    &MyGeneration{})
package passkeywallet
