package hdwallet

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/cosmos/go-bip39"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// SLIP-0010 ed25519 test vector 1.
func TestMasterAndChildKey_SLIP10Vector(t *testing.T) {
	seed := mustHex(t, "000102030405060708090a0b0c0d0e0f")

	key, chain := masterKey(seed)
	assert.Equal(t, "2b4be7f19ee27bbf30c667b642d5f4aa69fd169872f8fc3059c08ebae2eb19e7", hex.EncodeToString(key))
	assert.Equal(t, "90046a93de5380a72b5e45010748567d5ea02bbf6522f979e05c0d8d8ca9fffb", hex.EncodeToString(chain))

	key, chain = childKey(key, chain, hardenedOffset)
	assert.Equal(t, "68e0fe46dfb67e368c75379acec591dad19df3cde26e63b93a8e704f1dade7a3", hex.EncodeToString(key))
	assert.Equal(t, "8b59aa11380b624e81507a27fedda59fea6d0b779a778918a2fd3590e16e9c69", hex.EncodeToString(chain))
}

func TestEncryptDecrypt(t *testing.T) {
	w := New()
	password := []byte("correct horse")
	data := []byte("secret seed bytes")

	ct, err := w.Encrypt(password, data)
	require.NoError(t, err)
	assert.NotContains(t, string(ct), string(data))

	plain, err := w.Decrypt(password, ct)
	require.NoError(t, err)
	assert.Equal(t, data, plain)

	_, err = w.Decrypt([]byte("wrong"), ct)
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = w.Decrypt(password, []byte("not base64!"))
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestEncrypt_FreshSaltPerCall(t *testing.T) {
	w := New()
	a, err := w.Encrypt([]byte("pw"), []byte("x"))
	require.NoError(t, err)
	b, err := w.Encrypt([]byte("pw"), []byte("x"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestGenKeypairFromSeed_Deterministic(t *testing.T) {
	w := New()
	entropy := make([]byte, 32)
	mnemonic, err := bip39.NewMnemonic(entropy)
	require.NoError(t, err)

	var pubs []string
	for _, pw := range []string{"first", "second"} {
		encSeed, err := w.MnemonicToSeed([]byte(pw), mnemonic)
		require.NoError(t, err)

		pub, encSecret, err := w.GenKeypairFromSeed([]byte(pw), encSeed, 0)
		require.NoError(t, err)
		secret, err := w.Decrypt([]byte(pw), encSecret)
		require.NoError(t, err)
		require.Len(t, secret, ed25519.SeedSize)

		derived := ed25519.NewKeyFromSeed(secret).Public().(ed25519.PublicKey)
		assert.Equal(t, pub, hex.EncodeToString(derived))
		pubs = append(pubs, pub)
	}
	assert.Equal(t, pubs[0], pubs[1], "password must not influence the derived key")

	encSeed, err := w.MnemonicToSeed([]byte("pw"), mnemonic)
	require.NoError(t, err)
	other, _, err := w.GenKeypairFromSeed([]byte("pw"), encSeed, 1)
	require.NoError(t, err)
	assert.NotEqual(t, pubs[0], other)
}

func TestMnemonicToSeed_InvalidMnemonic(t *testing.T) {
	_, err := New().MnemonicToSeed([]byte("pw"), "abandon abandon abandon")
	assert.ErrorIs(t, err, ErrInvalidMnemonic)
}

func TestGenKeypairFromSeed_WrongPassword(t *testing.T) {
	w := New()
	enc, err := w.Encrypt([]byte("a"), make([]byte, 64))
	require.NoError(t, err)
	_, _, err = w.GenKeypairFromSeed([]byte("b"), enc, 0)
	assert.ErrorIs(t, err, ErrDecrypt)
}
