package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/require"
)

func TestNewSignerAcceptsFullKeyAndSeed(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	full, err := NewSigner("oracle.test", ed25519KeyPrefix+base58.Encode(priv))
	require.NoError(t, err)
	require.Equal(t, "oracle.test", full.AccountID())

	seeded, err := NewSigner("oracle.test", ed25519KeyPrefix+base58.Encode(priv.Seed()))
	require.NoError(t, err)

	payload := []byte(`{"deposit_id":7}`)
	sig := full.Sign("oracle_confirm_funding", 1700000000000, payload)
	require.Equal(t, sig, seeded.Sign("oracle_confirm_funding", 1700000000000, payload))
}

func TestSignerRejectsMalformedKeys(t *testing.T) {
	_, err := NewSigner("oracle.test", "")
	require.Error(t, err)

	_, err = NewSigner("oracle.test", "secp256k1:abcdef")
	require.Error(t, err)

	_, err = NewSigner("oracle.test", ed25519KeyPrefix+base58.Encode([]byte("short")))
	require.Error(t, err)

	_, priv, genErr := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, genErr)
	_, err = NewSigner("", ed25519KeyPrefix+base58.Encode(priv))
	require.Error(t, err)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := NewSigner("oracle.test", ed25519KeyPrefix+base58.Encode(priv))
	require.NoError(t, err)

	payload := []byte(`{"deposit_id":7,"quote_id":"q-1"}`)
	sig := signer.Sign("oracle_set_quote", 1700000000000, payload)
	require.True(t, signer.Verify("oracle_set_quote", 1700000000000, payload, sig))

	require.False(t, signer.Verify("oracle_mark_failed", 1700000000000, payload, sig))
	require.False(t, signer.Verify("oracle_set_quote", 1700000000001, payload, sig))
	require.False(t, signer.Verify("oracle_set_quote", 1700000000000, []byte(`{}`), sig))
	require.False(t, signer.Verify("oracle_set_quote", 1700000000000, payload, "not-hex"))
}
