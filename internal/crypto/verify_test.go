package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known throwaway key, never used outside tests.
const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSignAndRecover(t *testing.T) {
	signer, err := NewSigner(testKeyHex)
	require.NoError(t, err)

	msg := []byte(`{"asset":"gold","wallet":"alice"}`)
	sig, err := signer.SignMessage(msg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sig, "0x"))

	recovered, err := RecoverAddress(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)

	// The same signature over different content recovers a different key.
	other, err := RecoverAddress([]byte("tampered"), sig)
	require.NoError(t, err)
	assert.NotEqual(t, signer.Address(), other)
}

func TestNewSigner_AcceptsPrefix(t *testing.T) {
	a, err := NewSigner(testKeyHex)
	require.NoError(t, err)
	b, err := NewSigner("0x" + testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, a.Address(), b.Address())

	_, err = NewSigner("not-hex")
	assert.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	signer, err := NewSigner(testKeyHex)
	require.NoError(t, err)

	msg := []byte("authorize")
	sig, err := signer.SignMessage(msg)
	require.NoError(t, err)

	ok, err := VerifySignature(signer.Address().Hex(), msg, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	// Address comparison is case-insensitive through normalization.
	ok, err = VerifySignature(strings.ToLower(signer.Address().Hex()), msg, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifySignature("0x0000000000000000000000000000000000000001", msg, sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecoverAddress_BadInput(t *testing.T) {
	tests := []struct {
		name string
		sig  string
	}{
		{name: "not hex", sig: "zz"},
		{name: "too short", sig: "0xdeadbeef"},
		{name: "empty", sig: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RecoverAddress([]byte("msg"), tt.sig)
			assert.Error(t, err)
		})
	}
}
