package util

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) *TokenCipher {
	t.Helper()

	tc, err := NewTokenCipher(bytes.Repeat([]byte{0x42}, TokenKeySize))
	require.NoError(t, err)

	return tc
}

func TestTokenCipher_RoundTrip(t *testing.T) {
	RegisterTestingT(t)
	tc := newTestCipher(t)

	for _, plaintext := range []string{
		"",
		"a",
		"exactly-16-bytes",
		"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJ1aWQiOiIxIn0.signature",
		strings.Repeat("ñ", 100),
	} {
		envelope, err := tc.Encrypt(plaintext)
		Expect(err).ToNot(HaveOccurred())

		decrypted, err := tc.Decrypt(envelope)
		Expect(err).ToNot(HaveOccurred())
		Expect(decrypted).To(Equal(plaintext))
	}
}

func TestTokenCipher_FreshIVPerCall(t *testing.T) {
	tc := newTestCipher(t)

	first, err := tc.Encrypt("same token")
	require.NoError(t, err)

	second, err := tc.Encrypt("same token")
	require.NoError(t, err)

	assert.NotEqual(t, first.IV, second.IV)
	assert.NotEqual(t, first.Ciphertext, second.Ciphertext)

	iv, err := hex.DecodeString(first.IV)
	require.NoError(t, err)
	assert.Len(t, iv, 16)
}

func TestTokenCipher_DecryptFailures(t *testing.T) {
	tc := newTestCipher(t)

	envelope, err := tc.Encrypt("payload")
	require.NoError(t, err)

	t.Run("should reject non hex ciphertext", func(t *testing.T) {
		_, err := tc.Decrypt(Envelope{IV: envelope.IV, Ciphertext: "zz"})
		assert.ErrorIs(t, err, ErrBadDecrypt)
	})

	t.Run("should reject a short iv", func(t *testing.T) {
		_, err := tc.Decrypt(Envelope{IV: "abcd", Ciphertext: envelope.Ciphertext})
		assert.ErrorIs(t, err, ErrBadDecrypt)
	})

	t.Run("should reject ciphertext that is not block aligned", func(t *testing.T) {
		_, err := tc.Decrypt(Envelope{IV: envelope.IV, Ciphertext: envelope.Ciphertext[:10]})
		assert.ErrorIs(t, err, ErrBadDecrypt)
	})

	t.Run("should reject a different key", func(t *testing.T) {
		other, err := NewTokenCipher(bytes.Repeat([]byte{0x01}, TokenKeySize))
		require.NoError(t, err)

		decrypted, err := other.Decrypt(envelope)
		if err == nil {
			assert.NotEqual(t, "payload", decrypted)
			return
		}
		assert.ErrorIs(t, err, ErrBadDecrypt)
	})
}

func TestTokenCipher_SealAndOpen(t *testing.T) {
	tc := newTestCipher(t)

	sealed, err := tc.Seal("jwt-value", ".")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(sealed, "."))

	opened, err := tc.Open(sealed, ".")
	require.NoError(t, err)
	assert.Equal(t, "jwt-value", opened)

	_, err = tc.Open("onlyciphertext", ".")
	assert.ErrorIs(t, err, ErrMalformedEnvelope)

	_, err = tc.Open(".abcdef", ".")
	assert.ErrorIs(t, err, ErrMalformedEnvelope)

	_, err = tc.Open("abcdef.00", ".")
	assert.ErrorIs(t, err, ErrBadDecrypt)
}

func TestNewTokenCipher_KeyLength(t *testing.T) {
	_, err := NewTokenCipher([]byte("short"))
	assert.Error(t, err)

	_, err = NewTokenCipherFromHex("not-hex")
	assert.Error(t, err)

	tc, err := NewTokenCipherFromHex("")
	require.NoError(t, err)
	assert.NotNil(t, tc)
}
