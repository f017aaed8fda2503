package cryptoutils

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestCredentialCipher_RoundTrip(t *testing.T) {
	cipher, err := NewCredentialCipher(testKey)
	require.NoError(t, err)

	for _, plaintext := range []string{
		"",
		"a",
		"7564198345:AAExampleBotTokenWithSymbols_-abc",
		strings.Repeat("long secret ", 100),
		"unicode: éß世界",
	} {
		encrypted, err := cipher.Encrypt(plaintext)
		require.NoError(t, err)

		decrypted, err := cipher.Decrypt(encrypted)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestCredentialCipher_Format(t *testing.T) {
	cipher, err := NewCredentialCipher(testKey)
	require.NoError(t, err)

	encrypted, err := cipher.Encrypt("secret")
	require.NoError(t, err)

	segments := strings.Split(encrypted, ":")
	require.Len(t, segments, 3)
	for _, segment := range segments {
		_, err := hex.DecodeString(segment)
		assert.NoError(t, err)
	}

	iv, _ := hex.DecodeString(segments[0])
	tag, _ := hex.DecodeString(segments[1])
	assert.Len(t, iv, 12)
	assert.Len(t, tag, 16)
}

func TestCredentialCipher_FreshNoncePerCall(t *testing.T) {
	cipher, err := NewCredentialCipher(testKey)
	require.NoError(t, err)

	first, err := cipher.Encrypt("same input")
	require.NoError(t, err)
	second, err := cipher.Encrypt("same input")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestCredentialCipher_MalformedInput(t *testing.T) {
	cipher, err := NewCredentialCipher(testKey)
	require.NoError(t, err)

	for _, input := range []string{
		"",
		"deadbeef",
		"aa:bb",
		"aa:bb:cc:dd",
		"nothex:aabb:ccdd",
		"aabb:aabb:ccdd", // iv too short
	} {
		_, err := cipher.Decrypt(input)
		assert.Error(t, err, "input %q should be rejected", input)
	}
}

func TestCredentialCipher_TamperedCiphertext(t *testing.T) {
	cipher, err := NewCredentialCipher(testKey)
	require.NoError(t, err)

	encrypted, err := cipher.Encrypt("secret")
	require.NoError(t, err)

	segments := strings.Split(encrypted, ":")
	flipped := []byte(segments[2])
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}
	segments[2] = string(flipped)

	_, err = cipher.Decrypt(strings.Join(segments, ":"))
	assert.Error(t, err)
}

func TestNewCredentialCipher_RejectsBadKeys(t *testing.T) {
	_, err := NewCredentialCipher("not hex")
	assert.Error(t, err)

	_, err = NewCredentialCipher("aabbcc")
	assert.Error(t, err)
}
