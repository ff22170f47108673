package wad

import (
	"crypto/aes"
	"crypto/cipher"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecryptTitleKeyRoundTrip(t *testing.T) {
	titleID := []byte{0, 1, 0, 0, 'H', 'A', 'X', 'X'}
	iv := make([]byte, aes.BlockSize)
	copy(iv, titleID)

	key := commonKeys[CommonKeyRetail]
	plainKey := []byte("0123456789abcdef")

	block, err := aes.NewCipher(key[:])
	require.NoError(t, err)
	enc := make([]byte, 16)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(enc, plainKey)

	got, err := DecryptTitleKey(enc, titleID, CommonKeyRetail)
	require.NoError(t, err)
	require.Equal(t, plainKey, got)
}

func TestDecryptTitleKeyUnknownIndex(t *testing.T) {
	_, err := DecryptTitleKey(make([]byte, 16), make([]byte, 8), CommonKeyIndex(99))
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, UnsupportedFormat, de.Kind)
}

func TestDecryptContentTrimsToPlaintextSize(t *testing.T) {
	titleKey := []byte("0123456789abcdef")
	index := uint16(3)
	iv := make([]byte, aes.BlockSize)
	iv[0] = byte(index >> 8)
	iv[1] = byte(index)

	plain := []byte("hello world!!!!!") // 16 bytes
	block, err := aes.NewCipher(titleKey)
	require.NoError(t, err)
	enc := make([]byte, 16)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(enc, plain)

	got, err := DecryptContent(titleKey, index, enc, 11)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(got))
}

func TestSyncDecryptMatchesDecryptContent(t *testing.T) {
	titleKey := []byte("0123456789abcdef")
	iv := make([]byte, aes.BlockSize)
	block, err := aes.NewCipher(titleKey)
	require.NoError(t, err)
	enc := make([]byte, 16)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(enc, []byte("abcdefghijklmnop"))

	want, err := DecryptContent(titleKey, 0, enc, 16)
	require.NoError(t, err)
	got, err := SyncDecrypt(titleKey, 0, enc, 16)
	require.NoError(t, err)
	require.Equal(t, want, got)
}
