package wad

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// CommonKeyIndex selects one of the three Wii-wide AES-128 title-key
// wrapping keys, as stored in the ticket byte at offset 0x1F5.
type CommonKeyIndex byte

const (
	CommonKeyRetail CommonKeyIndex = iota
	CommonKeyKorean
	CommonKeyVWii
)

// commonKeys are the three platform-wide constants from §4.3. They are
// public knowledge (every Wii title ships encrypted under one of them)
// and are required to unwrap any ticket's title key.
var commonKeys = map[CommonKeyIndex][16]byte{
	CommonKeyRetail: {0xeb, 0xe4, 0x2a, 0x22, 0x5e, 0x85, 0x93, 0xe4, 0x48, 0xd9, 0xc5, 0x45, 0x73, 0x81, 0xaa, 0xf7},
	CommonKeyKorean: {0x63, 0xb8, 0x2b, 0xb4, 0xf4, 0x61, 0x4e, 0x2e, 0x13, 0xf2, 0xfe, 0xfb, 0xba, 0x4c, 0x9b, 0x7e},
	CommonKeyVWii:   {0x30, 0xbf, 0xc7, 0x6e, 0x7c, 0x19, 0xaf, 0xbb, 0x23, 0x16, 0x33, 0x30, 0xce, 0xd7, 0xc2, 0x8d},
}

// decryptCBCNoPad performs AES-CBC decryption of ciphertext that is not
// PKCS#7 padded. The ciphertext must be a whole number of blocks; it is
// decrypted directly with crypto/cipher's CBC mode, which does no padding
// handling, so no padding is checked or stripped and no extra block is
// added or removed.
func decryptCBCNoPad(key, iv, ciphertext []byte) ([]byte, error) {
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, newErr(DecryptFailure, "aes", fmt.Errorf("ciphertext not block-aligned: %d bytes", len(ciphertext)))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, newErr(DecryptFailure, "aes", err)
	}

	mode := cipher.NewCBCDecrypter(block, iv)
	out := make([]byte, len(ciphertext))
	mode.CryptBlocks(out, ciphertext)
	return out, nil
}

// DecryptTitleKey unwraps a ticket's encrypted title key using the common
// key selected by idx, with the title ID (zero-padded to 16 bytes) as IV.
func DecryptTitleKey(encryptedTitleKey, titleIDBytes []byte, idx CommonKeyIndex) ([]byte, error) {
	key, ok := commonKeys[idx]
	if !ok {
		return nil, newErr(UnsupportedFormat, "aes", fmt.Errorf("common key index %d", idx))
	}

	iv := make([]byte, aes.BlockSize)
	copy(iv, titleIDBytes)

	plain, err := decryptCBCNoPad(key[:], iv, encryptedTitleKey)
	if err != nil {
		return nil, err
	}
	return plain[:16], nil
}

// DecryptContent decrypts one WAD content using the title key, with
// IV = [indexHi, indexLo, 0x00 * 14] per §4.3. The ciphertext must be the
// content's full 16-byte-aligned encrypted size; the result is trimmed to
// plaintextSize.
func DecryptContent(titleKey []byte, index uint16, ciphertext []byte, plaintextSize int) ([]byte, error) {
	iv := make([]byte, aes.BlockSize)
	iv[0] = byte(index >> 8)
	iv[1] = byte(index)

	plain, err := decryptCBCNoPad(titleKey, iv, ciphertext)
	if err != nil {
		return nil, err
	}
	if plaintextSize > len(plain) {
		return nil, newErr(DecryptFailure, "aes", fmt.Errorf("plaintext size %d exceeds decrypted %d", plaintextSize, len(plain)))
	}
	return plain[:plaintextSize], nil
}

// AsyncDecryptFunc models §5's "AES operations are permitted to be
// asynchronous" allowance: a task-returning function at the pipeline
// boundary. The default, SyncDecrypt, just calls DecryptContent inline;
// a host whose only AES API is async (e.g. WebCrypto through a bridge)
// supplies its own implementation of the same shape.
type AsyncDecryptFunc func(titleKey []byte, index uint16, ciphertext []byte, plaintextSize int) ([]byte, error)

// SyncDecrypt is the default AsyncDecryptFunc: it does not actually
// suspend, matching §5's "the WAD pipeline is otherwise synchronous and
// its only await is on decryption" - an await on an already-resolved
// value is legal and keeps the pipeline's sole suspension point uniform
// whether or not the host needs it.
func SyncDecrypt(titleKey []byte, index uint16, ciphertext []byte, plaintextSize int) ([]byte, error) {
	return DecryptContent(titleKey, index, ciphertext, plaintextSize)
}
