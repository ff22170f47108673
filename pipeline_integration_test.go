package wad

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildU8SingleFile assembles a minimal U8 archive holding one root-level
// file, parameterized by name/data (buildU8 in u8_test.go is fixed to two
// hardcoded files and doesn't fit a caller-chosen payload).
func buildU8SingleFile(name string, data []byte) []byte {
	const rootNodeOff = 0x20
	const numNodes = 2 // root, file

	names := append([]byte(name), 0)
	stringTableOff := rootNodeOff + numNodes*u8NodeSize
	dataOff := stringTableOff + len(names)

	putNode := func(buf []byte, typ byte, nOff, dOff, endOrSize int) []byte {
		var n [12]byte
		n[0] = typ
		n[1] = byte(nOff >> 16)
		n[2] = byte(nOff >> 8)
		n[3] = byte(nOff)
		binary.BigEndian.PutUint32(n[4:8], uint32(dOff))
		binary.BigEndian.PutUint32(n[8:12], uint32(endOrSize))
		return append(buf, n[:]...)
	}

	var buf []byte
	var hdr [32]byte
	binary.BigEndian.PutUint32(hdr[0:4], u8Magic)
	binary.BigEndian.PutUint32(hdr[4:8], rootNodeOff)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(numNodes*u8NodeSize))
	binary.BigEndian.PutUint32(hdr[12:16], uint32(dataOff))
	buf = append(buf, hdr[:]...)

	buf = putNode(buf, u8NodeDir, 0, 0, numNodes)
	buf = putNode(buf, u8NodeFile, 0, dataOff, len(data))

	buf = append(buf, names...)
	buf = append(buf, data...)
	return buf
}

// buildLyt1LessBRLYT builds a BRLYT with a single pan1 pane and no lyt1
// section, so Width/Height stay at their zero value straight out of
// DecodeBRLYT (reusing newBRLYTBuilder/paneBody from brlyt_test.go).
func buildLyt1LessBRLYT() []byte {
	b := newBRLYTBuilder()
	b.section("pan1", paneBody("root"))
	return b.finish()
}

// encryptCBCNoPad is decryptCBCNoPad's inverse, used only to build test
// fixtures: it zero-pads plaintext to a block multiple before encrypting,
// mirroring how DecryptContent/DecryptTitleKey expect their ciphertext.
func encryptCBCNoPad(t *testing.T, key, iv, plaintext []byte) []byte {
	t.Helper()
	padded := make([]byte, Align(len(plaintext), aes.BlockSize))
	copy(padded, plaintext)

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out
}

// buildEncryptedWad assembles a full WAD frame (header, ticket, TMD, one
// encrypted content) around plaintext content, following the same
// offset/alignment arithmetic ParseWadFrame itself uses.
func buildEncryptedWad(t *testing.T, plaintext []byte) []byte {
	t.Helper()

	titleKey := make([]byte, 16)
	for i := range titleKey {
		titleKey[i] = byte(i + 1)
	}
	var titleIDBytes [8]byte
	copy(titleIDBytes[:], []byte{0x00, 0x01, 0x00, 0x02, 0xAA, 0xBB, 0xCC, 0xDD})

	commonKey := commonKeys[CommonKeyRetail]
	titleKeyIV := make([]byte, aes.BlockSize)
	copy(titleKeyIV, titleIDBytes[:])
	encryptedTitleKey := encryptCBCNoPad(t, commonKey[:], titleKeyIV, titleKey)

	contentIV := make([]byte, aes.BlockSize) // index 0
	encContent := encryptCBCNoPad(t, titleKey, contentIV, plaintext)

	const headerSize = 32
	const certChainLen = 0
	const ticketLen = ticketSize
	const tmdLen = tmdContentsOff + tmdRecordSize

	certOff := Align(headerSize, wadAlign)
	ticketOff := certOff + Align(certChainLen, wadAlign)
	tmdOff := ticketOff + Align(ticketLen, wadAlign)
	dataOff := tmdOff + Align(tmdLen, wadAlign)

	buf := make([]byte, dataOff+len(encContent))
	binary.BigEndian.PutUint32(buf[0:4], headerSize)
	binary.BigEndian.PutUint32(buf[4:8], 0)
	binary.BigEndian.PutUint32(buf[8:12], certChainLen)
	binary.BigEndian.PutUint32(buf[16:20], ticketLen)
	binary.BigEndian.PutUint32(buf[20:24], tmdLen)
	binary.BigEndian.PutUint32(buf[24:28], uint32(len(encContent)))
	binary.BigEndian.PutUint32(buf[28:32], 0)

	copy(buf[ticketOff+ticketTitleKeyOff:], encryptedTitleKey[:16])
	copy(buf[ticketOff+ticketTitleIDOff:], titleIDBytes[:])
	buf[ticketOff+ticketCommonKeyOff] = byte(CommonKeyRetail)

	numContentsAt := tmdOff + tmdNumContentsOff
	binary.BigEndian.PutUint16(buf[numContentsAt:numContentsAt+2], 1)

	recAt := tmdOff + tmdContentsOff
	binary.BigEndian.PutUint32(buf[recAt:recAt+4], 0x00010001) // id
	binary.BigEndian.PutUint16(buf[recAt+4:recAt+6], 0)        // index
	binary.BigEndian.PutUint16(buf[recAt+6:recAt+8], 1)        // type
	binary.BigEndian.PutUint32(buf[recAt+8:recAt+12], 0)       // sizeHi
	binary.BigEndian.PutUint32(buf[recAt+12:recAt+16], uint32(len(plaintext)))

	copy(buf[dataOff:], encContent)

	return buf
}

// TestDecodeWadDefaultsMissingCanvasSize covers §3's "width,height
// default to 608x456 (banner) or 128x128 (icon) if missing": a banner
// archive whose .brlyt carries no lyt1 section must still come out of
// DecodeWad with the banner default canvas size, not a 0x0 layout.
func TestDecodeWadDefaultsMissingCanvasSize(t *testing.T) {
	brlyt := buildLyt1LessBRLYT()
	archive := buildU8SingleFile("banner.brlyt", brlyt)
	buf := buildEncryptedWad(t, archive)

	result, err := DecodeWad(context.Background(), buf, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Banner)
	require.Equal(t, float32(defaultBannerW), result.Banner.Width)
	require.Equal(t, float32(defaultBannerH), result.Banner.Height)
}

// TestDecodeWadRespectsCancellation covers §5's cancellation checkpoint
// "per image, per animation, per content": a context canceled before
// DecodeWad runs must short-circuit rather than decode anything.
func TestDecodeWadRespectsCancellation(t *testing.T) {
	brlyt := buildLyt1LessBRLYT()
	archive := buildU8SingleFile("banner.brlyt", brlyt)
	buf := buildEncryptedWad(t, archive)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DecodeWad(ctx, buf, nil)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}

// afterNCallsCtx is a context.Context whose Done() only starts reporting
// cancellation on its (n+1)th call. Used to prove the per-asset decode
// loop inside DecodeWad checks ctx.Done() itself, not just the outer
// per-content loop: cancelAfter=1 lets the one per-content checkpoint
// pass, then fires on the very first per-asset checkpoint that follows.
type afterNCallsCtx struct {
	context.Context
	calls       *int
	cancelAfter int
	done        chan struct{}
}

func newAfterNCallsCtx(cancelAfter int) afterNCallsCtx {
	done := make(chan struct{})
	close(done)
	return afterNCallsCtx{Context: context.Background(), calls: new(int), cancelAfter: cancelAfter, done: done}
}

func (c afterNCallsCtx) Done() <-chan struct{} {
	*c.calls++
	if *c.calls > c.cancelAfter {
		return c.done
	}
	return nil
}

func (c afterNCallsCtx) Err() error {
	if *c.calls > c.cancelAfter {
		return context.Canceled
	}
	return nil
}

// TestDecodeWadChecksCancellationInsideAssetLoop proves the per-asset
// decode loop (textures/animations/fonts/audio within the selected
// archive) has its own ctx.Done() checkpoint, distinct from the
// per-content loop's: canceling right after the one content-loop
// checkpoint passes still aborts before any asset is decoded.
func TestDecodeWadChecksCancellationInsideAssetLoop(t *testing.T) {
	brlyt := buildLyt1LessBRLYT()
	archive := buildU8SingleFile("banner.brlyt", brlyt)
	buf := buildEncryptedWad(t, archive)

	ctx := newAfterNCallsCtx(1)
	_, err := DecodeWad(ctx, buf, nil)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}
