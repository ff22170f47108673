package wad

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildBRLAN(t *testing.T, frameSize float32, loop bool) []byte {
	t.Helper()

	var buf []byte
	put16 := func(v uint16) { var b [2]byte; binary.BigEndian.PutUint16(b[:], v); buf = append(buf, b[:]...) }
	put32 := func(v uint32) { var b [4]byte; binary.BigEndian.PutUint32(b[:], v); buf = append(buf, b[:]...) }

	buf = append(buf, []byte("RLAN")...)
	put16(0xFEFF)
	put16(0)
	sizeIdx := len(buf)
	put32(0) // filesize placeholder
	put16(16)
	put16(1)
	require.Equal(t, 16, len(buf))

	var body []byte
	put32b := func(dst *[]byte, v uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		*dst = append(*dst, b[:]...)
	}
	put32b(&body, math.Float32bits(frameSize))
	flags := byte(0)
	if loop {
		flags = 1
	}
	body = append(body, flags, 0, 0, 0)
	var numE [2]byte
	binary.BigEndian.PutUint16(numE[:], 0)
	body = append(body, numE[:]...)
	body = append(body, 0, 0) // pad

	secHeader := []byte("pai1")
	var secSize [4]byte
	binary.BigEndian.PutUint32(secSize[:], uint32(8+len(body)))
	buf = append(buf, secHeader...)
	buf = append(buf, secSize[:]...)
	buf = append(buf, body...)

	binary.BigEndian.PutUint32(buf[sizeIdx:sizeIdx+4], uint32(len(buf)))
	return buf
}

func TestDecodeBRLANMinimal(t *testing.T) {
	buf := buildBRLAN(t, 60, true)
	anim, err := DecodeBRLAN(buf, nil)
	require.NoError(t, err)
	require.Equal(t, float32(60), anim.FrameSize)
	require.True(t, anim.LoopFlag)
	require.Empty(t, anim.Panes)
}

func TestDecodeBRLANBadMagic(t *testing.T) {
	_, err := DecodeBRLAN([]byte("XXXX\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00"), nil)
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, BadMagic, de.Kind)
}

func TestDecodeKeyframeFormats(t *testing.T) {
	var buf []byte
	put32 := func(v uint32) { var b [4]byte; binary.BigEndian.PutUint32(b[:], v); buf = append(buf, b[:]...) }
	put32(math.Float32bits(10))
	put32(math.Float32bits(255))
	r := NewReader(buf)
	kf, err := decodeKeyframe(r, DataLinearF32)
	require.NoError(t, err)
	require.Equal(t, Keyframe{Frame: 10, Value: 255, Blend: 0}, kf)

	buf = nil
	put32(math.Float32bits(5))
	var v16 [2]byte
	binary.BigEndian.PutUint16(v16[:], 300)
	buf = append(buf, v16[:]...)
	buf = append(buf, 0, 0) // reserved
	r = NewReader(buf)
	kf, err = decodeKeyframe(r, DataStepU16)
	require.NoError(t, err)
	require.Equal(t, float32(5), kf.Frame)
	require.Equal(t, float32(300), kf.Value)

	buf = nil
	put32(math.Float32bits(1))
	put32(math.Float32bits(2))
	put32(math.Float32bits(3))
	r = NewReader(buf)
	kf, err = decodeKeyframe(r, DataHermiteF32)
	require.NoError(t, err)
	require.Equal(t, Keyframe{Frame: 1, Value: 2, Blend: 3}, kf)
}

func TestDecodeTrackNegativeFrameShift(t *testing.T) {
	var hdr []byte
	hdr = append(hdr, 0, 0, byte(DataLinearF32), 0)
	var numKf [2]byte
	binary.BigEndian.PutUint16(numKf[:], 1)
	hdr = append(hdr, numKf[:]...)
	hdr = append(hdr, 0, 0) // pad
	var kfOff [4]byte
	binary.BigEndian.PutUint32(kfOff[:], 0)
	hdr = append(hdr, kfOff[:]...)

	var body []byte
	var f [4]byte
	binary.BigEndian.PutUint32(f[:], math.Float32bits(-5))
	body = append(body, f[:]...)
	binary.BigEndian.PutUint32(f[:], math.Float32bits(10))
	body = append(body, f[:]...)

	r := NewReader(hdr)
	track, err := decodeTrack(r, body, 100, false)
	require.NoError(t, err)
	require.Len(t, track.Keyframes, 1)
	require.Equal(t, float32(95), track.Keyframes[0].Frame)
}

func TestDecodeTrackNegativeFrameShiftDisabled(t *testing.T) {
	old := NegativeFrameShiftEnabled
	NegativeFrameShiftEnabled = false
	defer func() { NegativeFrameShiftEnabled = old }()

	var hdr []byte
	hdr = append(hdr, 0, 0, byte(DataLinearF32), 0)
	var numKf [2]byte
	binary.BigEndian.PutUint16(numKf[:], 1)
	hdr = append(hdr, numKf[:]...)
	hdr = append(hdr, 0, 0)
	var kfOff [4]byte
	binary.BigEndian.PutUint32(kfOff[:], 0)
	hdr = append(hdr, kfOff[:]...)

	var body []byte
	var f [4]byte
	binary.BigEndian.PutUint32(f[:], math.Float32bits(-5))
	body = append(body, f[:]...)
	binary.BigEndian.PutUint32(f[:], math.Float32bits(10))
	body = append(body, f[:]...)

	r := NewReader(hdr)
	track, err := decodeTrack(r, body, 100, false)
	require.NoError(t, err)
	require.Equal(t, float32(-5), track.Keyframes[0].Frame)
}

func TestDecodeTrackSetsLoopExtrapolationFromFlag(t *testing.T) {
	var hdr []byte
	hdr = append(hdr, 0, 0, byte(DataLinearF32), 0)
	var numKf [2]byte
	binary.BigEndian.PutUint16(numKf[:], 1)
	hdr = append(hdr, numKf[:]...)
	hdr = append(hdr, 0, 0)
	var kfOff [4]byte
	binary.BigEndian.PutUint32(kfOff[:], 0)
	hdr = append(hdr, kfOff[:]...)

	var body []byte
	var f [4]byte
	binary.BigEndian.PutUint32(f[:], math.Float32bits(1))
	body = append(body, f[:]...)
	binary.BigEndian.PutUint32(f[:], math.Float32bits(10))
	body = append(body, f[:]...)

	r := NewReader(hdr)
	track, err := decodeTrack(r, body, 100, true)
	require.NoError(t, err)
	require.Equal(t, ExtrapLoop, track.Pre)
	require.Equal(t, ExtrapLoop, track.Post)

	hdr2 := append([]byte(nil), hdr...)
	r2 := NewReader(hdr2)
	track2, err := decodeTrack(r2, body, 100, false)
	require.NoError(t, err)
	require.Equal(t, ExtrapClamp, track2.Pre)
	require.Equal(t, ExtrapClamp, track2.Post)
}

func TestDecodeBRLANLoopFlagPropagatesToTrackExtrapolation(t *testing.T) {
	buf := buildBRLANWithTrack(t, 60, true)
	anim, err := DecodeBRLAN(buf, nil)
	require.NoError(t, err)
	require.Len(t, anim.Panes, 1)
	require.Len(t, anim.Panes[0].Tags, 1)
	require.Len(t, anim.Panes[0].Tags[0].Entries, 1)
	track := anim.Panes[0].Tags[0].Entries[0]
	require.Equal(t, ExtrapLoop, track.Pre)
	require.Equal(t, ExtrapLoop, track.Post)
}

// buildBRLANWithTrack builds a minimal RLAN file containing one pane anim,
// one RLPA tag, and one track, so loopFlag propagation can be observed
// end-to-end through DecodeBRLAN.
func buildBRLANWithTrack(t *testing.T, frameSize float32, loop bool) []byte {
	t.Helper()

	put16b := func(dst *[]byte, v uint16) {
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], v)
		*dst = append(*dst, b[:]...)
	}
	put32b := func(dst *[]byte, v uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		*dst = append(*dst, b[:]...)
	}

	// Every offset decoded out of the pai1 chain (pane/tag/track/keyframe)
	// is seeked against the *whole* pai1 payload, not the locally-built
	// body slice, so each local offset below is rebased by headerLen: the
	// frameSize/flags/numEntries/pad header plus the one-entry offset
	// table (12 + 4*1 = 16 bytes) that precedes body in pai1.
	const headerLen = 16

	// Keyframe data comes first in body.
	var body []byte
	keyframeOffLocal := len(body)
	put32b(&body, math.Float32bits(0))
	put32b(&body, math.Float32bits(1))

	// Track header follows the keyframe data.
	trackOffLocal := len(body)
	body = append(body, 0, 0, byte(DataLinearF32), 0) // targetGroup, opcode, dataType, pad
	put16b(&body, 1)                                  // numKeyframes
	body = append(body, 0, 0)                          // pad
	put32b(&body, uint32(headerLen+keyframeOffLocal))

	// Tag header (type "RLPA") follows the track.
	tagOffLocal := len(body)
	body = append(body, []byte("RLPA")...)
	put16b(&body, 1) // numEntries
	body = append(body, 0, 0)
	put32b(&body, uint32(headerLen+trackOffLocal))

	// Pane-anim header (20-byte name + tag table) follows the tag.
	paneOffLocal := len(body)
	name := make([]byte, paneNameLen)
	copy(name, "child")
	body = append(body, name...)
	body = append(body, 1, 0, 0, 0) // numTags=1, pad
	put32b(&body, uint32(headerLen+tagOffLocal))

	// pai1 body: frameSize/flags/numEntries/pad, then the pane-offset table.
	var pai1 []byte
	put32b(&pai1, math.Float32bits(frameSize))
	flags := byte(0)
	if loop {
		flags = 1
	}
	pai1 = append(pai1, flags, 0, 0, 0)
	put16b(&pai1, 1) // numEntries
	pai1 = append(pai1, 0, 0)
	put32b(&pai1, uint32(headerLen+paneOffLocal))
	pai1 = append(pai1, body...)
	require.Equal(t, headerLen, len(pai1)-len(body))

	var buf []byte
	buf = append(buf, []byte("RLAN")...)
	put16b(&buf, 0xFEFF)
	put16b(&buf, 0)
	sizeIdx := len(buf)
	put32b(&buf, 0)
	put16b(&buf, 16)
	put16b(&buf, 1)
	require.Equal(t, 16, len(buf))

	buf = append(buf, []byte("pai1")...)
	put32b(&buf, uint32(8+len(pai1)))
	buf = append(buf, pai1...)

	binary.BigEndian.PutUint32(buf[sizeIdx:sizeIdx+4], uint32(len(buf)))
	return buf
}
