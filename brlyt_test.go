package wad

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

type brlytBuilder struct {
	buf          []byte
	sectionCount int
}

func newBRLYTBuilder() *brlytBuilder {
	b := &brlytBuilder{}
	b.buf = append(b.buf, []byte("RLYT")...)
	b.put16(0xFEFF)
	b.put16(0)
	b.put32(0) // filesize placeholder
	b.put16(16)
	b.put16(0) // sectionCount placeholder
	return b
}

func (b *brlytBuilder) put16(v uint16) {
	var x [2]byte
	binary.BigEndian.PutUint16(x[:], v)
	b.buf = append(b.buf, x[:]...)
}

func (b *brlytBuilder) put32(v uint32) {
	var x [4]byte
	binary.BigEndian.PutUint32(x[:], v)
	b.buf = append(b.buf, x[:]...)
}

func (b *brlytBuilder) section(tag string, body []byte) {
	b.buf = append(b.buf, tag...)
	b.put32(uint32(8 + len(body)))
	b.buf = append(b.buf, body...)
	b.sectionCount++
}

func (b *brlytBuilder) finish() []byte {
	binary.BigEndian.PutUint16(b.buf[14:16], uint16(b.sectionCount))
	binary.BigEndian.PutUint32(b.buf[8:12], uint32(len(b.buf)))
	return b.buf
}

func paneBody(name string) []byte {
	var body []byte
	body = append(body, 1, 0, 255, 0) // flags(visible), origin, alpha, pad
	nameB := make([]byte, paneNameLen)
	copy(nameB, name)
	body = append(body, nameB...)
	f32 := func(v float32) {
		var x [4]byte
		binary.BigEndian.PutUint32(x[:], math.Float32bits(v))
		body = append(body, x[:]...)
	}
	f32(0)
	f32(0)
	f32(0) // translate
	f32(0)
	f32(0)
	f32(0) // rotate
	f32(1)
	f32(1) // scale
	f32(100)
	f32(50) // size
	var zero [4]byte
	body = append(body, zero[:]...) // reserved
	return body
}

func TestDecodeBRLYTLayoutSize(t *testing.T) {
	b := newBRLYTBuilder()
	var lyt1 []byte
	lyt1 = append(lyt1, 0, 0, 0, 0) // origin flag + pad
	var w, h [4]byte
	binary.BigEndian.PutUint32(w[:], math.Float32bits(608))
	binary.BigEndian.PutUint32(h[:], math.Float32bits(456))
	lyt1 = append(lyt1, w[:]...)
	lyt1 = append(lyt1, h[:]...)
	b.section("lyt1", lyt1)
	buf := b.finish()

	lay, err := DecodeBRLYT(buf, nil)
	require.NoError(t, err)
	require.Equal(t, float32(608), lay.Width)
	require.Equal(t, float32(456), lay.Height)
}

func TestDecodeBRLYTBadMagic(t *testing.T) {
	_, err := DecodeBRLYT(make([]byte, 16), nil)
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, BadMagic, de.Kind)
}

func TestDecodeBRLYTParentStack(t *testing.T) {
	b := newBRLYTBuilder()
	b.section("pan1", paneBody("root"))
	b.section("pas1", nil)
	b.section("pan1", paneBody("child"))
	b.section("pae1", nil)
	buf := b.finish()

	lay, err := DecodeBRLYT(buf, nil)
	require.NoError(t, err)
	require.Len(t, lay.Panes, 2)
	require.Equal(t, "root", lay.Panes[0].Name)
	require.Equal(t, -1, lay.Panes[0].Parent)
	require.Equal(t, "child", lay.Panes[1].Name)
	require.Equal(t, 0, lay.Panes[1].Parent)
}

func TestDecodeBRLYTGroup(t *testing.T) {
	b := newBRLYTBuilder()
	var grp1 []byte
	nameB := make([]byte, groupNameLen)
	copy(nameB, "RSO0")
	grp1 = append(grp1, nameB...)
	var count [2]byte
	binary.BigEndian.PutUint16(count[:], 1)
	grp1 = append(grp1, count[:]...)
	grp1 = append(grp1, 0, 0) // pad
	paneNameB := make([]byte, groupNameLen)
	copy(paneNameB, "root")
	grp1 = append(grp1, paneNameB...)
	b.section("grp1", grp1)
	buf := b.finish()

	lay, err := DecodeBRLYT(buf, nil)
	require.NoError(t, err)
	require.Len(t, lay.Groups, 1)
	require.Equal(t, "RSO0", lay.Groups[0].Name)
	require.Equal(t, []string{"root"}, lay.Groups[0].PaneNames)
}

func TestDefaultCanvasSize(t *testing.T) {
	w, h := DefaultCanvasSize(true)
	require.Equal(t, float32(128), w)
	require.Equal(t, float32(128), h)
	w, h = DefaultCanvasSize(false)
	require.Equal(t, float32(608), w)
	require.Equal(t, float32(456), h)
}
