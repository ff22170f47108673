package wad

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseWadFrameOffsetsAndContents(t *testing.T) {
	const headerSize = 32
	const certChainLen = 0
	const ticketLen = 4
	const tmdLen = 544

	certOff := Align(headerSize, wadAlign)
	ticketOff := certOff + Align(certChainLen, wadAlign)
	tmdOff := ticketOff + Align(ticketLen, wadAlign)
	dataOff := tmdOff + Align(tmdLen, wadAlign)

	buf := make([]byte, dataOff+200)
	binary.BigEndian.PutUint32(buf[0:4], headerSize)
	binary.BigEndian.PutUint32(buf[4:8], 0) // type
	binary.BigEndian.PutUint32(buf[8:12], certChainLen)
	binary.BigEndian.PutUint32(buf[16:20], ticketLen)
	binary.BigEndian.PutUint32(buf[20:24], tmdLen)
	binary.BigEndian.PutUint32(buf[24:28], 112) // dataLen, unused by the parser
	binary.BigEndian.PutUint32(buf[28:32], 0)   // footerLen, unused

	numContentsAt := tmdOff + tmdNumContentsOff
	binary.BigEndian.PutUint16(buf[numContentsAt:numContentsAt+2], 1)

	recAt := tmdOff + tmdContentsOff
	binary.BigEndian.PutUint32(buf[recAt:recAt+4], 0xDEADBEEF) // id
	binary.BigEndian.PutUint16(buf[recAt+4:recAt+6], 0)        // index
	binary.BigEndian.PutUint16(buf[recAt+6:recAt+8], 1)        // type
	binary.BigEndian.PutUint32(buf[recAt+8:recAt+12], 0)       // sizeHi
	binary.BigEndian.PutUint32(buf[recAt+12:recAt+16], 100)    // sizeLo

	frame, err := ParseWadFrame(buf)
	require.NoError(t, err)
	require.Equal(t, int64(ticketOff), frame.TicketOffset)
	require.Equal(t, int64(tmdOff), frame.TMDOffset)
	require.Equal(t, int64(dataOff), frame.DataOffset)
	require.Len(t, frame.Contents, 1)

	c := frame.Contents[0]
	require.Equal(t, uint32(0xDEADBEEF), c.ID)
	require.Equal(t, uint64(100), c.PlaintextSize)
	require.Equal(t, uint64(112), c.EncryptedSize) // Align(100,16)
	require.Equal(t, int64(dataOff), c.Offset)
	require.Equal(t, "deadbeef.app", c.Name)

	enc, err := frame.EncryptedContent(c)
	require.NoError(t, err)
	require.Len(t, enc, 112)
}

func TestParseWadFrameTruncatedHeader(t *testing.T) {
	_, err := ParseWadFrame(make([]byte, 10))
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, Truncated, de.Kind)
}

func TestParseTicketFull(t *testing.T) {
	buf := make([]byte, ticketSize)
	for i := 0; i < 16; i++ {
		buf[ticketTitleKeyOff+i] = byte(i + 1)
	}
	for i := 0; i < 8; i++ {
		buf[ticketTitleIDOff+i] = byte(0x10 + i)
	}
	buf[ticketCommonKeyOff] = byte(CommonKeyRetail)

	ticket, err := ParseTicket(buf, 0)
	require.NoError(t, err)
	require.Equal(t, CommonKeyRetail, ticket.CommonKeyIndex)
	require.Equal(t, byte(1), ticket.EncryptedTitleKey[0])
	require.Equal(t, byte(0x10), ticket.TitleIDBytes[0])
}

func TestParseTicketShortFallback(t *testing.T) {
	buf := make([]byte, ticketCommonKeyOff+1)
	buf[ticketCommonKeyOff] = byte(CommonKeyRetail)

	ticket, err := ParseTicket(buf, 0)
	require.NoError(t, err)
	require.Equal(t, CommonKeyRetail, ticket.CommonKeyIndex)
}

func TestParseTicketTooShort(t *testing.T) {
	buf := make([]byte, 4)
	_, err := ParseTicket(buf, 0)
	require.Error(t, err)
}
