package wad

import "fmt"

const (
	wadAlign          = 64
	ticketTitleKeyOff = 0x1BF
	ticketTitleIDOff  = 0x1DC
	ticketCommonKeyOff = 0x1F5
	ticketSize         = 0x350

	tmdNumContentsOff = 0x1DE
	tmdContentsOff    = 0x1E4
	tmdRecordSize     = 36
)

// ParseWadFrame walks the 32-byte WAD header and successively 64-byte
// aligns each section (header, cert chain, ticket, TMD, data) per §4.4
// and §6.
func ParseWadFrame(buf []byte) (*WadFrame, error) {
	r := NewReader(buf)

	headerSize, err := r.U32()
	if err != nil {
		return nil, newErr(Truncated, "wad-header", err)
	}
	typ, err := r.U32()
	if err != nil {
		return nil, newErr(Truncated, "wad-header", err)
	}
	certChainLen, err := r.U32()
	if err != nil {
		return nil, newErr(Truncated, "wad-header", err)
	}
	if err := r.Skip(4); err != nil { // padding
		return nil, newErr(Truncated, "wad-header", err)
	}
	ticketLen, err := r.U32()
	if err != nil {
		return nil, newErr(Truncated, "wad-header", err)
	}
	tmdLen, err := r.U32()
	if err != nil {
		return nil, newErr(Truncated, "wad-header", err)
	}
	dataLen, err := r.U32()
	if err != nil {
		return nil, newErr(Truncated, "wad-header", err)
	}
	_, err = r.U32() // footerLen, unused by this port
	if err != nil {
		return nil, newErr(Truncated, "wad-header", err)
	}

	certOff := int64(Align(int(headerSize), wadAlign))
	ticketOff := certOff + int64(Align(int(certChainLen), wadAlign))
	tmdOff := ticketOff + int64(Align(int(ticketLen), wadAlign))
	dataOff := tmdOff + int64(Align(int(tmdLen), wadAlign))

	frame := &WadFrame{
		HeaderSize:   headerSize,
		Type:         typ,
		TicketOffset: ticketOff,
		TicketLen:    ticketLen,
		TMDOffset:    tmdOff,
		TMDLen:       tmdLen,
		DataOffset:   dataOff,
		raw:          buf,
	}

	contents, err := parseTMDContents(buf, tmdOff, dataOff)
	if err != nil {
		return nil, err
	}
	frame.Contents = contents

	_ = dataLen
	return frame, nil
}

func parseTMDContents(buf []byte, tmdOff, dataOff int64) ([]ContentRecord, error) {
	if tmdOff+tmdNumContentsOff+2 > int64(len(buf)) {
		return nil, newErr(Truncated, "tmd", fmt.Errorf("tmd too short for content count"))
	}
	r := NewReader(buf)
	if err := r.Seek(int(tmdOff) + tmdNumContentsOff); err != nil {
		return nil, newErr(Truncated, "tmd", err)
	}
	numContents, err := r.U16()
	if err != nil {
		return nil, newErr(Truncated, "tmd", err)
	}

	if err := r.Seek(int(tmdOff) + tmdContentsOff); err != nil {
		return nil, newErr(Truncated, "tmd", err)
	}

	contents := make([]ContentRecord, 0, numContents)
	offset := dataOff
	for i := 0; i < int(numContents); i++ {
		id, err := r.U32()
		if err != nil {
			return nil, newErr(Truncated, "tmd", err)
		}
		index, err := r.U16()
		if err != nil {
			return nil, newErr(Truncated, "tmd", err)
		}
		typ, err := r.U16()
		if err != nil {
			return nil, newErr(Truncated, "tmd", err)
		}
		sizeHi, err := r.U32()
		if err != nil {
			return nil, newErr(Truncated, "tmd", err)
		}
		sizeLo, err := r.U32()
		if err != nil {
			return nil, newErr(Truncated, "tmd", err)
		}
		if err := r.Skip(20); err != nil { // hash
			return nil, newErr(Truncated, "tmd", err)
		}

		size := uint64(sizeHi)<<32 | uint64(sizeLo)
		encSize := uint64(Align(int(size), 16))

		contents = append(contents, ContentRecord{
			ID:            id,
			Index:         index,
			Type:          typ,
			PlaintextSize: size,
			EncryptedSize: encSize,
			Offset:        offset,
			Name:          fmt.Sprintf("%08x.app", id),
		})

		offset += int64(Align(int(encSize), wadAlign))
	}

	return contents, nil
}

// ParseTicket decodes the fields needed to unwrap the title key (§4.3,
// §6). offset is the WAD's ticket section offset (WadFrame.TicketOffset).
func ParseTicket(buf []byte, offset int64) (*Ticket, error) {
	end := offset + ticketSize
	if end > int64(len(buf)) {
		// Some dumps carry a ticket shorter than the nominal 0x350;
		// fall back to what's required for the fields we read.
		need := offset + ticketCommonKeyOff + 1
		if need > int64(len(buf)) {
			return nil, newErr(Truncated, "ticket", fmt.Errorf("ticket truncated"))
		}
	}

	var t Ticket
	copy(t.EncryptedTitleKey[:], buf[offset+ticketTitleKeyOff:offset+ticketTitleKeyOff+16])
	copy(t.TitleIDBytes[:], buf[offset+ticketTitleIDOff:offset+ticketTitleIDOff+8])
	t.CommonKeyIndex = CommonKeyIndex(buf[offset+ticketCommonKeyOff])
	return &t, nil
}

// EncryptedContent returns the still-encrypted bytes for a content
// record, sliced out of the WAD's raw data.
func (f *WadFrame) EncryptedContent(c ContentRecord) ([]byte, error) {
	end := c.Offset + int64(c.EncryptedSize)
	if end > int64(len(f.raw)) {
		return nil, newErr(Truncated, "wad-content", fmt.Errorf("content %s out of range", c.Name))
	}
	return f.raw[c.Offset:end], nil
}
