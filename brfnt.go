package wad

import "fmt"

const (
	cmapDirect = 0
	cmapTable  = 1
	cmapScan   = 2
)

// DecodeBRFNT decodes a bitmap-font file: magic "RFNT", then FINF/TGLP/
// CWDH/CMAP sections (§4.12).
func DecodeBRFNT(buf []byte, log Logger) (*Font, error) {
	if log == nil {
		log = NopLogger{}
	}

	r := NewReader(buf)
	hdr, err := readFileHeader(r, "RFNT")
	if err != nil {
		return nil, err
	}
	if err := r.Seek(int(hdr.headerSize)); err != nil {
		return nil, newErr(Truncated, "brfnt", err)
	}

	font := &Font{CharWidths: make(map[int]CharWidth), CharMap: make(map[rune]int)}
	var cwdhHead, cmapHead uint32

	err = walkSections(r, int(hdr.sectionCount), func(sec section) error {
		body := NewReader(buf[sec.start+8 : sec.end])
		switch sec.tag {
		case "FINF":
			fi, cwdh, cmap, err := decodeFinf(body)
			if err != nil {
				return err
			}
			font.Info = fi
			cwdhHead, cmapHead = cwdh, cmap
			return nil
		case "TGLP":
			gi, sheets, err := decodeTglp(body, buf[sec.start+8:sec.end], log)
			if err != nil {
				log.Warn("brfnt: tglp: %s", err)
				return nil
			}
			font.Glyph = gi
			font.Sheets = sheets
			return nil
		default:
			return nil
		}
	})
	if err != nil {
		return nil, err
	}

	if cwdhHead != 0 {
		if err := walkCwdhChain(buf, cwdhHead, font); err != nil {
			log.Warn("brfnt: cwdh: %s", err)
		}
	}
	if cmapHead != 0 {
		if err := walkCmapChain(buf, cmapHead, font); err != nil {
			log.Warn("brfnt: cmap: %s", err)
		}
	}

	return font, nil
}

func decodeFinf(r *Reader) (FontInfo, uint32, uint32, error) {
	var fi FontInfo
	fontType, err := r.U8()
	if err != nil {
		return fi, 0, 0, newErr(Truncated, "finf", err)
	}
	fi.FontType = fontType

	height, err := r.U8()
	if err != nil {
		return fi, 0, 0, newErr(Truncated, "finf", err)
	}
	fi.Height = height

	defaultChar, err := r.U16()
	if err != nil {
		return fi, 0, 0, newErr(Truncated, "finf", err)
	}
	fi.DefaultChar = defaultChar

	width, err := r.U8()
	if err != nil {
		return fi, 0, 0, newErr(Truncated, "finf", err)
	}
	fi.Width = width

	ascent, err := r.U8()
	if err != nil {
		return fi, 0, 0, newErr(Truncated, "finf", err)
	}
	fi.Ascent = ascent

	if err := r.Skip(2); err != nil { // alignment pad
		return fi, 0, 0, newErr(Truncated, "finf", err)
	}

	if _, err := r.U32(); err != nil { // tglp offset, unused (TGLP section is walked directly)
		return fi, 0, 0, newErr(Truncated, "finf", err)
	}
	cwdh, err := r.U32()
	if err != nil {
		return fi, 0, 0, newErr(Truncated, "finf", err)
	}
	cmap, err := r.U32()
	if err != nil {
		return fi, 0, 0, newErr(Truncated, "finf", err)
	}

	return fi, cwdh, cmap, nil
}

func decodeTglp(r *Reader, sectionBody []byte, log Logger) (GlyphInfo, []*TplImage, error) {
	var gi GlyphInfo

	cellW, err := r.U8()
	if err != nil {
		return gi, nil, newErr(Truncated, "tglp", err)
	}
	gi.CellWidth = cellW
	cellH, err := r.U8()
	if err != nil {
		return gi, nil, newErr(Truncated, "tglp", err)
	}
	gi.CellHeight = cellH

	baseline, err := r.U8()
	if err != nil {
		return gi, nil, newErr(Truncated, "tglp", err)
	}
	gi.BaselinePos = baseline
	maxWidth, err := r.U8()
	if err != nil {
		return gi, nil, newErr(Truncated, "tglp", err)
	}
	gi.MaxCharWidth = maxWidth

	sheetSize, err := r.U32()
	if err != nil {
		return gi, nil, newErr(Truncated, "tglp", err)
	}
	sheetCount, err := r.U16()
	if err != nil {
		return gi, nil, newErr(Truncated, "tglp", err)
	}
	gi.SheetCount = int(sheetCount)

	sheetFormat, err := r.U16()
	if err != nil {
		return gi, nil, newErr(Truncated, "tglp", err)
	}
	gi.SheetFormat = TplFormat(sheetFormat)

	sheetW, err := r.U16()
	if err != nil {
		return gi, nil, newErr(Truncated, "tglp", err)
	}
	sheetH, err := r.U16()
	if err != nil {
		return gi, nil, newErr(Truncated, "tglp", err)
	}

	sheetDataOff, err := r.U32()
	if err != nil {
		return gi, nil, newErr(Truncated, "tglp", err)
	}

	sheets := make([]*TplImage, 0, gi.SheetCount)
	for i := 0; i < gi.SheetCount; i++ {
		off := int(sheetDataOff) + i*int(sheetSize)
		if off+int(sheetSize) > len(sectionBody) {
			log.Warn("brfnt: sheet %d out of range", i)
			continue
		}
		ih := tplImageHeader{
			height: int(sheetH), width: int(sheetW), format: gi.SheetFormat,
			dataOffset: uint32(off),
		}
		img, err := decodeTplImage(sectionBody, ih, nil, 0)
		if err != nil {
			log.Warn("brfnt: sheet %d: %s", i, err)
			img = placeholderImage(int(sheetW), int(sheetH), gi.SheetFormat)
		}
		sheets = append(sheets, img)
	}

	return gi, sheets, nil
}

func walkCwdhChain(buf []byte, head uint32, font *Font) error {
	off := head
	for off != 0 {
		r := NewReader(buf)
		if err := r.Seek(int(off)); err != nil {
			return newErr(Truncated, "cwdh", err)
		}
		startIdx, err := r.U16()
		if err != nil {
			return newErr(Truncated, "cwdh", err)
		}
		endIdx, err := r.U16()
		if err != nil {
			return newErr(Truncated, "cwdh", err)
		}
		next, err := r.U32()
		if err != nil {
			return newErr(Truncated, "cwdh", err)
		}

		for idx := int(startIdx); idx <= int(endIdx); idx++ {
			kerning, err := r.U8()
			if err != nil {
				return newErr(Truncated, "cwdh", err)
			}
			glyphWidth, err := r.U8()
			if err != nil {
				return newErr(Truncated, "cwdh", err)
			}
			advance, err := r.U8()
			if err != nil {
				return newErr(Truncated, "cwdh", err)
			}
			font.CharWidths[idx] = CharWidth{Kerning: int8(kerning), GlyphWidth: glyphWidth, Advance: advance}
		}

		off = next
	}
	return nil
}

func walkCmapChain(buf []byte, head uint32, font *Font) error {
	off := head
	for off != 0 {
		r := NewReader(buf)
		if err := r.Seek(int(off)); err != nil {
			return newErr(Truncated, "cmap", err)
		}
		codeBegin, err := r.U16()
		if err != nil {
			return newErr(Truncated, "cmap", err)
		}
		codeEnd, err := r.U16()
		if err != nil {
			return newErr(Truncated, "cmap", err)
		}
		method, err := r.U16()
		if err != nil {
			return newErr(Truncated, "cmap", err)
		}
		if err := r.Skip(2); err != nil {
			return newErr(Truncated, "cmap", err)
		}
		next, err := r.U32()
		if err != nil {
			return newErr(Truncated, "cmap", err)
		}

		switch method {
		case cmapDirect:
			indexOffset, err := r.U16()
			if err != nil {
				return newErr(Truncated, "cmap", err)
			}
			for code := int(codeBegin); code <= int(codeEnd); code++ {
				font.CharMap[rune(code)] = code - int(codeBegin) + int(indexOffset)
			}
		case cmapTable:
			count := int(codeEnd) - int(codeBegin) + 1
			for i := 0; i < count; i++ {
				idx, err := r.U16()
				if err != nil {
					return newErr(Truncated, "cmap", err)
				}
				if idx == 0xFFFF {
					continue
				}
				font.CharMap[rune(int(codeBegin)+i)] = int(idx)
			}
		case cmapScan:
			count, err := r.U16()
			if err != nil {
				return newErr(Truncated, "cmap", err)
			}
			if err := r.Skip(2); err != nil {
				return newErr(Truncated, "cmap", err)
			}
			for i := 0; i < int(count); i++ {
				code, err := r.U16()
				if err != nil {
					return newErr(Truncated, "cmap", err)
				}
				idx, err := r.U16()
				if err != nil {
					return newErr(Truncated, "cmap", err)
				}
				font.CharMap[rune(code)] = int(idx)
			}
		default:
			return newErr(UnsupportedFormat, "cmap", fmt.Errorf("mapping method %d", method))
		}

		off = next
	}
	return nil
}

// CodepointToGlyph resolves a code point to a glyph index, falling back
// to FontInfo.DefaultChar for unmapped code points (§8 S7).
func (f *Font) CodepointToGlyph(r rune) int {
	if idx, ok := f.CharMap[r]; ok {
		return idx
	}
	return int(f.Info.DefaultChar)
}
