package wad

import "fmt"

// fileHeader is the common chunked-format header shared by BRLYT, BRLAN
// and BRFNT (§6): 4-byte ASCII magic, BOM 0xFEFF, version, file size,
// header size, section count.
type fileHeader struct {
	magic         string
	byteOrderMark uint16
	version       uint16
	fileSize      uint32
	headerSize    uint16
	sectionCount  uint16
}

func readFileHeader(r *Reader, wantMagic string) (fileHeader, error) {
	magicB, err := r.Slice(4)
	if err != nil {
		return fileHeader{}, newErr(Truncated, wantMagic, err)
	}
	if string(magicB) != wantMagic {
		return fileHeader{}, newErr(BadMagic, wantMagic, fmt.Errorf("got %q", magicB))
	}
	bom, err := r.U16()
	if err != nil {
		return fileHeader{}, newErr(Truncated, wantMagic, err)
	}
	version, err := r.U16()
	if err != nil {
		return fileHeader{}, newErr(Truncated, wantMagic, err)
	}
	fileSize, err := r.U32()
	if err != nil {
		return fileHeader{}, newErr(Truncated, wantMagic, err)
	}
	headerSize, err := r.U16()
	if err != nil {
		return fileHeader{}, newErr(Truncated, wantMagic, err)
	}
	sectionCount, err := r.U16()
	if err != nil {
		return fileHeader{}, newErr(Truncated, wantMagic, err)
	}
	return fileHeader{
		magic: wantMagic, byteOrderMark: bom, version: version,
		fileSize: fileSize, headerSize: headerSize, sectionCount: sectionCount,
	}, nil
}

// section is one tag+size chunk; start is the absolute offset of its
// 8-byte tag+size header (the body follows immediately after) and end is
// the absolute offset one past the section body.
type section struct {
	tag   string
	start int // absolute offset of the section header (tag bytes)
	end   int // absolute offset one past the section body
}

// walkSections reads sectionCount tag+size headers starting at the
// reader's current position, yielding each section's body bounds via fn.
// Every format in §4.7/§4.8/§4.12 uses this same "4-byte tag + u32 size
// including the 8-byte header" convention (§6).
func walkSections(r *Reader, count int, fn func(sec section) error) error {
	for i := 0; i < count; i++ {
		secStart := r.Pos()
		tagB, err := r.Slice(4)
		if err != nil {
			return newErr(Truncated, "section", err)
		}
		size, err := r.U32()
		if err != nil {
			return newErr(Truncated, "section", err)
		}
		secEnd := secStart + int(size)
		if secEnd > r.Len() || size < 8 {
			return newErr(Truncated, "section", fmt.Errorf("section %s bad size %d", tagB, size))
		}

		if err := fn(section{tag: string(tagB), start: secStart, end: secEnd}); err != nil {
			return err
		}

		if err := r.Seek(secEnd); err != nil {
			return newErr(Truncated, "section", err)
		}
	}
	return nil
}
