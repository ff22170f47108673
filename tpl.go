package wad

import "fmt"

const (
	tplMagic        = 0x0020AF30
	tplImageHdrSize = 0x24
)

// magentaPixel substitutes for an unsupported TPL format per §7's
// UnsupportedFormat policy ("substitute a placeholder: magenta for
// textures").
var magentaPixel = [4]byte{255, 0, 255, 255}

type tplImageHeader struct {
	height, width   int
	format          TplFormat
	dataOffset      uint32
	wrapS, wrapT    uint32
	filterMin, filterMag uint32
	lodBias         float32
	lodFlags        uint32
}

type tplPaletteHeader struct {
	count      int
	format     byte
	dataOffset uint32
}

// DecodeTPL decodes every image table entry in a TPL file, returning an
// ordered sequence matching §3/§4.6/§6 ("multi-image TPLs produce an
// ordered sequence").
func DecodeTPL(buf []byte, log Logger) ([]*TplImage, error) {
	if log == nil {
		log = NopLogger{}
	}

	r := NewReader(buf)
	magic, err := r.U32()
	if err != nil || magic != tplMagic {
		return nil, newErr(BadMagic, "tpl", fmt.Errorf("bad tpl magic"))
	}
	numImages, err := r.U32()
	if err != nil {
		return nil, newErr(Truncated, "tpl", err)
	}
	imageTableOffset, err := r.U32()
	if err != nil {
		return nil, newErr(Truncated, "tpl", err)
	}

	images := make([]*TplImage, 0, numImages)
	for i := 0; i < int(numImages); i++ {
		entryOff := int(imageTableOffset) + i*8
		if err := r.Seek(entryOff); err != nil {
			return nil, newErr(Truncated, "tpl", err)
		}
		imgHdrOff, err := r.U32()
		if err != nil {
			return nil, newErr(Truncated, "tpl", err)
		}
		paletteHdrOff, err := r.U32()
		if err != nil {
			return nil, newErr(Truncated, "tpl", err)
		}

		ih, err := readTplImageHeader(buf, int(imgHdrOff))
		if err != nil {
			log.Warn("tpl: image %d: %s", i, err)
			continue
		}

		var pal []rgba
		var palFmt byte
		if isPaletted(ih.format) && paletteHdrOff != 0 {
			ph, err := readTplPaletteHeader(buf, int(paletteHdrOff))
			if err != nil {
				log.Warn("tpl: image %d palette: %s", i, err)
			} else {
				pal, err = decodePalette(buf, ph)
				if err != nil {
					log.Warn("tpl: image %d palette decode: %s", i, err)
				}
				palFmt = ph.format
			}
		}

		img, err := decodeTplImage(buf, ih, pal, palFmt)
		if err != nil {
			log.Warn("tpl: image %d: %s", i, err)
			img = placeholderImage(ih.width, ih.height, ih.format)
		}
		images = append(images, img)
	}

	return images, nil
}

func isPaletted(f TplFormat) bool {
	return f == FormatCI4 || f == FormatCI8 || f == FormatCI14X2
}

func readTplImageHeader(buf []byte, off int) (tplImageHeader, error) {
	r := NewReader(buf)
	if err := r.Seek(off); err != nil {
		return tplImageHeader{}, newErr(Truncated, "tpl-image-header", err)
	}
	height, err := r.U16()
	if err != nil {
		return tplImageHeader{}, newErr(Truncated, "tpl-image-header", err)
	}
	width, err := r.U16()
	if err != nil {
		return tplImageHeader{}, newErr(Truncated, "tpl-image-header", err)
	}
	format, err := r.U32()
	if err != nil {
		return tplImageHeader{}, newErr(Truncated, "tpl-image-header", err)
	}
	dataOffset, err := r.U32()
	if err != nil {
		return tplImageHeader{}, newErr(Truncated, "tpl-image-header", err)
	}
	wrapS, err := r.U32()
	if err != nil {
		return tplImageHeader{}, newErr(Truncated, "tpl-image-header", err)
	}
	wrapT, err := r.U32()
	if err != nil {
		return tplImageHeader{}, newErr(Truncated, "tpl-image-header", err)
	}
	filterMin, err := r.U32()
	if err != nil {
		return tplImageHeader{}, newErr(Truncated, "tpl-image-header", err)
	}
	filterMag, err := r.U32()
	if err != nil {
		return tplImageHeader{}, newErr(Truncated, "tpl-image-header", err)
	}
	lodBias, err := r.F32()
	if err != nil {
		return tplImageHeader{}, newErr(Truncated, "tpl-image-header", err)
	}
	lodFlags, err := r.U32()
	if err != nil {
		return tplImageHeader{}, newErr(Truncated, "tpl-image-header", err)
	}

	return tplImageHeader{
		height: int(height), width: int(width), format: TplFormat(format),
		dataOffset: dataOffset, wrapS: wrapS, wrapT: wrapT,
		filterMin: filterMin, filterMag: filterMag,
		lodBias: lodBias, lodFlags: lodFlags,
	}, nil
}

func readTplPaletteHeader(buf []byte, off int) (tplPaletteHeader, error) {
	r := NewReader(buf)
	if err := r.Seek(off); err != nil {
		return tplPaletteHeader{}, newErr(Truncated, "tpl-palette-header", err)
	}
	count, err := r.U16()
	if err != nil {
		return tplPaletteHeader{}, newErr(Truncated, "tpl-palette-header", err)
	}
	if err := r.Skip(2); err != nil { // pad
		return tplPaletteHeader{}, newErr(Truncated, "tpl-palette-header", err)
	}
	format, err := r.U32()
	if err != nil {
		return tplPaletteHeader{}, newErr(Truncated, "tpl-palette-header", err)
	}
	dataOffset, err := r.U32()
	if err != nil {
		return tplPaletteHeader{}, newErr(Truncated, "tpl-palette-header", err)
	}
	return tplPaletteHeader{count: int(count), format: byte(format), dataOffset: dataOffset}, nil
}

type rgba struct{ r, g, b, a byte }

// decodePalette decodes a palette of the sub-format named in §4.6
// (0=IA8, 1=RGB565, 2=RGB5A3).
func decodePalette(buf []byte, ph tplPaletteHeader) ([]rgba, error) {
	out := make([]rgba, ph.count)
	r := NewReader(buf)
	if err := r.Seek(int(ph.dataOffset)); err != nil {
		return nil, newErr(Truncated, "tpl-palette", err)
	}
	for i := 0; i < ph.count; i++ {
		v, err := r.U16()
		if err != nil {
			return nil, newErr(Truncated, "tpl-palette", err)
		}
		switch ph.format {
		case 0: // IA8
			a := byte(v >> 8)
			in := byte(v)
			out[i] = rgba{in, in, in, a}
		case 1: // RGB565
			out[i] = rgb565ToRGBA(v)
		case 2: // RGB5A3
			out[i] = rgb5a3ToRGBA(v)
		default:
			out[i] = rgba{255, 0, 255, 255}
		}
	}
	return out, nil
}

func placeholderImage(w, h int, format TplFormat) *TplImage {
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	px := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		copy(px[i*4:i*4+4], magentaPixel[:])
	}
	return &TplImage{Width: w, Height: h, Format: format, Pixels: px}
}

// decodeTplImage dispatches to the format-specific detiler table in
// §4.6.
func decodeTplImage(buf []byte, ih tplImageHeader, pal []rgba, palFmt byte) (*TplImage, error) {
	img := &TplImage{Width: ih.width, Height: ih.height, Format: ih.format, Pixels: make([]byte, ih.width*ih.height*4)}

	set := func(x, y int, c rgba) {
		if x < 0 || y < 0 || x >= ih.width || y >= ih.height {
			return // out-of-range block coordinates write no pixel (§4.6)
		}
		i := (y*ih.width + x) * 4
		img.Pixels[i+0] = c.r
		img.Pixels[i+1] = c.g
		img.Pixels[i+2] = c.b
		img.Pixels[i+3] = c.a
	}

	r := NewReader(buf)
	if err := r.Seek(int(ih.dataOffset)); err != nil {
		return nil, newErr(Truncated, "tpl-data", err)
	}

	switch ih.format {
	case FormatI4:
		return img, decodeBlocks(r, ih.width, ih.height, 8, 8, func(bx, by int) error {
			for row := 0; row < 8; row++ {
				for col := 0; col < 8; col += 2 {
					b, err := r.U8()
					if err != nil {
						return err
					}
					hi := (b >> 4) * 17
					lo := (b & 0xF) * 17
					set(bx+col, by+row, rgba{hi, hi, hi, 255})
					set(bx+col+1, by+row, rgba{lo, lo, lo, 255})
				}
			}
			return nil
		})
	case FormatI8:
		return img, decodeBlocks(r, ih.width, ih.height, 8, 4, func(bx, by int) error {
			for row := 0; row < 4; row++ {
				for col := 0; col < 8; col++ {
					b, err := r.U8()
					if err != nil {
						return err
					}
					set(bx+col, by+row, rgba{b, b, b, 255})
				}
			}
			return nil
		})
	case FormatIA4:
		return img, decodeBlocks(r, ih.width, ih.height, 8, 4, func(bx, by int) error {
			for row := 0; row < 4; row++ {
				for col := 0; col < 8; col++ {
					b, err := r.U8()
					if err != nil {
						return err
					}
					a := (b >> 4) * 17
					in := (b & 0xF) * 17
					set(bx+col, by+row, rgba{in, in, in, a})
				}
			}
			return nil
		})
	case FormatIA8:
		return img, decodeBlocks(r, ih.width, ih.height, 4, 4, func(bx, by int) error {
			for row := 0; row < 4; row++ {
				for col := 0; col < 4; col++ {
					a, err := r.U8()
					if err != nil {
						return err
					}
					in, err := r.U8()
					if err != nil {
						return err
					}
					set(bx+col, by+row, rgba{in, in, in, a})
				}
			}
			return nil
		})
	case FormatRGB565:
		return img, decodeBlocks(r, ih.width, ih.height, 4, 4, func(bx, by int) error {
			for row := 0; row < 4; row++ {
				for col := 0; col < 4; col++ {
					v, err := r.U16()
					if err != nil {
						return err
					}
					set(bx+col, by+row, rgb565ToRGBA(v))
				}
			}
			return nil
		})
	case FormatRGB5A3:
		return img, decodeBlocks(r, ih.width, ih.height, 4, 4, func(bx, by int) error {
			for row := 0; row < 4; row++ {
				for col := 0; col < 4; col++ {
					v, err := r.U16()
					if err != nil {
						return err
					}
					set(bx+col, by+row, rgb5a3ToRGBA(v))
				}
			}
			return nil
		})
	case FormatRGBA8:
		return img, decodeRGBA8(r, ih.width, ih.height, set)
	case FormatCI4:
		return img, decodeBlocks(r, ih.width, ih.height, 8, 8, func(bx, by int) error {
			for row := 0; row < 8; row++ {
				for col := 0; col < 8; col += 2 {
					b, err := r.U8()
					if err != nil {
						return err
					}
					set(bx+col, by+row, paletteLookup(pal, int(b>>4)))
					set(bx+col+1, by+row, paletteLookup(pal, int(b&0xF)))
				}
			}
			return nil
		})
	case FormatCI8:
		return img, decodeBlocks(r, ih.width, ih.height, 8, 4, func(bx, by int) error {
			for row := 0; row < 4; row++ {
				for col := 0; col < 8; col++ {
					b, err := r.U8()
					if err != nil {
						return err
					}
					set(bx+col, by+row, paletteLookup(pal, int(b)))
				}
			}
			return nil
		})
	case FormatCI14X2:
		return img, decodeBlocks(r, ih.width, ih.height, 4, 4, func(bx, by int) error {
			for row := 0; row < 4; row++ {
				for col := 0; col < 4; col++ {
					v, err := r.U16()
					if err != nil {
						return err
					}
					// §9 open question: primary reading is the high 14
					// bits (packed >> 2) & 0x3FFF; CI14X2HighBits lets a
					// caller switch to the low-14-bits reading instead.
					var idx int
					if CI14X2HighBits {
						idx = int(v>>2) & 0x3FFF
					} else {
						idx = int(v) & 0x3FFF
					}
					set(bx+col, by+row, paletteLookup(pal, idx))
				}
			}
			return nil
		})
	case FormatCMPR:
		return img, decodeCMPR(r, ih.width, ih.height, set)
	default:
		return nil, newErr(UnsupportedFormat, "tpl", fmt.Errorf("format %d", ih.format))
	}
}

func paletteLookup(pal []rgba, idx int) rgba {
	if idx < 0 || idx >= len(pal) {
		return rgba{255, 0, 255, 255}
	}
	return pal[idx]
}

func rgb565ToRGBA(v uint16) rgba {
	r5 := byte(v>>11) & 0x1F
	g6 := byte(v>>5) & 0x3F
	b5 := byte(v) & 0x1F
	return rgba{expand5(r5), expand6(g6), expand5(b5), 255}
}

func rgb5a3ToRGBA(v uint16) rgba {
	if v&0x8000 != 0 {
		r5 := byte(v>>10) & 0x1F
		g5 := byte(v>>5) & 0x1F
		b5 := byte(v) & 0x1F
		return rgba{expand5(r5), expand5(g5), expand5(b5), 255}
	}
	a3 := byte(v>>12) & 0x7
	r4 := byte(v>>8) & 0xF
	g4 := byte(v>>4) & 0xF
	b4 := byte(v) & 0xF
	return rgba{expand4(r4), expand4(g4), expand4(b4), expand3(a3)}
}

func expand5(v byte) byte  { return v<<3 | v>>2 }
func expand6(v byte) byte  { return v<<2 | v>>4 }
func expand4(v byte) byte  { return v<<4 | v }
func expand3(v byte) byte  { return v<<5 | v<<2 | v>>1 }

// decodeBlocks iterates an image's super-blocks of blockW x blockH, in
// row-major block order, matching the pattern-table tile walk the
// teacher uses for CHR decode (nes/ppu.go's background/sprite draw
// loops).
func decodeBlocks(r *Reader, width, height, blockW, blockH int, decodeOne func(bx, by int) error) error {
	for by := 0; by < height; by += blockH {
		for bx := 0; bx < width; bx += blockW {
			if err := decodeOne(bx, by); err != nil {
				return newErr(Truncated, "tpl-block", err)
			}
		}
	}
	return nil
}

// decodeRGBA8 is the two-plane 4x4 format: an AR plane followed by a GB
// plane for the same block (§4.6).
func decodeRGBA8(r *Reader, width, height int, set func(x, y int, c rgba)) error {
	for by := 0; by < height; by += 4 {
		for bx := 0; bx < width; bx += 4 {
			var a, red [16]byte
			for i := 0; i < 16; i++ {
				ar, err := r.U16()
				if err != nil {
					return newErr(Truncated, "tpl-rgba8", err)
				}
				a[i] = byte(ar >> 8)
				red[i] = byte(ar)
			}
			var g, b [16]byte
			for i := 0; i < 16; i++ {
				gb, err := r.U16()
				if err != nil {
					return newErr(Truncated, "tpl-rgba8", err)
				}
				g[i] = byte(gb >> 8)
				b[i] = byte(gb)
			}
			for row := 0; row < 4; row++ {
				for col := 0; col < 4; col++ {
					i := row*4 + col
					set(bx+col, by+row, rgba{red[i], g[i], b[i], a[i]})
				}
			}
		}
	}
	return nil
}

// decodeCMPR decodes the DXT1-like format: 8x8 super-blocks of four 4x4
// sub-blocks each, per §4.6/§8 S6.
func decodeCMPR(r *Reader, width, height int, set func(x, y int, c rgba)) error {
	for by := 0; by < height; by += 8 {
		for bx := 0; bx < width; bx += 8 {
			for sub := 0; sub < 4; sub++ {
				sx := bx + (sub%2)*4
				sy := by + (sub/2)*4
				if err := decodeCMPRSubBlock(r, sx, sy, set); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func decodeCMPRSubBlock(r *Reader, bx, by int, set func(x, y int, c rgba)) error {
	c0v, err := r.U16()
	if err != nil {
		return newErr(Truncated, "cmpr", err)
	}
	c1v, err := r.U16()
	if err != nil {
		return newErr(Truncated, "cmpr", err)
	}
	idxBytes, err := r.Slice(4)
	if err != nil {
		return newErr(Truncated, "cmpr", err)
	}

	c0 := rgb565ToRGBA(c0v)
	c1 := rgb565ToRGBA(c1v)

	var palette [4]rgba
	palette[0] = c0
	palette[1] = c1
	if c0v > c1v {
		palette[2] = avgRGBA(c0, c1, 2, 1)
		palette[3] = avgRGBA(c0, c1, 1, 2)
	} else {
		palette[2] = avgRGBA(c0, c1, 1, 1)
		palette[3] = rgba{0, 0, 0, 0} // punch-through alpha (§8 S6)
	}

	idx := uint32(idxBytes[0])<<24 | uint32(idxBytes[1])<<16 | uint32(idxBytes[2])<<8 | uint32(idxBytes[3])
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			shift := uint(30 - (row*4+col)*2)
			sel := (idx >> shift) & 0x3
			set(bx+col, by+row, palette[sel])
		}
	}
	return nil
}

func avgRGBA(a, b rgba, wa, wb int) rgba {
	w := wa + wb
	return rgba{
		r: byte((int(a.r)*wa + int(b.r)*wb) / w),
		g: byte((int(a.g)*wa + int(b.g)*wb) / w),
		b: byte((int(a.b)*wa + int(b.b)*wb) / w),
		a: 255,
	}
}
