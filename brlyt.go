package wad

import (
	"unicode/utf16"
)

const (
	paneNameLen    = 20
	materialNameLen = 20
	groupNameLen   = 16

	defaultBannerW, defaultBannerH = 608, 456
	defaultIconW, defaultIconH     = 128, 128
)

// DecodeBRLYT decodes a layout file: magic "RLYT" then a sectioned walk
// over lyt1/txl1/fnl1/mat1/grp1/pan1|pic1|txt1|bnd1|wnd1/pas1/pae1, per
// §4.7.
func DecodeBRLYT(buf []byte, log Logger) (*Layout, error) {
	if log == nil {
		log = NopLogger{}
	}

	r := NewReader(buf)
	hdr, err := readFileHeader(r, "RLYT")
	if err != nil {
		return nil, err
	}
	if err := r.Seek(int(hdr.headerSize)); err != nil {
		return nil, newErr(Truncated, "brlyt", err)
	}

	lay := &Layout{}

	// parentStack holds indices into lay.Panes; pas1 pushes the last
	// declared pane, pae1 pops (§4.7: "push-at-any-depth, pop matches").
	var parentStack []int
	lastPaneIdx := -1

	err = walkSections(r, int(hdr.sectionCount), func(sec section) error {
		body := NewReader(buf[sec.start+8 : sec.end])

		switch sec.tag {
		case "lyt1":
			return decodeLyt1(body, lay)
		case "txl1":
			names, err := decodeNameOffsetTable(body, buf[sec.start+8:sec.end])
			if err != nil {
				return err
			}
			lay.Textures = names
			return nil
		case "fnl1":
			names, err := decodeNameOffsetTable(body, buf[sec.start+8:sec.end])
			if err != nil {
				return err
			}
			lay.Fonts = names
			return nil
		case "mat1":
			mats, err := decodeMat1(body)
			if err != nil {
				log.Warn("brlyt: mat1: %s", err)
				return nil
			}
			lay.Materials = mats
			return nil
		case "grp1":
			g, err := decodeGrp1(body)
			if err != nil {
				log.Warn("brlyt: grp1: %s", err)
				return nil
			}
			lay.Groups = append(lay.Groups, g)
			return nil
		case "pan1", "pic1", "txt1", "bnd1", "wnd1":
			kind := paneKindForTag(sec.tag)
			parent := -1
			if len(parentStack) > 0 {
				parent = parentStack[len(parentStack)-1]
			}
			p, err := decodePaneSection(body, kind, parent, lay.Materials)
			if err != nil {
				log.Warn("brlyt: %s: %s", sec.tag, err)
				return nil
			}
			if parent >= 0 && parent < len(lay.Panes) {
				p.ParentName = lay.Panes[parent].Name
			}
			lay.Panes = append(lay.Panes, p)
			lastPaneIdx = len(lay.Panes) - 1
			return nil
		case "pas1":
			parentStack = append(parentStack, lastPaneIdx)
			return nil
		case "pae1":
			if len(parentStack) > 0 {
				parentStack = parentStack[:len(parentStack)-1]
			}
			return nil
		default:
			return nil // unknown section: skip, not fatal
		}
	})
	if err != nil {
		return nil, err
	}

	return lay, nil
}

func paneKindForTag(tag string) PaneKind {
	switch tag {
	case "pic1":
		return PaneKindPicture
	case "txt1":
		return PaneKindText
	case "bnd1":
		return PaneKindBounding
	case "wnd1":
		return PaneKindWindow
	default:
		return PaneKindPane
	}
}

func decodeLyt1(r *Reader, lay *Layout) error {
	if _, err := r.U8(); err != nil { // origin/coordinate flag, unused by this port
		return newErr(Truncated, "lyt1", err)
	}
	if err := r.Skip(3); err != nil {
		return newErr(Truncated, "lyt1", err)
	}
	w, err := r.F32()
	if err != nil {
		return newErr(Truncated, "lyt1", err)
	}
	h, err := r.F32()
	if err != nil {
		return newErr(Truncated, "lyt1", err)
	}
	lay.Width, lay.Height = w, h
	return nil
}

// decodeNameOffsetTable reads a u32 count followed by that many u32
// section-relative name offsets (§4.7: "offset table of null-terminated
// names").
func decodeNameOffsetTable(r *Reader, sectionBody []byte) ([]string, error) {
	count, err := r.U32()
	if err != nil {
		return nil, newErr(Truncated, "name-table", err)
	}
	names := make([]string, 0, count)
	for i := 0; i < int(count); i++ {
		off, err := r.U32()
		if err != nil {
			return nil, newErr(Truncated, "name-table", err)
		}
		nr := NewReader(sectionBody)
		if err := nr.Seek(int(off)); err != nil {
			return nil, newErr(Truncated, "name-table", err)
		}
		name, err := nr.NullString()
		if err != nil {
			return nil, newErr(Truncated, "name-table", err)
		}
		names = append(names, name)
	}
	return names, nil
}

// decodeMat1 decodes the material array (§3, §4.7): a u32 count, then
// that many section-relative material offsets, each pointing at a
// 20-byte name, three 4xu16 color palettes, and a packed flags word.
func decodeMat1(r *Reader) ([]Material, error) {
	body := r.buf
	count, err := r.U32()
	if err != nil {
		return nil, newErr(Truncated, "mat1", err)
	}

	offsets := make([]int, count)
	for i := range offsets {
		off, err := r.U32()
		if err != nil {
			return nil, newErr(Truncated, "mat1", err)
		}
		offsets[i] = int(off)
	}

	mats := make([]Material, 0, count)
	for _, off := range offsets {
		mr := NewReader(body)
		if err := mr.Seek(off); err != nil {
			return nil, newErr(Truncated, "mat1", err)
		}
		m, err := decodeMaterial(mr)
		if err != nil {
			return nil, err
		}
		mats = append(mats, m)
	}
	return mats, nil
}

func decodeMaterial(r *Reader) (Material, error) {
	var m Material

	name, err := r.String(materialNameLen)
	if err != nil {
		return m, newErr(Truncated, "material", err)
	}
	m.Name = name

	for _, dst := range []*[4]int16{&m.Color1, &m.Color2, &m.Color3} {
		for i := 0; i < 4; i++ {
			v, err := r.I16()
			if err != nil {
				return m, newErr(Truncated, "material", err)
			}
			dst[i] = v
		}
	}

	flags, err := r.U32()
	if err != nil {
		return m, newErr(Truncated, "material", err)
	}
	m.Flags = flags

	// Counts are packed in flags' low nibbles (§3).
	texMapCount := int(flags & 0xF)
	texSRTCount := int((flags >> 4) & 0xF)
	texCoordGenCount := int((flags >> 8) & 0xF)
	m.TexCoordGens = texCoordGenCount

	for i := 0; i < texMapCount; i++ {
		idx, err := r.U8()
		if err != nil {
			return m, newErr(Truncated, "material-texmap", err)
		}
		wrapS, err := r.U8()
		if err != nil {
			return m, newErr(Truncated, "material-texmap", err)
		}
		wrapT, err := r.U8()
		if err != nil {
			return m, newErr(Truncated, "material-texmap", err)
		}
		if err := r.Skip(1); err != nil {
			return m, newErr(Truncated, "material-texmap", err)
		}
		m.TextureMaps = append(m.TextureMaps, TextureMap{TextureIndex: int(idx), WrapS: wrapS, WrapT: wrapT})
	}

	for i := 0; i < texSRTCount; i++ {
		xt, err := r.F32()
		if err != nil {
			return m, newErr(Truncated, "material-srt", err)
		}
		yt, err := r.F32()
		if err != nil {
			return m, newErr(Truncated, "material-srt", err)
		}
		rot, err := r.F32()
		if err != nil {
			return m, newErr(Truncated, "material-srt", err)
		}
		xs, err := r.F32()
		if err != nil {
			return m, newErr(Truncated, "material-srt", err)
		}
		ys, err := r.F32()
		if err != nil {
			return m, newErr(Truncated, "material-srt", err)
		}
		m.TextureSRTs = append(m.TextureSRTs, TextureSRT{XTrans: xt, YTrans: yt, Rotation: rot, XScale: xs, YScale: ys})
	}

	return m, nil
}

func decodeGrp1(r *Reader) (Group, error) {
	var g Group
	name, err := r.String(groupNameLen)
	if err != nil {
		return g, newErr(Truncated, "grp1", err)
	}
	g.Name = name

	count, err := r.U16()
	if err != nil {
		return g, newErr(Truncated, "grp1", err)
	}
	if err := r.Skip(2); err != nil {
		return g, newErr(Truncated, "grp1", err)
	}
	for i := 0; i < int(count); i++ {
		pn, err := r.String(groupNameLen)
		if err != nil {
			return g, newErr(Truncated, "grp1", err)
		}
		g.PaneNames = append(g.PaneNames, pn)
	}
	return g, nil
}

// decodePaneSection decodes the shared 68-byte pane header (§3) plus the
// subtype-specific trailer for kind.
func decodePaneSection(r *Reader, kind PaneKind, parent int, materials []Material) (Pane, error) {
	var p Pane
	p.Kind = kind
	p.Parent = parent

	flags, err := r.U8()
	if err != nil {
		return p, newErr(Truncated, "pane", err)
	}
	p.Visible = flags&0x1 != 0

	origin, err := r.U8()
	if err != nil {
		return p, newErr(Truncated, "pane", err)
	}
	p.Origin = Origin(origin)

	alpha, err := r.U8()
	if err != nil {
		return p, newErr(Truncated, "pane", err)
	}
	p.Alpha = alpha

	if err := r.Skip(1); err != nil { // padding
		return p, newErr(Truncated, "pane", err)
	}

	name, err := r.String(paneNameLen)
	if err != nil {
		return p, newErr(Truncated, "pane", err)
	}
	p.Name = name

	if err := readVec3(r, &p.Translate); err != nil {
		return p, err
	}
	if err := readVec3(r, &p.Rotate); err != nil {
		return p, err
	}
	if err := readVec2(r, &p.Scale); err != nil {
		return p, err
	}
	if err := readVec2(r, &p.Size); err != nil {
		return p, err
	}
	if _, err := r.U32(); err != nil { // reserved user-data offset
		return p, newErr(Truncated, "pane", err)
	}

	p.MaterialIdx = -1
	p.FontIdx = -1

	switch kind {
	case PaneKindPicture:
		if err := decodePic1Trailer(r, &p, materials); err != nil {
			return p, err
		}
	case PaneKindText:
		if err := decodeTxt1Trailer(r, &p); err != nil {
			return p, err
		}
	}

	return p, nil
}

func readVec3(r *Reader, v *Vec3) error {
	x, err := r.F32()
	if err != nil {
		return newErr(Truncated, "vec3", err)
	}
	y, err := r.F32()
	if err != nil {
		return newErr(Truncated, "vec3", err)
	}
	z, err := r.F32()
	if err != nil {
		return newErr(Truncated, "vec3", err)
	}
	*v = Vec3{X: x, Y: y, Z: z}
	return nil
}

func readVec2(r *Reader, v *Vec2) error {
	x, err := r.F32()
	if err != nil {
		return newErr(Truncated, "vec2", err)
	}
	y, err := r.F32()
	if err != nil {
		return newErr(Truncated, "vec2", err)
	}
	*v = Vec2{X: x, Y: y}
	return nil
}

func decodePic1Trailer(r *Reader, p *Pane, materials []Material) error {
	for i := 0; i < 4; i++ {
		c, err := r.Slice(4)
		if err != nil {
			return newErr(Truncated, "pic1", err)
		}
		copy(p.VertexColors[i][:], c)
	}

	matIdx, err := r.U16()
	if err != nil {
		return newErr(Truncated, "pic1", err)
	}
	p.MaterialIdx = int(matIdx)
	if err := r.Skip(2); err != nil {
		return newErr(Truncated, "pic1", err)
	}

	numGens := 1
	if p.MaterialIdx >= 0 && p.MaterialIdx < len(materials) {
		numGens = materials[p.MaterialIdx].TexCoordGens
		if numGens == 0 {
			numGens = 1
		}
	}

	p.TexCoords = make([][4]TexCoord, numGens)
	for g := 0; g < numGens; g++ {
		var quad [4]TexCoord
		for corner := 0; corner < 4; corner++ {
			s, err := r.F32()
			if err != nil {
				return newErr(Truncated, "pic1-texcoord", err)
			}
			t, err := r.F32()
			if err != nil {
				return newErr(Truncated, "pic1-texcoord", err)
			}
			quad[corner] = TexCoord{S: s, T: t}
		}
		p.TexCoords[g] = quad
	}
	return nil
}

func decodeTxt1Trailer(r *Reader, p *Pane) error {
	textBufferBytes, err := r.U16()
	if err != nil {
		return newErr(Truncated, "txt1", err)
	}
	textLenBytes, err := r.U16()
	if err != nil {
		return newErr(Truncated, "txt1", err)
	}
	matIdx, err := r.U16()
	if err != nil {
		return newErr(Truncated, "txt1", err)
	}
	p.MaterialIdx = int(matIdx)
	fontIdx, err := r.U16()
	if err != nil {
		return newErr(Truncated, "txt1", err)
	}
	p.FontIdx = int(fontIdx)

	posFlags, err := r.U8()
	if err != nil {
		return newErr(Truncated, "txt1", err)
	}
	p.PositionFlags = posFlags
	align, err := r.U8()
	if err != nil {
		return newErr(Truncated, "txt1", err)
	}
	p.Alignment = align
	if err := r.Skip(2); err != nil {
		return newErr(Truncated, "txt1", err)
	}

	top, err := r.Slice(4)
	if err != nil {
		return newErr(Truncated, "txt1", err)
	}
	copy(p.TopColor[:], top)
	bottom, err := r.Slice(4)
	if err != nil {
		return newErr(Truncated, "txt1", err)
	}
	copy(p.BottomColor[:], bottom)

	if err := readVec2(r, &p.TextSize); err != nil {
		return err
	}
	spacing, err := r.F32()
	if err != nil {
		return newErr(Truncated, "txt1", err)
	}
	p.CharSpacing = spacing
	lineSpacing, err := r.F32()
	if err != nil {
		return newErr(Truncated, "txt1", err)
	}
	p.LineSpacing = lineSpacing

	textOff, err := r.U32()
	if err != nil {
		return newErr(Truncated, "txt1", err)
	}

	// "Malformed or zero-sized payloads resolve to empty text" (§4.7).
	if textOff == 0 || textLenBytes == 0 {
		p.Text = ""
		return nil
	}
	tr := NewReader(r.buf)
	if err := tr.Seek(int(textOff)); err != nil {
		p.Text = ""
		return nil
	}
	raw, err := tr.Slice(int(textLenBytes))
	if err != nil {
		p.Text = ""
		return nil
	}
	p.TextBuffer = raw
	p.Text = decodeUTF16BE(raw)
	_ = textBufferBytes
	return nil
}

func decodeUTF16BE(b []byte) string {
	if len(b) < 2 {
		return ""
	}
	u16 := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		v := uint16(b[i])<<8 | uint16(b[i+1])
		if v == 0 {
			break
		}
		u16 = append(u16, v)
	}
	return string(utf16.Decode(u16))
}

// DefaultCanvasSize returns the fallback dimensions named in §3 when a
// layout is missing width/height ("608x456 banner or 128x128 icon").
func DefaultCanvasSize(isIcon bool) (w, h float32) {
	if isIcon {
		return defaultIconW, defaultIconH
	}
	return defaultBannerW, defaultBannerH
}

func (lay *Layout) applyDefaultSize(isIcon bool) {
	if lay.Width == 0 || lay.Height == 0 {
		lay.Width, lay.Height = DefaultCanvasSize(isIcon)
	}
}
