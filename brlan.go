package wad

import (
	"fmt"
	"sort"
)

// DecodeBRLAN decodes an animation file: magic "RLAN" then a single pai1
// section (§4.8).
func DecodeBRLAN(buf []byte, log Logger) (*Animation, error) {
	if log == nil {
		log = NopLogger{}
	}

	r := NewReader(buf)
	hdr, err := readFileHeader(r, "RLAN")
	if err != nil {
		return nil, err
	}
	if err := r.Seek(int(hdr.headerSize)); err != nil {
		return nil, newErr(Truncated, "brlan", err)
	}

	var anim *Animation
	err = walkSections(r, int(hdr.sectionCount), func(sec section) error {
		if sec.tag != "pai1" {
			return nil
		}
		body := NewReader(buf[sec.start+8 : sec.end])
		a, err := decodePai1(body, buf[sec.start+8:sec.end], log)
		if err != nil {
			return err
		}
		anim = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	if anim == nil {
		return nil, newErr(BadMagic, "brlan", fmt.Errorf("no pai1 section"))
	}
	return anim, nil
}

func decodePai1(r *Reader, sectionBody []byte, log Logger) (*Animation, error) {
	frameSize, err := r.F32()
	if err != nil {
		return nil, newErr(Truncated, "pai1", err)
	}
	flags, err := r.U8()
	if err != nil {
		return nil, newErr(Truncated, "pai1", err)
	}
	loopFlag := flags&0x1 != 0
	if err := r.Skip(3); err != nil {
		return nil, newErr(Truncated, "pai1", err)
	}
	numEntries, err := r.U16()
	if err != nil {
		return nil, newErr(Truncated, "pai1", err)
	}
	if err := r.Skip(2); err != nil {
		return nil, newErr(Truncated, "pai1", err)
	}

	anim := &Animation{FrameSize: frameSize, LoopFlag: loopFlag}

	offsets := make([]uint32, numEntries)
	for i := range offsets {
		off, err := r.U32()
		if err != nil {
			return nil, newErr(Truncated, "pai1", err)
		}
		offsets[i] = off
	}

	for _, off := range offsets {
		pr := NewReader(sectionBody)
		if err := pr.Seek(int(off)); err != nil {
			log.Warn("brlan: pane offset out of range: %s", err)
			continue
		}
		pa, err := decodePaneAnim(pr, sectionBody, frameSize, loopFlag, log)
		if err != nil {
			log.Warn("brlan: pane anim: %s", err)
			continue
		}
		anim.Panes = append(anim.Panes, pa)
	}

	return anim, nil
}

func decodePaneAnim(r *Reader, sectionBody []byte, frameSize float32, loopFlag bool, log Logger) (PaneAnim, error) {
	var pa PaneAnim
	name, err := r.String(paneNameLen)
	if err != nil {
		return pa, newErr(Truncated, "pane-anim", err)
	}
	pa.Name = name

	numTags, err := r.U8()
	if err != nil {
		return pa, newErr(Truncated, "pane-anim", err)
	}
	if err := r.Skip(3); err != nil {
		return pa, newErr(Truncated, "pane-anim", err)
	}

	tagOffsets := make([]uint32, numTags)
	for i := range tagOffsets {
		off, err := r.U32()
		if err != nil {
			return pa, newErr(Truncated, "pane-anim", err)
		}
		tagOffsets[i] = off
	}

	for _, off := range tagOffsets {
		tr := NewReader(sectionBody)
		if err := tr.Seek(int(off)); err != nil {
			log.Warn("brlan: tag offset out of range: %s", err)
			continue
		}
		tag, err := decodeTag(tr, sectionBody, frameSize, loopFlag)
		if err != nil {
			log.Warn("brlan: tag: %s", err)
			continue
		}
		pa.Tags = append(pa.Tags, tag)
	}
	return pa, nil
}

func decodeTag(r *Reader, sectionBody []byte, frameSize float32, loopFlag bool) (Tag, error) {
	var tag Tag
	typeB, err := r.Slice(4)
	if err != nil {
		return tag, newErr(Truncated, "tag", err)
	}
	tag.Type = TagType(typeB)

	numEntries, err := r.U16()
	if err != nil {
		return tag, newErr(Truncated, "tag", err)
	}
	if err := r.Skip(2); err != nil {
		return tag, newErr(Truncated, "tag", err)
	}

	entryOffsets := make([]uint32, numEntries)
	for i := range entryOffsets {
		off, err := r.U32()
		if err != nil {
			return tag, newErr(Truncated, "tag", err)
		}
		entryOffsets[i] = off
	}

	for _, off := range entryOffsets {
		er := NewReader(sectionBody)
		if err := er.Seek(int(off)); err != nil {
			continue
		}
		track, err := decodeTrack(er, sectionBody, frameSize, loopFlag)
		if err != nil {
			continue
		}
		tag.Entries = append(tag.Entries, track)
	}
	return tag, nil
}

func decodeTrack(r *Reader, sectionBody []byte, frameSize float32, loopFlag bool) (Track, error) {
	var t Track
	if loopFlag {
		t.Pre = ExtrapLoop
		t.Post = ExtrapLoop
	}

	targetGroup, err := r.U8()
	if err != nil {
		return t, newErr(Truncated, "track", err)
	}
	t.TargetGroup = targetGroup

	opcode, err := r.U8()
	if err != nil {
		return t, newErr(Truncated, "track", err)
	}
	t.Opcode = opcode

	dataType, err := r.U8()
	if err != nil {
		return t, newErr(Truncated, "track", err)
	}
	t.DataType = KeyframeDataType(dataType)

	if err := r.Skip(1); err != nil {
		return t, newErr(Truncated, "track", err)
	}

	numKeyframes, err := r.U16()
	if err != nil {
		return t, newErr(Truncated, "track", err)
	}
	if err := r.Skip(2); err != nil {
		return t, newErr(Truncated, "track", err)
	}

	keyframeOffset, err := r.U32()
	if err != nil {
		return t, newErr(Truncated, "track", err)
	}

	kr := NewReader(sectionBody)
	if err := kr.Seek(int(keyframeOffset)); err != nil {
		return t, newErr(Truncated, "track-keyframes", err)
	}

	kfs := make([]Keyframe, 0, numKeyframes)
	allNonPositive := true
	for i := 0; i < int(numKeyframes); i++ {
		kf, err := decodeKeyframe(kr, t.DataType)
		if err != nil {
			return t, err
		}
		if kf.Frame > 0 {
			allNonPositive = false
		}
		kfs = append(kfs, kf)
	}

	// §4.8 normalization: if every frame value is <=0 and frameSize>0,
	// shift every frame by frameSize (§9 open question: ported verbatim,
	// kept isolated here so it can be disabled).
	if NegativeFrameShiftEnabled && allNonPositive && frameSize > 0 && len(kfs) > 0 {
		for i := range kfs {
			kfs[i].Frame += frameSize
		}
	}

	sort.SliceStable(kfs, func(i, j int) bool { return kfs[i].Frame < kfs[j].Frame })
	t.Keyframes = kfs

	return t, nil
}

func decodeKeyframe(r *Reader, dataType KeyframeDataType) (Keyframe, error) {
	switch dataType {
	case DataLinearF32:
		frame, err := r.F32()
		if err != nil {
			return Keyframe{}, newErr(Truncated, "keyframe", err)
		}
		value, err := r.F32()
		if err != nil {
			return Keyframe{}, newErr(Truncated, "keyframe", err)
		}
		return Keyframe{Frame: frame, Value: value, Blend: 0}, nil
	case DataStepU16:
		frame, err := r.F32()
		if err != nil {
			return Keyframe{}, newErr(Truncated, "keyframe", err)
		}
		value, err := r.U16()
		if err != nil {
			return Keyframe{}, newErr(Truncated, "keyframe", err)
		}
		if err := r.Skip(2); err != nil { // reserved
			return Keyframe{}, newErr(Truncated, "keyframe", err)
		}
		return Keyframe{Frame: frame, Value: float32(value), Blend: 0}, nil
	case DataHermiteF32:
		frame, err := r.F32()
		if err != nil {
			return Keyframe{}, newErr(Truncated, "keyframe", err)
		}
		value, err := r.F32()
		if err != nil {
			return Keyframe{}, newErr(Truncated, "keyframe", err)
		}
		blend, err := r.F32()
		if err != nil {
			return Keyframe{}, newErr(Truncated, "keyframe", err)
		}
		return Keyframe{Frame: frame, Value: value, Blend: blend}, nil
	default:
		return Keyframe{}, newErr(UnsupportedFormat, "keyframe", fmt.Errorf("data type %d", dataType))
	}
}
