package wad

import "fmt"

const (
	bnsVersion = 0xFEFF0100

	adpcmFrameBytes   = 8
	adpcmSamplesPerFrame = 14
)

type bnsChannelInfo struct {
	coefs       [16]int16
	hist1, hist2 int16
	loopHist1, loopHist2 int16
	dataOffset  uint32
}

// DecodeBNS decodes a streaming-audio container: magic "BNS ", chunked
// INFO/DATA, per-channel DSP-ADPCM (§4.13, §6). Unsupported codecs
// resolve to silence rather than a fatal error, per §7.
func DecodeBNS(buf []byte, log Logger) (*AudioTrack, error) {
	if log == nil {
		log = NopLogger{}
	}

	r := NewReader(buf)
	magic, err := r.Slice(4)
	if err != nil || string(magic) != "BNS " {
		return nil, newErr(BadMagic, "bns", fmt.Errorf("missing BNS tag"))
	}
	version, err := r.U32()
	if err != nil {
		return nil, newErr(Truncated, "bns", err)
	}
	if version != bnsVersion {
		log.Warn("bns: unexpected version 0x%08x", version)
	}
	if _, err := r.U32(); err != nil { // file size
		return nil, newErr(Truncated, "bns", err)
	}
	if _, err := r.U16(); err != nil { // header size
		return nil, newErr(Truncated, "bns", err)
	}
	chunkCount, err := r.U16()
	if err != nil {
		return nil, newErr(Truncated, "bns", err)
	}

	var infoOff, infoSize, dataOff, dataSize uint32
	for i := 0; i < int(chunkCount); i++ {
		off, err := r.U32()
		if err != nil {
			return nil, newErr(Truncated, "bns", err)
		}
		size, err := r.U32()
		if err != nil {
			return nil, newErr(Truncated, "bns", err)
		}
		switch i {
		case 0:
			infoOff, infoSize = off, size
		case 1:
			dataOff, dataSize = off, size
		}
	}
	_ = infoSize
	_ = dataSize

	track, channels, err := decodeBnsInfo(buf, int(infoOff))
	if err != nil {
		de, ok := err.(*DecodeError)
		if track == nil || !ok || de.Kind != UnsupportedFormat {
			return nil, err
		}
		log.Warn("bns: %s, substituting silence", err)
		for i := 0; i < track.ChannelCount; i++ {
			track.PCM16 = append(track.PCM16, make([]int16, track.SampleCount)) // silence substitution (§7)
		}
		return track, nil
	}

	for ci, ch := range channels {
		pcm, err := decodeAdpcmChannel(buf, ch, track.SampleCount)
		if err != nil {
			log.Warn("bns: channel %d: %s", ci, err)
			pcm = make([]int16, track.SampleCount) // silence substitution (§7)
		}
		track.PCM16 = append(track.PCM16, pcm)
	}
	_ = dataOff

	return track, nil
}

func decodeBnsInfo(buf []byte, off int) (*AudioTrack, []bnsChannelInfo, error) {
	r := NewReader(buf)
	if err := r.Seek(off); err != nil {
		return nil, nil, newErr(Truncated, "bns-info", err)
	}

	codec, err := r.U8()
	if err != nil {
		return nil, nil, newErr(Truncated, "bns-info", err)
	}
	loopFlag, err := r.U8()
	if err != nil {
		return nil, nil, newErr(Truncated, "bns-info", err)
	}
	channelCount, err := r.U8()
	if err != nil {
		return nil, nil, newErr(Truncated, "bns-info", err)
	}
	if err := r.Skip(1); err != nil {
		return nil, nil, newErr(Truncated, "bns-info", err)
	}
	sampleRate, err := r.U32()
	if err != nil {
		return nil, nil, newErr(Truncated, "bns-info", err)
	}
	loopStart, err := r.U32()
	if err != nil {
		return nil, nil, newErr(Truncated, "bns-info", err)
	}
	sampleCount, err := r.U32()
	if err != nil {
		return nil, nil, newErr(Truncated, "bns-info", err)
	}

	track := &AudioTrack{
		ChannelCount: int(channelCount),
		SampleRate:   int(sampleRate),
		SampleCount:  int(sampleCount),
		LoopFlag:     loopFlag&0x1 != 0,
		LoopStart:    int(loopStart),
	}

	if codec != 0 { // 0 = DSP-ADPCM, the only codec this port supports
		return track, nil, newErr(UnsupportedFormat, "bns-info", fmt.Errorf("codec %d", codec))
	}

	channelOffsets := make([]uint32, channelCount)
	for i := range channelOffsets {
		o, err := r.U32()
		if err != nil {
			return nil, nil, newErr(Truncated, "bns-info", err)
		}
		channelOffsets[i] = o
	}

	channels := make([]bnsChannelInfo, 0, channelCount)
	for _, co := range channelOffsets {
		cr := NewReader(buf)
		if err := cr.Seek(int(co)); err != nil {
			return nil, nil, newErr(Truncated, "bns-channel", err)
		}
		ch, err := decodeBnsChannelInfo(cr)
		if err != nil {
			return nil, nil, err
		}
		channels = append(channels, ch)
	}

	return track, channels, nil
}

func decodeBnsChannelInfo(r *Reader) (bnsChannelInfo, error) {
	var ch bnsChannelInfo
	for i := 0; i < 16; i++ {
		c, err := r.I16()
		if err != nil {
			return ch, newErr(Truncated, "bns-channel", err)
		}
		ch.coefs[i] = c
	}
	h1, err := r.I16()
	if err != nil {
		return ch, newErr(Truncated, "bns-channel", err)
	}
	ch.hist1 = h1
	h2, err := r.I16()
	if err != nil {
		return ch, newErr(Truncated, "bns-channel", err)
	}
	ch.hist2 = h2
	lh1, err := r.I16()
	if err != nil {
		return ch, newErr(Truncated, "bns-channel", err)
	}
	ch.loopHist1 = lh1
	lh2, err := r.I16()
	if err != nil {
		return ch, newErr(Truncated, "bns-channel", err)
	}
	ch.loopHist2 = lh2
	dataOff, err := r.U32()
	if err != nil {
		return ch, newErr(Truncated, "bns-channel", err)
	}
	ch.dataOffset = dataOff
	return ch, nil
}

// decodeAdpcmChannel decodes the GameCube/Wii DSP-ADPCM recurrence
// (§4.13, §6): a header byte selecting one of 8 coefficient pairs and a
// right-shift scale, followed by 14 packed 4-bit nibble samples per
// 8-byte frame.
func decodeAdpcmChannel(buf []byte, ch bnsChannelInfo, sampleCount int) ([]int16, error) {
	out := make([]int16, 0, sampleCount)
	hist1, hist2 := ch.hist1, ch.hist2

	r := NewReader(buf)
	if err := r.Seek(int(ch.dataOffset)); err != nil {
		return nil, newErr(Truncated, "adpcm", err)
	}

	for len(out) < sampleCount {
		header, err := r.U8()
		if err != nil {
			return nil, newErr(Truncated, "adpcm", err)
		}
		coefIdx := (header >> 4) & 0x7
		scale := header & 0xF

		coef1 := int32(ch.coefs[coefIdx*2])
		coef2 := int32(ch.coefs[coefIdx*2+1])

		payload, err := r.Slice(adpcmFrameBytes - 1)
		if err != nil {
			return nil, newErr(Truncated, "adpcm", err)
		}

		for i := 0; i < adpcmSamplesPerFrame && len(out) < sampleCount; i++ {
			var nibble byte
			if i%2 == 0 {
				nibble = payload[i/2] >> 4
			} else {
				nibble = payload[i/2] & 0xF
			}

			signExtended := int32(int8(nibble << 4)) >> 4 // sign-extend low nibble

			predicted := (coef1*int32(hist1) + coef2*int32(hist2)) >> 11
			raw := predicted + (signExtended << scale)
			sample := clampInt16(raw)

			out = append(out, sample)
			hist2 = hist1
			hist1 = sample
		}
	}

	return out[:sampleCount], nil
}

func clampInt16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
