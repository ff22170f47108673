package wad

// SampleTrack evaluates a sorted keyframe list at frame f, per §4.9. The
// track's DataType selects cubic-Hermite interpolation (every non-step
// data type uses the same curve; with zero tangents it eases in and out
// rather than moving linearly) or a floor/step lookup.
func SampleTrack(t *Track, f float32) float32 {
	if t.Post == ExtrapLoop || t.Pre == ExtrapLoop {
		f = wrapFrame(t.Keyframes, f)
	}

	if t.DataType == DataStepU16 {
		return sampleStep(t.Keyframes, f)
	}
	return sampleHermite(t.Keyframes, f)
}

// wrapFrame implements loop pre-/post-extrapolation: wrap f into the
// track's interval before clamping (§4.9).
func wrapFrame(kfs []Keyframe, f float32) float32 {
	if len(kfs) < 2 {
		return f
	}
	lo, hi := kfs[0].Frame, kfs[len(kfs)-1].Frame
	span := hi - lo
	if span <= 0 {
		return f
	}
	if f < lo {
		n := int((lo-f)/span) + 1
		f += float32(n) * span
	}
	if f > hi {
		n := int((f-hi)/span) + 1
		f -= float32(n) * span
	}
	return f
}

func sampleStep(kfs []Keyframe, f float32) float32 {
	if len(kfs) == 0 {
		return 0
	}
	if len(kfs) == 1 {
		return kfs[0].Value
	}
	if f < kfs[0].Frame {
		return kfs[0].Value
	}
	// Select the last keyframe with frame <= f (floor), per §4.9.
	val := kfs[0].Value
	for _, kf := range kfs {
		if kf.Frame > f {
			break
		}
		val = kf.Value
	}
	return val
}

func sampleHermite(kfs []Keyframe, f float32) float32 {
	switch len(kfs) {
	case 0:
		return 0
	case 1:
		return kfs[0].Value
	}

	if f <= kfs[0].Frame {
		return kfs[0].Value
	}
	last := kfs[len(kfs)-1]
	if f >= last.Frame {
		return last.Value
	}

	for i := 0; i < len(kfs)-1; i++ {
		left, right := kfs[i], kfs[i+1]
		if f < left.Frame || f > right.Frame {
			continue
		}
		span := right.Frame - left.Frame
		if span <= 0 {
			return left.Value
		}
		t := (f - left.Frame) / span
		return hermite(t, left.Value, left.Blend, right.Value, right.Blend)
	}
	return last.Value
}

// hermite implements the cubic-Hermite basis from §4.9:
//
//	H(t) = (2t³-3t²+1)·vL + (t³-2t²+t)·mL + (-2t³+3t²)·vR + (t³-t²)·mR
func hermite(t, vL, mL, vR, mR float32) float32 {
	t2 := t * t
	t3 := t2 * t
	h00 := 2*t3 - 3*t2 + 1
	h10 := t3 - 2*t2 + t
	h01 := -2*t3 + 3*t2
	h11 := t3 - t2
	return h00*vL + h10*mL + h01*vR + h11*mR
}
