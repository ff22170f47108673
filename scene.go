package wad

import (
	"math"
	"regexp"
	"strings"
)

// This file is the scene evaluation engine (§4.10): the pane-chain
// resolver lives in layout_builder.go; everything else - per-pane
// sampling, composition, phase machine, render-state/locale/override
// selection, and the output model - lives here.

// Mat3 is a row-major 3x3 affine matrix: [a b tx; c d ty; 0 0 1].
type Mat3 [9]float32

func identMat3() Mat3 {
	return Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

func mulMat3(a, b Mat3) Mat3 {
	var out Mat3
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			var sum float32
			for k := 0; k < 3; k++ {
				sum += a[row*3+k] * b[k*3+col]
			}
			out[row*3+col] = sum
		}
	}
	return out
}

func translateMat3(x, y float32) Mat3 {
	return Mat3{1, 0, x, 0, 1, y, 0, 0, 1}
}

func rotateZMat3(degrees float32) Mat3 {
	rad := float64(degrees) * math.Pi / 180
	c := float32(math.Cos(rad))
	s := float32(math.Sin(rad))
	return Mat3{c, -s, 0, s, c, 0, 0, 0, 1}
}

func scaleMat3(sx, sy float32) Mat3 {
	return Mat3{sx, 0, 0, 0, sy, 0, 0, 0, 1}
}

// Phase is the phase-machine state (§4.10).
type Phase int

const (
	PhaseStart Phase = iota
	PhaseLoop
	PhaseHold
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseLoop:
		return "loop"
	case PhaseHold:
		return "hold"
	default:
		return "unknown"
	}
}

// holdThresholdFrames is the "very short state-only animation" cutoff
// named by §4.10's phase machine (<=180 frames uses Hold, not Loop).
const holdThresholdFrames = 180

// ResolvePhase is the phase machine as a pure function of an absolute
// playback frame counter, matching §5's requirement that the evaluator
// "return in bounded time independent of frame count" - there is no
// per-tick state to replay, only a closed-form mapping from elapsed
// frames to (phase, effective frame, effective loop length).
func ResolvePhase(start, loop *Animation, mode PlaybackMode, absoluteFrame float32) (phase Phase, effectiveFrame float32, loopLength float32) {
	switch {
	case start != nil && loop != nil:
		s, l := start.FrameSize, loop.FrameSize
		if absoluteFrame < s {
			return PhaseStart, absoluteFrame, l
		}
		loopLen := l
		if s < l {
			// Nintendo-specific policy (§4.10): don't replay the intro
			// tail already shown during Start.
			loopLen = l - s
		}
		rel := absoluteFrame - s
		return PhaseLoop, wrapFloat(rel, loopLen), loopLen

	case loop != nil:
		if mode == PlaybackHold || loop.FrameSize <= holdThresholdFrames {
			if absoluteFrame >= loop.FrameSize {
				return PhaseHold, loop.FrameSize, loop.FrameSize
			}
			return PhaseHold, absoluteFrame, loop.FrameSize
		}
		return PhaseLoop, wrapFloat(absoluteFrame, loop.FrameSize), loop.FrameSize

	case start != nil:
		return PhaseLoop, wrapFloat(absoluteFrame, start.FrameSize), start.FrameSize

	default:
		return PhaseLoop, 0, 0
	}
}

func wrapFloat(v, mod float32) float32 {
	if mod <= 0 {
		return 0
	}
	for v < 0 {
		v += mod
	}
	for v >= mod {
		v -= mod
	}
	return v
}

// AnimationSet groups the start/loop animations that apply to one
// render state (§4.11: "the engine exposes animEntries so multiple
// state-specific animations can coexist under the same layout").
type AnimationSet struct {
	State string // "" for the state-less default
	Start *Animation
	Loop  *Animation
}

// MaterialColorChannel indexes the 32-byte material-color layout RLMC
// addresses (§4.10): material RGBA, color1/C0 RGBA, color2/C1 RGBA,
// color3/C2 RGBA, kColors[0..3] RGBA.
type MaterialColorChannel int

const (
	ColorMaterial MaterialColorChannel = iota
	ColorC0
	ColorC1
	ColorC2
	ColorK0
	ColorK1
	ColorK2
	ColorK3
	numColorChannels
)

// ResolvedPaneState is the per-pane output §6 describes: everything a
// rasterizer needs to draw one pane at one frame.
type ResolvedPaneState struct {
	Alpha                  byte
	Visible                bool
	BlendMode              byte
	VertexColors           VertexColors
	TexCoords              [][4]TexCoord
	MaterialColorRegisters [numColorChannels][4]byte
	ActiveTextureIndices   []int
}

// DrawItem is one entry of the output model (§6).
type DrawItem struct {
	PaneIndex int
	PaneName  string
	Matrix    Mat3
	Resolved  ResolvedPaneState
}

// SceneFrame is the full per-frame result: the ordered draw list plus
// the authoritative canvas size (§6).
type SceneFrame struct {
	CanvasWidth, CanvasHeight float32
	Items                     []DrawItem
}

// paneDynamic accumulates the animated overrides found for one pane at
// one frame, before being combined with its static defaults.
type paneDynamic struct {
	translate    Vec3
	translateSet [3]bool
	rotate       Vec3
	rotateSet    [3]bool
	scale        Vec2
	scaleSet     [2]bool
	size         Vec2
	sizeSet      [2]bool
	alpha        float32
	alphaSet     bool
	visible      bool
	visibleSet   bool
	srt          map[int]*TextureSRT
	matColor     map[MaterialColorChannel][4]byte
	texPattern   map[int]int
}

func newPaneDynamic() *paneDynamic {
	return &paneDynamic{
		srt:        make(map[int]*TextureSRT),
		matColor:   make(map[MaterialColorChannel][4]byte),
		texPattern: make(map[int]int),
	}
}

// resolveAnimationSet picks the AnimationSet that applies to rl's
// currently active render state (§4.11: "the engine exposes animEntries
// so multiple state-specific animations can coexist under the same
// layout"). It resolves the state the same way selectPaneSet does, so
// requesting RenderStateName "RSO1" selects both the RSO1 pane subtree
// and the RSO1-tagged animations together. Falls back to the
// state-less "" entry when no state is active or the active state has
// no animations of its own.
func resolveAnimationSet(entries map[string]AnimationSet, rl *RenderableLayout, opts Options) AnimationSet {
	if opts.RenderStateMode != RenderStateNone {
		if name := resolveRenderStateName(rl, opts); name != "" {
			if set, ok := entries[name]; ok {
				return set
			}
		}
	}
	return entries[""]
}

// EvaluateFrame samples the active render state's Start/Loop animations
// at absoluteFrame and returns the resolved, composed, filtered scene
// (§4.10). log is never retained past this call (§9).
func EvaluateFrame(rl *RenderableLayout, entries map[string]AnimationSet, opts Options, absoluteFrame float32, log Logger) *SceneFrame {
	if log == nil {
		log = NopLogger{}
	}

	set := resolveAnimationSet(entries, rl, opts)
	phase, effFrame, _ := ResolvePhase(set.Start, set.Loop, opts.PlaybackMode, absoluteFrame)

	var active *Animation
	switch phase {
	case PhaseStart:
		active = set.Start
	default:
		if set.Loop != nil {
			active = set.Loop
		} else {
			active = set.Start
		}
	}

	dyn := make([]*paneDynamic, len(rl.Panes))
	if active != nil {
		byName := make(map[string]int, len(rl.Panes))
		for i, p := range rl.Panes {
			byName[p.Name] = i
		}
		for _, pa := range active.Panes {
			idx, ok := byName[pa.Name]
			if !ok {
				log.Warn("scene: animation references unknown pane %q", pa.Name)
				continue
			}
			if dyn[idx] == nil {
				dyn[idx] = newPaneDynamic()
			}
			applyPaneAnim(dyn[idx], pa, effFrame)
		}
	}

	selected, selErr := selectPaneSet(rl, opts, log)
	if selErr != nil {
		log.Warn("scene: %s", selErr)
	}

	locales := detectLocales(rl)
	localeFilter := opts.Locale
	localeActive := opts.LocaleMode == LocaleExplicit && len(locales) > 0

	frame := &SceneFrame{CanvasWidth: rl.Width, CanvasHeight: rl.Height}

	for i := range rl.Panes {
		if selected != nil && !selected[i] {
			continue
		}
		if localeActive {
			loc := localeOfChain(rl, i, locales)
			if loc != "" && loc != localeFilter {
				continue
			}
		}

		alpha, visible, matrix, resolved := resolvePane(rl, i, dyn)
		if !visible {
			continue
		}

		frame.Items = append(frame.Items, DrawItem{
			PaneIndex: i,
			PaneName:  rl.Panes[i].Name,
			Matrix:    matrix,
			Resolved:  withComposedAlpha(resolved, alpha),
		})
	}

	return frame
}

func withComposedAlpha(r ResolvedPaneState, alpha float32) ResolvedPaneState {
	r.Alpha = byte(clampFloat(alpha*255, 0, 255))
	return r
}

func clampFloat(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// applyPaneAnim samples every track of every tag in pa at f and folds
// the results into dyn, per the opcode table in §4.10.
func applyPaneAnim(dyn *paneDynamic, pa PaneAnim, f float32) {
	for _, tag := range pa.Tags {
		for i := range tag.Entries {
			track := &tag.Entries[i]
			v := SampleTrack(track, f)
			applyOpcode(dyn, tag.Type, track, v)
		}
	}
}

func applyOpcode(dyn *paneDynamic, tagType TagType, track *Track, v float32) {
	switch tagType {
	case TagRLPA:
		switch track.Opcode {
		case 0x00:
			dyn.translate.X += v
			dyn.translateSet[0] = true
		case 0x01:
			dyn.translate.Y += v
			dyn.translateSet[1] = true
		case 0x02:
			dyn.translate.Z += v
			dyn.translateSet[2] = true
		case 0x03:
			dyn.rotate.X += v
			dyn.rotateSet[0] = true
		case 0x04:
			dyn.rotate.Y += v
			dyn.rotateSet[1] = true
		case 0x05:
			dyn.rotate.Z += v
			dyn.rotateSet[2] = true
		case 0x06:
			dyn.scale.X += v
			dyn.scaleSet[0] = true
		case 0x07:
			dyn.scale.Y += v
			dyn.scaleSet[1] = true
		case 0x08:
			dyn.size.X += v
			dyn.sizeSet[0] = true
		case 0x09:
			dyn.size.Y += v
			dyn.sizeSet[1] = true
		case 0x0A:
			dyn.alpha += v
			dyn.alphaSet = true
		}
	case TagRLVC:
		if track.Opcode == 0x10 {
			dyn.alpha += v
			dyn.alphaSet = true
		}
	case TagRLVI:
		if track.DataType == DataStepU16 && track.Opcode == 0x00 {
			dyn.visible = v >= 0.5
			dyn.visibleSet = true
		}
	case TagRLTS:
		srt := dyn.srt[int(track.TargetGroup)]
		if srt == nil {
			srt = &TextureSRT{}
			dyn.srt[int(track.TargetGroup)] = srt
		}
		switch track.Opcode {
		case 0:
			srt.XTrans += v
		case 1:
			srt.YTrans += v
		case 2:
			srt.Rotation += v
		case 3:
			srt.XScale += v
		case 4:
			srt.YScale += v
		}
	case TagRLMC:
		ch := MaterialColorChannel(track.TargetGroup)
		if ch < 0 || ch >= numColorChannels {
			return
		}
		c := dyn.matColor[ch]
		if track.Opcode < 4 {
			c[track.Opcode] = byte(clampFloat(v, 0, 255))
		}
		dyn.matColor[ch] = c
	case TagRLTP:
		dyn.texPattern[int(track.TargetGroup)] = int(v)
	}
}

// resolvePane combines a pane's static defaults with its animated
// overrides (if any), composes the chain transform and alpha, and
// produces the matrix/resolved-state pair for the output model.
func resolvePane(rl *RenderableLayout, idx int, dyn []*paneDynamic) (alpha float32, visible bool, matrix Mat3, resolved ResolvedPaneState) {
	chain := rl.Chain(idx)

	alpha = 1.0
	visible = true
	matrix = identMat3()

	for _, ci := range chain {
		p := rl.Panes[ci]
		d := dyn[ci]

		translate, rotate, scale, size := p.Translate, p.Rotate, p.Scale, p.Size
		paneAlpha := float32(p.Alpha)
		paneVisible := p.Visible

		if d != nil {
			if d.translateSet[0] {
				translate.X = d.translate.X
			}
			if d.translateSet[1] {
				translate.Y = d.translate.Y
			}
			if d.translateSet[2] {
				translate.Z = d.translate.Z
			}
			if d.rotateSet[0] {
				rotate.X = d.rotate.X
			}
			if d.rotateSet[1] {
				rotate.Y = d.rotate.Y
			}
			if d.rotateSet[2] {
				rotate.Z = d.rotate.Z
			}
			if d.scaleSet[0] {
				scale.X = d.scale.X
			}
			if d.scaleSet[1] {
				scale.Y = d.scale.Y
			}
			if d.sizeSet[0] {
				size.X = d.size.X
			}
			if d.sizeSet[1] {
				size.Y = d.size.Y
			}
			if d.alphaSet {
				paneAlpha = d.alpha
			}
			if d.visibleSet {
				paneVisible = d.visible
			}
		}

		if !paneVisible {
			visible = false
		}
		alpha *= clampFloat(paneAlpha, 0, 255) / 255

		// T(tx,-ty) . Rz(rot) . S(sx,sy) per chain entry (§4.10: "Y is
		// flipped at composition because the layout coordinate system
		// is y-up").
		step := mulMat3(translateMat3(translate.X, -translate.Y), mulMat3(rotateZMat3(rotate.Z), scaleMat3(scale.X, scale.Y)))
		matrix = mulMat3(matrix, step)

		if ci == idx {
			col, row := p.Origin.Offsets()
			originX := float32(col) * size.X / 2
			originY := float32(row) * size.Y / 2
			matrix = mulMat3(matrix, translateMat3(originX, originY))
		}
	}

	self := rl.Panes[idx]
	selfDyn := dyn[idx]

	resolved = ResolvedPaneState{
		VertexColors: self.VertexColors,
		TexCoords:    self.TexCoords,
		BlendMode: func() byte {
			if self.MaterialIdx >= 0 && self.MaterialIdx < len(rl.Materials) {
				return rl.Materials[self.MaterialIdx].BlendMode
			}
			return 0
		}(),
	}

	if self.MaterialIdx >= 0 && self.MaterialIdx < len(rl.Materials) {
		mat := rl.Materials[self.MaterialIdx]
		resolved.MaterialColorRegisters[ColorC0] = bytesFromS16Quad(mat.Color1)
		resolved.MaterialColorRegisters[ColorC1] = bytesFromS16Quad(mat.Color2)
		resolved.MaterialColorRegisters[ColorC2] = bytesFromS16Quad(mat.Color3)

		for _, tm := range mat.TextureMaps {
			resolved.ActiveTextureIndices = append(resolved.ActiveTextureIndices, tm.TextureIndex)
		}
	}

	if selfDyn != nil {
		for ch, c := range selfDyn.matColor {
			resolved.MaterialColorRegisters[ch] = c
		}
		for mapIdx, pattern := range selfDyn.texPattern {
			if mapIdx >= 0 && mapIdx < len(resolved.ActiveTextureIndices) {
				resolved.ActiveTextureIndices[mapIdx] = pattern
			}
		}
	}

	return alpha, visible, matrix, resolved
}

func bytesFromS16Quad(q [4]int16) [4]byte {
	var out [4]byte
	for i, v := range q {
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		out[i] = byte(v)
	}
	return out
}

// resolveRenderStateName applies Options.RenderStateMode to rl, returning
// the render-state group name that's actually in effect ("" for
// RenderStateNone or when RenderStateAuto finds no RSO groups). Shared by
// selectPaneSet (pane filtering) and resolveAnimationSet (animEntries
// lookup), so both resolve the same active state (§4.10, §4.11).
func resolveRenderStateName(rl *RenderableLayout, opts Options) string {
	switch opts.RenderStateMode {
	case RenderStateExplicit:
		return opts.RenderStateName
	case RenderStateAuto:
		return autoRenderState(rl)
	default:
		return ""
	}
}

// selectPaneSet implements §4.10's render-state selection and override
// model. It returns nil (meaning "draw everything") for
// RenderStateNone, or a bool set of pane indices to draw.
func selectPaneSet(rl *RenderableLayout, opts Options, log Logger) (map[int]bool, error) {
	if opts.RenderStateMode == RenderStateNone {
		return nil, nil
	}

	groupName := resolveRenderStateName(rl, opts)
	if groupName == "" {
		return nil, nil // no RSO groups at all: draw everything
	}

	group, ok := rl.GroupByNameLookup(groupName)
	if !ok {
		log.Warn("scene: render state %q not found, drawing every pane", groupName)
		return nil, nil
	}

	selected := make(map[int]bool)
	for _, name := range group.PaneNames {
		idx, ok := rl.PaneIndexByName(name)
		if !ok {
			continue
		}
		markSubtree(rl, idx, selected)
	}

	applyOverrides(rl, opts.PaneStateOverrides, selected)

	return selected, nil
}

// markSubtree marks idx and every pane whose chain passes through idx.
func markSubtree(rl *RenderableLayout, idx int, selected map[int]bool) {
	for i := range rl.Panes {
		for _, ci := range rl.Chain(i) {
			if ci == idx {
				selected[i] = true
				break
			}
		}
	}
}

var rsoPattern = regexp.MustCompile(`(?i)rso\d+`)

// autoRenderState resolves "auto": RSO0 if present, else the first RSO<N>
// group encountered, else "" (§4.10, §9 open question).
func autoRenderState(rl *RenderableLayout) string {
	var first string
	for _, g := range rl.Groups {
		if !rsoPattern.MatchString(g.Name) {
			continue
		}
		if first == "" {
			first = g.Name
		}
		if strings.EqualFold(g.Name, "RSO0") {
			return g.Name
		}
	}
	return first
}

// applyOverrides implements the explicit pane-state-group override model
// (§4.10): for each overridden group, only the named pane renders;
// siblings within that same group are suppressed.
func applyOverrides(rl *RenderableLayout, overrides map[string]string, selected map[int]bool) {
	for groupName, paneName := range overrides {
		group, ok := rl.GroupByNameLookup(groupName)
		if !ok {
			continue
		}
		for _, name := range group.PaneNames {
			idx, ok := rl.PaneIndexByName(name)
			if !ok {
				continue
			}
			if name == paneName {
				markSubtree(rl, idx, selected)
			} else {
				unmarkSubtree(rl, idx, selected)
			}
		}
	}
}

func unmarkSubtree(rl *RenderableLayout, idx int, selected map[int]bool) {
	for i := range rl.Panes {
		for _, ci := range rl.Chain(i) {
			if ci == idx {
				delete(selected, i)
				break
			}
		}
	}
}

// localePrefixes recognizes the three naming patterns §4.10 lists:
// N_title<LOC>_, title_<LOC>_, <LOC>_.
var localePrefixes = []*regexp.Regexp{
	regexp.MustCompile(`^N_title(JP|NE|GE|SP|IT|FR|US|KR)_`),
	regexp.MustCompile(`^title_(JP|NE|GE|SP|IT|FR|US|KR)_`),
	regexp.MustCompile(`^(JP|NE|GE|SP|IT|FR|US|KR)_`),
}

func localeFromName(name string) Locale {
	for _, re := range localePrefixes {
		if m := re.FindStringSubmatch(name); m != nil {
			return Locale(m[1])
		}
	}
	return ""
}

// detectLocales returns the set of locales present anywhere in the
// layout's pane names.
func detectLocales(rl *RenderableLayout) map[Locale]bool {
	set := make(map[Locale]bool)
	for _, p := range rl.Panes {
		if loc := localeFromName(p.Name); loc != "" {
			set[loc] = true
		}
	}
	return set
}

// localeOfChain infers a pane's locale from its chain, deepest-named
// ancestor wins (§4.10).
func localeOfChain(rl *RenderableLayout, idx int, available map[Locale]bool) Locale {
	chain := rl.Chain(idx)
	for i := len(chain) - 1; i >= 0; i-- {
		p := rl.Panes[chain[i]]
		if loc := localeFromName(p.Name); loc != "" && available[loc] {
			return loc
		}
	}
	return ""
}
