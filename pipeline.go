package wad

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

// This file is the pipeline orchestrator (§4.11): archive scoring,
// meta-archive selection, target extraction, and animation role/state
// inference, tied together behind DecodeWad.

// maxDecodedTextures bounds bulk texture decode (§5). The count is
// checked before each archive entry: once 200 or more textures have been
// collected, no further entries are decoded. A multi-image TPL decoded
// just below the cap can take the total past 200.
const maxDecodedTextures = 200

// Result is DecodeWad's top-level output: the selected banner/icon
// renderables plus every texture the pipeline chose to decode.
type Result struct {
	Banner *RenderableLayout
	Icon   *RenderableLayout

	// BannerAnimEntries/IconAnimEntries key the decoded animations by
	// render state ("" for the state-less default), so the caller's
	// chosen render state drives animation selection at evaluation
	// time via EvaluateFrame, not a single set precommitted at decode
	// time (§4.11's animEntries).
	BannerAnimEntries map[string]AnimationSet
	IconAnimEntries   map[string]AnimationSet

	Textures []*TplImage
	Fonts    []*Font
	Audio    *AudioTrack

	Warnings []string
}

// DecodeWad runs the full pipeline: frame/decrypt the WAD, score its
// contents, pick the banner-bearing content, extract its meta archive,
// and decode every asset reachable from it. ctx is the single
// suspension/cancellation point (§5); decoding itself never blocks.
func DecodeWad(ctx context.Context, buf []byte, log Logger) (*Result, error) {
	if log == nil {
		log = NopLogger{}
	}

	frame, err := ParseWadFrame(buf)
	if err != nil {
		return nil, err
	}

	ticket, err := ParseTicket(buf, frame.TicketOffset)
	if err != nil {
		return nil, err
	}

	titleKey, err := DecryptTitleKey(ticket.EncryptedTitleKey[:], ticket.TitleIDBytes[:], ticket.CommonKeyIndex)
	if err != nil {
		return nil, err
	}

	type scored struct {
		content ContentRecord
		archive *U8Archive
		score   int
	}

	var candidates []scored
	for _, c := range frame.Contents {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		enc, err := frame.EncryptedContent(c)
		if err != nil {
			log.Warn("pipeline: content %08x: %s", c.ID, err)
			continue
		}
		plain, err := DecryptContent(titleKey, c.Index, enc, int(c.PlaintextSize))
		if err != nil {
			log.Warn("pipeline: content %08x: %s", c.ID, err)
			continue
		}
		arc, err := ParseU8(plain, log)
		if err != nil {
			log.Warn("pipeline: content %08x: not a U8 archive: %s", c.ID, err)
			continue
		}
		candidates = append(candidates, scored{content: c, archive: arc, score: scoreArchive(arc)})
	}

	if len(candidates) == 0 {
		return nil, newErr(NoRenderable, "pipeline", errNoContents)
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		switch {
		case c.score > best.score:
			best = c
		case c.score == best.score && c.content.Index == 0 && hasBannerPayload(c.archive):
			best = c
		}
	}

	if best.score <= 0 {
		return nil, newErr(NoRenderable, "pipeline", errNoRenderable)
	}

	result := &Result{}

	bannerArc := extractTarget(best.archive, log)
	if bannerArc == nil {
		return nil, newErr(NoRenderable, "pipeline", errNoRenderable)
	}

	layouts := make(map[string]*Layout)
	animations := make(map[string]*Animation)
	var textures []*TplImage
	var fonts []*Font

	for _, name := range bannerArc.Order {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if len(textures) >= maxDecodedTextures {
			result.Warnings = append(result.Warnings, "texture decode capped at 200 per §5")
			break
		}
		blob, _ := bannerArc.Get(name)
		switch {
		case strings.HasSuffix(name, ".brlyt"):
			lay, err := DecodeBRLYT(blob, log)
			if err != nil {
				log.Warn("pipeline: %s: %s", name, err)
				continue
			}
			layouts[name] = lay
		case strings.HasSuffix(name, ".brlan"):
			anim, err := DecodeBRLAN(blob, log)
			if err != nil {
				log.Warn("pipeline: %s: %s", name, err)
				continue
			}
			animations[name] = anim
		case strings.HasSuffix(name, ".tpl"):
			imgs, err := DecodeTPL(blob, log)
			if err != nil {
				log.Warn("pipeline: %s: %s", name, err)
				continue
			}
			textures = append(textures, imgs...)
		case strings.HasSuffix(name, ".brfnt"):
			font, err := DecodeBRFNT(blob, log)
			if err != nil {
				log.Warn("pipeline: %s: %s", name, err)
				continue
			}
			fonts = append(fonts, font)
		case strings.HasSuffix(name, ".bns"):
			audio, err := DecodeBNS(blob, log)
			if err != nil {
				log.Warn("pipeline: %s: %s", name, err)
				continue
			}
			result.Audio = audio
		}
	}

	result.Textures = textures
	result.Fonts = fonts

	var bannerLayout, iconLayout *Layout
	for name, lay := range layouts {
		lay.Textures = textureNames(bannerArc)
		isIcon := strings.Contains(name, "icon")
		lay.applyDefaultSize(isIcon)
		if isIcon {
			iconLayout = lay
		} else if bannerLayout == nil {
			bannerLayout = lay
		}
	}

	if bannerLayout == nil && len(textures) > 0 {
		w, h := float32(textures[0].Width), float32(textures[0].Height)
		bannerLayout = SyntheticLayout(w, h, 0)
		result.Warnings = append(result.Warnings, "no .brlyt found, synthesized a single-pane layout (§4.15)")
	}

	if bannerLayout != nil {
		result.Banner = BuildRenderable(bannerLayout)
		result.BannerAnimEntries = classifyAnimations(animations, result.Banner)
	}
	if iconLayout != nil {
		result.Icon = BuildRenderable(iconLayout)
		result.IconAnimEntries = classifyAnimations(animations, result.Icon)
	}

	if result.Banner == nil && result.Icon == nil {
		return nil, newErr(NoRenderable, "pipeline", errNoRenderable)
	}

	return result, nil
}

func textureNames(arc *U8Archive) []string {
	var out []string
	for _, name := range arc.Order {
		if strings.HasSuffix(name, ".tpl") {
			out = append(out, name)
		}
	}
	return out
}

// scoreArchive implements §4.11's content-scoring table.
func scoreArchive(arc *U8Archive) int {
	score := 0
	szsCount := 0
	for _, name := range arc.Order {
		lower := strings.ToLower(name)
		switch {
		case strings.Contains(lower, "banner.bin"):
			score += 200
		case strings.Contains(lower, "icon.bin"):
			score += 180
		}
		switch {
		case strings.HasSuffix(lower, ".brlyt"):
			score += 80
		case strings.HasSuffix(lower, ".brlan"):
			score += 60
		case strings.HasSuffix(lower, ".tpl"):
			score += 40
		case strings.HasSuffix(lower, ".szs"):
			szsCount++
		}
		if strings.Contains(lower, "channel/screenall") {
			score += 260
		}
		if strings.Contains(lower, "homebutton") {
			score -= 120
		}
	}
	if szsCount > 0 {
		bonus := 25 * szsCount
		if bonus > 300 {
			bonus = 300
		}
		score += bonus
	}
	return score
}

func hasBannerPayload(arc *U8Archive) bool {
	for _, name := range arc.Order {
		if strings.Contains(strings.ToLower(name), "banner.bin") {
			return true
		}
	}
	return false
}

// regionPreference is the §4.11 region fallback order for
// screenall/<region>/layout00.szs.
var regionPreference = []string{"cmn", "usa", "eng", "jpn"}

// extractTarget picks the sub-archive that actually holds layout data,
// per §4.11's target-extraction rule: prefer banner.bin/icon.bin,
// else screenall/<region>/layout00.szs by region preference, else the
// largest candidate excluding sofkeybd/homebutton.
func extractTarget(arc *U8Archive, log Logger) *U8Archive {
	for _, name := range arc.Order {
		lower := strings.ToLower(name)
		if strings.Contains(lower, "banner.bin") || strings.Contains(lower, "icon.bin") {
			blob, _ := arc.Get(name)
			if sub := decodeSubArchive(blob, log); sub != nil {
				return sub
			}
		}
	}

	for _, region := range regionPreference {
		want := "screenall/" + region + "/layout00.szs"
		for _, name := range arc.Order {
			if strings.Contains(strings.ToLower(name), want) {
				blob, _ := arc.Get(name)
				if sub := decodeSubArchive(blob, log); sub != nil {
					return sub
				}
			}
		}
	}

	var bestName string
	var bestLen int
	for _, name := range arc.Order {
		lower := strings.ToLower(name)
		if strings.Contains(lower, "sofkeybd") || strings.Contains(lower, "homebutton") {
			continue
		}
		blob, _ := arc.Get(name)
		if len(blob) > bestLen {
			bestLen = len(blob)
			bestName = name
		}
	}
	if bestName == "" {
		return arc // nothing better: treat arc itself as the target
	}
	blob, _ := arc.Get(bestName)
	if sub := decodeSubArchive(blob, log); sub != nil {
		return sub
	}
	return arc
}

func decodeSubArchive(blob []byte, log Logger) *U8Archive {
	sub, err := ParseU8(blob, log)
	if err != nil {
		return nil
	}
	return sub
}

var rolePattern = struct {
	start, loop *regexp.Regexp
}{
	start: regexp.MustCompile(`(?i)start`),
	loop:  regexp.MustCompile(`(?i)loop`),
}

// animationRole is §4.11's filename-substring role inference.
func animationRole(name string) string {
	switch {
	case rolePattern.start.MatchString(name):
		return "start"
	case rolePattern.loop.MatchString(name):
		return "loop"
	default:
		return "generic"
	}
}

// classifyAnimations partitions every animation that targets rl by role
// (start/loop) and by render state, so state-specific animations coexist
// under the one layout instead of collapsing into a single pair
// (§4.11's animEntries). Animations with no RSO tag in their filename
// land in the "" (state-less) entry. Names are processed in sorted
// order so a layout with two same-role animations in the same state
// resolves deterministically rather than by map iteration order.
func classifyAnimations(animations map[string]*Animation, rl *RenderableLayout) map[string]AnimationSet {
	entries := make(map[string]AnimationSet)

	names := make([]string, 0, len(animations))
	for name := range animations {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		anim := animations[name]
		if !animTargetsLayout(anim, rl) {
			continue
		}

		state := ""
		if m := rsoPattern.FindString(name); m != "" {
			state = strings.ToUpper(m)
		}

		set := entries[state]
		set.State = state
		switch animationRole(name) {
		case "start":
			set.Start = anim
		case "loop":
			set.Loop = anim
		default:
			if set.Loop == nil {
				set.Loop = anim
			}
		}
		entries[state] = set
	}

	return entries
}

// animTargetsLayout returns whether any pane name in anim matches a
// pane present in rl, used to associate loose animation files with the
// layout they actually drive.
func animTargetsLayout(anim *Animation, rl *RenderableLayout) bool {
	for _, pa := range anim.Panes {
		if _, ok := rl.PaneIndexByName(pa.Name); ok {
			return true
		}
	}
	return len(anim.Panes) == 0
}
