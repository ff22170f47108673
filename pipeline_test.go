package wad

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func archiveOf(names ...string) *U8Archive {
	arc := &U8Archive{Files: make(map[string][]byte), Order: names}
	for _, n := range names {
		arc.Files[n] = []byte("x")
	}
	return arc
}

func TestScoreArchiveBannerAndExtras(t *testing.T) {
	arc := archiveOf("meta/banner.bin", "meta/banner.brlyt", "meta/anim.brlan", "meta/tex.tpl")
	require.Equal(t, 200+80+60+40, scoreArchive(arc))
}

func TestScoreArchiveIconAndHomebuttonPenalty(t *testing.T) {
	arc := archiveOf("icon.bin", "homebutton.tpl")
	require.Equal(t, 180+40-120, scoreArchive(arc))
}

func TestScoreArchiveChannelScreenallBonus(t *testing.T) {
	arc := archiveOf("channel/screenall/cmn/layout00.szs")
	require.Equal(t, 260+25, scoreArchive(arc))
}

func TestScoreArchiveSzsBonusCapsAt300(t *testing.T) {
	names := make([]string, 20)
	for i := range names {
		names[i] = "x.szs"
	}
	arc := archiveOf(names...)
	require.Equal(t, 300, scoreArchive(arc))
}

func TestHasBannerPayload(t *testing.T) {
	require.True(t, hasBannerPayload(archiveOf("meta/banner.bin")))
	require.False(t, hasBannerPayload(archiveOf("meta/icon.bin")))
}

func TestExtractTargetPrefersBannerBinSubArchive(t *testing.T) {
	sub := buildU8ArchiveBytes(t)
	arc := archiveOf("icon.bin", "banner.bin")
	arc.Files["banner.bin"] = sub

	got := extractTarget(arc, NopLogger{})
	require.NotNil(t, got)
	_, ok := got.Get("a.bin")
	require.True(t, ok)
}

func TestExtractTargetRegionPreferenceOrder(t *testing.T) {
	sub := buildU8ArchiveBytes(t)
	arc := archiveOf(
		"screenall/jpn/layout00.szs",
		"screenall/usa/layout00.szs",
	)
	arc.Files["screenall/jpn/layout00.szs"] = []byte("not a u8 archive")
	arc.Files["screenall/usa/layout00.szs"] = sub

	got := extractTarget(arc, NopLogger{})
	_, ok := got.Get("a.bin")
	require.True(t, ok)
}

func TestExtractTargetFallsBackToLargestExcludingSofkeybd(t *testing.T) {
	arc := archiveOf("sofkeybd.bin", "payload.bin")
	arc.Files["sofkeybd.bin"] = make([]byte, 1000)
	arc.Files["payload.bin"] = make([]byte, 10)

	got := extractTarget(arc, NopLogger{})
	require.Same(t, arc, got) // neither decodes as U8, falls through to arc itself
}

func TestAnimationRole(t *testing.T) {
	require.Equal(t, "start", animationRole("banner_Start.brlan"))
	require.Equal(t, "loop", animationRole("banner_loop.brlan"))
	require.Equal(t, "generic", animationRole("banner_anim.brlan"))
}

func TestClassifyAnimationsPartitionsByRole(t *testing.T) {
	rl := buildTwoPaneLayout()
	animations := map[string]*Animation{
		"banner_start.brlan": {Panes: []PaneAnim{{Name: "child"}}},
		"banner_loop.brlan":  {Panes: []PaneAnim{{Name: "child"}}},
		"unrelated.brlan":    {Panes: []PaneAnim{{Name: "nonexistent"}}},
	}
	entries := classifyAnimations(animations, rl)
	require.Len(t, entries, 1)
	set := entries[""]
	require.Equal(t, animations["banner_start.brlan"], set.Start)
	require.Equal(t, animations["banner_loop.brlan"], set.Loop)
}

func TestClassifyAnimationsKeysRenderState(t *testing.T) {
	rl := buildTwoPaneLayout()
	animations := map[string]*Animation{
		"rso1_loop.brlan": {Panes: []PaneAnim{{Name: "child"}}},
	}
	entries := classifyAnimations(animations, rl)
	set, ok := entries["RSO1"]
	require.True(t, ok)
	require.Equal(t, "RSO1", set.State)
}

// TestClassifyAnimationsKeepsCoexistingRenderStatesSeparate covers
// scenario S8 (spec.md:277): two RSO-tagged loop animations under the
// same layout must resolve into two distinct animEntries, not collapse
// into whichever is encountered last.
func TestClassifyAnimationsKeepsCoexistingRenderStatesSeparate(t *testing.T) {
	rl := buildTwoPaneLayout()
	animations := map[string]*Animation{
		"rso0_loop.brlan": {Panes: []PaneAnim{{Name: "child"}}},
		"rso1_loop.brlan": {Panes: []PaneAnim{{Name: "child"}}},
	}
	entries := classifyAnimations(animations, rl)
	require.Len(t, entries, 2)

	rso0, ok := entries["RSO0"]
	require.True(t, ok)
	require.Equal(t, animations["rso0_loop.brlan"], rso0.Loop)

	rso1, ok := entries["RSO1"]
	require.True(t, ok)
	require.Equal(t, animations["rso1_loop.brlan"], rso1.Loop)
}

// buildU8ArchiveBytes reuses the u8_test.go fixture builder.
func buildU8ArchiveBytes(t *testing.T) []byte {
	return buildU8(t)
}
