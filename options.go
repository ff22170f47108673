package wad

// This file holds the engine configuration surface named in §9's design
// notes: "a single options struct with the recognized options
// enumerated", mirroring how nes.NewConsole takes its handful of
// top-level parameters directly rather than through a builder.

// RenderStateMode selects how Options.RenderStateName is interpreted.
type RenderStateMode int

const (
	// RenderStateAuto resolves to RSO0 when present, else the first
	// state group, else "no state" (§4.10, §9 open question).
	RenderStateAuto RenderStateMode = iota
	// RenderStateExplicit filters to the named RSO<N> group's subtree.
	RenderStateExplicit
	// RenderStateNone draws every pane, ignoring groups entirely.
	RenderStateNone
)

// Locale is one of the eight title-locale codes §4.10 recognizes.
type Locale string

const (
	LocaleJP Locale = "JP"
	LocaleNE Locale = "NE"
	LocaleGE Locale = "GE"
	LocaleSP Locale = "SP"
	LocaleIT Locale = "IT"
	LocaleFR Locale = "FR"
	LocaleUS Locale = "US"
	LocaleKR Locale = "KR"
)

// LocaleMode selects whether a specific locale filter applies.
type LocaleMode int

const (
	LocaleAuto LocaleMode = iota
	LocaleExplicit
)

// PlaybackMode selects the phase machine's behavior for state-only
// animations with no dedicated loop (§4.10).
type PlaybackMode int

const (
	PlaybackLoop PlaybackMode = iota
	PlaybackHold
)

// Options is the engine's full configuration surface (§9).
type Options struct {
	RenderStateMode RenderStateMode
	RenderStateName string // e.g. "RSO1"; used iff RenderStateMode==RenderStateExplicit

	LocaleMode LocaleMode
	Locale     Locale

	// PaneStateOverrides maps a group name to the one pane name within
	// it that should render; every other pane in that group is
	// suppressed (§4.10 override model).
	PaneStateOverrides map[string]string

	PlaybackMode PlaybackMode
	FPS          uint16
}

// DefaultOptions returns the zero-configuration Options: auto render
// state, auto locale, loop playback, 60fps.
func DefaultOptions() Options {
	return Options{
		RenderStateMode: RenderStateAuto,
		LocaleMode:      LocaleAuto,
		PlaybackMode:    PlaybackLoop,
		FPS:             60,
	}
}

// NegativeFrameShiftEnabled gates the §4.8 "all non-positive frames get
// shifted by frameSize" normalization. Kept isolated per §9's open
// question: "port it verbatim but keep it isolated so it can be
// disabled."
var NegativeFrameShiftEnabled = true

// CI14X2HighBits gates which 14 bits of a packed CI14X2 palette index
// are read. true (default) reads the high 14 bits, per §9's open
// question ("the source uses (packed >> 2) & 0x3FFF... keep this as the
// primary reading"); false reads the low 14 bits instead.
var CI14X2HighBits = true
