package wad

// This file holds the shared data-model structs described in §3 of
// SPEC_FULL.md. Parsed entities are immutable after construction; only
// RenderableLayout (layout_builder.go) is mutated in place by the scene
// engine.

// ContentRecord describes one entry in a WAD's TMD content table.
type ContentRecord struct {
	ID            uint32
	Index         uint16
	Type          uint16
	PlaintextSize uint64
	EncryptedSize uint64
	Offset        int64
	Name          string // "%08x.app"
}

// WadFrame is the parsed top-level container (§4.4, §6).
type WadFrame struct {
	HeaderSize   uint32
	Type         uint32
	TicketOffset int64
	TicketLen    uint32
	TMDOffset    int64
	TMDLen       uint32
	DataOffset   int64
	Contents     []ContentRecord

	raw []byte // full WAD file, kept for section slicing
}

// Ticket carries the fields needed to unwrap a title's AES key (§4.3).
type Ticket struct {
	TitleIDBytes      [8]byte
	EncryptedTitleKey [16]byte
	CommonKeyIndex    CommonKeyIndex
}

// U8Archive is a flattened path -> blob archive (§3, §4.5).
type U8Archive struct {
	Files map[string][]byte
	// Order preserves declaration order from the source node table, per
	// §5's ordering guarantee.
	Order []string
}

// Get returns the blob at path and whether it was present.
func (a *U8Archive) Get(path string) ([]byte, bool) {
	b, ok := a.Files[path]
	return b, ok
}

// TplFormat enumerates the eleven GameCube pixel formats §4.6 decodes.
type TplFormat uint32

const (
	FormatI4      TplFormat = 0
	FormatI8      TplFormat = 1
	FormatIA4     TplFormat = 2
	FormatIA8     TplFormat = 3
	FormatRGB565  TplFormat = 4
	FormatRGB5A3  TplFormat = 5
	FormatRGBA8   TplFormat = 6
	FormatCI4     TplFormat = 8
	FormatCI8     TplFormat = 9
	FormatCI14X2  TplFormat = 10
	FormatCMPR    TplFormat = 14
)

// TplImage is one decoded texture: always expanded to row-major RGBA8.
type TplImage struct {
	Width  int
	Height int
	Format TplFormat
	Pixels []byte // len == Width*Height*4
}

// Layout is the parsed BRLYT tree (§3, §4.7).
type Layout struct {
	Width, Height float32
	Textures      []string
	Fonts         []string
	Materials     []Material
	Groups        []Group
	Panes         []Pane
}

// TextureMap is one material texture-map slot.
type TextureMap struct {
	TextureIndex int
	WrapS, WrapT uint8
}

// TextureSRT is a material's texture scale/rotate/translate.
type TextureSRT struct {
	XTrans, YTrans float32
	Rotation       float32
	XScale, YScale float32
}

// Material corresponds to one mat1 entry (§3, §4.7).
type Material struct {
	Name          string
	Flags         uint32
	TextureMaps   []TextureMap
	TextureSRTs   []TextureSRT
	TexCoordGens  int
	Color1        [4]int16
	Color2        [4]int16
	Color3        [4]int16
	TevColors     [4][4]byte
	BlendMode     byte
	AlphaCompare  byte
}

// PaneKind tags the variant a Pane carries, replacing the tagged union
// spec.md describes (§9 design note: Go has no sum types, so the common
// header is embedded by value and kind-specific fields sit alongside it,
// zero-valued when Kind doesn't apply - the same flattening the teacher
// uses for mapper-specific cartridge fields).
type PaneKind int

const (
	PaneKindPane PaneKind = iota
	PaneKindPicture
	PaneKindText
	PaneKindBounding
	PaneKindWindow
)

// Origin is the 3x3 anchor enum used for both pane origin and composition.
type Origin int

const (
	OriginTopLeft Origin = iota
	OriginTopCenter
	OriginTopRight
	OriginCenterLeft
	OriginCenter
	OriginCenterRight
	OriginBottomLeft
	OriginBottomCenter
	OriginBottomRight
)

// Offsets returns the (col, row) in {-1,0,1} this origin represents, per
// §4.10's "col = origin % 3 - 1, row = origin / 3 - 1" mapping.
func (o Origin) Offsets() (col, row int) {
	return int(o)%3 - 1, int(o)/3 - 1
}

// VertexColors holds the four corner colors of a pic1 pane (TL,TR,BL,BR).
type VertexColors [4][4]byte

// TexCoord is one (s,t) pair.
type TexCoord struct{ S, T float32 }

// Pane is one node of the layout tree (§3, §4.7).
type Pane struct {
	Name    string
	Kind    PaneKind
	Visible bool
	Origin  Origin
	Alpha   byte

	Parent       int // index into Layout.Panes, or -1
	ParentName   string
	Translate    Vec3
	Rotate       Vec3
	Scale        Vec2
	Size         Vec2
	MaterialIdx  int // -1 if none

	// pic1
	VertexColors VertexColors
	TexCoords    [][4]TexCoord // one quad per texture map

	// txt1
	TextBuffer    []byte
	FontIdx       int
	PositionFlags byte
	Alignment     byte
	TopColor      [4]byte
	BottomColor   [4]byte
	TextSize      Vec2
	CharSpacing   float32
	LineSpacing   float32
	Text          string
}

// Vec2/Vec3 are plain float32 tuples used throughout the layout/animation
// model; spec.md never calls for anything heavier than component access.
type Vec2 struct{ X, Y float32 }
type Vec3 struct{ X, Y, Z float32 }

// Group is one grp1 entry: a named set of pane names (§3, §4.7).
type Group struct {
	Name       string
	PaneNames  []string
}

// TagType enumerates the BRLAN tag kinds (§3, §4.8).
type TagType string

const (
	TagRLPA TagType = "RLPA"
	TagRLVC TagType = "RLVC"
	TagRLVI TagType = "RLVI"
	TagRLTS TagType = "RLTS"
	TagRLMC TagType = "RLMC"
	TagRLTP TagType = "RLTP"
)

// KeyframeDataType selects the on-disk keyframe record layout (§4.8).
type KeyframeDataType byte

const (
	DataLinearF32 KeyframeDataType = 0
	DataStepU16   KeyframeDataType = 1
	DataHermiteF32 KeyframeDataType = 2
)

// Extrapolation selects pre/post behavior outside a track's frame range.
type Extrapolation int

const (
	ExtrapClamp Extrapolation = iota
	ExtrapLoop
)

// Keyframe is one (frame, value, tangent) sample (§3, §4.8, §4.9).
type Keyframe struct {
	Frame float32
	Value float32
	Blend float32
}

// Track is one animated property of one pane (§3, §4.8).
type Track struct {
	TargetGroup byte
	Opcode      byte
	DataType    KeyframeDataType
	Pre         Extrapolation
	Post        Extrapolation
	Keyframes   []Keyframe
}

// Tag groups tracks of one TagType for one pane.
type Tag struct {
	Type    TagType
	Entries []Track
}

// PaneAnim is all tags for one pane name in an Animation.
type PaneAnim struct {
	Name string
	Tags []Tag
}

// Animation is the parsed BRLAN (§3, §4.8).
type Animation struct {
	Name      string
	FrameSize float32
	LoopFlag  bool
	Panes     []PaneAnim
}

// AudioTrack is decoded BNS audio (§3, §4.13).
type AudioTrack struct {
	ChannelCount int
	SampleRate   int
	SampleCount  int
	LoopFlag     bool
	LoopStart    int
	PCM16        [][]int16
}

// CharWidth is one BRFNT CWDH record.
type CharWidth struct {
	Kerning     int8
	GlyphWidth  byte
	Advance     byte
}

// FontInfo mirrors a BRFNT FINF section.
type FontInfo struct {
	FontType    byte
	DefaultChar uint16
	Height      byte
	Width       byte
	Ascent      byte
}

// GlyphInfo mirrors a BRFNT TGLP section's sheet metrics.
type GlyphInfo struct {
	CellWidth, CellHeight byte
	SheetCount            int
	SheetFormat           TplFormat
	BaselinePos           byte
	MaxCharWidth          byte
}

// Font is the parsed BRFNT (§3, §4.12).
type Font struct {
	Info       FontInfo
	Glyph      GlyphInfo
	CharWidths map[int]CharWidth
	CharMap    map[rune]int
	Sheets     []*TplImage
}
