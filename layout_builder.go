package wad

import "fmt"

// RenderableLayout is the scene engine's single-owner deep clone of a
// parsed Layout (§4.15, §9 design note: "the renderable layout clone is
// single-owner (the engine)"). It carries runtime-only bookkeeping -
// the resolved pane-chain cache - alongside the cloned tree, so the
// engine can attach state without mutating the shareable, immutable
// Layout it was built from.
type RenderableLayout struct {
	Layout

	// chains[i] is the root-to-self chain of pane indices for Panes[i],
	// memoized once at construction (§4.10 pane-chain resolver).
	chains [][]int

	groupIndex map[string]int
}

// BuildRenderable deep-clones layout and precomputes every pane's chain.
func BuildRenderable(layout *Layout) *RenderableLayout {
	rl := &RenderableLayout{
		Layout: Layout{
			Width:     layout.Width,
			Height:    layout.Height,
			Textures:  append([]string(nil), layout.Textures...),
			Fonts:     append([]string(nil), layout.Fonts...),
			Materials: append([]Material(nil), layout.Materials...),
			Groups:    make([]Group, len(layout.Groups)),
			Panes:     make([]Pane, len(layout.Panes)),
		},
	}

	for i, g := range layout.Groups {
		rl.Groups[i] = Group{Name: g.Name, PaneNames: append([]string(nil), g.PaneNames...)}
	}
	for i, m := range layout.Materials {
		rl.Materials[i] = cloneMaterial(m)
	}
	for i, p := range layout.Panes {
		rl.Panes[i] = clonePane(p)
	}

	rl.groupIndex = make(map[string]int, len(rl.Groups))
	for i, g := range rl.Groups {
		rl.groupIndex[g.Name] = i
	}

	rl.chains = make([][]int, len(rl.Panes))
	for i := range rl.Panes {
		rl.chains[i] = resolvePaneChain(rl.Panes, i)
	}

	return rl
}

func cloneMaterial(m Material) Material {
	m.TextureMaps = append([]TextureMap(nil), m.TextureMaps...)
	m.TextureSRTs = append([]TextureSRT(nil), m.TextureSRTs...)
	return m
}

func clonePane(p Pane) Pane {
	p.TexCoords = append([][4]TexCoord(nil), p.TexCoords...)
	p.TextBuffer = append([]byte(nil), p.TextBuffer...)
	return p
}

// resolvePaneChain walks parent links for Panes[idx], returning
// [root, ..., self] with cycle detection - abort (truncate) on revisit,
// per §4.10 and §8 invariant 5.
func resolvePaneChain(panes []Pane, idx int) []int {
	visited := make(map[int]bool)
	var rev []int
	cur := idx
	for cur >= 0 && cur < len(panes) {
		if visited[cur] {
			break
		}
		visited[cur] = true
		rev = append(rev, cur)
		cur = panes[cur].Parent
	}
	chain := make([]int, len(rev))
	for i, v := range rev {
		chain[len(rev)-1-i] = v
	}
	return chain
}

// Chain returns the memoized [root, ..., self] pane-index chain.
func (rl *RenderableLayout) Chain(idx int) []int {
	if idx < 0 || idx >= len(rl.chains) {
		return nil
	}
	return rl.chains[idx]
}

// GroupByNameLookup looks up a parsed group by its name.
func (rl *RenderableLayout) GroupByNameLookup(name string) (*Group, bool) {
	idx, ok := rl.groupIndex[name]
	if !ok {
		return nil, false
	}
	return &rl.Groups[idx], true
}

// PaneIndexByName performs a linear scan for a pane with the given name,
// used by group/override resolution where only names are known.
func (rl *RenderableLayout) PaneIndexByName(name string) (int, bool) {
	for i, p := range rl.Panes {
		if p.Name == name {
			return i, true
		}
	}
	return 0, false
}

// SyntheticLayout builds a minimal one-pane pic1 layout sized to a
// decoded texture, for meta archives that carry textures/materials but
// no .brlyt (§4.15).
func SyntheticLayout(width, height float32, textureIdx int) *Layout {
	mat := Material{
		Name: "synthetic",
		TextureMaps: []TextureMap{
			{TextureIndex: textureIdx, WrapS: 0, WrapT: 0},
		},
		TexCoordGens: 1,
	}

	pane := Pane{
		Name:        fmt.Sprintf("synthetic_pane_%d", textureIdx),
		Kind:        PaneKindPicture,
		Visible:     true,
		Origin:      OriginCenter,
		Alpha:       255,
		Parent:      -1,
		Scale:       Vec2{X: 1, Y: 1},
		Size:        Vec2{X: width, Y: height},
		MaterialIdx: 0,
		VertexColors: VertexColors{
			{255, 255, 255, 255}, {255, 255, 255, 255}, {255, 255, 255, 255}, {255, 255, 255, 255},
		},
		TexCoords: [][4]TexCoord{
			{{0, 0}, {1, 0}, {0, 1}, {1, 1}},
		},
		FontIdx: -1,
	}

	return &Layout{
		Width:     width,
		Height:    height,
		Materials: []Material{mat},
		Panes:     []Pane{pane},
	}
}
