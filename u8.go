package wad

import (
	"bytes"
	"fmt"
)

const (
	u8Magic       = 0x55AA382D
	u8NodeSize    = 12
	u8NodeFile    = 0
	u8NodeDir     = 1
	imd5HeaderLen = 32
)

// ParseU8 builds a U8Archive from buf, trying the fallback chain from
// §4.5 in order when the magic doesn't match directly: IMD5 strip, LZ77
// (BE then LE), Yaz0, then a linear magic scan.
func ParseU8(buf []byte, log Logger) (*U8Archive, error) {
	if log == nil {
		log = NopLogger{}
	}

	if arc, err := parseU8Direct(buf); err == nil {
		return arc, nil
	}

	if len(buf) >= imd5HeaderLen && bytes.Equal(buf[:4], []byte("IMD5")) {
		if arc, err := parseU8Direct(buf[imd5HeaderLen:]); err == nil {
			return arc, nil
		}
	}

	if len(buf) >= 8 && bytes.Equal(buf[:4], []byte("LZ77")) {
		be, errBE := DecodeLZ77(buf, SizeBE)
		le, errLE := DecodeLZ77(buf, SizeLE)

		var candidates [][]byte
		if errBE == nil {
			candidates = append(candidates, be)
		}
		if errLE == nil {
			candidates = append(candidates, le)
		}
		if best := pickBestU8Candidate(candidates); best != nil {
			if arc, err := parseU8Direct(best); err == nil {
				return arc, nil
			}
		}
	}

	if len(buf) >= 16 && bytes.Equal(buf[:4], []byte("Yaz0")) {
		if dec, err := DecodeYaz0(buf); err == nil {
			if arc, err := parseU8Direct(dec); err == nil {
				return arc, nil
			}
		}
	}

	if off, ok := scanForU8Magic(buf); ok {
		if arc, err := parseU8Direct(buf[off:]); err == nil {
			return arc, nil
		}
	}

	log.Warn("u8: no recognizable archive in %d bytes", len(buf))
	return nil, newErr(BadMagic, "u8", fmt.Errorf("no u8 archive found"))
}

// pickBestU8Candidate chooses among candidate decodes (§8 invariant 8):
// the decode whose U8 parse yields the most file entries wins, ties going
// to the smaller output. Every file entry counts; renderable files
// (layouts, animations, textures) are not weighted above other files.
func pickBestU8Candidate(candidates [][]byte) []byte {
	var best []byte
	bestScore := -1
	for _, c := range candidates {
		arc, err := parseU8Direct(c)
		score := -1
		if err == nil {
			score = len(arc.Files)
		}
		if score > bestScore || (score == bestScore && best != nil && len(c) < len(best)) {
			bestScore = score
			best = c
		}
	}
	return best
}

func scanForU8Magic(buf []byte) (int, bool) {
	magic := []byte{0x55, 0xAA, 0x38, 0x2D}
	for i := 0; i+4 <= len(buf); i++ {
		if !bytes.Equal(buf[i:i+4], magic) {
			continue
		}
		if sanityCheckU8Root(buf, i) {
			return i, true
		}
	}
	return 0, false
}

// sanityCheckU8Root validates the structural checks §4.5 requires before
// trusting a magic-scan hit: root-node offset >= 0x10, root type ==
// directory, root numEntries >= 1.
func sanityCheckU8Root(buf []byte, magicOff int) bool {
	r := NewReader(buf[magicOff:])
	if _, err := r.U32(); err != nil { // skip magic
		return false
	}
	rootNodeOff, err := r.U32()
	if err != nil || rootNodeOff < 0x10 {
		return false
	}
	nodeStart := magicOff + int(rootNodeOff)
	if nodeStart+u8NodeSize > len(buf) {
		return false
	}
	nodeType := buf[nodeStart]
	if nodeType != u8NodeDir {
		return false
	}
	endIdx := be32(buf[nodeStart+8 : nodeStart+12])
	return endIdx >= 1
}

func be32(b []byte) int {
	return int(b[0])<<24 | int(b[1])<<16 | int(b[2])<<8 | int(b[3])
}

type u8Node struct {
	typ          byte
	nameOffset   int
	dataOffset   int
	sizeOrEnd    int
}

// parseU8Direct requires the magic to match at offset 0.
func parseU8Direct(buf []byte) (*U8Archive, error) {
	r := NewReader(buf)
	magic, err := r.U32()
	if err != nil || magic != u8Magic {
		return nil, newErr(BadMagic, "u8", fmt.Errorf("bad u8 magic"))
	}

	rootNodeOff, err := r.U32()
	if err != nil {
		return nil, newErr(Truncated, "u8", err)
	}
	if _, err := r.U32(); err != nil { // nodesSize
		return nil, newErr(Truncated, "u8", err)
	}
	if _, err := r.U32(); err != nil { // dataOffset, recomputed below
		return nil, newErr(Truncated, "u8", err)
	}

	if err := r.Seek(int(rootNodeOff)); err != nil {
		return nil, newErr(Truncated, "u8", err)
	}
	root, err := readU8Node(r)
	if err != nil {
		return nil, err
	}
	if root.typ != u8NodeDir {
		return nil, newErr(BadMagic, "u8", fmt.Errorf("root is not a directory"))
	}

	numNodes := root.sizeOrEnd
	nodes := make([]u8Node, 0, numNodes)
	nodes = append(nodes, root)
	for i := 1; i < numNodes; i++ {
		n, err := readU8Node(r)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}

	stringTableOff := int(rootNodeOff) + numNodes*u8NodeSize

	arc := &U8Archive{Files: make(map[string][]byte)}

	// Directory-stack traversal keyed by each directory's exclusive end
	// index, per §4.5.
	type stackEntry struct {
		path string
		end  int
	}
	stack := []stackEntry{{path: "", end: numNodes}}

	for i := 1; i < numNodes; i++ {
		for len(stack) > 0 && i >= stack[len(stack)-1].end {
			stack = stack[:len(stack)-1]
		}
		parent := ""
		if len(stack) > 0 {
			parent = stack[len(stack)-1].path
		}

		name, err := readU8Name(buf, stringTableOff, nodes[i].nameOffset)
		if err != nil {
			return nil, err
		}
		full := name
		if parent != "" {
			full = parent + "/" + name
		}

		if nodes[i].typ == u8NodeDir {
			stack = append(stack, stackEntry{path: full, end: nodes[i].sizeOrEnd})
			continue
		}

		start := nodes[i].dataOffset
		size := nodes[i].sizeOrEnd
		if start < 0 || size < 0 || start+size > len(buf) {
			return nil, newErr(Truncated, "u8", fmt.Errorf("file %s out of range", full))
		}
		arc.Files[full] = buf[start : start+size]
		arc.Order = append(arc.Order, full)
	}

	return arc, nil
}

func readU8Node(r *Reader) (u8Node, error) {
	b, err := r.Slice(u8NodeSize)
	if err != nil {
		return u8Node{}, newErr(Truncated, "u8-node", err)
	}
	typ := b[0]
	nameOffset := int(b[1])<<16 | int(b[2])<<8 | int(b[3])
	dataOffset := be32(b[4:8])
	sizeOrEnd := be32(b[8:12])
	return u8Node{typ: typ, nameOffset: nameOffset, dataOffset: dataOffset, sizeOrEnd: sizeOrEnd}, nil
}

func readU8Name(buf []byte, tableOff, nameOff int) (string, error) {
	start := tableOff + nameOff
	if start < 0 || start >= len(buf) {
		return "", newErr(Truncated, "u8-name", fmt.Errorf("name offset out of range"))
	}
	r := NewReader(buf)
	if err := r.Seek(start); err != nil {
		return "", newErr(Truncated, "u8-name", err)
	}
	return r.NullString()
}
