package ogz

import (
	"fmt"
)

// Lightmap type bits.
const (
	LMDiffuse  = 0
	LMBumpMap0 = 1
	LMBumpMap1 = 2
	LMTypeMask = 0x0F
	LMAlpha    = 0x10
)

// Lightmap is one precomputed lighting page.
type Lightmap struct {
	Type uint8
	// UnlitX and UnlitY locate a texel reserved for unlit surfaces, or -1.
	UnlitX, UnlitY int
	BPP            int
	Data           []byte
}

// HasUnlit reports whether the page stores an unlit texel position.
func (lm *Lightmap) HasUnlit() bool { return lm.UnlitX >= 0 }

func readLightmap(r *Reader, version int) Lightmap {
	lm := Lightmap{UnlitX: -1, UnlitY: -1, BPP: 3}
	if version >= 17 {
		t := r.U8()
		lm.Type = t & 0x7F
		if version >= 20 && t&0x80 != 0 {
			lm.UnlitX = int(r.U16())
			lm.UnlitY = int(r.U16())
		}
	}
	if lm.Type&LMAlpha != 0 && lm.Type&LMTypeMask != LMBumpMap1 {
		lm.BPP = 4
	}
	lm.Data = r.Bytes(lm.BPP * LightmapWidth * LightmapHeight)
	return lm
}

func writeLightmap(w *Writer, lm *Lightmap) {
	t := lm.Type
	if lm.HasUnlit() {
		t |= 0x80
	}
	w.PutU8(t)
	if lm.HasUnlit() {
		w.PutU16(uint16(lm.UnlitX))
		w.PutU16(uint16(lm.UnlitY))
	}
	size := lm.BPP * LightmapWidth * LightmapHeight
	data := lm.Data
	if len(data) < size {
		data = append(append([]byte(nil), data...), make([]byte, size-len(data))...)
	}
	w.PutBytes(data[:size])
}

const (
	// MaxWaterPlanes bounds the water plane list of the PVS block.
	MaxWaterPlanes = 32
	maxPVSBytes    = 1 << 28
	pvsWaterFlag   = 0x80000000
)

// PVS is the precomputed visibility data: one compressed bit string per
// view cell plus the heights of water planes.
type PVS struct {
	WaterPlanes []int32
	Lengths     []uint16
	Data        []byte
}

// ViewCells returns the number of view cells.
func (p *PVS) ViewCells() int {
	if p == nil {
		return 0
	}
	return len(p.Lengths)
}

func readPVS(r *Reader, numPVS int) (*PVS, error) {
	p := &PVS{}
	total := r.U32()
	if total&pvsWaterFlag != 0 {
		total &^= pvsWaterFlag
		n := r.U32()
		if n > MaxWaterPlanes {
			return nil, &FormatError{Op: "pvs", Err: fmt.Errorf("%w: %d water planes", ErrMalformedHeader, n)}
		}
		p.WaterPlanes = make([]int32, n)
		for i := range p.WaterPlanes {
			p.WaterPlanes[i] = r.I32()
		}
	}
	if total > maxPVSBytes {
		return nil, &FormatError{Op: "pvs", Err: fmt.Errorf("%w: %d bytes of visibility data", ErrMalformedHeader, total)}
	}
	if numPVS > maxPVSBytes/2 {
		return nil, &FormatError{Op: "pvs", Err: fmt.Errorf("%w: %d view cells", ErrMalformedHeader, numPVS)}
	}
	// Lengths grow as they are read so a truncated stream stops early.
	p.Lengths = make([]uint16, 0, min(numPVS, 1<<12))
	for range numPVS {
		l := r.U16()
		if r.Err() != nil {
			break
		}
		p.Lengths = append(p.Lengths, l)
	}
	p.Data = r.Bytes(int(total))
	if err := r.Err(); err != nil {
		return nil, &FormatError{Op: "pvs", Err: err}
	}
	return p, nil
}

func writePVS(w *Writer, p *PVS) {
	total := uint32(len(p.Data))
	if len(p.WaterPlanes) > 0 {
		total |= pvsWaterFlag
	}
	w.PutU32(total)
	if len(p.WaterPlanes) > 0 {
		w.PutU32(uint32(len(p.WaterPlanes)))
		for _, h := range p.WaterPlanes {
			w.PutI32(h)
		}
	}
	for _, l := range p.Lengths {
		w.PutU16(l)
	}
	w.PutBytes(p.Data)
}

// Blend map node kinds.
const (
	BlendBranch = 0
	BlendSolid  = 1
	BlendImage  = 2

	// BlendImageSize is the side of an image node in texels.
	BlendImageSize = 64
	maxBlendDepth  = 16
)

// BlendNode is a node of the blend map quadtree.
type BlendNode struct {
	Kind     uint8
	Value    uint8         // solid nodes
	Image    []byte        // image nodes, BlendImageSize squared
	Children [4]*BlendNode // branch nodes
}

// SolidBlend returns a solid node.
func SolidBlend(v uint8) *BlendNode {
	return &BlendNode{Kind: BlendSolid, Value: v}
}

// ShouldSave reports whether the blend map differs from the default fully
// opaque map.
func (b *BlendNode) ShouldSave() bool {
	return b != nil && !(b.Kind == BlendSolid && b.Value == 0xFF)
}

// readBlendNode decodes a subtree. An unknown node kind turns the node into
// the default solid node and stops reading; the return value reports
// whether the subtree was complete.
func readBlendNode(r *Reader, depth int) (*BlendNode, bool) {
	kind := r.U8()
	if r.Err() != nil {
		return SolidBlend(0xFF), false
	}
	switch kind {
	case BlendSolid:
		return SolidBlend(r.U8()), r.Err() == nil
	case BlendImage:
		n := &BlendNode{Kind: BlendImage, Image: r.Bytes(BlendImageSize * BlendImageSize)}
		return n, r.Err() == nil
	case BlendBranch:
		if depth >= maxBlendDepth {
			return SolidBlend(0xFF), false
		}
		n := &BlendNode{Kind: BlendBranch}
		for i := range n.Children {
			n.Children[i] = SolidBlend(0xFF)
		}
		for i := range n.Children {
			child, ok := readBlendNode(r, depth+1)
			n.Children[i] = child
			if !ok {
				return n, false
			}
		}
		return n, true
	default:
		return SolidBlend(0xFF), false
	}
}

func writeBlendNode(w *Writer, b *BlendNode) {
	w.PutU8(b.Kind)
	switch b.Kind {
	case BlendSolid:
		w.PutU8(b.Value)
	case BlendImage:
		img := b.Image
		if len(img) != BlendImageSize*BlendImageSize {
			img = make([]byte, BlendImageSize*BlendImageSize)
			copy(img, b.Image)
		}
		w.PutBytes(img)
	case BlendBranch:
		for _, c := range b.Children {
			if c == nil {
				c = SolidBlend(0xFF)
			}
			writeBlendNode(w, c)
		}
	}
}
