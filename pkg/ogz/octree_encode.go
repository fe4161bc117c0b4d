package ogz

import (
	"fmt"

	"github.com/Faultbox/cubemap/pkg/math"
)

// Octree node tags. The low three bits of a tag byte select the kind; the
// high bits flag optional blocks of a leaf.
const (
	OctChildren = 0
	OctEmpty    = 1
	OctSolid    = 2
	OctNormal   = 3
	OctLODCube  = 4

	octFlagSurfaces = 0x20
	octFlagMaterial = 0x40
	octFlagMerged   = 0x80
)

// Per-face vertex mask bits.
const (
	vmOrder   = 0x01 // generated: start at corner 1; explicit: quad shortcut
	vmVisOrUV = 0x02 // generated: drop corner 1; with UVs: quad UV shortcut
	vmXYZ     = 0x04
	vmOneNorm = 0x08
	vmUVOrder = 0x30
	vmUV      = 0x40
	vmNorm    = 0x80
)

const progressInterval = 0xFFF

type encoder struct {
	w          *Writer
	noLMs      bool
	progress   Progress
	count      int
	totalNodes int
	err        error
}

func (e *encoder) fail(co math.IVec, orient int) {
	if e.err == nil {
		e.err = &FormatError{Op: "octree", Err: fmt.Errorf("%w: face %d of cube at %v references missing vertices", ErrCorruptNode, orient, co)}
	}
}

func (e *encoder) tick() {
	if e.count&progressInterval == 0 && e.progress != nil {
		e.progress.Report(float32(e.count)/float32(max(e.totalNodes, 1)), "saving octree...")
	}
	e.count++
}

// encodeCubes writes the 8 children of a node at origin o whose children
// have the given size.
func (e *encoder) encodeCubes(c []Cube, o math.IVec, size int) {
	e.tick()
	for i := range 8 {
		if e.err != nil {
			return
		}
		co := math.Child(i, o, size)
		if c[i].Children != nil {
			if len(c[i].Children) != 8 {
				e.err = &FormatError{Op: "octree", Err: fmt.Errorf("%w: cube at %v has %d children", ErrCorruptNode, co, len(c[i].Children))}
				return
			}
			e.w.PutU8(OctChildren)
			e.encodeCubes(c[i].Children, co, size>>1)
			continue
		}
		e.encodeLeaf(&c[i], co, size)
	}
}

func (e *encoder) encodeLeaf(c *Cube, co math.IVec, size int) {
	w := e.w
	var flags uint8
	surfMask, totalVerts := 0, 0
	if c.Material != MatAir {
		flags |= octFlagMaterial
	}
	if c.IsEmpty() {
		w.PutU8(flags | OctEmpty)
	} else {
		if !e.noLMs {
			if c.Merged != 0 {
				flags |= octFlagMerged
			}
			if c.Ext != nil {
				for j, surf := range c.Ext.Surfaces {
					if !surf.Used() {
						continue
					}
					if int(surf.Verts)+surf.TotalVerts() > len(c.Ext.Verts) {
						e.fail(co, j)
						return
					}
					flags |= octFlagSurfaces
					surfMask |= 1 << j
					totalVerts += surf.TotalVerts()
				}
			}
		}
		if c.IsEntirelySolid() {
			w.PutU8(flags | OctSolid)
		} else {
			w.PutU8(flags | OctNormal)
			w.PutBytes(c.Edges[:])
		}
	}
	for _, t := range c.Texture {
		w.PutU16(t)
	}
	if flags&octFlagMaterial != 0 {
		w.PutU16(c.Material)
	}
	if flags&octFlagMerged != 0 {
		w.PutU8(c.Merged)
	}
	if flags&octFlagSurfaces == 0 {
		return
	}
	w.PutU8(uint8(surfMask))
	w.PutU8(uint8(totalVerts))
	for j := range 6 {
		if surfMask&(1<<j) != 0 {
			e.encodeSurface(c, j, co, size)
		}
	}
}

// quadOrder returns the first rotation k under which the four points form
// an axis-aligned rectangle in the face plane, or -1.
func quadOrder(v [4]math.IVec, vc, vr int) int {
	for k := range 4 {
		v0, v1, v2, v3 := v[k], v[(k+1)&3], v[(k+2)&3], v[(k+3)&3]
		if v1.Get(vc) == v0.Get(vc) && v1.Get(vr) == v2.Get(vr) && v3.Get(vc) == v2.Get(vc) && v3.Get(vr) == v0.Get(vr) {
			return k
		}
	}
	return -1
}

func uvQuad(v0, v1, v2, v3 VertInfo) bool {
	return v1.U == v0.U && v1.V == v2.V && v3.U == v2.U && v3.V == v0.V
}

// generatedLayout finds the order and visibility bits under which the
// decoder regenerates exactly the stored positions from the cube shape.
func generatedLayout(c *Cube, orient int, verts []VertInfo, layerVerts int, co math.IVec, size int) (mask int, ok bool) {
	var candidates [][2]int
	switch layerVerts {
	case 4:
		candidates = [][2]int{{0, 3}, {1, 3}}
	case 3:
		candidates = [][2]int{{0, 1}, {1, 1}, {0, 2}, {1, 2}}
	default:
		return 0, false
	}
	fv := c.FaceVerts(orient)
	vo := vertOrigin(co)
	for _, cand := range candidates {
		order, vis := cand[0], cand[1]
		gen := genVisibleVerts(fv, order, vis, size, vo)
		match := true
		for k, p := range gen {
			if verts[k].Pos() != p {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		if order == 1 {
			mask |= vmOrder
		}
		if layerVerts < 4 && vis == 2 {
			mask |= vmVisOrUV
		}
		return mask, true
	}
	return 0, false
}

func (e *encoder) encodeSurface(c *Cube, orient int, co math.IVec, size int) {
	w := e.w
	surf := c.Ext.Surfaces[orient]
	layerVerts := surf.LayerVerts()
	numVerts := surf.TotalVerts()
	dim := Dimension(orient)
	vc, vr := dimC[dim], dimR[dim]
	var verts []VertInfo
	if numVerts > 0 {
		verts = c.Ext.Verts[int(surf.Verts) : int(surf.Verts)+numVerts]
	}
	vertMask, vertOrder, uvOrder := 0, 0, 0
	if numVerts > 0 {
		explicit := c.Merged&(1<<orient) != 0
		if !explicit {
			if m, ok := generatedLayout(c, orient, verts, layerVerts, co, size); ok {
				vertMask |= m
			} else {
				explicit = true
			}
		}
		if explicit {
			vertMask |= vmXYZ
			if layerVerts == 4 {
				p := [4]math.IVec{verts[0].Pos(), verts[1].Pos(), verts[2].Pos(), verts[3].Pos()}
				if k := quadOrder(p, vc, vr); k >= 0 {
					vertMask |= vmOrder
					vertOrder = k
				}
			}
		}
		matchNorm := true
		for _, v := range verts {
			if v.U != 0 || v.V != 0 {
				vertMask |= vmUV
			}
			if v.Norm != 0 {
				vertMask |= vmNorm
				if v.Norm != verts[0].Norm {
					matchNorm = false
				}
			}
		}
		if matchNorm {
			vertMask |= vmOneNorm
		}
		if vertMask&vmUV != 0 && layerVerts == 4 {
			for k := range 4 {
				if !uvQuad(verts[k], verts[(k+1)&3], verts[(k+2)&3], verts[(k+3)&3]) {
					continue
				}
				if surf.NumVerts&LayerDup != 0 &&
					!uvQuad(verts[4+k], verts[4+(k+1)&3], verts[4+(k+2)&3], verts[4+(k+3)&3]) {
					continue
				}
				uvOrder = k
				vertMask |= vmVisOrUV | ((k+4-vertOrder)&3)<<4
				break
			}
		}
	}
	w.PutU8(surf.LMID[0])
	w.PutU8(surf.LMID[1])
	w.PutU8(uint8(vertMask))
	w.PutU8(surf.NumVerts)
	if numVerts == 0 {
		return
	}

	hasXYZ := vertMask&vmXYZ != 0
	hasUV := vertMask&vmUV != 0
	hasNorm := vertMask&vmNorm != 0
	if layerVerts == 4 {
		if hasXYZ && vertMask&vmOrder != 0 {
			v0, v2 := verts[vertOrder].Pos(), verts[(vertOrder+2)&3].Pos()
			w.PutU16(uint16(v0.Get(vc)))
			w.PutU16(uint16(v0.Get(vr)))
			w.PutU16(uint16(v2.Get(vc)))
			w.PutU16(uint16(v2.Get(vr)))
			hasXYZ = false
		}
		if hasUV && vertMask&vmVisOrUV != 0 {
			v0, v2 := verts[uvOrder], verts[(uvOrder+2)&3]
			w.PutU16(v0.U)
			w.PutU16(v0.V)
			w.PutU16(v2.U)
			w.PutU16(v2.V)
			if surf.NumVerts&LayerDup != 0 {
				b0, b2 := verts[4+uvOrder], verts[4+(uvOrder+2)&3]
				w.PutU16(b0.U)
				w.PutU16(b0.V)
				w.PutU16(b2.U)
				w.PutU16(b2.V)
			}
			hasUV = false
		}
	}
	if hasNorm && vertMask&vmOneNorm != 0 {
		w.PutU16(verts[0].Norm)
		hasNorm = false
	}
	if hasXYZ || hasUV || hasNorm {
		for k := range layerVerts {
			v := verts[(k+vertOrder)%layerVerts]
			if hasXYZ {
				p := v.Pos()
				w.PutU16(uint16(p.Get(vc)))
				w.PutU16(uint16(p.Get(vr)))
			}
			if hasUV {
				w.PutU16(v.U)
				w.PutU16(v.V)
			}
			if hasNorm {
				w.PutU16(v.Norm)
			}
		}
	}
	if surf.NumVerts&LayerDup != 0 {
		for k := range layerVerts {
			v := verts[layerVerts+(k+vertOrder)%layerVerts]
			if hasUV {
				w.PutU16(v.U)
				w.PutU16(v.V)
			}
		}
	}
}
