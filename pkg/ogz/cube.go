package ogz

import (
	"github.com/Faultbox/cubemap/pkg/math"
)

// Surface layer flags packed into SurfaceInfo.NumVerts.
const (
	LayerTop     = 1 << 5
	LayerBottom  = 1 << 6
	LayerDup     = 1 << 7
	LayerBlend   = LayerTop | LayerBottom
	MaxFaceVerts = 15
)

// Lightmap ids with fixed meaning.
const (
	LMIDAmbient = iota
	LMIDAmbient1
	LMIDBright
	LMIDBright1
	LMIDDark
	LMIDDark1
	LMIDReserved
)

// Edge bytes of fully empty and fully solid faces.
const (
	edgeEmpty = 0x00
	edgeSolid = 0x80
)

// SurfaceInfo describes the vertices of one face of a leaf cube.
type SurfaceInfo struct {
	LMID     [2]uint8
	Verts    uint8 // offset into CubeExt.Verts
	NumVerts uint8 // vertex count in the low bits, layer flags above
}

// LayerVerts is the number of vertices in one layer.
func (s SurfaceInfo) LayerVerts() int { return int(s.NumVerts & MaxFaceVerts) }

// TotalVerts counts both layers when the face carries a duplicate layer.
func (s SurfaceInfo) TotalVerts() int {
	if s.NumVerts&LayerDup != 0 {
		return s.LayerVerts() * 2
	}
	return s.LayerVerts()
}

// Used reports whether the surface carries anything worth storing.
func (s SurfaceInfo) Used() bool {
	return s.LMID[0] != LMIDAmbient || s.LMID[1] != LMIDAmbient || s.NumVerts&^LayerTop != 0
}

// VertInfo is one face vertex: a position in 1/8 cube units, a lightmap
// texture coordinate and a packed normal.
type VertInfo struct {
	X, Y, Z uint16
	U, V    uint16
	Norm    uint16
}

// Pos returns the vertex position.
func (v VertInfo) Pos() math.IVec {
	return math.IVec{X: int(v.X), Y: int(v.Y), Z: int(v.Z)}
}

// SetPos stores a position.
func (v *VertInfo) SetPos(p math.IVec) {
	v.X, v.Y, v.Z = uint16(p.X), uint16(p.Y), uint16(p.Z)
}

// CubeExt holds per-face surface data of a leaf.
type CubeExt struct {
	Surfaces [6]SurfaceInfo
	Verts    []VertInfo
}

// Cube is an octree node. A node with Children is interior and its other
// fields are unused, except on a LOD cube from an old map, which keeps the
// leaf data stored with it. Leaves describe their shape with 12 edge bytes, each
// holding two 4-bit offsets along one axis.
type Cube struct {
	Children []Cube
	Edges    [12]uint8
	Texture  [6]uint16
	Material uint16
	Merged   uint8
	Ext      *CubeExt
}

// NewCubes returns 8 empty leaves.
func NewCubes() []Cube {
	c := make([]Cube, 8)
	for i := range c {
		c[i].SetEmpty()
	}
	return c
}

// SetEmpty makes the cube an empty leaf.
func (c *Cube) SetEmpty() {
	for i := range c.Edges {
		c.Edges[i] = edgeEmpty
	}
}

// SetSolid makes the cube a solid leaf.
func (c *Cube) SetSolid() {
	for i := range c.Edges {
		c.Edges[i] = edgeSolid
	}
}

// IsEmpty reports whether the cube encloses no volume.
func (c *Cube) IsEmpty() bool {
	return c.Edges[0] == 0 && c.Edges[1] == 0 && c.Edges[2] == 0 && c.Edges[3] == 0
}

// IsEntirelySolid reports whether the cube is a full block.
func (c *Cube) IsEntirelySolid() bool {
	for _, e := range c.Edges {
		if e != edgeSolid {
			return false
		}
	}
	return true
}

// CountNodes returns the number of nodes in the subtree list.
func CountNodes(cubes []Cube) int {
	n := 0
	for i := range cubes {
		n++
		if cubes[i].Children != nil {
			n += CountNodes(cubes[i].Children)
		}
	}
	return n
}

var (
	dimR = [3]int{1, 2, 0}
	dimC = [3]int{2, 0, 1}
)

// Dimension returns the axis a face orientation is perpendicular to.
func Dimension(orient int) int { return orient >> 1 }

func edgeGet(edge uint8, coord int) int {
	if coord != 0 {
		return int(edge >> 4)
	}
	return int(edge & 0xF)
}

func edgeSet(edge *uint8, coord, val int) {
	if coord != 0 {
		*edge = *edge&0x0F | uint8(val)<<4
	} else {
		*edge = *edge&0xF0 | uint8(val)
	}
}

func (c *Cube) edge(d, x, y int) *uint8 {
	return &c.Edges[d<<2+y<<1+x]
}

func (c *Cube) faceVert(x, y, z int) math.IVec {
	return math.IVec{
		X: edgeGet(*c.edge(0, y, z), x),
		Y: edgeGet(*c.edge(1, z, x), y),
		Z: edgeGet(*c.edge(2, x, y), z),
	}
}

// faceCorners lists the unit-cube corners of each face in winding order.
var faceCorners = [6][4][3]int{
	{{0, 1, 1}, {0, 1, 0}, {0, 0, 0}, {0, 0, 1}},
	{{1, 1, 1}, {1, 0, 1}, {1, 0, 0}, {1, 1, 0}},
	{{1, 0, 1}, {0, 0, 1}, {0, 0, 0}, {1, 0, 0}},
	{{0, 1, 1}, {1, 1, 1}, {1, 1, 0}, {0, 1, 0}},
	{{0, 1, 0}, {1, 1, 0}, {1, 0, 0}, {0, 0, 0}},
	{{0, 1, 1}, {0, 0, 1}, {1, 0, 1}, {1, 1, 1}},
}

// faceCoord returns corner k of face orient scaled to the 0..8 grid.
func faceCoord(orient, k int) math.IVec {
	fc := faceCorners[orient][k]
	return math.IVec{X: fc[0] * 8, Y: fc[1] * 8, Z: fc[2] * 8}
}

// FaceVerts returns the four corners of a face in 0..8 units relative to
// the cube origin.
func (c *Cube) FaceVerts(orient int) [4]math.IVec {
	var v [4]math.IVec
	for k, fc := range faceCorners[orient] {
		v[k] = c.faceVert(fc[0], fc[1], fc[2])
	}
	return v
}

// vertOrigin is the origin that stored vertex positions are relative to.
func vertOrigin(co math.IVec) math.IVec {
	return co.Mask(0xFFF).Shl(3)
}

// facePlane returns the integer normal and offset of the plane through a
// face so that n·p + offset == 0 for stored positions p.
func facePlane(v [4]math.IVec, size int, vo math.IVec) (math.IVec, int) {
	e1 := v[1].Sub(v[0])
	e2 := v[2].Sub(v[0])
	n := e1.Cross(e2)
	if n.IsZero() {
		n = e2.Cross(v[3].Sub(v[0]))
	}
	return n, -n.Dot(v[0].Mul(size).Add(vo))
}

// planeCoord solves the plane for the coordinate along dim.
func planeCoord(n math.IVec, offset, dim, vc, vr int, xyz math.IVec, vo math.IVec) int {
	if nd := n.Get(dim); nd != 0 {
		return -(offset + n.Get(vc)*xyz.Get(vc) + n.Get(vr)*xyz.Get(vr)) / nd
	}
	return vo.Get(dim)
}

// genVisibleVerts builds the positions the decoder derives for a face that
// stores no explicit coordinates. vis bit 0 keeps the second corner, bit 1
// the fourth; order 1 starts at the second corner.
func genVisibleVerts(v [4]math.IVec, order, vis, size int, vo math.IVec) []math.IVec {
	pos := func(i int) math.IVec { return v[i].Mul(size).Add(vo) }
	out := make([]math.IVec, 0, 4)
	out = append(out, pos(order))
	if vis&1 != 0 {
		out = append(out, pos(order+1))
	}
	out = append(out, pos(order+2))
	if vis&2 != 0 {
		out = append(out, pos((order+3)&3))
	}
	return out
}
