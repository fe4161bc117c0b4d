// Package objexport converts the visible surface of a world into a
// Wavefront OBJ mesh with a companion MTL material library.
package objexport

import (
	"sort"

	"github.com/Faultbox/cubemap/pkg/math"
	"github.com/Faultbox/cubemap/pkg/ogz"
)

// Texture describes the image a texture slot draws with.
type Texture struct {
	Name          string
	Width, Height int
}

// DefaultTexture stands in for slots the texture source does not know.
var DefaultTexture = Texture{Name: "packages/textures/notexture.png", Width: 512, Height: 512}

// TextureSource resolves a base texture slot to its image.
type TextureSource interface {
	Lookup(slot int) (Texture, bool)
}

// texelsPerUnit is the texture density of a slot at scale 1.
const texelsPerUnit = 8

// Texture axes for faces perpendicular to x, y and z.
var (
	sDim = [3]int{1, 0, 0}
	tDim = [3]int{2, 2, 1}
)

// texRotations holds flip x, flip y and transpose for each slot rotation.
var texRotations = [8][3]bool{
	{false, false, false},
	{false, true, true},
	{true, true, false},
	{true, false, true},
	{true, false, false},
	{false, true, false},
	{false, false, true},
	{true, true, true},
}

// Corner is one triangle corner: 0-based indices into Mesh.Verts and
// Mesh.TexCoords.
type Corner struct {
	Vert, TexCoord int
}

// Group collects the triangles drawn with one texture slot variant.
type Group struct {
	VSlot   int
	Texture Texture
	Tris    [][3]Corner
}

// Mesh is a triangle soup with shared vertices and texture coordinates.
type Mesh struct {
	Verts     []math.Vec3
	TexCoords []math.Vec2
	Groups    []*Group
}

// Triangles returns the triangle count over all groups.
func (m *Mesh) Triangles() int {
	n := 0
	for _, g := range m.Groups {
		n += len(g.Tris)
	}
	return n
}

type builder struct {
	w        *ogz.World
	textures TextureSource
	base     []int

	mesh   *Mesh
	verts  map[math.Vec3]int
	tcs    map[math.Vec2]int
	groups map[int]*Group
}

// Build collects every visible face of w. Faces textured with slot 0 (sky),
// faces on the world boundary and faces against an entirely solid
// neighbour are skipped. textures may be nil.
func Build(w *ogz.World, textures TextureSource) *Mesh {
	b := &builder{
		w:        w,
		textures: textures,
		base:     w.BaseSlots(),
		mesh:     &Mesh{},
		verts:    make(map[math.Vec3]int),
		tcs:      make(map[math.Vec2]int),
		groups:   make(map[int]*Group),
	}
	b.walk(w.Root, math.IVec{}, w.Size>>1)

	for _, g := range b.groups {
		b.mesh.Groups = append(b.mesh.Groups, g)
	}
	sort.Slice(b.mesh.Groups, func(i, j int) bool { return b.mesh.Groups[i].VSlot < b.mesh.Groups[j].VSlot })
	return b.mesh
}

func (b *builder) walk(cubes []ogz.Cube, o math.IVec, size int) {
	for i := range cubes {
		c := &cubes[i]
		co := math.Child(i, o, size)
		if c.Children != nil {
			b.walk(c.Children, co, size>>1)
			continue
		}
		if c.IsEmpty() {
			continue
		}
		for orient := range 6 {
			b.face(c, orient, co, size)
		}
	}
}

// leafAt returns the leaf of at least the given size containing p, or nil
// when that region is subdivided further.
func (b *builder) leafAt(p math.IVec, size int) *ogz.Cube {
	cubes := b.w.Root
	o := math.IVec{}
	for s := b.w.Size >> 1; ; s >>= 1 {
		i := 0
		if p.X >= o.X+s {
			i |= 1
		}
		if p.Y >= o.Y+s {
			i |= 2
		}
		if p.Z >= o.Z+s {
			i |= 4
		}
		o = math.Child(i, o, s)
		c := &cubes[i]
		if c.Children == nil {
			return c
		}
		if s <= size {
			return nil
		}
		cubes = c.Children
	}
}

// hidden reports whether a face lying flat on the cube side is covered by
// its neighbour, or faces out of the world.
func (b *builder) hidden(c *ogz.Cube, orient int, co math.IVec, size int) bool {
	d := ogz.Dimension(orient)
	side := orient & 1
	for _, v := range c.FaceVerts(orient) {
		if v.Get(d) != side*8 {
			return false
		}
	}
	p := co
	if side != 0 {
		p = p.Set(d, co.Get(d)+size)
	} else {
		p = p.Set(d, co.Get(d)-1)
	}
	if pd := p.Get(d); pd < 0 || pd >= b.w.Size {
		return true
	}
	n := b.leafAt(p, size)
	return n != nil && n.IsEntirelySolid()
}

// polygon returns the world positions of a face, or nil when the face
// draws nothing.
func (b *builder) polygon(c *ogz.Cube, orient int, co math.IVec, size int) []math.Vec3 {
	merged := c.Merged&(1<<orient) != 0
	if c.Ext != nil {
		surf := c.Ext.Surfaces[orient]
		start, n := int(surf.Verts), surf.LayerVerts()
		if n >= 3 && start+n <= len(c.Ext.Verts) {
			origin := co.Mask(^0xFFF).Vec3()
			out := make([]math.Vec3, 0, n)
			for _, v := range c.Ext.Verts[start : start+n] {
				out = append(out, v.Pos().Vec3().Scale(1.0/8).Add(origin))
			}
			return out
		}
	}
	if merged {
		return nil
	}
	out := make([]math.Vec3, 0, 4)
	scale := float32(size) / 8
	for _, v := range c.FaceVerts(orient) {
		p := co.Vec3().Add(v.Vec3().Scale(scale))
		if len(out) > 0 && (out[len(out)-1] == p || out[0] == p) {
			continue
		}
		out = append(out, p)
	}
	if len(out) < 3 {
		return nil
	}
	return out
}

func (b *builder) face(c *ogz.Cube, orient int, co math.IVec, size int) {
	tex := int(c.Texture[orient])
	if tex == 0 {
		return
	}
	if c.Merged&(1<<orient) == 0 && b.hidden(c, orient, co, size) {
		return
	}
	poly := b.polygon(c, orient, co, size)
	if poly == nil {
		return
	}

	g := b.group(tex)
	corners := make([]Corner, len(poly))
	for k, p := range poly {
		corners[k] = Corner{Vert: b.vert(p), TexCoord: b.texCoord(p, orient, tex, g.Texture)}
	}
	for k := 1; k+1 < len(corners); k++ {
		a, m, z := corners[0], corners[k], corners[k+1]
		if a.Vert == m.Vert || m.Vert == z.Vert || a.Vert == z.Vert {
			continue
		}
		g.Tris = append(g.Tris, [3]Corner{a, m, z})
	}
}

func (b *builder) group(vslot int) *Group {
	if g, ok := b.groups[vslot]; ok {
		return g
	}
	tex := DefaultTexture
	if vslot < len(b.base) && b.base[vslot] >= 0 && b.textures != nil {
		if t, ok := b.textures.Lookup(b.base[vslot]); ok {
			tex = t
		}
	}
	if tex.Width <= 0 || tex.Height <= 0 {
		tex.Width, tex.Height = DefaultTexture.Width, DefaultTexture.Height
	}
	g := &Group{VSlot: vslot, Texture: tex}
	b.groups[vslot] = g
	return g
}

func (b *builder) vert(p math.Vec3) int {
	if i, ok := b.verts[p]; ok {
		return i
	}
	i := len(b.mesh.Verts)
	b.mesh.Verts = append(b.mesh.Verts, p)
	b.verts[p] = i
	return i
}

// texCoord projects p onto the face plane axes and applies the slot's
// scale, rotation and offset.
func (b *builder) texCoord(p math.Vec3, orient, vslot int, tex Texture) int {
	var scale float32 = 1
	var rot, xoff, yoff int32
	if vslot < len(b.w.VSlots) {
		vs := b.w.VSlots[vslot]
		if vs.Scale > 0 {
			scale = vs.Scale
		}
		rot, xoff, yoff = vs.Rotation, vs.XOffset, vs.YOffset
	}
	d := ogz.Dimension(orient)
	uv := math.Vec2{X: p.Get(sDim[d]), Y: p.Get(tDim[d])}.Scale(texelsPerUnit / scale)
	if rot >= 0 && int(rot) < len(texRotations) {
		r := texRotations[rot]
		if r[2] {
			uv = uv.Swap()
		}
		if r[0] {
			uv.X = -uv.X
		}
		if r[1] {
			uv.Y = -uv.Y
		}
	}
	uv = uv.Add(math.Vec2{X: float32(xoff), Y: float32(yoff)})
	uv = uv.Div(math.Vec2{X: float32(tex.Width), Y: float32(tex.Height)})

	if i, ok := b.tcs[uv]; ok {
		return i
	}
	i := len(b.mesh.TexCoords)
	b.mesh.TexCoords = append(b.mesh.TexCoords, uv)
	b.tcs[uv] = i
	return i
}
