package ogz

import (
	stdmath "math"

	"github.com/Faultbox/cubemap/pkg/math"
)

// Lightmap atlas page size.
const (
	LightmapWidth  = 512
	LightmapHeight = 512
)

// surfaceCompat is the per-face lightmap record of maps up to version 31.
type surfaceCompat struct {
	TexCoords [8]uint8
	W, H      uint8
	X, Y      uint16
	LMID      uint8
	Layer     uint8
}

// normalsCompat holds byte-packed corner normals; (128,128,128) is unset.
type normalsCompat [4][3]uint8

var unsetNormal = [3]uint8{128, 128, 128}

// mergeCompat is the merged face rectangle of maps up to version 31.
type mergeCompat struct {
	U1, U2, V1, V2 uint16
}

func readSurfaceCompat(r *Reader) surfaceCompat {
	var s surfaceCompat
	r.ReadFull(s.TexCoords[:])
	s.W = r.U8()
	s.H = r.U8()
	s.X = r.U16()
	s.Y = r.U16()
	s.LMID = r.U8()
	s.Layer = r.U8()
	return s
}

func (d *decoder) fixLMID(lmid uint8) uint8 {
	if d.version < 10 {
		lmid++
	}
	if d.version < 18 {
		if lmid >= LMIDAmbient1 {
			lmid++
		}
		if lmid >= LMIDBright1 {
			lmid++
		}
	}
	if d.version < 19 && lmid >= LMIDDark {
		lmid += 2
	}
	return lmid
}

// loadCompat reads the legacy material, surface, normal and merge records
// of one leaf and rebuilds modern surfaces from them.
func (d *decoder) loadCompat(c *Cube, tag uint8, co math.IVec, size int) {
	r := d.r
	mask := r.U8()
	if mask&0x80 != 0 {
		c.Material = legacyMaterial(int(r.U8()), d.version)
	}
	var (
		surfaces                      [12]surfaceCompat
		normals                       [6]normalsCompat
		merges                        [6]mergeCompat
		hasSurfs, hasNorms, hasMerges int
	)
	if mask&0x3F != 0 {
		numSurfs := 6
		for i := 0; i < numSurfs; i++ {
			if i < 6 && mask&(1<<i) == 0 {
				continue
			}
			s := readSurfaceCompat(r)
			s.LMID = d.fixLMID(s.LMID)
			surfaces[i] = s
			if i < 6 {
				if mask&0x40 != 0 {
					hasNorms |= 1 << i
					for k := range normals[i] {
						r.ReadFull(normals[i][k][:])
					}
				}
				if s.Layer != 0 || s.LMID != LMIDAmbient {
					hasSurfs |= 1 << i
				}
				if s.Layer&2 != 0 {
					numSurfs++
				}
			}
			if r.Err() != nil {
				return
			}
		}
	}
	if d.version <= 8 {
		edgeSpanToVector(c)
	}
	if d.version <= 11 {
		for k := range 4 {
			c.Edges[k], c.Edges[8+k] = c.Edges[8+k], c.Edges[k]
		}
		c.Texture[0], c.Texture[4] = c.Texture[4], c.Texture[0]
		c.Texture[1], c.Texture[5] = c.Texture[5], c.Texture[1]
		if hasSurfs&0x33 != 0 {
			surfaces[0], surfaces[4] = surfaces[4], surfaces[0]
			surfaces[1], surfaces[5] = surfaces[5], surfaces[1]
			hasSurfs = hasSurfs&^0x33 | (hasSurfs&0x30)>>4 | (hasSurfs&0x03)<<4
		}
	}
	if d.version >= 20 && tag&octFlagMerged != 0 {
		merged := r.U8()
		c.Merged = merged & 0x3F
		if merged&0x80 != 0 {
			if mm := int(r.U8()); mm != 0 {
				hasMerges = mm & 0x3F
				for i := range 6 {
					if mm&(1<<i) == 0 {
						continue
					}
					m := &merges[i]
					m.U1, m.U2, m.V1, m.V2 = r.U16(), r.U16(), r.U16(), r.U16()
					if d.version <= 25 {
						uorigin, vorigin := m.U1&0xE000, m.V1&0xE000
						m.U1 = (m.U1 - uorigin) << 2
						m.U2 = (m.U2 - uorigin) << 2
						m.V1 = (m.V1 - vorigin) << 2
						m.V2 = (m.V2 - vorigin) << 2
					}
				}
			}
		}
	}
	if r.Err() != nil {
		return
	}
	if hasSurfs != 0 || hasNorms != 0 || hasMerges != 0 {
		convertOldSurfaces(c, co, size, &surfaces, hasSurfs, &normals, hasNorms, &merges, hasMerges)
	}
}

// lmCoord maps a legacy lightmap texel coordinate into the 16-bit atlas
// space. Every step is rounded to float32.
func lmCoord(origin uint16, tc uint8, extent uint8, page int, bias float32) uint16 {
	t := float32(tc) / 255
	t = float32(t * float32(int(extent)-1))
	u := float32(float32(origin) + t)
	u = float32(u * float32(65536/float32(page)))
	u = float32(u + bias)
	u = max(0, min(65535, u))
	return uint16(stdmath.Floor(float64(u)))
}

func convertOldSurfaces(c *Cube, co math.IVec, size int, srcs *[12]surfaceCompat, hasSurfs int, normals *[6]normalsCompat, hasNorms int, merges *[6]mergeCompat, hasMerges int) {
	var dst [6]SurfaceInfo
	verts := make([]VertInfo, 0, 6*2*MaxFaceVerts)
	numSurfs := 6
	for i := range 6 {
		if (hasSurfs|hasNorms|hasMerges)&(1<<i) == 0 {
			continue
		}
		ds := &dst[i]
		var src, blend *surfaceCompat
		if hasSurfs&(1<<i) != 0 {
			src = &srcs[i]
			switch {
			case src.Layer&2 != 0:
				blend = &srcs[numSurfs]
				numSurfs++
				ds.LMID[0] = src.LMID
				ds.LMID[1] = blend.LMID
				ds.NumVerts |= LayerBlend
				if blend.LMID >= LMIDReserved && (src.X != blend.X || src.Y != blend.Y || src.W != blend.W || src.H != blend.H || src.TexCoords != blend.TexCoords) {
					ds.NumVerts |= LayerDup
				}
			case src.Layer == 1:
				ds.LMID[1] = src.LMID
				ds.NumVerts |= LayerBottom
			default:
				ds.LMID[0] = src.LMID
				ds.NumVerts |= LayerTop
			}
		} else {
			ds.NumVerts |= LayerTop
		}
		useLMs := hasSurfs&(1<<i) != 0 && (ds.LMID[0] >= LMIDReserved || ds.LMID[1] >= LMIDReserved || ds.NumVerts&^LayerTop != 0)
		m := merges[i]
		useMerges := hasMerges&(1<<i) != 0 && m.U1 < m.U2 && m.V1 < m.V2
		useNorms := hasNorms&(1<<i) != 0 && normals[i][0] != unsetNormal
		if !useLMs && !useMerges && !useNorms {
			continue
		}

		v := c.FaceVerts(i)
		vo := vertOrigin(co)
		n := v[1].Sub(v[0]).Cross(v[2].Sub(v[0]))
		var pos [4]math.IVec
		if useMerges {
			offset := -n.Dot(v[0].Mul(size).Add(vo))
			dim := Dimension(i)
			vc, vr := dimC[dim], dimR[dim]
			for k := range 4 {
				fc := faceCoord(i, k)
				cc, rc := int(m.U1), int(m.V1)
				if fc.Get(vc) != 0 {
					cc = int(m.U2)
				}
				if fc.Get(vr) != 0 {
					rc = int(m.V2)
				}
				var mv math.IVec
				mv = mv.Set(vc, cc).Set(vr, rc)
				pos[k] = mv.Set(dim, planeCoord(n, offset, dim, vc, vr, mv, vo))
			}
		} else {
			e2 := v[2].Sub(v[0])
			e3 := v[0].Sub(v[3])
			convex := e3.Dot(n)
			vis := 3
			if convex == 0 {
				if e3.Cross(e2).IsZero() {
					if !n.IsZero() {
						vis = 1
					}
				} else if n.IsZero() {
					vis = 2
				}
			}
			order := 0
			if convex < 0 {
				order = 1
			}
			at := func(k int) math.IVec { return v[k].Mul(size).Add(vo) }
			pos[0] = at(order)
			pos[1], pos[3] = pos[0], pos[0]
			if vis&1 != 0 {
				pos[1] = at(order + 1)
			}
			pos[2] = at(order + 2)
			if vis&2 != 0 {
				pos[3] = at((order + 3) & 3)
			}
		}

		normal := func(k int) uint16 {
			if !useNorms || normals[i][k] == unsetNormal {
				return 0
			}
			return EncodeNormal(byteNormal(normals[i][k]))
		}
		skip := func(k int) bool { return k > 0 && (pos[k] == pos[0] || pos[k] == pos[k-1]) }

		start := len(verts)
		for k := range 4 {
			if skip(k) {
				continue
			}
			var dv VertInfo
			dv.SetPos(pos[k])
			if useLMs {
				dv.U = lmCoord(src.X, src.TexCoords[k*2], src.W, LightmapWidth, 0.5)
				dv.V = lmCoord(src.Y, src.TexCoords[k*2+1], src.H, LightmapHeight, 0.5)
			}
			dv.Norm = normal(k)
			verts = append(verts, dv)
		}
		ds.Verts = uint8(start)
		ds.NumVerts |= uint8(len(verts) - start)
		if ds.NumVerts&LayerDup != 0 {
			for k := range 4 {
				if skip(k) {
					continue
				}
				var bv VertInfo
				bv.SetPos(pos[k])
				bv.U = lmCoord(blend.X, blend.TexCoords[k*2], blend.W, LightmapWidth, 0)
				bv.V = lmCoord(blend.Y, blend.TexCoords[k*2+1], blend.H, LightmapHeight, 0)
				bv.Norm = normal(k)
				verts = append(verts, bv)
			}
		}
	}
	used := len(verts) > 0
	for _, s := range dst {
		if s != (SurfaceInfo{}) {
			used = true
		}
	}
	if used {
		c.Ext = &CubeExt{Surfaces: dst, Verts: verts}
	}
}

type plane struct {
	N      math.Vec3
	Offset float32
}

func toPlane(a, b, c math.Vec3) plane {
	n := b.Sub(a).Cross(c.Sub(a))
	mag := n.Length()
	if mag == 0 {
		return plane{}
	}
	n = math.Vec3{X: n.X / mag, Y: n.Y / mag, Z: n.Z / mag}
	return plane{N: n, Offset: -n.Dot(a)}
}

// edgePlane builds the plane through three corners displaced by the edge
// values along their shared axis.
func edgePlane(c *Cube, p1, p2, p3 math.IVec, solid bool) plane {
	dim := 0
	if p1.Y == p2.Y && p2.Y == p3.Y {
		dim = 1
	} else if p1.Z == p2.Z && p2.Z == p3.Z {
		dim = 2
	}
	coord := p1.Get(dim)
	displace := func(p math.IVec) math.Vec3 {
		val := coord * 8
		if !solid {
			val = edgeGet(*c.edge(dim, p.Get(dimR[dim])>>3, p.Get(dimC[dim])>>3), coord)
		}
		return p.Set(dim, val).Vec3()
	}
	return toPlane(displace(p1), displace(p2), displace(p3))
}

func threePlaneIntersect(pl1, pl2, pl3 plane) (math.Vec3, bool) {
	t1 := pl1.N.Cross(pl2.N)
	t4 := t1
	t1 = t1.Scale(pl3.Offset)
	t2 := pl3.N.Cross(pl1.N).Scale(pl2.Offset)
	t3 := pl2.N.Cross(pl3.N).Scale(pl1.Offset)
	t1 = t1.Add(t2).Add(t3).Scale(-1)
	den := t4.Dot(pl3.N)
	if den == 0 {
		return math.Vec3{}, false
	}
	return t1.Scale(1 / den), true
}

// edgeSpanToVector converts the edge-span cubes of maps up to version 8
// into corner-offset cubes by intersecting the three face planes meeting
// at every corner.
func edgeSpanToVector(c *Cube) {
	if c.IsEntirelySolid() || c.IsEmpty() {
		return
	}
	o := *c
	for x := range 2 {
		for y := range 2 {
			for z := range 2 {
				p := math.IVec{X: 8 * x, Y: 8 * y, Z: 8 * z}
				p1 := math.IVec{X: 8 - p.X, Y: p.Y, Z: p.Z}
				p2 := math.IVec{X: p.X, Y: 8 - p.Y, Z: p.Z}
				p3 := math.IVec{X: p.X, Y: p.Y, Z: 8 - p.Z}
				pl1 := edgePlane(&o, p, p1, p2, false)
				pl2 := edgePlane(&o, p, p2, p3, false)
				pl3 := edgePlane(&o, p, p3, p1, false)
				if pl1 == pl2 {
					pl1 = edgePlane(&o, p, p1, p2, true)
				}
				if pl1 == pl3 {
					pl1 = edgePlane(&o, p, p1, p2, true)
				}
				if pl2 == pl3 {
					pl2 = edgePlane(&o, p, p2, p3, true)
				}
				v, _ := threePlaneIntersect(pl1, pl2, pl3)
				v = v.Clamp(0, 8)
				edgeSet(c.edge(0, y, z), x, int(v.X+0.49))
				edgeSet(c.edge(1, z, x), y, int(v.Y+0.49))
				edgeSet(c.edge(2, x, y), z, int(v.Z+0.49))
			}
		}
	}
}
