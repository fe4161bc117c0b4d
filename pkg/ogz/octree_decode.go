package ogz

import (
	"fmt"

	"github.com/Faultbox/cubemap/pkg/math"
)

func corruptNode(format string, args ...any) error {
	return &FormatError{Op: "octree", Err: fmt.Errorf("%w: "+format, append([]any{ErrCorruptNode}, args...)...)}
}

// loadChildren decodes the 8 children of a node. On failure the cubes read
// so far are returned together with the error.
func (d *decoder) loadChildren(co math.IVec, size int) ([]Cube, error) {
	c := make([]Cube, 8)
	for i := range 8 {
		if err := d.loadCube(&c[i], math.Child(i, co, size), size); err != nil {
			return c, err
		}
	}
	return c, nil
}

func (d *decoder) loadCube(c *Cube, co math.IVec, size int) error {
	r := d.r
	tag := r.U8()
	if err := r.Err(); err != nil {
		return &FormatError{Op: "octree", Err: err}
	}
	hasChildren := false
	switch tag & 0x7 {
	case OctChildren:
		if size < 2 {
			return corruptNode("cube of size %d at %v has children", size, co)
		}
		var err error
		c.Children, err = d.loadChildren(co, size>>1)
		return err
	case OctLODCube:
		if size < 2 {
			return corruptNode("cube of size %d at %v has children", size, co)
		}
		hasChildren = true
	case OctEmpty:
		c.SetEmpty()
	case OctSolid:
		c.SetSolid()
	case OctNormal:
		r.ReadFull(c.Edges[:])
	default:
		return corruptNode("tag 0x%02x at %v", tag, co)
	}
	for i := range c.Texture {
		if d.version < 14 {
			c.Texture[i] = uint16(r.U8())
		} else {
			c.Texture[i] = r.U16()
		}
	}
	var err error
	switch {
	case d.version < 7:
		r.Skip(3)
	case d.version <= 31:
		d.loadCompat(c, tag, co, size)
	default:
		err = d.loadSurfaces(c, tag, co, size)
	}
	if err != nil {
		return err
	}
	if err := r.Err(); err != nil {
		return &FormatError{Op: "octree", Err: err}
	}
	if hasChildren {
		// The node keeps the leaf data read above alongside its children.
		var err error
		c.Children, err = d.loadChildren(co, size>>1)
		return err
	}
	return nil
}

func (d *decoder) loadSurfaces(c *Cube, tag uint8, co math.IVec, size int) error {
	r := d.r
	if tag&octFlagMaterial != 0 {
		if d.version <= 32 {
			c.Material = ConvertOldMaterial(int(r.U8()))
		} else {
			c.Material = r.U16()
		}
	}
	if tag&octFlagMerged != 0 {
		c.Merged = r.U8()
	}
	if tag&octFlagSurfaces == 0 {
		return nil
	}
	surfMask := int(r.U8())
	totalVerts := int(r.U8())
	ext := &CubeExt{Verts: make([]VertInfo, totalVerts)}
	c.Ext = ext
	offset := 0
	for i := range 6 {
		if surfMask&(1<<i) == 0 {
			continue
		}
		surf := &ext.Surfaces[i]
		surf.LMID[0] = r.U8()
		surf.LMID[1] = r.U8()
		vertMask := int(r.U8())
		surf.NumVerts = r.U8()
		if r.Err() != nil {
			return nil
		}
		numVerts := surf.TotalVerts()
		if numVerts == 0 {
			surf.Verts = 0
			continue
		}
		if offset+numVerts > totalVerts {
			return corruptNode("face %d of cube at %v needs %d vertices, %d left", i, co, numVerts, totalVerts-offset)
		}
		surf.Verts = uint8(offset)
		d.loadFaceVerts(c, i, ext.Verts[offset:offset+numVerts], *surf, vertMask, co, size)
		offset += numVerts
	}
	return nil
}

func (d *decoder) loadFaceVerts(c *Cube, orient int, verts []VertInfo, surf SurfaceInfo, vertMask int, co math.IVec, size int) {
	r := d.r
	fv := c.FaceVerts(orient)
	vo := vertOrigin(co)
	layerVerts := surf.LayerVerts()
	dim := Dimension(orient)
	vc, vr := dimC[dim], dimR[dim]
	hasXYZ := vertMask&vmXYZ != 0
	hasUV := vertMask&vmUV != 0
	hasNorm := vertMask&vmNorm != 0

	var n math.IVec
	bias := 0
	if hasXYZ {
		n, bias = facePlane(fv, size, vo)
	} else {
		vis := 3
		if layerVerts < 4 {
			vis = 1
			if vertMask&vmVisOrUV != 0 {
				vis = 2
			}
		}
		gen := genVisibleVerts(fv, vertMask&vmOrder, vis, size, vo)
		for k := 0; k < len(gen) && k < layerVerts; k++ {
			verts[k].SetPos(gen[k])
		}
	}
	solve := func(cc, rc int) math.IVec {
		var xyz math.IVec
		xyz = xyz.Set(vc, cc).Set(vr, rc)
		return xyz.Set(dim, planeCoord(n, bias, dim, vc, vr, xyz, vo))
	}

	if layerVerts == 4 {
		if hasXYZ && vertMask&vmOrder != 0 {
			c1, r1 := int(r.U16()), int(r.U16())
			c2, r2 := int(r.U16()), int(r.U16())
			verts[0].SetPos(solve(c1, r1))
			verts[1].SetPos(solve(c1, r2))
			verts[2].SetPos(solve(c2, r2))
			verts[3].SetPos(solve(c2, r1))
			hasXYZ = false
		}
		if hasUV && vertMask&vmVisOrUV != 0 {
			uvOrder := (vertMask & vmUVOrder) >> 4
			readUVQuad(r, verts[:4], uvOrder)
			if surf.NumVerts&LayerDup != 0 {
				readUVQuad(r, verts[4:8], uvOrder)
			}
			hasUV = false
		}
	}
	if hasNorm && vertMask&vmOneNorm != 0 {
		norm := r.U16()
		for k := range layerVerts {
			verts[k].Norm = norm
		}
		hasNorm = false
	}
	if hasXYZ || hasUV || hasNorm {
		for k := range layerVerts {
			v := &verts[k]
			if hasXYZ {
				cc, rc := int(r.U16()), int(r.U16())
				v.SetPos(solve(cc, rc))
			}
			if hasUV {
				v.U = r.U16()
				v.V = r.U16()
			}
			if hasNorm {
				v.Norm = r.U16()
			}
		}
	}
	if surf.NumVerts&LayerDup != 0 {
		for k := range layerVerts {
			v, t := &verts[k+layerVerts], verts[k]
			v.X, v.Y, v.Z = t.X, t.Y, t.Z
			if hasUV {
				v.U = r.U16()
				v.V = r.U16()
			}
			v.Norm = t.Norm
		}
	}
}

// readUVQuad reads two opposite corners of a rectangle in UV space and
// fills in the other two.
func readUVQuad(r *Reader, q []VertInfo, order int) {
	v0, v1, v2, v3 := &q[order], &q[(order+1)&3], &q[(order+2)&3], &q[(order+3)&3]
	v0.U, v0.V = r.U16(), r.U16()
	v2.U, v2.V = r.U16(), r.U16()
	v1.U, v1.V = v0.U, v2.V
	v3.U, v3.V = v2.U, v0.V
}
