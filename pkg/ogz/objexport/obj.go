package objexport

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/Faultbox/cubemap/pkg/math"
	"github.com/Faultbox/cubemap/pkg/ogz"
)

// WriteOBJ writes the mesh as OBJ text referencing the material library
// mtllib. Positions are centred on the bounding box in the horizontal
// plane, rest on z = 0 and are emitted in y-up order.
func (m *Mesh) WriteOBJ(w io.Writer, mtllib string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# obj file of Cube 2 level\n\n")
	if mtllib != "" {
		fmt.Fprintf(bw, "mtllib %s\n\n", mtllib)
	}

	center := m.center()
	for _, v := range m.Verts {
		p := v.Add(center)
		fmt.Fprintf(bw, "v %s %s %s\n", formatCoord(-p.Y), formatCoord(p.Z), formatCoord(p.X))
	}
	if len(m.Verts) > 0 {
		fmt.Fprintln(bw)
	}
	for _, tc := range m.TexCoords {
		fmt.Fprintf(bw, "vt %.6f %.6f\n", tc.X, 1-tc.Y)
	}
	if len(m.TexCoords) > 0 {
		fmt.Fprintln(bw)
	}

	for _, g := range m.Groups {
		fmt.Fprintf(bw, "g slot%d\n", g.VSlot)
		fmt.Fprintf(bw, "usemtl slot%d\n\n", g.VSlot)
		for _, tri := range g.Tris {
			// The axis swap above mirrors the mesh, so winding is reversed.
			fmt.Fprintf(bw, "f %d/%d %d/%d %d/%d\n",
				tri[2].Vert+1, tri[2].TexCoord+1,
				tri[1].Vert+1, tri[1].TexCoord+1,
				tri[0].Vert+1, tri[0].TexCoord+1)
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// WriteMTL writes one material per group.
func (m *Mesh) WriteMTL(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# mtl file of Cube 2 level\n\n")
	for _, g := range m.Groups {
		fmt.Fprintf(bw, "newmtl slot%d\n", g.VSlot)
		fmt.Fprintf(bw, "map_Kd %s\n\n", g.Texture.Name)
	}
	return bw.Flush()
}

func (m *Mesh) center() math.Vec3 {
	if len(m.Verts) == 0 {
		return math.Vec3{}
	}
	lo, hi := m.Verts[0], m.Verts[0]
	for _, v := range m.Verts[1:] {
		lo = math.Vec3{X: min(lo.X, v.X), Y: min(lo.Y, v.Y), Z: min(lo.Z, v.Z)}
		hi = math.Vec3{X: max(hi.X, v.X), Y: max(hi.Y, v.Y), Z: max(hi.Z, v.Z)}
	}
	return math.Vec3{X: -(hi.X + lo.X) / 2, Y: -(hi.Y + lo.Y) / 2, Z: -lo.Z}
}

// formatCoord prints whole numbers without a fraction.
func formatCoord(f float32) string {
	if i := int64(f); float32(i) == f {
		return strconv.FormatInt(i, 10)
	}
	return strconv.FormatFloat(float64(f), 'f', 3, 32)
}

// Export builds the mesh of w and writes it to obj and mtl. mtlName is the
// library name the OBJ refers to.
func Export(w *ogz.World, textures TextureSource, obj, mtl io.Writer, mtlName string) (*Mesh, error) {
	m := Build(w, textures)
	if err := m.WriteOBJ(obj, mtlName); err != nil {
		return nil, fmt.Errorf("write obj: %w", err)
	}
	if err := m.WriteMTL(mtl); err != nil {
		return nil, fmt.Errorf("write mtl: %w", err)
	}
	return m, nil
}
