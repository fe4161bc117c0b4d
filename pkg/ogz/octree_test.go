package ogz

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Faultbox/cubemap/pkg/math"
)

func TestEncodeLeaf_Solid(t *testing.T) {
	var c Cube
	c.SetSolid()

	var buf bytes.Buffer
	enc := &encoder{w: NewWriter(&buf)}
	enc.encodeLeaf(&c, math.IVec{}, 512)

	want := append([]byte{OctSolid}, make([]byte, 12)...)
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("encodeLeaf() = %x, want %x", buf.Bytes(), want)
	}

	d := &decoder{r: NewReader(&buf), version: MapVersion}
	var got Cube
	if err := d.loadCube(&got, math.IVec{}, 512); err != nil {
		t.Fatalf("loadCube failed: %v", err)
	}
	if !got.IsEntirelySolid() || got.Ext != nil || got.Material != MatAir {
		t.Errorf("loadCube() = %+v, want plain solid cube", got)
	}
}

func TestLoadCube_Tags(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		size  int
		check func(t *testing.T, c *Cube)
		want  error
	}{
		{
			name: "empty with material",
			data: append(append([]byte{OctEmpty | octFlagMaterial}, make([]byte, 12)...), byte(MatWater), 0),
			size: 512,
			check: func(t *testing.T, c *Cube) {
				if !c.IsEmpty() || c.Material != MatWater {
					t.Errorf("got %+v, want empty water cube", c)
				}
			},
		},
		{
			name: "normal cube edges",
			data: append([]byte{OctNormal, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x40, 0x40, 0x40, 0x40}, make([]byte, 12)...),
			size: 512,
			check: func(t *testing.T, c *Cube) {
				if c.Edges[8] != 0x40 || c.IsEmpty() || c.IsEntirelySolid() {
					t.Errorf("unexpected edges %v", c.Edges)
				}
			},
		},
		{name: "unknown tag", data: []byte{0x07}, size: 512, want: ErrCorruptNode},
		{name: "children below unit size", data: []byte{OctChildren}, size: 1, want: ErrCorruptNode},
		{name: "truncated textures", data: []byte{OctSolid, 1, 0, 2}, size: 512, want: ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &decoder{r: NewReader(bytes.NewReader(tt.data)), version: MapVersion}
			var c Cube
			err := d.loadCube(&c, math.IVec{}, tt.size)
			if tt.want != nil {
				if !errors.Is(err, tt.want) {
					t.Errorf("loadCube() error = %v, want %v", err, tt.want)
				}
				return
			}
			if err != nil {
				t.Fatalf("loadCube failed: %v", err)
			}
			tt.check(t, &c)
		})
	}
}

func TestLoadCube_LODCubeKeepsChildren(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(OctLODCube | octFlagMaterial)
	for i := range 6 {
		binary.Write(&buf, binary.LittleEndian, uint16(i+1))
	}
	binary.Write(&buf, binary.LittleEndian, uint16(MatWater))
	for range 8 {
		buf.WriteByte(OctSolid)
		buf.Write(make([]byte, 12))
	}
	d := &decoder{r: NewReader(&buf), version: MapVersion}
	var c Cube
	if err := d.loadCube(&c, math.IVec{}, 512); err != nil {
		t.Fatalf("loadCube failed: %v", err)
	}
	if len(c.Children) != 8 {
		t.Fatalf("got %d children, want 8", len(c.Children))
	}
	for i := range c.Children {
		if !c.Children[i].IsEntirelySolid() {
			t.Errorf("child %d is not solid", i)
		}
	}
	if c.Texture != [6]uint16{1, 2, 3, 4, 5, 6} {
		t.Errorf("LOD textures = %v, want 1..6", c.Texture)
	}
	if c.Material != MatWater {
		t.Errorf("LOD material = %d, want %d", c.Material, MatWater)
	}
}

// surfacedCube builds a solid leaf at the origin of a 512 cube with three
// kinds of stored faces: a generated quad with quad UVs and one normal, a
// merged face with explicit positions, and a face with a duplicate layer.
func surfacedCube() Cube {
	var c Cube
	c.SetSolid()
	c.Texture = [6]uint16{1, 2, 3, 4, 5, 6}
	c.Material = MatWater
	c.Merged = 1 << 1

	verts := make([]VertInfo, 16)
	// Face 0 corners of a solid cube scaled by 512.
	face0 := []math.IVec{{X: 0, Y: 4096, Z: 4096}, {X: 0, Y: 4096, Z: 0}, {X: 0, Y: 0, Z: 0}, {X: 0, Y: 0, Z: 4096}}
	uv0 := [][2]uint16{{100, 200}, {100, 300}, {150, 300}, {150, 200}}
	for k := range 4 {
		verts[k].SetPos(face0[k])
		verts[k].U, verts[k].V = uv0[k][0], uv0[k][1]
		verts[k].Norm = 777
	}
	// Face 1 is merged: a rectangle inside the x=4096 plane.
	face1 := []math.IVec{{X: 4096, Y: 1024, Z: 2048}, {X: 4096, Y: 512, Z: 2048}, {X: 4096, Y: 512, Z: 1024}, {X: 4096, Y: 1024, Z: 1024}}
	for k := range 4 {
		verts[4+k].SetPos(face1[k])
	}
	// Face 4 has a duplicate layer with its own UVs.
	face4 := []math.IVec{{X: 0, Y: 4096, Z: 0}, {X: 4096, Y: 4096, Z: 0}, {X: 4096, Y: 0, Z: 0}, {X: 0, Y: 0, Z: 0}}
	for k := range 4 {
		verts[8+k].SetPos(face4[k])
		verts[12+k].SetPos(face4[k])
		verts[8+k].U, verts[8+k].V = uv0[k][0], uv0[k][1]
		verts[12+k].U, verts[12+k].V = uint16(2*k+1), uint16(2*k+2)
	}

	c.Ext = &CubeExt{Verts: verts}
	c.Ext.Surfaces[0] = SurfaceInfo{LMID: [2]uint8{LMIDReserved, 0}, Verts: 0, NumVerts: 4 | LayerTop}
	c.Ext.Surfaces[1] = SurfaceInfo{LMID: [2]uint8{LMIDReserved + 1, 0}, Verts: 4, NumVerts: 4 | LayerTop}
	c.Ext.Surfaces[4] = SurfaceInfo{LMID: [2]uint8{LMIDReserved + 2, LMIDReserved + 3}, Verts: 8, NumVerts: 4 | LayerBlend | LayerDup}
	c.Ext.Surfaces[5] = SurfaceInfo{LMID: [2]uint8{LMIDDark, 0}, NumVerts: LayerTop}
	return c
}

func testTree() []Cube {
	root := NewCubes()
	root[0] = surfacedCube()

	root[1].Children = NewCubes()
	root[1].Children[3].SetSolid()
	root[1].Children[3].Texture = [6]uint16{7, 7, 7, 7, 7, 7}

	root[2].SetSolid()
	for k := 8; k < 12; k++ {
		root[2].Edges[k] = 0x40
	}
	root[2].Texture = [6]uint16{1, 1, 2, 2, 3, 3}
	root[3].Material = MatGlass | MatClip
	return root
}

func encodeTree(t *testing.T, root []Cube, noLMs bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := &encoder{w: NewWriter(&buf), noLMs: noLMs}
	enc.encodeCubes(root, math.IVec{}, 512)
	require.NoError(t, enc.err)
	require.NoError(t, enc.w.Err())
	return buf.Bytes()
}

func decodeTree(t *testing.T, data []byte) []Cube {
	t.Helper()
	d := &decoder{r: NewReader(bytes.NewReader(data)), version: MapVersion}
	root, err := d.loadChildren(math.IVec{}, 512)
	require.NoError(t, err)
	return root
}

func TestOctree_RoundTrip(t *testing.T) {
	root := testTree()
	data := encodeTree(t, root, false)
	got := decodeTree(t, data)
	require.Equal(t, root, got)
	require.Equal(t, data, encodeTree(t, got, false))
}

func TestOctree_NoLightmapsDropsSurfaces(t *testing.T) {
	data := encodeTree(t, testTree(), true)
	got := decodeTree(t, data)
	require.Nil(t, got[0].Ext)
	require.Zero(t, got[0].Merged)
	require.Equal(t, uint16(MatWater), got[0].Material)
	require.True(t, got[0].IsEntirelySolid())
}

func TestOctree_GeneratedFaceStoresNoPositions(t *testing.T) {
	c := surfacedCube()
	c.Merged = 0
	c.Ext.Surfaces[1] = SurfaceInfo{}
	c.Ext.Surfaces[4] = SurfaceInfo{}
	c.Ext.Surfaces[5] = SurfaceInfo{}
	c.Ext.Verts = c.Ext.Verts[:4]

	var buf bytes.Buffer
	enc := &encoder{w: NewWriter(&buf)}
	enc.encodeLeaf(&c, math.IVec{}, 512)
	require.NoError(t, enc.err)

	// tag, textures, material, surface mask and count, then lmid x2, vertex
	// mask, numverts, one UV quad and one normal.
	want := 1 + 12 + 2 + 2 + 4 + 8 + 2
	require.Equal(t, want, buf.Len())
	mask := buf.Bytes()[1+12+2+2+2]
	require.Zero(t, mask&vmXYZ)
	require.NotZero(t, mask&vmVisOrUV)
	require.NotZero(t, mask&vmOneNorm)
}

func TestOctree_EncoderRejectsMissingVertices(t *testing.T) {
	c := surfacedCube()
	c.Ext.Verts = c.Ext.Verts[:6]
	root := NewCubes()
	root[0] = c

	var buf bytes.Buffer
	enc := &encoder{w: NewWriter(&buf)}
	enc.encodeCubes(root, math.IVec{}, 512)
	if !errors.Is(enc.err, ErrCorruptNode) {
		t.Errorf("expected ErrCorruptNode, got %v", enc.err)
	}
}

func TestOctree_DecoderRejectsVertexOverrun(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(OctSolid | octFlagSurfaces)
	buf.Write(make([]byte, 12))
	buf.WriteByte(1) // face 0
	buf.WriteByte(2) // only two vertices declared
	buf.Write([]byte{LMIDReserved, 0, vmXYZ, 4 | LayerTop})

	d := &decoder{r: NewReader(&buf), version: MapVersion}
	var c Cube
	err := d.loadCube(&c, math.IVec{}, 512)
	if !errors.Is(err, ErrCorruptNode) {
		t.Errorf("expected ErrCorruptNode, got %v", err)
	}
}

func TestCountNodes(t *testing.T) {
	if n := CountNodes(testTree()); n != 16 {
		t.Errorf("CountNodes() = %d, want 16", n)
	}
}
