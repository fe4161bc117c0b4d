package gen

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Faultbox/cubemap/pkg/math"
	"github.com/Faultbox/cubemap/pkg/ogz"
)

// find returns the leaf containing p.
func find(w *ogz.World, p math.IVec) *ogz.Cube {
	cubes := w.Root
	var o math.IVec
	for size := w.Size / 2; ; size /= 2 {
		i := 0
		if p.X >= o.X+size {
			i |= 1
		}
		if p.Y >= o.Y+size {
			i |= 2
		}
		if p.Z >= o.Z+size {
			i |= 4
		}
		c := &cubes[i]
		if c.Children == nil {
			return c
		}
		o = math.Child(i, o, size)
		cubes = c.Children
	}
}

func TestHeightfield(t *testing.T) {
	opts := Options{Size: 512, Cell: 16, MaxHeight: 128, Seed: 7}
	heights := Heightfield(opts)
	if len(heights) != 32*32 {
		t.Fatalf("expected %d columns, got %d", 32*32, len(heights))
	}
	distinct := make(map[int]bool)
	for i, h := range heights {
		if h < 16 || h > 128 || h%16 != 0 {
			t.Fatalf("column %d has height %d", i, h)
		}
		distinct[h] = true
	}
	if len(distinct) < 2 {
		t.Errorf("expected varied terrain, got heights %v", distinct)
	}
}

func TestHeightfield_Deterministic(t *testing.T) {
	a := Heightfield(Options{Seed: 42})
	b := Heightfield(Options{Seed: 42})
	c := Heightfield(Options{Seed: 43})
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestGenerate_Columns(t *testing.T) {
	opts := Options{Size: 256, Cell: 16, MaxHeight: 96, Seed: 3, Textures: []uint16{4, 5}}
	w, err := Generate(opts)
	require.NoError(t, err)

	heights := Heightfield(opts)
	cols := 256 / 16
	for y := 0; y < cols; y++ {
		for x := 0; x < cols; x++ {
			h := heights[y*cols+x]
			below := find(w, math.IVec{X: x*16 + 8, Y: y*16 + 8, Z: h - 8})
			if !below.IsEntirelySolid() {
				t.Fatalf("column %d,%d: expected solid below height %d", x, y, h)
			}
			want := uint16(4)
			if h-16 >= 48 {
				want = 5
			}
			if below.Texture[0] != want {
				t.Errorf("column %d,%d: expected texture %d at height %d, got %d", x, y, want, h, below.Texture[0])
			}
			if h < 256 {
				above := find(w, math.IVec{X: x*16 + 8, Y: y*16 + 8, Z: h + 8})
				if !above.IsEmpty() {
					t.Fatalf("column %d,%d: expected empty above height %d", x, y, h)
				}
			}
		}
	}
	require.Len(t, w.VSlots, 6)
}

func TestGenerate_Entities(t *testing.T) {
	w, err := Generate(Options{Seed: 1, Lights: 6})
	require.NoError(t, err)
	require.Len(t, w.Entities, 7)

	start := w.Entities[0]
	require.Equal(t, ogz.EntPlayerStart, start.Type)
	p := math.IVec{X: int(start.O.X), Y: int(start.O.Y), Z: int(start.O.Z)}
	require.True(t, find(w, p).IsEmpty(), "player start inside geometry")

	for _, e := range w.Entities[1:] {
		require.Equal(t, ogz.EntLight, e.Type)
		require.Equal(t, -1, e.Attached)
		require.True(t, e.O.Z > 0 && e.O.Z < float32(w.Size))
	}

	w, err = Generate(Options{Seed: 1, Lights: -1})
	require.NoError(t, err)
	require.Len(t, w.Entities, 1)
}

func TestGenerate_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"size not power of two", Options{Size: 1000}},
		{"size too small", Options{Size: 8, Cell: 1, MaxHeight: 4}},
		{"cell too large", Options{Size: 256, Cell: 256}},
		{"cell not power of two", Options{Size: 256, Cell: 12}},
		{"height below cell", Options{Size: 256, Cell: 32, MaxHeight: 16}},
		{"height above size", Options{Size: 256, MaxHeight: 512}},
		{"negative frequency", Options{Frequency: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Generate(tt.opts); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestGenerate_RoundTrip(t *testing.T) {
	w, err := Generate(Options{Size: 512, Seed: 9, Title: "Hills"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ogz.Encode(&buf, w, ogz.EncodeOptions{}))

	got, report, err := ogz.Decode(bytes.NewReader(buf.Bytes()), ogz.DecodeOptions{})
	require.NoError(t, err)
	require.NoError(t, report.Err())
	require.Equal(t, 512, got.Size)
	require.Equal(t, ogz.CountNodes(w.Root), ogz.CountNodes(got.Root))
	require.Len(t, got.Entities, len(w.Entities))
	require.Contains(t, got.Vars, ogz.Var{Name: "maptitle", Type: ogz.VarString, Str: "Hills"})
}

func TestCollapse(t *testing.T) {
	var solid ogz.Cube
	solid.Children = ogz.NewCubes()
	for i := range solid.Children {
		solid.Children[i].SetSolid()
		solid.Children[i].Texture = [6]uint16{2, 2, 2, 2, 2, 2}
	}
	collapse(&solid)
	require.Nil(t, solid.Children)
	require.True(t, solid.IsEntirelySolid())
	require.Equal(t, uint16(2), solid.Texture[3])

	var mixed ogz.Cube
	mixed.Children = ogz.NewCubes()
	for i := range mixed.Children {
		mixed.Children[i].SetSolid()
		mixed.Children[i].Texture = [6]uint16{2, 2, 2, 2, 2, 2}
	}
	mixed.Children[5].Texture[0] = 3
	collapse(&mixed)
	require.Len(t, mixed.Children, 8)

	// Empty grandchildren fold up two levels.
	var empty ogz.Cube
	empty.Children = ogz.NewCubes()
	empty.Children[0].Children = ogz.NewCubes()
	collapse(&empty)
	require.Nil(t, empty.Children)
	require.True(t, empty.IsEmpty())
}
