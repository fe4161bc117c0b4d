// Package gen builds test worlds from a perlin heightfield.
package gen

import (
	"errors"
	"fmt"

	"github.com/aquilax/go-perlin"

	"github.com/Faultbox/cubemap/pkg/math"
	"github.com/Faultbox/cubemap/pkg/ogz"
)

// Options configures Generate. Zero fields take the defaults below.
type Options struct {
	// Size is the world size. Must be a power of two. Default 1024.
	Size int
	// Cell is the edge length of one terrain column. Default Size/32.
	Cell int
	// MaxHeight caps the terrain height. Default Size/4.
	MaxHeight int
	Seed      int64
	// Frequency is the number of noise periods across the world. Default 3.
	Frequency float64
	// Textures are assigned by height band, lowest first. Default {1, 2, 3}.
	Textures []uint16
	// Lights is the number of light entities spread over the terrain.
	// Default 4, negative for none.
	Lights int
	Title  string
}

const (
	noiseAlpha   = 2.0
	noiseBeta    = 2.0
	noiseOctaves = 3
)

func isPow2(n int) bool { return n > 0 && n&(n-1) == 0 }

func (o Options) withDefaults() Options {
	if o.Size == 0 {
		o.Size = 1024
	}
	if o.Cell == 0 {
		o.Cell = o.Size / 32
	}
	if o.MaxHeight == 0 {
		o.MaxHeight = o.Size / 4
	}
	if o.Frequency == 0 {
		o.Frequency = 3
	}
	if len(o.Textures) == 0 {
		o.Textures = []uint16{1, 2, 3}
	}
	if o.Lights == 0 {
		o.Lights = 4
	}
	if o.Title == "" {
		o.Title = fmt.Sprintf("Generated terrain %d", o.Seed)
	}
	return o
}

func (o Options) validate() error {
	var errs []error
	if !isPow2(o.Size) || o.Size < 16 || o.Size > 1<<16 {
		errs = append(errs, fmt.Errorf("size %d must be a power of two between 16 and 65536", o.Size))
	}
	if !isPow2(o.Cell) || o.Cell >= o.Size {
		errs = append(errs, fmt.Errorf("cell %d must be a power of two below the world size", o.Cell))
	}
	if o.MaxHeight < o.Cell || o.MaxHeight > o.Size {
		errs = append(errs, fmt.Errorf("max height %d must be between the cell size and the world size", o.MaxHeight))
	}
	if o.Frequency < 0 {
		errs = append(errs, fmt.Errorf("frequency %g must not be negative", o.Frequency))
	}
	return errors.Join(errs...)
}

// Generate builds a world whose floor follows 2D perlin noise. Every
// column is at least one cell high. A player start is placed above the
// centre column.
func Generate(opts Options) (*ogz.World, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	w := ogz.NewWorld(opts.Size)
	var maxTex uint16
	for _, t := range opts.Textures {
		maxTex = max(maxTex, t)
	}
	for i := 0; i <= int(maxTex); i++ {
		w.VSlots = append(w.VSlots, ogz.NewVSlot(i))
	}

	heights := Heightfield(opts)
	cols := opts.Size / opts.Cell
	for y := 0; y < cols; y++ {
		for x := 0; x < cols; x++ {
			h := heights[y*cols+x]
			for z := 0; z < h; z += opts.Cell {
				c := leaf(w.Root, opts.Size, math.IVec{X: x * opts.Cell, Y: y * opts.Cell, Z: z}, opts.Cell)
				c.SetSolid()
				t := opts.Textures[z*len(opts.Textures)/opts.MaxHeight]
				c.Texture = [6]uint16{t, t, t, t, t, t}
			}
		}
	}
	for i := range w.Root {
		collapse(&w.Root[i])
	}

	top := func(x, y int) float32 {
		cx, cy := min(x/opts.Cell, cols-1), min(y/opts.Cell, cols-1)
		return float32(heights[cy*cols+cx])
	}
	half := opts.Size / 2
	w.Entities = append(w.Entities, ogz.Entity{
		O:        math.Vec3{X: float32(half), Y: float32(half), Z: min(top(half, half)+float32(opts.Cell)/2, float32(opts.Size-1))},
		Type:     ogz.EntPlayerStart,
		Attached: -1,
	})
	for i := 0; i < opts.Lights; i++ {
		// Lights sit on a ring around the centre, one cell above the floor.
		x := half + int(float64(half/2)*ringX[i%len(ringX)])
		y := half + int(float64(half/2)*ringY[i%len(ringY)])
		z := min(top(x, y)+float32(opts.Cell), float32(opts.Size-1))
		w.Entities = append(w.Entities, ogz.Entity{
			O:        math.Vec3{X: float32(x), Y: float32(y), Z: z},
			Type:     ogz.EntLight,
			Attr:     [5]int16{int16(min(opts.Size/4, 1024)), 255, 240, 200},
			Attached: -1,
		})
	}

	w.Vars = []ogz.Var{
		{Name: "maptitle", Type: ogz.VarString, Str: opts.Title},
		{Name: "skylight", Type: ogz.VarInt, Int: 0x808080},
	}
	return w, nil
}

var (
	ringX = [...]float64{1, 0, -1, 0, 0.7, -0.7, -0.7, 0.7}
	ringY = [...]float64{0, 1, 0, -1, 0.7, 0.7, -0.7, -0.7}
)

// Heightfield returns the terrain height of every column, row by row.
// Heights are multiples of the cell size in [Cell, MaxHeight].
func Heightfield(opts Options) []int {
	opts = opts.withDefaults()
	p := perlin.NewPerlin(noiseAlpha, noiseBeta, noiseOctaves, opts.Seed)
	cols := opts.Size / opts.Cell
	steps := opts.MaxHeight / opts.Cell
	heights := make([]int, cols*cols)
	for y := 0; y < cols; y++ {
		for x := 0; x < cols; x++ {
			nx := (float64(x) + 0.5) / float64(cols) * opts.Frequency
			ny := (float64(y) + 0.5) / float64(cols) * opts.Frequency
			n := (p.Noise2D(nx, ny) + 1) / 2
			s := int(n*float64(steps)) + 1
			heights[y*cols+x] = max(1, min(s, steps)) * opts.Cell
		}
	}
	return heights
}

// leaf returns the cube of the given size at co, subdividing on the way.
func leaf(root []ogz.Cube, worldSize int, co math.IVec, size int) *ogz.Cube {
	cubes := root
	var o math.IVec
	for csize := worldSize / 2; ; csize /= 2 {
		i := 0
		if co.X >= o.X+csize {
			i |= 1
		}
		if co.Y >= o.Y+csize {
			i |= 2
		}
		if co.Z >= o.Z+csize {
			i |= 4
		}
		c := &cubes[i]
		if csize == size {
			return c
		}
		if c.Children == nil {
			c.Children = ogz.NewCubes()
		}
		o = math.Child(i, o, csize)
		cubes = c.Children
	}
}

// collapse merges subtrees whose 8 children are identical solid or empty
// leaves back into a single leaf.
func collapse(c *ogz.Cube) {
	if c.Children == nil {
		return
	}
	for i := range c.Children {
		collapse(&c.Children[i])
	}
	first := &c.Children[0]
	if first.Children != nil || !(first.IsEmpty() || first.IsEntirelySolid()) {
		return
	}
	for i := 1; i < 8; i++ {
		ch := &c.Children[i]
		if ch.Children != nil || ch.Edges != first.Edges {
			return
		}
		if first.IsEntirelySolid() && ch.Texture != first.Texture {
			return
		}
	}
	c.Edges = first.Edges
	c.Texture = first.Texture
	c.Children = nil
}
