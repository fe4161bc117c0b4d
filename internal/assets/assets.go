// Package assets resolves texture slots declared by map scripts to images
// on disk.
package assets

import (
	"bufio"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for DecodeConfig
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"

	"github.com/Faultbox/cubemap/pkg/ogz/objexport"
)

// DefaultTextureSize is assumed for images that cannot be read.
const DefaultTextureSize = 512

// maxIncludeDepth bounds nested exec commands.
const maxIncludeDepth = 8

// Slot is one texture slot: a primary image plus optional secondary maps
// such as normals or specular.
type Slot struct {
	Name     string
	Rotation int
	XOffset  int
	YOffset  int
	Scale    float32
	// Aux holds secondary images keyed by type letter.
	Aux map[string]string
}

// Registry maps slot numbers to images. Slots are numbered in the order
// their primary texture lines appear.
type Registry struct {
	root  string
	slots []Slot
	sizes *Cache
	mu    sync.RWMutex
}

// NewRegistry creates a registry whose texture names resolve against root.
func NewRegistry(root string) *Registry {
	return &Registry{
		root:  root,
		sizes: NewCache(),
	}
}

// Len returns the number of slots.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots)
}

// Slot returns slot i.
func (r *Registry) Slot(i int) (Slot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 0 || i >= len(r.slots) {
		return Slot{}, false
	}
	return r.slots[i], true
}

// Add appends a slot and returns its number.
func (r *Registry) Add(s Slot) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Scale <= 0 {
		s.Scale = 1
	}
	r.slots = append(r.slots, s)
	return len(r.slots) - 1
}

// Reset drops every slot.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots = nil
}

// Path returns the file a texture name refers to.
func (r *Registry) Path(name string) string {
	return filepath.Join(r.root, filepath.FromSlash(name))
}

// Lookup implements objexport.TextureSource. Image sizes are read from the
// file header once and cached.
func (r *Registry) Lookup(slot int) (objexport.Texture, bool) {
	s, ok := r.Slot(slot)
	if !ok {
		return objexport.Texture{}, false
	}
	path := r.Path(s.Name)
	size, ok := r.sizes.Get(path)
	if !ok {
		size = imageSize(path)
		r.sizes.Set(path, size)
	}
	return objexport.Texture{Name: filepath.ToSlash(path), Width: size.X, Height: size.Y}, true
}

func imageSize(path string) image.Point {
	f, err := os.Open(path)
	if err != nil {
		return image.Pt(DefaultTextureSize, DefaultTextureSize)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Pt(DefaultTextureSize, DefaultTextureSize)
	}
	return image.Pt(cfg.Width, cfg.Height)
}

// LoadConfig reads a slot script from path.
func (r *Registry) LoadConfig(path string) error {
	return r.loadConfig(path, 0)
}

func (r *Registry) loadConfig(path string, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("exec nesting too deep at %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening slot script: %w", err)
	}
	defer f.Close()
	return r.parse(f, filepath.Dir(path), depth)
}

// Parse reads slot script commands from rd. Included scripts resolve
// against dir, then against the parent of the registry root.
func (r *Registry) Parse(rd io.Reader, dir string) error {
	return r.parse(rd, dir, 0)
}

func (r *Registry) parse(rd io.Reader, dir string, depth int) error {
	sc := bufio.NewScanner(rd)
	line := 0
	for sc.Scan() {
		line++
		for _, cmd := range splitCommands(sc.Text()) {
			if len(cmd) == 0 {
				continue
			}
			if err := r.command(cmd, dir, depth); err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
		}
	}
	return sc.Err()
}

func (r *Registry) command(cmd []string, dir string, depth int) error {
	switch cmd[0] {
	case "texturereset":
		r.Reset()
	case "texture":
		if len(cmd) < 3 {
			return fmt.Errorf("texture needs a type and a name")
		}
		return r.texture(cmd[1], cmd[2], cmd[3:])
	case "exec":
		if len(cmd) < 2 {
			return fmt.Errorf("exec needs a file")
		}
		path := filepath.Join(dir, filepath.FromSlash(cmd[1]))
		if _, err := os.Stat(path); err != nil {
			path = filepath.Join(filepath.Dir(r.root), filepath.FromSlash(cmd[1]))
		}
		return r.loadConfig(path, depth+1)
	}
	// Other commands configure shaders and rendering.
	return nil
}

// texType normalises a texture type argument to its letter.
func texType(s string) (string, bool) {
	const letters = "cudngsze"
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n >= len(letters) {
			return "", false
		}
		return letters[n : n+1], true
	}
	if len(s) == 1 && strings.Contains(letters, s) {
		return s, true
	}
	return "", false
}

func (r *Registry) texture(typ, name string, args []string) error {
	t, ok := texType(typ)
	if !ok {
		return fmt.Errorf("unknown texture type %q", typ)
	}
	if t != "c" {
		r.mu.Lock()
		defer r.mu.Unlock()
		if len(r.slots) == 0 {
			return fmt.Errorf("%s texture %q before any slot", t, name)
		}
		s := &r.slots[len(r.slots)-1]
		if s.Aux == nil {
			s.Aux = make(map[string]string)
		}
		s.Aux[t] = name
		return nil
	}

	s := Slot{Name: name, Scale: 1}
	ints := []*int{&s.Rotation, &s.XOffset, &s.YOffset}
	for i, a := range args {
		if i < len(ints) {
			*ints[i], _ = strconv.Atoi(a)
			continue
		}
		if f, err := strconv.ParseFloat(a, 32); err == nil && f > 0 {
			s.Scale = float32(f)
		}
		break
	}
	r.Add(s)
	return nil
}

// splitCommands breaks a script line into commands separated by ';',
// dropping // comments and honouring double quotes.
func splitCommands(line string) [][]string {
	var cmds [][]string
	var cur []string
	var word strings.Builder
	inWord, quoted := false, false
	flush := func() {
		if inWord {
			cur = append(cur, word.String())
			word.Reset()
			inWord = false
		}
	}
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case quoted:
			if ch == '"' {
				quoted = false
			} else {
				word.WriteByte(ch)
			}
		case ch == '"':
			quoted, inWord = true, true
		case ch == '/' && i+1 < len(line) && line[i+1] == '/':
			i = len(line)
		case ch == ';':
			flush()
			cmds = append(cmds, cur)
			cur = nil
		case ch == ' ' || ch == '\t' || ch == '\r':
			flush()
		default:
			word.WriteByte(ch)
			inWord = true
		}
	}
	flush()
	return append(cmds, cur)
}

// Cache remembers image sizes by path.
type Cache struct {
	data map[string]image.Point
	mu   sync.RWMutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string]image.Point),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) (image.Point, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return p, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, p image.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = p
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// CacheStats returns hit and miss counts of the image size cache.
func (r *Registry) CacheStats() (hits, misses int) {
	return r.sizes.Stats()
}
