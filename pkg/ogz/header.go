// Package ogz reads and writes OCTA world maps (.ogz).
//
// A map is a gzip stream holding, in order: the header, overridden
// variables, the game identifier and game data, the texture MRU list,
// entities, vertex slots, the octree, and optional lightmaps, PVS and blend
// map. Every layout revision since version 1 can be decoded; encoding always
// produces MapVersion.
package ogz

import (
	"fmt"

	"github.com/Faultbox/cubemap/pkg/encoding"
)

const (
	// Magic identifies an OCTA map.
	Magic = "OCTA"
	// MapVersion is the newest layout this package understands and the
	// only one it writes.
	MapVersion = 40
	// HeaderSize is the size of the current header in bytes.
	HeaderSize = 40

	legacyTailSize = 168
	titleSize      = 128
)

// Header is the decoded map header.
type Header struct {
	Version    int
	HeaderSize int
	WorldSize  int
	NumEnts    int
	NumPVS     int
	Lightmaps  int
	BlendMap   int
	NumVars    int
	NumVSlots  int

	// Legacy is set for version 28 and older, whose header carries lighting
	// settings in place of the variable block.
	Legacy *LegacyHeader
}

// LegacyHeader is the fixed tail of headers up to version 28.
type LegacyHeader struct {
	LightPrecision  int32
	LightError      int32
	LightLOD        int32
	Ambient         uint8
	WaterColour     [3]uint8
	BlendMap        uint8
	LerpAngle       uint8
	LerpSubdiv      uint8
	LerpSubdivSize  uint8
	BumpError       uint8
	SkyLight        [3]uint8
	LavaColour      [3]uint8
	WaterfallColour [3]uint8
	Title           string
}

// WorldScale returns the smallest s with 1<<s >= WorldSize.
func (h *Header) WorldScale() int {
	s := 0
	for 1<<s < h.WorldSize {
		s++
	}
	return s
}

func headerError(err error) error {
	return &FormatError{Op: "header", Err: err}
}

// ReadHeader reads and validates a header. Nothing is returned unless the
// magic, world size, entity count and version all check out.
func ReadHeader(r *Reader) (*Header, error) {
	var magic [4]byte
	r.ReadFull(magic[:])
	h := &Header{
		Version:    int(r.I32()),
		HeaderSize: int(r.I32()),
		WorldSize:  int(r.I32()),
		NumEnts:    int(r.I32()),
		NumPVS:     int(r.I32()),
		Lightmaps:  int(r.I32()),
	}
	if err := r.Err(); err != nil {
		return nil, headerError(fmt.Errorf("%w: %w", ErrMalformedHeader, err))
	}
	if string(magic[:]) != Magic {
		return nil, headerError(fmt.Errorf("%w: got %q", ErrInvalidMagic, magic[:]))
	}
	if h.WorldSize <= 0 || h.NumEnts < 0 {
		return nil, headerError(fmt.Errorf("%w: worldsize %d, numents %d", ErrMalformedHeader, h.WorldSize, h.NumEnts))
	}
	if h.Version > MapVersion {
		return nil, headerError(fmt.Errorf("%w: %d (max %d)", ErrUnsupportedVersion, h.Version, MapVersion))
	}

	if h.Version <= 28 {
		h.Legacy = readLegacyTail(r)
		h.BlendMap = int(h.Legacy.BlendMap)
	} else {
		h.BlendMap = int(r.I32())
		h.NumVars = int(r.I32())
		if h.Version > 29 {
			h.NumVSlots = int(r.I32())
		}
	}
	if err := r.Err(); err != nil {
		return nil, headerError(fmt.Errorf("%w: %w", ErrMalformedHeader, err))
	}

	if h.NumVars < 0 || h.NumVSlots < 0 || h.BlendMap < 0 {
		return nil, headerError(fmt.Errorf("%w: numvars %d, numvslots %d", ErrMalformedHeader, h.NumVars, h.NumVSlots))
	}
	if h.Version >= 7 && h.Lightmaps < 0 {
		return nil, headerError(fmt.Errorf("%w: lightmaps %d", ErrMalformedHeader, h.Lightmaps))
	}
	if h.Version >= 25 && h.NumPVS < 0 {
		return nil, headerError(fmt.Errorf("%w: numpvs %d", ErrMalformedHeader, h.NumPVS))
	}
	return h, nil
}

func readLegacyTail(r *Reader) *LegacyHeader {
	l := &LegacyHeader{
		LightPrecision: r.I32(),
		LightError:     r.I32(),
		LightLOD:       r.I32(),
		Ambient:        r.U8(),
	}
	r.ReadFull(l.WaterColour[:])
	l.BlendMap = r.U8()
	l.LerpAngle = r.U8()
	l.LerpSubdiv = r.U8()
	l.LerpSubdivSize = r.U8()
	l.BumpError = r.U8()
	r.ReadFull(l.SkyLight[:])
	r.ReadFull(l.LavaColour[:])
	r.ReadFull(l.WaterfallColour[:])
	r.Skip(10)
	l.Title = encoding.FixedStringToUTF8(r.Bytes(titleSize))
	return l
}

// WriteHeader writes h in the current layout. Version and HeaderSize are
// ignored and always written as MapVersion and HeaderSize.
func WriteHeader(w *Writer, h *Header) {
	w.PutString(Magic)
	w.PutI32(MapVersion)
	w.PutI32(HeaderSize)
	w.PutI32(int32(h.WorldSize))
	w.PutI32(int32(h.NumEnts))
	w.PutI32(int32(h.NumPVS))
	w.PutI32(int32(h.Lightmaps))
	w.PutI32(int32(h.BlendMap))
	w.PutI32(int32(h.NumVars))
	w.PutI32(int32(h.NumVSlots))
}

func packRGB(c [3]uint8) int32 {
	return int32(c[0])<<16 | int32(c[1])<<8 | int32(c[2])
}

// importVars converts the legacy lighting settings into variable
// assignments. Zero values of the optional settings are left alone.
func (l *LegacyHeader) importVars(set func(Var)) {
	setInt := func(name string, v int32) { set(Var{Name: name, Type: VarInt, Int: v}) }
	if l.LightPrecision != 0 {
		setInt("lightprecision", l.LightPrecision)
	}
	if l.LightError != 0 {
		setInt("lighterror", l.LightError)
	}
	if l.BumpError != 0 {
		setInt("bumperror", int32(l.BumpError))
	}
	setInt("lightlod", l.LightLOD)
	if l.Ambient != 0 {
		setInt("ambient", int32(l.Ambient))
	}
	setInt("skylight", packRGB(l.SkyLight))
	setInt("watercolour", packRGB(l.WaterColour))
	setInt("waterfallcolour", packRGB(l.WaterfallColour))
	setInt("lavacolour", packRGB(l.LavaColour))
	setInt("fullbright", 0)
	if l.LerpSubdivSize != 0 || l.LerpAngle != 0 {
		setInt("lerpangle", int32(l.LerpAngle))
	}
	if l.LerpSubdivSize != 0 {
		setInt("lerpsubdiv", int32(l.LerpSubdiv))
		setInt("lerpsubdivsize", int32(l.LerpSubdivSize))
	}
	set(Var{Name: "maptitle", Type: VarString, Str: l.Title})
}
