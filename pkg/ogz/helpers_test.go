package ogz

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// legacyMap describes a map in an old layout for fixture building.
type legacyMap struct {
	version   int
	worldSize int
	title     string
	skylight  [3]uint8
	ambient   uint8
	ents      []Entity
	// cubes holds the raw bytes of the 8 root cubes; empty cubes are used
	// for missing entries.
	cubes [][]byte
}

func putLE(buf *bytes.Buffer, vals ...any) {
	for _, v := range vals {
		binary.Write(buf, binary.LittleEndian, v)
	}
}

// emptyCompatCube is an empty leaf in the layout of the given version.
func emptyCompatCube(version int) []byte {
	var buf bytes.Buffer
	buf.WriteByte(OctEmpty)
	for range 6 {
		if version < 14 {
			buf.WriteByte(0)
		} else {
			putLE(&buf, uint16(0))
		}
	}
	switch {
	case version < 7:
		buf.Write([]byte{0, 0, 0})
	case version <= 31:
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func (m legacyMap) bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString(Magic)
	size := m.worldSize
	if size == 0 {
		size = 1024
	}
	putLE(&buf, int32(m.version), int32(36), int32(size), int32(len(m.ents)), int32(0), int32(0))
	if m.version <= 28 {
		putLE(&buf, int32(0), int32(0), int32(2)) // lightprecision, lighterror, lightlod
		buf.WriteByte(m.ambient)
		buf.Write([]byte{10, 20, 30}) // watercolour
		buf.WriteByte(0)              // blendmap
		buf.Write([]byte{0, 0, 0, 0}) // lerp*, bumperror
		buf.Write(m.skylight[:])
		buf.Write([]byte{0, 0, 0, 0, 0, 0})
		buf.Write(make([]byte, 10))
		title := make([]byte, titleSize)
		copy(title, m.title)
		buf.Write(title)
	} else {
		putLE(&buf, int32(0), int32(0))
		if m.version > 29 {
			putLE(&buf, int32(0))
		}
	}
	if m.version >= 16 {
		buf.WriteByte(3)
		buf.WriteString("fps\x00")
		putLE(&buf, uint16(0), uint16(0))
	}
	if m.version < 14 {
		buf.Write(make([]byte, 256))
	} else {
		putLE(&buf, uint16(0))
	}
	for _, e := range m.ents {
		putLE(&buf, e.O.X, e.O.Y, e.O.Z, e.Attr, uint8(e.Type), uint8(0))
	}
	for i := range 8 {
		if i < len(m.cubes) && m.cubes[i] != nil {
			buf.Write(m.cubes[i])
		} else {
			buf.Write(emptyCompatCube(m.version))
		}
	}
	return buf.Bytes()
}

func encodeWorld(t *testing.T, w *World, opts EncodeOptions) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, w, opts))
	return buf.Bytes()
}

func decodeWorld(t *testing.T, data []byte, opts DecodeOptions) (*World, *Report) {
	t.Helper()
	w, report, err := Decode(bytes.NewReader(data), opts)
	require.NoError(t, err)
	return w, report
}

// testVars declares a few variables in the shape of the engine's map
// settings.
func testVars() *VarTable {
	t := NewVarTable()
	t.DefineInt("mapversion", VarReadOnly, 1, MapVersion, MapVersion)
	t.DefineInt("mapsize", VarReadOnly, 1, 1024, 1<<16)
	t.DefineInt("mapscale", VarReadOnly, 0, 10, 16)
	t.DefineInt("skylight", VarOverride, 0, 0, 0xFFFFFF)
	t.DefineInt("watercolour", VarOverride, 0, 0x144650, 0xFFFFFF)
	t.DefineInt("ambient", VarOverride, 1, 0x191919, 0xFFFFFF)
	t.DefineInt("lightlod", VarOverride, 0, 0, 10)
	t.DefineInt("fog", VarOverride, 16, 4000, 1000024)
	t.DefineFloat("shadowmapintensity", VarOverride, 0, 0.4, 1)
	t.DefineString("maptitle", VarOverride, "Untitled Map by Unknown")
	t.DefineInt("fullbright", 0, 0, 0, 1)
	return t
}
