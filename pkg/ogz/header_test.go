package ogz

import (
	"bytes"
	"errors"
	"testing"
)

func modernHeader(version, worldSize, numEnts int32, tail ...int32) []byte {
	var buf bytes.Buffer
	buf.WriteString(Magic)
	putLE(&buf, version, int32(HeaderSize), worldSize, numEnts, int32(0), int32(0))
	for _, v := range tail {
		putLE(&buf, v)
	}
	return buf.Bytes()
}

func TestReadHeader_Current(t *testing.T) {
	data := modernHeader(MapVersion, 1024, 3, 1, 2, 5)
	r := NewReader(bytes.NewReader(data))

	h, err := ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if h.Version != MapVersion || h.WorldSize != 1024 || h.NumEnts != 3 {
		t.Errorf("unexpected header %+v", h)
	}
	if h.BlendMap != 1 || h.NumVars != 2 || h.NumVSlots != 5 {
		t.Errorf("blendmap/numvars/numvslots = %d/%d/%d, want 1/2/5", h.BlendMap, h.NumVars, h.NumVSlots)
	}
	if h.Legacy != nil {
		t.Error("current header should not carry a legacy tail")
	}
	if h.WorldScale() != 10 {
		t.Errorf("WorldScale() = %d, want 10", h.WorldScale())
	}
}

func TestReadHeader_Version29HasNoVSlotCount(t *testing.T) {
	// The trailing word belongs to the next block and must not be consumed.
	data := modernHeader(29, 1024, 0, 0, 0, 999)
	r := NewReader(bytes.NewReader(data))

	h, err := ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if h.NumVSlots != 0 {
		t.Errorf("NumVSlots = %d, want 0", h.NumVSlots)
	}
	if r.Pos() != 36 {
		t.Errorf("consumed %d bytes, want 36", r.Pos())
	}
}

func TestReadHeader_LegacyTail(t *testing.T) {
	m := legacyMap{version: 28, title: "Old Map", skylight: [3]uint8{1, 2, 3}}
	r := NewReader(bytes.NewReader(m.bytes()))

	h, err := ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if h.Legacy == nil {
		t.Fatal("expected legacy tail")
	}
	if h.Legacy.Title != "Old Map" {
		t.Errorf("Title = %q, want %q", h.Legacy.Title, "Old Map")
	}
	if h.Legacy.SkyLight != [3]uint8{1, 2, 3} {
		t.Errorf("SkyLight = %v", h.Legacy.SkyLight)
	}
	if h.Legacy.LightLOD != 2 {
		t.Errorf("LightLOD = %d, want 2", h.Legacy.LightLOD)
	}
	if h.NumVars != 0 || h.NumVSlots != 0 {
		t.Errorf("legacy header should have no vars or vslots, got %d/%d", h.NumVars, h.NumVSlots)
	}
	if r.Pos() != 28+legacyTailSize {
		t.Errorf("consumed %d bytes, want %d", r.Pos(), 28+legacyTailSize)
	}
}

func TestReadHeader_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"bad magic", append([]byte("OCTB"), modernHeader(MapVersion, 1024, 0, 0, 0, 0)[4:]...), ErrInvalidMagic},
		{"zero world size", modernHeader(MapVersion, 0, 0, 0, 0, 0), ErrMalformedHeader},
		{"negative entity count", modernHeader(MapVersion, 1024, -1, 0, 0, 0), ErrMalformedHeader},
		{"newer version", modernHeader(MapVersion+1, 1024, 0, 0, 0, 0), ErrUnsupportedVersion},
		{"negative vslot count", modernHeader(MapVersion, 1024, 0, 0, 0, -4), ErrMalformedHeader},
		{"short header", []byte("OCTA\x28\x00"), ErrMalformedHeader},
		{"short tail", modernHeader(MapVersion, 1024, 0, 0), ErrMalformedHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadHeader(NewReader(bytes.NewReader(tt.data)))
			if !errors.Is(err, tt.want) {
				t.Errorf("ReadHeader() error = %v, want %v", err, tt.want)
			}
			if !IsFormatError(err) {
				t.Errorf("expected a format error, got %T", err)
			}
		})
	}
}

func TestReadHeader_MagicCheckedBeforeVersion(t *testing.T) {
	data := append([]byte("XXXX"), modernHeader(MapVersion+5, 1024, 0, 0, 0, 0)[4:]...)
	_, err := ReadHeader(NewReader(bytes.NewReader(data)))
	if !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestWriteHeader_AlwaysCurrent(t *testing.T) {
	var buf bytes.Buffer
	WriteHeader(NewWriter(&buf), &Header{Version: 12, HeaderSize: 7, WorldSize: 2048, NumEnts: 4, NumVars: 1, NumVSlots: 2})
	if buf.Len() != HeaderSize {
		t.Fatalf("header is %d bytes, want %d", buf.Len(), HeaderSize)
	}

	h, err := ReadHeader(NewReader(&buf))
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if h.Version != MapVersion || h.HeaderSize != HeaderSize {
		t.Errorf("version/headersize = %d/%d, want %d/%d", h.Version, h.HeaderSize, MapVersion, HeaderSize)
	}
	if h.WorldSize != 2048 || h.NumEnts != 4 || h.NumVars != 1 || h.NumVSlots != 2 {
		t.Errorf("unexpected header %+v", h)
	}
}

func TestLegacyHeader_ImportVars(t *testing.T) {
	l := &LegacyHeader{
		LightLOD:    3,
		SkyLight:    [3]uint8{0x10, 0x20, 0x30},
		WaterColour: [3]uint8{1, 2, 3},
		Title:       "Dust",
	}
	got := map[string]Var{}
	l.importVars(func(v Var) { got[v.Name] = v })

	if _, ok := got["ambient"]; ok {
		t.Error("zero ambient should not be imported")
	}
	if _, ok := got["lerpangle"]; ok {
		t.Error("zero lerp settings should not be imported")
	}
	if got["skylight"].Int != 0x102030 {
		t.Errorf("skylight = %#x, want 0x102030", got["skylight"].Int)
	}
	if got["watercolour"].Int != 0x010203 {
		t.Errorf("watercolour = %#x, want 0x010203", got["watercolour"].Int)
	}
	if got["lightlod"].Int != 3 {
		t.Errorf("lightlod = %d, want 3", got["lightlod"].Int)
	}
	if got["maptitle"].Str != "Dust" {
		t.Errorf("maptitle = %q, want Dust", got["maptitle"].Str)
	}
}
