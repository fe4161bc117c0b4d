package ogz

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Faultbox/cubemap/pkg/math"
)

type testEntityHooks struct {
	read []EntityType
}

func (h *testEntityHooks) ExtraInfoSize() int { return 4 }

func (h *testEntityHooks) ReadEntity(e *Entity, extra []byte, version int) {
	h.read = append(h.read, e.Type)
}

func (h *testEntityHooks) WriteEntity(e *Entity, extra []byte) {
	copy(extra, e.Extra)
}

// sizedEntityHooks claims an extension size that may differ from the file's.
type sizedEntityHooks struct {
	size  int
	extra [][]byte
}

func (h *sizedEntityHooks) ExtraInfoSize() int { return h.size }

func (h *sizedEntityHooks) ReadEntity(e *Entity, extra []byte, version int) {
	h.extra = append(h.extra, extra)
}

func (h *sizedEntityHooks) WriteEntity(e *Entity, extra []byte) {}

type testGameData struct {
	got []byte
}

func (g *testGameData) ReadGameData(data []byte) { g.got = data }
func (g *testGameData) WriteGameData() []byte    { return []byte("flags") }

func fullWorld() *World {
	w := NewWorld(1024)
	w.Root = testTree()
	w.TexMRU = []uint16{3, 1, 2}
	for i := range 8 {
		w.VSlots = append(w.VSlots, NewVSlot(i))
	}
	w.Entities = []Entity{
		{Type: EntLight, O: math.Vec3{X: 10, Y: 10, Z: 10}, Attr: [5]int16{64, 255, 255, 255}, Extra: []byte{1, 2, 3, 4}},
		{Type: EntEmpty, O: math.Vec3{X: 1, Y: 1, Z: 1}},
		{Type: EntSpotlight, O: math.Vec3{X: 20, Y: 10, Z: 10}, Attr: [5]int16{30}},
		{Type: EntMapModel, O: math.Vec3{X: 512, Y: 512, Z: 0}, Attr: [5]int16{90, 4}},
		{Type: EntGameSpecific + 2, O: math.Vec3{X: 100, Y: 100, Z: 100}, Extra: []byte{9, 9}},
	}
	w.Lightmaps = []Lightmap{
		{Type: LMDiffuse, UnlitX: -1, UnlitY: -1, BPP: 3, Data: bytes.Repeat([]byte{7}, 3*LightmapWidth*LightmapHeight)},
		{Type: LMBumpMap0 | LMAlpha, UnlitX: 5, UnlitY: 6, BPP: 4, Data: bytes.Repeat([]byte{1, 2, 3, 4}, LightmapWidth*LightmapHeight)},
	}
	w.PVS = &PVS{WaterPlanes: []int32{5, -3}, Lengths: []uint16{3, 2}, Data: []byte{1, 2, 3, 4, 5}}
	w.BlendMap = &BlendNode{Kind: BlendBranch, Children: [4]*BlendNode{
		SolidBlend(0x10),
		{Kind: BlendImage, Image: bytes.Repeat([]byte{0x80}, BlendImageSize*BlendImageSize)},
		SolidBlend(0xFF),
		SolidBlend(0),
	}}
	return w
}

func TestWorld_RoundTrip(t *testing.T) {
	src := fullWorld()
	saveVars := testVars()
	saveVars.Set(Var{Name: "fog", Type: VarInt, Int: 2500})
	saveVars.Set(Var{Name: "maptitle", Type: VarString, Str: "Round Trip"})

	hooks := &testEntityHooks{}
	game := &testGameData{}
	data := encodeWorld(t, src, EncodeOptions{Vars: saveVars, Entities: hooks, GameData: game})

	loadVars := testVars()
	var traced []string
	got, report := decodeWorld(t, data, DecodeOptions{
		Vars:     loadVars,
		Entities: hooks,
		GameData: game,
		VarTrace: func(v Var, applied bool) {
			if applied {
				traced = append(traced, v.Name)
			}
		},
	})

	require.Equal(t, crc32.ChecksumIEEE(data), report.CRC)
	require.Equal(t, MapVersion, report.Version)
	require.Equal(t, "fps", report.GameType)
	require.Equal(t, []string{"fog", "maptitle"}, traced)
	fog, _ := loadVars.Get("fog")
	require.Equal(t, int32(2500), fog.Int)
	size, _ := loadVars.Get("mapsize")
	require.Equal(t, int32(1024), size.Int)

	require.Equal(t, []byte("flags"), game.got)
	require.Equal(t, []EntityType{EntLight, EntSpotlight, EntMapModel, EntGameSpecific + 2}, hooks.read)

	require.Equal(t, src.Root, got.Root)
	require.Equal(t, src.TexMRU, got.TexMRU)
	require.Equal(t, src.VSlots, got.VSlots)
	require.Equal(t, src.Lightmaps, got.Lightmaps)
	require.Equal(t, src.PVS, got.PVS)
	require.Equal(t, src.BlendMap, got.BlendMap)

	require.Len(t, got.Entities, 4)
	require.Equal(t, []byte{1, 2, 3, 4}, got.Entities[0].Extra)
	require.Equal(t, []byte{9, 9, 0, 0}, got.Entities[3].Extra)
	require.Equal(t, 0, got.Entities[1].Attached)
	require.Equal(t, -1, got.Entities[0].Attached)
	require.Equal(t, src.Entities[3].Attr, got.Entities[2].Attr)
	require.Empty(t, report.Notices())

	// Encoding the decoded world again reproduces the stream.
	require.Equal(t, data, encodeWorld(t, got, EncodeOptions{Vars: loadVars, Entities: hooks, GameData: game}))
}

func TestWorld_NoLightmapsKeepsEmptyEntities(t *testing.T) {
	src := fullWorld()
	data := encodeWorld(t, src, EncodeOptions{NoLightmaps: true})
	got, _ := decodeWorld(t, data, DecodeOptions{})

	require.Len(t, got.Entities, len(src.Entities))
	require.Empty(t, got.Lightmaps)
	require.Nil(t, got.PVS)
	require.Nil(t, got.Root[0].Ext)
	require.Equal(t, src.BlendMap, got.BlendMap)
}

func TestWorld_EncodeWithoutRegistryWritesWorldVars(t *testing.T) {
	src := NewWorld(1024)
	src.Vars = []Var{{Name: "skylight", Type: VarInt, Int: 0x336699}}
	data := encodeWorld(t, src, EncodeOptions{})

	got, _ := decodeWorld(t, data, DecodeOptions{})
	require.Equal(t, src.Vars, got.Vars)
}

func TestEncode_RejectsLongFields(t *testing.T) {
	const n = 1 << 16
	tests := []struct {
		name  string
		world func(w *World)
		opts  EncodeOptions
	}{
		{"game data", func(w *World) { w.GameData = make([]byte, n) }, EncodeOptions{}},
		{"texture list", func(w *World) { w.TexMRU = make([]uint16, n) }, EncodeOptions{}},
		{"entity extension", func(w *World) {
			w.Entities = []Entity{{Type: EntLight, Extra: make([]byte, n)}}
		}, EncodeOptions{}},
		{"shader params", func(w *World) {
			vs := NewVSlot(0)
			vs.Changed = 1 << VSlotShParam
			vs.Params = make([]ShaderParam, n)
			w.VSlots = []*VSlot{vs}
		}, EncodeOptions{NoLightmaps: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWorld(1024)
			tt.world(w)
			var buf bytes.Buffer
			err := Encode(&buf, w, tt.opts)
			require.ErrorIs(t, err, ErrFieldTooLong)
			require.True(t, IsFormatError(err))
			require.Zero(t, buf.Len())
		})
	}
}

func TestDecode_ForeignGame(t *testing.T) {
	src := fullWorld()
	data := encodeWorld(t, src, EncodeOptions{GameIdent: "rpg", Entities: &testEntityHooks{}})

	hooks := &testEntityHooks{}
	game := &testGameData{}
	got, report := decodeWorld(t, data, DecodeOptions{Entities: hooks, GameData: game})

	require.Equal(t, "rpg", got.GameIdent)
	require.Len(t, got.Entities, 3)
	for _, e := range got.Entities {
		require.Less(t, e.Type, EntGameSpecific)
		require.Nil(t, e.Extra)
	}
	require.Empty(t, hooks.read)
	require.Nil(t, game.got)
	require.Equal(t, NoticeForeignGame, report.Notices()[0].Kind)
	require.Error(t, report.Err())
}

func TestDecode_EntityOutsideWorld(t *testing.T) {
	src := NewWorld(1024)
	src.Entities = []Entity{
		{Type: EntLight, O: math.Vec3{X: -50}},
		{Type: EntMapModel, O: math.Vec3{X: 2000}},
	}
	_, report := decodeWorld(t, encodeWorld(t, src, EncodeOptions{}), DecodeOptions{})

	notices := report.Notices()
	require.Len(t, notices, 1)
	require.Equal(t, NoticeEntityOutside, notices[0].Kind)
	require.Equal(t, 1, notices[0].Index)
}

func TestDecode_EntityCap(t *testing.T) {
	src := NewWorld(1024)
	for i := range MaxEntities + 3 {
		src.Entities = append(src.Entities, Entity{Type: EntLight, O: math.Vec3{X: float32(i % 1000)}, Extra: []byte{byte(i)}})
	}
	src.Root[5].SetSolid()
	data := encodeWorld(t, src, EncodeOptions{})

	got, report := decodeWorld(t, data, DecodeOptions{})
	require.Len(t, got.Entities, MaxEntities)
	require.Equal(t, []byte{(MaxEntities - 1) % 256}, got.Entities[MaxEntities-1].Extra)
	require.True(t, got.Root[5].IsEntirelySolid())
	require.Equal(t, crc32.ChecksumIEEE(data), report.CRC)
	require.Equal(t, NoticeEntityCap, report.Notices()[0].Kind)
}

func TestDecode_ExtensionSizeMismatch(t *testing.T) {
	src := NewWorld(1024)
	for i := range 3 {
		src.Entities = append(src.Entities, Entity{
			Type:  EntLight,
			O:     math.Vec3{X: float32(100 * (i + 1)), Y: 10, Z: 10},
			Attr:  [5]int16{int16(i + 1)},
			Extra: []byte{byte(i), 0xA, 0xB, 0xC},
		})
	}
	src.Root[2].SetSolid()
	data := encodeWorld(t, src, EncodeOptions{})

	tests := []struct {
		name  string
		size  int
		extra func(i int) []byte
	}{
		{"hook smaller", 2, func(i int) []byte { return []byte{byte(i), 0xA} }},
		{"hook larger", 6, func(i int) []byte { return []byte{byte(i), 0xA, 0xB, 0xC, 0, 0} }},
		{"hook empty", 0, func(int) []byte { return nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hooks := &sizedEntityHooks{size: tt.size}
			got, report := decodeWorld(t, data, DecodeOptions{Entities: hooks})
			require.NoError(t, report.Err())
			require.Len(t, got.Entities, 3)
			for i, e := range got.Entities {
				require.Equal(t, float32(100*(i+1)), e.O.X)
				require.Equal(t, int16(i+1), e.Attr[0])
				require.Equal(t, tt.extra(i), e.Extra)
				require.Equal(t, e.Extra, hooks.extra[i])
			}
			require.True(t, got.Root[2].IsEntirelySolid())
			require.Equal(t, crc32.ChecksumIEEE(data), report.CRC)
		})
	}
}

// octreeOffset is where the octree of a world without vars, game data,
// texture list, vslots or entity extras starts.
func octreeOffset(numEnts int) int {
	return HeaderSize + 5 + 2 + 2 + 2 + numEnts*EntityRecordSize
}

func TestDecode_CorruptNodeKeepsEntities(t *testing.T) {
	src := NewWorld(2048)
	src.Entities = []Entity{{Type: EntPlayerStart, O: math.Vec3{X: 64, Y: 64, Z: 64}}}
	src.Root[0].SetSolid()
	data := encodeWorld(t, src, EncodeOptions{})
	data[octreeOffset(1)] = 0x07

	reg := testVars()
	w, report, err := Decode(bytes.NewReader(data), DecodeOptions{Vars: reg})
	require.ErrorIs(t, err, ErrCorruptNode)
	require.False(t, IsFormatError(err))
	require.NotNil(t, w)
	require.Len(t, w.Entities, 1)
	require.Equal(t, NewCubes(), w.Root)
	require.Zero(t, report.CRC)

	size, _ := reg.Get("mapsize")
	require.Equal(t, int32(2048), size.Int)
}

func TestDecode_TruncatedLeavesRegistryAlone(t *testing.T) {
	src := NewWorld(2048)
	src.Vars = []Var{{Name: "fog", Type: VarInt, Int: 999}}
	src.Root[0].SetSolid()
	data := encodeWorld(t, src, EncodeOptions{})

	reg := testVars()
	hooks := &testEntityHooks{}
	w, _, err := Decode(bytes.NewReader(data[:len(data)-5]), DecodeOptions{Vars: reg, Entities: hooks})
	require.Error(t, err)
	require.True(t, IsFormatError(err))
	require.ErrorIs(t, err, ErrTruncated)
	require.Nil(t, w)

	size, _ := reg.Get("mapsize")
	require.Equal(t, int32(1024), size.Int)
	fog, _ := reg.Get("fog")
	require.Equal(t, int32(4000), fog.Int)
	require.Empty(t, reg.Saved())
}

func TestDecode_UnknownBlendNode(t *testing.T) {
	src := NewWorld(1024)
	src.BlendMap = SolidBlend(0x40)
	data := encodeWorld(t, src, EncodeOptions{})
	require.Equal(t, []byte{BlendSolid, 0x40}, data[len(data)-2:])
	data[len(data)-2] = 9

	got, report := decodeWorld(t, data, DecodeOptions{})
	require.Equal(t, SolidBlend(0xFF), got.BlendMap)
	require.Equal(t, NoticeBlendMap, report.Notices()[0].Kind)
}

func TestDecode_RejectsBadPVS(t *testing.T) {
	src := NewWorld(1024)
	src.PVS = &PVS{WaterPlanes: make([]int32, 2), Lengths: []uint16{1}, Data: []byte{0}}
	data := encodeWorld(t, src, EncodeOptions{})

	// Patch the water plane count that follows the PVS byte total.
	off := octreeOffset(0) + 8*13 + 4
	require.Equal(t, []byte{2, 0, 0, 0}, data[off:off+4])
	data[off] = MaxWaterPlanes + 1

	_, _, err := Decode(bytes.NewReader(data), DecodeOptions{})
	require.True(t, IsFormatError(err))
}

func TestDecode_RejectsHugePVSCount(t *testing.T) {
	src := NewWorld(1024)
	src.PVS = &PVS{Lengths: []uint16{1}, Data: []byte{0}}
	data := encodeWorld(t, src, EncodeOptions{})

	// numpvs follows magic, version, headersize, worldsize and numents.
	require.Equal(t, []byte{1, 0, 0, 0}, data[20:24])

	tests := []struct {
		name   string
		numPVS uint32
	}{
		{"above cap", 0x10000000},
		{"max int32", 0x7FFFFFFF},
		{"truncated", 1 << 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patched := bytes.Clone(data)
			binary.LittleEndian.PutUint32(patched[20:24], tt.numPVS)
			_, _, err := Decode(bytes.NewReader(patched), DecodeOptions{})
			if !IsFormatError(err) {
				t.Errorf("expected format error, got %v", err)
			}
		})
	}
}

func TestScanEntities(t *testing.T) {
	data := encodeWorld(t, fullWorld(), EncodeOptions{Entities: &testEntityHooks{}})
	_, report := decodeWorld(t, data, DecodeOptions{Entities: &testEntityHooks{}})

	scan, err := ScanEntities(bytes.NewReader(data), "")
	require.NoError(t, err)
	require.Equal(t, crc32.ChecksumIEEE(data), scan.CRC)
	require.Equal(t, report.CRC, scan.CRC)
	require.Equal(t, "fps", scan.GameType)
	require.Len(t, scan.Entities, 4)
	require.Equal(t, []byte{1, 2, 3, 4}, scan.Entities[0].Extra)
}

func TestDecode_Progress(t *testing.T) {
	data := encodeWorld(t, fullWorld(), EncodeOptions{})
	var labels []string
	_, _, err := Decode(bytes.NewReader(data), DecodeOptions{Progress: ProgressFunc(func(f float32, label string) {
		labels = append(labels, label)
	})})
	require.NoError(t, err)
	require.Contains(t, labels, "loading octree...")
	require.Contains(t, labels, "loading lightmaps...")
}

func TestDecode_Version28ImportsHeaderSettings(t *testing.T) {
	m := legacyMap{version: 28, title: "Old Map", skylight: [3]uint8{0x11, 0x22, 0x33}, ambient: 25}
	data := m.bytes()

	reg := testVars()
	w, report := decodeWorld(t, data, DecodeOptions{Vars: reg})
	require.Equal(t, 28, w.Version)
	require.Equal(t, crc32.ChecksumIEEE(data), report.CRC)

	want := map[string]Var{
		"maptitle":    {Name: "maptitle", Type: VarString, Str: "Old Map"},
		"skylight":    {Name: "skylight", Type: VarInt, Int: 0x112233},
		"watercolour": {Name: "watercolour", Type: VarInt, Int: 0x0A141E},
		"ambient":     {Name: "ambient", Type: VarInt, Int: 25},
		"lightlod":    {Name: "lightlod", Type: VarInt, Int: 2},
		"mapversion":  {Name: "mapversion", Type: VarInt, Int: 28},
	}
	for name, v := range want {
		got, _ := reg.Get(name)
		require.Equal(t, v, got, name)
	}
}

func TestDecode_Version11SwapsTopAndBottom(t *testing.T) {
	var cube bytes.Buffer
	cube.WriteByte(OctNormal)
	cube.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	cube.Write([]byte{1, 2, 3, 4, 5, 6})
	cube.WriteByte(0)

	m := legacyMap{version: 11, cubes: [][]byte{cube.Bytes()}}
	w, _ := decodeWorld(t, m.bytes(), DecodeOptions{})

	require.Equal(t, [12]uint8{9, 10, 11, 12, 5, 6, 7, 8, 1, 2, 3, 4}, w.Root[0].Edges)
	require.Equal(t, [6]uint16{5, 6, 3, 4, 1, 2}, w.Root[0].Texture)
	require.Len(t, w.TexMRU, 256)
	require.Equal(t, DefaultGameIdent, w.GameIdent)
}

func TestDecode_Version14MapModel(t *testing.T) {
	m := legacyMap{version: 14, ents: []Entity{
		{Type: 16, O: math.Vec3{X: 10, Y: 10, Z: 10}, Attr: [5]int16{0, 0, 5, 3, 0}},
	}}
	w, report := decodeWorld(t, m.bytes(), DecodeOptions{})

	require.Len(t, w.Entities, 1)
	e := w.Entities[0]
	require.Equal(t, EntMapModel, e.Type)
	require.Equal(t, float32(15), e.O.Z)
	require.Equal(t, [5]int16{180, 0, 0, 0, 0}, e.Attr)
	require.Equal(t, NoticeMapModelTexture, report.Notices()[0].Kind)
}

func TestDecode_Version20Material(t *testing.T) {
	var cube bytes.Buffer
	cube.WriteByte(OctSolid)
	cube.Write(make([]byte, 12))
	cube.WriteByte(0x80)
	cube.WriteByte(5)

	m := legacyMap{version: 20, cubes: [][]byte{cube.Bytes()}}
	w, _ := decodeWorld(t, m.bytes(), DecodeOptions{})
	require.Equal(t, uint16(MatLava|MatDeath), w.Root[0].Material)
	require.True(t, w.Root[0].IsEntirelySolid())
}

func TestDecode_LegacyUpgradeIsStable(t *testing.T) {
	m := legacyMap{version: 28, title: "Upgrade", ents: []Entity{{Type: EntLight, O: math.Vec3{X: 8, Y: 8, Z: 8}}}}
	w, _ := decodeWorld(t, m.bytes(), DecodeOptions{})

	upgraded := encodeWorld(t, w, EncodeOptions{})
	w2, _ := decodeWorld(t, upgraded, DecodeOptions{})
	require.Equal(t, MapVersion, w2.Version)
	require.Equal(t, w.Root, w2.Root)
	require.Equal(t, upgraded, encodeWorld(t, w2, EncodeOptions{}))
}

func TestDecode_RejectsHeader(t *testing.T) {
	_, _, err := Decode(bytes.NewReader([]byte("nope")), DecodeOptions{})
	require.True(t, IsFormatError(err))
	require.True(t, errors.Is(err, ErrMalformedHeader))
}
