package ogz

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Faultbox/cubemap/pkg/math"
)

// DefaultGameIdent is the game identifier assumed for maps older than
// version 16.
const DefaultGameIdent = "fps"

// World is a decoded map.
type World struct {
	Size int
	// Version is the layout the world was decoded from.
	Version   int
	GameIdent string
	// GameData is the opaque game block stored after the identifier.
	GameData []byte
	TexMRU   []uint16
	Entities []Entity
	VSlots   []*VSlot
	// Root holds the 8 children of the world cube.
	Root      []Cube
	Lightmaps []Lightmap
	PVS       *PVS
	BlendMap  *BlendNode
	// Vars holds the variable assignments the map carried, in file order.
	Vars []Var
}

// NewWorld returns an empty world of the given size.
func NewWorld(size int) *World {
	return &World{
		Size:      size,
		Version:   MapVersion,
		GameIdent: DefaultGameIdent,
		Root:      NewCubes(),
		BlendMap:  SolidBlend(0xFF),
	}
}

// Scale returns log2 of the world size, rounded up.
func (w *World) Scale() int {
	h := Header{WorldSize: w.Size}
	return h.WorldScale()
}

// Progress receives coarse progress updates during long operations.
type Progress interface {
	Report(fraction float32, label string)
}

// ProgressFunc adapts a function to Progress.
type ProgressFunc func(fraction float32, label string)

// Report implements Progress.
func (f ProgressFunc) Report(fraction float32, label string) { f(fraction, label) }

// GameDataHooks lets the game own the opaque block after the game
// identifier.
type GameDataHooks interface {
	ReadGameData(data []byte)
	WriteGameData() []byte
}

// DecodeOptions configures Decode.
type DecodeOptions struct {
	// GameIdent is the running game. Entities of maps written by another
	// game are filtered. Defaults to DefaultGameIdent.
	GameIdent string
	// Vars receives the variables the map overrides. Nothing is assigned
	// unless the world decodes without a format error.
	Vars     VarRegistry
	Entities EntityHooks
	GameData GameDataHooks
	Progress Progress
	// VarTrace is called for every stored variable with whether it was
	// applied.
	VarTrace func(v Var, applied bool)
}

// EncodeOptions configures Encode.
type EncodeOptions struct {
	// NoLightmaps drops merge and surface data, lightmaps and PVS, and keeps
	// empty entities. Vertex slots are not compacted.
	NoLightmaps bool
	// GameIdent overrides the identifier written to the map. Defaults to
	// the world's own identifier.
	GameIdent string
	// Vars supplies the variables to store. Without a registry the world's
	// own Vars are written back.
	Vars     VarRegistry
	Entities EntityHooks
	GameData GameDataHooks
	Progress Progress
}

type decoder struct {
	r        *Reader
	version  int
	sameGame bool
	eif      int
	hooks    EntityHooks
	world    *World
	report   *Report
	pending  []Var
	opts     DecodeOptions
}

func (d *decoder) extraInfoSize() int {
	if d.hooks != nil {
		return d.hooks.ExtraInfoSize()
	}
	return d.eif
}

func (d *decoder) progress(fraction float32, label string) {
	if d.opts.Progress != nil {
		d.opts.Progress.Report(fraction, label)
	}
}

// stage wraps a read failure of one decode step.
func (d *decoder) stage(op string) error {
	if err := d.r.Err(); err != nil {
		return &FormatError{Op: op, Err: err}
	}
	return nil
}

func (d *decoder) readPrelude(h *Header) error {
	r := d.r
	d.pending = append(d.pending, Var{Name: "mapversion", Type: VarInt, Int: int32(h.Version)})
	if h.Legacy != nil {
		h.Legacy.importVars(func(v Var) { d.pending = append(d.pending, v) })
	}
	d.pending = append(d.pending,
		Var{Name: "mapsize", Type: VarInt, Int: int32(h.WorldSize)},
		Var{Name: "mapscale", Type: VarInt, Int: int32(h.WorldScale())},
	)

	d.progress(0, "loading vars...")
	for range h.NumVars {
		v, err := readVar(r)
		if err != nil {
			return err
		}
		d.world.Vars = append(d.world.Vars, v)
	}

	gameIdent := d.opts.GameIdent
	if gameIdent == "" {
		gameIdent = DefaultGameIdent
	}
	d.world.GameIdent = DefaultGameIdent
	if h.Version >= 16 {
		n := int(r.U8())
		d.world.GameIdent = string(bytes.TrimRight(r.Bytes(n+1), "\x00"))
	}
	d.sameGame = d.world.GameIdent == gameIdent
	if !d.sameGame {
		d.report.notify(NoticeForeignGame, -1, "map from %q game, ignoring entities except engine entities", d.world.GameIdent)
	}
	if h.Version >= 16 {
		d.eif = int(r.U16())
		d.world.GameData = r.Bytes(int(r.U16()))
	}

	if h.Version < 14 {
		old := r.Bytes(256)
		d.world.TexMRU = make([]uint16, len(old))
		for i, t := range old {
			d.world.TexMRU[i] = uint16(t)
		}
	} else {
		d.world.TexMRU = make([]uint16, r.U16())
		for i := range d.world.TexMRU {
			d.world.TexMRU[i] = r.U16()
		}
	}
	return d.stage("prelude")
}

// Decode reads a map from an uncompressed stream.
//
// A FormatError means nothing usable was decoded and the registry and hooks
// were not touched. If the octree holds a corrupt node the returned world
// has the header data and entities of the map but an empty octree, and the
// error matches ErrCorruptNode. The report's CRC is only set on success.
func Decode(src io.Reader, opts DecodeOptions) (*World, *Report, error) {
	r := NewReader(src)
	h, err := ReadHeader(r)
	if err != nil {
		return nil, nil, err
	}
	report := &Report{Version: h.Version}
	w := &World{Size: h.WorldSize, Version: h.Version}
	d := &decoder{r: r, version: h.Version, hooks: opts.Entities, world: w, report: report, opts: opts}

	if err := d.readPrelude(h); err != nil {
		return nil, report, err
	}
	report.GameType = w.GameIdent

	d.progress(0, "loading entities...")
	d.readEntities(h.NumEnts)
	if err := d.stage("entities"); err != nil {
		return nil, report, err
	}

	d.progress(0, "loading slots...")
	if w.VSlots, err = ReadVSlots(r, h.NumVSlots); err != nil {
		return nil, report, err
	}

	d.progress(0, "loading octree...")
	w.Root, err = d.loadChildren(math.IVec{}, h.WorldSize>>1)
	if err != nil {
		if !errors.Is(err, ErrCorruptNode) {
			return nil, report, err
		}
		w.Root = NewCubes()
		w.BlendMap = SolidBlend(0xFF)
		d.commit()
		return w, report, err
	}

	if err := d.readAncillary(h); err != nil {
		return nil, report, err
	}
	if w.BlendMap == nil {
		w.BlendMap = SolidBlend(0xFF)
	}
	d.commit()
	report.CRC = r.CRC()
	return w, report, nil
}

func (d *decoder) readAncillary(h *Header) error {
	r, w := d.r, d.world
	if h.Version >= 7 {
		for i := range h.Lightmaps {
			d.progress(float32(i)/float32(h.Lightmaps), "loading lightmaps...")
			w.Lightmaps = append(w.Lightmaps, readLightmap(r, h.Version))
			if err := d.stage("lightmaps"); err != nil {
				return err
			}
		}
	}
	if h.Version >= 25 && h.NumPVS > 0 {
		p, err := readPVS(r, h.NumPVS)
		if err != nil {
			return err
		}
		w.PVS = p
	}
	if h.Version >= 28 && h.BlendMap != 0 {
		b, ok := readBlendNode(r, 0)
		if err := d.stage("blendmap"); err != nil {
			return err
		}
		if !ok {
			d.report.notify(NoticeBlendMap, -1, "blend map holds an unknown node, rest of blend map ignored")
		}
		w.BlendMap = b
	}
	return nil
}

// commit hands decoded state to the registry and hooks.
func (d *decoder) commit() {
	reg := d.opts.Vars
	for _, v := range d.pending {
		forceVar(reg, v)
	}
	for _, v := range d.world.Vars {
		applied := applyVar(reg, v)
		if d.opts.VarTrace != nil {
			d.opts.VarTrace(v, applied)
		}
	}
	if d.sameGame {
		if d.opts.GameData != nil {
			d.opts.GameData.ReadGameData(d.world.GameData)
		}
		if d.hooks != nil {
			for i := range d.world.Entities {
				e := &d.world.Entities[i]
				d.hooks.ReadEntity(e, e.Extra, d.version)
			}
		}
	}
	AttachEntities(d.world.Entities)
}

// Encode writes w in the current layout to an uncompressed stream. Unless
// NoLightmaps is set the world's vertex slots are compacted first, which
// renumbers the texture indices of its cubes.
func Encode(dst io.Writer, w *World, opts EncodeOptions) error {
	if len(w.Root) != 8 {
		return &FormatError{Op: "octree", Err: fmt.Errorf("%w: world root has %d cubes", ErrCorruptNode, len(w.Root))}
	}
	out := NewWriter(dst)
	if !opts.NoLightmaps {
		w.CompactVSlots()
	}
	progress := func(f float32, label string) {
		if opts.Progress != nil {
			opts.Progress.Report(f, label)
		}
	}
	progress(0, "saving map...")

	var ents []*Entity
	for i := range w.Entities {
		if w.Entities[i].Type != EntEmpty || opts.NoLightmaps {
			ents = append(ents, &w.Entities[i])
		}
	}
	vars := w.Vars
	if opts.Vars != nil {
		vars = opts.Vars.Saved()
	}
	eif := 0
	if opts.Entities != nil {
		eif = opts.Entities.ExtraInfoSize()
	} else {
		for _, e := range ents {
			eif = max(eif, len(e.Extra))
		}
	}
	extras := w.GameData
	if opts.GameData != nil {
		extras = opts.GameData.WriteGameData()
	}
	if err := checkLengths(w, eif, len(extras)); err != nil {
		return err
	}

	h := &Header{
		WorldSize: w.Size,
		NumEnts:   len(ents),
		NumVars:   len(vars),
		NumVSlots: len(w.VSlots),
	}
	if !opts.NoLightmaps {
		h.NumPVS = w.PVS.ViewCells()
		h.Lightmaps = len(w.Lightmaps)
	}
	if w.BlendMap.ShouldSave() {
		h.BlendMap = 1
	}
	WriteHeader(out, h)
	for _, v := range vars {
		writeVar(out, v)
	}

	ident := opts.GameIdent
	if ident == "" {
		ident = w.GameIdent
	}
	if ident == "" {
		ident = DefaultGameIdent
	}
	if len(ident) > 255 {
		ident = ident[:255]
	}
	out.PutU8(uint8(len(ident)))
	out.PutString(ident)
	out.PutU8(0)

	out.PutU16(uint16(eif))
	out.PutU16(uint16(len(extras)))
	out.PutBytes(extras)

	out.PutU16(uint16(len(w.TexMRU)))
	for _, t := range w.TexMRU {
		out.PutU16(t)
	}

	ebuf := make([]byte, eif)
	for _, e := range ents {
		writeEntityRecord(out, e)
		if eif == 0 {
			continue
		}
		clear(ebuf)
		if opts.Entities != nil {
			opts.Entities.WriteEntity(e, ebuf)
		} else {
			copy(ebuf, e.Extra)
		}
		out.PutBytes(ebuf)
	}

	WriteVSlots(out, w.VSlots)

	progress(0, "saving octree...")
	enc := &encoder{w: out, noLMs: opts.NoLightmaps, progress: opts.Progress, totalNodes: CountNodes(w.Root)}
	enc.encodeCubes(w.Root, math.IVec{}, w.Size>>1)
	if enc.err != nil {
		return enc.err
	}

	if !opts.NoLightmaps {
		for i := range w.Lightmaps {
			writeLightmap(out, &w.Lightmaps[i])
			progress(float32(i+1)/float32(len(w.Lightmaps)), "saving lightmaps...")
		}
		if w.PVS.ViewCells() > 0 {
			progress(0, "saving pvs...")
			writePVS(out, w.PVS)
		}
	}
	if w.BlendMap.ShouldSave() {
		progress(0, "saving blendmap...")
		writeBlendNode(out, w.BlendMap)
	}
	return out.Err()
}

// maxFieldLen is the longest list a uint16 length prefix can describe.
const maxFieldLen = 1<<16 - 1

// checkLengths rejects lists that do not fit their uint16 length prefix.
func checkLengths(w *World, eif, gameData int) error {
	tooLong := func(what string, n int) error {
		return &FormatError{Op: "encode", Err: fmt.Errorf("%w: %s has length %d", ErrFieldTooLong, what, n)}
	}
	switch {
	case eif > maxFieldLen:
		return tooLong("entity extension", eif)
	case gameData > maxFieldLen:
		return tooLong("game data", gameData)
	case len(w.TexMRU) > maxFieldLen:
		return tooLong("texture list", len(w.TexMRU))
	}
	for i, vs := range w.VSlots {
		if !vs.Has(VSlotShParam) {
			continue
		}
		if len(vs.Params) > maxFieldLen {
			return tooLong(fmt.Sprintf("vslot %d shader params", i), len(vs.Params))
		}
		for _, p := range vs.Params {
			if len(p.Name) > maxFieldLen {
				return tooLong(fmt.Sprintf("vslot %d shader param name", i), len(p.Name))
			}
		}
	}
	return nil
}

// EntityScan is the result of ScanEntities.
type EntityScan struct {
	Header   *Header
	GameType string
	Entities []Entity
	// CRC covers the whole stream.
	CRC uint32
}

// ScanEntities reads only the header and entity table of a map, then
// consumes the rest of the stream so that the checksum matches a full
// load. Entities keep their raw extension bytes.
func ScanEntities(src io.Reader, gameIdent string) (*EntityScan, error) {
	r := NewReader(src)
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	w := &World{Size: h.WorldSize, Version: h.Version}
	d := &decoder{r: r, version: h.Version, world: w, report: &Report{}, opts: DecodeOptions{GameIdent: gameIdent}}
	if err := d.readPrelude(h); err != nil {
		return nil, err
	}
	d.readEntities(h.NumEnts)
	if err := d.stage("entities"); err != nil {
		return nil, err
	}
	if err := r.Drain(); err != nil {
		return nil, &FormatError{Op: "scan", Err: err}
	}
	return &EntityScan{Header: h, GameType: w.GameIdent, Entities: w.Entities, CRC: r.CRC()}, nil
}
