package ogz

import (
	"github.com/Faultbox/cubemap/pkg/math"
)

// EntityType is the type tag of an entity.
type EntityType uint8

// Engine entity types. Values from EntGameSpecific upward belong to the
// game that wrote the map.
const (
	EntEmpty EntityType = iota
	EntLight
	EntMapModel
	EntPlayerStart
	EntEnvMap
	EntParticles
	EntSound
	EntSpotlight
	EntGameSpecific
)

// Game entity types that older maps were renumbered around.
const (
	EntBombs    EntityType = 19
	EntObstacle EntityType = 34
)

var entityNames = [...]string{"empty", "light", "mapmodel", "playerstart", "envmap", "particles", "sound", "spotlight"}

func (t EntityType) String() string {
	if int(t) < len(entityNames) {
		return entityNames[t]
	}
	return "gamespecific"
}

const (
	// MaxEntities is the most entities a map may carry.
	MaxEntities = 10000
	// EntityRecordSize is the size of one stored entity without extras.
	EntityRecordSize = 24
)

// Entity is a positioned world object.
type Entity struct {
	O        math.Vec3
	Attr     [5]int16
	Type     EntityType
	Reserved uint8

	// Extra holds the game-specific bytes that follow the record.
	Extra []byte
	// Attached is the index of the entity this one is attached to, or -1.
	Attached int
}

// EntityHooks lets the game own the per-entity extension bytes.
type EntityHooks interface {
	// ExtraInfoSize is the number of bytes stored after every entity.
	ExtraInfoSize() int
	// ReadEntity receives an entity after migration along with its
	// extension bytes.
	ReadEntity(e *Entity, extra []byte, version int)
	// WriteEntity fills extra, which has ExtraInfoSize bytes.
	WriteEntity(e *Entity, extra []byte)
}

func readEntityRecord(r *Reader) Entity {
	e := Entity{Attached: -1}
	e.O.X = r.F32()
	e.O.Y = r.F32()
	e.O.Z = r.F32()
	for i := range e.Attr {
		e.Attr[i] = r.I16()
	}
	e.Type = EntityType(r.U8())
	e.Reserved = r.U8()
	return e
}

func writeEntityRecord(w *Writer, e *Entity) {
	w.PutF32(e.O.X)
	w.PutF32(e.O.Y)
	w.PutF32(e.O.Z)
	for _, a := range e.Attr {
		w.PutI16(a)
	}
	w.PutU8(uint8(e.Type))
	w.PutU8(e.Reserved)
}

// entityRule rewrites entities stored by maps of version MaxVersion or older.
type entityRule struct {
	MaxVersion int
	Apply      func(e *Entity)
}

// entityRules are applied in order; each fires on its own threshold.
var entityRules = []entityRule{
	{10, func(e *Entity) {
		if e.Type >= 7 {
			e.Type++
		}
	}},
	{12, func(e *Entity) {
		if e.Type >= 8 {
			e.Type++
		}
	}},
	{14, func(e *Entity) {
		if e.Type >= EntMapModel && e.Type <= 16 {
			if e.Type == 16 {
				e.Type = EntMapModel
			} else {
				e.Type++
			}
		}
	}},
	{20, func(e *Entity) {
		if e.Type >= EntEnvMap {
			e.Type++
		}
	}},
	{21, func(e *Entity) {
		if e.Type >= EntParticles {
			e.Type++
		}
	}},
	{22, func(e *Entity) {
		if e.Type >= EntSound {
			e.Type++
		}
	}},
	{23, func(e *Entity) {
		if e.Type >= EntSpotlight {
			e.Type++
		}
	}},
	{30, func(e *Entity) {
		if e.Type == EntMapModel || e.Type == EntPlayerStart {
			e.Attr[0] = int16((int(e.Attr[0]) + 180) % 360)
		}
	}},
	{31, func(e *Entity) {
		if e.Type == EntMapModel {
			yaw := (int(e.Attr[0])%360+360)%360 + 7
			e.Attr[0] = int16(yaw - yaw%15)
		}
	}},
	{39, func(e *Entity) {
		if e.Type >= EntBombs {
			e.Type += 3
		}
	}},
	{39, func(e *Entity) {
		if e.Type >= EntObstacle {
			e.Type += 8
		}
	}},
}

// FixEntity migrates an entity stored by a map of the given version to the
// current type numbering and attribute meaning.
func FixEntity(e *Entity, version int) {
	for _, rule := range entityRules {
		if version <= rule.MaxVersion {
			rule.Apply(e)
		}
	}
}

func insideWorld(o math.Vec3, size int) bool {
	s := float32(size)
	return o.X >= 0 && o.X < s && o.Y >= 0 && o.Y < s && o.Z >= 0 && o.Z < s
}

// readEntities reads the entity table. Entities from a foreign game are
// kept only when they are engine entities of a map newer than version 14.
func (d *decoder) readEntities(numents int) {
	// stored is the extension size in the file. Maps before version 16
	// have no size field and carry the game's own size.
	stored, size := d.eif, 0
	if d.sameGame {
		size = d.extraInfoSize()
		if d.version < 16 {
			stored = size
		}
	}
	count := min(numents, MaxEntities)
	d.world.Entities = make([]Entity, 0, count)
	for i := 0; i < count; i++ {
		e := readEntityRecord(d.r)
		FixEntity(&e, d.version)
		if d.sameGame {
			// The hook size wins: extra file bytes are dropped and
			// missing ones read as zero.
			raw := d.r.Bytes(stored)
			if size > 0 {
				e.Extra = make([]byte, size)
				copy(e.Extra, raw)
			}
		} else {
			d.r.Skip(int64(stored))
			if e.Type >= EntGameSpecific || d.version <= 14 {
				continue
			}
		}
		if !insideWorld(e.O, d.world.Size) && e.Type != EntLight && e.Type != EntSpotlight {
			d.report.notify(NoticeEntityOutside, i, "entity outside of world: %s index %d (%g, %g, %g)", e.Type, i, e.O.X, e.O.Y, e.O.Z)
		}
		if d.version <= 14 && e.Type == EntMapModel {
			e.O.Z += float32(e.Attr[2])
			if e.Attr[3] != 0 {
				d.report.notify(NoticeMapModelTexture, i, "mapmodel entity index %d uses texture slot %d", i, e.Attr[3])
			}
			e.Attr[2], e.Attr[3] = 0, 0
		}
		d.world.Entities = append(d.world.Entities, e)
		if d.r.Err() != nil {
			return
		}
	}
	if numents > MaxEntities {
		d.report.notify(NoticeEntityCap, -1, "map has %d entities, keeping %d", numents, MaxEntities)
		d.r.Skip(int64(numents-MaxEntities) * int64(EntityRecordSize+stored))
	}
}

// AttachEntities links every spotlight to the closest light within 100
// units that no other spotlight has claimed. Existing attachments are
// discarded first.
func AttachEntities(ents []Entity) {
	const radius = 100
	for i := range ents {
		ents[i].Attached = -1
	}
	taken := make(map[int]bool)
	for i := range ents {
		if ents[i].Type != EntSpotlight {
			continue
		}
		best, bestDist := -1, float32(0)
		for j := range ents {
			if ents[j].Type != EntLight || taken[j] {
				continue
			}
			if dist := ents[i].O.Distance(ents[j].O); best < 0 || dist < bestDist {
				best, bestDist = j, dist
			}
		}
		if best >= 0 && bestDist <= radius {
			ents[i].Attached = best
			taken[best] = true
		}
	}
}
