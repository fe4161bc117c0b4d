package ogz

import (
	"fmt"
)

// VSlot field groups. A changed mask has bit 1<<field set for every group
// stored with the slot.
const (
	VSlotShParam = iota
	VSlotScale
	VSlotRotation
	VSlotOffset
	VSlotScroll
	VSlotLayer
	VSlotAlpha
	VSlotColor
	NumVSlotFields
)

// MaxVSlots bounds the slot count a map may declare.
const MaxVSlots = 1 << 20

// ShaderParam overrides one shader uniform.
type ShaderParam struct {
	Name string
	Val  [4]float32
}

// VSlot is a texture slot variant: a set of overrides applied on top of a
// base texture slot. Slots with no changes are roots; changed slots hang
// off a root through Next.
type VSlot struct {
	Index   int
	Next    int // index of the next variant in the chain, or -1
	Changed int32

	Params     []ShaderParam
	Scale      float32
	Rotation   int32
	XOffset    int32
	YOffset    int32
	ScrollS    float32
	ScrollT    float32
	Layer      int32
	AlphaFront float32
	AlphaBack  float32
	ColorScale [3]float32
}

// NewVSlot returns a slot holding default values.
func NewVSlot(index int) *VSlot {
	return &VSlot{
		Index:      index,
		Next:       -1,
		Scale:      1,
		AlphaFront: 0.5,
		ColorScale: [3]float32{1, 1, 1},
	}
}

// Has reports whether field group f is present.
func (vs *VSlot) Has(f int) bool { return vs.Changed&(1<<f) != 0 }

func vslotError(err error) error {
	return &FormatError{Op: "vslots", Err: err}
}

func readVSlotFields(r *Reader, vs *VSlot) {
	if vs.Has(VSlotShParam) {
		n := int(r.U16())
		for i := 0; i < n && r.Err() == nil; i++ {
			var p ShaderParam
			p.Name = r.String(int(r.U16()))
			for k := range p.Val {
				p.Val[k] = r.F32()
			}
			vs.Params = append(vs.Params, p)
		}
	}
	if vs.Has(VSlotScale) {
		vs.Scale = r.F32()
	}
	if vs.Has(VSlotRotation) {
		vs.Rotation = r.I32()
	}
	if vs.Has(VSlotOffset) {
		vs.XOffset = r.I32()
		vs.YOffset = r.I32()
	}
	if vs.Has(VSlotScroll) {
		vs.ScrollS = r.F32()
		vs.ScrollT = r.F32()
	}
	if vs.Has(VSlotLayer) {
		vs.Layer = r.I32()
	}
	if vs.Has(VSlotAlpha) {
		vs.AlphaFront = r.F32()
		vs.AlphaBack = r.F32()
	}
	if vs.Has(VSlotColor) {
		for k := range vs.ColorScale {
			vs.ColorScale[k] = r.F32()
		}
	}
}

func writeVSlotFields(w *Writer, vs *VSlot) {
	if vs.Has(VSlotShParam) {
		w.PutU16(uint16(len(vs.Params)))
		for _, p := range vs.Params {
			w.PutU16(uint16(len(p.Name)))
			w.PutString(p.Name)
			for _, v := range p.Val {
				w.PutF32(v)
			}
		}
	}
	if vs.Has(VSlotScale) {
		w.PutF32(vs.Scale)
	}
	if vs.Has(VSlotRotation) {
		w.PutI32(vs.Rotation)
	}
	if vs.Has(VSlotOffset) {
		w.PutI32(vs.XOffset)
		w.PutI32(vs.YOffset)
	}
	if vs.Has(VSlotScroll) {
		w.PutF32(vs.ScrollS)
		w.PutF32(vs.ScrollT)
	}
	if vs.Has(VSlotLayer) {
		w.PutI32(vs.Layer)
	}
	if vs.Has(VSlotAlpha) {
		w.PutF32(vs.AlphaFront)
		w.PutF32(vs.AlphaBack)
	}
	if vs.Has(VSlotColor) {
		for _, c := range vs.ColorScale {
			w.PutF32(c)
		}
	}
}

// ReadVSlots decodes n slots. Negative run lengths expand into default
// slots; every other entry is a changed mask, the index of the slot that
// precedes it in its chain, and the fields the mask selects.
func ReadVSlots(r *Reader, n int) ([]*VSlot, error) {
	if n > MaxVSlots {
		return nil, vslotError(fmt.Errorf("%w: %d vslots", ErrMalformedHeader, n))
	}
	slots := make([]*VSlot, 0, min(n, 1<<16))
	var prev []int
	for remaining := n; remaining > 0; {
		changed := r.I32()
		if err := r.Err(); err != nil {
			return nil, vslotError(err)
		}
		if changed < 0 {
			run := -int(changed)
			if run > remaining {
				return nil, vslotError(fmt.Errorf("%w: run of %d default slots with %d left", ErrMalformedHeader, run, remaining))
			}
			for i := 0; i < run; i++ {
				slots = append(slots, NewVSlot(len(slots)))
				prev = append(prev, -1)
			}
			remaining -= run
			continue
		}
		p := int(r.I32())
		vs := NewVSlot(len(slots))
		vs.Changed = changed
		readVSlotFields(r, vs)
		if err := r.Err(); err != nil {
			return nil, vslotError(err)
		}
		slots = append(slots, vs)
		prev = append(prev, p)
		remaining--
	}
	for i, p := range prev {
		if p >= 0 && p < len(slots) {
			slots[p].Next = i
		}
	}
	return slots, nil
}

// chainPrev returns, for every slot, the index of the slot preceding it in
// the chain that starts at an unchanged root, or -1.
func chainPrev(slots []*VSlot) []int {
	prev := make([]int, len(slots))
	for i := range prev {
		prev[i] = -1
	}
	for i, root := range slots {
		if root.Changed != 0 {
			continue
		}
		cur := i
		for steps := 0; steps < len(slots); steps++ {
			next := slots[cur].Next
			if next < 0 || next >= len(slots) {
				break
			}
			prev[next] = cur
			cur = next
		}
	}
	return prev
}

// WriteVSlots encodes slots with runs of unchanged slots folded into
// negative counts.
func WriteVSlots(w *Writer, slots []*VSlot) {
	if len(slots) == 0 {
		return
	}
	prev := chainPrev(slots)
	lastRoot := 0
	for i, vs := range slots {
		if vs.Changed == 0 {
			continue
		}
		if lastRoot < i {
			w.PutI32(int32(-(i - lastRoot)))
		}
		w.PutI32(vs.Changed)
		w.PutI32(int32(prev[i]))
		writeVSlotFields(w, vs)
		lastRoot = i + 1
	}
	if lastRoot < len(slots) {
		w.PutI32(int32(-(len(slots) - lastRoot)))
	}
}
