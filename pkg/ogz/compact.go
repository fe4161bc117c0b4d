package ogz

// walkTextures calls fn for every texture index of every leaf.
func walkTextures(cubes []Cube, fn func(t *uint16)) {
	for i := range cubes {
		c := &cubes[i]
		if c.Children != nil {
			walkTextures(c.Children, fn)
			continue
		}
		for j := range c.Texture {
			fn(&c.Texture[j])
		}
	}
}

// CompactVSlots removes changed slots that nothing references and
// renumbers the remaining ones. Unchanged slots come first in their current
// order, followed by changed slots in the order they are first referenced
// by the texture MRU list, the octree, and the layer of an already kept
// slot. Chains are rebuilt from the surviving slots. Compacting an already
// compacted world changes nothing. It returns the new slot count.
func (w *World) CompactVSlots() int {
	n := len(w.VSlots)
	if n == 0 {
		return 0
	}
	remap := make([]int, n)
	for i := range remap {
		remap[i] = -1
	}
	var order []int
	keep := func(i int) {
		if i >= 0 && i < n && remap[i] < 0 {
			remap[i] = len(order)
			order = append(order, i)
		}
	}
	for i, vs := range w.VSlots {
		if vs.Changed == 0 {
			keep(i)
		}
	}
	for _, t := range w.TexMRU {
		keep(int(t))
	}
	walkTextures(w.Root, func(t *uint16) { keep(int(*t)) })
	for k := 0; k < len(order); k++ {
		if vs := w.VSlots[order[k]]; vs.Has(VSlotLayer) {
			keep(int(vs.Layer))
		}
	}

	// Rebuild chains over kept slots, preserving their relative order.
	next := make([]int, n)
	for i := range next {
		next[i] = -1
	}
	for i, vs := range w.VSlots {
		if vs.Changed != 0 {
			continue
		}
		last := i
		cur := vs.Next
		for steps := 0; cur >= 0 && cur < n && steps < n; steps++ {
			if remap[cur] >= 0 && w.VSlots[cur].Changed != 0 {
				next[last] = cur
				last = cur
			}
			cur = w.VSlots[cur].Next
		}
	}

	slots := make([]*VSlot, len(order))
	for k, old := range order {
		vs := w.VSlots[old]
		vs.Index = k
		vs.Next = -1
		if nx := next[old]; nx >= 0 {
			vs.Next = remap[nx]
		}
		if vs.Has(VSlotLayer) && vs.Layer >= 0 && int(vs.Layer) < n && remap[vs.Layer] >= 0 {
			vs.Layer = int32(remap[vs.Layer])
		}
		slots[k] = vs
	}
	rename := func(t *uint16) {
		if int(*t) < n && remap[*t] >= 0 {
			*t = uint16(remap[*t])
		}
	}
	for i := range w.TexMRU {
		rename(&w.TexMRU[i])
	}
	walkTextures(w.Root, rename)
	w.VSlots = slots
	return len(slots)
}

// BaseSlots maps every slot index to the texture slot it varies. Roots are
// numbered in order and each changed slot takes the number of the root
// whose chain holds it. Slots on no chain map to -1.
func (w *World) BaseSlots() []int {
	n := len(w.VSlots)
	base := make([]int, n)
	for i := range base {
		base[i] = -1
	}
	slot := 0
	for i, vs := range w.VSlots {
		if vs.Changed != 0 {
			continue
		}
		base[i] = slot
		cur := vs.Next
		for steps := 0; cur >= 0 && cur < n && steps < n; steps++ {
			if base[cur] < 0 {
				base[cur] = slot
			}
			cur = w.VSlots[cur].Next
		}
		slot++
	}
	return base
}
