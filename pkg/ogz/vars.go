package ogz

import (
	"fmt"
	"math"
	"sort"

	"github.com/Faultbox/cubemap/pkg/encoding"
)

// VarType is the on-disk type code of a map variable.
type VarType uint8

const (
	VarInt    VarType = 0
	VarFloat  VarType = 1
	VarString VarType = 2
)

func (t VarType) String() string {
	switch t {
	case VarInt:
		return "int"
	case VarFloat:
		return "float"
	case VarString:
		return "string"
	default:
		return fmt.Sprintf("vartype(%d)", uint8(t))
	}
}

// VarFlags describe how a variable may travel with a map.
type VarFlags uint8

const (
	// VarOverride marks a variable a map is allowed to set.
	VarOverride VarFlags = 1 << iota
	// VarReadOnly variables are never saved.
	VarReadOnly
)

// Var is a typed variable value.
type Var struct {
	Name  string
	Type  VarType
	Int   int32
	Float float32
	Str   string
}

func (v Var) String() string {
	switch v.Type {
	case VarInt:
		return fmt.Sprintf("%s = %d", v.Name, v.Int)
	case VarFloat:
		return fmt.Sprintf("%s = %g", v.Name, v.Float)
	default:
		return fmt.Sprintf("%s = %q", v.Name, v.Str)
	}
}

// VarSpec declares a variable and its permitted range.
type VarSpec struct {
	Name     string
	Type     VarType
	Flags    VarFlags
	MinInt   int32
	MaxInt   int32
	MinFloat float32
	MaxFloat float32
}

func (s VarSpec) inRange(v Var) bool {
	switch s.Type {
	case VarInt:
		return v.Int >= s.MinInt && v.Int <= s.MaxInt
	case VarFloat:
		return v.Float >= s.MinFloat && v.Float <= s.MaxFloat
	default:
		return true
	}
}

func (s VarSpec) clamp(v Var) Var {
	switch s.Type {
	case VarInt:
		v.Int = max(s.MinInt, min(s.MaxInt, v.Int))
	case VarFloat:
		v.Float = max(s.MinFloat, min(s.MaxFloat, v.Float))
	}
	return v
}

// VarRegistry resolves named variables during load and enumerates the ones
// a save must carry.
type VarRegistry interface {
	// Spec returns the declaration of name.
	Spec(name string) (VarSpec, bool)
	// Set assigns a value and marks the variable overridden.
	Set(v Var)
	// Saved returns every overridable, writable, overridden variable in a
	// stable order.
	Saved() []Var
}

type varEntry struct {
	spec       VarSpec
	value      Var
	def        Var
	overridden bool
}

// VarTable is an in-memory VarRegistry.
type VarTable struct {
	vars map[string]*varEntry
}

// NewVarTable returns an empty table.
func NewVarTable() *VarTable {
	return &VarTable{vars: make(map[string]*varEntry)}
}

// Define declares a variable with a default value.
func (t *VarTable) Define(spec VarSpec, def Var) {
	def.Name, def.Type = spec.Name, spec.Type
	t.vars[spec.Name] = &varEntry{spec: spec, value: def, def: def}
}

// DefineInt declares an integer variable.
func (t *VarTable) DefineInt(name string, flags VarFlags, lo, def, hi int32) {
	t.Define(VarSpec{Name: name, Type: VarInt, Flags: flags, MinInt: lo, MaxInt: hi}, Var{Int: def})
}

// DefineFloat declares a float variable.
func (t *VarTable) DefineFloat(name string, flags VarFlags, lo, def, hi float32) {
	t.Define(VarSpec{Name: name, Type: VarFloat, Flags: flags, MinFloat: lo, MaxFloat: hi}, Var{Float: def})
}

// DefineString declares a string variable.
func (t *VarTable) DefineString(name string, flags VarFlags, def string) {
	t.Define(VarSpec{Name: name, Type: VarString, Flags: flags}, Var{Str: def})
}

// Spec implements VarRegistry.
func (t *VarTable) Spec(name string) (VarSpec, bool) {
	e, ok := t.vars[name]
	if !ok {
		return VarSpec{}, false
	}
	return e.spec, true
}

// Set implements VarRegistry. Values of the wrong type are ignored.
func (t *VarTable) Set(v Var) {
	e, ok := t.vars[v.Name]
	if !ok || e.spec.Type != v.Type {
		return
	}
	e.value = v
	e.overridden = true
}

// Get returns the current value of name.
func (t *VarTable) Get(name string) (Var, bool) {
	e, ok := t.vars[name]
	if !ok {
		return Var{}, false
	}
	return e.value, true
}

// Reset restores every variable to its default and clears the overridden
// marks.
func (t *VarTable) Reset() {
	for _, e := range t.vars {
		e.value = e.def
		e.overridden = false
	}
}

// Saved implements VarRegistry. Variables are returned sorted by name.
func (t *VarTable) Saved() []Var {
	var out []Var
	for _, e := range t.vars {
		if e.spec.Flags&VarOverride == 0 || e.spec.Flags&VarReadOnly != 0 || !e.overridden {
			continue
		}
		out = append(out, e.value)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// readVar reads one variable record.
func readVar(r *Reader) (Var, error) {
	v := Var{Type: VarType(r.U8())}
	v.Name = string(r.Bytes(int(r.U16())))
	switch v.Type {
	case VarInt:
		v.Int = r.I32()
	case VarFloat:
		v.Float = r.F32()
	case VarString:
		v.Str = encoding.Latin1ToUTF8(r.Bytes(int(r.U16())))
	default:
		if r.Err() == nil {
			return v, &FormatError{Op: "vars", Err: fmt.Errorf("%w: %d for %q", ErrUnknownVarType, uint8(v.Type), v.Name)}
		}
	}
	if err := r.Err(); err != nil {
		return v, &FormatError{Op: "vars", Err: err}
	}
	return v, nil
}

// applyVar assigns v if the registry declares a map-overridable variable of
// the same name and type and v lies within its range. It reports whether
// the value was applied.
func applyVar(reg VarRegistry, v Var) bool {
	if reg == nil {
		return false
	}
	spec, ok := reg.Spec(v.Name)
	if !ok || spec.Type != v.Type || spec.Flags&VarOverride == 0 || !spec.inRange(v) {
		return false
	}
	reg.Set(v)
	return true
}

// forceVar assigns v, clamped to its range, whenever the registry declares
// it with the same type. Used for values derived from the header itself.
func forceVar(reg VarRegistry, v Var) {
	if reg == nil {
		return
	}
	spec, ok := reg.Spec(v.Name)
	if !ok || spec.Type != v.Type {
		return
	}
	reg.Set(spec.clamp(v))
}

func writeVar(w *Writer, v Var) {
	w.PutU8(uint8(v.Type))
	w.PutU16(uint16(len(v.Name)))
	w.PutString(v.Name)
	switch v.Type {
	case VarInt:
		w.PutI32(v.Int)
	case VarFloat:
		w.PutF32(v.Float)
	case VarString:
		s := encoding.UTF8ToLatin1(v.Str)
		if len(s) > math.MaxUint16 {
			s = s[:math.MaxUint16]
		}
		w.PutU16(uint16(len(s)))
		w.PutBytes(s)
	}
}
