package worldio

import "github.com/Faultbox/cubemap/pkg/ogz"

// DefaultVars declares the engine variables a map may carry, with the
// ranges and defaults the engine uses.
func DefaultVars() *ogz.VarTable {
	t := ogz.NewVarTable()

	t.DefineInt("mapversion", ogz.VarReadOnly, 1, ogz.MapVersion, ogz.MapVersion)
	t.DefineInt("mapsize", ogz.VarReadOnly, 1, 1<<10, 1<<16)
	t.DefineInt("mapscale", ogz.VarReadOnly, 0, 10, 16)

	// Lighting
	t.DefineInt("lightprecision", ogz.VarOverride, 1, 32, 1024)
	t.DefineInt("lighterror", ogz.VarOverride, 1, 8, 16)
	t.DefineInt("bumperror", ogz.VarOverride, 1, 3, 16)
	t.DefineInt("lightlod", ogz.VarOverride, 0, 0, 10)
	t.DefineInt("ambient", ogz.VarOverride, 1, 0x191919, 0xFFFFFF)
	t.DefineInt("skylight", ogz.VarOverride, 0, 0, 0xFFFFFF)
	t.DefineInt("fullbright", 0, 0, 0, 1)
	t.DefineInt("lerpangle", ogz.VarOverride, 0, 44, 180)
	t.DefineInt("lerpsubdiv", ogz.VarOverride, 0, 2, 4)
	t.DefineInt("lerpsubdivsize", ogz.VarOverride, 4, 4, 128)
	t.DefineFloat("shadowmapintensity", ogz.VarOverride, 0, 0.4, 1)

	// Materials
	t.DefineInt("watercolour", ogz.VarOverride, 0, 0x144650, 0xFFFFFF)
	t.DefineInt("waterfallcolour", ogz.VarOverride, 0, 0, 0xFFFFFF)
	t.DefineInt("lavacolour", ogz.VarOverride, 0, 0xFF4000, 0xFFFFFF)

	// Environment
	t.DefineInt("fog", ogz.VarOverride, 16, 4000, 1000024)
	t.DefineInt("fogcolour", ogz.VarOverride, 0, 0x8099B3, 0xFFFFFF)
	t.DefineString("skybox", ogz.VarOverride, "")
	t.DefineString("cloudlayer", ogz.VarOverride, "")
	t.DefineString("maptitle", ogz.VarOverride, "Untitled Map by Unknown")

	return t
}
