package ogz

import (
	stdmath "math"

	"github.com/Faultbox/cubemap/pkg/math"
)

// Material bits. The low bits select a volume, then clip behaviour, then
// flags.
const (
	MatAir = 0

	matVolumeShift = 2
	matClipShift   = 5
	matFlagShift   = 8

	MatWater    = 1 << matVolumeShift
	MatLava     = 2 << matVolumeShift
	MatGlass    = 3 << matVolumeShift
	MatNoClip   = 1 << matClipShift
	MatClip     = 2 << matClipShift
	MatGameClip = 3 << matClipShift
	MatDeath    = 1 << matFlagShift
	MatAlpha    = 4 << matFlagShift
)

// oldMaterials maps the material byte of maps before version 27.
var oldMaterials = [...]uint16{
	MatAir,
	MatWater,
	MatClip,
	MatGlass | MatClip,
	MatNoClip,
	MatLava | MatDeath,
	MatGameClip,
	MatDeath,
}

// ConvertOldMaterial unpacks the single-byte material encoding used from
// version 27 up to 32.
func ConvertOldMaterial(m int) uint16 {
	return uint16((m&7)<<matVolumeShift | ((m>>3)&3)<<matClipShift | ((m>>5)&7)<<matFlagShift)
}

func legacyMaterial(m int, version int) uint16 {
	if version < 27 {
		if m < len(oldMaterials) {
			return oldMaterials[m]
		}
		return MatAir
	}
	return ConvertOldMaterial(m)
}

// EncodeNormal packs a unit vector as (pitch+90)*360 + yaw + 1 in whole
// degrees. The zero vector encodes as 0.
func EncodeNormal(n math.Vec3) uint16 {
	if n.IsZero() {
		return 0
	}
	const rad = float32(stdmath.Pi / 180)
	yaw := int(float32(-stdmath.Atan2(float64(n.X), float64(n.Y))) / rad)
	pitch := int(float32(stdmath.Asin(float64(n.Z))) / rad)
	pitch = max(0, min(180, pitch+90))
	if yaw < 0 {
		yaw = yaw%360 + 360
	} else {
		yaw %= 360
	}
	return uint16(pitch*360 + yaw + 1)
}

// DecodeNormal is the inverse of EncodeNormal, up to the one degree
// quantization.
func DecodeNormal(norm uint16) math.Vec3 {
	if norm == 0 {
		return math.Vec3{}
	}
	n := int(norm) - 1
	yaw := float64(n%360) * stdmath.Pi / 180
	pitch := float64(n/360-90) * stdmath.Pi / 180
	cp := stdmath.Cos(pitch)
	return math.Vec3{
		X: float32(-stdmath.Sin(yaw) * cp),
		Y: float32(stdmath.Cos(yaw) * cp),
		Z: float32(stdmath.Sin(pitch)),
	}
}

// byteNormal converts a legacy byte-packed normal to a unit vector.
func byteNormal(b [3]uint8) math.Vec3 {
	const k = float32(2.0 / 255.0)
	return math.Vec3{
		X: float32(b[0])*k - 1,
		Y: float32(b[1])*k - 1,
		Z: float32(b[2])*k - 1,
	}.Normalize()
}
