// Package math provides the vector types used by octree geometry.
package math

// IVec is an integer 3D vector. Octree corner positions, face normals and
// cube origins are all kept in integer space so that plane reconstruction
// is exact.
type IVec struct {
	X, Y, Z int
}

// Child returns the origin of child i of a cube at origin o whose children
// have the given size. Bit 0 of i selects +X, bit 1 +Y, bit 2 +Z.
func Child(i int, o IVec, size int) IVec {
	return IVec{
		X: o.X + (i&1)*size,
		Y: o.Y + ((i>>1)&1)*size,
		Z: o.Z + ((i>>2)&1)*size,
	}
}

// Get returns the component for dimension d (0=X, 1=Y, 2=Z).
func (v IVec) Get(d int) int {
	switch d {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// Set returns v with dimension d replaced by val.
func (v IVec) Set(d, val int) IVec {
	switch d {
	case 0:
		v.X = val
	case 1:
		v.Y = val
	default:
		v.Z = val
	}
	return v
}

// Add returns v + o.
func (v IVec) Add(o IVec) IVec {
	return IVec{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v IVec) Sub(o IVec) IVec {
	return IVec{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Mul returns v scaled by k.
func (v IVec) Mul(k int) IVec {
	return IVec{v.X * k, v.Y * k, v.Z * k}
}

// Mask returns v with every component ANDed with m.
func (v IVec) Mask(m int) IVec {
	return IVec{v.X & m, v.Y & m, v.Z & m}
}

// Shl returns v with every component shifted left by n bits.
func (v IVec) Shl(n uint) IVec {
	return IVec{v.X << n, v.Y << n, v.Z << n}
}

// Dot returns the dot product.
func (v IVec) Dot(o IVec) int {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Cross returns the cross product v × o.
func (v IVec) Cross(o IVec) IVec {
	return IVec{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// IsZero reports whether all components are zero.
func (v IVec) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Vec3 converts v to a float vector.
func (v IVec) Vec3() Vec3 {
	return Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}
