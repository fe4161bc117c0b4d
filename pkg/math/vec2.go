package math

// Vec2 is a 2D vector, used for texture coordinates.
type Vec2 struct {
	X, Y float32
}

// Add returns v + other.
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{v.X + other.X, v.Y + other.Y}
}

// Scale returns v * scalar.
func (v Vec2) Scale(s float32) Vec2 {
	return Vec2{v.X * s, v.Y * s}
}

// Div divides component-wise by d. Zero components of d leave the matching
// component of v unchanged.
func (v Vec2) Div(d Vec2) Vec2 {
	if d.X != 0 {
		v.X /= d.X
	}
	if d.Y != 0 {
		v.Y /= d.Y
	}
	return v
}

// Swap exchanges X and Y.
func (v Vec2) Swap() Vec2 {
	return Vec2{v.Y, v.X}
}
