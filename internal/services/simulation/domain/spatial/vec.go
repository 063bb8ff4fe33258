// Package spatial holds the integer-only vector type shared by every entity
// variant. spec.md §3 requires all spatial quantities to be integers so no
// floating-point arithmetic ever participates in a state transition.
package spatial

// IVec2 is a 2D integer vector used for position, size, and velocity.
type IVec2 struct {
	X int32
	Y int32
}

func (v IVec2) Add(o IVec2) IVec2 {
	return IVec2{X: v.X + o.X, Y: v.Y + o.Y}
}

func (v IVec2) Sub(o IVec2) IVec2 {
	return IVec2{X: v.X - o.X, Y: v.Y - o.Y}
}

func (v IVec2) Scale(n int32) IVec2 {
	return IVec2{X: v.X * n, Y: v.Y * n}
}

func (v IVec2) IsZero() bool {
	return v.X == 0 && v.Y == 0
}

// Intersects reports whether two axis-aligned boxes (position is the
// top-left corner, size is width/height) overlap.
func Intersects(posA, sizeA, posB, sizeB IVec2) bool {
	if posA.X >= posB.X+sizeB.X || posB.X >= posA.X+sizeA.X {
		return false
	}
	if posA.Y >= posB.Y+sizeB.Y || posB.Y >= posA.Y+sizeA.Y {
		return false
	}
	return true
}
