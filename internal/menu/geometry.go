package menu

// Point is a position in viewport coordinates.
type Point struct {
	X, Y float64
}

// Size is a rendered box size.
type Size struct {
	W, H float64
}

// Rect is an axis-aligned rectangle, origin at the top-left.
type Rect struct {
	X, Y, W, H float64
}

// clamp positions a box of the given size at anchor, then pulls it back so
// the whole box stays inside bounds inset by padding on all sides. When the
// box is larger than the padded area it pins to the top-left inset corner.
func clamp(anchor Point, size Size, bounds Rect, padding float64) Point {
	minX := bounds.X + padding
	minY := bounds.Y + padding
	maxX := bounds.X + bounds.W - padding - size.W
	maxY := bounds.Y + bounds.H - padding - size.H

	x := anchor.X
	if x > maxX {
		x = maxX
	}
	if x < minX {
		x = minX
	}

	y := anchor.Y
	if y > maxY {
		y = maxY
	}
	if y < minY {
		y = minY
	}

	return Point{X: x, Y: y}
}
