package model

import "math"

// Point is a 2-D location in metres.
type Point struct {
	X, Y float64
}

// Sub returns p - o.
func (p Point) Sub(o Point) Point {
	return Point{X: p.X - o.X, Y: p.Y - o.Y}
}

// Add returns p + o.
func (p Point) Add(o Point) Point {
	return Point{X: p.X + o.X, Y: p.Y + o.Y}
}

// Scale returns p scaled by s.
func (p Point) Scale(s float64) Point {
	return Point{X: p.X * s, Y: p.Y * s}
}

// Length returns the Euclidean norm of p treated as a vector.
func (p Point) Length() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y)
}

// Normalized returns p scaled to unit length, or the zero vector if p is zero.
func (p Point) Normalized() Point {
	l := p.Length()
	if l == 0 {
		return Point{}
	}
	return Point{X: p.X / l, Y: p.Y / l}
}

// DistanceSquared returns the squared Euclidean distance between p and o.
func (p Point) DistanceSquared(o Point) float64 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	return dx*dx + dy*dy
}

// Distance returns the Euclidean distance between p and o.
func (p Point) Distance(o Point) float64 {
	return math.Sqrt(p.DistanceSquared(o))
}

// PointOnCircle returns the point at the given radians around centre at the given radius.
func PointOnCircle(centre Point, radius, radians float64) Point {
	return Point{
		X: centre.X + radius*math.Cos(radians),
		Y: centre.Y + radius*math.Sin(radians),
	}
}

// Rect is an axis-aligned rectangle in metres.
type Rect struct {
	Left, Right, Bottom, Top float64
}

// Width returns Right - Left.
func (r Rect) Width() float64 { return r.Right - r.Left }

// Height returns Top - Bottom.
func (r Rect) Height() float64 { return r.Top - r.Bottom }

// Centroid returns the geometric centre of the rectangle.
func (r Rect) Centroid() Point {
	return Point{
		X: (r.Left + r.Right) / 2,
		Y: (r.Bottom + r.Top) / 2,
	}
}

// Lerp returns the point inside r at normalized coordinates (u, v) in [0,1]^2.
func (r Rect) Lerp(u, v float64) Point {
	return Point{
		X: r.Left + r.Width()*u,
		Y: r.Bottom + r.Height()*v,
	}
}

// Contains reports whether p lies within r (inclusive).
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X <= r.Right && p.Y >= r.Bottom && p.Y <= r.Top
}

// BoundingRect computes the smallest rect enclosing the given points.
// Returns the zero Rect if points is empty.
func BoundingRect(points []Point) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	r := Rect{Left: points[0].X, Right: points[0].X, Bottom: points[0].Y, Top: points[0].Y}
	for _, p := range points[1:] {
		r.Left = math.Min(r.Left, p.X)
		r.Right = math.Max(r.Right, p.X)
		r.Bottom = math.Min(r.Bottom, p.Y)
		r.Top = math.Max(r.Top, p.Y)
	}
	return r
}

// Range is an inclusive [Min, Max] float64 range.
type Range struct {
	Min, Max float64
}

// Contains reports whether v falls within [Min, Max].
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Lerp returns the value at normalized position t in [0,1] within the range.
func (r Range) Lerp(t float64) float64 {
	return r.Min + (r.Max-r.Min)*t
}

// IntRange is an inclusive [Min, Max] integer range.
type IntRange struct {
	Min, Max int
}

// Contains reports whether v falls within [Min, Max].
func (r IntRange) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}
