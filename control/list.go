package control

import "sort"

// Point is a single automation value.
type Point struct {
	Frame int64   `yaml:"frame"`
	Value float64 `yaml:"value"`
}

// List is a sorted sequence of automation points. Values between points
// are linearly interpolated.
type List struct {
	points []Point
}

// Add inserts a point. A point at the same frame is replaced.
func (l *List) Add(frame int64, value float64) {
	i := l.search(frame)
	if i < len(l.points) && l.points[i].Frame == frame {
		l.points[i].Value = value
		return
	}
	l.points = append(l.points, Point{})
	copy(l.points[i+1:], l.points[i:])
	l.points[i] = Point{Frame: frame, Value: value}
}

// Remove deletes points in range [from, to).
func (l *List) Remove(from, to int64) {
	i, j := l.search(from), l.search(to)
	l.points = append(l.points[:i], l.points[j:]...)
}

// Clear deletes all points.
func (l *List) Clear() {
	l.points = l.points[:0]
}

// Len returns number of points.
func (l *List) Len() int {
	return len(l.points)
}

// Points returns a copy of the points.
func (l *List) Points() []Point {
	return append([]Point(nil), l.points...)
}

// SetPoints replaces all points.
func (l *List) SetPoints(points []Point) {
	l.points = append(l.points[:0], points...)
	sort.Slice(l.points, func(i, j int) bool {
		return l.points[i].Frame < l.points[j].Frame
	})
}

// Eval returns the value at frame. Before the first point it's the first
// value, after the last point it's the last value.
func (l *List) Eval(frame int64) float64 {
	n := len(l.points)
	if n == 0 {
		return 0
	}
	i := l.search(frame)
	switch {
	case i == n:
		return l.points[n-1].Value
	case l.points[i].Frame == frame || i == 0:
		return l.points[i].Value
	}
	p0, p1 := l.points[i-1], l.points[i]
	t := float64(frame-p0.Frame) / float64(p1.Frame-p0.Frame)
	return p0.Value + (p1.Value-p0.Value)*t
}

// search returns index of the first point at or after frame.
func (l *List) search(frame int64) int {
	return sort.Search(len(l.points), func(i int) bool {
		return l.points[i].Frame >= frame
	})
}
