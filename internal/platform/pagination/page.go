// Package pagination normalizes page sizes for list endpoints.
package pagination

// Limits bounds a requested page size.
type Limits struct {
	Default int
	Max     int
}

// Clamp applies the default to non-positive sizes and caps the rest at Max.
// The result is never below one.
func (l Limits) Clamp(size int) int {
	if size <= 0 {
		size = l.Default
	}
	if l.Max > 0 && size > l.Max {
		size = l.Max
	}
	if size <= 0 {
		size = 1
	}
	return size
}
