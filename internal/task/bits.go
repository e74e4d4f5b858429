package task

import "math/bits"

// Set is a fixed-width membership set. Value v is a member when bit v-1 is set.
type Set uint32

const (
	monthWidth   = 12
	dayWidth     = 31
	weekdayWidth = 7
)

// SetOf builds a set from values; values outside 1..32 are ignored.
func SetOf(values ...int) Set {
	var s Set
	for _, v := range values {
		s = s.With(v)
	}
	return s
}

// Has reports whether v is a member.
func (s Set) Has(v int) bool {
	if v < 1 || v > 32 {
		return false
	}
	return s&(1<<(v-1)) != 0
}

func (s Set) With(v int) Set {
	if v < 1 || v > 32 {
		return s
	}
	return s | 1<<(v-1)
}

func (s Set) Without(v int) Set {
	if v < 1 || v > 32 {
		return s
	}
	return s &^ (1 << (v - 1))
}

// Len returns the number of members.
func (s Set) Len() int { return bits.OnesCount32(uint32(s)) }

// Values lists members in ascending order, considering only the first width bits.
func (s Set) Values(width int) []int {
	out := make([]int, 0, s.Len())
	for v := 1; v <= width && v <= 32; v++ {
		if s.Has(v) {
			out = append(out, v)
		}
	}
	return out
}

// fits reports whether every member lies within 1..width.
func (s Set) fits(width int) bool {
	if width >= 32 {
		return true
	}
	return s>>width == 0
}
