// Package ring provides SlidingArray, a fixed-capacity ring buffer addressed
// by a signed logical index whose anchor can slide freely without bound.
//
// SlidingArray backs the line-address cache in internal/lineiter: as a
// stream is iterated forward or backward, the window of known line starts
// slides with it while older entries on the trailing side are silently
// dropped once capacity is exceeded.
package ring

import "math/bits"

// SlidingArray is a ring buffer of int64 values indexed by a signed logical
// position. The logical extents [min, lim) track which positions currently
// hold a value; positions outside the extents read as absent.
//
// The zero value is not usable; construct with [New].
type SlidingArray struct {
	buf  []int64
	set  []bool
	mask int

	// pos is the anchor offset: logical position i is stored at
	// (i - pos) mod capacity.
	pos int

	// min and lim are the logical extents: valid positions are
	// [min, lim). lim - min <= capacity always holds.
	//
	// pos is re-derived (mod capacity) on every Slide, so min/lim never
	// need a separate drift-correction pass: there is no unbounded counter
	// here to rebase.
	min, lim int64
}

// New creates a SlidingArray with at least the given capacity, rounded up to
// the next power of two. Capacity must be positive.
func New(capacity int) *SlidingArray {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}

	cap := nextPowerOfTwo(capacity)

	return &SlidingArray{
		buf:  make([]int64, cap),
		set:  make([]bool, cap),
		mask: cap - 1,
	}
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}

	return 1 << bits.Len(uint(n-1))
}

// Cap returns the buffer's capacity (a power of two).
func (s *SlidingArray) Cap() int {
	return len(s.buf)
}

// Len returns the number of logical positions currently in range, i.e. lim - min.
func (s *SlidingArray) Len() int {
	return int(s.lim - s.min)
}

// Min returns the smallest in-range logical position. Valid only when Len() > 0.
func (s *SlidingArray) Min() int64 {
	return s.min
}

// Max returns the largest in-range logical position (inclusive). Valid only
// when Len() > 0.
func (s *SlidingArray) Max() int64 {
	return s.lim - 1
}

func (s *SlidingArray) storageIndex(i int64) int {
	delta := i - int64(s.pos)

	return int((delta&int64(s.mask) + int64(len(s.buf))) & int64(s.mask))
}

// Get returns the value at logical index i and whether it is present.
func (s *SlidingArray) Get(i int64) (int64, bool) {
	if i < s.min || i >= s.lim {
		return 0, false
	}

	idx := s.storageIndex(i)
	if !s.set[idx] {
		return 0, false
	}

	return s.buf[idx], true
}

// GetMany returns the values at the given logical indices, in order. An
// absent position reads as 0; use [SlidingArray.Get] to tell absence apart.
func (s *SlidingArray) GetMany(idx ...int64) []int64 {
	out := make([]int64, len(idx))

	for k, i := range idx {
		v, ok := s.Get(i)
		if ok {
			out[k] = v
		}
	}

	return out
}

// Put writes len(values) adjacent values starting at logical index i,
// extending min or lim as needed. If the extension would exceed capacity,
// elements on the opposite end are dropped. Positions inside the extended
// range that aren't covered by values are cleared (marked absent).
//
// Put panics if len(values) exceeds the buffer's capacity.
func (s *SlidingArray) Put(i int64, values ...int64) {
	k := len(values)
	if k == 0 {
		return
	}

	if k > len(s.buf) {
		panic("ring: put count exceeds capacity")
	}

	end := i + int64(k) // exclusive

	if s.Len() == 0 {
		s.pos = 0
		s.min, s.lim = i, i
	}

	if i < s.min {
		s.extendMin(i)
	}

	if end > s.lim {
		s.extendLim(end)
	}

	for off := 0; off < k; off++ {
		idx := s.storageIndex(i + int64(off))
		s.buf[idx] = values[off]
		s.set[idx] = true
	}
}

// extendMin grows the window downward to include newMin, dropping entries
// off the top (lim side) if capacity would otherwise be exceeded.
func (s *SlidingArray) extendMin(newMin int64) {
	s.min = newMin

	if s.lim-s.min > int64(len(s.buf)) {
		newLim := s.min + int64(len(s.buf))
		s.clearRange(newLim, s.lim)
		s.lim = newLim
	}
}

// extendLim grows the window upward to include newLim (exclusive), dropping
// entries off the bottom (min side) if capacity would otherwise be exceeded.
func (s *SlidingArray) extendLim(newLim int64) {
	s.lim = newLim

	if s.lim-s.min > int64(len(s.buf)) {
		newMin := s.lim - int64(len(s.buf))
		s.clearRange(s.min, newMin)
		s.min = newMin
	}
}

func (s *SlidingArray) clearRange(from, to int64) {
	for i := from; i < to; i++ {
		s.set[s.storageIndex(i)] = false
	}
}

// Clear clears a range of logical positions starting at i. If n is omitted
// (zero), a single position is cleared. Clearing shrinks the extents only
// when the cleared range touches min or lim.
func (s *SlidingArray) Clear(i int64, n ...int64) {
	count := int64(1)
	if len(n) > 0 {
		count = n[0]
	}

	if count <= 0 {
		return
	}

	from, to := i, i+count
	if from < s.min {
		from = s.min
	}

	if to > s.lim {
		to = s.lim
	}

	if from >= to {
		return
	}

	s.clearRange(from, to)

	if from <= s.min && to >= s.lim {
		s.min, s.lim = 0, 0
		s.pos = 0

		return
	}

	if from <= s.min {
		s.min = to
	}

	if to >= s.lim {
		s.lim = from
	}
}

// Slide re-anchors the array by delta: the value previously addressed as
// logical index i is now addressed as i-delta. Content is preserved across
// the shift (this is a relabeling, not a write); the window width is
// unchanged, so it can never itself exceed capacity. An empty ring is
// normalized to anchor-at-origin.
func (s *SlidingArray) Slide(delta int64) {
	if s.Len() == 0 {
		s.pos = 0
		s.min, s.lim = 0, 0

		return
	}

	s.pos = ((s.pos-int(delta))%len(s.buf) + len(s.buf)) % len(s.buf)
	s.min -= delta
	s.lim -= delta
}
