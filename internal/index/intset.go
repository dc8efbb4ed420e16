// Package index provides per-segment secondary indexes with an adaptive
// control loop that builds and drops them based on observed query workload.
package index

import (
	"sort"

	"github.com/RoaringBitmap/roaring"
)

// IntSet is a set of segment-local row positions. Two interchangeable forms
// are provided: a compressed-bitmap form for dense results and an array form
// for sparse results.
type IntSet interface {
	Add(v int)
	Contains(v int) bool
	Size() int
	Empty() bool
	Union(other IntSet)
	// ForEach visits positions in ascending order until fn returns false.
	ForEach(fn func(v int) bool)
	// Positions returns all positions in ascending order.
	Positions() []int
}

// RoaringSet is the bitmap-backed IntSet, efficient for dense results.
type RoaringSet struct {
	bm *roaring.Bitmap
}

// NewRoaringSet creates an empty bitmap-backed set.
func NewRoaringSet() *RoaringSet {
	return &RoaringSet{bm: roaring.New()}
}

// FromBitmap wraps an existing roaring bitmap. The caller must not mutate the
// bitmap afterwards.
func FromBitmap(bm *roaring.Bitmap) *RoaringSet {
	return &RoaringSet{bm: bm}
}

func (s *RoaringSet) Add(v int) {
	s.bm.Add(uint32(v))
}

func (s *RoaringSet) Contains(v int) bool {
	return v >= 0 && s.bm.Contains(uint32(v))
}

func (s *RoaringSet) Size() int {
	return int(s.bm.GetCardinality())
}

func (s *RoaringSet) Empty() bool {
	return s.bm.IsEmpty()
}

// Union merges another set into this one, with a fast path for the bitmap
// form.
func (s *RoaringSet) Union(other IntSet) {
	if rs, ok := other.(*RoaringSet); ok {
		s.bm.Or(rs.bm)
		return
	}
	other.ForEach(func(v int) bool {
		s.bm.Add(uint32(v))
		return true
	})
}

func (s *RoaringSet) ForEach(fn func(v int) bool) {
	it := s.bm.Iterator()
	for it.HasNext() {
		if !fn(int(it.Next())) {
			return
		}
	}
}

func (s *RoaringSet) Positions() []int {
	out := make([]int, 0, s.Size())
	s.ForEach(func(v int) bool {
		out = append(out, v)
		return true
	})
	return out
}

// ArraySet is the slice-backed IntSet, efficient for sparse results.
type ArraySet struct {
	values []int
	sorted bool
}

// NewArraySet creates an empty array-backed set.
func NewArraySet() *ArraySet {
	return &ArraySet{sorted: true}
}

func (s *ArraySet) Add(v int) {
	if s.Contains(v) {
		return
	}
	if len(s.values) > 0 && v < s.values[len(s.values)-1] {
		s.sorted = false
	}
	s.values = append(s.values, v)
}

func (s *ArraySet) Contains(v int) bool {
	for _, x := range s.values {
		if x == v {
			return true
		}
	}
	return false
}

func (s *ArraySet) Size() int {
	return len(s.values)
}

func (s *ArraySet) Empty() bool {
	return len(s.values) == 0
}

func (s *ArraySet) Union(other IntSet) {
	other.ForEach(func(v int) bool {
		s.Add(v)
		return true
	})
}

func (s *ArraySet) ForEach(fn func(v int) bool) {
	s.ensureSorted()
	for _, v := range s.values {
		if !fn(v) {
			return
		}
	}
}

func (s *ArraySet) Positions() []int {
	s.ensureSorted()
	out := make([]int, len(s.values))
	copy(out, s.values)
	return out
}

func (s *ArraySet) ensureSorted() {
	if !s.sorted {
		sort.Ints(s.values)
		s.sorted = true
	}
}

// EmptySet returns an immutable-by-convention empty result set.
func EmptySet() IntSet {
	return NewArraySet()
}
