// Package entity stores dynamically discovered parser entities in typed
// arenas addressed by generational handles, with separate ordered indexes
// for keyed access. A freed slot bumps its generation, so a stale handle
// fails lookups instead of aliasing a newer entity.
package entity

import (
	"cmp"
	"iter"
	"slices"
)

// Handle addresses one entity in an Arena.
type Handle struct {
	idx uint32
	gen uint32
}

// Nil is the zero handle; it never resolves.
var Nil Handle

// IsNil reports whether h is the zero handle.
func (h Handle) IsNil() bool {
	return h.gen == 0
}

type slot[T any] struct {
	val *T
	gen uint32
}

// Arena holds entities of one kind. Entities are heap allocated, so a
// pointer obtained from Get stays valid across later Allocs.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	n     int
}

// Alloc stores v and returns its handle.
func (a *Arena[T]) Alloc(v T) Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, slot[T]{})
	}
	s := &a.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.val = &v
	a.n++
	return Handle{idx: idx, gen: s.gen}
}

// Get resolves h.
func (a *Arena[T]) Get(h Handle) (*T, bool) {
	if h.IsNil() || int(h.idx) >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[h.idx]
	if s.val == nil || s.gen != h.gen {
		return nil, false
	}
	return s.val, true
}

// Free releases h. It reports false for stale or nil handles.
func (a *Arena[T]) Free(h Handle) bool {
	if _, ok := a.Get(h); !ok {
		return false
	}
	s := &a.slots[h.idx]
	s.val = nil
	s.gen++
	a.free = append(a.free, h.idx)
	a.n--
	return true
}

// Len returns the number of live entities.
func (a *Arena[T]) Len() int {
	return a.n
}

// Reset drops every entity. Handles issued before Reset never resolve again.
func (a *Arena[T]) Reset() {
	for i := range a.slots {
		if a.slots[i].val != nil {
			a.Free(Handle{idx: uint32(i), gen: a.slots[i].gen})
		}
	}
}

type entry[K cmp.Ordered] struct {
	key K
	h   Handle
}

// Index is a list of handles kept sorted by a unique key.
type Index[K cmp.Ordered] struct {
	entries []entry[K]
}

func (x *Index[K]) search(k K) (int, bool) {
	return slices.BinarySearchFunc(x.entries, k, func(e entry[K], k K) int {
		return cmp.Compare(e.key, k)
	})
}

// Insert adds h under k in key order. When k is already present the
// existing handle is returned with inserted false and nothing changes.
func (x *Index[K]) Insert(k K, h Handle) (Handle, bool) {
	i, found := x.search(k)
	if found {
		return x.entries[i].h, false
	}
	x.entries = slices.Insert(x.entries, i, entry[K]{key: k, h: h})
	return h, true
}

// Find returns the handle stored under k.
func (x *Index[K]) Find(k K) (Handle, bool) {
	i, found := x.search(k)
	if !found {
		return Nil, false
	}
	return x.entries[i].h, true
}

// Remove deletes k and returns the handle it held.
func (x *Index[K]) Remove(k K) (Handle, bool) {
	i, found := x.search(k)
	if !found {
		return Nil, false
	}
	h := x.entries[i].h
	x.entries = slices.Delete(x.entries, i, i+1)
	return h, true
}

// Head returns the entry with the smallest key.
func (x *Index[K]) Head() (K, Handle, bool) {
	if len(x.entries) == 0 {
		var zero K
		return zero, Nil, false
	}
	e := x.entries[0]
	return e.key, e.h, true
}

// Tail returns the entry with the largest key.
func (x *Index[K]) Tail() (K, Handle, bool) {
	if len(x.entries) == 0 {
		var zero K
		return zero, Nil, false
	}
	e := x.entries[len(x.entries)-1]
	return e.key, e.h, true
}

// Len returns the number of keys.
func (x *Index[K]) Len() int {
	return len(x.entries)
}

// Keys iterates keys in ascending order.
func (x *Index[K]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for _, e := range x.entries {
			if !yield(e.key) {
				return
			}
		}
	}
}

// All iterates (key, handle) pairs in ascending key order.
func (x *Index[K]) All() iter.Seq2[K, Handle] {
	return func(yield func(K, Handle) bool) {
		for _, e := range x.entries {
			if !yield(e.key, e.h) {
				return
			}
		}
	}
}

// Clear empties the index.
func (x *Index[K]) Clear() {
	x.entries = x.entries[:0]
}

// Seq is an unordered list of handles in insertion order.
type Seq struct {
	hs []Handle
}

// PushBack appends h.
func (s *Seq) PushBack(h Handle) {
	s.hs = append(s.hs, h)
}

// PushFront prepends h.
func (s *Seq) PushFront(h Handle) {
	s.hs = slices.Insert(s.hs, 0, h)
}

// Len returns the number of handles.
func (s *Seq) Len() int {
	return len(s.hs)
}

// All iterates handles in list order.
func (s *Seq) All() iter.Seq[Handle] {
	return slices.Values(s.hs)
}

// Clear empties the list.
func (s *Seq) Clear() {
	s.hs = s.hs[:0]
}
