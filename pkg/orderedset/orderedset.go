// Package orderedset provides a set with O(1) membership that enumerates members in
// insertion order.
package orderedset

// Set is not safe for concurrent use; callers guard it with their own lock.
type Set[T comparable] struct {
	index map[T]int
	items []T
}

// New returns an empty set seeded with the given members.
func New[T comparable](members ...T) *Set[T] {
	s := &Set[T]{index: make(map[T]int, len(members))}
	for _, m := range members {
		s.Add(m)
	}
	return s
}

// Add inserts v and reports whether it was absent.
func (s *Set[T]) Add(v T) bool {
	if s.index == nil {
		s.index = make(map[T]int)
	}
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = len(s.items)
	s.items = append(s.items, v)
	return true
}

// Remove deletes v, keeping the relative order of the remaining members.
func (s *Set[T]) Remove(v T) bool {
	pos, ok := s.index[v]
	if !ok {
		return false
	}
	copy(s.items[pos:], s.items[pos+1:])
	var zero T
	s.items[len(s.items)-1] = zero
	s.items = s.items[:len(s.items)-1]
	delete(s.index, v)
	for i := pos; i < len(s.items); i++ {
		s.index[s.items[i]] = i
	}
	return true
}

// Contains reports membership.
func (s *Set[T]) Contains(v T) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[v]
	return ok
}

// Len returns the number of members.
func (s *Set[T]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Values returns a copy of the members in insertion order.
func (s *Set[T]) Values() []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Clone returns an independent copy.
func (s *Set[T]) Clone() *Set[T] {
	if s == nil {
		return New[T]()
	}
	return New(s.items...)
}
