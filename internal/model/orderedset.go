package model

// OrderedSet keeps the first occurrence of each value in insertion order.
type OrderedSet[T comparable] struct {
	index map[T]struct{}
	items []T
}

// NewOrderedSet returns a set seeded with vals.
func NewOrderedSet[T comparable](vals ...T) *OrderedSet[T] {
	s := &OrderedSet[T]{index: make(map[T]struct{}, len(vals))}
	for _, v := range vals {
		s.Add(v)
	}
	return s
}

// Add inserts v and reports whether it was new.
func (s *OrderedSet[T]) Add(v T) bool {
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = struct{}{}
	s.items = append(s.items, v)
	return true
}

// Has reports whether v is in the set.
func (s *OrderedSet[T]) Has(v T) bool {
	_, ok := s.index[v]
	return ok
}

// Len returns the number of distinct values.
func (s *OrderedSet[T]) Len() int { return len(s.items) }

// Items returns a copy of the values in insertion order.
func (s *OrderedSet[T]) Items() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}
