// Package container provides the typed containers the core uses in place
// of Pintos' single intrusive doubly-linked list with a generic comparator
// (spec.md Design Notes §9): a priority-ordered list supporting O(n)
// removal-at-element and re-sort-after-key-change, used for the ready
// queue, semaphore/condvar waiter queues, and the sleep list. The key type
// is constrained with golang.org/x/exp/constraints.Ordered, the same
// generics style the teacher's catrate.ringBuffer uses.
package container

import "golang.org/x/exp/constraints"

// PriorityList holds elements ordered by a descending key, FIFO among
// elements with equal keys. It is not safe for concurrent use; callers
// serialize access the way the kernel serializes ready-queue access (by
// disabling interrupts or holding a dedicated lock).
type PriorityList[K constraints.Ordered, V any] struct {
	items []entry[K, V]
	seq   uint64
}

type entry[K constraints.Ordered, V any] struct {
	key   K
	value V
	seq   uint64 // insertion order; recorded but not compared: ties stay FIFO because an element is placed after every equal key
}

// New returns an empty PriorityList.
func New[K constraints.Ordered, V any]() *PriorityList[K, V] {
	return &PriorityList[K, V]{}
}

// Len returns the number of elements.
func (l *PriorityList[K, V]) Len() int { return len(l.items) }

// Empty reports whether the list has no elements.
func (l *PriorityList[K, V]) Empty() bool { return len(l.items) == 0 }

// Insert adds value under key, preserving descending-key, FIFO-on-tie
// order. Returns the index the element was inserted at.
func (l *PriorityList[K, V]) Insert(key K, value V) int {
	e := entry[K, V]{key: key, value: value, seq: l.seq}
	l.seq++
	i := 0
	for ; i < len(l.items); i++ {
		if l.items[i].key < key {
			break
		}
	}
	l.items = append(l.items, entry[K, V]{})
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = e
	return i
}

// PopMax removes and returns the highest-key element (FIFO among ties).
// ok is false if the list is empty.
func (l *PriorityList[K, V]) PopMax() (value V, ok bool) {
	if len(l.items) == 0 {
		return value, false
	}
	value = l.items[0].value
	l.items = l.items[1:]
	return value, true
}

// PeekMax returns the highest-key element without removing it.
func (l *PriorityList[K, V]) PeekMax() (value V, ok bool) {
	if len(l.items) == 0 {
		return value, false
	}
	return l.items[0].value, true
}

// MaxKey returns the highest key currently present, or the zero value and
// false if the list is empty.
func (l *PriorityList[K, V]) MaxKey() (key K, ok bool) {
	if len(l.items) == 0 {
		return key, false
	}
	return l.items[0].key, true
}

// Remove deletes the element equal to value (by the predicate eq) from the
// list, returning true if one was found and removed.
func (l *PriorityList[K, V]) Remove(eq func(V) bool) bool {
	for i := range l.items {
		if eq(l.items[i].value) {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}

// Reinsert removes the element matching eq (if present) and re-inserts it
// under newKey, preserving order. Used after a priority change moves a
// thread within the ready queue or a waiter queue (spec.md §4.2 step 5-6).
func (l *PriorityList[K, V]) Reinsert(eq func(V) bool, newKey K) bool {
	for i := range l.items {
		if eq(l.items[i].value) {
			v := l.items[i].value
			seq := l.items[i].seq
			l.items = append(l.items[:i], l.items[i+1:]...)
			e := entry[K, V]{key: newKey, value: v, seq: seq}
			j := 0
			for ; j < len(l.items); j++ {
				if l.items[j].key < newKey {
					break
				}
			}
			l.items = append(l.items, entry[K, V]{})
			copy(l.items[j+1:], l.items[j:])
			l.items[j] = e
			return true
		}
	}
	return false
}

// Values returns the elements in descending-key, FIFO-on-tie order.
func (l *PriorityList[K, V]) Values() []V {
	out := make([]V, len(l.items))
	for i, e := range l.items {
		out[i] = e.value
	}
	return out
}
