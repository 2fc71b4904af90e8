package vkdevice

// table hands out opaque non-zero ids for backend objects. Id 0 is never
// issued so it stays the null handle on the core side.
type table[T any] struct {
	next  uint64
	items map[uint64]T
}

func (t *table[T]) put(v T) uint64 {
	if t.items == nil {
		t.items = make(map[uint64]T)
	}
	t.next++
	t.items[t.next] = v
	return t.next
}

func (t *table[T]) get(id uint64) (T, bool) {
	v, ok := t.items[id]
	return v, ok
}

// take removes id and returns what it referred to.
func (t *table[T]) take(id uint64) (T, bool) {
	v, ok := t.items[id]
	if ok {
		delete(t.items, id)
	}
	return v, ok
}

func (t *table[T]) len() int {
	return len(t.items)
}
