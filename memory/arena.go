package memory

import "fmt"

type handle int32

const nilHandle handle = -1

type entry[K comparable, V any] struct {
	key      K
	value    V
	cost     int64
	accessed int64 // unix nanos
	prev     handle
	next     handle
	used     bool
}

// linkedMap is an LRU index: a map from key to a slot handle plus a doubly linked list
// threaded through the slots (head = most recently used, tail = least recently used).
// Released slots are kept on a free-list and reused. Not safe for concurrent use.
type linkedMap[K comparable, V any] struct {
	index map[K]handle
	slots []entry[K, V]
	free  []handle
	head  handle
	tail  handle
	cost  int64
}

func newLinkedMap[K comparable, V any]() *linkedMap[K, V] {
	return &linkedMap[K, V]{
		index: make(map[K]handle),
		head:  nilHandle,
		tail:  nilHandle,
	}
}

func (m *linkedMap[K, V]) len() int64 {
	return int64(len(m.index))
}

func (m *linkedMap[K, V]) lookup(key K) (handle, bool) {
	h, ok := m.index[key]
	return h, ok
}

func (m *linkedMap[K, V]) at(h handle) *entry[K, V] {
	return &m.slots[h]
}

// insert places a new entry at the head. The key must not be present.
func (m *linkedMap[K, V]) insert(key K, value V, cost, now int64) handle {
	var h handle
	if n := len(m.free); n > 0 {
		h = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		m.slots = append(m.slots, entry[K, V]{})
		h = handle(len(m.slots) - 1)
	}

	m.slots[h] = entry[K, V]{
		key:      key,
		value:    value,
		cost:     cost,
		accessed: now,
		prev:     nilHandle,
		next:     nilHandle,
		used:     true,
	}
	m.index[key] = h
	m.cost += cost
	m.linkFront(h)
	return h
}

// update replaces value and cost of an existing entry and moves it to the head.
func (m *linkedMap[K, V]) update(h handle, value V, cost, now int64) {
	e := &m.slots[h]
	m.cost += cost - e.cost
	e.value = value
	e.cost = cost
	e.accessed = now
	m.moveToFront(h)
}

func (m *linkedMap[K, V]) touch(h handle, now int64) {
	m.slots[h].accessed = now
	m.moveToFront(h)
}

func (m *linkedMap[K, V]) moveToFront(h handle) {
	if m.head == h {
		return
	}
	m.unlink(h)
	m.linkFront(h)
}

// remove unlinks the entry, returns a copy of it and puts the slot on the free-list.
func (m *linkedMap[K, V]) remove(h handle) entry[K, V] {
	e := m.slots[h]
	m.unlink(h)
	delete(m.index, e.key)
	m.cost -= e.cost
	m.slots[h] = entry[K, V]{prev: nilHandle, next: nilHandle}
	m.free = append(m.free, h)
	return e
}

// oldest returns the tail entry.
func (m *linkedMap[K, V]) oldest() (*entry[K, V], bool) {
	if m.tail == nilHandle {
		return nil, false
	}
	return &m.slots[m.tail], true
}

func (m *linkedMap[K, V]) keys() []K {
	out := make([]K, 0, len(m.index))
	for h := m.head; h != nilHandle; h = m.slots[h].next {
		out = append(out, m.slots[h].key)
	}
	return out
}

// each walks entries from head to tail.
func (m *linkedMap[K, V]) each(fn func(e *entry[K, V])) {
	for h := m.head; h != nilHandle; h = m.slots[h].next {
		fn(&m.slots[h])
	}
}

func (m *linkedMap[K, V]) linkFront(h handle) {
	e := &m.slots[h]
	e.prev = nilHandle
	e.next = m.head
	if m.head != nilHandle {
		m.slots[m.head].prev = h
	}
	m.head = h
	if m.tail == nilHandle {
		m.tail = h
	}
}

func (m *linkedMap[K, V]) unlink(h handle) {
	e := &m.slots[h]
	if e.prev != nilHandle {
		m.slots[e.prev].next = e.next
	} else {
		m.head = e.next
	}
	if e.next != nilHandle {
		m.slots[e.next].prev = e.prev
	} else {
		m.tail = e.prev
	}
	e.prev, e.next = nilHandle, nilHandle
}

// checkInvariants walks the list in both directions and cross-checks it with the index,
// the free-list and the cost total.
func (m *linkedMap[K, V]) checkInvariants() error {
	var (
		seen = make(map[handle]struct{}, len(m.index))
		cost int64
		prev = nilHandle
	)
	for h := m.head; h != nilHandle; h = m.slots[h].next {
		if int(h) >= len(m.slots) || h < 0 {
			return fmt.Errorf("handle %d out of arena bounds %d", h, len(m.slots))
		}
		if _, dup := seen[h]; dup {
			return fmt.Errorf("cycle at handle %d", h)
		}
		seen[h] = struct{}{}

		e := &m.slots[h]
		if !e.used {
			return fmt.Errorf("free slot %d is linked", h)
		}
		if e.prev != prev {
			return fmt.Errorf("broken back link at handle %d: want %d, got %d", h, prev, e.prev)
		}
		if idx, ok := m.index[e.key]; !ok || idx != h {
			return fmt.Errorf("entry at handle %d is not indexed", h)
		}
		cost += e.cost
		prev = h
	}
	if prev != m.tail {
		return fmt.Errorf("tail mismatch: want %d, got %d", prev, m.tail)
	}
	if len(seen) != len(m.index) {
		return fmt.Errorf("index has %d keys, list has %d nodes", len(m.index), len(seen))
	}
	if len(seen)+len(m.free) != len(m.slots) {
		return fmt.Errorf("leaked slots: %d linked + %d free != %d", len(seen), len(m.free), len(m.slots))
	}
	for _, h := range m.free {
		if m.slots[h].used {
			return fmt.Errorf("slot %d is both used and free", h)
		}
	}
	if cost != m.cost {
		return fmt.Errorf("cost mismatch: counted %d, tracked %d", cost, m.cost)
	}
	return nil
}
