package state

import (
	"fmt"
	"sort"
)

// Map is a keyed record set. Reads return copies; writes go through a Journal.
// Zero values are not stored, so Len counts live records only.
type Map[K comparable, V any] struct {
	ns   string
	keys Codec[K]
	vals Codec[V]
	data map[K]V
}

// NewMap creates an empty map living in namespace ns.
func NewMap[K comparable, V any](ns string, keys Codec[K], vals Codec[V]) *Map[K, V] {
	return &Map[K, V]{ns: ns, keys: keys, vals: vals, data: make(map[K]V)}
}

// Namespace returns the storage namespace of the map.
func (m *Map[K, V]) Namespace() string {
	return m.ns
}

// Get returns a copy of the value for k, or the zero value.
func (m *Map[K, V]) Get(k K) V {
	v, ok := m.data[k]
	if !ok {
		return m.vals.Zero()
	}
	return m.vals.Clone(v)
}

// Has reports whether k holds a non-zero value.
func (m *Map[K, V]) Has(k K) bool {
	_, ok := m.data[k]
	return ok
}

// Set stores v for k and records the undo step in j.
func (m *Map[K, V]) Set(j *Journal, k K, v V) {
	prev, existed := m.data[k]
	m.put(k, v)
	j.record(func() {
		if existed {
			m.data[k] = prev
		} else {
			delete(m.data, k)
		}
	}, m.ns, m.keys.Encode(k), m.vals.Encode(v))
}

// Len returns the number of non-zero records.
func (m *Map[K, V]) Len() int {
	return len(m.data)
}

// Range calls fn for each record in encoded-key order until fn returns false.
func (m *Map[K, V]) Range(fn func(K, V) bool) {
	type entry struct {
		enc string
		key K
	}
	entries := make([]entry, 0, len(m.data))
	for k := range m.data {
		entries = append(entries, entry{enc: m.keys.Encode(k), key: k})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].enc < entries[j].enc })

	for _, e := range entries {
		if !fn(e.key, m.vals.Clone(m.data[e.key])) {
			return
		}
	}
}

// Restore loads a persisted record without journaling.
func (m *Map[K, V]) Restore(key, value string) error {
	k, err := m.keys.Decode(key)
	if err != nil {
		return fmt.Errorf("%s: %w", m.ns, err)
	}
	v, err := m.vals.Decode(value)
	if err != nil {
		return fmt.Errorf("%s[%s]: %w", m.ns, key, err)
	}
	m.put(k, v)
	return nil
}

func (m *Map[K, V]) put(k K, v V) {
	if m.vals.IsZero(v) {
		delete(m.data, k)
		return
	}
	m.data[k] = m.vals.Clone(v)
}
