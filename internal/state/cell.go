package state

import "fmt"

// cellKey is the storage key of every Cell.
const cellKey = "value"

// Cell is a single journaled value.
type Cell[V any] struct {
	ns    string
	codec Codec[V]
	v     V
}

// NewCell creates a cell holding the codec's zero value.
func NewCell[V any](ns string, codec Codec[V]) *Cell[V] {
	return &Cell[V]{ns: ns, codec: codec, v: codec.Zero()}
}

// Namespace returns the storage namespace of the cell.
func (c *Cell[V]) Namespace() string {
	return c.ns
}

// Get returns a copy of the current value.
func (c *Cell[V]) Get() V {
	return c.codec.Clone(c.v)
}

// Set stores v and records the undo step in j.
func (c *Cell[V]) Set(j *Journal, v V) {
	prev := c.v
	c.v = c.codec.Clone(v)
	j.record(func() { c.v = prev }, c.ns, cellKey, c.codec.Encode(v))
}

// Restore loads a persisted value without journaling.
func (c *Cell[V]) Restore(key, value string) error {
	if key != cellKey {
		return fmt.Errorf("%s: unexpected key %q", c.ns, key)
	}
	v, err := c.codec.Decode(value)
	if err != nil {
		return fmt.Errorf("%s: %w", c.ns, err)
	}
	c.v = v
	return nil
}
