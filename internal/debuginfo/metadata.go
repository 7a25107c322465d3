// ABOUTME: Debug metadata map attached to published conversation events
// ABOUTME: Thin map wrapper with copy-on-merge helpers and stable key ordering

package debuginfo

import (
	"maps"
	"slices"
)

// Metadata carries free-form debug information alongside an event.
// It is a plain map so it encodes as a JSON object with no wrapping.
type Metadata map[string]any

// New returns an empty, non-nil Metadata.
func New() Metadata {
	return Metadata{}
}

// Set stores value under key and returns m for chaining.
// A nil Metadata is allocated on first Set.
func (m Metadata) Set(key string, value any) Metadata {
	if m == nil {
		m = Metadata{}
	}
	m[key] = value
	return m
}

// String returns the value under key if it is a string, else "".
func (m Metadata) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Clone returns a shallow copy. Cloning nil yields nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

// Merge returns a new Metadata holding m overlaid with other.
// Keys in other win. Neither input is modified.
func (m Metadata) Merge(other Metadata) Metadata {
	out := make(Metadata, len(m)+len(other))
	maps.Copy(out, m)
	maps.Copy(out, other)
	return out
}

// Keys returns the keys in sorted order.
func (m Metadata) Keys() []string {
	return slices.Sorted(maps.Keys(m))
}
